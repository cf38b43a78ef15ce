package reservation

import (
	"context"
	"time"

	"github.com/hospitrack/hospitrack/pkg/pagination"
)

// Store persists reservations together with the inventory rows they hold.
// Reserve, Release and Transition are the only writes and each is atomic
// with respect to the inventory row it touches.
type Store interface {
	// Reserve decrements the matching inventory row and inserts a Reserved
	// row in one step. ErrNotFound when the row does not exist,
	// ErrNoCapacity when it has no units left.
	Reserve(ctx context.Context, req ReserveRequest) (*Reservation, error)

	// Release moves an active reservation to a released status and gives the
	// unit back. A reservation that is already terminal yields
	// ErrAlreadyReleased with no mutation. When the inventory row is gone or
	// already full the status still changes and the drift is reported.
	Release(ctx context.Context, id int64, to string) (*Reservation, Drift, error)

	// Expire is Release to Cancelled that only applies while the reservation
	// is still Reserved. A confirmed hold yields ErrNotReserved, a terminal
	// one ErrAlreadyReleased; neither is mutated.
	Expire(ctx context.Context, id int64) (*Reservation, Drift, error)

	// Transition writes Confirmed or Completed over an active reservation and
	// returns the prior status. Terminal reservations yield ErrInvalidTransition.
	Transition(ctx context.Context, id int64, to string) (*Reservation, string, error)

	Get(ctx context.Context, id int64) (*Reservation, error)
	ListByHospital(ctx context.Context, hospitalID int64, p pagination.Params) ([]*Reservation, int, error)
	ListByPatient(ctx context.Context, patientID int64, p pagination.Params) ([]*Reservation, int, error)

	// ListStaleReserved returns Reserved rows created before cutoff, oldest first.
	ListStaleReserved(ctx context.Context, cutoff time.Time, limit int) ([]*Reservation, error)

	// ActiveHolds counts reservations whose unit has not been returned to the
	// (hospital, bed_type) row.
	ActiveHolds(ctx context.Context, hospitalID int64, bedType string) (int, error)
}
