package laborder

import (
	"context"
	"time"

	"github.com/hospitrack/hospitrack/pkg/pagination"
)

type Repository interface {
	// Create stores a Pending order. A reused lab order id yields
	// errNumberTaken so the caller can draw another.
	Create(ctx context.Context, o *Order) error
	GetByLabOrderID(ctx context.Context, labOrderID string) (*Order, error)
	// Complete moves a Pending order to Completed. An order that already
	// left Pending yields ErrAlreadyCompleted and is not touched.
	Complete(ctx context.Context, labOrderID, appointmentNo string, at time.Time) (*Order, error)
	// List returns every order, newest first.
	List(ctx context.Context, p pagination.Params) ([]*Order, int, error)
	// ListByPatient returns a patient's orders, latest date first.
	ListByPatient(ctx context.Context, patientID int64, p pagination.Params) ([]*Order, int, error)
}
