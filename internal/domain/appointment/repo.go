package appointment

import (
	"context"

	"github.com/hospitrack/hospitrack/pkg/pagination"
)

type Repository interface {
	// Create stores a Pending appointment. A reused appointment number
	// yields errNumberTaken so the caller can draw another.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id int64) (*Appointment, error)
	GetByNumber(ctx context.Context, no string) (*Appointment, error)
	// SetStatus returns the updated row and the status it replaced.
	SetStatus(ctx context.Context, id int64, status string) (*Appointment, string, error)
	ListByPatient(ctx context.Context, patientID int64, p pagination.Params) ([]*Appointment, int, error)
	ListByHospital(ctx context.Context, hospitalID int64, p pagination.Params) ([]*Appointment, int, error)
	CountByHospital(ctx context.Context, hospitalID int64) (int, error)
}
