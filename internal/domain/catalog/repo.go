package catalog

import (
	"context"
)

type HospitalRepository interface {
	Create(ctx context.Context, h *Hospital) error
	GetByID(ctx context.Context, id int64) (*Hospital, error)
	List(ctx context.Context) ([]*Hospital, error)
	Search(ctx context.Context, q string) ([]*Hospital, error)
	Names(ctx context.Context, ids []int64) (map[int64]string, error)
}

type BedRepository interface {
	// Upsert writes total, available and price for (hospital_id, bed_type)
	// and reports whether a new row was created.
	Upsert(ctx context.Context, b *BedInventory) (bool, error)
	GetByID(ctx context.Context, id int64) (*BedInventory, error)
	Get(ctx context.Context, hospitalID int64, bedType string) (*BedInventory, error)
	ListByHospital(ctx context.Context, hospitalID int64) ([]*BedInventory, error)
	Delete(ctx context.Context, id int64) error
	SearchAvailable(ctx context.Context, q BedSearch) ([]*BedListing, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	// ListByHospital returns the roster in insertion order.
	ListByHospital(ctx context.Context, hospitalID int64) ([]*Doctor, error)
}

// HoldCounter reports how many reservations still hold a unit of a bed
// type. The reservation ledger implements it.
type HoldCounter interface {
	ActiveHolds(ctx context.Context, hospitalID int64, bedType string) (int, error)
}
