package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

var ErrInvalidHospital = errors.New("invalid hospital")

type Service struct {
	hospitals HospitalRepository
	beds      BedRepository
	doctors   DoctorRepository
	holds     HoldCounter
	logger    zerolog.Logger
}

// NewService builds the catalog service. holds may be nil, in which case
// inventory edits are not cross-checked against outstanding reservations.
func NewService(hospitals HospitalRepository, beds BedRepository, holds HoldCounter, logger zerolog.Logger) *Service {
	return &Service{hospitals: hospitals, beds: beds, holds: holds, logger: logger}
}

// WithDoctors attaches the doctor roster. Without it hospitals list no
// doctors.
func (s *Service) WithDoctors(doctors DoctorRepository) *Service {
	s.doctors = doctors
	return s
}

// -- Hospitals --

func (s *Service) ListHospitals(ctx context.Context) ([]*Hospital, error) {
	return s.hospitals.List(ctx)
}

func (s *Service) SearchHospitals(ctx context.Context, q string) ([]*Hospital, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return s.hospitals.List(ctx)
	}
	return s.hospitals.Search(ctx, q)
}

func (s *Service) CreateHospital(ctx context.Context, h *Hospital) error {
	h.Name = strings.TrimSpace(h.Name)
	h.Location = strings.TrimSpace(h.Location)
	if h.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidHospital)
	}
	if h.Location == "" {
		return fmt.Errorf("%w: location is required", ErrInvalidHospital)
	}
	return s.hospitals.Create(ctx, h)
}

func (s *Service) GetHospital(ctx context.Context, id int64) (*Hospital, error) {
	return s.hospitals.GetByID(ctx, id)
}

func (s *Service) HospitalDetails(ctx context.Context, id int64) (*HospitalDetails, error) {
	h, err := s.hospitals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	beds, err := s.beds.ListByHospital(ctx, id)
	if err != nil {
		return nil, err
	}
	if beds == nil {
		beds = []*BedInventory{}
	}
	return &HospitalDetails{Hospital: h, Beds: beds}, nil
}

// HospitalNames resolves display names for the ledger and appointment views.
func (s *Service) HospitalNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	return s.hospitals.Names(ctx, ids)
}

// -- Doctors --

func (s *Service) ListDoctors(ctx context.Context, hospitalID int64) ([]*Doctor, error) {
	if _, err := s.hospitals.GetByID(ctx, hospitalID); err != nil {
		return nil, err
	}
	if s.doctors == nil {
		return []*Doctor{}, nil
	}
	items, err := s.doctors.ListByHospital(ctx, hospitalID)
	if items == nil {
		items = []*Doctor{}
	}
	return items, err
}

func (s *Service) AddDoctor(ctx context.Context, d *Doctor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if s.doctors == nil {
		return errors.New("doctor roster is not configured")
	}
	if _, err := s.hospitals.GetByID(ctx, d.HospitalID); err != nil {
		return err
	}
	return s.doctors.Create(ctx, d)
}

// -- Beds --

func (s *Service) SearchBeds(ctx context.Context, q BedSearch) ([]*BedListing, error) {
	q.Price = strings.ToLower(strings.TrimSpace(q.Price))
	if q.Price != "" && q.Price != "low" && q.Price != "high" {
		return nil, fmt.Errorf("%w: price must be low or high", ErrInvalidBed)
	}
	return s.beds.SearchAvailable(ctx, q)
}

func (s *Service) GetBed(ctx context.Context, id int64) (*BedInventory, error) {
	return s.beds.GetByID(ctx, id)
}

// UpsertBed is the staff catalog edit. It writes counts directly and so
// bypasses the reservation coordinator; a row whose held units disagree with
// the ledger is logged as drift but still accepted.
func (s *Service) UpsertBed(ctx context.Context, b *BedInventory) (bool, error) {
	if err := b.Validate(); err != nil {
		return false, err
	}
	created, err := s.beds.Upsert(ctx, b)
	if err != nil {
		return false, err
	}
	s.checkDrift(ctx, b)
	return created, nil
}

func (s *Service) DeleteBed(ctx context.Context, id int64) error {
	b, err := s.beds.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.beds.Delete(ctx, id); err != nil {
		return err
	}
	if s.holds != nil {
		if n, err := s.holds.ActiveHolds(ctx, b.HospitalID, b.BedType); err == nil && n > 0 {
			s.logger.Warn().
				Int64("hospital_id", b.HospitalID).
				Str("bed_type", b.BedType).
				Int("active_holds", n).
				Msg("bed type deleted while reservations still hold units")
		}
	}
	return nil
}

func (s *Service) checkDrift(ctx context.Context, b *BedInventory) {
	if s.holds == nil {
		return
	}
	n, err := s.holds.ActiveHolds(ctx, b.HospitalID, b.BedType)
	if err != nil {
		s.logger.Error().Err(err).Int64("hospital_id", b.HospitalID).Str("bed_type", b.BedType).Msg("counting active holds")
		return
	}
	if b.Held() != n {
		s.logger.Warn().
			Int64("hospital_id", b.HospitalID).
			Str("bed_type", b.BedType).
			Int("total_count", b.TotalCount).
			Int("available_count", b.AvailableCount).
			Int("active_holds", n).
			Int("expected_available", b.TotalCount-n).
			Msg("catalog edit disagrees with reservation ledger")
	}
}
