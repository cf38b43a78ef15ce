package reservation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hospitrack/hospitrack/internal/domain/catalog"
	"github.com/hospitrack/hospitrack/pkg/pagination"
)

// errKeepRow aborts a row-lock callback without writing the row back while
// keeping the ledger change already made inside it.
var errKeepRow = errors.New("leave inventory row unchanged")

// MemStore keeps reservations in memory on top of a catalog.MemStore.
// Locks are always taken row first, then ledger.
type MemStore struct {
	catalog *catalog.MemStore

	mu   sync.RWMutex
	rows map[int64]*Reservation
	next int64
	now  func() time.Time
}

func NewMemStore(cat *catalog.MemStore) *MemStore {
	return &MemStore{
		catalog: cat,
		rows:    make(map[int64]*Reservation),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemStore) Reserve(ctx context.Context, req ReserveRequest) (*Reservation, error) {
	var out Reservation
	err := s.catalog.WithRowLock(ctx, req.HospitalID, req.BedType, func(row *catalog.BedInventory) error {
		if row.AvailableCount <= 0 {
			return fmt.Errorf("bed type %q at hospital %d: %w", req.BedType, req.HospitalID, ErrNoCapacity)
		}
		row.AvailableCount--

		s.mu.Lock()
		defer s.mu.Unlock()
		s.next++
		now := s.now()
		r := &Reservation{
			ID:         s.next,
			PatientID:  req.PatientID,
			HospitalID: req.HospitalID,
			BedType:    row.BedType,
			Status:     StatusReserved,
			Address:    req.Address,
			Urgency:    req.Urgency,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		s.rows[r.ID] = r
		out = *r
		return nil
	})
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, fmt.Errorf("bed type %q at hospital %d: %w", req.BedType, req.HospitalID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MemStore) Release(ctx context.Context, id int64, to string) (*Reservation, Drift, error) {
	return s.release(ctx, id, to, false)
}

func (s *MemStore) Expire(ctx context.Context, id int64) (*Reservation, Drift, error) {
	return s.release(ctx, id, StatusCancelled, true)
}

func (s *MemStore) release(ctx context.Context, id int64, to string, reservedOnly bool) (*Reservation, Drift, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, DriftNone, err
	}

	var (
		out   Reservation
		drift Drift
	)
	err = s.catalog.WithRowLock(ctx, cur.HospitalID, cur.BedType, func(row *catalog.BedInventory) error {
		if err := s.setStatus(id, to, reservedOnly, &out); err != nil {
			return err
		}
		if row.AvailableCount >= row.TotalCount {
			drift = DriftRowFull
			return errKeepRow
		}
		row.AvailableCount++
		return nil
	})
	switch {
	case errors.Is(err, errKeepRow):
		err = nil
	case errors.Is(err, catalog.ErrNotFound):
		drift = DriftRowMissing
		err = s.setStatus(id, to, reservedOnly, &out)
	}
	if err != nil {
		return nil, DriftNone, err
	}
	return &out, drift, nil
}

// setStatus releases one active reservation under the ledger lock.
func (s *MemStore) setStatus(id int64, to string, reservedOnly bool, out *Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	if err := checkRelease(id, r.Status, reservedOnly); err != nil {
		return err
	}
	r.Status = to
	r.UpdatedAt = s.now()
	*out = *r
	return nil
}

func (s *MemStore) Transition(ctx context.Context, id int64, to string) (*Reservation, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, "", fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	prev := r.Status
	if !holdsUnit(prev) {
		return nil, "", fmt.Errorf("reservation %d is %s: %w", id, prev, ErrInvalidTransition)
	}
	r.Status = to
	r.UpdatedAt = s.now()
	cp := *r
	return &cp, prev, nil
}

func (s *MemStore) Get(_ context.Context, id int64) (*Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *MemStore) ListByHospital(_ context.Context, hospitalID int64, p pagination.Params) ([]*Reservation, int, error) {
	return s.page(func(r *Reservation) bool { return r.HospitalID == hospitalID }, p)
}

func (s *MemStore) ListByPatient(_ context.Context, patientID int64, p pagination.Params) ([]*Reservation, int, error) {
	return s.page(func(r *Reservation) bool { return r.PatientID == patientID }, p)
}

func (s *MemStore) page(match func(*Reservation) bool, p pagination.Params) ([]*Reservation, int, error) {
	items := s.filter(match)
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	start, end := p.Window(len(items))
	return items[start:end], len(items), nil
}

func (s *MemStore) ListStaleReserved(_ context.Context, cutoff time.Time, limit int) ([]*Reservation, error) {
	items := s.filter(func(r *Reservation) bool {
		return r.Status == StatusReserved && r.CreatedAt.Before(cutoff)
	})
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemStore) ActiveHolds(_ context.Context, hospitalID int64, bedType string) (int, error) {
	items := s.filter(func(r *Reservation) bool {
		return r.HospitalID == hospitalID && r.BedType == bedType &&
			(holdsUnit(r.Status) || r.Status == StatusCompleted)
	})
	return len(items), nil
}

func (s *MemStore) filter(match func(*Reservation) bool) []*Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Reservation
	for _, r := range s.rows {
		if match(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}
