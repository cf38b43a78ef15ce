package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type bedKey struct {
	hospitalID int64
	bedType    string
}

// MemStore keeps hospitals and bed inventory in process memory. Each
// (hospital, bed_type) row has its own mutex so that mutations of one row
// never block another; mu only guards the maps and is held briefly.
type MemStore struct {
	mu        sync.RWMutex
	hospitals map[int64]*Hospital
	beds      map[int64]*BedInventory
	byKey     map[bedKey]int64
	rowLocks  map[bedKey]*sync.Mutex
	doctors   map[int64]*Doctor
	nextHosp  int64
	nextBed   int64
	nextDoc   int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		hospitals: make(map[int64]*Hospital),
		beds:      make(map[int64]*BedInventory),
		byKey:     make(map[bedKey]int64),
		rowLocks:  make(map[bedKey]*sync.Mutex),
		doctors:   make(map[int64]*Doctor),
	}
}

func (s *MemStore) Hospitals() HospitalRepository { return memHospitalRepo{s} }
func (s *MemStore) Beds() BedRepository           { return memBedRepo{s} }
func (s *MemStore) Doctors() DoctorRepository     { return memDoctorRepo{s} }

func (s *MemStore) rowLock(k bedKey) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rowLocks[k]
	if !ok {
		l = &sync.Mutex{}
		s.rowLocks[k] = l
	}
	return l
}

// WithRowLock runs fn with exclusive access to one inventory row. fn works
// on a copy; the copy is written back only when fn returns nil, so a failed
// fn leaves the row untouched. Returns ErrNotFound without calling fn when
// the row does not exist.
func (s *MemStore) WithRowLock(ctx context.Context, hospitalID int64, bedType string, fn func(row *BedInventory) error) error {
	k := bedKey{hospitalID, bedType}
	l := s.rowLock(k)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	id, ok := s.byKey[k]
	var row BedInventory
	if ok {
		row = *s.beds[id]
	}
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("bed type %q at hospital %d: %w", bedType, hospitalID, ErrNotFound)
	}

	if err := fn(&row); err != nil {
		return err
	}

	row.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	if _, still := s.beds[id]; still {
		s.beds[id] = &row
	}
	s.mu.Unlock()
	return nil
}

// =========== Hospitals ===========

type memHospitalRepo struct{ s *MemStore }

func (r memHospitalRepo) Create(_ context.Context, h *Hospital) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextHosp++
	h.ID = r.s.nextHosp
	h.CreatedAt = time.Now().UTC()
	cp := *h
	r.s.hospitals[h.ID] = &cp
	return nil
}

func (r memHospitalRepo) GetByID(_ context.Context, id int64) (*Hospital, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	h, ok := r.s.hospitals[id]
	if !ok {
		return nil, fmt.Errorf("hospital %d: %w", id, ErrNotFound)
	}
	return r.s.aggregate(h), nil
}

func (r memHospitalRepo) List(_ context.Context) ([]*Hospital, error) {
	return r.filter(func(*Hospital) bool { return true }, byID), nil
}

func (r memHospitalRepo) Search(_ context.Context, q string) ([]*Hospital, error) {
	q = strings.ToLower(q)
	return r.filter(func(h *Hospital) bool {
		return strings.Contains(strings.ToLower(h.Name), q) || strings.Contains(strings.ToLower(h.Location), q)
	}, byName), nil
}

func (r memHospitalRepo) Names(_ context.Context, ids []int64) (map[int64]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		if h, ok := r.s.hospitals[id]; ok {
			out[id] = h.Name
		}
	}
	return out, nil
}

func byID(a, b *Hospital) bool   { return a.ID < b.ID }
func byName(a, b *Hospital) bool { return a.Name < b.Name }

func (r memHospitalRepo) filter(keep func(*Hospital) bool, less func(a, b *Hospital) bool) []*Hospital {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*Hospital
	for _, h := range r.s.hospitals {
		if keep(h) {
			out = append(out, r.s.aggregate(h))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// aggregate copies h with bed totals filled in. Caller holds mu.
func (s *MemStore) aggregate(h *Hospital) *Hospital {
	cp := *h
	cp.AvailableBeds, cp.TotalBeds = 0, 0
	for _, b := range s.beds {
		if b.HospitalID == h.ID {
			cp.AvailableBeds += b.AvailableCount
			cp.TotalBeds += b.TotalCount
		}
	}
	return &cp
}

// =========== Beds ===========

type memBedRepo struct{ s *MemStore }

func (r memBedRepo) Upsert(_ context.Context, b *BedInventory) (bool, error) {
	if err := b.Validate(); err != nil {
		return false, err
	}
	k := bedKey{b.HospitalID, b.BedType}
	l := r.s.rowLock(k)
	l.Lock()
	defer l.Unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.hospitals[b.HospitalID]; !ok {
		return false, fmt.Errorf("hospital %d: %w", b.HospitalID, ErrNotFound)
	}

	b.UpdatedAt = time.Now().UTC()
	id, exists := r.s.byKey[k]
	if !exists {
		r.s.nextBed++
		id = r.s.nextBed
		r.s.byKey[k] = id
	}
	b.ID = id
	cp := *b
	r.s.beds[id] = &cp
	return !exists, nil
}

func (r memBedRepo) GetByID(_ context.Context, id int64) (*BedInventory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.beds[id]
	if !ok {
		return nil, fmt.Errorf("bed %d: %w", id, ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (r memBedRepo) Get(_ context.Context, hospitalID int64, bedType string) (*BedInventory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.byKey[bedKey{hospitalID, bedType}]
	if !ok {
		return nil, fmt.Errorf("bed type %q at hospital %d: %w", bedType, hospitalID, ErrNotFound)
	}
	cp := *r.s.beds[id]
	return &cp, nil
}

func (r memBedRepo) ListByHospital(_ context.Context, hospitalID int64) ([]*BedInventory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*BedInventory
	for _, b := range r.s.beds {
		if b.HospitalID == hospitalID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BedType < out[j].BedType })
	return out, nil
}

func (r memBedRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.RLock()
	b, ok := r.s.beds[id]
	var k bedKey
	if ok {
		k = bedKey{b.HospitalID, b.BedType}
	}
	r.s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("bed %d: %w", id, ErrNotFound)
	}

	l := r.s.rowLock(k)
	l.Lock()
	defer l.Unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.beds[id]; !ok {
		return fmt.Errorf("bed %d: %w", id, ErrNotFound)
	}
	delete(r.s.beds, id)
	delete(r.s.byKey, k)
	return nil
}

func (r memBedRepo) SearchAvailable(_ context.Context, q BedSearch) ([]*BedListing, error) {
	loc := strings.ToLower(strings.TrimSpace(q.Location))

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*BedListing
	for _, b := range r.s.beds {
		if b.AvailableCount <= 0 {
			continue
		}
		if q.BedType != "" && b.BedType != q.BedType {
			continue
		}
		if !matchesPrice(q.Price, b.Price) {
			continue
		}
		h := r.s.hospitals[b.HospitalID]
		if h == nil {
			continue
		}
		if loc != "" && !strings.Contains(strings.ToLower(h.Name), loc) && !strings.Contains(strings.ToLower(h.Location), loc) {
			continue
		}
		out = append(out, &BedListing{
			BedID:            b.ID,
			BedType:          b.BedType,
			Price:            b.Price,
			AvailableCount:   b.AvailableCount,
			HospitalID:       h.ID,
			HospitalName:     h.Name,
			HospitalLocation: h.Location,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].HospitalName < out[j].HospitalName
	})
	return out, nil
}

// =========== Doctors ===========

type memDoctorRepo struct{ s *MemStore }

func (r memDoctorRepo) Create(_ context.Context, d *Doctor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.hospitals[d.HospitalID]; !ok {
		return fmt.Errorf("hospital %d: %w", d.HospitalID, ErrNotFound)
	}
	r.s.nextDoc++
	d.ID = r.s.nextDoc
	d.CreatedAt = time.Now().UTC()
	cp := *d
	r.s.doctors[d.ID] = &cp
	return nil
}

func (r memDoctorRepo) ListByHospital(_ context.Context, hospitalID int64) ([]*Doctor, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*Doctor
	for _, d := range r.s.doctors {
		if d.HospitalID == hospitalID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
