package appointment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hospitrack/hospitrack/pkg/pagination"
)

type repoMem struct {
	mu       sync.RWMutex
	byID     map[int64]*Appointment
	byNumber map[string]int64
	next     int64
}

func NewRepoMem() Repository {
	return &repoMem{
		byID:     make(map[int64]*Appointment),
		byNumber: make(map[string]int64),
	}
}

func (r *repoMem) Create(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byNumber[a.AppointmentNo]; ok {
		return errNumberTaken
	}
	r.next++
	a.ID = r.next
	a.CreatedAt = time.Now().UTC()
	cp := *a
	r.byID[a.ID] = &cp
	r.byNumber[a.AppointmentNo] = a.ID
	return nil
}

func (r *repoMem) GetByID(_ context.Context, id int64) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("appointment %d: %w", id, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (r *repoMem) GetByNumber(ctx context.Context, no string) (*Appointment, error) {
	r.mu.RLock()
	id, ok := r.byNumber[no]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("appointment %s: %w", no, ErrNotFound)
	}
	return r.GetByID(ctx, id)
}

func (r *repoMem) SetStatus(_ context.Context, id int64, status string) (*Appointment, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, "", fmt.Errorf("appointment %d: %w", id, ErrNotFound)
	}
	prev := a.Status
	a.Status = status
	cp := *a
	return &cp, prev, nil
}

func (r *repoMem) ListByPatient(_ context.Context, patientID int64, p pagination.Params) ([]*Appointment, int, error) {
	items := r.filter(func(a *Appointment) bool { return a.PatientID == patientID })
	sort.Slice(items, func(i, j int) bool {
		if items[i].Date != items[j].Date {
			return items[i].Date > items[j].Date
		}
		return items[i].ID > items[j].ID
	})
	start, end := p.Window(len(items))
	return items[start:end], len(items), nil
}

func (r *repoMem) ListByHospital(_ context.Context, hospitalID int64, p pagination.Params) ([]*Appointment, int, error) {
	items := r.filter(func(a *Appointment) bool { return a.HospitalID == hospitalID })
	sort.Slice(items, func(i, j int) bool {
		if items[i].Date != items[j].Date {
			return items[i].Date < items[j].Date
		}
		return items[i].ID < items[j].ID
	})
	start, end := p.Window(len(items))
	return items[start:end], len(items), nil
}

func (r *repoMem) CountByHospital(_ context.Context, hospitalID int64) (int, error) {
	return len(r.filter(func(a *Appointment) bool { return a.HospitalID == hospitalID })), nil
}

func (r *repoMem) filter(match func(*Appointment) bool) []*Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Appointment
	for _, a := range r.byID {
		if match(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}
