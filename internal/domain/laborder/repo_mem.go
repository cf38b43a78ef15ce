package laborder

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
	byID     map[int64]*Order
	byNumber map[string]int64
	next     int64
}

func NewRepoMem() Repository {
	return &repoMem{
		byID:     make(map[int64]*Order),
		byNumber: make(map[string]int64),
	}
}

func (r *repoMem) Create(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byNumber[o.LabOrderID]; ok {
		return errNumberTaken
	}
	r.next++
	o.ID = r.next
	o.CreatedAt = time.Now().UTC()
	r.byID[o.ID] = clone(o)
	r.byNumber[o.LabOrderID] = o.ID
	return nil
}

func (r *repoMem) GetByLabOrderID(_ context.Context, labOrderID string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNumber[labOrderID]
	if !ok {
		return nil, fmt.Errorf("lab order %s: %w", labOrderID, ErrNotFound)
	}
	return clone(r.byID[id]), nil
}

func (r *repoMem) Complete(_ context.Context, labOrderID, appointmentNo string, at time.Time) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byNumber[labOrderID]
	if !ok {
		return nil, fmt.Errorf("lab order %s: %w", labOrderID, ErrNotFound)
	}
	o := r.byID[id]
	if o.Status != StatusPending {
		return nil, fmt.Errorf("lab order %s: %w", labOrderID, ErrAlreadyCompleted)
	}
	o.Status = StatusCompleted
	o.DateUploaded = at.Format(dateLayout)
	o.CompletedAt = &at
	if appointmentNo != "" {
		o.AppointmentNo = appointmentNo
	}
	return clone(o), nil
}

func (r *repoMem) List(_ context.Context, p pagination.Params) ([]*Order, int, error) {
	items := r.filter(func(*Order) bool { return true })
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	start, end := p.Window(len(items))
	return items[start:end], len(items), nil
}

func (r *repoMem) ListByPatient(_ context.Context, patientID int64, p pagination.Params) ([]*Order, int, error) {
	items := r.filter(func(o *Order) bool { return o.PatientID == patientID })
	sort.Slice(items, func(i, j int) bool {
		if items[i].DateUploaded != items[j].DateUploaded {
			return items[i].DateUploaded > items[j].DateUploaded
		}
		return items[i].ID > items[j].ID
	})
	start, end := p.Window(len(items))
	return items[start:end], len(items), nil
}

func (r *repoMem) filter(match func(*Order) bool) []*Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Order
	for _, o := range r.byID {
		if match(o) {
			out = append(out, clone(o))
		}
	}
	return out
}

func clone(o *Order) *Order {
	cp := *o
	if o.HospitalID != nil {
		h := *o.HospitalID
		cp.HospitalID = &h
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
