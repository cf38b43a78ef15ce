package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hospitrack/hospitrack/internal/platform/auth"
)

type userRepoMem struct {
	mu         sync.RWMutex
	byID       map[int64]*User
	byUsername map[string]int64
	byHTID     map[string]int64
	next       int64
}

func NewUserRepoMem() UserRepository {
	return &userRepoMem{
		byID:       make(map[int64]*User),
		byUsername: make(map[string]int64),
		byHTID:     make(map[string]int64),
	}
}

func (r *userRepoMem) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUsername[u.Username]; ok {
		return fmt.Errorf("%q: %w", u.Username, ErrDuplicate)
	}
	if u.HospitrackID != "" {
		if _, ok := r.byHTID[u.HospitrackID]; ok {
			return errHospitrackIDTaken
		}
	}
	r.next++
	u.ID = r.next
	u.CreatedAt = time.Now().UTC()
	cp := *u
	r.byID[u.ID] = &cp
	r.byUsername[u.Username] = u.ID
	if u.HospitrackID != "" {
		r.byHTID[u.HospitrackID] = u.ID
	}
	return nil
}

func (r *userRepoMem) get(id int64, ok bool) (*User, error) {
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *userRepoMem) GetByID(_ context.Context, id int64) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return r.get(id, ok)
}

func (r *userRepoMem) GetByUsername(_ context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUsername[username]
	return r.get(id, ok)
}

func (r *userRepoMem) GetByHospitrackID(_ context.Context, hospitrackID string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHTID[hospitrackID]
	if ok && r.byID[id].Role != auth.RolePatient {
		ok = false
	}
	return r.get(id, ok)
}

func (r *userRepoMem) Cards(_ context.Context, ids []int64) (map[int64]PatientCard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int64]PatientCard, len(ids))
	for _, id := range ids {
		if u, ok := r.byID[id]; ok && u.Role == auth.RolePatient {
			out[id] = u.Card()
		}
	}
	return out, nil
}
