package identity

import "context"

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	// GetByHospitrackID only matches patients.
	GetByHospitrackID(ctx context.Context, hospitrackID string) (*User, error)
	// Cards only resolves patients; other ids are left out.
	Cards(ctx context.Context, ids []int64) (map[int64]PatientCard, error)
}
