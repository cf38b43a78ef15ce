package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hospitrack/hospitrack/internal/platform/auth"
)

const (
	hospitrackPrefix   = "HT-"
	hospitrackIDLength = 6
	hospitrackAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxIDAttempts      = 5
)

type Service struct {
	users UserRepository
}

func NewService(users UserRepository) *Service {
	return &Service{users: users}
}

// Create registers a user. Patients are assigned a HospiTrack UID; other
// roles never carry one, and only staff and lab technicians keep a hospital.
func (s *Service) Create(ctx context.Context, u *User) error {
	u.Username = strings.TrimSpace(u.Username)
	u.FullName = strings.TrimSpace(u.FullName)
	if u.Username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidUser)
	}
	if u.Role == "" {
		u.Role = auth.RolePatient
	}
	if !auth.ValidRole(u.Role) {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidUser, u.Role)
	}
	if u.Role != auth.RoleHospitalStaff && u.Role != auth.RoleLabTech {
		u.HospitalID = nil
	}
	if u.Role != auth.RolePatient {
		u.HospitrackID = ""
		return s.users.Create(ctx, u)
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		u.HospitrackID = NewHospitrackID()
		err := s.users.Create(ctx, u)
		if !errors.Is(err, errHospitrackIDTaken) {
			return err
		}
	}
	return fmt.Errorf("could not assign a unique hospitrack id after %d attempts", maxIDAttempts)
}

func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.users.GetByUsername(ctx, username)
}

func (s *Service) GetByHospitrackID(ctx context.Context, hospitrackID string) (*User, error) {
	return s.users.GetByHospitrackID(ctx, strings.ToUpper(strings.TrimSpace(hospitrackID)))
}

// PatientCards resolves display fields for the given user ids. Unknown ids
// and ids of non-patient accounts are absent from the result.
func (s *Service) PatientCards(ctx context.Context, ids []int64) (map[int64]PatientCard, error) {
	return s.users.Cards(ctx, ids)
}

// NewHospitrackID returns "HT-" followed by six upper-case alphanumerics.
func NewHospitrackID() string {
	raw := uuid.New()
	var b strings.Builder
	b.WriteString(hospitrackPrefix)
	for i := 0; i < hospitrackIDLength; i++ {
		b.WriteByte(hospitrackAlphabet[int(raw[i])%len(hospitrackAlphabet)])
	}
	return b.String()
}

// DisplayName prefers the full name and falls back to the username.
func (c PatientCard) DisplayName() string {
	if c.FullName != "" {
		return c.FullName
	}
	return c.Username
}
