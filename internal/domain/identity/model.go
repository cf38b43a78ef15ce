package identity

import (
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("user not found")
	ErrDuplicate   = errors.New("username already exists")
	ErrInvalidUser = errors.New("invalid user")

	// errHospitrackIDTaken is retried by the service with a fresh id.
	errHospitrackIDTaken = errors.New("hospitrack id already assigned")
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Role         string    `json:"role"`
	FullName     string    `json:"full_name"`
	HospitalID   *int64    `json:"hospital_id,omitempty"`
	HospitrackID string    `json:"hospitrack_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// PatientCard is the display projection joined into ledger and appointment
// views. Username doubles as the contact handle.
type PatientCard struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	FullName     string `json:"full_name"`
	HospitrackID string `json:"hospitrack_id,omitempty"`
}

func (u *User) Card() PatientCard {
	return PatientCard{ID: u.ID, Username: u.Username, FullName: u.FullName, HospitrackID: u.HospitrackID}
}
