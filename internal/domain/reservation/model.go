// Package reservation owns the bed-hold lifecycle: the Coordinator performs
// every inventory-affecting transition and the Ledger serves reads.
package reservation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	StatusReserved  = "Reserved"
	StatusConfirmed = "Confirmed"
	StatusCancelled = "Cancelled"
	StatusRejected  = "Rejected"
	StatusCompleted = "Completed"

	DefaultAddress = "Not Provided"
	DefaultUrgency = "Normal"
)

var (
	ErrNotFound          = errors.New("reservation not found")
	ErrNoCapacity        = errors.New("bed no longer available")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyReleased   = fmt.Errorf("reservation already released: %w", ErrInvalidTransition)
	// ErrNotReserved is returned by Expire once a hold has moved past Reserved.
	ErrNotReserved       = fmt.Errorf("reservation no longer reserved: %w", ErrInvalidTransition)
	ErrInvalidStatus     = errors.New("invalid reservation status")
	ErrInvalidRequest    = errors.New("invalid reservation request")
	ErrContention        = errors.New("inventory row busy, retry")
)

type Reservation struct {
	ID         int64     `json:"id"`
	PatientID  int64     `json:"patient_id"`
	HospitalID int64     `json:"hospital_id"`
	BedType    string    `json:"bed_type"`
	Status     string    `json:"status"`
	Address    string    `json:"address"`
	Urgency    string    `json:"urgency"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// View is a reservation joined with display fields. The hospital view fills
// the patient fields and the patient view fills HospitalName.
type View struct {
	*Reservation
	PatientName    string `json:"patient_name,omitempty"`
	PatientContact string `json:"patient_contact,omitempty"`
	PatientUID     string `json:"patient_uid,omitempty"`
	HospitalName   string `json:"hospital_name,omitempty"`
}

type ReserveRequest struct {
	PatientID  int64  `json:"patient_id"`
	HospitalID int64  `json:"hospital_id"`
	BedType    string `json:"bed_type"`
	Address    string `json:"address"`
	Urgency    string `json:"urgency"`
}

func (r *ReserveRequest) normalize() error {
	r.BedType = strings.TrimSpace(r.BedType)
	r.Address = strings.TrimSpace(r.Address)
	r.Urgency = strings.TrimSpace(r.Urgency)
	switch {
	case r.PatientID <= 0:
		return fmt.Errorf("%w: patient_id is required", ErrInvalidRequest)
	case r.HospitalID <= 0:
		return fmt.Errorf("%w: hospital_id is required", ErrInvalidRequest)
	case r.BedType == "":
		return fmt.Errorf("%w: bed_type is required", ErrInvalidRequest)
	}
	if r.Address == "" {
		r.Address = DefaultAddress
	}
	if r.Urgency == "" {
		r.Urgency = DefaultUrgency
	}
	return nil
}

func ValidStatus(s string) bool {
	switch s {
	case StatusReserved, StatusConfirmed, StatusCancelled, StatusRejected, StatusCompleted:
		return true
	}
	return false
}

// holdsUnit reports whether a reservation in status s may still give its unit
// back. Only these statuses can be released or moved forward.
func holdsUnit(s string) bool {
	return s == StatusReserved || s == StatusConfirmed
}

// checkRelease decides whether a reservation currently in status may be
// released. reservedOnly narrows it to holds nobody has confirmed yet.
func checkRelease(id int64, status string, reservedOnly bool) error {
	switch {
	case !holdsUnit(status):
		return fmt.Errorf("reservation %d is %s: %w", id, status, ErrAlreadyReleased)
	case reservedOnly && status != StatusReserved:
		return fmt.Errorf("reservation %d is %s: %w", id, status, ErrNotReserved)
	}
	return nil
}

func isRelease(s string) bool {
	return s == StatusCancelled || s == StatusRejected
}

func isProgress(s string) bool {
	return s == StatusConfirmed || s == StatusCompleted
}

// Drift names the way a release disagreed with the inventory row.
type Drift string

const (
	DriftNone       Drift = ""
	DriftRowMissing Drift = "row_missing"
	DriftRowFull    Drift = "row_full"
)
