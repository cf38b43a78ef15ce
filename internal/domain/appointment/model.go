package appointment

import (
	"errors"
	"time"
)

const (
	StatusPending   = "Pending"
	StatusConfirmed = "Confirmed"
	StatusCompleted = "Completed"
	StatusCancelled = "Cancelled"

	numberPrefix = "APT-"

	// PeakHours is reported by the analytics endpoint as a fixed window;
	// no per-hour booking histogram is kept.
	PeakHours = "10 AM - 2 PM"
)

var (
	ErrNotFound           = errors.New("appointment not found")
	ErrInvalidAppointment = errors.New("invalid appointment")
	ErrInvalidStatus      = errors.New("invalid appointment status")

	errNumberTaken = errors.New("appointment number already issued")
)

type Appointment struct {
	ID            int64     `json:"id"`
	PatientID     int64     `json:"patient_id"`
	HospitalID    int64     `json:"hospital_id"`
	DoctorName    string    `json:"doctor_name"`
	Date          string    `json:"date"`
	Status        string    `json:"status"`
	AppointmentNo string    `json:"appointment_no"`
	CreatedAt     time.Time `json:"created_at"`
}

// View adds display fields: HospitalName for patients, the patient fields
// for hospital staff.
type View struct {
	*Appointment
	HospitalName   string `json:"hospital_name,omitempty"`
	PatientName    string `json:"patient_name,omitempty"`
	PatientContact string `json:"patient_contact,omitempty"`
}

// ValidStatus accepts the four lifecycle values. Any of them may follow any
// other.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}
