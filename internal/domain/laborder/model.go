package laborder

import (
	"errors"
	"time"
)

const (
	StatusPending   = "Pending"
	StatusCompleted = "Completed"

	DefaultLabName = "Central Lab"
	dateLayout     = "2006-01-02"
	numberPrefix   = "LAB-"
)

var (
	ErrNotFound         = errors.New("lab order not found")
	ErrInvalidOrder     = errors.New("invalid lab order")
	ErrAlreadyCompleted = errors.New("lab order already completed")

	errNumberTaken = errors.New("lab order id already issued")
)

// Order is one lab report slot. It is issued Pending and moves to Completed
// exactly once, when the lab files the result.
type Order struct {
	ID            int64      `json:"id"`
	LabOrderID    string     `json:"lab_order_id"`
	PatientID     int64      `json:"patient_id"`
	HospitalID    *int64     `json:"hospital_id,omitempty"`
	AppointmentNo string     `json:"appointment_no,omitempty"`
	DoctorName    string     `json:"doctor_name,omitempty"`
	ReportName    string     `json:"report_name,omitempty"`
	LabName       string     `json:"lab_name"`
	Status        string     `json:"status"`
	DateUploaded  string     `json:"date_uploaded"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// View joins an order with the patient's display name and HospiTrack id.
type View struct {
	*Order
	PatientName string `json:"patient_name,omitempty"`
	PatientUID  string `json:"patient_uid,omitempty"`
}
