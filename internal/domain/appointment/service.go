package appointment

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospitrack/hospitrack/internal/domain/identity"
	"github.com/hospitrack/hospitrack/internal/platform/events"
	"github.com/hospitrack/hospitrack/internal/platform/metrics"
	"github.com/hospitrack/hospitrack/pkg/pagination"
)

const maxNumberAttempts = 5

var dateLayouts = []string{"2006-01-02", "2006-01-02T15:04", "2006-01-02 15:04", time.RFC3339}

type PatientDirectory interface {
	PatientCards(ctx context.Context, ids []int64) (map[int64]identity.PatientCard, error)
}

type HospitalDirectory interface {
	HospitalNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

type Service struct {
	repo      Repository
	patients  PatientDirectory
	hospitals HospitalDirectory
	events    events.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewService wires the scheduler. The directories are used both to reject
// bookings for unknown patients or hospitals and to decorate list views;
// either may be nil.
func NewService(repo Repository, patients PatientDirectory, hospitals HospitalDirectory, pub events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{repo: repo, patients: patients, hospitals: hospitals, events: pub, metrics: m, logger: logger}
}

type BookRequest struct {
	PatientID  int64
	HospitalID int64
	DoctorName string
	Date       string
}

func (r *BookRequest) validate() error {
	r.DoctorName = strings.TrimSpace(r.DoctorName)
	r.Date = strings.TrimSpace(r.Date)
	switch {
	case r.PatientID <= 0:
		return fmt.Errorf("%w: patient_id is required", ErrInvalidAppointment)
	case r.HospitalID <= 0:
		return fmt.Errorf("%w: hospital_id is required", ErrInvalidAppointment)
	case r.DoctorName == "":
		return fmt.Errorf("%w: doctor_name is required", ErrInvalidAppointment)
	case r.Date == "":
		return fmt.Errorf("%w: date is required", ErrInvalidAppointment)
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, r.Date); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: date %q is not an ISO date", ErrInvalidAppointment, r.Date)
}

// NewNumber returns "APT-" followed by eight upper-case hex digits.
func NewNumber() string {
	u := uuid.New()
	return numberPrefix + strings.ToUpper(hex.EncodeToString(u[:4]))
}

// Book records a Pending appointment. There is no capacity limit.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := s.checkParties(ctx, req.PatientID, req.HospitalID); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:  req.PatientID,
		HospitalID: req.HospitalID,
		DoctorName: req.DoctorName,
		Date:       req.Date,
		Status:     StatusPending,
	}
	var err error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		a.AppointmentNo = NewNumber()
		if err = s.repo.Create(ctx, a); !errors.Is(err, errNumberTaken) {
			break
		}
		s.logger.Warn().Str("appointment_no", a.AppointmentNo).Msg("appointment number collision, drawing another")
	}
	if errors.Is(err, errNumberTaken) {
		return nil, fmt.Errorf("could not issue a unique appointment number after %d attempts", maxNumberAttempts)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveAppointment("booked")
	s.logger.Info().
		Int64("appointment_id", a.ID).
		Str("appointment_no", a.AppointmentNo).
		Int64("hospital_id", a.HospitalID).
		Msg("appointment booked")
	s.publish(ctx, events.AppointmentBooked, a, "")
	return a, nil
}

func (s *Service) checkParties(ctx context.Context, patientID, hospitalID int64) error {
	if s.patients != nil {
		cards, err := s.patients.PatientCards(ctx, []int64{patientID})
		if err != nil {
			return err
		}
		if _, ok := cards[patientID]; !ok {
			return fmt.Errorf("%w: patient %d does not exist", ErrInvalidAppointment, patientID)
		}
	}
	if s.hospitals != nil {
		names, err := s.hospitals.HospitalNames(ctx, []int64{hospitalID})
		if err != nil {
			return err
		}
		if _, ok := names[hospitalID]; !ok {
			return fmt.Errorf("%w: hospital %d does not exist", ErrInvalidAppointment, hospitalID)
		}
	}
	return nil
}

// UpdateStatus writes any valid status regardless of the current one.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status string) (*Appointment, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	a, prev, err := s.repo.SetStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if prev != status {
		s.metrics.ObserveAppointment(strings.ToLower(status))
		s.publish(ctx, events.AppointmentStatusChanged, a, prev)
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByAppointmentNo is the lookup used when lab reports are filed against
// an appointment number.
func (s *Service) GetByAppointmentNo(ctx context.Context, no string) (*View, error) {
	a, err := s.repo.GetByNumber(ctx, strings.ToUpper(strings.TrimSpace(no)))
	if err != nil {
		return nil, err
	}
	views := []*View{{Appointment: a}}
	if err := s.withHospitals(ctx, views); err != nil {
		return nil, err
	}
	if err := s.withPatients(ctx, views); err != nil {
		return nil, err
	}
	return views[0], nil
}

// ListByPatient returns the patient's appointments, latest date first.
func (s *Service) ListByPatient(ctx context.Context, patientID int64, p pagination.Params) ([]*View, int, error) {
	items, total, err := s.repo.ListByPatient(ctx, patientID, p)
	if err != nil {
		return nil, 0, err
	}
	views := toViews(items)
	return views, total, s.withHospitals(ctx, views)
}

// ListByHospital returns the hospital's appointments, earliest date first.
func (s *Service) ListByHospital(ctx context.Context, hospitalID int64, p pagination.Params) ([]*View, int, error) {
	items, total, err := s.repo.ListByHospital(ctx, hospitalID, p)
	if err != nil {
		return nil, 0, err
	}
	views := toViews(items)
	return views, total, s.withPatients(ctx, views)
}

// PatientsServed counts every appointment booked at the hospital.
func (s *Service) PatientsServed(ctx context.Context, hospitalID int64) (int, error) {
	return s.repo.CountByHospital(ctx, hospitalID)
}

func toViews(items []*Appointment) []*View {
	views := make([]*View, len(items))
	for i, a := range items {
		views[i] = &View{Appointment: a}
	}
	return views
}

func (s *Service) withHospitals(ctx context.Context, views []*View) error {
	if s.hospitals == nil || len(views) == 0 {
		return nil
	}
	ids := make([]int64, len(views))
	for i, v := range views {
		ids[i] = v.HospitalID
	}
	names, err := s.hospitals.HospitalNames(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolving hospital names: %w", err)
	}
	for _, v := range views {
		v.HospitalName = names[v.HospitalID]
	}
	return nil
}

func (s *Service) withPatients(ctx context.Context, views []*View) error {
	if s.patients == nil || len(views) == 0 {
		return nil
	}
	ids := make([]int64, len(views))
	for i, v := range views {
		ids[i] = v.PatientID
	}
	cards, err := s.patients.PatientCards(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolving patients: %w", err)
	}
	for _, v := range views {
		if card, ok := cards[v.PatientID]; ok {
			v.PatientName = card.DisplayName()
			v.PatientContact = card.Username
		}
	}
	return nil
}

type appointmentEvent struct {
	AppointmentID  int64  `json:"appointment_id"`
	AppointmentNo  string `json:"appointment_no"`
	PatientID      int64  `json:"patient_id"`
	HospitalID     int64  `json:"hospital_id"`
	DoctorName     string `json:"doctor_name"`
	Date           string `json:"date"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
}

func (s *Service) publish(ctx context.Context, eventType string, a *Appointment, prev string) {
	evt, err := events.New(eventType, appointmentEvent{
		AppointmentID: a.ID, AppointmentNo: a.AppointmentNo,
		PatientID: a.PatientID, HospitalID: a.HospitalID,
		DoctorName: a.DoctorName, Date: a.Date,
		Status: a.Status, PreviousStatus: prev,
	})
	if err == nil {
		err = s.events.Publish(ctx, evt)
	}
	if err != nil {
		s.metrics.ObserveEventFailure("appointment")
		s.logger.Warn().Err(err).Str("event_type", eventType).Int64("appointment_id", a.ID).Msg("publishing appointment event")
	}
}
