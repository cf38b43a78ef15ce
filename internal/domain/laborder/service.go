package laborder

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospitrack/hospitrack/internal/domain/appointment"
	"github.com/hospitrack/hospitrack/internal/domain/identity"
	"github.com/hospitrack/hospitrack/internal/platform/events"
	"github.com/hospitrack/hospitrack/internal/platform/metrics"
	"github.com/hospitrack/hospitrack/pkg/pagination"
)

const maxNumberAttempts = 5

type PatientDirectory interface {
	PatientCards(ctx context.Context, ids []int64) (map[int64]identity.PatientCard, error)
}

type HospitalDirectory interface {
	HospitalNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

// AppointmentLookup resolves the appointment number a lab order may be
// filed against.
type AppointmentLookup interface {
	GetByAppointmentNo(ctx context.Context, no string) (*appointment.View, error)
}

type Service struct {
	repo         Repository
	patients     PatientDirectory
	hospitals    HospitalDirectory
	appointments AppointmentLookup
	events       events.Publisher
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	now          func() time.Time
}

// NewService wires the lab order desk. Any of the directories may be nil;
// without appointments, orders cannot be filed by appointment number.
func NewService(repo Repository, patients PatientDirectory, hospitals HospitalDirectory, appointments AppointmentLookup, pub events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		repo:         repo,
		patients:     patients,
		hospitals:    hospitals,
		appointments: appointments,
		events:       pub,
		metrics:      m,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

type CreateRequest struct {
	PatientID     int64
	HospitalID    int64
	AppointmentNo string
	DoctorName    string
	ReportType    string
	LabName       string
}

// NewLabOrderID returns "LAB-" followed by eight upper-case hex digits.
func NewLabOrderID() string {
	u := uuid.New()
	return numberPrefix + strings.ToUpper(hex.EncodeToString(u[:4]))
}

// Create issues a Pending order. When an appointment number is given the
// patient, hospital and doctor default to the appointment's.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	req.AppointmentNo = strings.ToUpper(strings.TrimSpace(req.AppointmentNo))
	req.DoctorName = strings.TrimSpace(req.DoctorName)
	req.ReportType = strings.TrimSpace(req.ReportType)
	req.LabName = strings.TrimSpace(req.LabName)
	if req.LabName == "" {
		req.LabName = DefaultLabName
	}
	if err := s.fromAppointment(ctx, &req); err != nil {
		return nil, err
	}
	if req.PatientID <= 0 {
		return nil, fmt.Errorf("%w: Patient ID required", ErrInvalidOrder)
	}
	if err := s.checkParties(ctx, req.PatientID, req.HospitalID); err != nil {
		return nil, err
	}

	now := s.now()
	o := &Order{
		PatientID:     req.PatientID,
		AppointmentNo: req.AppointmentNo,
		DoctorName:    req.DoctorName,
		ReportName:    req.ReportType,
		LabName:       req.LabName,
		Status:        StatusPending,
		DateUploaded:  now.Format(dateLayout),
	}
	if req.HospitalID > 0 {
		hid := req.HospitalID
		o.HospitalID = &hid
	}

	var err error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		o.LabOrderID = NewLabOrderID()
		if err = s.repo.Create(ctx, o); !errors.Is(err, errNumberTaken) {
			break
		}
		s.logger.Warn().Str("lab_order_id", o.LabOrderID).Msg("lab order id collision, drawing another")
	}
	if errors.Is(err, errNumberTaken) {
		return nil, fmt.Errorf("could not issue a unique lab order id after %d attempts", maxNumberAttempts)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveLabOrder("created")
	s.logger.Info().
		Str("lab_order_id", o.LabOrderID).
		Int64("patient_id", o.PatientID).
		Str("report_name", o.ReportName).
		Msg("lab order created")
	s.publish(ctx, events.LabOrderCreated, o)
	return o, nil
}

func (s *Service) fromAppointment(ctx context.Context, req *CreateRequest) error {
	if req.AppointmentNo == "" || s.appointments == nil {
		return nil
	}
	a, err := s.appointments.GetByAppointmentNo(ctx, req.AppointmentNo)
	if errors.Is(err, appointment.ErrNotFound) {
		return fmt.Errorf("%w: appointment %s does not exist", ErrInvalidOrder, req.AppointmentNo)
	}
	if err != nil {
		return err
	}
	switch {
	case req.PatientID == 0:
		req.PatientID = a.PatientID
	case req.PatientID != a.PatientID:
		return fmt.Errorf("%w: appointment %s belongs to another patient", ErrInvalidOrder, req.AppointmentNo)
	}
	if req.HospitalID == 0 {
		req.HospitalID = a.HospitalID
	}
	if req.DoctorName == "" {
		req.DoctorName = a.DoctorName
	}
	return nil
}

func (s *Service) checkParties(ctx context.Context, patientID, hospitalID int64) error {
	if s.patients != nil {
		cards, err := s.patients.PatientCards(ctx, []int64{patientID})
		if err != nil {
			return err
		}
		if _, ok := cards[patientID]; !ok {
			return fmt.Errorf("%w: patient %d does not exist", ErrInvalidOrder, patientID)
		}
	}
	if s.hospitals != nil && hospitalID > 0 {
		names, err := s.hospitals.HospitalNames(ctx, []int64{hospitalID})
		if err != nil {
			return err
		}
		if _, ok := names[hospitalID]; !ok {
			return fmt.Errorf("%w: hospital %d does not exist", ErrInvalidOrder, hospitalID)
		}
	}
	return nil
}

// Complete files the result for a Pending order. No report file is kept;
// the order only records that the result was delivered.
func (s *Service) Complete(ctx context.Context, labOrderID, appointmentNo string) (*Order, error) {
	labOrderID = strings.ToUpper(strings.TrimSpace(labOrderID))
	appointmentNo = strings.ToUpper(strings.TrimSpace(appointmentNo))
	o, err := s.repo.Complete(ctx, labOrderID, appointmentNo, s.now())
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveLabOrder("completed")
	s.logger.Info().Str("lab_order_id", o.LabOrderID).Int64("patient_id", o.PatientID).Msg("lab order completed")
	s.publish(ctx, events.LabOrderCompleted, o)
	return o, nil
}

func (s *Service) Get(ctx context.Context, labOrderID string) (*View, error) {
	o, err := s.repo.GetByLabOrderID(ctx, strings.ToUpper(strings.TrimSpace(labOrderID)))
	if err != nil {
		return nil, err
	}
	views := []*View{{Order: o}}
	return views[0], s.withPatients(ctx, views)
}

// List returns every order, newest first, joined with its patient.
func (s *Service) List(ctx context.Context, p pagination.Params) ([]*View, int, error) {
	items, total, err := s.repo.List(ctx, p)
	if err != nil {
		return nil, 0, err
	}
	views := toViews(items)
	return views, total, s.withPatients(ctx, views)
}

// ListByPatient returns one patient's reports, latest date first.
func (s *Service) ListByPatient(ctx context.Context, patientID int64, p pagination.Params) ([]*Order, int, error) {
	items, total, err := s.repo.ListByPatient(ctx, patientID, p)
	if items == nil {
		items = []*Order{}
	}
	return items, total, err
}

func toViews(items []*Order) []*View {
	views := make([]*View, len(items))
	for i, o := range items {
		views[i] = &View{Order: o}
	}
	return views
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
			v.PatientUID = card.HospitrackID
		}
	}
	return nil
}

type labOrderEvent struct {
	LabOrderID    string `json:"lab_order_id"`
	PatientID     int64  `json:"patient_id"`
	HospitalID    *int64 `json:"hospital_id,omitempty"`
	AppointmentNo string `json:"appointment_no,omitempty"`
	ReportName    string `json:"report_name,omitempty"`
	LabName       string `json:"lab_name"`
	Status        string `json:"status"`
}

func (s *Service) publish(ctx context.Context, eventType string, o *Order) {
	evt, err := events.New(eventType, labOrderEvent{
		LabOrderID: o.LabOrderID, PatientID: o.PatientID, HospitalID: o.HospitalID,
		AppointmentNo: o.AppointmentNo, ReportName: o.ReportName,
		LabName: o.LabName, Status: o.Status,
	})
	if err == nil {
		err = s.events.Publish(ctx, evt)
	}
	if err != nil {
		s.metrics.ObserveEventFailure("lab_order")
		s.logger.Warn().Err(err).Str("event_type", eventType).Str("lab_order_id", o.LabOrderID).Msg("publishing lab order event")
	}
}
