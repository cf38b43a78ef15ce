package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hospitrack/hospitrack/internal/domain/identity"
	"github.com/hospitrack/hospitrack/internal/platform/events"
	"github.com/hospitrack/hospitrack/internal/platform/metrics"
)

// PatientDirectory resolves patient display fields.
type PatientDirectory interface {
	PatientCards(ctx context.Context, ids []int64) (map[int64]identity.PatientCard, error)
}

// HospitalDirectory resolves hospital names.
type HospitalDirectory interface {
	HospitalNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

// Coordinator is the only writer of reservation status and of the inventory
// counts a reservation holds.
type Coordinator struct {
	store    Store
	patients PatientDirectory
	events   events.Publisher
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewCoordinator wires the coordinator. patients may be nil to skip the
// patient existence check; pub may be nil to disable events.
func NewCoordinator(store Store, patients PatientDirectory, pub events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *Coordinator {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Coordinator{store: store, patients: patients, events: pub, metrics: m, logger: logger}
}

type reservationEvent struct {
	ReservationID  int64  `json:"reservation_id"`
	PatientID      int64  `json:"patient_id"`
	HospitalID     int64  `json:"hospital_id"`
	BedType        string `json:"bed_type"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	Urgency        string `json:"urgency,omitempty"`
}

// TryReserve holds one unit of (hospital, bed_type) for the patient.
func (c *Coordinator) TryReserve(ctx context.Context, req ReserveRequest) (*Reservation, error) {
	if err := req.normalize(); err != nil {
		c.metrics.ObserveReservation("invalid")
		return nil, err
	}
	if c.patients != nil {
		cards, err := c.patients.PatientCards(ctx, []int64{req.PatientID})
		if err != nil {
			return nil, fmt.Errorf("looking up patient: %w", err)
		}
		if _, ok := cards[req.PatientID]; !ok {
			c.metrics.ObserveReservation("not_found")
			return nil, fmt.Errorf("patient %d: %w", req.PatientID, ErrNotFound)
		}
	}

	r, err := c.store.Reserve(ctx, req)
	if err != nil {
		c.metrics.ObserveReservation(outcome(err))
		if errors.Is(err, ErrContention) {
			c.logger.Warn().Err(err).Int64("hospital_id", req.HospitalID).Str("bed_type", req.BedType).Msg("reserve hit lock contention")
		}
		return nil, err
	}
	c.metrics.ObserveReservation("reserved")
	c.logger.Info().
		Int64("reservation_id", r.ID).
		Int64("patient_id", r.PatientID).
		Int64("hospital_id", r.HospitalID).
		Str("bed_type", r.BedType).
		Str("urgency", r.Urgency).
		Msg("bed reserved")
	c.publish(ctx, events.ReservationReserved, reservationEvent{
		ReservationID: r.ID, PatientID: r.PatientID, HospitalID: r.HospitalID,
		BedType: r.BedType, Status: r.Status, Urgency: r.Urgency,
	})
	return r, nil
}

// ReleaseHold cancels or rejects an active reservation and returns its unit.
// A second release of the same reservation fails with ErrAlreadyReleased and
// leaves the inventory untouched.
func (c *Coordinator) ReleaseHold(ctx context.Context, id int64, to string) (*Reservation, error) {
	if !isRelease(to) {
		return nil, fmt.Errorf("%w: %q is not a release status", ErrInvalidStatus, to)
	}
	r, drift, err := c.store.Release(ctx, id, to)
	return c.released(ctx, r, drift, err)
}

// ExpireHold cancels a hold that is still Reserved. Holds confirmed in the
// meantime fail with ErrNotReserved and keep their unit.
func (c *Coordinator) ExpireHold(ctx context.Context, id int64) (*Reservation, error) {
	r, drift, err := c.store.Expire(ctx, id)
	return c.released(ctx, r, drift, err)
}

func (c *Coordinator) released(ctx context.Context, r *Reservation, drift Drift, err error) (*Reservation, error) {
	if err != nil {
		c.metrics.ObserveRelease(outcome(err))
		return nil, err
	}
	c.metrics.ObserveRelease("released")
	c.metrics.ObserveTransition(r.Status)
	if drift != DriftNone {
		c.metrics.ObserveInventoryDrift(string(drift))
		c.logger.Warn().
			Int64("reservation_id", r.ID).
			Int64("hospital_id", r.HospitalID).
			Str("bed_type", r.BedType).
			Str("drift", string(drift)).
			Msg("released reservation could not return its unit, inventory edited outside the coordinator")
	}
	c.publish(ctx, events.ReservationReleased, reservationEvent{
		ReservationID: r.ID, PatientID: r.PatientID, HospitalID: r.HospitalID,
		BedType: r.BedType, Status: r.Status,
	})
	return r, nil
}

// ConfirmOrComplete moves an active reservation forward without touching
// inventory. Confirming a confirmed reservation succeeds without an event.
func (c *Coordinator) ConfirmOrComplete(ctx context.Context, id int64, to string) (*Reservation, error) {
	if !isProgress(to) {
		return nil, fmt.Errorf("%w: %q is not a confirm or complete status", ErrInvalidStatus, to)
	}
	r, prev, err := c.store.Transition(ctx, id, to)
	if err != nil {
		return nil, err
	}
	if prev == to {
		return r, nil
	}
	c.metrics.ObserveTransition(to)
	c.publish(ctx, events.ReservationStatusChanged, reservationEvent{
		ReservationID: r.ID, PatientID: r.PatientID, HospitalID: r.HospitalID,
		BedType: r.BedType, Status: r.Status, PreviousStatus: prev,
	})
	return r, nil
}

// UpdateStatus routes a requested status to the matching operation.
func (c *Coordinator) UpdateStatus(ctx context.Context, id int64, status string) (*Reservation, error) {
	switch {
	case isRelease(status):
		return c.ReleaseHold(ctx, id, status)
	case isProgress(status):
		return c.ConfirmOrComplete(ctx, id, status)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
}

func (c *Coordinator) publish(ctx context.Context, eventType string, payload reservationEvent) {
	evt, err := events.New(eventType, payload)
	if err == nil {
		err = c.events.Publish(ctx, evt)
	}
	if err != nil {
		c.metrics.ObserveEventFailure("reservation")
		c.logger.Warn().Err(err).Str("event_type", eventType).Int64("reservation_id", payload.ReservationID).Msg("publishing reservation event")
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrNoCapacity):
		return "no_capacity"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyReleased):
		return "already_released"
	case errors.Is(err, ErrNotReserved):
		return "not_reserved"
	case errors.Is(err, ErrContention):
		return "contention"
	default:
		return "error"
	}
}
