package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return r.err
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestNew(t *testing.T) {
	evt, err := New(ReservationReserved, map[string]interface{}{"reservation_id": 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.ID == "" {
		t.Error("expected event id")
	}
	if evt.Type != ReservationReserved {
		t.Errorf("expected type %s, got %s", ReservationReserved, evt.Type)
	}
	var payload map[string]int
	if err := json.Unmarshal(evt.Payload, &payload); err != nil || payload["reservation_id"] != 7 {
		t.Errorf("unexpected payload %s", evt.Payload)
	}
}

func TestNew_UnmarshalablePayload(t *testing.T) {
	if _, err := New(ReservationReserved, make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
}

func TestMulti_PublishesToAll(t *testing.T) {
	a := &recordingPublisher{}
	b := &recordingPublisher{err: errors.New("down")}
	c := &recordingPublisher{}

	evt, _ := New(AppointmentBooked, nil)
	err := Multi{a, b, c}.Publish(context.Background(), evt)
	if err == nil {
		t.Error("expected joined error from failing sink")
	}
	if a.count() != 1 || b.count() != 1 || c.count() != 1 {
		t.Error("expected every sink to receive the event")
	}
}

func TestNop(t *testing.T) {
	if err := (Nop{}).Publish(context.Background(), Event{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDispatcher_DeliversAndFlushes(t *testing.T) {
	sink := &recordingPublisher{}
	d := NewDispatcher(sink, 16, zerolog.Nop(), nil)

	for i := 0; i < 5; i++ {
		evt, _ := New(ReservationReleased, i)
		if err := d.Publish(context.Background(), evt); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	cancel()

	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	if sink.count() != 5 {
		t.Errorf("expected 5 delivered events, got %d", sink.count())
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	sink := &recordingPublisher{}
	d := NewDispatcher(sink, 1, zerolog.Nop(), nil)

	evt, _ := New(ReservationReleased, nil)
	_ = d.Publish(context.Background(), evt)
	if err := d.Publish(context.Background(), evt); err != nil {
		t.Errorf("full queue must not surface an error, got %v", err)
	}
	if len(d.queue) != 1 {
		t.Errorf("expected queue length 1, got %d", len(d.queue))
	}
}

func TestDispatcher_SinkErrorsAreSwallowed(t *testing.T) {
	sink := &recordingPublisher{err: errors.New("boom")}
	d := NewDispatcher(sink, 4, zerolog.Nop(), nil)
	evt, _ := New(ReservationReleased, nil)
	_ = d.Publish(context.Background(), evt)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	if sink.count() != 1 {
		t.Errorf("expected delivery attempt, got %d", sink.count())
	}
}
