package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hospitrack/hospitrack/internal/platform/metrics"
)

// Dispatcher decouples request handling from event delivery. Publish only
// enqueues; a single worker drains the queue into the wrapped sink. When the
// queue is full the event is dropped and counted.
type Dispatcher struct {
	sink    Publisher
	queue   chan Event
	logger  zerolog.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	once sync.Once
	done chan struct{}
}

func NewDispatcher(sink Publisher, size int, logger zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	if size <= 0 {
		size = 1024
	}
	return &Dispatcher{
		sink:    sink,
		queue:   make(chan Event, size),
		logger:  logger,
		metrics: m,
		timeout: 10 * time.Second,
		done:    make(chan struct{}),
	}
}

func (d *Dispatcher) Publish(_ context.Context, evt Event) error {
	select {
	case d.queue <- evt:
	default:
		d.metrics.ObserveEventFailure("queue_full")
		d.logger.Warn().Str("event_id", evt.ID).Str("event_type", evt.Type).Msg("event queue full, dropping event")
	}
	return nil
}

// Run delivers queued events until ctx is cancelled, then flushes what is
// left in the queue.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.once.Do(func() { close(d.done) })
	for {
		select {
		case evt := <-d.queue:
			d.deliver(evt)
		case <-ctx.Done():
			for {
				select {
				case evt := <-d.queue:
					d.deliver(evt)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) deliver(evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.sink.Publish(ctx, evt); err != nil {
		d.logger.Warn().Err(err).Str("event_id", evt.ID).Str("event_type", evt.Type).Msg("event delivery failed")
	}
}
