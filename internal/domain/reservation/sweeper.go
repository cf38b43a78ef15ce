package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/hospitrack/hospitrack/internal/platform/metrics"
)

const sweepBatch = 100

// Sweeper cancels Reserved holds older than ttl through
// Coordinator.ExpireHold, so a hold confirmed after listing is left alone.
type Sweeper struct {
	coord    *Coordinator
	store    Store
	ttl      time.Duration
	interval time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewSweeper(coord *Coordinator, store Store, ttl, interval time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		coord:    coord,
		store:    store,
		ttl:      ttl,
		interval: interval,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info().Dur("ttl", s.ttl).Dur("interval", s.interval).Msg("hold sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("hold sweeper stopped")
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Int("released", n).Msg("sweeping stale holds")
			}
		}
	}
}

// Sweep releases one pass of stale holds and reports how many it cancelled.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ttl)
	released := 0
	for {
		stale, err := s.store.ListStaleReserved(ctx, cutoff, sweepBatch)
		if err != nil {
			return released, err
		}
		progressed := false
		for _, r := range stale {
			_, err := s.coord.ExpireHold(ctx, r.ID)
			switch {
			case err == nil:
				released++
				progressed = true
				s.metrics.ObserveSweptHold()
				s.logger.Info().Int64("reservation_id", r.ID).Time("created_at", r.CreatedAt).Msg("expired hold released")
			case errors.Is(err, ErrAlreadyReleased), errors.Is(err, ErrNotReserved):
				progressed = true
			case errors.Is(err, ErrContention):
				s.logger.Warn().Err(err).Int64("reservation_id", r.ID).Msg("hold busy, retrying next sweep")
			default:
				return released, err
			}
		}
		if len(stale) < sweepBatch || !progressed {
			return released, nil
		}
	}
}
