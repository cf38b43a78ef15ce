package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_ReleasesStaleHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.store.now = func() time.Time { return created }
	stale := f.reserve(t, "ICU")
	confirmed := f.reserve(t, "ICU")
	_, err := f.coord.ConfirmOrComplete(ctx, confirmed.ID, StatusConfirmed)
	require.NoError(t, err)

	f.store.now = func() time.Time { return created.Add(45 * time.Minute) }
	fresh := f.reserve(t, "ICU")
	assert.Equal(t, 2, f.available(t, "ICU"))

	sw := NewSweeper(f.coord, f.store, 30*time.Minute, time.Minute, f.metrics, zerolog.Nop())
	sw.now = func() time.Time { return created.Add(50 * time.Minute) }

	n, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, f.available(t, "ICU"))

	for id, want := range map[int64]string{
		stale.ID:     StatusCancelled,
		confirmed.ID: StatusConfirmed,
		fresh.ID:     StatusReserved,
	} {
		got, err := f.ledger.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, "reservation %d", id)
	}

	n, err = sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second sweep finds nothing")
	assert.Equal(t, 3, f.available(t, "ICU"))
	assert.Contains(t, f.exposition(t), `hospitrack_swept_holds_total 1`)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	sw := NewSweeper(f.coord, f.store, time.Minute, 5*time.Millisecond, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

// confirmingStore confirms every hold it lists, as if staff acted between
// the sweeper's listing and its release.
type confirmingStore struct {
	*MemStore
}

func (s confirmingStore) ListStaleReserved(ctx context.Context, cutoff time.Time, limit int) ([]*Reservation, error) {
	stale, err := s.MemStore.ListStaleReserved(ctx, cutoff, limit)
	if err != nil {
		return nil, err
	}
	for _, r := range stale {
		if _, _, err := s.MemStore.Transition(ctx, r.ID, StatusConfirmed); err != nil {
			return nil, err
		}
	}
	return stale, nil
}

func TestSweeper_SkipsHoldConfirmedAfterListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.store.now = func() time.Time { return created }
	r := f.reserve(t, "ICU")
	assert.Equal(t, 4, f.available(t, "ICU"))

	sw := NewSweeper(f.coord, confirmingStore{f.store}, 30*time.Minute, time.Minute, f.metrics, zerolog.Nop())
	sw.now = func() time.Time { return created.Add(time.Hour) }

	n, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := f.ledger.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, 4, f.available(t, "ICU"), "confirmed hold keeps its unit")
	assert.Contains(t, f.exposition(t), `hospitrack_bed_releases_total{result="not_reserved"} 1`)
}
