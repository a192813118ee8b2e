package sweeper

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ballotbox/internal/election"
	"ballotbox/internal/election/store"
	"ballotbox/internal/platform/metrics"
)

func seedElection(t *testing.T, st *store.InMemoryStore, endDate time.Time, status election.Status) *election.Election {
	t.Helper()
	now := endDate.Add(-2 * time.Hour)
	e, err := election.New(election.CreateInput{
		Title:       "Sweep Target",
		Description: "A test",
		Nominees:    []string{"A", "B"},
		Voters:      []election.VoterInput{{Name: "V", Email: "v@example.com"}},
		StartDate:   now.Add(time.Hour),
		EndDate:     endDate,
	}, "creator-1", now)
	require.NoError(t, err)
	e.Status = status
	require.NoError(t, st.Create(context.Background(), e))
	return e
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	st := store.NewInMemoryStore()
	expired := seedElection(t, st, now.Add(-time.Minute), election.StatusActive)
	expiredPending := seedElection(t, st, now.Add(-time.Minute), election.StatusPending)
	running := seedElection(t, st, now.Add(time.Hour), election.StatusActive)
	closed := seedElection(t, st, now.Add(-time.Minute), election.StatusClosed)

	sw := New(st, time.Minute, metrics.NewWith(prometheus.NewRegistry()), slog.New(slog.DiscardHandler),
		WithClock(func() time.Time { return now }),
	)

	count, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, id := range []*election.Election{expired, expiredPending} {
		got, err := st.FindByID(ctx, id.ID)
		require.NoError(t, err)
		assert.Equal(t, election.StatusCompleted, got.Status)
	}

	got, err := st.FindByID(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, election.StatusActive, got.Status, "running elections are untouched")

	got, err = st.FindByID(ctx, closed.ID)
	require.NoError(t, err)
	assert.Equal(t, election.StatusClosed, got.Status, "manual close is terminal")

	count, err = sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "second pass is a no-op")
}

func TestRunStopsOnCancel(t *testing.T) {
	st := store.NewInMemoryStore()
	sw := New(st, time.Millisecond, metrics.NewWith(prometheus.NewRegistry()), slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
