package lockout

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "ballotbox/pkg/domainerrors"
)

func newTestService(t *testing.T, max int64) (*Service, *InMemoryStore) {
	t.Helper()
	st := NewInMemoryStore()
	svc, err := New(st, max, time.Minute, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return svc, st
}

func TestNew(t *testing.T) {
	_, err := New(nil, 0, 0, slog.New(slog.DiscardHandler))
	assert.Error(t, err)

	svc, err := New(NewInMemoryStore(), 0, 0, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.EqualValues(t, 10, svc.maxFailures, "defaults apply when zero")
	assert.Equal(t, 15*time.Minute, svc.window)
}

func TestCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("allows until the budget is spent", func(t *testing.T) {
		svc, _ := newTestService(t, 3)

		for i := 0; i < 2; i++ {
			svc.RecordFailure(ctx, "AB12CD34")
			assert.NoError(t, svc.Check(ctx, "AB12CD34"))
		}

		svc.RecordFailure(ctx, "AB12CD34")
		err := svc.Check(ctx, "AB12CD34")
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeTooManyRequests))
	})

	t.Run("voter IDs are normalized before counting", func(t *testing.T) {
		svc, _ := newTestService(t, 2)

		svc.RecordFailure(ctx, "ab12cd34")
		svc.RecordFailure(ctx, " AB12CD34 ")

		err := svc.Check(ctx, "Ab12Cd34")
		assert.True(t, dErrors.Is(err, dErrors.CodeTooManyRequests))
	})

	t.Run("counters are per voter ID", func(t *testing.T) {
		svc, _ := newTestService(t, 1)

		svc.RecordFailure(ctx, "AAAA1111")
		assert.Error(t, svc.Check(ctx, "AAAA1111"))
		assert.NoError(t, svc.Check(ctx, "BBBB2222"))
	})

	t.Run("reset clears the counter", func(t *testing.T) {
		svc, _ := newTestService(t, 1)

		svc.RecordFailure(ctx, "AB12CD34")
		require.Error(t, svc.Check(ctx, "AB12CD34"))

		svc.Reset(ctx, "AB12CD34")
		assert.NoError(t, svc.Check(ctx, "AB12CD34"))
	})

	t.Run("fails open when the store is down", func(t *testing.T) {
		svc, err := New(failingStore{}, 1, time.Minute, slog.New(slog.DiscardHandler))
		require.NoError(t, err)
		assert.NoError(t, svc.Check(ctx, "AB12CD34"))
	})
}

func TestInMemoryStoreWindowExpiry(t *testing.T) {
	ctx := context.Background()
	st := NewInMemoryStore()

	count, err := st.Incr(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	time.Sleep(20 * time.Millisecond)

	count, err = st.Count(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, count, "expired windows read as zero")

	count, err = st.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "a new window starts fresh")
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("store down")
}
func (failingStore) Count(context.Context, string) (int64, error) {
	return 0, errors.New("store down")
}
func (failingStore) Reset(context.Context, string) error {
	return errors.New("store down")
}
