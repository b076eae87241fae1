package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails every operation until healed.
type flakyStore struct {
	*Memory
	failing bool
}

var errBackendDown = errors.New("connection refused")

func (f *flakyStore) Get(ctx context.Context, key string) (string, error) {
	if f.failing {
		return "", errBackendDown
	}
	return f.Memory.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key, value string) error {
	if f.failing {
		return errBackendDown
	}
	return f.Memory.Set(ctx, key, value)
}

func newTestBreaker(inner Store) *Breaker {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewBreaker(inner, logger)
}

func TestBreaker_PassesThroughWhenHealthy(t *testing.T) {
	ctx := context.Background()
	b := newTestBreaker(NewMemory())

	require.NoError(t, b.Set(ctx, "users", "[]"))
	val, err := b.Get(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, "[]", val)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_MissesDoNotTrip(t *testing.T) {
	ctx := context.Background()
	b := newTestBreaker(NewMemory())

	for i := 0; i < 10; i++ {
		_, err := b.Get(ctx, "missing")
		assert.True(t, IsNotFound(err))
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_QuotaErrorsDoNotTrip(t *testing.T) {
	ctx := context.Background()
	b := newTestBreaker(NewMemoryWithQuota(1))

	for i := 0; i < 10; i++ {
		err := b.Set(ctx, "competitions", "too large for the quota")
		assert.True(t, IsQuotaExceeded(err), "the quota error must pass through")
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	inner := &flakyStore{Memory: NewMemory(), failing: true}
	b := newTestBreaker(inner)

	for i := 0; i < b.maxFailures; i++ {
		_, err := b.Get(ctx, "users")
		assert.ErrorIs(t, err, errBackendDown)
	}
	assert.Equal(t, StateOpen, b.State())

	// Open circuit refuses calls without touching the backend
	_, err := b.Get(ctx, "users")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errBackendDown)
	assert.Contains(t, err.Error(), "circuit breaker is OPEN")
}

func TestBreaker_RecoversThroughHalfOpen(t *testing.T) {
	ctx := context.Background()
	inner := &flakyStore{Memory: NewMemory(), failing: true}
	b := newTestBreaker(inner)
	b.resetTimeout = time.Millisecond

	for i := 0; i < b.maxFailures; i++ {
		_, _ = b.Get(ctx, "users")
	}
	require.Equal(t, StateOpen, b.State())

	inner.failing = false
	time.Sleep(5 * time.Millisecond)

	// Enough successes in half-open close the circuit again
	for i := 0; i < b.halfOpenSuccesses; i++ {
		require.NoError(t, b.Set(ctx, "users", "[]"))
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_Stats(t *testing.T) {
	b := newTestBreaker(NewMemory())

	stats := b.Stats()
	assert.Equal(t, "CLOSED", stats["state"])
	assert.Equal(t, 0, stats["failure_count"])
}
