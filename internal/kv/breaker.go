package kv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// BreakerState represents the current state of the circuit breaker
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

// Breaker wraps a Store with circuit breaker protection so a struggling
// backend is not hammered by every store action.
type Breaker struct {
	inner  Store
	logger *logrus.Logger

	mu              sync.RWMutex
	state           BreakerState
	failureCount    int
	successCount    int
	lastFailureTime time.Time

	maxFailures       int           // Open circuit after N consecutive failures
	resetTimeout      time.Duration // Wait before trying half-open
	halfOpenSuccesses int           // Required successes to close circuit
}

// NewBreaker wraps a store with default breaker thresholds.
func NewBreaker(inner Store, logger *logrus.Logger) *Breaker {
	return &Breaker{
		inner:             inner,
		logger:            logger,
		state:             StateClosed,
		maxFailures:       5,
		resetTimeout:      10 * time.Second,
		halfOpenSuccesses: 3,
	}
}

func (b *Breaker) Get(ctx context.Context, key string) (string, error) {
	var val string
	err := b.execute(func() error {
		var err error
		val, err = b.inner.Get(ctx, key)
		return err
	})
	return val, err
}

func (b *Breaker) Set(ctx context.Context, key, value string) error {
	return b.execute(func() error {
		return b.inner.Set(ctx, key, value)
	})
}

func (b *Breaker) SetTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.execute(func() error {
		return b.inner.SetTTL(ctx, key, value, ttl)
	})
}

func (b *Breaker) Delete(ctx context.Context, key string) error {
	return b.execute(func() error {
		return b.inner.Delete(ctx, key)
	})
}

func (b *Breaker) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	err := b.execute(func() error {
		var err error
		keys, err = b.inner.Keys(ctx, pattern)
		return err
	})
	return keys, err
}

func (b *Breaker) Ping(ctx context.Context) error {
	return b.inner.Ping(ctx)
}

func (b *Breaker) Close() error {
	return b.inner.Close()
}

// execute runs a store operation with circuit breaker protection
func (b *Breaker) execute(fn func() error) error {
	b.mu.RLock()
	state := b.state
	b.mu.RUnlock()

	if state == StateOpen {
		b.mu.Lock()
		if time.Since(b.lastFailureTime) > b.resetTimeout {
			b.state = StateHalfOpen
			b.successCount = 0
			b.logger.Info("Storage circuit breaker: OPEN -> HALF_OPEN (retry attempt)")
			b.mu.Unlock()
		} else {
			b.mu.Unlock()
			return fmt.Errorf("storage circuit breaker is OPEN, refusing call")
		}
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	// A key miss and quota pressure are healthy backend answers; only real
	// backend failures trip the breaker.
	if err != nil && !IsNotFound(err) && !IsQuotaExceeded(err) {
		b.onFailure(err)
		return err
	}

	b.onSuccess()
	return err
}

func (b *Breaker) onFailure(err error) {
	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.maxFailures {
			b.state = StateOpen
			b.logger.WithFields(logrus.Fields{
				"failure_count": b.failureCount,
				"error":         err.Error(),
			}).Error("Storage circuit breaker: CLOSED -> OPEN")
		}

	case StateHalfOpen:
		b.state = StateOpen
		b.failureCount = 0
		b.logger.WithError(err).Error("Storage circuit breaker: HALF_OPEN -> OPEN")
	}
}

func (b *Breaker) onSuccess() {
	b.successCount++

	switch b.state {
	case StateClosed:
		if b.failureCount > 0 {
			b.failureCount = 0
		}

	case StateHalfOpen:
		if b.successCount >= b.halfOpenSuccesses {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
			b.logger.Info("Storage circuit breaker: HALF_OPEN -> CLOSED (storage recovered)")
		}
	}
}

// State returns the current circuit breaker state
func (b *Breaker) State() BreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Stats returns current circuit breaker statistics
func (b *Breaker) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stateStr := "CLOSED"
	switch b.state {
	case StateOpen:
		stateStr = "OPEN"
	case StateHalfOpen:
		stateStr = "HALF_OPEN"
	}

	return map[string]interface{}{
		"state":         stateStr,
		"failure_count": b.failureCount,
		"success_count": b.successCount,
		"max_failures":  b.maxFailures,
		"last_failure":  b.lastFailureTime,
		"reset_timeout": b.resetTimeout.String(),
	}
}
