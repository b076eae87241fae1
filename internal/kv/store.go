// Package kv provides the key-value persistence adapter used by the session
// and competition stores. Values are JSON strings under disjoint keys.
package kv

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Well-known keys of the persisted namespace.
const (
	KeyCurrentUser  = "user"         // redacted current user snapshot
	KeyUsers        = "users"        // full user directory
	KeyCompetitions = "competitions" // full competition collection
	RefreshPrefix   = "refreshtoken" // refreshtoken:<jti> allowlist entries
)

// ErrNotFound is returned when a key is absent.
var ErrNotFound = errors.New("kv: key not found")

// ErrQuotaExceeded is returned when the backing store refuses a write for
// lack of space.
var ErrQuotaExceeded = errors.New("kv: storage quota exceeded")

// Store is a synchronous string key-value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SetTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// IsNotFound reports whether the error means the key was absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsQuotaExceeded reports whether the error is a quota-exceeded condition.
// Redis signals this with an OOM error when maxmemory is reached.
func IsQuotaExceeded(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return true
	}
	return strings.Contains(err.Error(), "OOM command not allowed")
}
