package middleware

import (
	"fmt"

	"github.com/dancefloor/competition-api/internal/config"
	"github.com/dancefloor/competition-api/internal/kv"

	"github.com/sirupsen/logrus"
)

// Manager holds all middleware instances
type Manager struct {
	Auth        *AuthMiddleware
	Idempotency *IdempotencyMiddleware
	RateLimit   *RateLimitMiddleware
	ErrorLogger *ErrorLoggerMiddleware
	Store       kv.Store
	Config      *config.Config
	Logger      *logrus.Logger
}

// NewManager creates a new middleware manager with all middleware initialized.
// The key-value store is wrapped with a circuit breaker before anything else
// touches it.
func NewManager(cfg *config.Config, logger *logrus.Logger) (*Manager, error) {
	redisStore, err := kv.NewRedisStore(&cfg.Redis, &cfg.AWS, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis store: %w", err)
	}

	authMiddleware, err := NewAuthMiddleware(&cfg.JWT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth middleware: %w", err)
	}

	idempotencyMiddleware := NewIdempotencyMiddleware(redisStore.Client(), logger)
	rateLimitMiddleware := NewRateLimitMiddleware(&cfg.RateLimit, redisStore.Client(), logger)
	errorLoggerMiddleware := NewErrorLoggerMiddleware(logger)

	return &Manager{
		Auth:        authMiddleware,
		Idempotency: idempotencyMiddleware,
		RateLimit:   rateLimitMiddleware,
		ErrorLogger: errorLoggerMiddleware,
		Store:       kv.NewBreaker(redisStore, logger),
		Config:      cfg,
		Logger:      logger,
	}, nil
}

// Close closes all middleware resources
func (m *Manager) Close() error {
	if m.Store != nil {
		return m.Store.Close()
	}
	return nil
}
