package routes

import (
	"github.com/dancefloor/competition-api/internal/competition"
	"github.com/dancefloor/competition-api/internal/kv"
	"github.com/dancefloor/competition-api/internal/middleware"
	"github.com/dancefloor/competition-api/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// AdminHandler handles admin-only endpoints
type AdminHandler struct {
	sessions     *session.Store
	competitions *competition.Store
	store        kv.Store
	logger       *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(sessions *session.Store, competitions *competition.Store, store kv.Store, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		sessions:     sessions,
		competitions: competitions,
		store:        store,
		logger:       logger,
	}
}

// Stats returns platform counters
// @Summary Platform statistics
// @Description Get user and competition counts plus storage health
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]interface{} "Stats"
// @Failure 403 {object} map[string]interface{} "Forbidden"
// @Router /admin/stats [get]
// @Security Bearer
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	registrations := 0
	for _, comp := range h.competitions.All() {
		registrations += len(comp.Registrations)
	}

	stats := fiber.Map{
		"users":         h.sessions.UserCount(),
		"competitions":  h.competitions.Count(),
		"registrations": registrations,
	}

	if breaker, ok := h.store.(*kv.Breaker); ok {
		stats["storage"] = breaker.Stats()
	}

	return c.JSON(stats)
}

// FlushTransientKeys deletes expiring operational keys. User and competition
// data is untouched; this only clears refresh tokens, idempotency records and
// rate limit counters.
// @Summary Flush transient keys
// @Description Delete refresh token, idempotency and rate limit keys
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]interface{} "Deleted key count"
// @Failure 403 {object} map[string]interface{} "Forbidden"
// @Router /admin/flush [post]
// @Security Bearer
func (h *AdminHandler) FlushTransientKeys(c *fiber.Ctx) error {
	patterns := []string{
		kv.RefreshPrefix + ":*",
		"idempotency:*",
		"ratelimit:*",
	}

	deleted := 0
	for _, pattern := range patterns {
		keys, err := h.store.Keys(c.Context(), pattern)
		if err != nil {
			h.logger.WithError(err).WithField("pattern", pattern).Error("Failed to scan keys")
			return internalError(c, "STORAGE_ERROR", "Failed to scan keys")
		}
		for _, key := range keys {
			if err := h.store.Delete(c.Context(), key); err != nil {
				h.logger.WithError(err).WithField("key", key).Warn("Failed to delete key")
				continue
			}
			deleted++
		}
	}

	h.logger.WithFields(logrus.Fields{
		"deleted": deleted,
		"by":      middleware.GetUserID(c),
	}).Info("Transient keys flushed")

	return c.JSON(fiber.Map{"deleted": deleted})
}
