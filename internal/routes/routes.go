package routes

import (
	"time"

	"github.com/dancefloor/competition-api/internal/competition"
	"github.com/dancefloor/competition-api/internal/config"
	"github.com/dancefloor/competition-api/internal/guard"
	"github.com/dancefloor/competition-api/internal/metrics"
	"github.com/dancefloor/competition-api/internal/middleware"
	"github.com/dancefloor/competition-api/internal/models"
	"github.com/dancefloor/competition-api/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Setup configures all API routes
func Setup(app *fiber.App, cfg *config.Config, logger *logrus.Logger, middlewareManager *middleware.Manager, sessions *session.Store, competitions *competition.Store) {
	// Create route handlers
	authHandler := NewAuthHandler(sessions, middlewareManager.Store, middlewareManager.Auth, &cfg.JWT, logger)
	competitionHandler := NewCompetitionHandler(competitions, logger)
	pageHandler := NewPageHandler(sessions)
	adminHandler := NewAdminHandler(sessions, competitions, middlewareManager.Store, logger)

	// Health check endpoints (no auth required)
	app.Get("/healthz", healthCheck)
	app.Get("/readyz", readinessCheck(middlewareManager))
	app.Get("/version", versionHandler)

	// Metrics endpoint (no auth required)
	app.Get(cfg.Observability.MetricsPath, metrics.PrometheusHandler())

	// Page routes behind the role guard. The guard only runs on page path
	// prefixes so API traffic is never redirected.
	guardMiddleware := guard.Middleware(sessions, logger)
	app.Use(guard.PathLogin, guardMiddleware)
	app.Use(guard.PathRegister, guardMiddleware)
	app.Use(session.PathDashboard, guardMiddleware)
	app.Get(guard.PathLogin, pageHandler.LoginPage)
	app.Get(guard.PathRegister, pageHandler.RegisterPage)
	app.Get(session.PathDashboard, pageHandler.Dashboard)
	app.Get(session.PathDashboard+"/:role", pageHandler.Dashboard)

	// API routes with middleware
	api := app.Group("/api/v1")

	// Apply global middleware to API routes
	api.Use(metrics.HTTPMetricsMiddleware())
	api.Use(middlewareManager.ErrorLogger.Handle())
	api.Use(middlewareManager.RateLimit.Handle())

	// Auth routes (public endpoints - no auth required)
	authRoutes := api.Group("/auth")
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/refresh", authHandler.Refresh)
	authRoutes.Post("/logout", authHandler.Logout)

	// Protected routes (require authentication)
	protected := api.Group("")
	protected.Use(middlewareManager.Auth.Authenticate())

	protected.Get("/auth/me", authHandler.Me)

	// Competition routes. Creation and registration are retry-safe behind
	// the idempotency middleware.
	competitionRoutes := protected.Group("/competitions")
	competitionRoutes.Use(middlewareManager.Idempotency.Handle())
	competitionRoutes.Use(middlewareManager.Idempotency.ResponseCapture())
	competitionRoutes.Get("/", competitionHandler.List)
	competitionRoutes.Get("/mine", middlewareManager.Auth.RequireRole(models.RoleOrganizer, models.RoleAdmin), competitionHandler.ListMine)
	competitionRoutes.Get("/:id", competitionHandler.Get)
	competitionRoutes.Post("/", middlewareManager.Auth.RequireRole(models.RoleOrganizer, models.RoleAdmin), competitionHandler.Create)
	competitionRoutes.Patch("/:id", middlewareManager.Auth.RequireRole(models.RoleOrganizer, models.RoleAdmin), competitionHandler.Update)
	competitionRoutes.Delete("/:id", middlewareManager.Auth.RequireRole(models.RoleOrganizer, models.RoleAdmin), competitionHandler.Delete)
	competitionRoutes.Post("/:id/registrations", competitionHandler.Register)

	// Admin routes
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(middlewareManager.Auth.RequireRole(models.RoleAdmin))
	adminRoutes.Get("/stats", adminHandler.Stats)
	adminRoutes.Post("/flush-transient", adminHandler.FlushTransientKeys)

	// 404 handler
	app.Use(notFoundHandler)
}

// healthCheck returns the health status of the service
// @Summary Health check
// @Description Check if the service is healthy
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{} "Healthy"
// @Router /healthz [get]
func healthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "competition-api",
	})
}

// readinessCheck checks if the service is ready to accept traffic
// @Summary Readiness check
// @Description Check if the service is ready to accept traffic
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{} "Ready"
// @Failure 503 {object} map[string]interface{} "Not ready"
// @Router /readyz [get]
func readinessCheck(middlewareManager *middleware.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := middlewareManager.Store.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":    "not ready",
				"reason":    "storage unavailable",
				"error":     err.Error(),
				"timestamp": time.Now().UTC(),
			})
		}

		return c.JSON(fiber.Map{
			"status":    "ready",
			"timestamp": time.Now().UTC(),
			"service":   "competition-api",
		})
	}
}

// versionHandler returns version information
// @Summary Version information
// @Description Get service version and build information
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{} "Version info"
// @Router /version [get]
func versionHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "competition-api",
		"version": getVersion(),
		"commit":  getCommit(),
		"built":   getBuildTime(),
	})
}

// notFoundHandler handles 404 errors
func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": fiber.Map{
			"code":     "NOT_FOUND",
			"message":  "The requested resource was not found",
			"path":     c.Path(),
			"trace_id": c.Get("X-Request-ID"),
		},
	})
}

// Helper functions for version info
func getVersion() string {
	// This would typically be set during build
	return "dev"
}

func getCommit() string {
	// This would typically be set during build
	return "unknown"
}

func getBuildTime() string {
	// This would typically be set during build
	return "unknown"
}
