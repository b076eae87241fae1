package routes

import (
	"github.com/dancefloor/competition-api/internal/guard"
	"github.com/dancefloor/competition-api/internal/session"

	"github.com/gofiber/fiber/v2"
)

// PageHandler serves the page endpoints that sit behind the route guard.
// The guard middleware has already decided access by the time these run, so
// each handler only describes the page for the client shell to render.
type PageHandler struct {
	sessions *session.Store
}

// NewPageHandler creates a new page handler
func NewPageHandler(sessions *session.Store) *PageHandler {
	return &PageHandler{sessions: sessions}
}

// LoginPage serves the login page descriptor
func (h *PageHandler) LoginPage(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"page": "login"})
}

// RegisterPage serves the registration page descriptor
func (h *PageHandler) RegisterPage(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"page": "register"})
}

// Dashboard serves the role-scoped dashboard the guard routed the user to
func (h *PageHandler) Dashboard(c *fiber.Ctx) error {
	user, ok := h.sessions.CurrentUser()
	if !ok {
		// The guard redirects unauthenticated requests before this runs
		return c.Redirect(guard.PathLogin, fiber.StatusFound)
	}

	return c.JSON(fiber.Map{
		"page": "dashboard",
		"path": c.Path(),
		"role": user.Role,
		"user": user,
	})
}
