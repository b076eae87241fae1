package routes

import (
	"github.com/dancefloor/competition-api/internal/competition"
	"github.com/dancefloor/competition-api/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// CompetitionHandler handles competition endpoints
type CompetitionHandler struct {
	store  *competition.Store
	logger *logrus.Logger
}

// NewCompetitionHandler creates a new competition handler
func NewCompetitionHandler(store *competition.Store, logger *logrus.Logger) *CompetitionHandler {
	return &CompetitionHandler{
		store:  store,
		logger: logger,
	}
}

// List returns all competitions
// @Summary List competitions
// @Description Get all competitions
// @Tags Competitions
// @Produce json
// @Success 200 {object} map[string]interface{} "Competitions"
// @Router /competitions [get]
// @Security Bearer
func (h *CompetitionHandler) List(c *fiber.Ctx) error {
	competitions := h.store.All()

	return c.JSON(fiber.Map{
		"competitions": competitions,
		"total":        len(competitions),
	})
}

// ListMine returns the competitions owned by the current organizer
// @Summary List organizer competitions
// @Description Get the competitions created by the logged-in organizer
// @Tags Competitions
// @Produce json
// @Success 200 {object} map[string]interface{} "Competitions"
// @Failure 403 {object} map[string]interface{} "Forbidden"
// @Router /competitions/mine [get]
// @Security Bearer
func (h *CompetitionHandler) ListMine(c *fiber.Ctx) error {
	competitions := h.store.OrganizerCompetitions()

	return c.JSON(fiber.Map{
		"competitions": competitions,
		"total":        len(competitions),
	})
}

// Get returns a single competition by ID
// @Summary Get competition
// @Description Get a competition by ID
// @Tags Competitions
// @Produce json
// @Param id path string true "Competition ID"
// @Success 200 {object} map[string]interface{} "Competition"
// @Failure 404 {object} map[string]interface{} "Not found"
// @Router /competitions/{id} [get]
// @Security Bearer
func (h *CompetitionHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")

	comp, ok := h.store.ByID(id)
	if !ok {
		return notFoundError(c, "NOT_FOUND", "Competition not found")
	}

	return c.JSON(fiber.Map{"competition": comp})
}

// Create creates a new competition
// @Summary Create competition
// @Description Create a competition owned by the logged-in organizer
// @Tags Competitions
// @Accept json
// @Produce json
// @Param request body models.CreateCompetitionRequest true "Competition data"
// @Success 201 {object} map[string]interface{} "Created competition"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 403 {object} map[string]interface{} "Forbidden"
// @Router /competitions [post]
// @Security Bearer
func (h *CompetitionHandler) Create(c *fiber.Ctx) error {
	var req models.CreateCompetitionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestError(c, "INVALID_REQUEST", "Invalid request body")
	}

	if req.Name == "" {
		return badRequestError(c, "INVALID_REQUEST", "name is required")
	}

	comp, err := h.store.Create(c.Context(), req)
	if err != nil {
		return respondAppError(c, err)
	}

	h.logger.WithFields(logrus.Fields{
		"competition_id": comp.ID,
		"organizer_id":   comp.OrganizerID,
	}).Info("Competition created")

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"competition": comp})
}

// Update applies a partial update to a competition
// @Summary Update competition
// @Description Merge the provided fields into an existing competition
// @Tags Competitions
// @Accept json
// @Produce json
// @Param id path string true "Competition ID"
// @Param request body models.UpdateCompetitionRequest true "Fields to update"
// @Success 200 {object} map[string]interface{} "Updated competition"
// @Failure 404 {object} map[string]interface{} "Not found"
// @Router /competitions/{id} [patch]
// @Security Bearer
func (h *CompetitionHandler) Update(c *fiber.Ctx) error {
	id := c.Params("id")

	var req models.UpdateCompetitionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestError(c, "INVALID_REQUEST", "Invalid request body")
	}

	comp, err := h.store.Update(c.Context(), id, req)
	if err != nil {
		return respondAppError(c, err)
	}

	return c.JSON(fiber.Map{"competition": comp})
}

// Delete removes a competition
// @Summary Delete competition
// @Description Delete a competition by ID
// @Tags Competitions
// @Produce json
// @Param id path string true "Competition ID"
// @Success 200 {object} map[string]interface{} "Deleted"
// @Failure 404 {object} map[string]interface{} "Not found"
// @Router /competitions/{id} [delete]
// @Security Bearer
func (h *CompetitionHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")

	if err := h.store.Delete(c.Context(), id); err != nil {
		return respondAppError(c, err)
	}

	h.logger.WithField("competition_id", id).Info("Competition deleted")

	return c.JSON(fiber.Map{"status": "deleted"})
}

// Register signs the current user up for a competition
// @Summary Register for competition
// @Description Register the logged-in dancer for a competition
// @Tags Competitions
// @Accept json
// @Produce json
// @Param id path string true "Competition ID"
// @Param request body models.RegisterForCompetitionRequest true "Registration data"
// @Success 201 {object} map[string]interface{} "Registration"
// @Failure 404 {object} map[string]interface{} "Not found"
// @Failure 409 {object} map[string]interface{} "Closed, full or duplicate"
// @Router /competitions/{id}/registrations [post]
// @Security Bearer
func (h *CompetitionHandler) Register(c *fiber.Ctx) error {
	id := c.Params("id")

	var req models.RegisterForCompetitionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestError(c, "INVALID_REQUEST", "Invalid request body")
	}

	registration, err := h.store.Register(c.Context(), id, req)
	if err != nil {
		return respondAppError(c, err)
	}

	h.logger.WithFields(logrus.Fields{
		"competition_id": id,
		"user_id":        registration.UserID,
	}).Info("Dancer registered for competition")

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"registration": registration})
}
