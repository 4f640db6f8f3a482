package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/aula-lms/aula-api/internal/dto"
	"github.com/aula-lms/aula-api/internal/service"
	"github.com/aula-lms/aula-api/internal/utils"
)

// ProgressHandler manages the learner progress endpoints.
type ProgressHandler struct {
	service   service.ProgressService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewProgressHandler builds a progress handler instance.
func NewProgressHandler(service service.ProgressService, validate *validator.Validate, logger zerolog.Logger) *ProgressHandler {
	return &ProgressHandler{
		service:   service,
		validator: validate,
		logger:    logger.With().Str("component", "progress_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *ProgressHandler) Register(router fiber.Router) {
	router.Get("/:courseId/progress", h.overview)
	router.Post("/:courseId/items/:itemId/start", h.start)
	router.Post("/:courseId/items/:itemId/complete", h.complete)
	router.Post("/:courseId/items/:itemId/time", h.addTime)
}

func (h *ProgressHandler) overview(c *fiber.Ctx) error {
	courseID, userID, err := h.identifiers(c)
	if err != nil {
		return err
	}

	overview, err := h.service.CourseOverview(c.Context(), userID, *courseID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "progress retrieved", overview)
}

func (h *ProgressHandler) start(c *fiber.Ctx) error {
	courseID, userID, err := h.identifiers(c)
	if err != nil {
		return err
	}

	itemID, err := parseUintParam(c, "itemId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.MarkStarted(c.Context(), userID, *courseID, *itemID); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "progress started", nil)
}

func (h *ProgressHandler) complete(c *fiber.Ctx) error {
	courseID, userID, err := h.identifiers(c)
	if err != nil {
		return err
	}

	itemID, err := parseUintParam(c, "itemId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.MarkCompleted(c.Context(), userID, *courseID, *itemID); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "progress completed", nil)
}

func (h *ProgressHandler) addTime(c *fiber.Ctx) error {
	courseID, userID, err := h.identifiers(c)
	if err != nil {
		return err
	}

	itemID, err := parseUintParam(c, "itemId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AddTimeSpentRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.AddTimeSpent(c.Context(), userID, *courseID, *itemID, payload.Seconds); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "time recorded", nil)
}

func (h *ProgressHandler) identifiers(c *fiber.Ctx) (*uint, uint, error) {
	courseID, err := parseUintParam(c, "courseId")
	if err != nil {
		return nil, 0, utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	userID := userIDFromContext(c)
	if userID == 0 {
		return nil, 0, utils.SendError(c, fiber.StatusUnauthorized, "user identity missing")
	}

	return courseID, userID, nil
}

func (h *ProgressHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrProgressNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "progress not found")
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
