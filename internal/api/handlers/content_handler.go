package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/contentops/internal/repository"
	"github.com/maheshrc27/contentops/internal/service"
	"github.com/maheshrc27/contentops/internal/transfer"
	"github.com/rs/zerolog"
)

type ContentHandler struct {
	s   *service.OpsService
	log zerolog.Logger
}

func NewContentHandler(service *service.OpsService, log zerolog.Logger) *ContentHandler {
	return &ContentHandler{s: service, log: log}
}

func (h *ContentHandler) ScheduleContent(c *fiber.Ctx) error {
	var req transfer.ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Unable to parse body")
	}
	when, err := time.Parse(time.RFC3339, req.ScheduledFor)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "scheduled_for must be an RFC3339 timestamp")
	}

	id := c.Params("id")
	job, err := h.s.Schedule(c.UserContext(), id, when)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return errorJSON(c, fiber.StatusNotFound, "content item not found")
	case errors.Is(err, repository.ErrJobRunning):
		return errorJSON(c, fiber.StatusConflict, "content item is being published")
	case errors.Is(err, service.ErrAlreadyPosted):
		return errorJSON(c, fiber.StatusConflict, err.Error())
	case err != nil:
		h.log.Error().Err(err).Str("content_id", id).Msg("schedule content")
		return errorJSON(c, fiber.StatusInternalServerError, "Unable to schedule content")
	}

	h.log.Info().Str("content_id", id).Str("job_id", job.ID).Time("run_at", job.RunAt).
		Str("operator", GetOperator(c)).Msg("content scheduled")
	return c.JSON(job)
}
