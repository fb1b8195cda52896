package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/contentops/internal/models"
	"github.com/maheshrc27/contentops/internal/repository"
	"github.com/maheshrc27/contentops/internal/service"
	"github.com/maheshrc27/contentops/internal/transfer"
	"github.com/rs/zerolog"
)

type JobHandler struct {
	s   *service.OpsService
	log zerolog.Logger
}

func NewJobHandler(service *service.OpsService, log zerolog.Logger) *JobHandler {
	return &JobHandler{s: service, log: log}
}

func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	filter := models.JobFilter{Limit: c.QueryInt("limit", 0)}
	if status := c.Query("status"); status != "" {
		filter.Status = models.JobStatus(status)
		switch filter.Status {
		case models.JobStatusScheduled, models.JobStatusRunning, models.JobStatusSuccess, models.JobStatusFailed:
		default:
			return errorJSON(c, fiber.StatusBadRequest, "unknown job status")
		}
	}

	jobs, err := h.s.ListJobs(c.UserContext(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("list jobs")
		return errorJSON(c, fiber.StatusInternalServerError, "Unable to list jobs")
	}
	if jobs == nil {
		jobs = []*models.PublishJob{}
	}
	return c.JSON(transfer.JobList{Jobs: jobs, Count: len(jobs)})
}

func (h *JobHandler) RequeueJob(c *fiber.Ctx) error {
	id := c.Params("id")
	err := h.s.Requeue(c.UserContext(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return errorJSON(c, fiber.StatusNotFound, "job not found")
	case errors.Is(err, repository.ErrJobNotRunning):
		return errorJSON(c, fiber.StatusConflict, "job is not running")
	case errors.Is(err, repository.ErrJobNotStuck):
		return errorJSON(c, fiber.StatusConflict, "job is still publishing, wait for the stuck threshold")
	case err != nil:
		h.log.Error().Err(err).Str("job_id", id).Msg("requeue job")
		return errorJSON(c, fiber.StatusInternalServerError, "Unable to requeue job")
	}

	h.log.Info().Str("job_id", id).Str("operator", GetOperator(c)).Msg("job requeued")
	return c.JSON(fiber.Map{
		"message": "Job requeued",
	})
}

func (h *JobHandler) KickCycle(c *fiber.Ctx) error {
	reason := "requested by " + GetOperator(c)
	queued, err := h.s.Kick(reason)
	if err != nil {
		h.log.Error().Err(err).Msg("enqueue cycle")
		return errorJSON(c, fiber.StatusBadGateway, "Unable to enqueue cycle")
	}
	if !queued {
		return c.Status(fiber.StatusServiceUnavailable).JSON(transfer.CycleKickResponse{Queued: false, Reason: "task queue not configured"})
	}
	return c.Status(fiber.StatusAccepted).JSON(transfer.CycleKickResponse{Queued: true})
}
