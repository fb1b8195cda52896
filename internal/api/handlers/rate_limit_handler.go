package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/contentops/internal/service"
	"github.com/maheshrc27/contentops/internal/transfer"
	"github.com/rs/zerolog"
)

type RateLimitHandler struct {
	s   *service.OpsService
	log zerolog.Logger
}

func NewRateLimitHandler(service *service.OpsService, log zerolog.Logger) *RateLimitHandler {
	return &RateLimitHandler{s: service, log: log}
}

func (h *RateLimitHandler) ListRateLimits(c *fiber.Ctx) error {
	counters, err := h.s.ListRateLimits(c.UserContext())
	if err != nil {
		h.log.Error().Err(err).Msg("list rate limits")
		return errorJSON(c, fiber.StatusInternalServerError, "Unable to list rate limits")
	}

	views := make([]transfer.RateLimitView, 0, len(counters))
	for _, counter := range counters {
		views = append(views, transfer.NewRateLimitView(counter))
	}
	return c.JSON(views)
}
