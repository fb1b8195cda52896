// Package api assembles the operator HTTP surface.
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/maheshrc27/contentops/internal/api/handlers"
	"github.com/maheshrc27/contentops/internal/api/middleware"
	"github.com/maheshrc27/contentops/internal/metrics"
	"github.com/maheshrc27/contentops/internal/service"
	"github.com/rs/zerolog"
)

type Deps struct {
	DB        handlers.Pinger
	Ops       *service.OpsService
	SecretKey string
	Log       zerolog.Logger
}

func NewApp(deps Deps) *fiber.App {
	log := deps.Log

	app := fiber.New(fiber.Config{
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		BodyLimit:             1024 * 1024,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			}
			if code >= fiber.StatusInternalServerError {
				log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(middleware.Metrics())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       3600,
	}))

	health := handlers.NewHealthHandler(deps.DB)
	app.Get("/health", health.Health)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	authMiddleware := middleware.NewAuthMiddleware(deps.SecretKey, log)
	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	jobs := handlers.NewJobHandler(deps.Ops, log)
	api.Get("/jobs", jobs.ListJobs)
	api.Post("/jobs/:id/requeue", jobs.RequeueJob)
	api.Post("/cycles", jobs.KickCycle)

	content := handlers.NewContentHandler(deps.Ops, log)
	api.Post("/content/:id/schedule", content.ScheduleContent)

	rateLimits := handlers.NewRateLimitHandler(deps.Ops, log)
	api.Get("/rate-limits", rateLimits.ListRateLimits)

	return app
}
