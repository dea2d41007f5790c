package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/flowrun-io/flowrun/pkg/engine"
	"github.com/flowrun-io/flowrun/pkg/persistence"
	"github.com/flowrun-io/flowrun/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	engine      *engine.Engine
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eng *engine.Engine,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		engine:      eng,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.engine, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowrun API")
	})

	runs := app.Group("/runs")
	runs.Post("/", handlers.CreateRun)
	runs.Get("/", handlers.GetRuns)
	runs.Get("/:id", handlers.GetRun)
	runs.Get("/:id/output", handlers.GetRunOutput)
	runs.Get("/:id/nodes", handlers.GetRunNodes)
	runs.Get("/:id/nodes/:nodeId", handlers.GetRunNode)
	runs.Post("/:id/cancel", handlers.CancelRun)
	runs.Post("/:id/pause", handlers.PauseRun)
	runs.Post("/:id/resume", handlers.ResumeRun)
	runs.Post("/:id/retry", handlers.RetryRun)
	runs.Delete("/:id/state", handlers.CleanupRunState)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
