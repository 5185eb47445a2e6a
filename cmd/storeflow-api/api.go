// Package main provides the Storeflow API server.
package main

import (
	"log/slog"

	"github.com/dukex/storeflow/pkg/registry"
	"github.com/dukex/storeflow/pkg/web"
	"github.com/dukex/storeflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger   *slog.Logger
	engine   *workflow.Engine
	registry *registry.Registry
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, engine *workflow.Engine, registry *registry.Registry) *API {
	return &API{
		logger:   logger,
		engine:   engine,
		registry: registry,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.engine, a.registry, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Storeflow API")
	})

	handlers.RegisterRoutes(app)

	return app
}
