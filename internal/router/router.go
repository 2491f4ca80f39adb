package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/soltixdb/pvratio/internal/config"
	"github.com/soltixdb/pvratio/internal/handlers"
	"github.com/soltixdb/pvratio/internal/logging"
	"github.com/soltixdb/pvratio/internal/middleware"
	"github.com/soltixdb/pvratio/internal/services"
)

// Setup configures all routes and middlewares
func Setup(app *fiber.App, logger *logging.Logger, analysis *services.AnalysisService, cfg config.Config) *handlers.Handler {
	h := handlers.New(logger, analysis)

	// Global middlewares
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,DELETE,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,Authorization,X-API-Key,X-Request-ID",
		ExposeHeaders: "Content-Disposition,X-Request-ID",
	}))
	app.Use(logging.FiberMiddleware(logger, logging.MiddlewareConfig{SkipPaths: []string{"/health"}}))

	// Health check (no auth required)
	app.Get("/health", h.Health)

	// API v1 routes (protected by API key)
	v1 := app.Group("/v1", middleware.APIKeyAuth(logger, cfg.Auth))

	// Analysis runs
	v1.Post("/analyses", h.CreateAnalysis)
	v1.Post("/analyses/upload", h.UploadAnalysis)
	v1.Get("/analyses", h.ListAnalyses)
	v1.Get("/analyses/:id", h.GetAnalysis)
	v1.Delete("/analyses/:id", h.DeleteAnalysis)

	// Run results
	v1.Get("/analyses/:id/maintenance", h.GetMaintenance)
	v1.Get("/analyses/:id/faults", h.GetFaults)
	v1.Get("/analyses/:id/smoothed", h.GetSmoothed)
	v1.Get("/analyses/:id/metrics", h.GetMetrics)
	v1.Get("/analyses/:id/export/:table", h.ExportTable)

	// 404 handler
	app.Use(h.NotFound)

	return h
}

// New creates a new Fiber app with configuration
func New(logger *logging.Logger, analysis *services.AnalysisService, cfg config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "pvratio analyzer",
		DisableStartupMessage: true,
		BodyLimit:             cfg.Server.BodyLimit(),
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	Setup(app, logger, analysis, cfg)

	return app
}
