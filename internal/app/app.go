package app

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"labelgen/internal/handlers"
	u "labelgen/internal/utils"
)

// Deps are the collaborators built by main and mounted on the app.
type Deps struct {
	Labels *handlers.LabelService
	// Metrics serves the Prometheus exposition; nil disables /v1/metrics.
	Metrics http.Handler
	// Ready backs the readiness probe; nil means always ready.
	Ready func(ctx context.Context) error
}

// SetupApp creates and configures a new Fiber app instance
func SetupApp(cfg u.Config, deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit(cfg),
		ErrorHandler:          handlers.ErrorHandler,
	})

	RegisterMiddleware(app, cfg, deps.Ready)
	RegisterRoutes(app, deps)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts all route handlers to the app
func RegisterRoutes(app *fiber.App, deps Deps) {
	v1 := app.Group("/v1")

	svc := deps.Labels
	v1.Post("/labels", svc.HandleLabel)
	v1.Post("/labels/encode", svc.HandleEncode)
	v1.Get("/chrome/stats", svc.HandleChromeStats)

	v1.Get("/monitor", monitor.New())

	if deps.Metrics != nil {
		v1.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}
}

// bodyLimit leaves room for form fields next to the largest template upload.
// Oversized templates are rejected by the handler with a 413.
func bodyLimit(cfg u.Config) int {
	const slack = 1 << 20
	limit := cfg.Limits.MaxTemplateBytes + slack
	if limit < fiber.DefaultBodyLimit {
		return fiber.DefaultBodyLimit
	}
	return limit
}
