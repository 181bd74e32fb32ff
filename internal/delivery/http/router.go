package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all HTTP routes
func SetupRoutes(app *fiber.App, handler *Handler) {
	// Health check
	app.Get("/health", handler.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1 routes
	api := app.Group("/api/v1")
	{
		// Aggregates
		api.Get("/summary", handler.GetSummary)
		api.Get("/heatmap", handler.GetHeatmap)
		api.Get("/clusters", handler.GetClusters)
		api.Get("/hotspots", handler.GetHotspots)
		api.Get("/cross-modal", handler.GetCrossModal)
		api.Get("/stations", handler.GetStations)

		// Operations
		api.Get("/cache/status", handler.GetCacheStatus)
		api.Post("/refresh", handler.Refresh)
	}
}

// ErrorHandler renders errors as {"error": true, "message": ...}
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
