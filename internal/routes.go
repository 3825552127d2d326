package internal

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"

	"docpulse/internal/config"
	"docpulse/internal/dashboard"
	"docpulse/internal/http"
	"docpulse/internal/metrics"
)

// apiCORSConfig lets dashboard front ends on other origins call the API.
var apiCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept",
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server, registry *dashboard.Registry, cfg *config.Config) {
	dashboards := http.NewDashboardHandler(registry, cfg, srv.GetLogger())

	apiConfig := &cartridge.RouteConfig{
		EnableCORS: true,
		CORSConfig: apiCORSConfig,
	}

	// Live config
	// The upgrade check resolves the dashboard before the socket is accepted
	liveConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{dashboards.LiveUpgrade},
	}

	// Health check endpoint
	srv.Get("/health", http.HealthIndexAction(registry))
	srv.Head("/health", http.HealthIndexAction(registry))

	metricsHandler := metrics.MetricsHandler()
	srv.Get("/metrics", func(ctx *cartridge.Context) error {
		return metricsHandler(ctx.Ctx)
	})

	// === DASHBOARDS ===
	srv.Post("/api/dashboards", dashboards.CreateAction, apiConfig)
	srv.Get("/api/dashboards/:id", dashboards.ShowAction, apiConfig)
	srv.Put("/api/dashboards/:id/selection", dashboards.SelectAction, apiConfig)
	srv.Post("/api/dashboards/:id/refresh", dashboards.RefreshAction, apiConfig)
	srv.Delete("/api/dashboards/:id", dashboards.DeleteAction, apiConfig)
	srv.Get("/api/dashboards/:id/live", dashboards.LiveStreamAction(), liveConfig)

	for _, path := range []string{
		"/api/dashboards",
		"/api/dashboards/:id",
		"/api/dashboards/:id/selection",
		"/api/dashboards/:id/refresh",
	} {
		srv.Options(path, func(ctx *cartridge.Context) error {
			return ctx.SendStatus(fiber.StatusNoContent)
		}, apiConfig)
	}
}
