package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"docpulse/internal/dashboard"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	DBStatus   string    `json:"db_status"`
	Dashboards int       `json:"dashboards"`
}

// HealthIndexAction handles the health check endpoint. It also reports how
// many dashboards are open.
func HealthIndexAction(registry *dashboard.Registry) cartridge.HandlerFunc {
	return func(ctx *cartridge.Context) error {
		dbStatus := "ok"

		// Check database connectivity
		db := ctx.DBManager.GetConnection()
		if db == nil {
			dbStatus = "error"
			ctx.Logger.Error("Database connection unavailable")
		} else {
			sqlDB, err := db.DB()
			if err != nil {
				dbStatus = "error"
				ctx.Logger.Error("Database connection error", slog.Any("error", err))
			} else if err := sqlDB.Ping(); err != nil {
				dbStatus = "error"
				ctx.Logger.Error("Database ping failed", slog.Any("error", err))
			}
		}

		health := HealthStatus{
			Status:     "ok",
			Timestamp:  time.Now(),
			DBStatus:   dbStatus,
			Dashboards: registry.Len(),
		}

		if dbStatus != "ok" {
			health.Status = "degraded"
			return ctx.Status(fiber.StatusServiceUnavailable).JSON(health)
		}

		return ctx.JSON(health)
	}
}
