// main.go - dashboard server application
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/karloscodes/cartridge"

	"docpulse/internal"
	"docpulse/internal/config"
	"docpulse/internal/database"
	"docpulse/internal/seeder"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	demoSessionsPerDoc     = 200
)

func main() {
	cfg := config.GetConfig()
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run database migrations
	log.Println("Running database migrations...")
	if err := dbManager.MigrateDatabase(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed")

	if cfg.SeedDemoData {
		if err := seeder.NewSeeder(dbManager, logger, demoSessionsPerDoc).Run(context.Background()); err != nil {
			log.Fatalf("Failed to seed demo data: %v", err)
		}
	}

	app, err := internal.NewApplication(cfg, logger, dbManager)
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	// Start the application
	log.Println("Starting application...")
	if err := app.StartAsync(); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
	log.Println("Application started successfully")

	// Wait for termination signal
	waitForShutdownSignal(app)
}

// waitForShutdownSignal sets up signal handling and performs graceful shutdown
func waitForShutdownSignal(app *internal.Application) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigChan
	log.Printf("Received signal: %v", sig)

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	log.Println("Initiating graceful shutdown...")
	if err := app.Shutdown(ctx); err != nil {
		log.Printf("Error during shutdown: %v", err)
		os.Exit(1)
	}
	log.Println("Server shutdown complete")
}
