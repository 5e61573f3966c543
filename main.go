package main

import (
	"context"
	"log"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"followmail/automation"
	"followmail/config"
	"followmail/middleware"
	"followmail/routes"
	"followmail/utils"
	"followmail/worker"
)

func main() {
	logger := log.New(os.Stdout, "FOLLOWMAIL: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize error reporting
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Core engine wiring
	hub := automation.NewHub()
	engine := automation.NewEngine(config.DB, log.New(os.Stdout, "ENGINE: ", log.LstdFlags))
	engine.Hub = hub
	limiter := automation.NewLimiter(config.DB)
	executor := automation.NewExecutor(config.DB, utils.NewSMTPMailer(),
		log.New(os.Stdout, "EXECUTOR: ", log.LstdFlags), config.AppConfig.TrackingBaseURL)

	// Initialize and start the dispatch loop
	dispatchWorker := worker.NewDispatchWorker(config.DB, engine, executor, limiter,
		log.New(os.Stdout, "DISPATCH: ", log.LstdFlags))
	dispatchWorker.Interval = config.AppConfig.DispatchInterval
	dispatchWorker.BatchSize = config.AppConfig.DispatchBatchSize
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatchWorker.Start(ctx)

	// Daily counter reset
	resetWorker := worker.NewResetWorker(config.DB, log.New(os.Stdout, "RESET: ", log.LstdFlags))
	if err := resetWorker.Start(); err != nil {
		logger.Fatalf("Failed to start reset worker: %v", err)
	}
	defer resetWorker.Stop()

	// Setup routes
	routes.SetupRoutes(app, config.DB, engine, limiter, hub)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
