package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	httpapi "github.com/i474232898/ndbc-buoy-sensors/internal/api/http"
	"github.com/i474232898/ndbc-buoy-sensors/internal/buoy/ndbc"
	"github.com/i474232898/ndbc-buoy-sensors/internal/config"
	"github.com/i474232898/ndbc-buoy-sensors/internal/coordinator"
	"github.com/i474232898/ndbc-buoy-sensors/internal/integration"
	"github.com/i474232898/ndbc-buoy-sensors/internal/logging"
	"github.com/i474232898/ndbc-buoy-sensors/internal/store"
)

func main() {
	envErr := godotenv.Load()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logrus.WithError(err).Fatal("failed to configure logging")
	}
	if envErr != nil {
		log.WithError(envErr).Info("no .env file loaded")
	}

	// Shared HTTP client for outbound NDBC calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	client, err := ndbc.NewClient(httpClient, ndbc.Options{
		BaseURL:   cfg.NDBCBaseURL,
		CacheSize: cfg.StationCacheSize,
		CacheTTL:  cfg.StationCacheTTL,
		Logger:    log,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to create NDBC client")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// In-memory history with configured retention.
	history := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)

	manager := integration.NewManager(client, client, history, integration.Options{
		Coordinator: coordinator.Options{
			FetchTimeout:    cfg.FetchTimeout,
			RefreshCooldown: cfg.RefreshCooldown,
			Metrics:         coordinator.NewMetrics(reg),
		},
		Logger: log,
	})
	defer manager.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, id := range cfg.Stations {
		if _, err := manager.SetupEntry(ctx, id); err != nil {
			log.WithError(err).WithField("station_id", id).Error("failed to set up station")
		}
	}

	app := fiber.New(fiber.Config{
		AppName:               "ndbc-buoy-sensors",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.FetchTimeout + 5*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New(logger.Config{Output: log.Writer()}))
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "ndbc-buoy-sensors",
			"entries": len(manager.Entries()),
		})
	})

	httpapi.RegisterMetrics(app, reg)
	httpapi.RegisterRoutes(app, manager)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Error("fiber server stopped")
			stop()
		}
	}()
	log.WithField("port", cfg.Port).Info("listening")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithError(err).Error("error during shutdown")
	}
}
