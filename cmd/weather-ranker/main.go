package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	httpapi "github.com/i474232898/weather-ranker/internal/api/http"
	"github.com/i474232898/weather-ranker/internal/config"
	"github.com/i474232898/weather-ranker/internal/metrics"
	"github.com/i474232898/weather-ranker/internal/scheduler"
	"github.com/i474232898/weather-ranker/internal/store"
	"github.com/i474232898/weather-ranker/internal/weather"
	"github.com/i474232898/weather-ranker/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Metrics on a dedicated registry.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector("weather_ranker", registry)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	records, locations, closeStore := openStores(cfg)
	defer closeStore()

	// Providers, in tie-break order.
	provs := []weather.Provider{
		providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey),
		providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey),
		providers.NewAccuWeatherProvider(httpClient, cfg.AccuWeatherAPIKey),
	}

	scorer := newScorer(cfg)
	aggregator := weather.NewAggregator(provs, scorer,
		weather.WithProviderTimeout(cfg.ProviderTimeout),
		weather.WithRecorder(collector),
	)

	var geocoder weather.Geocoder
	switch cfg.Geocoder {
	case "google":
		geocoder = providers.NewGoogleGeocoder(cfg.GoogleGeocoderAPIKey)
	default:
		geocoder = providers.NewOpenWeatherGeocoder(httpClient, cfg.OpenWeatherAPIKey)
	}
	resolver := weather.NewResolver(geocoder, locations, collector, weather.WithGeocodeTimeout(cfg.GeocodeTimeout))

	// Core service orchestrating providers and stores.
	service := weather.NewService(aggregator, resolver, records)

	// Scheduler that periodically refreshes tracked locations.
	sched := scheduler.New(cfg.TrackLocations, cfg.FetchInterval, service)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "weather-ranker",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())
	httpapi.RegisterMetrics(app, collector, registry)

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-ranker",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()
	log.Printf("INFO: listening on :%s", cfg.Port)

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

// openStores builds the record store and location cache for the configured driver.
func openStores(cfg *config.AppConfig) (weather.RecordStore, weather.LocationStore, func()) {
	switch cfg.StoreDriver {
	case store.DriverPostgres, store.DriverSQLite:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		sqlStore, err := store.OpenSQL(ctx, cfg.StoreDriver, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to open %s store: %v", cfg.StoreDriver, err)
		}
		return sqlStore, sqlStore, func() {
			if err := sqlStore.Close(); err != nil {
				log.Printf("error closing store: %v", err)
			}
		}
	default:
		// In-memory store with configured retention.
		mem := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)
		return mem, mem, func() {}
	}
}

// newScorer uses Redis accuracy history when configured, the static table otherwise.
func newScorer(cfg *config.AppConfig) weather.Scorer {
	if cfg.RedisURL == "" {
		return weather.NewStaticScorer()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := store.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Printf("ERROR: accuracy history unavailable, using static scores: %v", err)
		return weather.NewStaticScorer()
	}
	return weather.NewHistoryScorer(store.NewRedisHistory(client), nil)
}
