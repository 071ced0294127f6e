package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	OpenWeatherAPIKey string
	WeatherAPIKey     string
	AccuWeatherAPIKey string

	// Geocoder selects the location search backend: "openweather" or "google".
	Geocoder             string
	GoogleGeocoderAPIKey string

	// HTTPTimeout bounds every outbound HTTP request.
	HTTPTimeout time.Duration
	// ProviderTimeout bounds one provider's whole fetch within an aggregation.
	ProviderTimeout time.Duration
	// GeocodeTimeout bounds one geocoder call before the cache fallback runs.
	GeocodeTimeout time.Duration

	// FetchInterval controls how often tracked locations are refreshed.
	FetchInterval time.Duration
	// TrackLocations are free-text locations refreshed by the scheduler.
	TrackLocations []string

	// StoreDriver is "memory", "postgres" or "sqlite3".
	StoreDriver string
	DatabaseURL string
	// RedisURL enables the Redis accuracy history when set.
	RedisURL string

	// In-memory store retention.
	StoreMaxHistory int           // max number of records per location (0 = unlimited)
	StoreMaxAge     time.Duration // max age of records (0 = unlimited)

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")
	cfg.AccuWeatherAPIKey = os.Getenv("ACCUWEATHER_API_KEY")
	cfg.GoogleGeocoderAPIKey = os.Getenv("GOOGLE_GEOCODER_API_KEY")

	cfg.Geocoder = strings.ToLower(getenvDefault("GEOCODER", "openweather"))
	if cfg.Geocoder != "openweather" && cfg.Geocoder != "google" {
		return nil, fmt.Errorf("invalid GEOCODER %q: use openweather or google", cfg.Geocoder)
	}

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.ProviderTimeout, err = getenvDuration("PROVIDER_TIMEOUT", "8s"); err != nil {
		return nil, err
	}
	if cfg.GeocodeTimeout, err = getenvDuration("GEOCODE_TIMEOUT", "8s"); err != nil {
		return nil, err
	}
	// Scheduler interval: default 15 minutes.
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", "15m"); err != nil {
		return nil, err
	}

	cfg.TrackLocations = splitList(os.Getenv("TRACK_LOCATIONS"))

	cfg.StoreDriver = strings.ToLower(getenvDefault("STORE_DRIVER", "memory"))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	switch cfg.StoreDriver {
	case "memory":
	case "postgres", "sqlite3":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for STORE_DRIVER=%s", cfg.StoreDriver)
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}
	cfg.RedisURL = os.Getenv("REDIS_URL")

	// Store retention.
	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 96) // roughly 24h at 15-minute intervals
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "24h"); err != nil {
		return nil, err
	}

	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

// splitList splits a ';'-separated list, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
