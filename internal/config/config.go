package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the process configuration read from the environment.
type Config struct {
	Port                 string
	SQLitePath           string
	DatabaseURL          string
	StatusBackend        string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	AMQPURL              string
	AMQPExchange         string
	ORSAPIKey            string
	GeocodeCountry       string
	SchedulePath         string
	Timezone             string
	GeofenceRadiusMeters float64
	LocalDebounce        time.Duration
	PositionPushInterval time.Duration
}

// Get returns the environment value for key, or fallback when unset.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:           Get("PORT", "8080"),
		SQLitePath:     Get("SQLITE_PATH", "data/device.db"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StatusBackend:  strings.ToLower(Get("STATUS_BACKEND", BackendRedis)),
		RedisAddr:      Get("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		AMQPURL:        os.Getenv("AMQP_URL"),
		AMQPExchange:   Get("AMQP_EXCHANGE", "field_visits_topic"),
		ORSAPIKey:      strings.TrimSpace(os.Getenv("ORS_API_KEY")),
		GeocodeCountry: Get("GEOCODE_COUNTRY", "US"),
		SchedulePath:   os.Getenv("SCHEDULE_PATH"),
		Timezone:       Get("TIMEZONE", "UTC"),
	}

	var errs []error

	db, err := strconv.Atoi(Get("REDIS_DB", "0"))
	if err != nil {
		errs = append(errs, fmt.Errorf("REDIS_DB: %w", err))
	}
	cfg.RedisDB = db

	radius, err := strconv.ParseFloat(Get("GEOFENCE_RADIUS_METERS", "100"), 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("GEOFENCE_RADIUS_METERS: %w", err))
	} else if radius <= 0 {
		errs = append(errs, fmt.Errorf("GEOFENCE_RADIUS_METERS: must be positive, got %v", radius))
	}
	cfg.GeofenceRadiusMeters = radius

	if cfg.LocalDebounce, err = time.ParseDuration(Get("LOCAL_DEBOUNCE", "500ms")); err != nil {
		errs = append(errs, fmt.Errorf("LOCAL_DEBOUNCE: %w", err))
	}
	if cfg.PositionPushInterval, err = time.ParseDuration(Get("POSITION_PUSH_INTERVAL", "15s")); err != nil {
		errs = append(errs, fmt.Errorf("POSITION_PUSH_INTERVAL: %w", err))
	}

	switch cfg.StatusBackend {
	case BackendRedis:
	case BackendPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STATUS_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STATUS_BACKEND: unknown backend %q", cfg.StatusBackend))
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
