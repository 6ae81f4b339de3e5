package config

import (
	"os"
	"strconv"
	"time"
)

const (
	defaultEnv            = "dev"
	defaultDBPath         = "./dev.db"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultLogFormat      = "console"
	defaultProbeTimeout   = 3 * time.Second
	defaultMeasureTimeout = 30 * time.Second
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	Env       string
	DBPath    string
	Port      string
	LogLevel  string
	LogFormat string

	AdminToken string

	MeasurementBaseURL      string
	MeasurementAPIKey       string
	MeasurementProbeTimeout time.Duration
	MeasurementTimeout      time.Duration
	HeuristicSeed           uint64
}

// Load reads environment variables and returns a populated Config.
func Load() Config {
	// Best-effort: production injects the environment directly.
	_, _ = loadDotEnv(".env")

	cfg := Config{
		Env:                     getEnv("APP_ENV", defaultEnv),
		DBPath:                  getEnv("DB_PATH", defaultDBPath),
		Port:                    getEnv("PORT", defaultPort),
		LogLevel:                getEnv("LOG_LEVEL", defaultLogLevel),
		LogFormat:               getEnv("LOG_FORMAT", defaultLogFormat),
		AdminToken:              os.Getenv("ADMIN_TOKEN"),
		MeasurementBaseURL:      os.Getenv("MEASUREMENT_BASE_URL"),
		MeasurementAPIKey:       os.Getenv("MEASUREMENT_API_KEY"),
		MeasurementProbeTimeout: getDuration("MEASUREMENT_PROBE_TIMEOUT", defaultProbeTimeout),
		MeasurementTimeout:      getDuration("MEASUREMENT_TIMEOUT", defaultMeasureTimeout),
		HeuristicSeed:           getUint("HEURISTIC_SEED", 0),
	}

	return cfg
}

// IsDev reports whether migrations and seed should run on startup.
func (c Config) IsDev() bool {
	return c.Env == "dev"
}

// Warnings lists settings that are unset but expected outside local development.
func (c Config) Warnings() []string {
	var warnings []string
	if c.AdminToken == "" {
		warnings = append(warnings, "ADMIN_TOKEN is not set; admin endpoints are disabled")
	}
	if c.MeasurementBaseURL == "" {
		warnings = append(warnings, "MEASUREMENT_BASE_URL is not set; third-party measurements are disabled")
	} else if c.MeasurementAPIKey == "" {
		warnings = append(warnings, "MEASUREMENT_API_KEY is not set")
	}
	return warnings
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getUint(key string, fallback uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
