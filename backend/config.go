package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

// Geo backends.
const (
	backendMemory    = "memory"
	backendPostgres  = "postgres"
	backendTypesense = "typesense"
)

// Creation feeds.
const (
	feedLocal    = "local"
	feedRedis    = "redis"
	feedPostgres = "postgres"
)

// Config is read once from the environment at startup.
type Config struct {
	Port     int
	Env      string
	LogLevel string

	// OTLPEndpoint is the host:port of an OTLP/gRPC collector. Empty keeps traces local.
	OTLPEndpoint string

	DatabaseURL     string
	GeoBackend      string
	TypesenseURL    string
	TypesenseAPIKey string
	RedisURL        string
	CreationFeed    string

	DefaultRadiusMeters float64
	MaxRadiusMeters     float64
	AutoUpdateOnPan     bool
	GeohashPrecision    uint

	SessionTokenSecret []byte
	SessionTokenTTL    time.Duration

	AllowedOrigins []string
}

func (c Config) isDevelopment() bool {
	return c.Env == "" || c.Env == "development"
}

func loadConfig() (Config, error) {
	cfg := Config{
		Port:     getEnvAsInt("PORT", 8080),
		Env:      getEnv("GO_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		DatabaseURL:     os.Getenv("DATABASE_URL"),
		GeoBackend:      os.Getenv("GEO_BACKEND"),
		TypesenseURL:    os.Getenv("TYPESENSE_URL"),
		TypesenseAPIKey: os.Getenv("TYPESENSE_API_KEY"),
		RedisURL:        os.Getenv("REDIS_URL"),
		CreationFeed:    os.Getenv("CREATION_FEED"),

		DefaultRadiusMeters: getEnvAsFloat("DEFAULT_RADIUS_METERS", radar.DefaultRadiusMeters),
		MaxRadiusMeters:     getEnvAsFloat("MAX_RADIUS_METERS", 200000),
		AutoUpdateOnPan:     getEnvAsBool("AUTO_UPDATE_ON_PAN", false),
		GeohashPrecision:    uint(getEnvAsInt("GEOHASH_PRECISION", 0)),

		SessionTokenTTL: getEnvAsDuration("SESSION_TOKEN_TTL", 24*time.Hour),
		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173,http://localhost:3001,http://127.0.0.1:3001")),
	}

	secret := getEnv("SESSION_TOKEN_SECRET", os.Getenv("JWT_SECRET"))
	if secret == "" {
		if !cfg.isDevelopment() {
			return Config{}, fmt.Errorf("SESSION_TOKEN_SECRET must be set outside development")
		}
		secret = "dev-radar-development-secret"
	}
	cfg.SessionTokenSecret = []byte(secret)

	if cfg.GeoBackend == "" {
		switch {
		case cfg.TypesenseURL != "":
			cfg.GeoBackend = backendTypesense
		case cfg.DatabaseURL != "":
			cfg.GeoBackend = backendPostgres
		default:
			cfg.GeoBackend = backendMemory
		}
	}
	if cfg.CreationFeed == "" {
		if cfg.RedisURL != "" {
			cfg.CreationFeed = feedRedis
		} else {
			cfg.CreationFeed = feedLocal
		}
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.GeoBackend {
	case backendMemory:
	case backendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("GEO_BACKEND=postgres requires DATABASE_URL")
		}
	case backendTypesense:
		if c.TypesenseURL == "" || c.TypesenseAPIKey == "" {
			return fmt.Errorf("GEO_BACKEND=typesense requires TYPESENSE_URL and TYPESENSE_API_KEY")
		}
	default:
		return fmt.Errorf("unknown GEO_BACKEND %q", c.GeoBackend)
	}

	switch c.CreationFeed {
	case feedLocal:
	case feedRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("CREATION_FEED=redis requires REDIS_URL")
		}
	case feedPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("CREATION_FEED=postgres requires DATABASE_URL")
		}
		if c.GeoBackend == backendMemory {
			return fmt.Errorf("CREATION_FEED=postgres cannot be used with GEO_BACKEND=memory")
		}
	default:
		return fmt.Errorf("unknown CREATION_FEED %q", c.CreationFeed)
	}

	if c.DefaultRadiusMeters <= 0 || c.MaxRadiusMeters <= 0 {
		return fmt.Errorf("radius limits must be positive")
	}
	if c.DefaultRadiusMeters > c.MaxRadiusMeters {
		return fmt.Errorf("DEFAULT_RADIUS_METERS %v exceeds MAX_RADIUS_METERS %v", c.DefaultRadiusMeters, c.MaxRadiusMeters)
	}
	if c.GeohashPrecision > 12 {
		return fmt.Errorf("GEOHASH_PRECISION must be between 0 and 12")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
