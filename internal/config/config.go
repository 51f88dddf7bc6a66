package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for values that have a documented provider-wide fallback.
const (
	DefaultTokenURI = "https://oauth2.googleapis.com/token"
	DefaultTimezone = "Asia/Tokyo"
)

// Config holds process configuration loaded from environment variables.
// It is constructed once at startup and injected into every component that
// needs it; nothing reads the environment after Load returns.
type Config struct {
	DBPath     string
	ListenAddr string

	// JWTSecret signs the app's own access/refresh tokens.
	JWTSecret      string
	AccessTokenTTL time.Duration
	RefreshTTL     time.Duration

	// GoogleClientID / GoogleClientSecret identify the registered OAuth app.
	GoogleClientID     string
	GoogleClientSecret string
	TokenURI           string

	// Timezone is attached to every event timestamp sent to the provider.
	Timezone string

	// RedisAddr is the task broker address used by both enqueuer and worker.
	RedisAddr   string
	WorkerCount int

	CORSOrigins []string
}

// Load loads configuration from the environment. A .env file in the working
// directory is merged in first when present (existing env vars win).
func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := os.Getenv("KOYOMI_JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("KOYOMI_JWT_SECRET is required")
	}
	if len(jwtSecret) < 16 {
		return nil, fmt.Errorf("KOYOMI_JWT_SECRET must be at least 16 characters")
	}

	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}

	cfg := &Config{
		DBPath:             envOr("KOYOMI_DB_PATH", "koyomi.db"),
		ListenAddr:         envOr("KOYOMI_LISTEN_ADDR", ":8080"),
		JWTSecret:          jwtSecret,
		AccessTokenTTL:     30 * time.Minute,
		RefreshTTL:         7 * 24 * time.Hour,
		GoogleClientID:     clientID,
		GoogleClientSecret: clientSecret,
		TokenURI:           envOr("KOYOMI_TOKEN_URI", DefaultTokenURI),
		Timezone:           envOr("KOYOMI_TIMEZONE", DefaultTimezone),
		RedisAddr:          envOr("KOYOMI_REDIS_ADDR", "127.0.0.1:6379"),
		WorkerCount:        4,
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("KOYOMI_TIMEZONE %q: %w", cfg.Timezone, err)
	}

	if v := os.Getenv("KOYOMI_CORS_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
