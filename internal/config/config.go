// Package config loads runtime settings from the environment.
// Call godotenv.Load before Load so values from a .env file are visible.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const devJWTSecret = "dev-only-change-me"

// RateLimit bounds how many send-message events one connection may issue.
type RateLimit struct {
	Burst    int
	Interval time.Duration
}

// Config holds all settings of the server and the admin CLI.
type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration

	AllowedOrigins []string
	PublicDir      string
	DefaultLang    string

	HistoryLimit     int
	MaxMessageLength int
	RateLimit        RateLimit
	// BindNickname makes the display name follow the account nickname
	// instead of the name the client sends with join.
	BindNickname bool

	ShutdownTimeout time.Duration
}

// Load reads the configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":3000"),
		DBDriver:         getEnv("DB_DRIVER", "postgres"),
		DBDSN:            getEnv("DB_DSN", "host=localhost user=user password=password dbname=roomchat port=5432 sslmode=disable"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		JWTSecret:        getEnv("JWT_SECRET", devJWTSecret),
		JWTIssuer:        getEnv("JWT_ISSUER", "roomchat"),
		AllowedOrigins:   getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		PublicDir:        getEnv("PUBLIC_DIR", "./public"),
		DefaultLang:      getEnv("LANG_DEFAULT", "uk"),
		BindNickname:     getEnv("BIND_NICKNAME", "false") == "true",
		MaxMessageLength: 2000,
		RateLimit:        RateLimit{Burst: 10, Interval: 10 * time.Second},
		TokenTTL:         time.Hour,
		ShutdownTimeout:  15 * time.Second,
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.HistoryLimit, err = getEnvInt("HISTORY_LIMIT", 0); err != nil {
		return Config{}, err
	}
	if cfg.MaxMessageLength, err = getEnvInt("MAX_MESSAGE_LENGTH", cfg.MaxMessageLength); err != nil {
		return Config{}, err
	}
	if cfg.RateLimit.Burst, err = getEnvInt("RATE_LIMIT_BURST", cfg.RateLimit.Burst); err != nil {
		return Config{}, err
	}
	if cfg.RateLimit.Interval, err = getEnvDuration("RATE_LIMIT_INTERVAL", cfg.RateLimit.Interval); err != nil {
		return Config{}, err
	}
	if cfg.TokenTTL, err = getEnvDuration("TOKEN_TTL", cfg.TokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	if cfg.JWTSecret == devJWTSecret {
		log.Println("WARNING: JWT_SECRET is not set, using the development secret")
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "pq", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("HISTORY_LIMIT must not be negative")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be positive")
	}
	if c.RateLimit.Burst <= 0 || c.RateLimit.Interval <= 0 {
		return fmt.Errorf("rate limit burst and interval must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
