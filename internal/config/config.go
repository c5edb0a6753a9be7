package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingEnv = errors.New("required environment variable is not set")

type Config struct {
	AppEnv      string
	APIBaseURL  string
	PushURL     string
	MessSlug    string
	MessID      string
	AccessToken string

	ConnectTimeout       time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	CacheCapacity  int
	APIRateLimit   float64
	APIRateBurst   int
	MutationPolicy string
}

// LoadConfig reads the environment (and .env when present) and validates it.
func LoadConfig() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the environment without checking required values, so
// command-line flags can fill them in before Validate.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		APIBaseURL:     os.Getenv("API_BASE_URL"),
		PushURL:        os.Getenv("PUSH_URL"),
		MessSlug:       os.Getenv("MESS_SLUG"),
		MessID:         os.Getenv("MESS_ID"),
		AccessToken:    os.Getenv("ACCESS_TOKEN"),
		MutationPolicy: getEnv("MUTATION_POLICY", "serialize"),
	}

	var err error
	if cfg.ConnectTimeout, err = durationEnv("CONNECT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconnectDelay, err = durationEnv("RECONNECT_DELAY", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxReconnectAttempts, err = intEnv("RECONNECT_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.CacheCapacity, err = intEnv("CACHE_CAPACITY", 512); err != nil {
		return nil, err
	}
	if cfg.APIRateBurst, err = intEnv("API_RATE_BURST", 20); err != nil {
		return nil, err
	}
	if cfg.APIRateLimit, err = floatEnv("API_RATE_LIMIT", 10); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL: %w", ErrMissingEnv)
	}
	if c.PushURL == "" {
		return fmt.Errorf("PUSH_URL: %w", ErrMissingEnv)
	}
	if c.MessSlug == "" {
		return fmt.Errorf("MESS_SLUG: %w", ErrMissingEnv)
	}
	if c.MessID == "" {
		return fmt.Errorf("MESS_ID: %w", ErrMissingEnv)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
