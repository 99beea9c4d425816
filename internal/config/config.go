package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBFile          string
	APIAddr         string
	AuthSecret      string
	ContentKey      string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
	TokenCacheTTL   time.Duration
	UnreadCacheTTL  time.Duration
}

func Load() (*Config, error) {
	// A missing .env file is fine; env vars win either way.
	_ = godotenv.Load()

	tokenTTL, err := time.ParseDuration(getEnv("TOKEN_CACHE_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_CACHE_TTL: %w", err)
	}
	unreadTTL, err := time.ParseDuration(getEnv("UNREAD_CACHE_TTL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid UNREAD_CACHE_TTL: %w", err)
	}

	cfg := &Config{
		DBFile:          getEnv("MESSAGING_DB", "messaging.db"),
		APIAddr:         getEnv("API_ADDR", ":8080"),
		AuthSecret:      os.Getenv("AUTH_SECRET"),
		ContentKey:      os.Getenv("CONTENT_KEY"),
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubject:    getEnv("VAPID_SUBJECT", "mailto:admin@localhost"),
		TokenCacheTTL:   tokenTTL,
		UnreadCacheTTL:  unreadTTL,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required")
	}

	if c.ContentKey == "" {
		return fmt.Errorf("CONTENT_KEY is required")
	}

	if c.TokenCacheTTL <= 0 || c.UnreadCacheTTL <= 0 {
		return fmt.Errorf("cache TTLs must be greater than 0")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
