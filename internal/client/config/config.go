// Package config loads client settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIURL      string
	WSURL       string
	Profile     string
	Debug       bool
	DebugLog    string
	PageSize    int
	HTTPTimeout time.Duration
	Reconnect   ReconnectConfig
}

// ReconnectConfig is the transport's backoff schedule. Retries of zero
// leaves a lost connection closed.
type ReconnectConfig struct {
	Retries int
	Base    time.Duration
	Max     time.Duration
}

// Load reads a .env file if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	apiURL := strings.TrimRight(getEnv("CLDZCHAT_API_URL", "http://localhost:8080"), "/")
	wsURL := getEnv("CLDZCHAT_WS_URL", "")
	if wsURL == "" {
		derived, err := DeriveWSURL(apiURL)
		if err != nil {
			return nil, err
		}
		wsURL = derived
	}

	cfg := &Config{
		APIURL:      apiURL,
		WSURL:       wsURL,
		Profile:     getEnv("CLDZCHAT_PROFILE", "default"),
		Debug:       getEnvBool("CLDZCHAT_DEBUG", false),
		DebugLog:    getEnv("CLDZCHAT_DEBUG_LOG", "debug.log"),
		PageSize:    getEnvInt("CLDZCHAT_PAGE_SIZE", 20),
		HTTPTimeout: getEnvDuration("CLDZCHAT_HTTP_TIMEOUT", 15*time.Second),
		Reconnect: ReconnectConfig{
			Retries: getEnvInt("CLDZCHAT_RECONNECT_RETRIES", 5),
			Base:    getEnvDuration("CLDZCHAT_RECONNECT_BASE", 500*time.Millisecond),
			Max:     getEnvDuration("CLDZCHAT_RECONNECT_MAX", 8*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.APIURL); err != nil {
		return fmt.Errorf("CLDZCHAT_API_URL: %w", err)
	}
	u, err := url.ParseRequestURI(c.WSURL)
	if err != nil {
		return fmt.Errorf("CLDZCHAT_WS_URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("CLDZCHAT_WS_URL must use ws or wss, got %q", u.Scheme)
	}
	if c.Profile == "" {
		return fmt.Errorf("CLDZCHAT_PROFILE cannot be empty")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("CLDZCHAT_PAGE_SIZE must be > 0")
	}
	if c.Reconnect.Retries < 0 {
		return fmt.Errorf("CLDZCHAT_RECONNECT_RETRIES must be >= 0")
	}
	return nil
}

// DeriveWSURL maps the REST base URL onto the WebSocket endpoint:
// http://host/api becomes ws://host/api/ws.
func DeriveWSURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("CLDZCHAT_API_URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("CLDZCHAT_API_URL must use http or https, got %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
