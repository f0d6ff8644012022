package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the tab agent.
type Config struct {
	// HTTP API settings
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// Browser launch settings
	AutoLaunch bool
	StartURL   string
	ProfileDir string
	WindowSize string

	// Snapshot storage settings
	DBPath        string
	ExportEnabled bool
	ExportDir     string

	// Operation timeouts (milliseconds)
	OpTimeoutMS  int
	TabTimeoutMS int

	// Default view for tabs with no view assignment
	DefaultViewID    string
	DefaultViewName  string
	DefaultViewColor string

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		BindAddr:         getEnvOrDefault("ARBOR_BIND_ADDR", "127.0.0.1:8911"),
		PortCandidates:   getEnvListOrDefault("ARBOR_PORT_CANDIDATES", []string{"127.0.0.1:8911", "127.0.0.1:8912", "127.0.0.1:8913"}),
		PortAutoFallback: getEnvBoolOrDefault("ARBOR_PORT_AUTO_FALLBACK", true),
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		AutoLaunch:       getEnvBoolOrDefault("ARBOR_AUTO_LAUNCH", false),
		StartURL:         getEnvOrDefault("ARBOR_START_URL", "about:blank"),
		ProfileDir:       getEnvOrDefault("ARBOR_PROFILE_DIR", "./browser_profile"),
		WindowSize:       getEnvOrDefault("ARBOR_WINDOW_SIZE", "1600,1000"),
		DBPath:           getEnvOrDefault("ARBOR_DB_PATH", "./data/snapshots.db"),
		ExportEnabled:    getEnvBoolOrDefault("ARBOR_EXPORT_ENABLED", false),
		ExportDir:        getEnvOrDefault("ARBOR_EXPORT_DIR", "./data/exports"),
		OpTimeoutMS:      getEnvIntOrDefault("ARBOR_OP_TIMEOUT_MS", 30000),
		TabTimeoutMS:     getEnvIntOrDefault("ARBOR_TAB_TIMEOUT_MS", 15000),
		DefaultViewID:    getEnvOrDefault("ARBOR_DEFAULT_VIEW_ID", "view-default"),
		DefaultViewName:  getEnvOrDefault("ARBOR_DEFAULT_VIEW_NAME", "Default"),
		DefaultViewColor: getEnvOrDefault("ARBOR_DEFAULT_VIEW_COLOR", "#808080"),
		LogLevel:         getEnvOrDefault("ARBOR_LOG_LEVEL", "info"),
		LogFile:          getEnvOrDefault("ARBOR_LOG_FILE", ""),
	}

	return cfg, nil
}

// CDPURL returns the full CDP HTTP endpoint.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
