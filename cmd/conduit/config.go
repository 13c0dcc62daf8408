package main

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds conduit CLI configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	BaseURL  string `json:"base_url"`
	DBPath   string `json:"db_path"`
	LogLevel string `json:"log_level"`
}

func defaultConfig() Config {
	return Config{
		BaseURL:  "http://localhost:4200",
		LogLevel: "info",
	}
}

func conduitDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".conduit"
	}
	return filepath.Join(home, ".conduit")
}

func settingsPath() string {
	return filepath.Join(conduitDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("CONDUIT_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("CONDUIT_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CONDUIT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}

func logLevel(name string) string {
	switch name {
	case "debug", "info", "warn", "error":
		return name
	default:
		return "info"
	}
}
