package config

import (
	"encoding/json"
	"os"
	"strconv"
)

// SyncConfig holds synchronization tuning
type SyncConfig struct {
	// ============ BASIC SETTINGS ============
	Enabled bool `json:"enabled"`

	// ============ SCHEDULING ============
	AutoSyncEnabled  bool `json:"auto_sync_enabled"`
	AutoSyncInterval int  `json:"auto_sync_interval"` // seconds
	SyncOnStartup    bool `json:"sync_on_startup"`

	// ============ RETRY ============
	MaxAttempts       int `json:"max_attempts"`
	RetryDelaySeconds int `json:"retry_delay_seconds"`

	// ============ CONNECTIVITY ============
	HealthCheckInterval int `json:"health_check_interval"` // seconds

	// ============ CHAINAGE CACHE ============
	CacheStaleHours int `json:"cache_stale_hours"`
	CacheWindow     int `json:"cache_window"` // most recent remote records per refresh
}

// LoadSyncConfig loads sync configuration from environment or file
func LoadSyncConfig() *SyncConfig {
	// Try to load from file first
	if configPath := os.Getenv("SYNC_CONFIG_PATH"); configPath != "" {
		if cfg, err := loadSyncConfigFromFile(configPath); err == nil {
			return cfg
		}
	}

	// Otherwise use defaults
	return getDefaultSyncConfig()
}

// loadSyncConfigFromFile loads sync config from JSON file
func loadSyncConfigFromFile(path string) (*SyncConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg SyncConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// getDefaultSyncConfig returns default sync configuration
func getDefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		Enabled: getBoolEnv("SYNC_ENABLED", true),

		AutoSyncEnabled:  getBoolEnv("SYNC_AUTO_ENABLED", true),
		AutoSyncInterval: getIntEnv("SYNC_AUTO_INTERVAL", 300),
		SyncOnStartup:    getBoolEnv("SYNC_ON_STARTUP", true),

		MaxAttempts:       getIntEnv("SYNC_MAX_ATTEMPTS", 5),
		RetryDelaySeconds: getIntEnv("SYNC_RETRY_DELAY", 5),

		HealthCheckInterval: getIntEnv("SYNC_HEALTH_INTERVAL", 30),

		CacheStaleHours: getIntEnv("CHAINAGE_STALE_HOURS", 24),
		CacheWindow:     getIntEnv("CHAINAGE_WINDOW", 500),
	}
}

// getBoolEnv gets a boolean environment variable with default
func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1"
}

// getIntEnv gets an integer environment variable with default
func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return defaultValue
}
