package config

import (
	"encoding/json"
	"os"
)

// SyncConfig holds reconciliation tunables
type SyncConfig struct {
	// ============ BASIC SETTINGS ============
	Enabled       bool `json:"enabled"`
	SyncOnStartup bool `json:"sync_on_startup"`

	// ============ SCHEDULING ============
	AutoSyncEnabled  bool `json:"auto_sync_enabled"`
	AutoSyncInterval int  `json:"auto_sync_interval"` // seconds

	// ============ RETRY / BACKOFF ============
	MaxRetries         int   `json:"max_retries"`
	MinRetryIntervalMs int64 `json:"min_retry_interval_ms"`
	MaxRetryIntervalMs int64 `json:"max_retry_interval_ms"`

	// ============ UPLOADS ============
	MaxUploadAttempts      int   `json:"max_upload_attempts"`
	UploadStaleThresholdMs int64 `json:"upload_stale_threshold_ms"`
	UploadRetentionMs      int64 `json:"upload_retention_ms"`

	// ============ AUDIT LOG ============
	ConflictLogCap      int   `json:"conflict_log_cap"`
	ConflictRetentionMs int64 `json:"conflict_retention_ms"`
	ErrorLogCap         int   `json:"error_log_cap"`

	// ============ ESCALATION ============
	BackdatedCompletionThresholdMs int64 `json:"backdated_completion_threshold_ms"`
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
	return DefaultSyncConfig()
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

// DefaultSyncConfig returns default sync configuration
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		Enabled:       getBoolEnv("SYNC_ENABLED", true),
		SyncOnStartup: getBoolEnv("SYNC_ON_STARTUP", true),

		AutoSyncEnabled:  getBoolEnv("SYNC_AUTO_ENABLED", true),
		AutoSyncInterval: getIntEnv("SYNC_AUTO_INTERVAL", 300),

		MaxRetries:         getIntEnv("SYNC_MAX_RETRIES", 5),
		MinRetryIntervalMs: 30 * 1000,   // 30s floor between attempts
		MaxRetryIntervalMs: 3600 * 1000, // 1h cap

		MaxUploadAttempts:      getIntEnv("SYNC_MAX_UPLOAD_ATTEMPTS", 5),
		UploadStaleThresholdMs: 10 * 60 * 1000,          // 10min stuck = app was killed
		UploadRetentionMs:      7 * 24 * 60 * 60 * 1000, // keep finished uploads a week

		ConflictLogCap:      500,
		ConflictRetentionMs: 30 * 24 * 60 * 60 * 1000, // 30 days
		ErrorLogCap:         100,

		BackdatedCompletionThresholdMs: 24 * 60 * 60 * 1000, // 24h
	}
}
