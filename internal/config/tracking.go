package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// TrackingConfig represents the telemetry database configuration
type TrackingConfig struct {
	Enabled      bool   `json:"enabled"`       // Whether asset failures and render stats are recorded
	DatabasePath string `json:"database_path"` // Custom database path (empty = XDG cache path)
}

// GetDefaultTrackingConfig returns the default tracking configuration
func GetDefaultTrackingConfig() *TrackingConfig {
	return &TrackingConfig{
		Enabled:      true,
		DatabasePath: "", // Empty = XDG cache path
	}
}

// ApplyTrackingEnvironmentOverrides applies environment variable overrides to tracking config
func ApplyTrackingEnvironmentOverrides(config *TrackingConfig) *TrackingConfig {
	slog.Debug("applying tracking environment variable overrides")

	result := *config

	if trackingStr := os.Getenv("AURALIS_TRACKING"); trackingStr != "" {
		if enabled, err := strconv.ParseBool(trackingStr); err == nil {
			result.Enabled = enabled
			slog.Debug("applied tracking override from environment", "value", enabled)
		} else {
			slog.Warn("invalid AURALIS_TRACKING environment variable", "value", trackingStr, "error", err)
		}
	}

	if path := os.Getenv("AURALIS_TRACKING_DB"); path != "" {
		result.DatabasePath = path
		slog.Debug("applied tracking database override from environment", "value", path)
	}

	return &result
}

// ResolveTrackingDBPath returns the database path, defaulting to the XDG
// cache directory
func (cm *ConfigManager) ResolveTrackingDBPath(config *TrackingConfig) string {
	if config != nil && config.DatabasePath != "" {
		return config.DatabasePath
	}
	return filepath.Join(cm.xdg.GetCachePath("tracking"), "auralis.db")
}
