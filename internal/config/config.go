package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"auralis.click/internal/engine"
)

// FileLoggingConfig represents file-based logging configuration
type FileLoggingConfig struct {
	Enabled    bool   `json:"enabled"`      // Whether file logging is enabled
	Filename   string `json:"filename"`     // Log file path (empty = XDG cache path)
	MaxSizeMB  int    `json:"max_size_mb"`  // Max file size in MB before rotation
	MaxBackups int    `json:"max_backups"`  // Max number of backup files to keep
	MaxAgeDays int    `json:"max_age_days"` // Max age in days before deletion
	Compress   bool   `json:"compress"`     // Whether to compress rotated files
}

// Config represents auralis configuration
type Config struct {
	LogLevel      string             `json:"log_level"`              // Log level (debug, info, warn, error)
	OutputBackend string             `json:"output_backend"`         // Output backend (auto, malgo, oto)
	AssetPaths    []string           `json:"asset_paths"`            // Extra directories searched for assets
	AssetPacks    []string           `json:"asset_packs"`            // Pack manifests mapping asset names to files
	HRTFPath      string             `json:"hrtf_path"`              // Directory holding hrtf.json (empty = built-in head model)
	FileLogging   *FileLoggingConfig `json:"file_logging,omitempty"` // File logging configuration
	Tracking      *TrackingConfig    `json:"tracking,omitempty"`     // Telemetry database configuration
	Engine        engine.Config      `json:"engine"`                 // Render engine parameters
}

// XDGInterface defines the interface for XDG directory operations
type XDGInterface interface {
	GetConfigPaths(filename string) []string
	GetAssetPaths(kind string) []string
	GetCachePath(purpose string) string
	CreateCacheDir(purpose string) error
	FindAsset(kind, relativePath string) string
}

// ConfigManager handles loading, saving, and validating configuration
type ConfigManager struct {
	xdg XDGInterface
	fs  afero.Fs
}

// NewConfigManager creates a new configuration manager on the OS filesystem
func NewConfigManager() *ConfigManager {
	return NewConfigManagerWithFilesystem(afero.NewOsFs())
}

// NewConfigManagerWithFilesystem creates a configuration manager reading
// and writing through fs
func NewConfigManagerWithFilesystem(fs afero.Fs) *ConfigManager {
	slog.Debug("creating new config manager")
	return &ConfigManager{
		xdg: NewXDGDirs(),
		fs:  fs,
	}
}

// XDG returns the directory resolver
func (cm *ConfigManager) XDG() XDGInterface { return cm.xdg }

// GetDefaultConfig returns the default configuration
func (cm *ConfigManager) GetDefaultConfig() *Config {
	defaultConfig := &Config{
		LogLevel:      "warn",
		OutputBackend: "auto",
		AssetPaths:    []string{}, // XDG paths will be used
		FileLogging: &FileLoggingConfig{
			Enabled:    false,
			Filename:   "", // Empty = XDG cache path
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Tracking: GetDefaultTrackingConfig(),
		Engine:   engine.DefaultConfig(),
	}

	slog.Debug("generated default config",
		"log_level", defaultConfig.LogLevel,
		"output_backend", defaultConfig.OutputBackend,
		"sample_rate", defaultConfig.Engine.SampleRate,
		"block_size", defaultConfig.Engine.BlockSize,
		"file_logging_enabled", defaultConfig.FileLogging.Enabled)

	return defaultConfig
}

// LoadFromFile loads configuration from a specific file. Fields the file
// leaves out keep their default values.
func (cm *ConfigManager) LoadFromFile(filePath string) (*Config, error) {
	slog.Debug("loading config from file", "file_path", filePath)

	data, err := afero.ReadFile(cm.fs, filePath)
	if err != nil {
		slog.Error("failed to read config file", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := cm.GetDefaultConfig()
	err = json.Unmarshal(data, config)
	if err != nil {
		slog.Error("failed to parse config JSON", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	err = cm.ValidateConfig(config)
	if err != nil {
		slog.Error("config validation failed", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	slog.Debug("config loaded successfully",
		"file_path", filePath,
		"output_backend", config.OutputBackend,
		"sample_rate", config.Engine.SampleRate)

	return config, nil
}

// SaveToFile saves configuration to a specific file
func (cm *ConfigManager) SaveToFile(config *Config, filePath string) error {
	slog.Debug("saving config to file", "file_path", filePath)

	err := cm.ValidateConfig(config)
	if err != nil {
		slog.Error("cannot save invalid config", "error", err)
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	dir := filepath.Dir(filePath)
	err = cm.fs.MkdirAll(dir, 0755)
	if err != nil {
		slog.Error("failed to create config directory", "directory", dir, "error", err)
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		slog.Error("failed to marshal config", "error", err)
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = afero.WriteFile(cm.fs, filePath, data, 0644)
	if err != nil {
		slog.Error("failed to write config file", "file_path", filePath, "error", err)
		return fmt.Errorf("failed to write config file: %w", err)
	}

	slog.Info("config saved successfully", "file_path", filePath)
	return nil
}

// LoadConfig loads configuration using XDG path discovery
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	slog.Debug("loading config using XDG path discovery")

	configPaths := cm.xdg.GetConfigPaths("config.json")

	for i, configPath := range configPaths {
		slog.Debug("checking config path", "path_index", i, "path", configPath)

		if exists, _ := afero.Exists(cm.fs, configPath); exists {
			slog.Debug("found config file", "path", configPath)
			return cm.LoadFromFile(configPath)
		}
	}

	slog.Debug("no config file found, using defaults")
	return cm.GetDefaultConfig(), nil
}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// ValidateConfig validates configuration values
func (cm *ConfigManager) ValidateConfig(config *Config) error {
	var errors []string

	if config.LogLevel != "" && !slices.Contains(validLogLevels, config.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s', must be one of: %s",
			config.LogLevel, strings.Join(validLogLevels, ", ")))
	}

	if !cm.IsValidOutputBackend(config.OutputBackend) {
		errors = append(errors, fmt.Sprintf("invalid output backend '%s', must be one of: %s",
			config.OutputBackend, strings.Join(cm.GetSupportedOutputBackends(), ", ")))
	}

	if fileLogging := config.FileLogging; fileLogging != nil {
		if fileLogging.MaxSizeMB < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_size_mb must be >= 0, got %d", fileLogging.MaxSizeMB))
		}
		if fileLogging.MaxBackups < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_backups must be >= 0, got %d", fileLogging.MaxBackups))
		}
		if fileLogging.MaxAgeDays < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_age_days must be >= 0, got %d", fileLogging.MaxAgeDays))
		}
	}

	if err := config.Engine.Validate(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		errMsg := strings.Join(errors, "; ")
		slog.Error("config validation failed", "errors", errMsg)
		return fmt.Errorf("config validation failed: %s", errMsg)
	}

	slog.Debug("config validation passed")
	return nil
}

// MergeConfigs merges two configurations, with override taking precedence.
// Engine values are taken from override wherever they are non-zero.
func (cm *ConfigManager) MergeConfigs(base, override *Config) *Config {
	slog.Debug("merging configurations")

	merged := *base

	if override.LogLevel != "" {
		merged.LogLevel = override.LogLevel
		slog.Debug("merged log level override", "value", override.LogLevel)
	}
	if override.OutputBackend != "" {
		merged.OutputBackend = override.OutputBackend
		slog.Debug("merged output backend override", "value", override.OutputBackend)
	}
	if len(override.AssetPaths) > 0 {
		merged.AssetPaths = override.AssetPaths
		slog.Debug("merged asset paths override", "paths", override.AssetPaths)
	}
	if len(override.AssetPacks) > 0 {
		merged.AssetPacks = override.AssetPacks
	}
	if override.HRTFPath != "" {
		merged.HRTFPath = override.HRTFPath
	}
	if override.FileLogging != nil {
		merged.FileLogging = override.FileLogging
	}
	if override.Tracking != nil {
		merged.Tracking = override.Tracking
	}

	mergeEngine(&merged.Engine, override.Engine)

	slog.Debug("configurations merged successfully")
	return &merged
}

func mergeEngine(dst *engine.Config, o engine.Config) {
	setInt := func(d *int, v int) {
		if v != 0 {
			*d = v
		}
	}
	setFloat := func(d *float64, v float64) {
		if v != 0 {
			*d = v
		}
	}
	setInt(&dst.SampleRate, o.SampleRate)
	setInt(&dst.BlockSize, o.BlockSize)
	setInt(&dst.MaxSources, o.MaxSources)
	setInt(&dst.MaxZones, o.MaxZones)
	setInt(&dst.MaxReverbPartition, o.MaxReverbPartition)
	setInt(&dst.PoolSlots, o.PoolSlots)
	setInt(&dst.WindowFrames, o.WindowFrames)
	setInt(&dst.IdleExpiryBlocks, o.IdleExpiryBlocks)
	setFloat(&dst.ReverbMaxSeconds, o.ReverbMaxSeconds)
	setFloat(&dst.GlobalGain, o.GlobalGain)
	setFloat(&dst.ReverbSend, o.ReverbSend)
	setFloat(&dst.AmbientGain, o.AmbientGain)
	setFloat(&dst.GainCutoff, o.GainCutoff)
	setFloat(&dst.RampMillis, o.RampMillis)
	setFloat(&dst.LimiterCeiling, o.LimiterCeiling)
	setFloat(&dst.LimiterAttackMillis, o.LimiterAttackMillis)
	setFloat(&dst.LimiterReleaseMillis, o.LimiterReleaseMillis)
	// booleans cannot be told apart from unset; explicit values in a
	// loaded file already replaced the defaults during decoding
}

// ApplyEnvironmentOverrides applies environment variable overrides to config
func (cm *ConfigManager) ApplyEnvironmentOverrides(config *Config) *Config {
	slog.Debug("applying environment variable overrides")

	result := *config

	if logLevel := os.Getenv("AURALIS_LOG_LEVEL"); logLevel != "" {
		result.LogLevel = logLevel
		slog.Debug("applied log level override from environment", "value", logLevel)
	}

	if backend := os.Getenv("AURALIS_OUTPUT"); backend != "" {
		if cm.IsValidOutputBackend(backend) {
			result.OutputBackend = backend
			slog.Debug("applied output backend override from environment", "value", backend)
		} else {
			slog.Warn("invalid AURALIS_OUTPUT environment variable", "value", backend)
		}
	}

	if gainStr := os.Getenv("AURALIS_GLOBAL_GAIN"); gainStr != "" {
		if gain, err := strconv.ParseFloat(gainStr, 64); err == nil && gain >= 0 {
			result.Engine.GlobalGain = gain
			slog.Debug("applied global gain override from environment", "value", gain)
		} else {
			slog.Warn("invalid AURALIS_GLOBAL_GAIN environment variable", "value", gainStr, "error", err)
		}
	}

	envBool := func(name string, dst *bool) {
		s := os.Getenv(name)
		if s == "" {
			return
		}
		v, err := strconv.ParseBool(s)
		if err != nil {
			slog.Warn("invalid boolean environment variable", "name", name, "value", s, "error", err)
			return
		}
		*dst = v
		slog.Debug("applied override from environment", "name", name, "value", v)
	}
	envBool("AURALIS_HRTF", &result.Engine.HRTF)
	envBool("AURALIS_HQ_HRTF", &result.Engine.HighQualityHRTF)
	envBool("AURALIS_REVERB", &result.Engine.Reverb)

	if result.Tracking != nil {
		result.Tracking = ApplyTrackingEnvironmentOverrides(result.Tracking)
	}

	slog.Debug("environment overrides applied")
	return &result
}

// ParseLevel converts a config log level to a slog level
func ParseLevel(logLevel string) (slog.Level, error) {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level '%s', must be one of: %s", logLevel, strings.Join(validLogLevels, ", "))
}

// ApplyLogLevel configures slog with the specified log level on stderr
func (cm *ConfigManager) ApplyLogLevel(logLevel string) error {
	return cm.ApplyLogLevelWithWriter(logLevel, os.Stderr)
}

// ApplyLogLevelWithWriter configures slog with the specified log level and writer
func (cm *ConfigManager) ApplyLogLevelWithWriter(logLevel string, writer io.Writer) error {
	if logLevel == "" {
		slog.Debug("no log level specified, keeping current slog configuration")
		return nil
	}

	level, err := ParseLevel(logLevel)
	if err != nil {
		slog.Error("invalid log level for slog configuration", "log_level", logLevel, "error", err)
		return err
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	slog.Debug("slog configured successfully", "log_level", logLevel, "slog_level", level)
	return nil
}

// ResolveLogFilePath resolves the log file path using XDG cache directory when filename is empty
func (cm *ConfigManager) ResolveLogFilePath(filename string) string {
	if filename != "" {
		return filename
	}
	return filepath.Join(cm.xdg.GetCachePath("logs"), "auralis.log")
}

// GetSupportedOutputBackends returns a list of all supported output backend types
func (cm *ConfigManager) GetSupportedOutputBackends() []string {
	return []string{"auto", "malgo", "oto"}
}

// IsValidOutputBackend checks if an output backend type is supported
func (cm *ConfigManager) IsValidOutputBackend(backend string) bool {
	// Empty string is valid (defaults to auto)
	if backend == "" {
		return true
	}
	return slices.Contains(cm.GetSupportedOutputBackends(), backend)
}
