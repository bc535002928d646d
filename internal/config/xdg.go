package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

// appDir is the directory name used under every XDG base directory
const appDir = "auralis"

// XDGDirs provides XDG Base Directory compliant paths for auralis
type XDGDirs struct{}

// NewXDGDirs creates a new XDG directory manager
func NewXDGDirs() *XDGDirs {
	slog.Debug("creating new XDG directory manager")
	return &XDGDirs{}
}

// GetAssetPaths returns prioritized directories where sound assets of a
// kind ("samples", "hrtf", "impulses") can be found: the user data dir,
// then the system data dirs
func (x *XDGDirs) GetAssetPaths(kind string) []string {
	var paths []string

	baseDir := filepath.Join(appDir, "assets")
	if kind != "" {
		baseDir = filepath.Join(baseDir, kind)
	}

	userPath := filepath.Join(xdg.DataHome, baseDir)
	paths = append(paths, userPath)

	for _, dataDir := range xdg.DataDirs {
		paths = append(paths, filepath.Join(dataDir, baseDir))
	}

	slog.Debug("generated asset paths",
		"kind", kind,
		"total_paths", len(paths),
		"user_path", userPath,
		"system_paths", len(xdg.DataDirs))

	return paths
}

// GetCachePath returns the cache directory path for a specific purpose
func (x *XDGDirs) GetCachePath(purpose string) string {
	baseDir := appDir
	if purpose != "" {
		baseDir = filepath.Join(baseDir, purpose)
	}

	cachePath := filepath.Join(xdg.CacheHome, baseDir)

	slog.Debug("generated cache path",
		"purpose", purpose,
		"cache_path", cachePath)

	return cachePath
}

// GetConfigPaths returns prioritized paths where config files can be found
// Returns paths in search order: user config dir, then system config dirs
func (x *XDGDirs) GetConfigPaths(filename string) []string {
	var paths []string

	userConfigPath := filepath.Join(xdg.ConfigHome, appDir)
	if filename != "" {
		userConfigPath = filepath.Join(userConfigPath, filename)
	}
	paths = append(paths, userConfigPath)

	for _, configDir := range xdg.ConfigDirs {
		systemConfigPath := filepath.Join(configDir, appDir)
		if filename != "" {
			systemConfigPath = filepath.Join(systemConfigPath, filename)
		}
		paths = append(paths, systemConfigPath)
	}

	slog.Debug("generated config paths",
		"filename", filename,
		"total_paths", len(paths),
		"user_path", userConfigPath,
		"system_paths", len(xdg.ConfigDirs))

	return paths
}

// CreateCacheDir creates the cache directory for a specific purpose
func (x *XDGDirs) CreateCacheDir(purpose string) error {
	cachePath := x.GetCachePath(purpose)

	slog.Debug("creating cache directory", "path", cachePath)

	err := os.MkdirAll(cachePath, 0755)
	if err != nil {
		slog.Error("failed to create cache directory", "path", cachePath, "error", err)
		return err
	}

	slog.Info("cache directory created successfully", "path", cachePath)
	return nil
}

// FindAsset searches the asset directories of kind for relativePath.
// Returns the full path to the first existing file, or empty string if not found
func (x *XDGDirs) FindAsset(kind, relativePath string) string {
	if relativePath == "" {
		slog.Debug("empty asset path", "kind", kind)
		return ""
	}

	relativePath = sanitizePath(relativePath)
	if relativePath == "" {
		slog.Warn("asset path was empty after sanitization")
		return ""
	}

	for i, basePath := range x.GetAssetPaths(kind) {
		fullPath := filepath.Join(basePath, relativePath)
		if _, err := os.Stat(fullPath); err == nil {
			slog.Info("asset found",
				"kind", kind,
				"relative_path", relativePath,
				"full_path", fullPath,
				"path_index", i)
			return fullPath
		}
	}

	slog.Debug("asset not found in any path",
		"kind", kind,
		"relative_path", relativePath)

	return ""
}

// sanitizePath removes dangerous path components and normalizes the path
func sanitizePath(path string) string {
	path = strings.ReplaceAll(path, "\x00", "")
	path = strings.ReplaceAll(path, "\n", "")
	path = strings.ReplaceAll(path, "\r", "")

	path = filepath.Clean(path)

	// relative paths only, no escaping the asset root
	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, "..") || strings.Contains(path, "../") {
		slog.Warn("rejecting potentially dangerous path", "path", path)
		return ""
	}

	return path
}
