package assetpack

import (
	"log/slog"
	"path/filepath"
)

// PathMapper turns a requested asset path into candidate file paths
type PathMapper interface {
	MapPath(requested string) ([]string, error)
	GetName() string
	GetType() string
}

// DirectoryMapper joins the requested path onto each base directory
type DirectoryMapper struct {
	name      string
	basePaths []string
}

// NewDirectoryMapper creates a mapper over basePaths, tried in order
func NewDirectoryMapper(name string, basePaths []string) *DirectoryMapper {
	slog.Debug("creating directory mapper", "name", name, "base_paths", basePaths)
	return &DirectoryMapper{name: name, basePaths: basePaths}
}

// MapPath returns one candidate per base directory
func (d *DirectoryMapper) MapPath(requested string) ([]string, error) {
	if requested == "" {
		return nil, nil
	}
	candidates := make([]string, 0, len(d.basePaths))
	for _, base := range d.basePaths {
		candidates = append(candidates, filepath.Join(base, requested))
	}
	return candidates, nil
}

func (d *DirectoryMapper) GetName() string { return d.name }
func (d *DirectoryMapper) GetType() string { return "directory" }

// JSONMapper maps logical asset names to files listed in a pack manifest
type JSONMapper struct {
	name    string
	baseDir string
	mapping map[string]string
}

// NewJSONMapper creates a mapper from name to path. Relative paths in the
// mapping are taken relative to baseDir.
func NewJSONMapper(name, baseDir string, mapping map[string]string) *JSONMapper {
	slog.Debug("creating JSON mapper", "name", name, "base_dir", baseDir, "entries", len(mapping))
	return &JSONMapper{name: name, baseDir: baseDir, mapping: mapping}
}

// MapPath returns the mapped file, or nothing when the name is not in the
// pack
func (j *JSONMapper) MapPath(requested string) ([]string, error) {
	target, ok := j.mapping[requested]
	if !ok {
		return nil, nil
	}
	if !filepath.IsAbs(target) && j.baseDir != "" {
		target = filepath.Join(j.baseDir, target)
	}
	return []string{target}, nil
}

// Names lists the logical names the pack provides
func (j *JSONMapper) Names() []string {
	names := make([]string, 0, len(j.mapping))
	for name := range j.mapping {
		names = append(names, name)
	}
	return names
}

func (j *JSONMapper) GetName() string { return j.name }
func (j *JSONMapper) GetType() string { return "json" }
