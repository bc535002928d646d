package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// FileNotFoundError represents an asset missing from every search root
type FileNotFoundError struct {
	Path     string
	Searched []string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("asset not found: %s (searched in: %s)", e.Path, strings.Join(e.Searched, ", "))
}

// IsFileNotFoundError checks if an error is a FileNotFoundError
func IsFileNotFoundError(err error) bool {
	var target *FileNotFoundError
	return errors.As(err, &target)
}

// FailureHook is told about every asset that could not be loaded
type FailureHook func(name, path string, err error)

// Resolver maps a requested asset path to a file on the library's
// filesystem. It replaces the library's own root search.
type Resolver interface {
	Resolve(path string) (string, error)
}

// Library is the asset registry: it loads containers from a filesystem and
// shares one Sample per name.
type Library struct {
	fs       afero.Fs
	roots    []string
	registry *DecoderRegistry
	cache    *BufferCache

	mu        sync.RWMutex
	samples   map[string]*Sample
	onFailure FailureHook
	resolver  Resolver
}

// NewLibrary creates a library reading from fs. Relative paths are tried
// against each root in order; with no roots they are used as given.
func NewLibrary(fs afero.Fs, registry *DecoderRegistry, cache *BufferCache, roots ...string) *Library {
	if registry == nil {
		registry = NewDefaultRegistry()
	}
	slog.Debug("creating asset library", "roots", roots)
	return &Library{
		fs:       fs,
		roots:    roots,
		registry: registry,
		cache:    cache,
		samples:  make(map[string]*Sample),
	}
}

// SetFailureHook installs a callback for load failures
func (l *Library) SetFailureHook(hook FailureHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onFailure = hook
}

// SetResolver installs a custom path resolver
func (l *Library) SetResolver(r Resolver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resolver = r
}

// Registry returns the decoder registry used for loading
func (l *Library) Registry() *DecoderRegistry { return l.registry }

// NameFor returns the key a path is stored under
func NameFor(path string) string {
	return filepath.Base(path)
}

// Load reads path and registers it under NameFor(path). A sample already
// loaded under that name is returned as is. On failure a silent sample is
// registered so references to it keep working, and the error is returned.
func (l *Library) Load(path string) (*Sample, error) {
	name := NameFor(path)

	l.mu.RLock()
	if s, ok := l.samples[name]; ok {
		l.mu.RUnlock()
		slog.Debug("asset already loaded", "name", name)
		return s, nil
	}
	l.mu.RUnlock()

	full, err := l.resolve(path)
	if err != nil {
		return l.fail(name, path, Silent(name), err)
	}

	data, err := afero.ReadFile(l.fs, full)
	if err != nil {
		return l.fail(name, full, Silent(name), fmt.Errorf("read %s: %w", full, err))
	}

	s, err := NewSample(name, strings.TrimPrefix(filepath.Ext(full), "."), data, l.registry, l.cache)
	if err != nil {
		return l.fail(name, full, s, err)
	}

	l.mu.Lock()
	if existing, ok := l.samples[name]; ok {
		l.mu.Unlock()
		return existing, nil
	}
	l.samples[name] = s
	l.mu.Unlock()

	slog.Info("asset loaded", "name", name, "path", full, "frames", s.Frames())
	return s, nil
}

// Get returns a loaded sample
func (l *Library) Get(name string) (*Sample, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.samples[name]
	return s, ok
}

// Unload removes a sample and makes it silent for anyone still holding it
func (l *Library) Unload(name string) bool {
	l.mu.Lock()
	s, ok := l.samples[name]
	delete(l.samples, name)
	l.mu.Unlock()

	if !ok {
		return false
	}
	s.Close()
	slog.Info("asset unloaded", "name", name)
	return true
}

// Names lists loaded assets in sorted order
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.samples))
	for name := range l.samples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Library) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("asset path cannot be empty")
	}
	l.mu.RLock()
	r := l.resolver
	l.mu.RUnlock()
	if r != nil {
		return r.Resolve(path)
	}
	if filepath.IsAbs(path) || len(l.roots) == 0 {
		if ok, _ := afero.Exists(l.fs, path); ok {
			return path, nil
		}
		return "", &FileNotFoundError{Path: path, Searched: []string{path}}
	}

	searched := make([]string, 0, len(l.roots))
	for _, root := range l.roots {
		full := filepath.Join(root, path)
		searched = append(searched, full)
		if ok, _ := afero.Exists(l.fs, full); ok {
			return full, nil
		}
	}
	return "", &FileNotFoundError{Path: path, Searched: searched}
}

func (l *Library) fail(name, path string, s *Sample, err error) (*Sample, error) {
	slog.Warn("asset load failed, substituting silence", "name", name, "path", path, "error", err)

	l.mu.Lock()
	if _, ok := l.samples[name]; !ok {
		l.samples[name] = s
	}
	hook := l.onFailure
	l.mu.Unlock()

	if hook != nil {
		hook(name, path, err)
	}
	return s, err
}
