package assetpack

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"auralis.click/internal/audio"
)

// Resolver finds asset files through an ordered list of mappers. The first
// candidate that exists wins, so packs listed earlier shadow later ones.
type Resolver struct {
	fs      afero.Fs
	mappers []PathMapper
}

// NewResolver creates a resolver checking candidates on fs
func NewResolver(fs afero.Fs, mappers ...PathMapper) *Resolver {
	for _, m := range mappers {
		slog.Debug("asset resolver mapper", "name", m.GetName(), "type", m.GetType())
	}
	return &Resolver{fs: fs, mappers: mappers}
}

// Resolve returns the file for requested. Absolute paths are used as given.
// A miss is reported as an *audio.FileNotFoundError listing every candidate.
func (r *Resolver) Resolve(requested string) (string, error) {
	if requested == "" {
		return "", fmt.Errorf("asset path cannot be empty")
	}

	var searched []string
	if filepath.IsAbs(requested) {
		searched = []string{requested}
	} else {
		for _, m := range r.mappers {
			candidates, err := m.MapPath(requested)
			if err != nil {
				return "", fmt.Errorf("%s mapper %s: %w", m.GetType(), m.GetName(), err)
			}
			searched = append(searched, candidates...)
		}
	}

	for _, candidate := range searched {
		if ok, _ := afero.Exists(r.fs, candidate); ok {
			slog.Debug("asset resolved", "requested", requested, "path", candidate)
			return candidate, nil
		}
	}

	return "", &audio.FileNotFoundError{Path: requested, Searched: searched}
}

// ResolveWithFallback resolves the first of paths that exists
func (r *Resolver) ResolveWithFallback(paths []string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("no fallback paths provided")
	}

	var lastErr error
	for i, p := range paths {
		resolved, err := r.Resolve(p)
		if err == nil {
			if i > 0 {
				slog.Debug("asset resolved by fallback", "requested", paths[0], "fallback", p, "index", i)
			}
			return resolved, nil
		}
		lastErr = err
	}
	return "", lastErr
}
