package hrtf

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"auralis.click/internal/audio"
)

// ManifestName is the file Load looks for inside an HRTF directory
const ManifestName = "hrtf.json"

// Manifest describes a measured set on disk. Each entry points at a
// stereo impulse response file (left, right) relative to the manifest.
type Manifest struct {
	Name       string           `json:"name,omitempty"`
	Directions []ManifestSample `json:"directions"`
}

// ManifestSample is one measured direction
type ManifestSample struct {
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
	File      string  `json:"file"`
}

// Load reads dir/hrtf.json and every impulse response it references
func Load(fs afero.Fs, dir string, registry *audio.DecoderRegistry) (*Set, error) {
	manifestPath := filepath.Join(dir, ManifestName)
	slog.Debug("loading hrtf manifest", "path", manifestPath)

	data, err := afero.ReadFile(fs, manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read hrtf manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse hrtf manifest %s: %w", manifestPath, err)
	}
	if len(m.Directions) == 0 {
		return nil, ErrNoDirections
	}
	if registry == nil {
		registry = audio.NewDefaultRegistry()
	}

	s := &Set{}
	for i, d := range m.Directions {
		path := filepath.Join(dir, d.File)
		raw, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, fmt.Errorf("direction %d: %w", i, err)
		}

		sample, err := audio.NewSample(d.File, "", raw, registry, nil)
		if err != nil {
			return nil, fmt.Errorf("direction %d (%s): %w", i, d.File, err)
		}
		chans, err := sample.DecodeAll()
		if err != nil {
			return nil, fmt.Errorf("direction %d (%s): %w", i, d.File, err)
		}

		if s.SampleRate == 0 {
			s.SampleRate = sample.SampleRate()
		} else if s.SampleRate != sample.SampleRate() {
			return nil, fmt.Errorf("%w: %s is %d Hz, set is %d Hz",
				ErrInvalidSet, d.File, sample.SampleRate(), s.SampleRate)
		}

		left, right := chans[0], chans[0]
		if len(chans) > 1 {
			right = chans[1]
		}
		s.Add(d.Azimuth, d.Elevation, left, right)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	slog.Info("hrtf set loaded",
		"name", m.Name,
		"directions", len(s.Directions),
		"sample_rate", s.SampleRate)

	return s, nil
}
