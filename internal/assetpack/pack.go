package assetpack

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrInvalidPack is returned for a manifest that cannot be used
var ErrInvalidPack = errors.New("invalid asset pack")

// Manifest is the on-disk form of an asset pack:
//
//	{
//	  "name": "forest",
//	  "assets": {"wind": "beds/wind.ogg", "hall": "/srv/ir/hall.wav"}
//	}
type Manifest struct {
	Name   string            `json:"name"`
	Assets map[string]string `json:"assets"`
}

// LoadPack reads a manifest from fs. Relative asset paths resolve against
// the manifest's directory; a manifest without a name is named after its
// file.
func LoadPack(fs afero.Fs, path string) (*JSONMapper, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset pack %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPack, path, err)
	}
	if len(m.Assets) == 0 {
		return nil, fmt.Errorf("%w: %s lists no assets", ErrInvalidPack, path)
	}
	for name, target := range m.Assets {
		if name == "" || target == "" {
			return nil, fmt.Errorf("%w: %s has an empty entry", ErrInvalidPack, path)
		}
	}

	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	slog.Info("asset pack loaded", "name", m.Name, "path", path, "assets", len(m.Assets))
	return NewJSONMapper(m.Name, filepath.Dir(path), m.Assets), nil
}
