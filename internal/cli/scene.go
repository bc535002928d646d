package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"auralis.click/internal/assetpack"
	"auralis.click/internal/audio"
	"auralis.click/internal/config"
	"auralis.click/internal/engine"
	"auralis.click/internal/hrtf"
	"auralis.click/internal/spatial"
	"auralis.click/internal/tracking"
)

// ErrInvalidSpec is returned for malformed --source/--ambient/--reverb values
var ErrInvalidSpec = errors.New("invalid placement")

// defaultZoneRadius makes a zone without an explicit placement cover any
// reasonable scene
const defaultZoneRadius = 1000

// zoneGradient is the fraction of the radius over which a zone fades in
const zoneGradient = 0.2

// sourceSpec is a parsed "path@x,y,z" value
type sourceSpec struct {
	Path     string
	Position spatial.Vec3
}

// zoneSpec is a parsed "path[@x,y,z[:radius]]" value
type zoneSpec struct {
	Path   string
	Center spatial.Vec3
	Radius float64
}

func parseVec(s string) (spatial.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return spatial.Vec3{}, fmt.Errorf("%w: position %q needs x,y,z", ErrInvalidSpec, s)
	}
	var xyz [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return spatial.Vec3{}, fmt.Errorf("%w: bad coordinate %q", ErrInvalidSpec, p)
		}
		xyz[i] = v
	}
	return spatial.V(xyz[0], xyz[1], xyz[2]), nil
}

// splitPlacement splits at the last '@' so paths may contain one
func splitPlacement(s string) (path, placement string) {
	i := strings.LastIndex(s, "@")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}

func parseSourceSpec(s string) (sourceSpec, error) {
	path, placement := splitPlacement(s)
	if path == "" {
		return sourceSpec{}, fmt.Errorf("%w: %q has no path", ErrInvalidSpec, s)
	}
	if placement == "" {
		// straight ahead
		return sourceSpec{Path: path, Position: spatial.V(0, 0, 1)}, nil
	}
	pos, err := parseVec(placement)
	if err != nil {
		return sourceSpec{}, err
	}
	return sourceSpec{Path: path, Position: pos}, nil
}

func parseZoneSpec(s string) (zoneSpec, error) {
	path, placement := splitPlacement(s)
	if path == "" {
		return zoneSpec{}, fmt.Errorf("%w: %q has no path", ErrInvalidSpec, s)
	}
	spec := zoneSpec{Path: path, Radius: defaultZoneRadius}
	if placement == "" {
		return spec, nil
	}

	center, radius, hasRadius := strings.Cut(placement, ":")
	pos, err := parseVec(center)
	if err != nil {
		return zoneSpec{}, err
	}
	spec.Center = pos
	if hasRadius {
		r, err := strconv.ParseFloat(radius, 64)
		if err != nil || !(r > 0) || math.IsInf(r, 0) {
			return zoneSpec{}, fmt.Errorf("%w: radius %q must be positive", ErrInvalidSpec, radius)
		}
		spec.Radius = r
	}
	return spec, nil
}

// sceneOptions are the flags shared by render and play
type sceneOptions struct {
	Sources  []string
	Ambients []string
	Reverbs  []string
	Packs    []string
	Orbit    float64 // revolutions per second around the listener
	Loop     bool
	HRTFPath string
}

// scene owns the engine and the objects placed in it
type scene struct {
	eng     *engine.Engine
	library *audio.Library
	sources []*engine.Source
	base    []spatial.Vec3
	zones   []engine.ZoneID

	listener spatial.Listener
	orbit    float64
	rate     float64
}

// hrtfSource names where the HRTF set came from, for telemetry
func hrtfSource(path string) string {
	if path == "" {
		return "spherical"
	}
	return path
}

// loadHRTF reads a measured set from dir, or returns nil for the built-in
// spherical head model
func loadHRTF(fs afero.Fs, dir string) (*hrtf.Set, error) {
	if dir == "" {
		return nil, nil
	}
	set, err := hrtf.Load(fs, dir, audio.NewDefaultRegistry())
	if err != nil {
		return nil, fmt.Errorf("failed to load HRTF set from %s: %w", dir, err)
	}
	return set, nil
}

// assetRoots lists the directories relative asset paths are resolved in
func assetRoots(cm *config.ConfigManager, cfg *config.Config) []string {
	roots := []string{"."}
	roots = append(roots, cfg.AssetPaths...)
	roots = append(roots, cm.XDG().GetAssetPaths("samples")...)
	return roots
}

// newResolver looks names up in the configured packs, then the packs given
// on the command line, then the asset directories
func newResolver(fs afero.Fs, cm *config.ConfigManager, cfg *config.Config, packs []string) (*assetpack.Resolver, error) {
	var mappers []assetpack.PathMapper
	for _, p := range append(append([]string{}, cfg.AssetPacks...), packs...) {
		pack, err := assetpack.LoadPack(fs, p)
		if err != nil {
			return nil, err
		}
		mappers = append(mappers, pack)
	}
	mappers = append(mappers, assetpack.NewDirectoryMapper("asset-paths", assetRoots(cm, cfg)))
	return assetpack.NewResolver(fs, mappers...), nil
}

// buildScene creates the engine and places every requested source and zone.
// Assets that fail to load play as silence; the failure is logged and, when
// rec is set, recorded.
func buildScene(fs afero.Fs, cm *config.ConfigManager, cfg *config.Config, opts sceneOptions, rec *tracking.Recorder) (*scene, error) {
	if len(opts.Sources) == 0 && len(opts.Ambients) == 0 {
		return nil, fmt.Errorf("%w: nothing to play, add --source or --ambient", ErrInvalidSpec)
	}

	sources := make([]sourceSpec, 0, len(opts.Sources))
	for _, s := range opts.Sources {
		spec, err := parseSourceSpec(s)
		if err != nil {
			return nil, err
		}
		sources = append(sources, spec)
	}
	ambients, err := parseZoneSpecs(opts.Ambients)
	if err != nil {
		return nil, err
	}
	reverbs, err := parseZoneSpecs(opts.Reverbs)
	if err != nil {
		return nil, err
	}

	resolver, err := newResolver(fs, cm, cfg, opts.Packs)
	if err != nil {
		return nil, err
	}

	set, err := loadHRTF(fs, opts.HRTFPath)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(cfg.Engine, set)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	lib := audio.NewLibrary(fs, audio.NewDefaultRegistry(), eng.Cache())
	lib.SetResolver(resolver)
	if rec != nil {
		lib.SetFailureHook(rec.AssetFailed)
	}

	sc := &scene{
		eng:      eng,
		library:  lib,
		listener: spatial.DefaultListener(),
		orbit:    opts.Orbit,
		rate:     float64(eng.SampleRate()),
	}
	built := false
	defer func() {
		if !built {
			sc.Close()
		}
	}()

	for _, spec := range sources {
		sample, _ := lib.Load(spec.Path)
		src, err := eng.NewSource(sample)
		if err != nil {
			return nil, fmt.Errorf("failed to add source %s: %w", spec.Path, err)
		}
		src.SetLoop(opts.Loop)
		src.SetPosition(spec.Position)
		if err := src.Play(); err != nil {
			return nil, fmt.Errorf("failed to play source %s: %w", spec.Path, err)
		}
		sc.sources = append(sc.sources, src)
		sc.base = append(sc.base, spec.Position)
	}

	for _, z := range ambients {
		if err := sc.addZone(engine.Ambient, z); err != nil {
			return nil, err
		}
	}
	for _, z := range reverbs {
		if err := sc.addZone(engine.Reverb, z); err != nil {
			return nil, err
		}
	}

	slog.Info("scene built",
		"sources", len(sc.sources),
		"ambient_zones", len(ambients),
		"reverb_zones", len(reverbs),
		"hrtf", hrtfSource(opts.HRTFPath))
	built = true
	return sc, nil
}

func parseZoneSpecs(values []string) ([]zoneSpec, error) {
	specs := make([]zoneSpec, 0, len(values))
	for _, v := range values {
		spec, err := parseZoneSpec(v)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (sc *scene) addZone(kind engine.ZoneKind, z zoneSpec) error {
	sample, _ := sc.library.Load(z.Path)
	id, err := sc.eng.AddZone(engine.Zone{
		Kind:   kind,
		Sample: sample,
		Gain:   1,
		Volume: spatial.Volume{
			Transform: spatial.Sphere(z.Center, z.Radius),
			Gradient:  zoneGradient,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to add %s zone %s: %w", kind, z.Path, err)
	}
	sc.zones = append(sc.zones, id)
	return nil
}

// Tick moves orbiting sources to where they are at frame and publishes the
// scene to the render thread
func (sc *scene) Tick(frame int64) {
	if sc.orbit != 0 {
		angle := 2 * math.Pi * sc.orbit * float64(frame) / sc.rate
		sin, cos := math.Sincos(angle)
		for i, src := range sc.sources {
			p := sc.base[i]
			src.SetPosition(spatial.V(p.X*cos+p.Z*sin, p.Y, p.Z*cos-p.X*sin))
		}
	}
	sc.eng.StartFrame(sc.listener)
}

// Close releases every source
func (sc *scene) Close() {
	for _, src := range sc.sources {
		if err := src.Close(); err != nil {
			slog.Debug("source close failed", "id", src.ID(), "error", err)
		}
	}
	sc.sources = nil
}
