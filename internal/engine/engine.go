// Package engine is the real-time 3D audio renderer. A simulation goroutine
// mutates sources and zones and calls StartFrame once per tick; the output
// callback calls Render, which advances through fixed-size blocks of HRTF
// convolution, partitioned reverb, ambient beds and a peak limiter.
//
// Render never blocks on the simulation side and does not allocate once
// warmed up. Everything it needs comes from the latest published snapshot.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"auralis.click/internal/audio"
	"auralis.click/internal/hrtf"
)

// tunables are the runtime-adjustable parameters, copied into every
// snapshot by StartFrame
type tunables struct {
	HRTF            bool
	HighQualityHRTF bool
	Reverb          bool
	GlobalGain      float64
	ReverbSend      float64
	AmbientGain     float64
	GainCutoff      float64
}

// Engine owns every piece of render state. It is safe for one render
// goroutine and any number of control goroutines.
type Engine struct {
	cfg    Config
	bank   *hrtf.Bank
	layout reverbLayout
	cache  *audio.BufferCache

	// frames rendered so far; written by the render thread only
	frame atomic.Int64

	mu            sync.Mutex
	tun           tunables
	active        []*Source
	slotUsed      []bool
	slotGen       []uint32
	nextSlot      int
	zones         map[ZoneID]*zoneInstance
	nextZone      ZoneID
	keys          []*zoneKey
	irs           []irSpectra
	keyWeights    []float64
	keyGains      []float64
	reverbWeights []float32
	lastReverb    []float32
	reverbVersion uint64

	neighborScratch [hrtf.MaxNeighbors]hrtf.Tap

	// bumped on every stop so the render thread can silence a slot before
	// the next snapshot arrives
	slotEpoch []atomic.Uint32

	// snapshot hand-off: back is written by StartFrame, pending waits for
	// the render thread, front is being rendered
	back      *snapshot
	pending   *snapshot
	published atomic.Bool

	r     renderState
	stats stats
}

// New builds an engine. A nil set selects the built-in spherical head
// model.
func New(cfg Config, set *hrtf.Set) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if set == nil {
		set = hrtf.NewSphericalHead(cfg.SampleRate)
	}

	bank, err := set.Prepare(cfg.SampleRate, cfg.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	layout := newReverbLayout(cfg.BlockSize, cfg.MaxReverbPartition, cfg.reverbMaxFrames())

	e := &Engine{
		cfg:    cfg,
		bank:   bank,
		layout: layout,
		cache: audio.NewBufferCache(audio.CacheConfig{
			Slots:        cfg.PoolSlots,
			WindowFrames: cfg.WindowFrames,
			IdleExpiry:   uint64(cfg.IdleExpiryBlocks),
		}),
		tun: tunables{
			HRTF:            cfg.HRTF,
			HighQualityHRTF: cfg.HighQualityHRTF,
			Reverb:          cfg.Reverb,
			GlobalGain:      cfg.GlobalGain,
			ReverbSend:      cfg.ReverbSend,
			AmbientGain:     cfg.AmbientGain,
			GainCutoff:      cfg.GainCutoff,
		},
		active:        make([]*Source, 0, cfg.MaxSources),
		slotUsed:      make([]bool, cfg.MaxSources),
		slotGen:       make([]uint32, cfg.MaxSources),
		slotEpoch:     make([]atomic.Uint32, cfg.MaxSources),
		zones:         make(map[ZoneID]*zoneInstance),
		keys:          make([]*zoneKey, cfg.MaxZones),
		irs:           make([]irSpectra, cfg.MaxZones),
		keyWeights:    make([]float64, cfg.MaxZones),
		keyGains:      make([]float64, cfg.MaxZones),
		reverbWeights: make([]float32, cfg.MaxZones),
		lastReverb:    make([]float32, cfg.MaxZones),
		back:          newSnapshot(cfg, layout),
		pending:       newSnapshot(cfg, layout),
	}

	if err := e.r.init(cfg, bank, layout); err != nil {
		return nil, err
	}
	e.r.front = newSnapshot(cfg, layout)

	slog.Info("audio engine created",
		"sample_rate", cfg.SampleRate,
		"block_size", cfg.BlockSize,
		"hrtf_directions", len(bank.Directions),
		"hrtf_fft", bank.FFTSize,
		"reverb_levels", len(layout.levels),
		"reverb_max_frames", layout.maxLen,
		"ring_frames", len(e.r.ringL))

	return e, nil
}

func newSnapshot(cfg Config, layout reverbLayout) *snapshot {
	return &snapshot{
		sources: make([]mappedSource, 0, cfg.MaxSources),
		ambient: make([]ambientTarget, cfg.MaxZones),
		comp:    newComposite(layout),
	}
}

// Config returns the configuration the engine was built with
func (e *Engine) Config() Config { return e.cfg }

// SampleRate returns the output rate
func (e *Engine) SampleRate() int { return e.cfg.SampleRate }

// Channels is always 2: interleaved left, right
func (e *Engine) Channels() int { return 2 }

// Cache returns the buffer cache samples should be created with
func (e *Engine) Cache() *audio.BufferCache { return e.cache }

// Bank returns the prepared HRTF bank
func (e *Engine) Bank() *hrtf.Bank { return e.bank }

// Frame returns the absolute frame counter: frames rendered so far
func (e *Engine) Frame() int64 { return e.frame.Load() }

// SetGlobalGain scales every path
func (e *Engine) SetGlobalGain(g float64) {
	e.mu.Lock()
	e.tun.GlobalGain = max(g, 0)
	e.mu.Unlock()
}

// SetReverbSend sets the global reverb send level
func (e *Engine) SetReverbSend(g float64) {
	e.mu.Lock()
	e.tun.ReverbSend = max(g, 0)
	e.mu.Unlock()
}

// SetAmbientGain scales every ambient bed
func (e *Engine) SetAmbientGain(g float64) {
	e.mu.Lock()
	e.tun.AmbientGain = max(g, 0)
	e.mu.Unlock()
}

// SetHRTF toggles binaural rendering; disabled 3-D sources are panned
func (e *Engine) SetHRTF(on bool) {
	e.mu.Lock()
	e.tun.HRTF = on
	e.mu.Unlock()
}

// SetHighQualityHRTF toggles blending of neighbouring directions
func (e *Engine) SetHighQualityHRTF(on bool) {
	e.mu.Lock()
	e.tun.HighQualityHRTF = on
	e.mu.Unlock()
}

// SetReverb toggles the reverb bus
func (e *Engine) SetReverb(on bool) {
	e.mu.Lock()
	e.tun.Reverb = on
	e.mu.Unlock()
}

// Stats is a point-in-time copy of the render counters
type Stats struct {
	Blocks       uint64
	Overruns     uint64
	SkippedSwaps uint64
	MaxBlockTime time.Duration
	Sources      int
	Cache        audio.CacheStats
}

type stats struct {
	blocks       atomic.Uint64
	overruns     atomic.Uint64
	skippedSwaps atomic.Uint64
	maxBlockNs   atomic.Int64
	sources      atomic.Int64
}

// Stats returns the render counters
func (e *Engine) Stats() Stats {
	return Stats{
		Blocks:       e.stats.blocks.Load(),
		Overruns:     e.stats.overruns.Load(),
		SkippedSwaps: e.stats.skippedSwaps.Load(),
		MaxBlockTime: time.Duration(e.stats.maxBlockNs.Load()),
		Sources:      int(e.stats.sources.Load()),
		Cache:        e.cache.Stats(),
	}
}

// Render fills out with interleaved stereo frames, rendering new blocks as
// the internal one is used up. Only one goroutine may call Render.
func (e *Engine) Render(out []float32) {
	r := &e.r
	for len(out) > 0 {
		if r.outPos == len(r.outBlock) {
			e.renderBlock()
			r.outPos = 0
		}
		n := copy(out, r.outBlock[r.outPos:])
		r.outPos += n
		out = out[n:]
	}
}

// acquireSnapshot takes the newest published snapshot if the lock is free.
// A busy lock means the previous snapshot is rendered once more.
func (e *Engine) acquireSnapshot() {
	if !e.published.Load() {
		return
	}
	if !e.mu.TryLock() {
		e.stats.skippedSwaps.Add(1)
		return
	}
	e.pending, e.r.front = e.r.front, e.pending
	e.published.Store(false)
	e.mu.Unlock()
}

func (e *Engine) blockPeriod() time.Duration {
	return time.Duration(e.cfg.BlockSize) * time.Second / time.Duration(e.cfg.SampleRate)
}

func roundUp(n, m int) int {
	return (n + m - 1) / m * m
}
