//go:build cgo

package output

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// oto allows one context per process; every OtoBackend shares it and the
// format it was opened with
var (
	otoOnce   sync.Once
	otoCtx    *oto.Context
	otoErr    error
	otoFormat [2]int
)

func sharedOtoContext(sampleRate, channels int) (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatFloat32LE,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("%w: %w", ErrBackendNotAvailable, err)
			return
		}
		<-ready
		otoCtx = ctx
		otoFormat = [2]int{sampleRate, channels}
		slog.Info("oto context initialized", "sample_rate", sampleRate, "channels", channels)
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoFormat != [2]int{sampleRate, channels} {
		return nil, fmt.Errorf("%w: oto context already opened at %dHz/%dch", ErrBackendNotAvailable, otoFormat[0], otoFormat[1])
	}
	return otoCtx, nil
}

// renderReader adapts a puller to the io.Reader oto players consume
type renderReader struct {
	p *puller
}

func (rr *renderReader) Read(b []byte) (int, error) {
	return rr.p.fill(b), nil
}

// OtoBackend feeds a Renderer to an oto player
type OtoBackend struct {
	player *oto.Player
	vol    *volume
	closed bool
	mutex  sync.RWMutex
}

// NewOtoBackend creates an idle backend. The shared oto context is opened
// by the first Start.
func NewOtoBackend() (*OtoBackend, error) {
	slog.Debug("creating new OtoBackend")
	return &OtoBackend{vol: newVolume()}, nil
}

// Name returns the backend identifier
func (ob *OtoBackend) Name() string { return BackendOto }

// Start creates a player that pulls from r
func (ob *OtoBackend) Start(r Renderer) error {
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	if ob.closed {
		return ErrBackendClosed
	}
	if ob.player != nil {
		return ErrAlreadyStarted
	}

	ctx, err := sharedOtoContext(r.SampleRate(), r.Channels())
	if err != nil {
		slog.Error("failed to open oto context", "error", err)
		return err
	}

	ob.player = ctx.NewPlayer(&renderReader{p: newPuller(r, ob.vol, 1024)})
	ob.player.Play()
	slog.Info("oto playback started", "sample_rate", r.SampleRate(), "channels", r.Channels())
	return nil
}

// Stop closes the player. Start may be called again afterwards.
func (ob *OtoBackend) Stop() error {
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	if ob.closed {
		return ErrBackendClosed
	}
	return ob.stopLocked()
}

func (ob *OtoBackend) stopLocked() error {
	if ob.player == nil {
		return nil
	}
	err := ob.player.Close()
	ob.player = nil
	if err != nil {
		slog.Warn("failed to close oto player", "error", err)
		return fmt.Errorf("failed to close oto player: %w", err)
	}
	slog.Debug("OtoBackend stopped")
	return nil
}

// Close shuts down the backend. The process-wide oto context stays open.
func (ob *OtoBackend) Close() error {
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	if ob.closed {
		return nil
	}
	ob.closed = true
	return ob.stopLocked()
}

// IsPlaying reports whether the player is running
func (ob *OtoBackend) IsPlaying() bool {
	ob.mutex.RLock()
	defer ob.mutex.RUnlock()
	return ob.player != nil && ob.player.IsPlaying()
}

// SetVolume sets the output gain (0.0 to 1.0)
func (ob *OtoBackend) SetVolume(v float32) error {
	if err := checkVolume(v); err != nil {
		return err
	}
	ob.mutex.RLock()
	defer ob.mutex.RUnlock()
	if ob.closed {
		return ErrBackendClosed
	}
	ob.vol.set(v)
	return nil
}

// GetVolume returns the current output gain
func (ob *OtoBackend) GetVolume() float32 {
	return ob.vol.get()
}
