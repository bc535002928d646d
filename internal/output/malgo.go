//go:build cgo

package output

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
)

// deviceContext wraps malgo.AllocatedContext with lifecycle logging
type deviceContext struct {
	ctx *malgo.AllocatedContext
}

func newDeviceContext() (*deviceContext, error) {
	slog.Debug("initializing audio context")

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("malgo internal", "message", message)
	})
	if err != nil {
		slog.Error("failed to initialize audio context", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrBackendNotAvailable, err)
	}

	slog.Info("audio context initialized successfully")
	return &deviceContext{ctx: ctx}, nil
}

func (c *deviceContext) close() error {
	if c.ctx == nil {
		return nil
	}

	// malgo requires both Uninit() and Free()
	if err := c.ctx.Uninit(); err != nil {
		slog.Error("failed to uninitialize audio context", "error", err)
		return err
	}
	c.ctx.Free()
	c.ctx = nil

	slog.Debug("audio context closed")
	return nil
}

// MalgoBackend pulls frames from a Renderer inside the miniaudio data
// callback
type MalgoBackend struct {
	context *deviceContext
	device  *malgo.Device
	puller  *puller
	vol     *volume
	closed  bool
	mutex   sync.RWMutex
}

// NewMalgoBackend initializes a miniaudio context. The device is opened by
// Start, once the renderer's format is known.
func NewMalgoBackend() (*MalgoBackend, error) {
	slog.Debug("creating new MalgoBackend")
	ctx, err := newDeviceContext()
	if err != nil {
		return nil, err
	}
	return &MalgoBackend{context: ctx, vol: newVolume()}, nil
}

// Name returns the backend identifier
func (mb *MalgoBackend) Name() string { return BackendMalgo }

// Start opens a float32 playback device matching the renderer and starts
// pulling from it
func (mb *MalgoBackend) Start(r Renderer) error {
	mb.mutex.Lock()
	defer mb.mutex.Unlock()

	if mb.closed {
		return ErrBackendClosed
	}
	if mb.device != nil {
		return ErrAlreadyStarted
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(r.Channels())
	deviceConfig.SampleRate = uint32(r.SampleRate())
	deviceConfig.Alsa.NoMMap = 1

	// sized for a typical period; the callback grows it once if needed
	mb.puller = newPuller(r, mb.vol, 1024)
	p := mb.puller

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, framecount uint32) {
			n := p.fill(pOutputSample)
			clear(pOutputSample[n:])
		},
	}

	device, err := malgo.InitDevice(mb.context.ctx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		slog.Error("failed to initialize playback device", "error", err)
		return fmt.Errorf("%w: %w", ErrBackendNotAvailable, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		slog.Error("failed to start playback device", "error", err)
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	mb.device = device
	slog.Info("malgo playback started", "sample_rate", r.SampleRate(), "channels", r.Channels())
	return nil
}

// Stop halts the device. Start may be called again afterwards.
func (mb *MalgoBackend) Stop() error {
	mb.mutex.Lock()
	defer mb.mutex.Unlock()

	if mb.closed {
		return ErrBackendClosed
	}
	mb.stopLocked()
	return nil
}

func (mb *MalgoBackend) stopLocked() {
	if mb.device == nil {
		return
	}
	if err := mb.device.Stop(); err != nil {
		slog.Warn("failed to stop playback device", "error", err)
	}
	mb.device.Uninit()
	mb.device = nil
	slog.Debug("MalgoBackend stopped")
}

// Close shuts down the backend
func (mb *MalgoBackend) Close() error {
	mb.mutex.Lock()
	defer mb.mutex.Unlock()

	if mb.closed {
		slog.Debug("MalgoBackend already closed")
		return nil
	}
	mb.closed = true
	mb.stopLocked()

	if err := mb.context.close(); err != nil {
		return fmt.Errorf("error closing audio context: %w", err)
	}
	slog.Debug("MalgoBackend closed")
	return nil
}

// IsPlaying reports whether the device is running
func (mb *MalgoBackend) IsPlaying() bool {
	mb.mutex.RLock()
	defer mb.mutex.RUnlock()
	return mb.device != nil && mb.device.IsStarted()
}

// SetVolume sets the output gain (0.0 to 1.0)
func (mb *MalgoBackend) SetVolume(v float32) error {
	if err := checkVolume(v); err != nil {
		return err
	}
	mb.mutex.RLock()
	defer mb.mutex.RUnlock()
	if mb.closed {
		return ErrBackendClosed
	}
	mb.vol.set(v)
	slog.Debug("volume changed", "new_volume", v)
	return nil
}

// GetVolume returns the current output gain
func (mb *MalgoBackend) GetVolume() float32 {
	return mb.vol.get()
}
