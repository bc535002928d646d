//go:build !cgo

package output

import "errors"

var errCGORequired = errors.New(`real-time playback requires CGO support.

This error occurs when auralis is built without CGO enabled. Offline
rendering with "auralis render" still works.

To fix this issue:
1. Ensure CGO_ENABLED=1 (this is the default for native builds)
2. Install a C compiler:
   - Linux: sudo apt-get install build-essential
   - macOS: xcode-select --install
   - Windows: Install MinGW or Visual Studio Build Tools
3. Then run: go install auralis.click/cmd/auralis`)

// stubBackend satisfies Backend so the factory can be built without CGO
type stubBackend struct{}

// NewMalgoBackend always fails without CGO
func NewMalgoBackend() (*stubBackend, error) { return nil, errCGORequired }

// NewOtoBackend always fails without CGO
func NewOtoBackend() (*stubBackend, error) { return nil, errCGORequired }

func (stubBackend) Start(Renderer) error    { return errCGORequired }
func (stubBackend) Stop() error             { return errCGORequired }
func (stubBackend) Close() error            { return nil }
func (stubBackend) IsPlaying() bool         { return false }
func (stubBackend) SetVolume(float32) error { return errCGORequired }
func (stubBackend) GetVolume() float32      { return 0 }
func (stubBackend) Name() string            { return "" }
