package output

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// ErrInvalidLength is returned for an offline render of no frames
var ErrInvalidLength = errors.New("render length must be positive")

// OfflineOptions controls RenderToWAV
type OfflineOptions struct {
	Frames int64 // total frames to render

	// OnTick, when set, is called every TickFrames frames (and once at frame
	// 0) before the frames that follow are rendered. This is where a
	// simulation step calls StartFrame.
	TickFrames int
	OnTick     func(frame int64)

	// Precision is the WAV sample width in bytes (default 2)
	Precision int
}

// Streamer adapts a Renderer to a finite beep.Streamer
type Streamer struct {
	r          Renderer
	channels   int
	remaining  int64
	pos        int64
	tickFrames int64
	nextTick   int64
	onTick     func(frame int64)
	buf        []float32
}

// NewStreamer returns a streamer that yields opts.Frames frames from r
func NewStreamer(r Renderer, opts OfflineOptions) *Streamer {
	s := &Streamer{
		r:         r,
		channels:  r.Channels(),
		remaining: opts.Frames,
		onTick:    opts.OnTick,
		buf:       make([]float32, 512*r.Channels()),
	}
	if opts.OnTick != nil && opts.TickFrames > 0 {
		s.tickFrames = int64(opts.TickFrames)
	}
	return s
}

// Stream implements beep.Streamer
func (s *Streamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.remaining <= 0 {
		return 0, false
	}
	want := len(samples)
	if int64(want) > s.remaining {
		want = int(s.remaining)
	}

	for n < want {
		if s.tickFrames > 0 && s.pos == s.nextTick {
			s.onTick(s.pos)
			s.nextTick += s.tickFrames
		}

		chunk := min(want-n, len(s.buf)/s.channels)
		if s.tickFrames > 0 {
			chunk = min(chunk, int(s.nextTick-s.pos))
		}

		buf := s.buf[:chunk*s.channels]
		s.r.Render(buf)
		for i := 0; i < chunk; i++ {
			frame := buf[i*s.channels : (i+1)*s.channels]
			left := float64(frame[0])
			right := left
			if s.channels > 1 {
				right = float64(frame[1])
			}
			samples[n+i] = [2]float64{left, right}
		}

		n += chunk
		s.pos += int64(chunk)
	}

	s.remaining -= int64(n)
	return n, true
}

// Err implements beep.Streamer
func (s *Streamer) Err() error { return nil }

// Position returns the number of frames streamed so far
func (s *Streamer) Position() int64 { return s.pos }

// RenderToWAV renders opts.Frames frames from r and encodes them as a PCM
// WAV file
func RenderToWAV(w io.WriteSeeker, r Renderer, opts OfflineOptions) error {
	if opts.Frames <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLength, opts.Frames)
	}
	precision := opts.Precision
	if precision == 0 {
		precision = 2
	}

	format := beep.Format{
		SampleRate:  beep.SampleRate(r.SampleRate()),
		NumChannels: 2,
		Precision:   precision,
	}

	slog.Debug("rendering offline", "frames", opts.Frames, "sample_rate", r.SampleRate(), "precision", precision)

	s := NewStreamer(r, opts)
	if err := wav.Encode(w, s, format); err != nil {
		slog.Error("failed to encode wav", "error", err)
		return fmt.Errorf("failed to encode wav: %w", err)
	}

	slog.Info("offline render complete",
		"frames", s.Position(),
		"duration", format.SampleRate.D(int(s.Position())))
	return nil
}
