package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"auralis.click/internal/dsp"
)

const pcmScale = 1.0 / 32768

// Sample is one sound asset. Metadata is read once at construction; the
// decode handle is opened lazily on first window access and closed again by
// the cache once the asset has been idle long enough.
//
// A Sample whose container failed to open behaves as a zero-length signal.
type Sample struct {
	name     string
	format   string
	data     []byte
	decoder  Decoder
	cache    *BufferCache

	info         StreamInfo
	windowFrames int
	err          error

	mu     sync.Mutex
	stream Stream
	closed atomic.Bool

	// private window for samples without a cache and for reads off the
	// render thread
	ownMu     sync.Mutex
	own       []int16
	ownIndex  int64
	ownFrames int
}

// NewSample builds a sample over an in-memory container. On failure the
// returned sample is still usable and renders silence; the error says why.
func NewSample(name, format string, data []byte, registry *DecoderRegistry, cache *BufferCache) (*Sample, error) {
	if registry == nil {
		registry = NewDefaultRegistry()
	}
	s := &Sample{
		name:     name,
		format:   format,
		data:     data,
		cache:    cache,
		ownIndex: -1,
	}

	decoder, err := registry.Resolve(name, format, data)
	var stream Stream
	if err == nil {
		s.decoder = decoder
		stream, err = decoder.Open(data)
		if err != nil {
			err = fmt.Errorf("open %s as %s: %w", name, decoder.FormatName(), err)
		}
	}
	if err != nil {
		slog.Warn("asset failed to open, using silence", "name", name, "error", err)
		s.err = err
		s.data = nil
		return s, err
	}
	info := stream.Info()
	stream.Close()

	if info.Channels <= 0 || info.SampleRate <= 0 {
		s.err = fmt.Errorf("%w: %s has no channels or rate", ErrInvalidData, name)
		s.data = nil
		return s, s.err
	}

	slotSamples := DefaultWindowFrames * 2
	if cache != nil {
		slotSamples = cache.SlotSamples()
	}
	s.info = info
	s.windowFrames = max(slotSamples/info.Channels, 1)

	slog.Info("sample created",
		"name", name,
		"frames", info.Frames,
		"channels", info.Channels,
		"sample_rate", info.SampleRate,
		"window_frames", s.windowFrames)

	return s, nil
}

// Silent returns a zero-length sample, used when an asset is missing
func Silent(name string) *Sample {
	return &Sample{name: name, ownIndex: -1, err: ErrInvalidData}
}

// Name returns the asset name
func (s *Sample) Name() string { return s.name }

// SampleRate returns the asset's frame rate, 0 for a failed asset
func (s *Sample) SampleRate() int { return s.info.SampleRate }

// Channels returns the channel count, 0 for a failed asset
func (s *Sample) Channels() int { return s.info.Channels }

// BytesPerFrame returns the container's frame size
func (s *Sample) BytesPerFrame() int {
	if s.info.Channels == 0 {
		return 0
	}
	return s.info.BytesPerFrame()
}

// Frames returns the total frame count
func (s *Sample) Frames() int64 { return s.info.Frames }

// Err reports why the asset is silent, or nil
func (s *Sample) Err() error { return s.err }

// SampleAt returns one sample at frameOffset measured in frames of
// frameRate, mapped to the asset's own rate by the nearest ratio. Positions
// outside the asset return 0.
func (s *Sample) SampleAt(frameOffset int64, frameRate int, channel int) float32 {
	if s.info.Frames == 0 || frameRate <= 0 || frameOffset < 0 {
		return 0
	}
	f := frameOffset
	if frameRate != s.info.SampleRate {
		f = frameOffset * int64(s.info.SampleRate) / int64(frameRate)
	}
	if f >= s.info.Frames {
		return 0
	}
	var out [1]float32
	own := s.lockOwn(s.cache == nil)
	defer s.unlockOwn(own)
	s.copyRange(f, 1, channel, out[:], 1, own)
	return out[0]
}

func (s *Sample) lockOwn(own bool) bool {
	if own {
		s.ownMu.Lock()
	}
	return own
}

func (s *Sample) unlockOwn(own bool) {
	if own {
		s.ownMu.Unlock()
	}
}

// Sample writes frameCount samples of one channel starting at frameOffset
// into out, scaled by amplitude. Looping offsets wrap modulo the asset
// length; non-looping ranges outside the asset are zero-filled.
func (s *Sample) Sample(frameOffset int64, frameCount, channel int, out []float32, amplitude float32, loop bool) {
	own := s.lockOwn(s.cache == nil)
	defer s.unlockOwn(own)
	s.sample(frameOffset, frameCount, channel, out, amplitude, loop, own)
}

func (s *Sample) sample(frameOffset int64, frameCount, channel int, out []float32, amplitude float32, loop, own bool) {
	out = out[:frameCount]
	total := s.info.Frames
	if total == 0 || s.closed.Load() {
		clear(out)
		return
	}

	if loop {
		off := frameOffset % total
		if off < 0 {
			off += total
		}
		pos := 0
		for pos < frameCount {
			n := min(int64(frameCount-pos), total-off)
			s.copyRange(off, int(n), channel, out[pos:pos+int(n)], amplitude, own)
			pos += int(n)
			off = 0
		}
		return
	}

	start := max(frameOffset, 0)
	end := min(frameOffset+int64(frameCount), total)
	if start >= end {
		clear(out)
		return
	}
	lead := int(start - frameOffset)
	n := int(end - start)
	clear(out[:lead])
	s.copyRange(start, n, channel, out[lead:lead+n], amplitude, own)
	clear(out[lead+n:])
}

// SampleStep writes frameCount samples taken at position, position+step,
// ... (asset frames, nearest neighbour). step 1 with an integral position
// is the plain block copy.
//
// With a cache, SampleStep must only be called from the render thread.
func (s *Sample) SampleStep(position, step float64, frameCount, channel int, out []float32, amplitude float32, loop bool) {
	own := s.lockOwn(s.cache == nil)
	defer s.unlockOwn(own)
	s.sampleStep(position, step, frameCount, channel, out, amplitude, loop, own)
}

// ReadStep is SampleStep through the sample's private window instead of the
// render cache. It is safe from any goroutine.
func (s *Sample) ReadStep(position, step float64, frameCount, channel int, out []float32, amplitude float32, loop bool) {
	s.ownMu.Lock()
	defer s.ownMu.Unlock()
	s.sampleStep(position, step, frameCount, channel, out, amplitude, loop, true)
}

func (s *Sample) sampleStep(position, step float64, frameCount, channel int, out []float32, amplitude float32, loop, own bool) {
	if step == 1 && position == float64(int64(position)) {
		s.sample(int64(position), frameCount, channel, out, amplitude, loop, own)
		return
	}
	out = out[:frameCount]
	total := s.info.Frames
	if total == 0 || s.closed.Load() {
		clear(out)
		return
	}

	ch := channel % s.info.Channels
	scale := amplitude * pcmScale
	var (
		buf    []int16
		frames int
		cur    int64 = -1
	)
	for i := range out {
		f := int64(math.Floor(position + step*float64(i)))
		if loop {
			f %= total
			if f < 0 {
				f += total
			}
		} else if f < 0 || f >= total {
			out[i] = 0
			continue
		}
		idx := f / int64(s.windowFrames)
		if idx != cur {
			buf, frames = s.window(idx, own)
			cur = idx
		}
		within := int(f % int64(s.windowFrames))
		if within >= frames {
			out[i] = 0
			continue
		}
		out[i] = float32(buf[within*s.info.Channels+ch]) * scale
	}
}

// copyRange converts n frames of one channel starting at a valid frame
func (s *Sample) copyRange(start int64, n, channel int, out []float32, amplitude float32, own bool) {
	chs := s.info.Channels
	ch := channel % chs
	scale := amplitude * pcmScale
	wf := int64(s.windowFrames)
	pos := 0
	for pos < n {
		idx := start / wf
		within := int(start % wf)
		buf, frames := s.window(idx, own)
		k := min(n-pos, frames-within)
		if k <= 0 {
			clear(out[pos:n])
			return
		}
		dsp.Int16ToFloat(buf[within*chs+ch:], out[pos:pos+k], chs, scale)
		pos += k
		start += int64(k)
	}
}

// window returns one decoded window, from the cache or, when own is set,
// from the private window; ownMu must then be held
func (s *Sample) window(index int64, own bool) ([]int16, int) {
	if !own {
		return s.cache.window(s, index)
	}
	if s.own == nil {
		s.own = make([]int16, s.windowFrames*s.info.Channels)
	}
	if s.ownIndex != index {
		s.ownFrames = s.decodeWindow(index, s.own)
		s.ownIndex = index
	}
	return s.own, s.ownFrames
}

// decodeWindow fills dst with window index and returns the frames decoded.
// Read failures yield a silent window.
func (s *Sample) decodeWindow(index int64, dst []int16) int {
	chs := s.info.Channels
	dst = dst[:s.windowFrames*chs]

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		clear(dst)
		return 0
	}
	if s.stream == nil {
		stream, err := reopen(s.decoder, s.data)
		if err != nil {
			clear(dst)
			return 0
		}
		s.stream = stream
	}

	start := index * int64(s.windowFrames)
	want := min(int64(s.windowFrames), s.info.Frames-start)
	if want <= 0 {
		clear(dst)
		return 0
	}
	got := 0
	for int64(got) < want {
		n, err := s.stream.ReadFrames(start+int64(got), dst[got*chs:int(want)*chs])
		got += n
		if err != nil || n == 0 {
			break
		}
	}
	clear(dst[got*chs:])
	return got
}

// closeStream releases the decode handle; the next access reopens it
func (s *Sample) closeStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
}

func (s *Sample) isClosed() bool { return s.closed.Load() }

// DecodeAll decodes the whole asset into per-channel float slices using a
// private decode handle. Used off the render thread, e.g. for impulse
// responses.
func (s *Sample) DecodeAll() ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.closed.Load() {
		return nil, fmt.Errorf("%w: %s is closed", ErrReadFailure, s.name)
	}

	stream, err := reopen(s.decoder, s.data)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	chs := s.info.Channels
	out := make([][]float32, chs)
	for c := range out {
		out[c] = make([]float32, s.info.Frames)
	}

	chunk := make([]int16, 4096*chs)
	var pos int64
	for pos < s.info.Frames {
		n, err := stream.ReadFrames(pos, chunk)
		for c := 0; c < chs; c++ {
			dsp.Int16ToFloat(chunk[c:], out[c][pos:pos+int64(n)], chs, pcmScale)
		}
		pos += int64(n)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode %s at frame %d: %w", s.name, pos, err)
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}

// Close releases the decode handle and turns the sample silent. The cache
// drops its windows on its next Expire.
func (s *Sample) Close() error {
	s.closed.Store(true)
	s.closeStream()
	return nil
}
