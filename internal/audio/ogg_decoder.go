package audio

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jfreymuth/oggvorbis"
)

// OggDecoder handles Ogg Vorbis decoding
type OggDecoder struct{}

// NewOggDecoder creates a new Ogg Vorbis decoder instance
func NewOggDecoder() *OggDecoder {
	slog.Debug("creating new Ogg Vorbis decoder instance")
	return &OggDecoder{}
}

type oggStream struct {
	dec     *oggvorbis.Reader
	info    StreamInfo
	scratch []float32
	pos     int64
}

// Open creates a seekable Vorbis reader over data
func (d *OggDecoder) Open(data []byte) (Stream, error) {
	slog.Debug("opening Ogg Vorbis stream", "size_bytes", len(data))

	stream, err := d.openQuiet(data)
	if err != nil {
		slog.Error("failed to open Ogg Vorbis stream", "error", err)
		return nil, err
	}

	info := stream.Info()
	slog.Debug("Ogg Vorbis stream opened",
		"frames", info.Frames,
		"channels", info.Channels,
		"sample_rate", info.SampleRate)

	return stream, nil
}

// openQuiet is Open without logging, for reopening on the render thread
func (d *OggDecoder) openQuiet(data []byte) (Stream, error) {
	dec, err := oggvorbis.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: Ogg Vorbis: %v", ErrInvalidData, err)
	}
	if dec.SampleRate() <= 0 || dec.Channels() <= 0 {
		return nil, fmt.Errorf("%w: Ogg Vorbis has %d channels at %d Hz", ErrInvalidData, dec.Channels(), dec.SampleRate())
	}

	frames := dec.Length()
	if frames <= 0 {
		return nil, fmt.Errorf("%w: no audio data in Ogg Vorbis", ErrInvalidData)
	}

	return &oggStream{
		dec: dec,
		info: StreamInfo{
			SampleRate:    dec.SampleRate(),
			Channels:      dec.Channels(),
			BitsPerSample: 16,
			Frames:        frames,
		},
	}, nil
}

func (s *oggStream) Info() StreamInfo { return s.info }

func (s *oggStream) ReadFrames(frame int64, dst []int16) (int, error) {
	if frame < 0 || frame >= s.info.Frames {
		return 0, io.EOF
	}
	if frame != s.pos {
		if err := s.dec.SetPosition(frame); err != nil {
			return 0, ErrReadFailure
		}
		s.pos = frame
	}

	if cap(s.scratch) < len(dst) {
		s.scratch = make([]float32, len(dst))
	}
	buf := s.scratch[:len(dst)]

	// Read returns interleaved values and may stop at packet boundaries
	total := 0
	for total < len(buf) {
		n, err := s.dec.Read(buf[total:])
		total += n
		if err == io.EOF || (err == nil && n == 0) {
			break
		}
		if err != nil {
			return 0, ErrReadFailure
		}
	}

	for i, v := range buf[:total] {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		dst[i] = int16(v * 32767)
	}
	frames := total / s.info.Channels
	s.pos += int64(frames)
	return frames, nil
}

func (s *oggStream) Close() error {
	s.dec = nil
	s.scratch = nil
	return nil
}

// CanDecode checks if this decoder can handle the given filename
func (d *OggDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	canDecode := strings.HasSuffix(lower, ".ogg") || strings.HasSuffix(lower, ".oga")

	slog.Debug("Ogg Vorbis decoder file check",
		"filename", filename,
		"can_decode", canDecode)

	return canDecode
}

// FormatName returns the name of the format this decoder handles
func (d *OggDecoder) FormatName() string {
	return "OGG"
}
