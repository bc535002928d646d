package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// Mp3Decoder handles MP3 audio format decoding
type Mp3Decoder struct{}

// NewMp3Decoder creates a new MP3 decoder instance
func NewMp3Decoder() *Mp3Decoder {
	slog.Debug("creating new MP3 decoder instance")
	return &Mp3Decoder{}
}

// go-mp3 always produces 16-bit little-endian stereo
const mp3BytesPerFrame = 4

type mp3Stream struct {
	dec     *mp3.Decoder
	info    StreamInfo
	scratch []byte
	pos     int64 // next frame the decoder will produce
}

// Open creates a seekable MP3 decoder over data
func (d *Mp3Decoder) Open(data []byte) (Stream, error) {
	slog.Debug("opening MP3 stream", "size_bytes", len(data))

	stream, err := d.openQuiet(data)
	if err != nil {
		slog.Error("failed to open MP3 stream", "error", err)
		return nil, err
	}

	info := stream.Info()
	slog.Debug("MP3 stream opened",
		"frames", info.Frames,
		"sample_rate", info.SampleRate,
		"duration_estimate_ms", info.Frames*1000/int64(info.SampleRate))

	return stream, nil
}

// openQuiet is Open without logging, for reopening on the render thread
func (d *Mp3Decoder) openQuiet(data []byte) (Stream, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: MP3: %v", ErrInvalidData, err)
	}

	sampleRate := decoder.SampleRate()
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: MP3 sample rate %d", ErrInvalidData, sampleRate)
	}

	frames := decoder.Length() / mp3BytesPerFrame
	if frames <= 0 {
		return nil, fmt.Errorf("%w: no audio data in MP3", ErrInvalidData)
	}

	return &mp3Stream{
		dec: decoder,
		info: StreamInfo{
			SampleRate:    sampleRate,
			Channels:      2, // go-mp3 always outputs stereo
			BitsPerSample: 16,
			Frames:        frames,
		},
	}, nil
}

func (s *mp3Stream) Info() StreamInfo { return s.info }

func (s *mp3Stream) ReadFrames(frame int64, dst []int16) (int, error) {
	if frame < 0 || frame >= s.info.Frames {
		return 0, io.EOF
	}
	if frame != s.pos {
		if _, err := s.dec.Seek(frame*mp3BytesPerFrame, io.SeekStart); err != nil {
			return 0, ErrReadFailure
		}
		s.pos = frame
	}

	want := len(dst) / 2 * mp3BytesPerFrame
	if cap(s.scratch) < want {
		s.scratch = make([]byte, want)
	}
	buf := s.scratch[:want]
	n, err := io.ReadFull(s.dec, buf)
	frames := n / mp3BytesPerFrame
	for i := 0; i < frames*2; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	s.pos += int64(frames)

	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return frames, ErrReadFailure
	}
	return frames, nil
}

func (s *mp3Stream) Close() error {
	s.dec = nil
	s.scratch = nil
	return nil
}

// CanDecode checks if this decoder can handle the given filename
func (d *Mp3Decoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	canDecode := strings.HasSuffix(lower, ".mp3") || strings.HasSuffix(lower, ".mpeg")

	slog.Debug("MP3 decoder file check",
		"filename", filename,
		"can_decode", canDecode)

	return canDecode
}

// FormatName returns the name of the format this decoder handles
func (d *Mp3Decoder) FormatName() string {
	return "MP3"
}
