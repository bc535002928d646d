package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/youpy/go-wav"
)

// WavDecoder handles WAV audio format decoding
type WavDecoder struct{}

// NewWavDecoder creates a new WAV decoder instance
func NewWavDecoder() *WavDecoder {
	slog.Debug("creating new WAV decoder instance")
	return &WavDecoder{}
}

// wavStream keeps the raw data chunk and converts frames on demand
type wavStream struct {
	info           StreamInfo
	raw            []byte
	bytesPerSample int
}

// Open parses the RIFF header and keeps the PCM data chunk for random access
func (d *WavDecoder) Open(data []byte) (Stream, error) {
	slog.Debug("opening WAV stream", "size_bytes", len(data))

	stream, err := d.openQuiet(data)
	if err != nil {
		slog.Error("failed to open WAV stream", "error", err)
		return nil, err
	}

	info := stream.Info()
	slog.Debug("WAV stream opened",
		"frames", info.Frames,
		"channels", info.Channels,
		"sample_rate", info.SampleRate,
		"bits_per_sample", info.BitsPerSample)

	return stream, nil
}

// openQuiet is Open without logging, for reopening on the render thread
func (d *WavDecoder) openQuiet(data []byte) (Stream, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty WAV data", ErrInvalidData)
	}

	wavReader := wav.NewReader(bytes.NewReader(data))

	format, err := wavReader.Format()
	if err != nil {
		return nil, fmt.Errorf("%w: WAV format: %v", ErrInvalidData, err)
	}
	if format.NumChannels == 0 || format.SampleRate == 0 {
		return nil, fmt.Errorf("%w: WAV has %d channels at %d Hz", ErrInvalidData, format.NumChannels, format.SampleRate)
	}

	bits := int(format.BitsPerSample)
	switch bits {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d-bit WAV", ErrUnsupportedFormat, bits)
	}

	// The reader yields the data chunk's raw bytes
	raw, err := io.ReadAll(wavReader)
	if err != nil {
		return nil, fmt.Errorf("%w: WAV data chunk: %v", ErrReadFailure, err)
	}

	channels := int(format.NumChannels)
	bytesPerSample := bits / 8
	frames := int64(len(raw) / (channels * bytesPerSample))
	if frames == 0 {
		return nil, fmt.Errorf("%w: no audio data in WAV", ErrInvalidData)
	}

	return &wavStream{
		info: StreamInfo{
			SampleRate:    int(format.SampleRate),
			Channels:      channels,
			BitsPerSample: bits,
			Frames:        frames,
		},
		raw:            raw,
		bytesPerSample: bytesPerSample,
	}, nil
}

func (s *wavStream) Info() StreamInfo { return s.info }

func (s *wavStream) ReadFrames(frame int64, dst []int16) (int, error) {
	if frame < 0 || frame >= s.info.Frames {
		return 0, io.EOF
	}
	ch := s.info.Channels
	frames := int64(len(dst) / ch)
	if remaining := s.info.Frames - frame; frames > remaining {
		frames = remaining
	}
	stride := s.bytesPerSample
	off := int(frame) * ch * stride
	n := int(frames) * ch
	for i := 0; i < n; i++ {
		b := s.raw[off+i*stride:]
		var v int
		switch stride {
		case 1:
			v = int(b[0])
		case 2:
			v = int(int16(binary.LittleEndian.Uint16(b)))
		case 3:
			v = int(int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8)
		case 4:
			v = int(int32(binary.LittleEndian.Uint32(b)))
		}
		dst[i] = pcmToInt16(v, stride*8)
	}
	return int(frames), nil
}

func (s *wavStream) Close() error {
	s.raw = nil
	return nil
}

// CanDecode checks if this decoder can handle the given filename
func (d *WavDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	canDecode := strings.HasSuffix(lower, ".wav") || strings.HasSuffix(lower, ".wave")

	slog.Debug("WAV decoder file check",
		"filename", filename,
		"can_decode", canDecode)

	return canDecode
}

// FormatName returns the name of the format this decoder handles
func (d *WavDecoder) FormatName() string {
	return "WAV"
}
