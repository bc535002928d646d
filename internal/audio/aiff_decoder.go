package audio

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
)

// AiffDecoder handles AIFF audio format decoding
type AiffDecoder struct{}

// NewAiffDecoder creates a new AIFF decoder instance
func NewAiffDecoder() *AiffDecoder {
	slog.Debug("creating new AIFF decoder instance")
	return &AiffDecoder{}
}

// FormatName returns the name of the format this decoder handles
func (d *AiffDecoder) FormatName() string {
	return "AIFF"
}

// CanDecode checks if this decoder can handle the given filename
func (d *AiffDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	canDecode := strings.HasSuffix(lower, ".aiff") || strings.HasSuffix(lower, ".aif")

	slog.Debug("AIFF decoder file check",
		"filename", filename,
		"can_decode", canDecode)

	return canDecode
}

// aiffStream holds the decoded IntBuffer; AIFF is uncompressed so the whole
// sound chunk is pulled in at open time
type aiffStream struct {
	info StreamInfo
	pcm  *audio.IntBuffer
}

// Open reads the AIFF header and sound data
func (d *AiffDecoder) Open(data []byte) (Stream, error) {
	slog.Debug("opening AIFF stream", "size_bytes", len(data))

	stream, err := d.openQuiet(data)
	if err != nil {
		slog.Error("failed to open AIFF stream", "error", err)
		return nil, err
	}

	info := stream.Info()
	slog.Debug("AIFF stream opened",
		"frames", info.Frames,
		"channels", info.Channels,
		"sample_rate", info.SampleRate,
		"bits_per_sample", info.BitsPerSample)

	return stream, nil
}

// openQuiet is Open without logging, for reopening on the render thread
func (d *AiffDecoder) openQuiet(data []byte) (Stream, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty AIFF data", ErrInvalidData)
	}

	decoder := aiff.NewDecoder(bytes.NewReader(data))
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: not an AIFF file", ErrInvalidData)
	}

	sampleRate := int(decoder.SampleRate)
	channels := int(decoder.NumChans)
	bitDepth := int(decoder.SampleBitDepth())
	if channels == 0 || sampleRate == 0 || bitDepth == 0 {
		return nil, fmt.Errorf("%w: AIFF has %d channels at %d Hz, %d bits", ErrInvalidData, channels, sampleRate, bitDepth)
	}

	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d-bit AIFF", ErrUnsupportedFormat, bitDepth)
	}

	pcmBuffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: AIFF samples: %v", ErrReadFailure, err)
	}
	if pcmBuffer == nil || len(pcmBuffer.Data) < channels {
		return nil, fmt.Errorf("%w: no audio data in AIFF", ErrInvalidData)
	}

	return &aiffStream{
		info: StreamInfo{
			SampleRate:    sampleRate,
			Channels:      channels,
			BitsPerSample: bitDepth,
			Frames:        int64(len(pcmBuffer.Data) / channels),
		},
		pcm: pcmBuffer,
	}, nil
}

func (s *aiffStream) Info() StreamInfo { return s.info }

func (s *aiffStream) ReadFrames(frame int64, dst []int16) (int, error) {
	if frame < 0 || frame >= s.info.Frames {
		return 0, io.EOF
	}
	ch := s.info.Channels
	frames := int64(len(dst) / ch)
	if remaining := s.info.Frames - frame; frames > remaining {
		frames = remaining
	}
	src := s.pcm.Data[int(frame)*ch : int(frame+frames)*ch]
	for i, v := range src {
		// AIFF 8-bit is signed, unlike WAV
		if s.info.BitsPerSample == 8 {
			dst[i] = int16(v << 8)
			continue
		}
		dst[i] = pcmToInt16(v, s.info.BitsPerSample)
	}
	return int(frames), nil
}

func (s *aiffStream) Close() error {
	s.pcm = nil
	return nil
}
