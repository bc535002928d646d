package audio

import (
	"errors"
)

// Common decoder errors
var (
	ErrInvalidData       = errors.New("invalid audio data")
	ErrReadFailure       = errors.New("failed to read audio data")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// StreamInfo describes a decoded PCM stream
type StreamInfo struct {
	SampleRate    int   // Frames per second
	Channels      int   // Interleaved channel count
	BitsPerSample int   // Bit depth of the container's PCM (16 for compressed formats)
	Frames        int64 // Total frames in the stream
}

// BytesPerFrame returns the container's storage size of one frame
func (i StreamInfo) BytesPerFrame() int {
	return i.Channels * ((i.BitsPerSample + 7) / 8)
}

// Stream is an open decode handle over one asset. Frames are addressed
// absolutely so windows can be decoded in any order.
type Stream interface {
	// Info returns the stream format
	Info() StreamInfo

	// ReadFrames decodes frames starting at frame into dst as interleaved
	// int16. dst length must be a multiple of Channels. Returns frames read.
	ReadFrames(frame int64, dst []int16) (int, error)

	// Close releases decoder state
	Close() error
}

// Decoder interface for audio container decoding
type Decoder interface {
	// Open parses the container held in data and returns a decode handle
	Open(data []byte) (Stream, error)

	// CanDecode checks if this decoder can handle the given filename
	CanDecode(filename string) bool

	// FormatName returns the name of the format this decoder handles
	FormatName() string
}

// pcmToInt16 narrows a signed PCM value of the given bit depth to int16
func pcmToInt16(v int, bits int) int16 {
	switch {
	case bits == 8:
		// 8-bit containers store unsigned samples
		return int16((v - 128) << 8)
	case bits <= 16:
		return int16(v)
	default:
		return int16(v >> (bits - 16))
	}
}
