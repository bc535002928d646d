package audio

import (
	"errors"
	"strings"
	"testing"
)

// MockDecoder implements Decoder for registry tests
type MockDecoder struct {
	formatName string
	extensions []string
	opened     int
}

func (m *MockDecoder) Open(data []byte) (Stream, error) {
	m.opened++
	return nil, ErrInvalidData
}

func (m *MockDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range m.extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func (m *MockDecoder) FormatName() string { return m.formatName }

func TestDecoderRegistry(t *testing.T) {
	registry := NewDecoderRegistry()
	if registry == nil {
		t.Fatal("NewDecoderRegistry returned nil")
	}
	if len(registry.GetDecoders()) != 0 {
		t.Errorf("expected empty registry, got %d decoders", len(registry.GetDecoders()))
	}

	registry.Register(nil)
	if len(registry.GetDecoders()) != 0 {
		t.Error("nil decoder should not be registered")
	}
}

func TestDefaultRegistryFormats(t *testing.T) {
	registry := NewDefaultRegistry()

	got := strings.Join(registry.GetSupportedFormats(), ",")
	if got != "WAV,MP3,AIFF,OGG" {
		t.Errorf("unexpected supported formats %q", got)
	}
}

func TestDecoderRegistryLookup(t *testing.T) {
	registry := NewDefaultRegistry()

	tests := []struct {
		tag  string
		want string
	}{
		{"wav", "WAV"},
		{"WAV", "WAV"},
		{".wave", "WAV"},
		{"mp3", "MP3"},
		{".MP3", "MP3"},
		{"mpeg", "MP3"},
		{"aif", "AIFF"},
		{"aiff", "AIFF"},
		{"ogg", "OGG"},
		{"sounds/rain.ogg", "OGG"},
		{"flac", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			d := registry.Lookup(tt.tag)
			got := ""
			if d != nil {
				got = d.FormatName()
			}
			if got != tt.want {
				t.Errorf("Lookup(%q) = %q, want %q", tt.tag, got, tt.want)
			}
		})
	}
}

func TestDecoderRegistryFirstRegisteredWins(t *testing.T) {
	registry := NewDecoderRegistry()
	first := &MockDecoder{formatName: "A", extensions: []string{".snd"}}
	second := &MockDecoder{formatName: "B", extensions: []string{".snd"}}
	registry.Register(first)
	registry.Register(second)

	if d := registry.DetectFormat("x.snd"); d != first {
		t.Errorf("expected first registered decoder, got %v", d)
	}
	if d := registry.DetectFormat(""); d != nil {
		t.Error("empty filename should not match")
	}
}

func TestDetectFormatWithContentPrefersMagicBytes(t *testing.T) {
	registry := NewDefaultRegistry()
	wavData := makeWAV(8000, 1, 16, []int{1, 2, 3, 4})

	// Extension says MP3 but the bytes are RIFF/WAVE
	d := registry.DetectFormatWithContent("mislabelled.mp3", wavData)
	if d == nil || d.FormatName() != "WAV" {
		t.Fatalf("expected WAV from magic bytes, got %v", d)
	}

	d = registry.DetectFormatWithContent("noext", wavData)
	if d == nil || d.FormatName() != "WAV" {
		t.Fatalf("expected WAV without extension, got %v", d)
	}

	d = registry.DetectFormatWithContent("fallback.aiff", []byte("????"))
	if d == nil || d.FormatName() != "AIFF" {
		t.Fatalf("expected extension fallback to AIFF, got %v", d)
	}

	if d := registry.DetectFormatWithContent("unknown.bin", []byte("????")); d != nil {
		t.Errorf("expected no decoder, got %s", d.FormatName())
	}
}

func TestDecoderRegistryOpen(t *testing.T) {
	registry := NewDefaultRegistry()

	stream, err := registry.Open("tone", "wav", makeWAV(8000, 1, 16, []int{1, 2, 3, 4}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()
	if stream.Info().Frames != 4 {
		t.Errorf("expected 4 frames, got %d", stream.Info().Frames)
	}

	_, err = registry.Open("x.bin", "", []byte("????"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}

	mock := &MockDecoder{formatName: "MOCK", extensions: []string{".mock"}}
	registry.Register(mock)
	_, err = registry.Open("x.mock", "mock", nil)
	if !errors.Is(err, ErrInvalidData) {
		t.Errorf("expected decoder error to be wrapped, got %v", err)
	}
	if mock.opened != 1 {
		t.Errorf("expected mock decoder to be used once, got %d", mock.opened)
	}
}
