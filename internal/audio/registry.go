package audio

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DecoderRegistry manages audio format decoders and provides format detection
type DecoderRegistry struct {
	decoders []Decoder
}

// NewDecoderRegistry creates a new empty decoder registry
func NewDecoderRegistry() *DecoderRegistry {
	slog.Debug("creating new decoder registry")
	return &DecoderRegistry{
		decoders: make([]Decoder, 0),
	}
}

// NewDefaultRegistry creates a registry with WAV, MP3, AIFF and Ogg Vorbis decoders
func NewDefaultRegistry() *DecoderRegistry {
	slog.Debug("creating default decoder registry")

	registry := NewDecoderRegistry()
	registry.Register(NewWavDecoder())
	registry.Register(NewMp3Decoder())
	registry.Register(NewAiffDecoder())
	registry.Register(NewOggDecoder())

	slog.Info("default decoder registry initialized",
		"supported_formats", registry.GetSupportedFormats())

	return registry
}

// Register adds a decoder to the registry
func (r *DecoderRegistry) Register(decoder Decoder) {
	if decoder == nil {
		slog.Warn("attempted to register nil decoder")
		return
	}

	formatName := decoder.FormatName()
	r.decoders = append(r.decoders, decoder)

	slog.Debug("decoder registered",
		"format", formatName,
		"total_decoders", len(r.decoders))
}

// GetDecoders returns all registered decoders
func (r *DecoderRegistry) GetDecoders() []Decoder {
	return r.decoders
}

// GetSupportedFormats returns a list of all supported format names
func (r *DecoderRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(r.decoders))
	for _, decoder := range r.decoders {
		formats = append(formats, decoder.FormatName())
	}
	return formats
}

// Lookup finds a decoder by container tag. The tag may be a format name
// ("wav"), an extension (".wav") or a file name.
func (r *DecoderRegistry) Lookup(tag string) Decoder {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil
	}
	if d := r.findDecoderByFormat(strings.TrimPrefix(tag, ".")); d != nil {
		return d
	}
	if !strings.Contains(tag, ".") {
		tag = "." + tag
	}
	return r.DetectFormat(tag)
}

// DetectFormat detects the appropriate decoder based on filename extension only
func (r *DecoderRegistry) DetectFormat(filename string) Decoder {
	if filename == "" {
		slog.Debug("empty filename provided")
		return nil
	}

	// First registered decoder wins
	for _, decoder := range r.decoders {
		if decoder.CanDecode(filename) {
			slog.Debug("format detected by extension",
				"filename", filename,
				"format", decoder.FormatName())
			return decoder
		}
	}

	slog.Debug("no decoder found for filename", "filename", filename)
	return nil
}

// DetectFormatWithContent detects format using magic bytes first, falling
// back to the filename extension
func (r *DecoderRegistry) DetectFormatWithContent(filename string, data []byte) Decoder {
	if len(data) == 0 {
		slog.Debug("empty content, using extension fallback", "filename", filename)
		return r.DetectFormat(filename)
	}

	detectedMime := mimetype.Detect(data).String()
	mimeStr := strings.ToLower(detectedMime)

	slog.Debug("magic byte detection result",
		"filename", filename,
		"detected_mime", detectedMime)

	var formatDecoder Decoder
	switch {
	case strings.Contains(mimeStr, "wav") || mimeStr == "audio/vnd.wave":
		formatDecoder = r.findDecoderByFormat("WAV")
	case strings.Contains(mimeStr, "mpeg") || strings.Contains(mimeStr, "mp3"):
		formatDecoder = r.findDecoderByFormat("MP3")
	case strings.Contains(mimeStr, "aiff"):
		formatDecoder = r.findDecoderByFormat("AIFF")
	case strings.Contains(mimeStr, "ogg"):
		formatDecoder = r.findDecoderByFormat("OGG")
	}

	if formatDecoder != nil {
		slog.Debug("format detected by magic bytes",
			"filename", filename,
			"detected_format", formatDecoder.FormatName(),
			"mime_type", detectedMime)
		return formatDecoder
	}

	extensionDecoder := r.DetectFormat(filename)
	if extensionDecoder == nil {
		slog.Warn("no format detection method succeeded", "filename", filename)
	}
	return extensionDecoder
}

// Open resolves a decoder for an asset and opens a stream over data. The
// format tag wins when it names a registered decoder; otherwise the content
// and name are inspected.
func (r *DecoderRegistry) Open(name, format string, data []byte) (Stream, error) {
	decoder, err := r.Resolve(name, format, data)
	if err != nil {
		return nil, err
	}

	stream, err := decoder.Open(data)
	if err != nil {
		return nil, fmt.Errorf("open %s as %s: %w", name, decoder.FormatName(), err)
	}
	return stream, nil
}

// Resolve picks the decoder Open would use for an asset
func (r *DecoderRegistry) Resolve(name, format string, data []byte) (Decoder, error) {
	decoder := r.Lookup(format)
	if decoder == nil {
		decoder = r.DetectFormatWithContent(name, data)
	}
	if decoder == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	return decoder, nil
}

// quietOpener is implemented by decoders that can reopen a stream without
// logging
type quietOpener interface {
	openQuiet(data []byte) (Stream, error)
}

// reopen opens data again with a decoder that already accepted it once
func reopen(decoder Decoder, data []byte) (Stream, error) {
	if q, ok := decoder.(quietOpener); ok {
		return q.openQuiet(data)
	}
	return decoder.Open(data)
}

func (r *DecoderRegistry) findDecoderByFormat(formatName string) Decoder {
	for _, decoder := range r.decoders {
		if strings.EqualFold(decoder.FormatName(), formatName) {
			return decoder
		}
	}
	return nil
}
