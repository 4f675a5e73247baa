// Package tts turns text into compressed speech audio using an external
// text-to-speech service.
package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/snarg/speechloop/internal/config"
)

// ErrEmptyText is returned when there is nothing to synthesize.
var ErrEmptyText = errors.New("tts: empty text")

// Synthesizer is the interface for text-to-speech backends.
type Synthesizer interface {
	// Synthesize returns MP3 audio for text spoken in lang.
	Synthesize(ctx context.Context, text, lang string) ([]byte, error)
	Name() string // "google", "openai"
}

// BuildText repeats unit n times. The unit is used verbatim, so callers
// control the separator by ending it with whitespace.
func BuildText(unit string, n int) (string, error) {
	if strings.TrimSpace(unit) == "" {
		return "", ErrEmptyText
	}
	if n < 1 {
		return "", errors.New("tts: repeat count must be >= 1")
	}
	return strings.Repeat(unit, n), nil
}

// FromConfig builds the synthesizer selected by TTS_PROVIDER.
func FromConfig(cfg *config.Config, log zerolog.Logger) (Synthesizer, error) {
	switch cfg.TTSProvider {
	case "google", "":
		return NewGoogleClient(cfg.TTSBaseURL, cfg.TTSSlow, cfg.TTSTimeout, log), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("tts: openai provider requires OPENAI_API_KEY")
		}
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.TTSBaseURL, cfg.OpenAITTSModel, cfg.OpenAITTSVoice, log), nil
	default:
		return nil, fmt.Errorf("tts: unknown provider %q", cfg.TTSProvider)
	}
}
