package transcribe

import (
	"context"
	"time"
)

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error)
	Name() string  // "vosk"
	Model() string // model identifier for DB/logs
}

// TranscribeOpts are per-request options.
type TranscribeOpts struct {
	Language string // recorded on the response; the model decides what it recognizes

	// ChunkFrames overrides the provider's frames-per-feed (0 = provider default).
	ChunkFrames int
}

// Response is the common transcription result from any provider.
type Response struct {
	Text      string
	Fragments []string // per-utterance texts, in order, empty ones dropped
	Language  string
	Duration  time.Duration // audio length
	Chunks    int           // decoder feeds
}
