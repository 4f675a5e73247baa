package transcribe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/speechloop/internal/metrics"
	"github.com/snarg/speechloop/internal/wavfile"
)

// ErrUnsupportedFormat is returned for audio the decoder cannot consume.
var ErrUnsupportedFormat = errors.New("audio must be a 16-bit PCM mono WAV file")

// OfflineProvider transcribes WAV files with a local acoustic model.
// Implements the Provider interface.
type OfflineProvider struct {
	engine      string
	modelName   string
	model       Model
	chunkFrames int
	log         zerolog.Logger
}

// NewOfflineProvider wraps a loaded model. engine names the backend ("vosk"),
// modelName identifies the model for logs and storage.
func NewOfflineProvider(engine, modelName string, model Model, chunkFrames int, log zerolog.Logger) *OfflineProvider {
	if chunkFrames <= 0 {
		chunkFrames = DefaultChunkFrames
	}
	return &OfflineProvider{
		engine:      engine,
		modelName:   modelName,
		model:       model,
		chunkFrames: chunkFrames,
		log:         log.With().Str("component", "transcriber").Logger(),
	}
}

// Name returns the provider name.
func (p *OfflineProvider) Name() string { return p.engine }

// Model returns the configured model identifier.
func (p *OfflineProvider) Model() string { return p.modelName }

// Transcribe decodes audioPath frame by frame and returns the joined transcript.
func (p *OfflineProvider) Transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	start := time.Now()
	resp, err := p.transcribe(ctx, audioPath, opts)
	metrics.TranscriptionsTotal.WithLabelValues(p.engine, metrics.Status(err)).Inc()
	if err != nil {
		return nil, err
	}
	metrics.TranscriptionDuration.Observe(time.Since(start).Seconds())
	metrics.AudioSecondsDecodedTotal.Add(resp.Duration.Seconds())

	p.log.Debug().
		Str("path", audioPath).
		Int("chunks", resp.Chunks).
		Int("fragments", len(resp.Fragments)).
		Dur("audio", resp.Duration).
		Dur("elapsed", time.Since(start)).
		Msg("transcription complete")
	return resp, nil
}

func (p *OfflineProvider) transcribe(ctx context.Context, audioPath string, opts TranscribeOpts) (*Response, error) {
	wf, err := wavfile.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer wf.Close()

	hdr := wf.Header()
	if !hdr.IsPCM() || hdr.BitDepth != 16 || hdr.Channels != 1 {
		return nil, fmt.Errorf("%s (format=%d bits=%d channels=%d): %w",
			audioPath, hdr.Format, hdr.BitDepth, hdr.Channels, ErrUnsupportedFormat)
	}

	// The recognizer runs at whatever rate the file declares; matching it to
	// the model is the caller's job.
	rec, err := p.model.NewRecognizer(float64(hdr.SampleRate))
	if err != nil {
		return nil, fmt.Errorf("create recognizer: %w", err)
	}
	defer rec.Free()

	chunk := p.chunkFrames
	if opts.ChunkFrames > 0 {
		chunk = opts.ChunkFrames
	}
	fragments, chunks, err := Decode(ctx, rec, wf, chunk)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", audioPath, err)
	}

	return &Response{
		Text:      Join(fragments),
		Fragments: fragments,
		Language:  opts.Language,
		Duration:  hdr.Duration(),
		Chunks:    chunks,
	}, nil
}
