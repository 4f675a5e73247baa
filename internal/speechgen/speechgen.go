// Package speechgen produces a test recording: repeated sample text is
// synthesized to MP3 and converted to a WAV the recognizer can read.
package speechgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/speechloop/internal/convert"
	"github.com/snarg/speechloop/internal/metrics"
	"github.com/snarg/speechloop/internal/storage"
	"github.com/snarg/speechloop/internal/tts"
	"github.com/snarg/speechloop/internal/wavfile"
)

// ErrFormatMismatch is returned when the converted WAV does not have the
// requested sample rate and channel count.
var ErrFormatMismatch = errors.New("converted audio does not match target format")

// Job describes one synthesis run. Keys are resolved through Store, so an
// absolute key writes exactly there and a relative key lands in the store's
// artifact directory.
type Job struct {
	Text     string // unit repeated Repeat times
	Repeat   int
	Language string
	MP3Key   string
	WAVKey   string

	Synth     tts.Synthesizer
	Converter *convert.Converter
	Store     storage.AudioStore
	Log       zerolog.Logger
}

// Result reports what a run produced.
type Result struct {
	MP3Path   string
	WAVPath   string
	MP3Bytes  int
	WAV       wavfile.Header
	Synthesis time.Duration
	Convert   time.Duration
}

// Run synthesizes, stores the MP3, converts it and checks the WAV header.
// Any step failing aborts the run; an MP3 written before a conversion
// failure is left in place.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	text, err := tts.BuildText(j.Text, j.Repeat)
	if err != nil {
		return nil, err
	}
	log := j.Log.With().Str("provider", j.Synth.Name()).Str("lang", j.Language).Logger()

	start := time.Now()
	mp3, err := j.Synth.Synthesize(ctx, text, j.Language)
	metrics.SynthesisRequestsTotal.WithLabelValues(j.Synth.Name(), metrics.Status(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	metrics.SynthesisBytesTotal.Add(float64(len(mp3)))
	res := &Result{
		MP3Path:   j.Store.Path(j.MP3Key),
		WAVPath:   j.Store.Path(j.WAVKey),
		MP3Bytes:  len(mp3),
		Synthesis: time.Since(start),
	}
	log.Debug().Int("chars", len(text)).Int("bytes", len(mp3)).Dur("elapsed", res.Synthesis).Msg("speech synthesized")

	if err := j.Store.Save(ctx, j.MP3Key, mp3, "audio/mpeg"); err != nil {
		return nil, fmt.Errorf("save %s: %w", res.MP3Path, err)
	}

	start = time.Now()
	err = j.Converter.Convert(ctx, res.MP3Path, res.WAVPath)
	res.Convert = time.Since(start)
	metrics.ConversionsTotal.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", res.MP3Path, err)
	}
	metrics.ConversionDuration.Observe(res.Convert.Seconds())

	hdr, err := wavfile.Info(res.WAVPath)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", res.WAVPath, err)
	}
	if hdr.SampleRate != j.Converter.SampleRate || hdr.Channels != j.Converter.Channels {
		return nil, fmt.Errorf("%s is %d Hz/%d ch, want %d Hz/%d ch: %w",
			res.WAVPath, hdr.SampleRate, hdr.Channels,
			j.Converter.SampleRate, j.Converter.Channels, ErrFormatMismatch)
	}
	res.WAV = hdr

	if err := j.Store.Publish(ctx, j.WAVKey, "audio/wav"); err != nil {
		return nil, fmt.Errorf("publish %s: %w", res.WAVPath, err)
	}

	log.Info().
		Str("mp3", res.MP3Path).
		Str("wav", res.WAVPath).
		Dur("audio", hdr.Duration()).
		Dur("convert", res.Convert).
		Msg("speech generated")
	return res, nil
}
