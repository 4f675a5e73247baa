// Command synthesize renders the sample text to speech and converts it to a
// 16 kHz mono WAV for the transcriber.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/speechloop/internal/config"
	"github.com/snarg/speechloop/internal/convert"
	"github.com/snarg/speechloop/internal/logging"
	"github.com/snarg/speechloop/internal/metrics"
	"github.com/snarg/speechloop/internal/speechgen"
	"github.com/snarg/speechloop/internal/storage"
	"github.com/snarg/speechloop/internal/tts"
)

var version = "dev"

func main() {
	var ov config.Overrides
	flag.StringVar(&ov.EnvFile, "env", "", "path to .env file (default: .env)")
	flag.StringVar(&ov.SampleText, "text", "", "text unit to repeat (env: SAMPLE_TEXT)")
	flag.IntVar(&ov.SampleRepeat, "repeat", 0, "repeat count (env: SAMPLE_REPEAT)")
	flag.StringVar(&ov.TTSLanguage, "lang", "", "speech language (env: TTS_LANGUAGE)")
	flag.StringVar(&ov.MP3Path, "mp3", "", "MP3 output (env: MP3_PATH)")
	flag.StringVar(&ov.WAVPath, "wav", "", "WAV output (env: WAV_PATH)")
	flag.StringVar(&ov.FFmpegPath, "ffmpeg", "", "ffmpeg executable (env: FFMPEG_PATH)")
	flag.StringVar(&ov.LogLevel, "log-level", "", "log level (env: LOG_LEVEL)")
	flag.Parse()

	cfg, err := config.Load(ov)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	log.Debug().Str("version", version).Msg("synthesize starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	synth, err := tts.FromConfig(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure tts")
	}

	conv := convert.New(cfg.FFmpegPath, cfg.TargetSampleRate, cfg.TargetChannels, cfg.ConvertTimeout)
	if _, err := conv.Check(); err != nil {
		log.Fatal().Err(err).Msg("ffmpeg unavailable")
	}

	store, err := storage.New(cfg.S3, cfg.AudioDir, log.With().Str("component", "storage").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}

	job := &speechgen.Job{
		Text:      cfg.SampleText,
		Repeat:    cfg.SampleRepeat,
		Language:  cfg.TTSLanguage,
		MP3Key:    cfg.MP3Path,
		WAVKey:    cfg.WAVPath,
		Synth:     synth,
		Converter: conv,
		Store:     store,
		Log:       log.With().Str("component", "speechgen").Logger(),
	}
	res, runErr := job.Run(ctx)
	pushMetrics(cfg.PushgatewayURL, "synthesize", log)
	if runErr != nil {
		log.Fatal().Err(runErr).Msg("speech generation failed")
	}

	fmt.Printf("Audio generated and saved as %s\n", res.WAVPath)
}

// pushMetrics ships this run's counters to the Pushgateway when configured.
func pushMetrics(url, job string, log zerolog.Logger) {
	if url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metrics.Push(ctx, url, job); err != nil {
		log.Warn().Err(err).Str("pushgateway", url).Msg("metrics push failed")
	}
}
