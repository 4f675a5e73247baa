// Command transcribe decodes a 16 kHz mono WAV with a local Vosk model and
// prints the transcript.
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
	"github.com/snarg/speechloop/internal/database"
	"github.com/snarg/speechloop/internal/logging"
	"github.com/snarg/speechloop/internal/metrics"
	"github.com/snarg/speechloop/internal/mqttclient"
	"github.com/snarg/speechloop/internal/storage"
	"github.com/snarg/speechloop/internal/transcribe"
	"github.com/snarg/speechloop/internal/transcribe/vosk"
)

var version = "dev"

func main() {
	var ov config.Overrides
	var sidecar bool
	flag.StringVar(&ov.EnvFile, "env", "", "path to .env file (default: .env)")
	flag.StringVar(&ov.VoskModelPath, "model", "", "Vosk model directory (env: VOSK_MODEL_PATH)")
	flag.StringVar(&ov.WAVPath, "wav", "", "WAV input (env: WAV_PATH)")
	flag.IntVar(&ov.ChunkFrames, "chunk", 0, "frames per decoder feed (env: CHUNK_FRAMES)")
	flag.StringVar(&ov.LogLevel, "log-level", "", "log level (env: LOG_LEVEL)")
	flag.BoolVar(&sidecar, "sidecar", false, "also write the transcript next to the WAV (sample.wav -> sample.txt)")
	flag.Parse()

	cfg, err := config.Load(ov)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	log.Debug().Str("version", version).Msg("transcribe starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Model
	vosk.SetQuiet(log.GetLevel() > zerolog.DebugLevel)
	model, err := vosk.Load(cfg.VoskModelPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load model")
	}
	defer model.Close()
	provider := transcribe.NewOfflineProvider("vosk", model.Name(), model, cfg.ChunkFrames, log)

	// Input: local file, or downloaded from the S3 mirror
	store, err := storage.New(cfg.S3, cfg.AudioDir, log.With().Str("component", "storage").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	wavPath, cleanup, err := storage.Fetch(ctx, store, cfg.WAVPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open input")
	}
	defer cleanup()

	// Optional transcript sinks
	var transcripts transcribe.TranscriptStore
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, database.Options{
			URL:            cfg.DatabaseURL,
			MaxConns:       1,
			MinConns:       cfg.DBMinConns,
			ConnectTimeout: cfg.DBConnectTimeout,
		}, log.With().Str("component", "database").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		transcripts = db
	}
	var publish transcribe.EventPublishFunc
	if cfg.MQTTBrokerURL != "" {
		mq, err := mqttclient.Connect(mqttclient.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Topic:     cfg.MQTTTopic,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer mq.Close()
		publish = mq.PublishEvent
	}

	pool := transcribe.NewWorkerPool(transcribe.WorkerPoolOptions{
		Provider:     provider,
		Store:        transcripts,
		PublishEvent: publish,
		Timeout:      cfg.TranscribeTimeout,
		Log:          log,
	})

	fmt.Printf("Transcribing %s...\n\n", cfg.WAVPath)
	res, runErr := pool.Process(ctx, transcribe.Job{
		AudioPath: wavPath,
		Source:    "batch",
		Language:  cfg.TTSLanguage,
		Sidecar:   sidecar,
	})
	pushMetrics(cfg.PushgatewayURL, "transcribe", log)
	if runErr != nil {
		log.Fatal().Err(runErr).Msg("transcription failed")
	}

	fmt.Print("Final Transcription:\n\n")
	fmt.Println(res.Text)
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
