// Command speechloopd serves synthesis and transcription over HTTP and
// optionally transcribes WAV files dropped into a watch directory.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/snarg/speechloop/internal/api"
	"github.com/snarg/speechloop/internal/config"
	"github.com/snarg/speechloop/internal/convert"
	"github.com/snarg/speechloop/internal/database"
	"github.com/snarg/speechloop/internal/logging"
	"github.com/snarg/speechloop/internal/metrics"
	"github.com/snarg/speechloop/internal/mqttclient"
	"github.com/snarg/speechloop/internal/transcribe"
	"github.com/snarg/speechloop/internal/transcribe/vosk"
	"github.com/snarg/speechloop/internal/tts"
	"github.com/snarg/speechloop/internal/watch"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var ov config.Overrides
	flag.StringVar(&ov.EnvFile, "env", "", "path to .env file (default: .env)")
	flag.StringVar(&ov.HTTPAddr, "listen", "", "HTTP listen address (env: HTTP_ADDR)")
	flag.StringVar(&ov.VoskModelPath, "model", "", "Vosk model directory (env: VOSK_MODEL_PATH)")
	flag.StringVar(&ov.WatchDir, "watch", "", "directory to watch for WAV files (env: WATCH_DIR)")
	flag.StringVar(&ov.LogLevel, "log-level", "", "log level (env: LOG_LEVEL)")
	flag.Parse()

	cfg, err := config.Load(ov)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	log.Info().Str("version", version).Msg("speechloopd starting")

	// Context for graceful shutdown
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
	log.Info().Str("model", model.Name()).Msg("model loaded")

	// Database (optional)
	var db *database.DB
	var transcripts transcribe.TranscriptStore
	if cfg.DatabaseURL != "" {
		db, err = database.Connect(ctx, database.Options{
			URL:            cfg.DatabaseURL,
			MaxConns:       cfg.DBMaxConns,
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

	// MQTT (optional)
	var mq *mqttclient.Client
	var publish transcribe.EventPublishFunc
	if cfg.MQTTBrokerURL != "" {
		mq, err = mqttclient.Connect(mqttclient.Options{
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

	// Transcription workers
	pool := transcribe.NewWorkerPool(transcribe.WorkerPoolOptions{
		Provider:     provider,
		Store:        transcripts,
		PublishEvent: publish,
		Workers:      cfg.TranscribeWorkers,
		QueueSize:    cfg.TranscribeQueue,
		Timeout:      cfg.TranscribeTimeout,
		Log:          log.With().Str("component", "workers").Logger(),
	})
	pool.Start()

	var pgPool *pgxpool.Pool
	if db != nil {
		pgPool = db.Pool
	}
	prometheus.MustRegister(metrics.NewCollector(pgPool, pool))

	// Watcher (optional)
	var watcher *watch.Watcher
	if cfg.WatchDir != "" {
		watcher = watch.New(pool, watch.Options{
			Dir:      cfg.WatchDir,
			Backfill: true,
			Language: cfg.TTSLanguage,
			Log:      log,
		})
		if err := watcher.Start(ctx); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.WatchDir).Msg("failed to start watcher")
		}
	}

	// Synthesis (optional: needs a TTS backend and ffmpeg)
	opts := api.ServerOptions{
		Config:      cfg,
		Transcriber: pool,
		ModelName:   model.Name(),
		Version:     version,
		StartTime:   startTime,
		Log:         log.With().Str("component", "http").Logger(),
		Queue: func() api.QueueInfo {
			s := pool.Stats()
			return api.QueueInfo{Pending: s.Pending, Completed: s.Completed, Failed: s.Failed}
		},
	}
	conv := convert.New(cfg.FFmpegPath, cfg.TargetSampleRate, cfg.TargetChannels, cfg.ConvertTimeout)
	opts.Converter = conv
	if synth, err := tts.FromConfig(cfg, log); err != nil {
		log.Warn().Err(err).Msg("synthesis disabled")
	} else if _, err := conv.Check(); err != nil {
		log.Warn().Err(err).Msg("synthesis disabled")
	} else {
		opts.Synth = synth
	}
	if watcher != nil {
		opts.Watch = func() api.WatchInfo {
			s := watcher.Stats()
			return api.WatchInfo{Status: s.Status, Dir: s.Dir, Queued: s.Queued, Dropped: s.Dropped}
		}
	}
	if db != nil {
		opts.DB = db
		opts.History = db
	}
	if mq != nil {
		opts.MQTT = mq
	}

	srv := api.NewServer(opts)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	if watcher != nil {
		watcher.Stop()
	}
	pool.Stop()

	log.Info().Msg("speechloopd stopped")
}
