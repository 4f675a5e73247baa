package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/speechloop/internal/config"
	"github.com/snarg/speechloop/internal/convert"
	"github.com/snarg/speechloop/internal/metrics"
	"github.com/snarg/speechloop/internal/tts"
)

// ServerOptions wires the daemon's components into the HTTP surface.
// Optional dependencies must be left as untyped nil when not configured.
type ServerOptions struct {
	Config      *config.Config
	Transcriber Transcriber
	History     TranscriptLister
	DB          Pinger
	MQTT        ConnStatus
	Queue       func() QueueInfo
	Watch       func() WatchInfo // nil when no directory is watched
	Synth       tts.Synthesizer    // nil disables POST /syntheses
	Converter   *convert.Converter // required with Synth
	ModelName   string
	Version     string
	StartTime   time.Time
	Log         zerolog.Logger
}

type Server struct {
	http    *http.Server
	handler http.Handler
	log     zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	r := chi.NewRouter()

	// Global middleware
	// Recoverer sits inside Logger so panics are logged with the request id
	// and show up as 500 in the access log.
	r.Use(RequestID)
	r.Use(Logger(opts.Log))
	r.Use(Recoverer)
	r.Use(CORS)
	r.Use(metrics.InstrumentHandler)

	// Health and metrics: no auth
	health := &HealthHandler{
		db:        opts.DB,
		mqtt:      opts.MQTT,
		queue:     opts.Queue,
		watch:     opts.Watch,
		model:     opts.ModelName,
		version:   opts.Version,
		startTime: opts.StartTime,
	}
	if opts.Converter != nil {
		health.ffmpeg = func() error {
			_, err := opts.Converter.Check()
			return err
		}
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.ServeHTTP)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(cfg.AuthToken))

			if opts.Transcriber != nil {
				th := &TranscriptionsHandler{
					transcriber: opts.Transcriber,
					history:     opts.History,
					language:    cfg.TTSLanguage,
					log:         opts.Log.With().Str("handler", "transcriptions").Logger(),
				}
				th.Routes(r)
			}
			if opts.Synth != nil && opts.Converter != nil {
				sh := &SynthesesHandler{
					synth:     opts.Synth,
					converter: opts.Converter,
					language:  cfg.TTSLanguage,
					rateLimit: cfg.SynthesisRateLimit,
					log:       opts.Log.With().Str("handler", "syntheses").Logger(),
				}
				sh.Routes(r)
			}
		})
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		handler: r,
		log:     opts.Log,
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
