package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/speechloop/internal/config"
)

// AudioStore abstracts audio artifact storage backends. Keys are paths
// relative to the artifact directory, e.g. "sample.wav".
type AudioStore interface {
	// Save stores audio data under key.
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// Publish copies a file already written at LocalPath(key) by an external
	// tool to every remote backend. No-op for local-only stores.
	Publish(ctx context.Context, key, contentType string) error

	// Path returns where key lives on local disk, whether or not it exists yet.
	Path(key string) string

	// LocalPath returns the local filesystem path if the file exists on disk.
	// Returns "" if not available locally.
	LocalPath(key string) string

	// Open returns a reader for the audio file.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an audio file exists in any backend.
	Exists(ctx context.Context, key string) bool

	// Type returns "local" or "tiered".
	Type() string
}

// New creates an AudioStore based on config. Without a bucket the store is
// local only; with one, artifacts are kept locally and mirrored to S3.
// Returns an error if S3 is configured but unreachable.
func New(cfg config.S3Config, audioDir string, log zerolog.Logger) (AudioStore, error) {
	local := NewLocalStore(audioDir)
	if !cfg.Enabled() {
		return local, nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	return NewTieredStore(s3store, local, log), nil
}

// Fetch returns a local path for key. If the file is only available remotely
// it is downloaded to a temporary file, removed by the returned cleanup.
func Fetch(ctx context.Context, store AudioStore, key string) (string, func(), error) {
	noop := func() {}
	if p := store.LocalPath(key); p != "" {
		return p, noop, nil
	}

	r, err := store.Open(ctx, key)
	if err != nil {
		return "", noop, fmt.Errorf("open %s: %w", key, err)
	}
	defer r.Close()

	tmp, err := os.CreateTemp("", "speechloop-*"+filepath.Ext(key))
	if err != nil {
		return "", noop, fmt.Errorf("create temp: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", noop, fmt.Errorf("download %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", noop, err
	}
	path := tmp.Name()
	return path, func() { os.Remove(path) }, nil
}

// ContentTypeFromExt maps an artifact extension to its MIME type.
func ContentTypeFromExt(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
