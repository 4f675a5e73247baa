package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/speechloop/internal/database"
)

// ErrPoolStopped is returned by EnqueueWait once Stop has been called.
var ErrPoolStopped = errors.New("transcription pool stopped")

// enqueueRetry is how often EnqueueWait retries a full queue.
const enqueueRetry = 50 * time.Millisecond

// Job is one WAV file to transcribe.
type Job struct {
	ID        string // uuid; assigned by Process when empty
	AudioPath string
	Source    string // "batch", "watch", "api"
	Language  string
	Sidecar   bool // write the transcript next to the file, extension replaced by .txt
}

// Result is a finished job.
type Result struct {
	JobID     string        `json:"job_id"`
	AudioPath string        `json:"audio_path"`
	Text      string        `json:"text"`
	Fragments []string      `json:"fragments"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Duration  time.Duration `json:"-"`
	Elapsed   time.Duration `json:"-"`
}

// QueueStats reports the current state of the transcription queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// TranscriptStore persists finished transcripts.
type TranscriptStore interface {
	InsertTranscript(ctx context.Context, row *database.TranscriptRow) (int64, error)
}

// EventPublishFunc is a callback for publishing transcript events.
type EventPublishFunc func(eventType string, payload map[string]any)

// WorkerPoolOptions configures the transcription worker pool.
type WorkerPoolOptions struct {
	Provider     Provider
	Store        TranscriptStore // optional
	PublishEvent EventPublishFunc
	Workers      int
	QueueSize    int
	Timeout      time.Duration // per job, 0 = none
	OnResult     func(*Result, error)
	Log          zerolog.Logger
}

// WorkerPool manages transcription workers. Process may also be called
// directly to run a job synchronously with the same persistence and events.
type WorkerPool struct {
	jobs   chan Job
	opts   WorkerPoolOptions
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	completed atomic.Int64
	failed    atomic.Int64
}

// NewWorkerPool creates a new transcription worker pool.
func NewWorkerPool(opts WorkerPoolOptions) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	return &WorkerPool{
		jobs:   make(chan Job, opts.QueueSize),
		opts:   opts,
		log:    opts.Log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.log.Info().Int("workers", wp.opts.Workers).Int("queue_size", cap(wp.jobs)).Msg("transcription worker pool started")
}

// Stop signals workers to drain and waits for completion.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobs)
	wp.mu.Unlock()

	wp.wg.Wait()
	wp.cancel()
	wp.log.Info().
		Int64("completed", wp.completed.Load()).
		Int64("failed", wp.failed.Load()).
		Msg("transcription worker pool stopped")
}

// Enqueue adds a job to the transcription queue. Returns false if the queue
// is full or the pool is stopped.
func (wp *WorkerPool) Enqueue(j Job) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return false
	}
	select {
	case wp.jobs <- j:
		return true
	default:
		return false
	}
}

// EnqueueWait adds a job, waiting for queue capacity until ctx is done.
// The lock is not held while waiting so Stop is never blocked behind it.
func (wp *WorkerPool) EnqueueWait(ctx context.Context, j Job) error {
	ticker := time.NewTicker(enqueueRetry)
	defer ticker.Stop()
	for {
		wp.mu.RLock()
		if wp.stopped {
			wp.mu.RUnlock()
			return ErrPoolStopped
		}
		select {
		case wp.jobs <- j:
			wp.mu.RUnlock()
			return nil
		default:
		}
		wp.mu.RUnlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stats returns current queue statistics.
func (wp *WorkerPool) Stats() QueueStats {
	return QueueStats{
		Pending:   len(wp.jobs),
		Completed: wp.completed.Load(),
		Failed:    wp.failed.Load(),
	}
}

// Pending, Completed and Failed satisfy metrics.QueueStats.
func (wp *WorkerPool) Pending() int     { return len(wp.jobs) }
func (wp *WorkerPool) Completed() int64 { return wp.completed.Load() }
func (wp *WorkerPool) Failed() int64    { return wp.failed.Load() }

// Workers returns the number of worker goroutines.
func (wp *WorkerPool) Workers() int { return wp.opts.Workers }

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()

	for job := range wp.jobs {
		res, err := wp.Process(wp.ctx, job)
		if err != nil {
			log.Warn().Err(err).
				Str("path", job.AudioPath).
				Str("source", job.Source).
				Msg("transcription failed")
		}
		if wp.opts.OnResult != nil {
			wp.opts.OnResult(res, err)
		}
	}
}

// Process transcribes one job and records the result: optional sidecar
// file, database row, and event. Recording failures are logged, not returned;
// the transcript itself is still valid.
func (wp *WorkerPool) Process(ctx context.Context, job Job) (*Result, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if wp.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wp.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := wp.opts.Provider.Transcribe(ctx, job.AudioPath, TranscribeOpts{Language: job.Language})
	if err != nil {
		wp.failed.Add(1)
		return nil, fmt.Errorf("%s: %w", wp.opts.Provider.Name(), err)
	}
	wp.completed.Add(1)

	res := &Result{
		JobID:     job.ID,
		AudioPath: job.AudioPath,
		Text:      resp.Text,
		Fragments: resp.Fragments,
		Provider:  wp.opts.Provider.Name(),
		Model:     wp.opts.Provider.Model(),
		Duration:  resp.Duration,
		Elapsed:   time.Since(start),
	}
	if res.Fragments == nil {
		res.Fragments = []string{}
	}
	log := wp.log.With().Str("job_id", job.ID).Str("path", job.AudioPath).Logger()

	if job.Sidecar {
		if err := writeSidecar(job.AudioPath, res.Text); err != nil {
			log.Warn().Err(err).Msg("sidecar write failed")
		}
	}

	if wp.opts.Store != nil {
		_, err := wp.opts.Store.InsertTranscript(ctx, &database.TranscriptRow{
			JobID:           job.ID,
			Source:          job.Source,
			AudioPath:       job.AudioPath,
			Text:            res.Text,
			Fragments:       res.Fragments,
			Language:        resp.Language,
			Provider:        res.Provider,
			Model:           res.Model,
			AudioDurationMs: int(res.Duration.Milliseconds()),
			ElapsedMs:       int(res.Elapsed.Milliseconds()),
		})
		if err != nil {
			log.Warn().Err(err).Msg("transcript insert failed")
		}
	}

	if wp.opts.PublishEvent != nil {
		wp.opts.PublishEvent("transcription", map[string]any{
			"job_id":      job.ID,
			"source":      job.Source,
			"audio_path":  job.AudioPath,
			"text":        res.Text,
			"word_count":  len(strings.Fields(res.Text)),
			"provider":    res.Provider,
			"model":       res.Model,
			"duration_ms": res.Elapsed.Milliseconds(),
		})
	}

	log.Debug().
		Int("words", len(strings.Fields(res.Text))).
		Dur("elapsed", res.Elapsed).
		Msg("transcription recorded")
	return res, nil
}

// SidecarPath returns the transcript file written next to audioPath.
func SidecarPath(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".txt"
}

func writeSidecar(audioPath, text string) error {
	return os.WriteFile(SidecarPath(audioPath), []byte(text+"\n"), 0o644)
}
