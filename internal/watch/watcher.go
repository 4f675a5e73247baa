// Package watch transcribes WAV files as they appear in a directory tree.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/snarg/speechloop/internal/transcribe"
)

// DefaultDebounce is how long a file must stay quiet before it is queued.
const DefaultDebounce = 500 * time.Millisecond

// Enqueuer accepts transcription jobs. Satisfied by *transcribe.WorkerPool.
// Live events use Enqueue and drop on a full queue; backfill uses
// EnqueueWait so no existing file is skipped.
type Enqueuer interface {
	Enqueue(job transcribe.Job) bool
	EnqueueWait(ctx context.Context, job transcribe.Job) error
}

// Options configures a Watcher.
type Options struct {
	Dir      string
	Debounce time.Duration
	Backfill bool // queue existing WAVs that have no transcript yet
	Language string
	Log      zerolog.Logger
}

// Stats reports watcher state for the health endpoint and logs.
type Stats struct {
	Status  string `json:"status"` // "starting", "backfilling", "watching", "stopped"
	Dir     string `json:"dir"`
	Queued  int64  `json:"queued"`
	Dropped int64  `json:"dropped"`
}

// Watcher monitors a directory for new or rewritten WAV files and queues
// each one for transcription once writes have settled.
type Watcher struct {
	queue Enqueuer
	opts  Options
	log   zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	queued  atomic.Int64
	dropped atomic.Int64
	status  atomic.Value // string
}

// New creates a Watcher. Call Start to begin watching.
func New(q Enqueuer, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	w := &Watcher{
		queue:          q,
		opts:           opts,
		log:            opts.Log.With().Str("component", "watcher").Logger(),
		debounceTimers: make(map[string]*time.Timer),
		done:           make(chan struct{}),
	}
	w.status.Store("starting")
	return w
}

// Start adds every directory under Dir to the watch set and begins
// processing events. Backfill, when enabled, runs in the background.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fsw

	dirCount := 0
	err = filepath.WalkDir(w.opts.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == w.opts.Dir {
				return err
			}
			w.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil
		}
		if d.IsDir() {
			if addErr := fsw.Add(path); addErr != nil {
				w.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return err
	}

	w.log.Info().
		Int("directories", dirCount).
		Str("watch_dir", w.opts.Dir).
		Msg("file watcher initialized")

	w.ctx, w.cancel = context.WithCancel(ctx)
	go w.loop()

	if w.opts.Backfill {
		go w.backfill()
	} else {
		w.status.Store("watching")
	}
	return nil
}

// Stop closes the fsnotify watcher and cancels pending debounced files.
func (w *Watcher) Stop() {
	w.status.Store("stopped")
	if w.cancel != nil {
		w.cancel()
	}
	if w.watcher != nil {
		w.watcher.Close()
		<-w.done
	}

	w.debounceMu.Lock()
	for path, t := range w.debounceTimers {
		t.Stop()
		delete(w.debounceTimers, path)
	}
	w.debounceMu.Unlock()

	w.log.Info().
		Int64("queued", w.queued.Load()).
		Int64("dropped", w.dropped.Load()).
		Msg("file watcher stopped")
}

// Stats returns current counters.
func (w *Watcher) Stats() Stats {
	s, _ := w.status.Load().(string)
	return Stats{
		Status:  s,
		Dir:     w.opts.Dir,
		Queued:  w.queued.Load(),
		Dropped: w.dropped.Load(),
	}
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// New subdirectory: watch it too.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := w.watcher.Add(event.Name); err != nil {
					w.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				} else {
					w.log.Debug().Str("path", event.Name).Msg("watching new directory")
				}
				continue
			}

			if !isWAV(event.Name) {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// schedule queues path after it has been quiet for the debounce interval.
func (w *Watcher) schedule(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(w.opts.Debounce)
		return
	}

	w.debounceTimers[path] = time.AfterFunc(w.opts.Debounce, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		if w.ctx.Err() != nil {
			return
		}
		w.enqueue(path)
	})
}

func (w *Watcher) job(path string) transcribe.Job {
	return transcribe.Job{
		AudioPath: path,
		Source:    "watch",
		Language:  w.opts.Language,
		Sidecar:   true,
	}
}

func (w *Watcher) enqueue(path string) {
	if !w.queue.Enqueue(w.job(path)) {
		w.dropped.Add(1)
		w.log.Warn().Str("path", path).Msg("transcription queue full, file dropped")
		return
	}
	w.queued.Add(1)
	w.log.Debug().Str("path", path).Msg("file queued")
}

// backfill queues existing WAV files that have no transcript next to them,
// oldest first.
func (w *Watcher) backfill() {
	w.status.Store("backfilling")

	type fileEntry struct {
		path  string
		mtime time.Time
	}
	var files []fileEntry

	_ = filepath.WalkDir(w.opts.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isWAV(path) {
			return nil
		}
		if _, err := os.Stat(transcribe.SidecarPath(path)); err == nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, fileEntry{path: path, mtime: info.ModTime()})
		return nil
	})

	sort.Slice(files, func(i, j int) bool {
		return files[i].mtime.Before(files[j].mtime)
	})

	w.log.Info().Int("files", len(files)).Msg("backfill starting")
	for i, f := range files {
		if err := w.queue.EnqueueWait(w.ctx, w.job(f.path)); err != nil {
			w.log.Info().Err(err).
				Int("remaining", len(files)-i).
				Msg("backfill interrupted")
			return
		}
		w.queued.Add(1)
	}

	w.status.CompareAndSwap("backfilling", "watching")
	w.log.Info().Int("files", len(files)).Msg("backfill complete")
}

func isWAV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wav")
}
