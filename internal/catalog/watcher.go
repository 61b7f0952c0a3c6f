package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce collapses the burst of events an editor or copy produces.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a Holder when its catalog file changes.
// The parent directory is watched so atomic rename-over writes are seen.
type Watcher struct {
	holder   *Holder
	logger   zerolog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	fsw      *fsnotify.Watcher
	file     string
	debounce time.Duration
	mu       sync.Mutex
	started  bool
}

// NewWatcher creates a watcher for the holder's source file.
func NewWatcher(holder *Holder, debounce time.Duration, logger zerolog.Logger) (*Watcher, error) {
	if holder.Path() == "" {
		return nil, fmt.Errorf("catalog watcher: holder has no source file")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(holder.Path())
	if err != nil {
		return nil, fmt.Errorf("catalog watcher: %w", err)
	}
	return &Watcher{
		holder:   holder,
		file:     abs,
		debounce: debounce,
		logger:   logger.With().Str("component", "catalog-watcher").Logger(),
	}, nil
}

// Start begins watching. It is safe to call once; later calls are no-ops.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.file)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.file), err)
	}

	w.fsw = fsw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.started = true

	go w.loop()

	w.logger.Info().Str("path", w.file).Msg("Catalog file watcher started")
	return nil
}

// Stop ends watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	close(w.stopCh)
	done := w.doneCh
	w.mu.Unlock()

	<-done
	_ = w.fsw.Close()
}

// Serve runs the watcher until ctx is done, for use under a supervisor.
func (w *Watcher) Serve(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return ctx.Err()
}

func (w *Watcher) String() string {
	return "catalog-watcher"
}

func (w *Watcher) loop() {
	defer close(w.doneCh)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.file {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if _, err := w.holder.Reload(); err != nil {
				w.logger.Warn().Err(err).Msg("Catalog change ignored")
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Catalog watcher error")
		}
	}
}
