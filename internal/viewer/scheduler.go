package viewer

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hpungsan/seatwatch/internal/logging"
)

// Refresher is the operation both scheduler tasks trigger.
type Refresher interface {
	Refresh(ctx context.Context) (View, *Notification)
}

// Scheduler runs two independent refresh triggers: a fixed interval, and a
// watch on the document file when the source is local. Each has its own
// cancel handle; Stop cancels both and waits.
type Scheduler struct {
	r         Refresher
	interval  time.Duration
	watchPath string
	log       *logging.Logger

	mu          sync.Mutex
	stopTicker  context.CancelFunc
	stopWatcher context.CancelFunc
	wg          sync.WaitGroup
}

// NewScheduler creates a scheduler. watchPath may be empty to disable the
// file trigger.
func NewScheduler(r Refresher, interval time.Duration, watchPath string, log *logging.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Scheduler{r: r, interval: interval, watchPath: watchPath, log: log}
}

// Start performs an initial refresh and launches both tasks. Calling Start
// on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopTicker != nil {
		return nil
	}

	s.r.Refresh(ctx)

	tickCtx, cancelTick := context.WithCancel(ctx)
	s.stopTicker = cancelTick
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runTicker(tickCtx)
	}()

	if s.watchPath == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Warn("file watch disabled", "error", err)
		return nil
	}
	dir := filepath.Dir(s.watchPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		s.log.Warn("file watch disabled", "path", dir, "error", err)
		return nil
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	s.stopWatcher = cancelWatch
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer watcher.Close()
		s.runWatcher(watchCtx, watcher)
	}()
	return nil
}

// Stop cancels both tasks and waits for them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopTicker != nil {
		s.stopTicker()
		s.stopTicker = nil
	}
	if s.stopWatcher != nil {
		s.stopWatcher()
		s.stopWatcher = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) runTicker(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.r.Refresh(ctx)
		}
	}
}

func (s *Scheduler) runWatcher(ctx context.Context, w *fsnotify.Watcher) {
	name := filepath.Base(s.watchPath)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			// The collector renames a temp file over the document.
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				s.log.Debug("document changed", "path", ev.Name)
				s.r.Refresh(ctx)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.log.Warn("file watch error", "error", err)
		}
	}
}
