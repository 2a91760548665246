package execution

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// Inbox subdirectories files are moved to once handled.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// InboxHandler validates one file dropped into the inbox. A nil error moves
// the file to processed/, anything else to failed/.
type InboxHandler func(ctx context.Context, path string) error

// Watcher picks up data files dropped into an inbox directory.
// A file is handled once it has been quiet for the settle interval,
// so partially copied files are not read.
type Watcher struct {
	dir        string
	extensions []string
	settle     time.Duration
	handle     InboxHandler
	logger     *slog.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	ready   chan string
	done    chan struct{}
	running bool
}

// NewWatcher creates a watcher for dir. Only files with one of extensions
// (case-insensitive) are handled.
func NewWatcher(dir string, extensions []string, settle time.Duration, handle InboxHandler, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if settle <= 0 {
		settle = 2 * time.Second
	}
	exts := make([]string, 0, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}

	return &Watcher{
		dir:        dir,
		extensions: exts,
		settle:     settle,
		handle:     handle,
		logger:     logger.With("component", "execution.watcher"),
		timers:     make(map[string]*time.Timer),
		ready:      make(chan string, 16),
		done:       make(chan struct{}),
	}
}

// Run watches the inbox until ctx is cancelled. Files already present when
// it starts are handled too. Files are handled one at a time.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	for _, sub := range []string{ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(w.dir, sub), 0o755); err != nil {
			return fmt.Errorf("create inbox dir: %w", err)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", w.dir, err)
	}

	w.logger.Info("inbox watcher started",
		"dir", w.dir,
		"extensions", w.extensions,
		"settle", w.settle,
	)

	defer func() {
		close(w.done)
		w.stopTimers()
	}()

	if err := w.scan(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.accepts(event) {
				continue
			}
			w.logger.Debug("inbox event", "path", event.Name, "op", event.Op.String())
			w.schedule(event.Name)

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("inbox watcher error", "error", err)

		case path := <-w.ready:
			w.process(ctx, path)
		}
	}
}

// scan schedules files already waiting in the inbox.
func (w *Watcher) scan() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	for _, e := range entries {
		if e.Type().IsRegular() && w.matches(e.Name()) {
			w.schedule(filepath.Join(w.dir, e.Name()))
		}
	}
	return nil
}

func (w *Watcher) accepts(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	return w.matches(filepath.Base(event.Name))
}

func (w *Watcher) matches(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(name)))
}

// schedule (re)starts the settle timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		// Moved or deleted while settling.
		return
	}

	log := w.logger.With("file", filepath.Base(path))
	log.Info("processing inbox file")

	dest := ProcessedDir
	if err := w.handle(ctx, path); err != nil {
		log.Warn("inbox file failed", "error", err)
		dest = FailedDir
	}

	target := moveTarget(filepath.Join(w.dir, dest), filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		log.Error("failed to move inbox file", "target", target, "error", err)
		return
	}
	log.Debug("inbox file moved", "target", target)
}

// moveTarget returns where to move a handled file in dir. A file handled
// earlier under the same name keeps its place; the newcomer gets a suffix.
func moveTarget(dir, base string) string {
	target := filepath.Join(dir, base)
	if _, err := os.Lstat(target); os.IsNotExist(err) {
		return target
	}
	ext := filepath.Ext(base)
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", strings.TrimSuffix(base, ext), uuid.NewString()[:8], ext))
}
