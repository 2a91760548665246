package execution

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// HistoryPurger removes execution records older than a cutoff.
type HistoryPurger interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor removes execution directories past their retention on a cron schedule.
type Janitor struct {
	dir       string
	schedule  string
	retention time.Duration
	history   HistoryPurger
	onPurge   func(n int)
	now       func() time.Time

	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// JanitorOption configures a Janitor.
type JanitorOption func(*Janitor)

// WithHistory also deletes stored execution records when purging.
func WithHistory(h HistoryPurger) JanitorOption {
	return func(j *Janitor) { j.history = h }
}

// WithPurgeHook is called with the number of directories removed by each purge.
func WithPurgeHook(fn func(n int)) JanitorOption {
	return func(j *Janitor) { j.onPurge = fn }
}

// NewJanitor creates a janitor for the executions under dir.
func NewJanitor(dir, schedule string, retention time.Duration, opts ...JanitorOption) *Janitor {
	j := &Janitor{
		dir:       dir,
		schedule:  schedule,
		retention: retention,
		now:       time.Now,
		cron:      cron.New(),
		logger:    slog.Default().With("component", "execution.janitor"),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start schedules the purge job. An empty schedule disables the janitor.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.schedule == "" {
		j.logger.Info("janitor schedule not configured, skipping")
		return nil
	}

	if _, err := cron.ParseStandard(j.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", j.schedule, err)
	}

	_, err := j.cron.AddFunc(j.schedule, func() {
		n, err := j.Purge(ctx)
		if err != nil {
			j.logger.Error("scheduled purge failed", "error", err, "removed", n)
			return
		}
		if n > 0 {
			j.logger.Info("scheduled purge completed", "removed", n)
		} else {
			j.logger.Debug("scheduled purge completed, nothing to remove")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule purge: %w", err)
	}

	j.cron.Start()
	j.running = true
	j.logger.Info("janitor started", "schedule", j.schedule, "retention", j.retention)

	go func() {
		<-ctx.Done()
		j.Stop()
	}()

	return nil
}

// Stop stops the scheduler and waits for a running purge to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		<-j.cron.Stop().Done()
		j.running = false
		j.logger.Info("janitor stopped")
	}
}

// NextRun returns the next scheduled purge time, or nil when not scheduled.
func (j *Janitor) NextRun() *time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries := j.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

// Purge removes execution directories last modified before now minus the
// retention. Only directories named by an execution ID are considered.
func (j *Janitor) Purge(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.retention)

	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read executions dir: %w", err)
	}

	removed := 0
	var firstErr error
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !e.IsDir() || uuid.Validate(e.Name()) != nil {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(j.dir, e.Name())); err != nil {
			j.logger.Warn("failed to remove execution", "id", e.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}

	if j.history != nil {
		n, err := j.history.DeleteBefore(ctx, cutoff)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("delete execution history: %w", err)
		}
		if n > 0 {
			j.logger.Debug("execution history purged", "rows", n)
		}
	}

	if j.onPurge != nil && removed > 0 {
		j.onPurge(removed)
	}

	return removed, firstErr
}
