package core

import (
	"maps"

	"github.com/JonMunkholm/sage/internal/dataset"
)

// RunState accumulates everything one Process call produces. It is created
// per call and passed explicitly to every step; it is not safe for
// concurrent use.
type RunState struct {
	errors   int
	warnings int
	records  int
	tables   map[string]*dataset.Table
	files    []FileStats
	throttle *Throttle
}

// NewRunState creates an empty RunState using the given throttle.
func NewRunState(t *Throttle) *RunState {
	if t == nil {
		t = NewThrottle(0, 0)
	}
	return &RunState{
		tables:   make(map[string]*dataset.Table),
		throttle: t,
	}
}

// AddErrors increments the error count. Negative values are ignored.
func (s *RunState) AddErrors(n int) {
	if n > 0 {
		s.errors += n
	}
}

// AddWarnings increments the warning count. Negative values are ignored.
func (s *RunState) AddWarnings(n int) {
	if n > 0 {
		s.warnings += n
	}
}

func (s *RunState) Errors() int   { return s.errors }
func (s *RunState) Warnings() int { return s.warnings }

// Throttle returns the run's diagnostic throttle.
func (s *RunState) Throttle() *Throttle { return s.throttle }

// Retain keeps a validated table for package rules.
func (s *RunState) Retain(catalog string, t *dataset.Table) {
	s.tables[catalog] = t
}

// Tables returns the retained tables keyed by catalog name.
func (s *RunState) Tables() map[string]*dataset.Table {
	return maps.Clone(s.tables)
}

func (s *RunState) addFile(stats FileStats) {
	s.files = append(s.files, stats)
	s.records += stats.Records
}

// Result snapshots the accumulated counts.
func (s *RunState) Result() Result {
	return Result{
		Errors:   s.errors,
		Warnings: s.warnings,
		Records:  s.records,
		Files:    append([]FileStats(nil), s.files...),
		Capped:   s.throttle.Summary(),
	}
}
