package report

import (
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/sage/internal/core"
)

// Level is the severity of a collected event.
type Level string

const (
	LevelMessage Level = "MESSAGE"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// Event is one diagnostic of a run.
type Event struct {
	Time       time.Time `json:"time"`
	Level      Level     `json:"level"`
	Message    string    `json:"message"`
	File       string    `json:"file,omitempty"`
	Line       int       `json:"line,omitempty"`
	Field      string    `json:"field,omitempty"`
	Value      any       `json:"value,omitempty"`
	Rule       string    `json:"rule,omitempty"`
	Expression string    `json:"expression,omitempty"`
	Package    string    `json:"package,omitempty"`
	Indices    []int     `json:"indices,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// MissingFile is a package member that was not delivered.
type MissingFile struct {
	Filename string `json:"filename"`
	Package  string `json:"package,omitempty"`
}

// Collector is a core.Reporter that logs every diagnostic and keeps it
// for the execution reports.
type Collector struct {
	log *slog.Logger
	now func() time.Time

	mu      sync.Mutex
	events  []Event
	files   []core.FileStats
	missing []MissingFile
	formats []core.FormatError
}

// NewCollector creates a Collector logging to log. A nil logger discards.
func NewCollector(log *slog.Logger) *Collector {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Collector{log: log, now: time.Now}
}

var _ core.Reporter = (*Collector)(nil)

func (c *Collector) Message(msg string) {
	c.log.Info(msg)
	c.add(Event{Level: LevelMessage, Message: msg})
}

func (c *Collector) Warning(msg string, f core.Fields) {
	c.log.Warn(msg, attrs(f)...)
	c.add(newEvent(LevelWarning, msg, f))
}

func (c *Collector) Error(msg string, f core.Fields) {
	c.log.Error(msg, attrs(f)...)
	c.add(newEvent(LevelError, msg, f))
}

func (c *Collector) RegisterFileStats(stats core.FileStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = append(c.files, stats)
}

func (c *Collector) RegisterMissingFile(filename, pkg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.missing = append(c.missing, MissingFile{Filename: filename, Package: pkg})
}

func (c *Collector) RegisterFormatError(fe core.FormatError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.formats = append(c.formats, fe)
}

// Events returns the collected events in order.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Build assembles the report of a finished run.
func (c *Collector) Build(info Info, res core.Result) *Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	if info.End.IsZero() {
		info.End = c.now()
	}

	capped := make([]CappedRule, 0, len(res.Capped))
	for _, cr := range res.Capped {
		capped = append(capped, CappedRule{
			Kind:  string(cr.Key.Kind),
			Scope: cr.Key.Scope,
			Rule:  cr.Key.Rule,
			Count: cr.Count,
		})
	}

	return &Report{
		Execution: info,
		Summary:   NewSummary(res.Records, res.Errors, res.Warnings),
		Files: Files{
			Statistics:   append([]core.FileStats{}, c.files...),
			MissingFiles: append([]MissingFile{}, c.missing...),
			FormatErrors: append([]core.FormatError{}, c.formats...),
		},
		SkippedRules: capped,
		Events:       append([]Event{}, c.events...),
	}
}

func (c *Collector) add(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.Time = c.now()
	c.events = append(c.events, e)
}

func newEvent(level Level, msg string, f core.Fields) Event {
	e := Event{
		Level:      level,
		Message:    msg,
		File:       f.File,
		Line:       f.Line,
		Field:      f.Field,
		Value:      f.Value,
		Rule:       f.Rule,
		Expression: f.Expression,
		Package:    f.Package,
		Indices:    f.Indices,
	}
	if f.Err != nil {
		e.Error = f.Err.Error()
	}
	return e
}

// attrs flattens the non-empty fields into slog key/value pairs.
func attrs(f core.Fields) []any {
	var out []any
	if f.File != "" {
		out = append(out, "file", f.File)
	}
	if f.Line > 0 {
		out = append(out, "line", f.Line)
	}
	if f.Field != "" {
		out = append(out, "field", f.Field)
	}
	if f.Value != nil {
		out = append(out, "value", f.Value)
	}
	if f.Rule != "" {
		out = append(out, "rule", f.Rule)
	}
	if f.Package != "" {
		out = append(out, "package", f.Package)
	}
	if len(f.Indices) > 0 {
		out = append(out, "indices", f.Indices)
	}
	if f.Err != nil {
		out = append(out, "error", f.Err)
	}
	return out
}
