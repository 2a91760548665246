package core

import (
	"github.com/JonMunkholm/sage/internal/dataset"
	"github.com/JonMunkholm/sage/internal/expr"
)

// RuleEvaluator runs rule expressions. Implemented by *expr.Evaluator.
type RuleEvaluator interface {
	// EvalRows returns, per row of t, whether the row satisfies expression.
	EvalRows(expression string, t *dataset.Table) ([]bool, error)

	// EvalTables evaluates a package rule against the retained tables,
	// keyed by catalog name.
	EvalTables(expression string, tables map[string]*dataset.Table) (expr.Result, error)
}

// Reporter receives the diagnostic stream of a run. Events arrive in order:
// progress messages, per-file summaries, the global summary, then the
// summary of capped rules.
type Reporter interface {
	Message(msg string)
	Warning(msg string, f Fields)
	Error(msg string, f Fields)

	RegisterFileStats(stats FileStats)
	RegisterMissingFile(filename, pkg string)
	RegisterFormatError(fe FormatError)
}

// Fields is the structured context attached to a diagnostic.
// Zero values are omitted by reporters.
type Fields struct {
	File       string
	Line       int
	Field      string
	Value      any
	Rule       string
	Expression string
	Package    string
	Indices    []int
	Err        error
}

// FileStats summarizes one validated file.
type FileStats struct {
	File     string `json:"file"`
	Records  int    `json:"records"`
	Errors   int    `json:"errors"`
	Warnings int    `json:"warnings"`
	Bytes    int64  `json:"bytes,omitempty"`
}

// SuccessRate is the share of records without errors, in percent.
func (s FileStats) SuccessRate() float64 {
	if s.Records <= 0 {
		return 0
	}
	ok := s.Records - s.Errors
	if ok < 0 {
		ok = 0
	}
	return float64(ok) / float64(s.Records) * 100
}

// FormatError describes a file whose column layout differs from its catalog.
type FormatError struct {
	Message  string `json:"message"`
	File     string `json:"file"`
	Expected int    `json:"expected"`
	Found    int    `json:"found"`
}

// Result is the outcome of one Process call.
type Result struct {
	Errors   int
	Warnings int
	Records  int
	Files    []FileStats
	Capped   []CappedRule
}
