// Package report turns the diagnostics of a validation run into the
// execution reports: report.json, results.txt and report.html.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/sage/internal/core"
)

// File names written into an execution directory.
const (
	JSONFile = "report.json"
	TextFile = "results.txt"
	HTMLFile = "report.html"
)

// Status is the overall verdict of an execution.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusPartial Status = "Partial"
	StatusFailed  Status = "Failed"
)

// StatusOf derives the verdict from the run's counters: any error fails
// the run, warnings alone make it partial.
func StatusOf(errors, warnings int) Status {
	switch {
	case errors > 0:
		return StatusFailed
	case warnings > 0:
		return StatusPartial
	default:
		return StatusSuccess
	}
}

// Info describes the execution a report belongs to.
type Info struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ConfigFile string    `json:"config_file"`
	DataFile   string    `json:"data_file"`
	Directory  string    `json:"directory"`
	Method     string    `json:"method,omitempty"`
	Start      time.Time `json:"start_time"`
	End        time.Time `json:"end_time"`
}

// Duration formats the elapsed time as HH:MM:SS.
func (i Info) Duration() string {
	d := i.End.Sub(i.Start)
	if d < 0 {
		d = 0
	}
	secs := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
}

// MarshalJSON adds the formatted duration.
func (i Info) MarshalJSON() ([]byte, error) {
	type plain Info
	return json.Marshal(struct {
		plain
		Duration string `json:"duration"`
	}{plain(i), i.Duration()})
}

// Summary holds the global counters of a run.
type Summary struct {
	TotalRecords int     `json:"total_records"`
	Errors       int     `json:"errors"`
	Warnings     int     `json:"warnings"`
	SuccessRate  float64 `json:"success_rate"`
	Status       Status  `json:"status"`
}

// NewSummary computes the success rate and status for the counters.
func NewSummary(records, errors, warnings int) Summary {
	rate := core.FileStats{Records: records, Errors: errors}.SuccessRate()
	return Summary{
		TotalRecords: records,
		Errors:       errors,
		Warnings:     warnings,
		SuccessRate:  math.Round(rate*100) / 100,
		Status:       StatusOf(errors, warnings),
	}
}

// Files groups the per-file sections of a report.
type Files struct {
	Statistics   []core.FileStats   `json:"statistics"`
	MissingFiles []MissingFile      `json:"missing_files"`
	FormatErrors []core.FormatError `json:"format_errors"`
}

// CappedRule is a rule whose detail was cut short on a large file.
type CappedRule struct {
	Kind  string `json:"kind"`
	Scope string `json:"scope"`
	Rule  string `json:"rule"`
	Count int    `json:"count"`
}

// Report is the complete outcome of one execution.
type Report struct {
	Execution    Info         `json:"execution_info"`
	Summary      Summary      `json:"summary"`
	Files        Files        `json:"files"`
	SkippedRules []CappedRule `json:"skipped_rules"`
	Events       []Event      `json:"events"`
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteFiles writes report.json, results.txt and report.html into dir.
func (r *Report) WriteFiles(dir string) error {
	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{JSONFile, r.WriteJSON},
		{TextFile, r.WriteText},
		{HTMLFile, r.WriteHTML},
	}

	var errs []error
	for _, wr := range writers {
		if err := writeFile(filepath.Join(dir, wr.name), wr.write); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", wr.name, err))
		}
	}
	return errors.Join(errs...)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads a report.json written by WriteFiles.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &r, nil
}
