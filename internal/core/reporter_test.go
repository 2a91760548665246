package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/sage/internal/schema"
)

// event is one call recorded by recorder.
type event struct {
	level string
	msg   string
	f     Fields
}

// recorder is a Reporter that keeps every call for inspection.
type recorder struct {
	events  []event
	stats   []FileStats
	missing [][2]string
	formats []FormatError
}

func (r *recorder) Message(msg string) {
	r.events = append(r.events, event{level: "message", msg: msg})
}

func (r *recorder) Warning(msg string, f Fields) {
	r.events = append(r.events, event{level: "warning", msg: msg, f: f})
}

func (r *recorder) Error(msg string, f Fields) {
	r.events = append(r.events, event{level: "error", msg: msg, f: f})
}

func (r *recorder) RegisterFileStats(stats FileStats) {
	r.stats = append(r.stats, stats)
}

func (r *recorder) RegisterMissingFile(filename, pkg string) {
	r.missing = append(r.missing, [2]string{filename, pkg})
}

func (r *recorder) RegisterFormatError(fe FormatError) {
	r.formats = append(r.formats, fe)
}

// filter returns the events of a level whose message contains substr.
func (r *recorder) filter(level, substr string) []event {
	var out []event
	for _, e := range r.events {
		if e.level == level && strings.Contains(e.msg, substr) {
			out = append(out, e)
		}
	}
	return out
}

// forRule returns the events of a level attached to a rule.
func (r *recorder) forRule(level, rule string) []event {
	var out []event
	for _, e := range r.events {
		if e.level == level && e.f.Rule == rule {
			out = append(out, e)
		}
	}
	return out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func csvCatalog(name, filename string, header bool, fields ...schema.Field) *schema.Catalog {
	return &schema.Catalog{
		Name:     name,
		Filename: filename,
		FileFormat: schema.FileFormat{
			Type:      schema.FileCSV,
			Delimiter: ",",
			Header:    header,
		},
		Fields: fields,
	}
}

func rule(name, expr string, sev schema.Severity) schema.ValidationRule {
	return schema.ValidationRule{Name: name, Description: name, Rule: expr, Severity: sev}
}
