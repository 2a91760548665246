package report

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// HTML renders the report as a standalone page.
func (r *Report) HTML() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &htmlWriter{w: w}

		p.raw(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>SAGE report `)
		p.text(r.Execution.ID)
		p.raw(`</title><style>` + reportCSS + `</style></head><body>`)

		p.raw(`<h1>Validation report</h1><table class="info">`)
		p.row("Execution", r.Execution.ID)
		p.row("Validated with", r.Execution.Name)
		p.row("Data file", r.Execution.DataFile)
		p.row("Started", r.Execution.Start.Format(timeLayout))
		p.row("Duration", r.Execution.Duration())
		p.raw(`</table>`)

		p.raw(`<h2>Summary</h2><table class="summary">`)
		p.row("Records", fmt.Sprint(r.Summary.TotalRecords))
		p.row("Errors", fmt.Sprint(r.Summary.Errors))
		p.row("Warnings", fmt.Sprint(r.Summary.Warnings))
		p.row("Success rate", fmt.Sprintf("%.2f%%", r.Summary.SuccessRate))
		p.raw(`<tr><th>Status</th><td class="`)
		p.text(statusClass(r.Summary.Status))
		p.raw(`">`)
		p.text(string(r.Summary.Status))
		p.raw(`</td></tr></table>`)

		if len(r.Files.Statistics) > 0 {
			p.raw(`<h2>Files</h2><table><tr><th>File</th><th>Records</th><th>Errors</th><th>Warnings</th><th>Success rate</th></tr>`)
			for _, s := range r.Files.Statistics {
				p.cells(s.File, fmt.Sprint(s.Records), fmt.Sprint(s.Errors), fmt.Sprint(s.Warnings),
					fmt.Sprintf("%.1f%%", s.SuccessRate()))
			}
			p.raw(`</table>`)
		}

		if len(r.Files.MissingFiles) > 0 {
			p.raw(`<h2>Missing files</h2><ul>`)
			for _, m := range r.Files.MissingFiles {
				p.raw(`<li>`)
				p.text(m.Filename)
				if m.Package != "" {
					p.text(" (" + m.Package + ")")
				}
				p.raw(`</li>`)
			}
			p.raw(`</ul>`)
		}

		if len(r.Files.FormatErrors) > 0 {
			p.raw(`<h2>Format errors</h2><table><tr><th>File</th><th>Expected</th><th>Found</th><th>Message</th></tr>`)
			for _, fe := range r.Files.FormatErrors {
				p.cells(fe.File, fmt.Sprint(fe.Expected), fmt.Sprint(fe.Found), fe.Message)
			}
			p.raw(`</table>`)
		}

		if len(r.SkippedRules) > 0 {
			p.raw(`<h2>Partially reported rules</h2><table><tr><th>Scope</th><th>Rule</th><th>Failures</th></tr>`)
			for _, c := range r.SkippedRules {
				p.cells(c.Kind+" "+c.Scope, c.Rule, fmt.Sprintf("at least %d", c.Count))
			}
			p.raw(`</table>`)
		}

		p.raw(`<h2>Events</h2><table class="events"><tr><th>Level</th><th>File</th><th>Line</th><th>Message</th></tr>`)
		for _, e := range r.Events {
			if e.Level == LevelMessage {
				continue
			}
			line := ""
			if e.Line > 0 {
				line = fmt.Sprint(e.Line)
			}
			p.raw(`<tr class="` + levelClass(e.Level) + `">`)
			for _, v := range []string{string(e.Level), e.File, line, e.Message} {
				p.raw(`<td>`)
				p.text(v)
				p.raw(`</td>`)
			}
			p.raw(`</tr>`)
		}
		p.raw(`</table></body></html>`)

		return p.err
	})
}

// WriteHTML renders the report page to w.
func (r *Report) WriteHTML(w io.Writer) error {
	return r.HTML().Render(context.Background(), w)
}

// htmlWriter keeps the first write error so rendering reads top to bottom.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (p *htmlWriter) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *htmlWriter) text(s string) {
	p.raw(templ.EscapeString(s))
}

func (p *htmlWriter) row(label, value string) {
	p.raw(`<tr><th>`)
	p.text(label)
	p.raw(`</th><td>`)
	p.text(value)
	p.raw(`</td></tr>`)
}

func (p *htmlWriter) cells(values ...string) {
	p.raw(`<tr>`)
	for _, v := range values {
		p.raw(`<td>`)
		p.text(v)
		p.raw(`</td>`)
	}
	p.raw(`</tr>`)
}

func statusClass(s Status) string {
	switch s {
	case StatusSuccess:
		return "ok"
	case StatusPartial:
		return "warn"
	default:
		return "fail"
	}
}

func levelClass(l Level) string {
	if l == LevelError {
		return "fail"
	}
	return "warn"
}

const reportCSS = `body{font-family:sans-serif;margin:2em;color:#222}
table{border-collapse:collapse;margin-bottom:1.5em}
th,td{border:1px solid #ccc;padding:4px 8px;text-align:left}
.ok{color:#090}.warn{color:#c80}.fail{color:#c00}`
