package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const timeLayout = "2006-01-02 15:04:05"

// WriteText writes the human readable summary (results.txt).
func (r *Report) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	rule := strings.Repeat("=", 70)

	fmt.Fprintln(bw, rule)
	fmt.Fprintln(bw, center("SAGE EXECUTION SUMMARY", 70))
	fmt.Fprintln(bw, rule)
	fmt.Fprintln(bw)

	section(bw, "GENERAL INFORMATION")
	fmt.Fprintf(bw, "Execution: %s\n", r.Execution.ID)
	fmt.Fprintf(bw, "Validated with: %s\n", r.Execution.Name)
	fmt.Fprintf(bw, "Started: %s\n", r.Execution.Start.Format(timeLayout))
	fmt.Fprintf(bw, "Finished: %s\n", r.Execution.End.Format(timeLayout))
	fmt.Fprintf(bw, "Duration: %s\n", r.Execution.Duration())
	fmt.Fprintf(bw, "Directory: %s\n\n", r.Execution.Directory)

	section(bw, "GLOBAL SUMMARY")
	fmt.Fprintf(bw, "Total records processed: %d\n", r.Summary.TotalRecords)
	fmt.Fprintf(bw, "Total errors: %d\n", r.Summary.Errors)
	fmt.Fprintf(bw, "Total warnings: %d\n", r.Summary.Warnings)
	fmt.Fprintf(bw, "Success rate: %.1f%%\n", r.Summary.SuccessRate)
	fmt.Fprintf(bw, "Status: %s\n\n", r.Summary.Status)

	if len(r.Files.Statistics) > 0 {
		section(bw, "FILE STATISTICS")
		for _, s := range r.Files.Statistics {
			fmt.Fprintf(bw, "File: %s\n", s.File)
			fmt.Fprintf(bw, "  Records: %d\n", s.Records)
			fmt.Fprintf(bw, "  Errors: %d\n", s.Errors)
			fmt.Fprintf(bw, "  Warnings: %d\n", s.Warnings)
			fmt.Fprintf(bw, "  Success rate: %.1f%%\n\n", s.SuccessRate())
		}
	}

	if len(r.Files.FormatErrors) > 0 {
		section(bw, "FORMAT ERRORS")
		for i, fe := range r.Files.FormatErrors {
			fmt.Fprintf(bw, "%d. %s\n", i+1, fe.Message)
			if fe.File != "" {
				fmt.Fprintf(bw, "   File: %s\n", fe.File)
			}
			fmt.Fprintf(bw, "   Expected: %d\n", fe.Expected)
			fmt.Fprintf(bw, "   Found: %d\n\n", fe.Found)
		}
	}

	if len(r.Files.MissingFiles) > 0 {
		section(bw, "MISSING FILES")
		for i, m := range r.Files.MissingFiles {
			fmt.Fprintf(bw, "%d. File: %s\n", i+1, m.Filename)
			if m.Package != "" {
				fmt.Fprintf(bw, "   Package: %s\n", m.Package)
			}
			fmt.Fprintln(bw)
		}
	}

	if len(r.SkippedRules) > 0 {
		section(bw, "PARTIALLY REPORTED RULES")
		fmt.Fprintln(bw, "Some rules failed too often on large files; only their first failures are detailed.")
		for _, c := range r.SkippedRules {
			fmt.Fprintf(bw, "  - %s %q, rule %q: at least %d failures\n", c.Kind, c.Scope, c.Rule, c.Count)
		}
		fmt.Fprintln(bw)
	}

	return bw.Flush()
}

func section(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("-", len(title)))
}

func center(s string, width int) string {
	pad := (width - len(s)) / 2
	if pad <= 0 {
		return s
	}
	return strings.Repeat(" ", pad) + s
}
