package cli

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sage/internal/config"
	"github.com/JonMunkholm/sage/internal/core"
	"github.com/JonMunkholm/sage/internal/execution"
	"github.com/JonMunkholm/sage/internal/report"
)

var allOutputs = []string{"text", "json", "none"}

// ExecutionArgs are the flags that shape an execution.
type ExecutionArgs struct {
	ExecutionsDir      string
	SmallFileThreshold int
	MaxErrorsPerRule   int
	MaxFileSize        int64
	MaxExtractSize     int64
	Timeout            time.Duration
}

func (ea *ExecutionArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ea.ExecutionsDir, "executions-dir", "executions",
		"Directory each execution's inputs and reports are written to")
	cmd.Flags().IntVar(&ea.SmallFileThreshold, "small-file-threshold", core.DefaultSmallFileThreshold,
		"Row count above which rule failures are reported in part")
	cmd.Flags().IntVar(&ea.MaxErrorsPerRule, "max-errors-per-rule", core.DefaultMaxErrorsPerRule,
		"Failures reported in detail per rule on large files")
	cmd.Flags().Int64Var(&ea.MaxFileSize, "max-file-size", 100<<20, "Largest accepted data file in bytes")
	cmd.Flags().Int64Var(&ea.MaxExtractSize, "max-extract-size", core.DefaultMaxExtractSize,
		"Largest total size in bytes a ZIP package may expand to")
	cmd.Flags().DurationVar(&ea.Timeout, "timeout", 10*time.Minute, "Maximum duration of one execution")
}

func (ea *ExecutionArgs) config() config.ValidationConfig {
	return config.ValidationConfig{
		ExecutionsDir:      ea.ExecutionsDir,
		SmallFileThreshold: ea.SmallFileThreshold,
		MaxErrorsPerRule:   ea.MaxErrorsPerRule,
		MaxFileSize:        ea.MaxFileSize,
		MaxExtractSize:     ea.MaxExtractSize,
		MaxConcurrent:      1,
		MaxWaitTime:        time.Minute,
		Timeout:            ea.Timeout,
	}
}

// ValidateArgs holds the flags of the validate command.
type ValidateArgs struct {
	Execution ExecutionArgs
	Name      string
	Output    string
	Strict    bool
}

func (va *ValidateArgs) AddFlags(cmd *cobra.Command) {
	va.Execution.AddFlags(cmd)
	cmd.Flags().StringVarP(&va.Name, "name", "n", "",
		"Package or catalog to validate with; resolved from the file name when empty")
	cmd.Flags().StringVarP(&va.Output, "output", "o", "text",
		fmt.Sprintf("Report printed to stdout, one of: %s", strings.Join(allOutputs, ", ")))
	cmd.Flags().BoolVar(&va.Strict, "strict", false, "Also fail when only warnings were found")

	must(cmd.RegisterFlagCompletionFunc("output",
		cobra.FixedCompletions(allOutputs, cobra.ShellCompDirectiveNoFileComp),
	))
}

// NewValidateCmd creates the validate command.
func NewValidateCmd() *cobra.Command {
	args := &ValidateArgs{}

	cmd := &cobra.Command{
		Use:   "validate CONFIG DATA",
		Short: "Validate a data file against a configuration",
		Long: `Validate a CSV, Excel or ZIP file against the catalogs and packages of a
configuration file. The execution's reports are written under --executions-dir.

Exits 1 when errors were found (or warnings, with --strict) and 2 when the
arguments are invalid.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			return runValidate(cmd, args, posArgs[0], posArgs[1])
		},
	}

	args.AddFlags(cmd)
	return cmd
}

func runValidate(cmd *cobra.Command, args *ValidateArgs, configPath, dataPath string) error {
	if !slices.Contains(allOutputs, args.Output) {
		return &ExitError{Code: ExitInvalid, Err: fmt.Errorf("invalid argument %q for --output", args.Output)}
	}

	svc := execution.NewService(args.Execution.config(), nil)
	out, err := svc.Run(cmd.Context(), execution.Request{
		ConfigPath: configPath,
		DataPath:   dataPath,
		Name:       args.Name,
		Method:     "cli",
	})
	if err != nil {
		return &ExitError{Code: ExitInvalid, Err: err}
	}

	w := cmd.OutOrStdout()
	switch args.Output {
	case "text":
		err = out.Report.WriteText(w)
	case "json":
		err = out.Report.WriteJSON(w)
	}
	if err != nil {
		return &ExitError{Code: ExitUnexpected, Err: fmt.Errorf("print report: %w", err)}
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Reports written to %s\n", filepath.Clean(out.Dir))

	return verdict(out.Report.Summary, args.Strict)
}

// verdict turns a summary into the command's exit status.
func verdict(s report.Summary, strict bool) error {
	switch {
	case s.Status == report.StatusFailed:
		return &ExitError{Code: ExitFailed, Err: fmt.Errorf("validation failed with %d errors and %d warnings", s.Errors, s.Warnings)}
	case strict && s.Status == report.StatusPartial:
		return &ExitError{Code: ExitFailed, Err: fmt.Errorf("validation found %d warnings", s.Warnings)}
	default:
		return nil
	}
}
