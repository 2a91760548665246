// Package cli implements the sage command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sage/internal/logging"
)

const (
	cmdName = "sage"
	cmdDesc = `Rule-driven validation of CSV, Excel and ZIP deliveries.`

	cmdExamples = `
  # Check a configuration file.
  sage check catalogs.yaml

  # Validate a file, resolving the catalog or package from its name.
  sage validate catalogs.yaml ventas.csv

  # Validate a ZIP package and print the JSON report.
  sage validate catalogs.yaml envio.zip --name envio --output json

  # Validate every file dropped into a directory.
  sage watch ./inbox --config catalogs.yaml
`
)

var (
	allLevels  = []string{"debug", "info", "warn", "error"}
	allFormats = []string{"text", "json", "pretty"}
)

// RootArgs holds the flags shared by every command.
type RootArgs struct {
	LogLevel  string
	LogFormat string
}

func (ra *RootArgs) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVar(&ra.LogLevel, "log-level", "warn", fmt.Sprintf("Log level, one of: %s", strings.Join(allLevels, ", ")))
	cmd.PersistentFlags().
		StringVar(&ra.LogFormat, "log-format", "pretty", fmt.Sprintf("Log format, one of: %s", strings.Join(allFormats, ", ")))

	must(cmd.RegisterFlagCompletionFunc("log-level",
		cobra.FixedCompletions(allLevels, cobra.ShellCompDirectiveNoFileComp),
	))
	must(cmd.RegisterFlagCompletionFunc("log-format",
		cobra.FixedCompletions(allFormats, cobra.ShellCompDirectiveNoFileComp),
	))
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	args := &RootArgs{}

	cmd := &cobra.Command{
		Use:               cmdName,
		Short:             cmdDesc,
		Example:           cmdExamples,
		SilenceUsage:      true,
		PersistentPreRunE: setupLogging(args),
	}

	args.AddFlags(cmd)
	cmd.AddCommand(
		NewValidateCmd(),
		NewCheckCmd(),
		NewWatchCmd(),
	)

	bindEnvVars(cmd)
	for _, sub := range cmd.Commands() {
		bindEnvVars(sub)
	}

	return cmd
}

func setupLogging(ra *RootArgs) func(cmd *cobra.Command, _ []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		level := strings.ToLower(ra.LogLevel)
		if !slices.Contains(allLevels, level) {
			return fmt.Errorf("invalid argument %q for --log-level: must be one of %s", ra.LogLevel, strings.Join(allLevels, ", "))
		}
		format := strings.ToLower(ra.LogFormat)
		if !slices.Contains(allFormats, format) {
			return fmt.Errorf("invalid argument %q for --log-format: must be one of %s", ra.LogFormat, strings.Join(allFormats, ", "))
		}

		slog.SetDefault(slog.New(logging.NewHandler(cmd.ErrOrStderr(), level, format)))
		return nil
	}
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context, version string) int {
	err := fang.Execute(ctx, NewRootCmd(),
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	)
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
