package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sage/internal/execution"
	"github.com/JonMunkholm/sage/internal/report"
	"github.com/JonMunkholm/sage/internal/schema"
)

// WatchArgs holds the flags of the watch command.
type WatchArgs struct {
	Execution  ExecutionArgs
	Config     string
	Extensions []string
	Settle     time.Duration
}

func (wa *WatchArgs) AddFlags(cmd *cobra.Command) {
	wa.Execution.AddFlags(cmd)
	cmd.Flags().StringVarP(&wa.Config, "config", "c", "", "Configuration file to validate inbox files with")
	cmd.Flags().StringSliceVar(&wa.Extensions, "extensions", []string{".csv", ".xlsx", ".xls", ".zip"}, "File extensions picked up")
	cmd.Flags().DurationVar(&wa.Settle, "settle", 2*time.Second, "How long a file must be unchanged before it is read")
}

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	args := &WatchArgs{}

	cmd := &cobra.Command{
		Use:   "watch INBOX",
		Short: "Validate every file dropped into a directory",
		Long: `Watch a directory and validate each new data file with the configuration
given by --config, resolving the package or catalog from the file name. Files
that pass are moved to INBOX/processed, the rest to INBOX/failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			return runWatch(cmd, args, posArgs[0])
		},
	}

	args.AddFlags(cmd)
	return cmd
}

func runWatch(cmd *cobra.Command, args *WatchArgs, inbox string) error {
	if args.Config == "" {
		return &ExitError{Code: ExitInvalid, Err: fmt.Errorf("--config is required")}
	}
	if _, err := schema.Load(args.Config); err != nil {
		return &ExitError{Code: ExitInvalid, Err: err}
	}

	svc := execution.NewService(args.Execution.config(), nil)
	w := execution.NewWatcher(inbox, args.Extensions, args.Settle, InboxHandler(svc, args.Config), slog.Default())

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)\n", inbox)
	return w.Run(cmd.Context())
}

// InboxHandler validates inbox files with the configuration at configPath.
// A file fails when the execution could not run or found errors.
func InboxHandler(svc *execution.Service, configPath string) execution.InboxHandler {
	return func(ctx context.Context, path string) error {
		out, err := svc.Run(ctx, execution.Request{
			ConfigPath: configPath,
			DataPath:   path,
			Method:     "watch",
		})
		if err != nil {
			return err
		}
		if out.Report.Summary.Status == report.StatusFailed {
			return fmt.Errorf("execution %s failed with %d errors", out.ID, out.Report.Summary.Errors)
		}
		return nil
	}
}
