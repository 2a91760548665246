package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sage/internal/core"
	"github.com/JonMunkholm/sage/internal/schema"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	var data []string

	cmd := &cobra.Command{
		Use:   "check CONFIG",
		Short: "Check a configuration file",
		Long: `Load a configuration file and report every structural problem in it.
With --data, also show which package or catalog each file would be validated with.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args[0], data)
		},
	}

	cmd.Flags().StringSliceVar(&data, "data", nil, "Data file names to resolve against the configuration")
	return cmd
}

func runCheck(cmd *cobra.Command, path string, data []string) error {
	cfg, err := schema.Load(path)
	if err != nil {
		return &ExitError{Code: ExitInvalid, Err: err}
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s (version %s, by %s)\n", cfg.Meta.Name, cfg.Meta.Version, cfg.Meta.Author)
	if cfg.Meta.Description != "" {
		fmt.Fprintf(w, "  %s\n", cfg.Meta.Description)
	}

	fmt.Fprintf(w, "\nCatalogs (%d):\n", len(cfg.Catalogs))
	for _, key := range cfg.CatalogKeys() {
		c := cfg.Catalogs[key]
		fmt.Fprintf(w, "  %-20s %-6s %-24s %d fields\n", key, c.FileFormat.Type, c.Filename, len(c.Fields))
	}

	fmt.Fprintf(w, "\nPackages (%d):\n", len(cfg.Packages))
	for _, key := range cfg.PackageKeys() {
		p := cfg.Packages[key]
		fmt.Fprintf(w, "  %-20s %-6s %v\n", key, p.FileFormat.Type, p.Catalogs)
	}

	if len(data) == 0 {
		return nil
	}

	fmt.Fprintln(w, "\nResolution:")
	var failed bool
	for _, file := range data {
		name, err := core.ResolveName(cfg, file)
		if err != nil {
			failed = true
			fmt.Fprintf(w, "  %-24s %s\n", file, core.FormatUserError(err))
			continue
		}
		fmt.Fprintf(w, "  %-24s %s\n", file, name)
	}
	if failed {
		return &ExitError{Code: ExitInvalid, Err: fmt.Errorf("some files do not match the configuration")}
	}
	return nil
}
