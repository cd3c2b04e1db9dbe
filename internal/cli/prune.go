package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// PruneOptions holds flags for the prune command.
type PruneOptions struct {
	*RootOptions
	Days int
}

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PruneOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete events older than a retention window",
		Long: `Delete indexed events whose timestamp is older than the
retention window. Repository records are kept.

Example:
  github-processor prune --days 90`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Days, "days", 0, "retention window in days (defaults to config)")

	return cmd
}

func runPrune(opts *PruneOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	store, cfg, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer store.Close()

	days := opts.Days
	if days <= 0 {
		days = cfg.PruneDays
	}
	if days <= 0 {
		return NewExitError(ExitCommandError, "retention window must be positive")
	}

	deleted, err := store.PruneOlderThan(cmd.Context(), days)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to prune events", err)
	}

	if formatter.Format == "json" {
		return formatter.JSON(map[string]any{"deleted": deleted, "days": days})
	}
	fmt.Fprintf(formatter.Writer, "Deleted %d event(s) older than %d day(s).\n", deleted, days)
	return nil
}
