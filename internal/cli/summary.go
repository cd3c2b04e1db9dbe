package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BlockScience/koi-net-github-processor-node/internal/index"
)

// NewSummaryCommand creates the summary command.
func NewSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show index totals",
		Long: `Show index totals: repository and event counts, events by
type, and the most recent event.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(rootOpts, cmd)
		},
	}
	return cmd
}

func runSummary(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	store, _, err := openStore(opts)
	if err != nil {
		return err
	}
	defer store.Close()

	sum, err := store.Summary(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to summarize index", err)
	}

	if formatter.Format == "json" {
		return formatter.JSON(sum)
	}
	return renderSummary(formatter, sum)
}

func renderSummary(formatter *OutputFormatter, sum index.StoreSummary) error {
	fmt.Fprintf(formatter.Writer, "Repositories: %d\n", sum.Repositories)
	fmt.Fprintf(formatter.Writer, "Events:       %d\n", sum.Events)

	if len(sum.ByKind) > 0 {
		fmt.Fprintln(formatter.Writer)
		w := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tCOUNT")
		for _, kc := range sum.ByKind {
			fmt.Fprintf(w, "%s\t%d\n", kc.Kind, kc.Count)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if sum.LatestTimestamp != "" {
		fmt.Fprintf(formatter.Writer, "\nLatest: %s (%s)\n", sum.LatestTimestamp, sum.LatestKind)
	}
	return nil
}
