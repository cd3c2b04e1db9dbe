package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BlockScience/koi-net-github-processor-node/internal/index"
	"github.com/BlockScience/koi-net-github-processor-node/internal/rid"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Limit  int
	Offset int
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events <owner/repo>",
		Short: "List events for a repository",
		Long: `List indexed events for one repository, newest first.

The repository may be given as owner/repo or as a full identifier.

Example:
  github-processor events acme/widgets
  github-processor events acme/widgets --limit 10 --offset 20`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum events to list")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "events to skip")

	return cmd
}

// resolveRepoArg accepts owner/repo shorthand or a full identifier.
func resolveRepoArg(arg string) (rid.RID, error) {
	if strings.HasPrefix(arg, rid.Prefix) {
		return rid.Parse(arg)
	}
	owner, name, ok := strings.Cut(arg, "/")
	if !ok || owner == "" || name == "" {
		return rid.RID{}, fmt.Errorf("expected owner/repo, got %q", arg)
	}
	return rid.New(owner, name), nil
}

func runEvents(opts *EventsOptions, repoArg string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	repo, err := resolveRepoArg(repoArg)
	if err != nil {
		_ = formatter.Error("MALFORMED_RID", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	store, _, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.ListEvents(cmd.Context(), repo.String(), opts.Limit, opts.Offset)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list events", err)
	}

	if formatter.Format == "json" {
		return formatter.JSON(events)
	}
	return renderEvents(formatter, repo, events)
}

func renderEvents(formatter *OutputFormatter, repo rid.RID, events []index.EventRecord) error {
	if len(events) == 0 {
		fmt.Fprintf(formatter.Writer, "No events indexed for %s.\n", repo.Slug())
		return nil
	}

	w := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tTYPE\tSUMMARY")
	for _, rec := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\n", rec.Timestamp, rec.Kind, rec.Summary)
	}
	return w.Flush()
}

// NewEventCommand creates the event command.
func NewEventCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "event <event-rid>",
		Short:         "Show one event record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvent(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runEvent(opts *RootOptions, eventRID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	store, _, err := openStore(opts)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, found, err := store.GetEvent(cmd.Context(), eventRID)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read event", err)
	}
	if !found {
		_ = formatter.Error("NOT_FOUND", fmt.Sprintf("no event %s", eventRID), nil)
		return NewExitError(ExitFailure, "event not found")
	}

	if formatter.Format == "json" {
		return formatter.JSON(rec)
	}

	fmt.Fprintf(formatter.Writer, "Event:      %s\n", rec.EventRID)
	fmt.Fprintf(formatter.Writer, "Repository: %s\n", rec.RepoRID)
	fmt.Fprintf(formatter.Writer, "Type:       %s\n", rec.Kind)
	fmt.Fprintf(formatter.Writer, "Timestamp:  %s\n", rec.Timestamp)
	if rec.CommitSHA != "" {
		fmt.Fprintf(formatter.Writer, "Commit:     %s\n", rec.CommitSHA)
	}
	fmt.Fprintf(formatter.Writer, "Summary:    %s\n", rec.Summary)
	return nil
}
