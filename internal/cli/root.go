// Package cli implements the github-processor command line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Config   string // config file path
	Database string // index database override
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the github-processor CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "github-processor",
		Short: "KOI-net GitHub processor node",
		Long:  "Processor node that ingests GitHub activity events into a local index.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to index database (overrides config)")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewReposCommand(opts))
	cmd.AddCommand(NewAddRepoCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewEventCommand(opts))
	cmd.AddCommand(NewSummaryCommand(opts))
	cmd.AddCommand(NewPruneCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
