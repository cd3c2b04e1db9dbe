package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/BlockScience/koi-net-github-processor-node/internal/config"
	"github.com/BlockScience/koi-net-github-processor-node/internal/index"
)

// loadConfig resolves the effective configuration from the config file
// and global flags. The --db flag wins over the config file.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.IndexDBPath = opts.Database
	}
	return cfg, nil
}

// openStore opens the index database for a read-side command. The
// database must already exist; serve is the only command that creates
// it.
func openStore(opts *RootOptions) (*index.Store, config.Config, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, config.Config{}, err
	}
	if _, statErr := os.Stat(cfg.IndexDBPath); statErr != nil {
		return nil, config.Config{}, WrapExitError(ExitCommandError, "index database not found", statErr)
	}
	store, err := index.Open(cfg.IndexDBPath)
	if err != nil {
		return nil, config.Config{}, WrapExitError(ExitCommandError, "failed to open index database", err)
	}
	return store, cfg, nil
}

// newFormatter builds the OutputFormatter for a command invocation.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
