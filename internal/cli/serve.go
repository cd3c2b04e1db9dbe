package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BlockScience/koi-net-github-processor-node/internal/index"
	"github.com/BlockScience/koi-net-github-processor-node/internal/ingest"
	"github.com/BlockScience/koi-net-github-processor-node/internal/locks"
	"github.com/BlockScience/koi-net-github-processor-node/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ListenAddr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the processor node",
		Long: `Start the GitHub processor node.

Opens the index database (creating it if it doesn't exist) and serves
the HTTP API: the read endpoints under /api/processor/github and the
event broadcast endpoint under /koi-net.

Example:
  github-processor serve --db ./data/index.db
  github-processor serve --config config.yaml --listen :8322`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ListenAddr, "listen", "", "listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.ListenAddr != "" {
		cfg.ListenAddr = opts.ListenAddr
	}

	logger.Info("opening index database", "path", cfg.IndexDBPath)
	store, err := index.Open(cfg.IndexDBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open index database", err)
	}
	defer store.Close()

	registry := locks.NewRegistry(locks.WithLogger(logger))
	ingestor := ingest.New(store, registry,
		ingest.WithLogger(logger),
		ingest.WithLockTimeout(cfg.LockTimeout))

	srv := server.New(cfg.NodeName, cfg.IndexDBPath, store, ingestor, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("processor node starting", "node", cfg.NodeName, "addr", cfg.ListenAddr)
	if err := srv.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
		return WrapExitError(ExitFailure, "server stopped", err)
	}
	logger.Info("processor node stopped")
	return nil
}
