package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgersync/internal/config"
	"github.com/roach88/ledgersync/internal/hub"
	"github.com/roach88/ledgersync/internal/logger"
	"github.com/roach88/ledgersync/internal/remote"
	"github.com/roach88/ledgersync/internal/remote/memstore"
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	var addr, backend string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a sync hub over a backend store",
		Long: `Expose a backend store to ledgersync clients over HTTP, with a websocket
changefeed per table. Clients point --remote at the hub's URL.

The backend is "memory" (lost on exit), a redis:// URL or a postgres:// URL.

Example:
  ledgersync serve --addr :8080 --backend redis://localhost:6379/0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				opts.Config.HubAddr = addr
			}
			if cmd.Flags().Changed("backend") {
				opts.Config.HubBackend = backend
			}
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", config.DefaultHubAddr, "listen address (env "+config.EnvHubAddr+")")
	cmd.Flags().StringVar(&backend, "backend", config.BackendMemory, "backend store (env "+config.EnvHubBackend+")")
	return cmd
}

func runServe(parent context.Context, opts *RootOptions) error {
	log := logger.WithComponent("hub")
	cfg := opts.Config

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store  remote.Store
		closer io.Closer = nopCloser{}
	)
	if cfg.HubBackend == config.BackendMemory {
		store = memstore.New()
	} else {
		if scheme, err := config.RemoteScheme(cfg.HubBackend); err != nil || scheme == "http" {
			return NewExitError(ExitCommandError, "backend must be memory, redis:// or postgres://")
		}
		s, c, err := opts.Dial(ctx, cfg.HubBackend)
		if err != nil {
			return WrapExitError(ExitCommandError, "connect backend", err)
		}
		store, closer = s, c
	}
	defer func() {
		if err := closer.Close(); err != nil {
			log.Error().Err(err).Msg("closing backend")
		}
	}()

	srv := hub.New(store, hub.WithLogger(log), hub.WithAllowedOrigins(cfg.Origins()...))
	if err := srv.Start(ctx); err != nil {
		return WrapExitError(ExitCommandError, "start hub", err)
	}
	defer srv.Close()

	log.Info().Str("backend", redact(cfg.HubBackend)).Msg("serving")
	if err := srv.ListenAndServe(ctx, cfg.HubAddr); err != nil {
		return WrapExitError(ExitCommandError, "serve", err)
	}
	log.Info().Msg("hub stopped")
	return nil
}
