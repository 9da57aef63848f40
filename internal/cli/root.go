package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgersync/internal/config"
	"github.com/roach88/ledgersync/internal/ledger"
	"github.com/roach88/ledgersync/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DBPath  string
	Remote  string
	EnvFile string

	// Config is loaded before any subcommand runs.
	Config *config.Config

	// Dial opens remote stores. Defaults to DialStore.
	Dial Dialer
	// Today supplies the default date for operations. Defaults to
	// ledger.Today.
	Today func() string

	logCloser io.Closer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ledgersync CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(&RootOptions{})
}

// NewRootCommandWith builds the command tree around opts, keeping any
// Dial or Today already set.
func NewRootCommandWith(opts *RootOptions) *cobra.Command {
	if opts.Dial == nil {
		opts.Dial = DialStore
	}
	if opts.Today == nil {
		opts.Today = ledger.Today
	}

	cmd := &cobra.Command{
		Use:   "ledgersync",
		Short: "Offline-first sales ledger with remote sync",
		Long: `ledgersync keeps a local sales ledger (customers, invoices, payments,
stock and purchases) and synchronizes it with a shared remote store.

Every command works offline. With a remote configured, changes are written
through to the store and changes made elsewhere are merged back in.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logCloser != nil {
				return opts.logCloser.Close()
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "path to the local ledger database (env "+config.EnvDBPath+")")
	cmd.PersistentFlags().StringVar(&opts.Remote, "remote", "", "remote store URL (env "+config.EnvRemoteURL+")")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file to load")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewCustomerCommand(opts))
	cmd.AddCommand(NewSaleCommand(opts))
	cmd.AddCommand(NewPayCommand(opts))
	cmd.AddCommand(NewSettleCommand(opts))
	cmd.AddCommand(NewWalletCommand(opts))
	cmd.AddCommand(NewStockCommand(opts))
	cmd.AddCommand(NewPurchaseCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))

	return cmd
}

// load resolves configuration (flags beat environment) and sets up logging.
func (opts *RootOptions) load(cmd *cobra.Command) error {
	overrides := map[string]string{}
	if cmd.Flags().Changed("db") {
		overrides[config.EnvDBPath] = opts.DBPath
	}
	if cmd.Flags().Changed("remote") {
		overrides[config.EnvRemoteURL] = opts.Remote
	}
	if opts.Verbose {
		overrides[config.EnvLogLevel] = "debug"
	}

	cfg, err := config.Load(config.Options{
		EnvFiles:  []string{opts.EnvFile},
		Overrides: overrides,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "load configuration", err)
	}
	opts.Config = cfg

	closer, err := logger.Setup(cfg.Log())
	if err != nil {
		return WrapExitError(ExitCommandError, "set up logging", err)
	}
	opts.logCloser = closer
	return nil
}

func (opts *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// dateFlag returns the --date value or today.
func (opts *RootOptions) dateFlag(value string) string {
	if value == "" {
		return opts.Today()
	}
	return value
}
