package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgersync/internal/config"
	"github.com/roach88/ledgersync/internal/engine"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(opts *RootOptions) *cobra.Command {
	var showEchoes bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and print every change merged from the remote",
		Long: `Open a long-running session: the local ledger follows the remote store
until interrupted, and every applied remote change is printed. With
--format json each event is one JSON line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			if opts.Config.RemoteURL == "" {
				return out.Fail(NewExitError(ExitCommandError, "watch needs a remote store (--remote or "+config.EnvRemoteURL+")"))
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, opts, out.Writer, out.GetErrWriter(), showEchoes)
		},
	}
	cmd.Flags().BoolVar(&showEchoes, "echoes", false, "also print this session's own writes coming back")
	return cmd
}

func runWatch(ctx context.Context, opts *RootOptions, w, errW io.Writer, showEchoes bool) error {
	printer := &eventPrinter{w: w, json: opts.Format == "json", echoes: showEchoes}
	s, err := openSession(ctx, opts, engine.WithObserver(printer.print))
	if err != nil {
		return WrapExitError(ExitCommandError, "open session", err)
	}
	fmt.Fprintf(errW, "watching %s (revision %d)\n", redact(opts.Config.RemoteURL), s.eng.Revision())
	<-ctx.Done()
	return s.close(context.WithoutCancel(ctx))
}

type eventPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	json   bool
	echoes bool
}

func (p *eventPrinter) print(a engine.Applied) {
	if a.Origin != engine.OriginRemote || (a.Echo && !p.echoes) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.json {
		_ = json.NewEncoder(p.w).Encode(a)
		return
	}
	state := "merged"
	switch {
	case a.Echo:
		state = "echo"
	case a.Revision == 0:
		state = "ignored"
	}
	fmt.Fprintf(p.w, "%-7s %-6s %-15s %s (rev %d)\n", state, a.Op, a.Table, a.Key, a.Revision)
}

// redact hides the password in a store URL.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
