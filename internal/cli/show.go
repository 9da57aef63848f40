package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgersync/internal/engine"
	"github.com/roach88/ledgersync/internal/ledger"
)

// snapshot opens a session and returns a copy of the ledger.
func snapshot(cmd *cobra.Command, opts *RootOptions) (*ledger.State, error) {
	var state *ledger.State
	err := withSession(cmd.Context(), opts, func(eng *engine.Engine) error {
		var err error
		state, err = eng.Snapshot(cmd.Context())
		return err
	})
	return state, err
}

// NewShowCommand creates the show command.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Summarize the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			state, err := snapshot(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			if full && opts.Format == "json" {
				return out.Success(state)
			}
			return out.Success(summarizeLedger(state))
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "with --format json, dump the whole ledger")
	return cmd
}

// NewCheckCommand creates the check command.
func NewCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Audit the ledger invariants",
		Long: `Check wallet balances, paid amounts, payment histories and stock keys
against the ledger invariants. Exits 1 when any is violated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			state, err := snapshot(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			report := checkReport{OK: true, Violations: []string{}}
			for _, v := range state.Check() {
				report.OK = false
				report.Violations = append(report.Violations, v.Error())
			}
			if report.OK {
				return out.Success(report)
			}
			msg := fmt.Sprintf("%d invariant violation(s)", len(report.Violations))
			if opts.Format == "json" {
				_ = out.Error(ErrCodeInvariant, msg, report)
			} else {
				_ = report.RenderText(out.Writer)
			}
			return &ExitError{Code: ExitFailure, Message: msg, reported: true}
		},
	}
}
