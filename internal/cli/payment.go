package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/ledgersync/internal/engine"
	"github.com/roach88/ledgersync/internal/ledger"
)

// NewPayCommand creates the pay command.
func NewPayCommand(opts *RootOptions) *cobra.Command {
	var amount, date, method, invoice string
	cmd := &cobra.Command{
		Use:   "pay <customer-id>",
		Short: "Register a payment, oldest invoices first",
		Long: `Spread a payment over the customer's outstanding invoices, oldest first.
With --invoice that invoice is paid first. Whatever is left after every
invoice is settled goes to the customer's wallet.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			amt, err := ledger.ParseAmount("amount", amount)
			if err != nil {
				return out.Fail(err)
			}
			in := ledger.PaymentInput{
				CustomerID:      args[0],
				Amount:          amt,
				Date:            opts.dateFlag(date),
				Method:          method,
				TargetInvoiceID: invoice,
			}
			var a ledger.Allocation
			err = withSession(cmd.Context(), opts, func(eng *engine.Engine) error {
				a, err = eng.RegisterPayment(cmd.Context(), in)
				return err
			})
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(viewAllocation(a))
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "amount paid")
	cmd.Flags().StringVar(&date, "date", "", "payment date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&method, "method", engine.DefaultMethod, "payment method")
	cmd.Flags().StringVar(&invoice, "invoice", "", "invoice to pay first")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

// NewSettleCommand creates the settle command.
func NewSettleCommand(opts *RootOptions) *cobra.Command {
	var date, method string
	cmd := &cobra.Command{
		Use:   "settle <customer-id>",
		Short: "Pay off every outstanding invoice of a customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			var a ledger.Allocation
			err := withSession(cmd.Context(), opts, func(eng *engine.Engine) error {
				var err error
				a, err = eng.SettleAll(cmd.Context(), args[0], opts.dateFlag(date), method)
				return err
			})
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(viewAllocation(a))
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "payment date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&method, "method", engine.DefaultMethod, "payment method")
	return cmd
}

// NewWalletCommand creates the wallet command group.
func NewWalletCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Use customer wallet credit",
	}

	var date string
	apply := &cobra.Command{
		Use:   "apply <customer-id>",
		Short: "Pay outstanding invoices out of the customer's wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			var a ledger.Allocation
			err := withSession(cmd.Context(), opts, func(eng *engine.Engine) error {
				var err error
				a, err = eng.ApplyWallet(cmd.Context(), args[0], opts.dateFlag(date))
				return err
			})
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(viewAllocation(a))
		},
	}
	apply.Flags().StringVar(&date, "date", "", "payment date YYYY-MM-DD (default today)")
	cmd.AddCommand(apply)
	return cmd
}
