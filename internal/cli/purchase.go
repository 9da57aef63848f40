package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/ledgersync/internal/engine"
	"github.com/roach88/ledgersync/internal/ledger"
)

// NewPurchaseCommand creates the purchase command group.
func NewPurchaseCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purchase",
		Short: "Record goods bought from suppliers",
		Long: `Purchases are a financial record only. They never change stock; use
"stock adjust" when goods arrive.`,
	}
	cmd.AddCommand(newPurchaseAddCommand(opts))
	cmd.AddCommand(newPurchaseListCommand(opts))
	cmd.AddCommand(newPurchaseDeleteCommand(opts))
	return cmd
}

func newPurchaseAddCommand(opts *RootOptions) *cobra.Command {
	var product, weight, price, date, supplier string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a purchase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			kg, err := ledger.ParseAmount("weightKg", weight)
			if err != nil {
				return out.Fail(err)
			}
			perKg, err := ledger.ParseAmount("pricePerKg", price)
			if err != nil {
				return out.Fail(err)
			}
			in := ledger.PurchaseInput{
				ProductName: product,
				WeightKg:    kg,
				PricePerKg:  perKg,
				Date:        opts.dateFlag(date),
				Supplier:    supplier,
			}
			var p ledger.PurchaseEntry
			err = withSession(cmd.Context(), opts, func(eng *engine.Engine) error {
				p, err = eng.RegisterPurchase(cmd.Context(), in)
				return err
			})
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(purchaseList{p})
		},
	}
	cmd.Flags().StringVar(&product, "product", "", "product name")
	cmd.Flags().StringVar(&weight, "kg", "", "weight bought in kg")
	cmd.Flags().StringVar(&price, "price", "", "price per kg")
	cmd.Flags().StringVar(&date, "date", "", "purchase date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&supplier, "supplier", "", "supplier name")
	for _, name := range []string{"product", "kg", "price"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newPurchaseListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List purchases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			state, err := snapshot(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(purchaseList(state.Purchases))
		},
	}
}

func newPurchaseDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <purchase-id>",
		Short: "Delete a purchase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			err := withSession(cmd.Context(), opts, func(eng *engine.Engine) error {
				return eng.DeletePurchase(cmd.Context(), args[0])
			})
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(message{Message: "deleted purchase " + args[0]})
		},
	}
}
