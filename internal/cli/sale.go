package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/ledgersync/internal/engine"
	"github.com/roach88/ledgersync/internal/ledger"
)

// NewSaleCommand creates the sale command group.
func NewSaleCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sale",
		Short: "Register or delete sales",
	}
	cmd.AddCommand(newSaleAddCommand(opts))
	cmd.AddCommand(newSaleDeleteCommand(opts))
	return cmd
}

func newSaleAddCommand(opts *RootOptions) *cobra.Command {
	var customerID, product, weight, price, date string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a sale and take its weight out of stock",
		Long: `Register a sale for a customer. The product must be stocked with at
least the sold weight; the invoice total is weight times price.

Example:
  ledgersync sale add --customer 0193... --product maize --kg 12.5 --price 0.42`,
		Args: cobra.NoArgs,
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
			in := ledger.SaleInput{
				CustomerID:  customerID,
				ProductName: product,
				WeightKg:    kg,
				PricePerKg:  perKg,
				Date:        opts.dateFlag(date),
			}
			var inv ledger.Invoice
			err = withSession(cmd.Context(), opts, func(eng *engine.Engine) error {
				inv, err = eng.RegisterSale(cmd.Context(), in)
				return err
			})
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(invoiceTable{inv})
		},
	}
	cmd.Flags().StringVar(&customerID, "customer", "", "customer id")
	cmd.Flags().StringVar(&product, "product", "", "product name")
	cmd.Flags().StringVar(&weight, "kg", "", "weight sold in kg")
	cmd.Flags().StringVar(&price, "price", "", "price per kg")
	cmd.Flags().StringVar(&date, "date", "", "sale date YYYY-MM-DD (default today)")
	for _, name := range []string{"customer", "product", "kg", "price"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newSaleDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <sale-id>",
		Short: "Delete a sale and return its weight to stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			err := withSession(cmd.Context(), opts, func(eng *engine.Engine) error {
				return eng.DeleteSale(cmd.Context(), args[0])
			})
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(message{Message: "deleted sale " + args[0]})
		},
	}
}
