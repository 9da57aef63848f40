package cli

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/ledgersync/internal/engine"
	"github.com/roach88/ledgersync/internal/ledger"
)

// NewStockCommand creates the stock command group.
func NewStockCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Inspect and adjust stock",
	}
	cmd.AddCommand(newStockListCommand(opts))
	cmd.AddCommand(newStockAdjustCommand(opts))
	cmd.AddCommand(newStockDeleteCommand(opts))
	return cmd
}

func newStockListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stock items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			state, err := snapshot(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(stockList(state.Stock))
		},
	}
}

func newStockAdjustCommand(opts *RootOptions) *cobra.Command {
	var delta, basePrice, date, note string
	cmd := &cobra.Command{
		Use:   "adjust <product>",
		Short: "Add or remove weight, or change the base price",
		Long: `Manually adjust a stock item. --kg is signed and may take the available
weight below zero. Unknown products are created.

Example:
  ledgersync stock adjust maize --kg 250 --note "delivery"
  ledgersync stock adjust rice --base-price 0.99`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			kg, err := ledger.ParseAmount("deltaKg", delta)
			if err != nil {
				return out.Fail(err)
			}
			adj := ledger.StockAdjustment{
				ProductName: args[0],
				DeltaKg:     kg,
				Date:        opts.dateFlag(date),
				Note:        note,
			}
			if cmd.Flags().Changed("base-price") {
				price, err := ledger.ParseAmount("basePrice", basePrice)
				if err != nil {
					return out.Fail(err)
				}
				adj.BasePrice = &price
			}
			var item ledger.StockItem
			err = withSession(cmd.Context(), opts, func(eng *engine.Engine) error {
				item, err = eng.AdjustStock(cmd.Context(), adj)
				return err
			})
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(stockList{item})
		},
	}
	cmd.Flags().StringVar(&delta, "kg", decimal.Zero.String(), "signed weight change in kg")
	cmd.Flags().StringVar(&basePrice, "base-price", "", "new base price per kg")
	cmd.Flags().StringVar(&date, "date", "", "adjustment date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&note, "note", "", "free-form note kept in the movement history")
	return cmd
}

func newStockDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <product>",
		Short: "Remove a stock item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			err := withSession(cmd.Context(), opts, func(eng *engine.Engine) error {
				return eng.DeleteStockItem(cmd.Context(), args[0])
			})
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(message{Message: "deleted stock item " + ledger.NormalizeProductName(args[0])})
		},
	}
}
