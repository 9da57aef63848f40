package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/ledgersync/internal/engine"
	"github.com/roach88/ledgersync/internal/ledger"
)

type customerFlags struct {
	Name        string
	TaxID       string
	Address     string
	Phone       string
	CreditLimit string
}

func (f *customerFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Name, "name", "", "customer name")
	cmd.Flags().StringVar(&f.TaxID, "tax-id", "", "tax identifier")
	cmd.Flags().StringVar(&f.Address, "address", "", "postal address")
	cmd.Flags().StringVar(&f.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&f.CreditLimit, "credit-limit", "0", "advisory credit limit (0 = none)")
}

func (f *customerFlags) input() (ledger.CustomerInput, error) {
	limit, err := ledger.ParseAmount("creditLimit", f.CreditLimit)
	if err != nil {
		return ledger.CustomerInput{}, err
	}
	return ledger.CustomerInput{
		Name:        f.Name,
		TaxID:       f.TaxID,
		Address:     f.Address,
		Phone:       f.Phone,
		CreditLimit: limit,
	}, nil
}

// NewCustomerCommand creates the customer command group.
func NewCustomerCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customer",
		Short: "Manage customers",
	}
	cmd.AddCommand(newCustomerAddCommand(opts))
	cmd.AddCommand(newCustomerUpdateCommand(opts))
	cmd.AddCommand(newCustomerListCommand(opts))
	cmd.AddCommand(newCustomerShowCommand(opts))
	cmd.AddCommand(newCustomerDeleteCommand(opts))
	return cmd
}

func newCustomerAddCommand(opts *RootOptions) *cobra.Command {
	flags := &customerFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a customer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			in, err := flags.input()
			if err != nil {
				return out.Fail(err)
			}
			var c ledger.Customer
			err = withSession(cmd.Context(), opts, func(eng *engine.Engine) error {
				c, err = eng.AddCustomer(cmd.Context(), in)
				return err
			})
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(customerDetail{Customer: c, Debt: decimal.Zero})
		},
	}
	flags.bind(cmd)
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newCustomerUpdateCommand(opts *RootOptions) *cobra.Command {
	flags := &customerFlags{}
	cmd := &cobra.Command{
		Use:   "update <customer-id>",
		Short: "Replace a customer's details (wallet and invoices are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			in, err := flags.input()
			if err != nil {
				return out.Fail(err)
			}
			var c ledger.Customer
			err = withSession(cmd.Context(), opts, func(eng *engine.Engine) error {
				c, err = eng.UpdateCustomer(cmd.Context(), args[0], in)
				return err
			})
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(customerDetail{Customer: c, Debt: c.Debt()})
		},
	}
	flags.bind(cmd)
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newCustomerListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List customers with their wallet and debt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			state, err := snapshot(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			list := make(customerList, 0, len(state.Customers))
			for _, c := range state.Customers {
				list = append(list, summarize(c))
			}
			return out.Success(list)
		},
	}
}

func newCustomerShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <customer-id>",
		Short: "Show a customer and its invoices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			state, err := snapshot(cmd, opts)
			if err != nil {
				return out.Fail(err)
			}
			c, ok := state.Customer(args[0])
			if !ok {
				return out.Fail(fmt.Errorf("customer %s: %w", args[0], engine.ErrNotFound))
			}
			return out.Success(customerDetail{Customer: *c, Debt: c.Debt()})
		},
	}
}

func newCustomerDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <customer-id>",
		Short: "Delete a customer with all of its invoices and payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			err := withSession(cmd.Context(), opts, func(eng *engine.Engine) error {
				return eng.DeleteCustomer(cmd.Context(), args[0])
			})
			if err != nil {
				return out.Fail(err)
			}
			return out.Success(message{Message: "deleted customer " + args[0]})
		},
	}
}
