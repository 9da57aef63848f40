package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/roach88/ledgersync/internal/ledger"
)

// message is a one-line result.
type message struct {
	Message string `json:"message"`
}

func (m message) RenderText(w io.Writer) error {
	_, err := fmt.Fprintln(w, m.Message)
	return err
}

type customerSummary struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	WalletBalance decimal.Decimal `json:"walletBalance"`
	Debt          decimal.Decimal `json:"debt"`
	Invoices      int             `json:"invoices"`
	OverLimit     bool            `json:"overCreditLimit"`
}

func summarize(c ledger.Customer) customerSummary {
	return customerSummary{
		ID:            c.ID,
		Name:          c.Name,
		WalletBalance: c.WalletBalance,
		Debt:          c.Debt(),
		Invoices:      len(c.Invoices),
		OverLimit:     c.OverCreditLimit(),
	}
}

type customerList []customerSummary

func (l customerList) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tWALLET\tDEBT\tINVOICES")
	for _, c := range l {
		flag := ""
		if c.OverLimit {
			flag = " !"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s%s\t%d\n", c.ID, c.Name, c.WalletBalance.StringFixed(2), c.Debt.StringFixed(2), flag, c.Invoices)
	}
	return tw.Flush()
}

type customerDetail struct {
	ledger.Customer
	Debt decimal.Decimal `json:"debt"`
}

func (d customerDetail) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "%s  %s\n", d.ID, d.Name)
	fmt.Fprintf(w, "wallet %s  debt %s\n", d.WalletBalance.StringFixed(2), d.Debt.StringFixed(2))
	if len(d.Invoices) == 0 {
		return nil
	}
	return invoiceTable(d.Invoices).RenderText(w)
}

type invoiceTable []ledger.Invoice

func (t invoiceTable) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INVOICE\tDATE\tPRODUCT\tKG\tTOTAL\tPAID\tSTATUS")
	for _, inv := range t {
		status := "open"
		if inv.IsPaid {
			status = "paid " + inv.PaidAt
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			inv.ID, inv.Date, inv.ProductName, inv.WeightKg.String(),
			inv.Total.StringFixed(2), inv.PaidAmount.StringFixed(2), status)
	}
	return tw.Flush()
}

type allocationView struct {
	CustomerID  string                 `json:"customerId"`
	Applied     decimal.Decimal        `json:"applied"`
	WalletDelta decimal.Decimal        `json:"walletDelta"`
	Payments    []ledger.PaymentRecord `json:"payments"`
}

func viewAllocation(a ledger.Allocation) allocationView {
	payments := a.Payments
	if payments == nil {
		payments = []ledger.PaymentRecord{}
	}
	return allocationView{CustomerID: a.CustomerID, Applied: a.Applied(), WalletDelta: a.WalletDelta, Payments: payments}
}

func (v allocationView) RenderText(w io.Writer) error {
	if len(v.Payments) == 0 && v.WalletDelta.IsZero() {
		_, err := fmt.Fprintln(w, "nothing to pay")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PAYMENT\tINVOICE\tAMOUNT\tMETHOD")
	for _, p := range v.Payments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.InvoiceID, p.Amount.StringFixed(2), p.Method)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	delta := v.WalletDelta.StringFixed(2)
	if v.WalletDelta.IsPositive() {
		delta = "+" + delta
	}
	_, err := fmt.Fprintf(w, "applied %s, wallet %s\n", v.Applied.StringFixed(2), delta)
	return err
}

type stockList []ledger.StockItem

func (l stockList) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tAVAILABLE KG\tBASE PRICE\tUPDATED\tMOVEMENTS")
	for _, item := range l {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", item.ProductName, item.AvailableKg.String(), item.BasePrice.StringFixed(2), item.LastUpdated, len(item.Movements))
	}
	return tw.Flush()
}

type purchaseList []ledger.PurchaseEntry

func (l purchaseList) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tPRODUCT\tKG\tTOTAL\tSUPPLIER")
	for _, p := range l {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", p.ID, p.Date, p.ProductName, p.WeightKg.String(), p.Total.StringFixed(2), p.Supplier)
	}
	return tw.Flush()
}

type ledgerSummary struct {
	Customers customerList    `json:"customers"`
	Stock     stockList       `json:"stock"`
	Purchases int             `json:"purchases"`
	Debt      decimal.Decimal `json:"debt"`
}

func summarizeLedger(s *ledger.State) ledgerSummary {
	out := ledgerSummary{
		Customers: make(customerList, 0, len(s.Customers)),
		Stock:     stockList(s.Stock),
		Purchases: len(s.Purchases),
		Debt:      decimal.Zero,
	}
	for _, c := range s.Customers {
		sum := summarize(c)
		out.Debt = out.Debt.Add(sum.Debt)
		out.Customers = append(out.Customers, sum)
	}
	return out
}

func (v ledgerSummary) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "%d customers, total debt %s, %d purchases\n\n", len(v.Customers), v.Debt.StringFixed(2), v.Purchases)
	if err := v.Customers.RenderText(w); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return v.Stock.RenderText(w)
}

type checkReport struct {
	OK         bool     `json:"ok"`
	Violations []string `json:"violations"`
}

func (r checkReport) RenderText(w io.Writer) error {
	if r.OK {
		_, err := fmt.Fprintln(w, "ledger ok")
		return err
	}
	for _, v := range r.Violations {
		fmt.Fprintln(w, "- "+v)
	}
	_, err := fmt.Fprintf(w, "%d violation(s)\n", len(r.Violations))
	return err
}
