package engine

import (
	"context"

	"github.com/roach88/ledgersync/internal/ledger"
	"github.com/roach88/ledgersync/internal/localstore"
	"github.com/roach88/ledgersync/internal/remote"
)

// DefaultMethod tags payments registered without a method.
const DefaultMethod = "cash"

var (
	touchCustomers = []string{localstore.KeyCustomers}
	touchStock     = []string{localstore.KeyStock}
	touchPurchases = []string{localstore.KeyPurchases}
	touchSales     = []string{localstore.KeyCustomers, localstore.KeyStock}
)

// AddCustomer creates a customer with an empty wallet.
func (e *Engine) AddCustomer(ctx context.Context, in ledger.CustomerInput) (ledger.Customer, error) {
	if err := ledger.Validate(in); err != nil {
		return ledger.Customer{}, err
	}
	var out ledger.Customer
	err := e.submit(ctx, "add_customer", func() error {
		c := ledger.NewCustomer(e.ids.NewID(), in)
		e.state.UpsertCustomer(c)
		out = c.Clone()
		e.commit("add_customer", remote.TableCustomers, c.ID, touchCustomers, writeBatch{
			upsertOp(remote.TableCustomers, remote.EncodeCustomer(c)),
		})
		return nil
	})
	return out, err
}

// UpdateCustomer replaces a customer's scalar fields. The wallet and the
// invoices are kept.
func (e *Engine) UpdateCustomer(ctx context.Context, id string, in ledger.CustomerInput) (ledger.Customer, error) {
	if err := ledger.Validate(in); err != nil {
		return ledger.Customer{}, err
	}
	var out ledger.Customer
	err := e.submit(ctx, "update_customer", func() error {
		cur, ok := e.state.Customer(id)
		if !ok {
			return notFound("customer", id)
		}
		cur.Name = in.Name
		cur.TaxID = in.TaxID
		cur.Address = in.Address
		cur.Phone = in.Phone
		cur.CreditLimit = in.CreditLimit
		out = cur.Clone()
		e.commit("update_customer", remote.TableCustomers, id, touchCustomers, writeBatch{
			upsertOp(remote.TableCustomers, remote.EncodeCustomer(*cur)),
		})
		return nil
	})
	return out, err
}

// DeleteCustomer removes a customer with all of its invoices. The remote
// deletes cascade: payment records, then sales, then the customer.
func (e *Engine) DeleteCustomer(ctx context.Context, id string) error {
	return e.submit(ctx, "delete_customer", func() error {
		removed, ok := e.state.RemoveCustomer(id)
		if !ok {
			return notFound("customer", id)
		}
		var saleIDs, paymentIDs []string
		for _, inv := range removed.Invoices {
			saleIDs = append(saleIDs, inv.ID)
			for _, p := range inv.Payments {
				paymentIDs = append(paymentIDs, p.ID)
			}
		}

		var batch writeBatch
		if len(saleIDs) > 0 {
			batch = append(batch, deleteOp(remote.TablePaymentRecords,
				remote.Filter{Column: "sale_id", Values: saleIDs}, paymentIDs...))
		}
		batch = append(batch,
			deleteOp(remote.TableSales, remote.Filter{Column: "customer_id", Values: []string{id}}, saleIDs...),
			deleteOp(remote.TableCustomers, remote.ByKey(remote.TableCustomers, id), id),
		)
		e.commit("delete_customer", remote.TableCustomers, id, touchCustomers, batch)
		return nil
	})
}

// RegisterSale prepends a new invoice to the customer and takes the weight
// out of stock. The product must be stocked with enough weight available.
func (e *Engine) RegisterSale(ctx context.Context, in ledger.SaleInput) (ledger.Invoice, error) {
	if err := ledger.Validate(in); err != nil {
		return ledger.Invoice{}, err
	}
	var out ledger.Invoice
	err := e.submit(ctx, "register_sale", func() error {
		if _, ok := e.state.Customer(in.CustomerID); !ok {
			return notFound("customer", in.CustomerID)
		}
		item, ok := e.state.StockItem(in.ProductName)
		if !ok {
			return ledger.Invalid("productName", "no stock item for %s", ledger.NormalizeProductName(in.ProductName))
		}
		if item.AvailableKg.LessThan(in.WeightKg) {
			return ledger.Invalid("weightKg", "only %s kg of %s available", item.AvailableKg, item.ProductName)
		}

		inv := ledger.NewInvoice(e.ids.NewID(), in)
		if _, err := e.state.InsertInvoice(inv); err != nil {
			return err
		}
		item.Record(ledger.Movement{
			Date:  in.Date,
			Delta: in.WeightKg.Neg(),
			Type:  ledger.MovementExit,
			Note:  "sale " + inv.ID,
		})
		out = inv.Clone()
		e.commit("register_sale", remote.TableSales, inv.ID, touchSales, writeBatch{
			upsertOp(remote.TableSales, remote.EncodeSale(inv)),
			upsertOp(remote.TableStock, remote.EncodeStock(*item)),
		})
		return nil
	})
	return out, err
}

// DeleteSale removes an invoice and returns its weight to stock with an
// adjustment movement. A product no longer stocked is left alone.
func (e *Engine) DeleteSale(ctx context.Context, id string) error {
	return e.submit(ctx, "delete_sale", func() error {
		removed, ok := e.state.RemoveInvoice(id)
		if !ok {
			return notFound("sale", id)
		}
		paymentIDs := make([]string, 0, len(removed.Payments))
		for _, p := range removed.Payments {
			paymentIDs = append(paymentIDs, p.ID)
		}
		batch := writeBatch{
			deleteOp(remote.TablePaymentRecords, remote.Filter{Column: "sale_id", Values: []string{id}}, paymentIDs...),
			deleteOp(remote.TableSales, remote.ByKey(remote.TableSales, id), id),
		}
		touched := touchCustomers
		if item, ok := e.state.StockItem(removed.ProductName); ok {
			item.Record(ledger.Movement{
				Date:  e.today(),
				Delta: removed.WeightKg,
				Type:  ledger.MovementAdjustment,
				Note:  "sale " + id + " deleted",
			})
			batch = append(batch, upsertOp(remote.TableStock, remote.EncodeStock(*item)))
			touched = touchSales
		}
		e.commit("delete_sale", remote.TableSales, id, touched, batch)
		return nil
	})
}

// RegisterPayment allocates a payment over the customer's outstanding
// invoices (oldest first, target first) and credits any excess to the
// wallet.
func (e *Engine) RegisterPayment(ctx context.Context, in ledger.PaymentInput) (ledger.Allocation, error) {
	if err := ledger.Validate(in); err != nil {
		return ledger.Allocation{}, err
	}
	method := in.Method
	if method == "" {
		method = DefaultMethod
	}
	var out ledger.Allocation
	err := e.submit(ctx, "register_payment", func() error {
		c, ok := e.state.Customer(in.CustomerID)
		if !ok {
			return notFound("customer", in.CustomerID)
		}
		a, err := ledger.Allocate(c, ledger.PaymentRequest{
			Amount:          in.Amount,
			Date:            in.Date,
			Method:          method,
			TargetInvoiceID: in.TargetInvoiceID,
		}, e.ids)
		if err != nil {
			return err
		}
		e.applyAllocation("register_payment", c, a)
		out = a
		return nil
	})
	return out, err
}

// SettleAll pays every outstanding invoice of the customer in full. A
// customer with nothing outstanding is left untouched.
func (e *Engine) SettleAll(ctx context.Context, customerID, date, method string) (ledger.Allocation, error) {
	if !ledger.ValidDate(date) {
		return ledger.Allocation{}, ledger.Invalid("date", "%q is not a YYYY-MM-DD date", date)
	}
	if method == "" {
		method = DefaultMethod
	}
	var out ledger.Allocation
	err := e.submit(ctx, "settle_all", func() error {
		c, ok := e.state.Customer(customerID)
		if !ok {
			return notFound("customer", customerID)
		}
		a := ledger.SettleAll(c, date, method, e.ids)
		if !a.Empty() {
			e.applyAllocation("settle_all", c, a)
		}
		out = a
		return nil
	})
	return out, err
}

// ApplyWallet spends the customer's wallet credit on outstanding invoices.
// Credit that finds no debt stays in the wallet.
func (e *Engine) ApplyWallet(ctx context.Context, customerID, date string) (ledger.Allocation, error) {
	if !ledger.ValidDate(date) {
		return ledger.Allocation{}, ledger.Invalid("date", "%q is not a YYYY-MM-DD date", date)
	}
	var out ledger.Allocation
	err := e.submit(ctx, "apply_wallet", func() error {
		c, ok := e.state.Customer(customerID)
		if !ok {
			return notFound("customer", customerID)
		}
		a, err := ledger.SpendWallet(c, date, e.ids)
		if err != nil {
			return err
		}
		if !a.Empty() {
			e.applyAllocation("apply_wallet", c, a)
		}
		out = a
		return nil
	})
	return out, err
}

func (e *Engine) applyAllocation(op string, c *ledger.Customer, a ledger.Allocation) {
	a.Apply(c)

	var batch writeBatch
	if len(a.Invoices) > 0 {
		sales := make([]remote.Row, len(a.Invoices))
		for i, inv := range a.Invoices {
			sales[i] = remote.EncodeSale(inv)
		}
		payments := make([]remote.Row, len(a.Payments))
		for i, p := range a.Payments {
			payments[i] = remote.EncodePayment(p)
		}
		batch = append(batch,
			upsertOp(remote.TableSales, sales...),
			upsertOp(remote.TablePaymentRecords, payments...),
		)
	}
	if !a.WalletDelta.IsZero() {
		batch = append(batch, upsertOp(remote.TableCustomers, remote.EncodeCustomer(*c)))
	}
	e.commit(op, remote.TableCustomers, c.ID, touchCustomers, batch)
}

// AdjustStock applies a manual correction to a stock item, creating the
// item if the product is new. The available weight may go negative.
func (e *Engine) AdjustStock(ctx context.Context, adj ledger.StockAdjustment) (ledger.StockItem, error) {
	if err := ledger.Validate(adj); err != nil {
		return ledger.StockItem{}, err
	}
	if adj.BasePrice != nil && adj.BasePrice.IsNegative() {
		return ledger.StockItem{}, ledger.Invalid("basePrice", "must be at least 0")
	}
	if adj.DeltaKg.IsZero() && adj.BasePrice == nil {
		return ledger.StockItem{}, ledger.Invalid("deltaKg", "nothing to adjust")
	}
	var out ledger.StockItem
	err := e.submit(ctx, "adjust_stock", func() error {
		item, ok := e.state.StockItem(adj.ProductName)
		if !ok {
			e.state.UpsertStock(ledger.StockItem{ProductName: adj.ProductName})
			item, _ = e.state.StockItem(adj.ProductName)
		}
		if adj.BasePrice != nil {
			item.BasePrice = *adj.BasePrice
			item.LastUpdated = adj.Date
		}
		if !adj.DeltaKg.IsZero() {
			item.Record(ledger.Movement{
				Date:  adj.Date,
				Delta: adj.DeltaKg,
				Type:  ledger.MovementAdjustment,
				Note:  adj.Note,
			})
		}
		out = item.Clone()
		e.commit("adjust_stock", remote.TableStock, item.ProductName, touchStock, writeBatch{
			upsertOp(remote.TableStock, remote.EncodeStock(*item)),
		})
		return nil
	})
	return out, err
}

// DeleteStockItem removes a product from stock.
func (e *Engine) DeleteStockItem(ctx context.Context, name string) error {
	name = ledger.NormalizeProductName(name)
	return e.submit(ctx, "delete_stock", func() error {
		if !e.state.RemoveStock(name) {
			return notFound("stock item", name)
		}
		e.commit("delete_stock", remote.TableStock, name, touchStock, writeBatch{
			deleteOp(remote.TableStock, remote.ByKey(remote.TableStock, name), name),
		})
		return nil
	})
}

// RegisterPurchase records goods bought from a supplier. Stock is not
// touched.
func (e *Engine) RegisterPurchase(ctx context.Context, in ledger.PurchaseInput) (ledger.PurchaseEntry, error) {
	if err := ledger.Validate(in); err != nil {
		return ledger.PurchaseEntry{}, err
	}
	var out ledger.PurchaseEntry
	err := e.submit(ctx, "register_purchase", func() error {
		p := ledger.NewPurchase(e.ids.NewID(), in)
		e.state.UpsertPurchase(p)
		out = p
		e.commit("register_purchase", remote.TablePurchases, p.ID, touchPurchases, writeBatch{
			upsertOp(remote.TablePurchases, remote.EncodePurchase(p)),
		})
		return nil
	})
	return out, err
}

// DeletePurchase removes a purchase.
func (e *Engine) DeletePurchase(ctx context.Context, id string) error {
	return e.submit(ctx, "delete_purchase", func() error {
		if !e.state.RemovePurchase(id) {
			return notFound("purchase", id)
		}
		e.commit("delete_purchase", remote.TablePurchases, id, touchPurchases, writeBatch{
			deleteOp(remote.TablePurchases, remote.ByKey(remote.TablePurchases, id), id),
		})
		return nil
	})
}
