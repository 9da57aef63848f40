package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// State is the whole ledger: customers (with their invoices), stock and purchases.
//
// Pointers returned by the lookup helpers point into the backing slices and
// are only valid until the next structural change (insert or remove).
type State struct {
	Customers []Customer      `json:"customers"`
	Stock     []StockItem     `json:"stock"`
	Purchases []PurchaseEntry `json:"purchases"`
}

// NewState returns an empty ledger whose stock is the given catalog.
func NewState(catalog []StockItem) *State {
	s := &State{
		Customers: []Customer{},
		Stock:     make([]StockItem, 0, len(catalog)),
		Purchases: []PurchaseEntry{},
	}
	s.Stock = append(s.Stock, catalog...)
	return s
}

// Customer returns the customer with the given id.
func (s *State) Customer(id string) (*Customer, bool) {
	i := s.customerIndex(id)
	if i < 0 {
		return nil, false
	}
	return &s.Customers[i], true
}

func (s *State) customerIndex(id string) int {
	for i := range s.Customers {
		if s.Customers[i].ID == id {
			return i
		}
	}
	return -1
}

// UpsertCustomer inserts the customer or overwrites the scalar fields of an
// existing one. Existing invoices are always preserved; the incoming
// customer's invoices are only used on insert.
// Returns true when a new customer was inserted.
func (s *State) UpsertCustomer(c Customer) bool {
	if c.WalletBalance.IsNegative() {
		c.WalletBalance = decimal.Zero
	}
	if cur, ok := s.Customer(c.ID); ok {
		cur.Name = c.Name
		cur.TaxID = c.TaxID
		cur.Address = c.Address
		cur.Phone = c.Phone
		cur.WalletBalance = c.WalletBalance
		cur.CreditLimit = c.CreditLimit
		return false
	}
	if c.Invoices == nil {
		c.Invoices = []Invoice{}
	}
	s.Customers = append(s.Customers, c)
	return true
}

// RemoveCustomer deletes the customer and all of its invoices.
func (s *State) RemoveCustomer(id string) (Customer, bool) {
	i := s.customerIndex(id)
	if i < 0 {
		return Customer{}, false
	}
	removed := s.Customers[i]
	s.Customers = append(s.Customers[:i], s.Customers[i+1:]...)
	return removed, true
}

// FindInvoice locates an invoice across all customers.
func (s *State) FindInvoice(id string) (*Customer, *Invoice, bool) {
	for ci := range s.Customers {
		c := &s.Customers[ci]
		for ii := range c.Invoices {
			if c.Invoices[ii].ID == id {
				return c, &c.Invoices[ii], true
			}
		}
	}
	return nil, nil, false
}

// FindPayment locates the invoice holding a payment record.
func (s *State) FindPayment(id string) (*Invoice, bool) {
	for ci := range s.Customers {
		c := &s.Customers[ci]
		for ii := range c.Invoices {
			if c.Invoices[ii].HasPayment(id) {
				return &c.Invoices[ii], true
			}
		}
	}
	return nil, false
}

// InsertInvoice prepends the invoice to its customer's list unless an invoice
// with the same id already exists anywhere in the ledger.
func (s *State) InsertInvoice(inv Invoice) (bool, error) {
	if _, _, exists := s.FindInvoice(inv.ID); exists {
		return false, nil
	}
	c, ok := s.Customer(inv.CustomerID)
	if !ok {
		return false, fmt.Errorf("invoice %s: customer %s not found", inv.ID, inv.CustomerID)
	}
	if inv.Payments == nil {
		inv.Payments = []PaymentRecord{}
	}
	c.Invoices = append([]Invoice{inv}, c.Invoices...)
	return true, nil
}

// RemoveInvoice deletes the invoice from whichever customer holds it.
func (s *State) RemoveInvoice(id string) (Invoice, bool) {
	for ci := range s.Customers {
		c := &s.Customers[ci]
		for ii := range c.Invoices {
			if c.Invoices[ii].ID == id {
				removed := c.Invoices[ii]
				c.Invoices = append(c.Invoices[:ii], c.Invoices[ii+1:]...)
				return removed, true
			}
		}
	}
	return Invoice{}, false
}

// StockItem returns the stock item for a product name. The name is
// normalized before lookup.
func (s *State) StockItem(name string) (*StockItem, bool) {
	i := s.stockIndex(NormalizeProductName(name))
	if i < 0 {
		return nil, false
	}
	return &s.Stock[i], true
}

func (s *State) stockIndex(name string) int {
	for i := range s.Stock {
		if s.Stock[i].ProductName == name {
			return i
		}
	}
	return -1
}

// UpsertStock inserts or replaces the stock item with the same product name.
// Returns true on insert.
func (s *State) UpsertStock(item StockItem) bool {
	item.ProductName = NormalizeProductName(item.ProductName)
	if item.Movements == nil {
		item.Movements = []Movement{}
	}
	if i := s.stockIndex(item.ProductName); i >= 0 {
		s.Stock[i] = item
		return false
	}
	s.Stock = append(s.Stock, item)
	return true
}

// RemoveStock deletes the stock item for a product name.
func (s *State) RemoveStock(name string) bool {
	i := s.stockIndex(NormalizeProductName(name))
	if i < 0 {
		return false
	}
	s.Stock = append(s.Stock[:i], s.Stock[i+1:]...)
	return true
}

// Purchase returns the purchase with the given id.
func (s *State) Purchase(id string) (*PurchaseEntry, bool) {
	for i := range s.Purchases {
		if s.Purchases[i].ID == id {
			return &s.Purchases[i], true
		}
	}
	return nil, false
}

// UpsertPurchase inserts or replaces a purchase by id. Returns true on insert.
func (s *State) UpsertPurchase(p PurchaseEntry) bool {
	if cur, ok := s.Purchase(p.ID); ok {
		*cur = p
		return false
	}
	s.Purchases = append(s.Purchases, p)
	return true
}

// RemovePurchase deletes a purchase by id.
func (s *State) RemovePurchase(id string) bool {
	for i := range s.Purchases {
		if s.Purchases[i].ID == id {
			s.Purchases = append(s.Purchases[:i], s.Purchases[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the ledger.
func (s *State) Clone() *State {
	out := &State{
		Customers: make([]Customer, len(s.Customers)),
		Stock:     make([]StockItem, len(s.Stock)),
		Purchases: make([]PurchaseEntry, len(s.Purchases)),
	}
	for i, c := range s.Customers {
		out.Customers[i] = cloneCustomer(c)
	}
	for i, item := range s.Stock {
		item.Movements = append([]Movement(nil), item.Movements...)
		out.Stock[i] = item
	}
	copy(out.Purchases, s.Purchases)
	return out
}

func cloneCustomer(c Customer) Customer {
	invoices := make([]Invoice, len(c.Invoices))
	for i, inv := range c.Invoices {
		invoices[i] = cloneInvoice(inv)
	}
	c.Invoices = invoices
	return c
}

func cloneInvoice(inv Invoice) Invoice {
	inv.Payments = append([]PaymentRecord{}, inv.Payments...)
	return inv
}

// Check audits every ledger invariant and returns one error per violation.
func (s *State) Check() []error {
	var errs []error
	seenStock := make(map[string]bool, len(s.Stock))
	for _, item := range s.Stock {
		if seenStock[item.ProductName] {
			errs = append(errs, fmt.Errorf("stock %s: duplicate product name", item.ProductName))
		}
		seenStock[item.ProductName] = true
	}
	for _, c := range s.Customers {
		if c.WalletBalance.IsNegative() {
			errs = append(errs, fmt.Errorf("customer %s: negative wallet balance %s", c.ID, c.WalletBalance))
		}
		for _, inv := range c.Invoices {
			if inv.PaidAmount.GreaterThan(inv.Total.Add(Epsilon)) {
				errs = append(errs, fmt.Errorf("invoice %s: paid %s exceeds total %s", inv.ID, inv.PaidAmount, inv.Total))
			}
			settled := inv.PaidAmount.GreaterThanOrEqual(inv.Total.Sub(Epsilon))
			if settled != inv.IsPaid {
				errs = append(errs, fmt.Errorf("invoice %s: isPaid=%t but paid %s of %s", inv.ID, inv.IsPaid, inv.PaidAmount, inv.Total))
			}
			if sum := inv.PaymentsTotal(); !sum.Equal(inv.PaidAmount) {
				errs = append(errs, fmt.Errorf("invoice %s: payment history sums to %s, paid amount is %s", inv.ID, sum, inv.PaidAmount))
			}
		}
	}
	return errs
}
