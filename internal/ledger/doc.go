// Package ledger holds the in-memory sales ledger and the payment allocator.
//
// The ledger is the combined state of customers (each owning its invoices),
// stock items and purchases. It is a plain value: it knows nothing about the
// remote store, the changefeed or local persistence. The sync engine owns the
// single live State and is the only writer.
//
// INVARIANTS (checked by State.Check):
//   - Customer.WalletBalance >= 0
//   - Invoice.PaidAmount <= Invoice.Total + Epsilon
//   - Invoice.IsPaid iff Invoice.PaidAmount >= Invoice.Total - Epsilon
//   - sum(Invoice.Payments[].Amount) == Invoice.PaidAmount
//   - StockItem.ProductName is unique across State.Stock
//
// Invoice.Total is computed once at creation (weight × price) and stored;
// it is never recomputed from weight and price afterwards.
//
// Purchases are a financial record only. Registering a purchase never touches
// the stock item of the same product.
//
// MONEY:
// All amounts and weights use shopspring/decimal so the allocator's
// conservation law (sum of applied amounts + wallet credit == payment) holds
// exactly rather than within a float tolerance.
package ledger
