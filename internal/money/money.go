package money

import (
	"github.com/kiwari-pos/terminal/internal/catalog"
	"github.com/shopspring/decimal"
)

// Totals is derived from a ticket on demand and never stored.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals returns subtotal, tax and total for a set of line items.
//
//	subtotal = Σ price × quantity
//	tax      = subtotal × taxRate
//	total    = subtotal + tax + tip − discount
//
// No rounding is applied and total may go negative when the discount exceeds
// everything else; formatting to currency precision happens at the boundary.
func ComputeTotals(items []catalog.LineItem, taxRate, tip, discount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.LineTotal())
	}
	tax := subtotal.Mul(taxRate)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax).Add(tip).Sub(discount),
	}
}

// Change is the cash owed back to the customer, floored at zero.
func Change(tendered, due decimal.Decimal) decimal.Decimal {
	c := tendered.Sub(due)
	if c.IsNegative() {
		return decimal.Zero
	}
	return c
}
