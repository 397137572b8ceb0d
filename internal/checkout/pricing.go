package checkout

import (
	"github.com/ariefcatur/go-checkout-orders/internal/cart"
	"github.com/shopspring/decimal"
)

type Pricing struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	BaseShipping          decimal.Decimal
	PerItemShipping       decimal.Decimal
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// Compute prices a cart. Shipping is free at or above the threshold, else a
// base fee plus a per-unit fee. Discounts are always zero for now.
func (p Pricing) Compute(items []cart.Item) Totals {
	sub := decimal.Zero
	units := 0
	for _, it := range items {
		sub = sub.Add(it.LineTotal())
		units += it.Quantity
	}
	t := Totals{
		Subtotal: sub.Round(2),
		Tax:      sub.Mul(p.TaxRate).Round(2),
		Shipping: decimal.Zero,
		Discount: decimal.Zero,
	}
	if sub.LessThan(p.FreeShippingThreshold) {
		t.Shipping = p.BaseShipping.Add(p.PerItemShipping.Mul(decimal.NewFromInt(int64(units)))).Round(2)
	}
	t.Total = t.Subtotal.Add(t.Tax).Add(t.Shipping).Sub(t.Discount)
	return t
}
