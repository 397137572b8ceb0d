package checkout

import (
	"testing"

	"github.com/ariefcatur/go-checkout-orders/internal/cart"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var testPricing = Pricing{
	TaxRate:               dec("0.10"),
	FreeShippingThreshold: dec("50"),
	BaseShipping:          dec("5.99"),
	PerItemShipping:       dec("1"),
}

func TestCompute(t *testing.T) {
	cases := []struct {
		name  string
		items []cart.Item
		want  Totals
	}{
		{
			name:  "meets free shipping threshold",
			items: []cart.Item{{Quantity: 1, UnitPrice: dec("20")}, {Quantity: 2, UnitPrice: dec("15")}},
			want:  Totals{Subtotal: dec("50"), Tax: dec("5"), Shipping: dec("0"), Discount: dec("0"), Total: dec("55")},
		},
		{
			name:  "below threshold pays per unit",
			items: []cart.Item{{Quantity: 3, UnitPrice: dec("10")}},
			want:  Totals{Subtotal: dec("30"), Tax: dec("3"), Shipping: dec("8.99"), Discount: dec("0"), Total: dec("41.99")},
		},
		{
			name:  "tax rounds to cents",
			items: []cart.Item{{Quantity: 1, UnitPrice: dec("9.99")}},
			want:  Totals{Subtotal: dec("9.99"), Tax: dec("1"), Shipping: dec("6.99"), Discount: dec("0"), Total: dec("17.98")},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := testPricing.Compute(c.items)
			assert.True(t, c.want.Subtotal.Equal(got.Subtotal), "subtotal %s", got.Subtotal)
			assert.True(t, c.want.Tax.Equal(got.Tax), "tax %s", got.Tax)
			assert.True(t, c.want.Shipping.Equal(got.Shipping), "shipping %s", got.Shipping)
			assert.True(t, c.want.Total.Equal(got.Total), "total %s", got.Total)
		})
	}
}
