package main

import (
	"github.com/ariefcatur/go-checkout-orders/internal/address"
	"github.com/ariefcatur/go-checkout-orders/internal/catalog"
	"github.com/ariefcatur/go-checkout-orders/internal/payment"
	"github.com/shopspring/decimal"
)

// seedDemo gives memory mode something to buy: customer "demo" has an
// address "addr-demo" and cards "card-demo" (approves) and "card-decline".
func seedDemo(cat *catalog.Memory, pay *payment.Memory, addrs *address.Memory) {
	cat.PutProduct(catalog.Product{
		ID: "p-mug", Slug: "mug", Name: "Mug",
		VendorProducts: []catalog.VendorProduct{{
			ID: "vp-mug", VendorID: "vendor-1", Name: "Mug", Price: decimal.RequireFromString("12.50"),
			Stock: 100, Status: catalog.StatusActive,
		}},
	})
	cat.PutProduct(catalog.Product{
		ID: "p-tee", Slug: "tee", Name: "T-Shirt",
		Variants: []catalog.Variant{{ID: "var-tee-m", SKU: "TEE-M", Name: "M"}, {ID: "var-tee-l", SKU: "TEE-L", Name: "L"}},
		VendorProducts: []catalog.VendorProduct{{
			ID: "vp-tee", VendorID: "vendor-2", Name: "T-Shirt", Price: decimal.RequireFromString("20"),
			Stock: 0, Status: catalog.StatusActive,
			Variants: []catalog.VendorVariant{
				{ID: "vv-tee-m", VariantID: "var-tee-m", Price: decimal.RequireFromString("20"), Stock: 25, Active: true},
				{ID: "vv-tee-l", VariantID: "var-tee-l", Price: decimal.RequireFromString("22"), Stock: 3, Active: true},
			},
		}},
	})
	addrs.Put(address.Address{
		ID: "addr-demo", CustomerID: "demo", FullName: "Demo Customer",
		Line1: "1 Market St", City: "San Francisco", State: "CA", PostalCode: "94105", Country: "US",
	})
	pay.PutCard(payment.Card{ID: "card-demo", CustomerID: "demo", Last4: "4242", Brand: "visa", ExpMonth: 12, ExpYear: 2099, Token: "tok_visa", IsDefault: true})
	pay.PutCard(payment.Card{ID: "card-decline", CustomerID: "demo", Last4: "0002", Brand: "visa", ExpMonth: 12, ExpYear: 2099, Token: "tok_decline_generic"})
}
