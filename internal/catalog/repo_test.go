package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockOrder(t *testing.T) {
	in := []StockItem{
		{VendorProductID: "vp-b", Quantity: 1},
		{VendorProductID: "vp-a", VendorVariantID: "vv-2", Quantity: 1},
		{VendorProductID: "vp-a", Quantity: 2},
		{VendorProductID: "vp-b", Quantity: 3},
	}
	got := lockOrder(in)
	assert.Equal(t, []StockItem{
		{VendorProductID: "vp-a", Quantity: 2},
		{VendorProductID: "vp-a", VendorVariantID: "vv-2", Quantity: 1},
		{VendorProductID: "vp-b", Quantity: 4},
	}, got)
	assert.Equal(t, "vp-b", in[0].VendorProductID, "input untouched")

	reversed := lockOrder([]StockItem{in[2], in[1], in[0], in[3]})
	assert.Equal(t, got, reversed)
}
