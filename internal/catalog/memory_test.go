package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed() *Memory {
	m := NewMemory()
	m.PutProduct(Product{
		ID: "p-1", Slug: "mug", Name: "Mug",
		Variants: []Variant{{ID: "var-red", SKU: "MUG-RED", Name: "Red"}},
		VendorProducts: []VendorProduct{{
			ID: "vp-1", VendorID: "v-1", Name: "Mug", Price: decimal.RequireFromString("20"),
			Stock: 10, Status: StatusActive,
			Variants: []VendorVariant{{ID: "vv-red", VariantID: "var-red", Price: decimal.RequireFromString("22"), Stock: 3, Active: true}},
		}},
	})
	return m
}

func TestGetProductBySlug(t *testing.T) {
	m := seed()

	p, err := m.GetProductBySlug(context.Background(), "mug")
	require.NoError(t, err)
	require.Len(t, p.VendorProducts, 1)
	assert.Equal(t, "p-1", p.VendorProducts[0].ProductID)

	_, err = m.GetProductBySlug(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckStock(t *testing.T) {
	m := seed()

	check, err := m.CheckStock(context.Background(), []StockItem{
		{VendorProductID: "vp-1", Quantity: 2},
		{VendorProductID: "vp-1", VendorVariantID: "vv-red", Quantity: 5},
		{VendorProductID: "missing", Quantity: 1},
	})
	require.NoError(t, err)

	assert.False(t, check.AllAvailable)
	assert.True(t, check.Results[0].Sufficient())
	assert.True(t, check.Results[1].Found)
	assert.Equal(t, 3, check.Results[1].Available)
	assert.True(t, check.Results[1].Price.Equal(decimal.RequireFromString("22")))
	assert.False(t, check.Results[2].Found)
}

func TestTakeStockAllOrNothing(t *testing.T) {
	m := seed()
	ctx := context.Background()

	short, err := m.TakeStock(ctx, []StockItem{
		{VendorProductID: "vp-1", Quantity: 4},
		{VendorProductID: "vp-1", VendorVariantID: "vv-red", Quantity: 4},
	})
	require.NoError(t, err)
	require.Len(t, short, 1)
	assert.Equal(t, 3, short[0].Available)

	assert.Equal(t, 10, m.Stock(StockItem{VendorProductID: "vp-1"}))
	assert.Equal(t, 3, m.Stock(StockItem{VendorProductID: "vp-1", VendorVariantID: "vv-red"}))
}

func TestTakeStockMergesDuplicateLines(t *testing.T) {
	m := seed()

	short, err := m.TakeStock(context.Background(), []StockItem{
		{VendorProductID: "vp-1", VendorVariantID: "vv-red", Quantity: 2},
		{VendorProductID: "vp-1", VendorVariantID: "vv-red", Quantity: 2},
	})
	require.NoError(t, err)
	assert.Len(t, short, 1)
	assert.Equal(t, 3, m.Stock(StockItem{VendorProductID: "vp-1", VendorVariantID: "vv-red"}))
}

func TestTakeStockConcurrentNeverOversells(t *testing.T) {
	m := seed()
	ctx := context.Background()

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			short, err := m.TakeStock(ctx, []StockItem{{VendorProductID: "vp-1", Quantity: 1}})
			if err == nil && len(short) == 0 {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), ok.Load())
	assert.Equal(t, 0, m.Stock(StockItem{VendorProductID: "vp-1"}))
}
