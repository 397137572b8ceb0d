package cart

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ariefcatur/go-checkout-orders/internal/apperr"
	"github.com/ariefcatur/go-checkout-orders/internal/catalog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedCatalog() *catalog.Memory {
	m := catalog.NewMemory()
	m.PutProduct(catalog.Product{
		ID: "p-shirt", Slug: "shirt", Name: "Shirt",
		Variants: []catalog.Variant{{ID: "var-m", SKU: "SHIRT-M", Name: "M"}},
		VendorProducts: []catalog.VendorProduct{{
			ID: "vp-shirt", VendorID: "v-1", Name: "Shirt", Price: dec("20"), Stock: 10, Status: catalog.StatusActive,
			Variants: []catalog.VendorVariant{{ID: "vv-m", VariantID: "var-m", Price: dec("25"), Stock: 2, Active: true}},
		}},
	})
	m.PutProduct(catalog.Product{
		ID: "p-old", Slug: "old",
		VendorProducts: []catalog.VendorProduct{{
			ID: "vp-old", VendorID: "v-1", Name: "Old", Price: dec("5"), Stock: 10, Status: catalog.StatusActive,
		}},
	})
	return m
}

func setup(t *testing.T) (*Service, *Validator, *Memory, *catalog.Memory) {
	t.Helper()
	cat := seedCatalog()
	store := NewMemory()
	return NewService(store, cat, "USD"), NewValidator(store, cat), store, cat
}

func TestValidate_EmptyCart(t *testing.T) {
	_, v, store, _ := setup(t)
	ctx := context.Background()

	_, err := v.Validate(ctx, "c-1")
	assert.ErrorIs(t, err, apperr.Validation)

	_, err = store.GetOrCreateActive(ctx, "c-1", "USD")
	require.NoError(t, err)
	_, err = v.Validate(ctx, "c-1")
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "empty_cart", e.Code)
}

func TestValidate_AllGood(t *testing.T) {
	svc, v, _, _ := setup(t)
	ctx := context.Background()
	_, err := svc.AddItem(ctx, "c-1", AddItemInput{VendorProductID: "vp-shirt", Quantity: 2})
	require.NoError(t, err)

	res, err := v.Validate(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Issues)
	assert.Len(t, res.Cart.Items, 1)
}

func TestValidate_OutOfStock(t *testing.T) {
	svc, v, _, _ := setup(t)
	ctx := context.Background()
	_, err := svc.AddItem(ctx, "c-1", AddItemInput{VendorProductID: "vp-shirt", VendorVariantID: "vv-m", Quantity: 3})
	require.NoError(t, err)

	res, err := v.Validate(ctx, "c-1")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, IssueOutOfStock, res.Issues[0].Kind)
	assert.Equal(t, 3, res.Issues[0].Requested)
	assert.Equal(t, 2, res.Issues[0].Available)
}

func TestValidate_SoldOutReportsZeroAvailable(t *testing.T) {
	svc, v, _, cat := setup(t)
	ctx := context.Background()
	_, err := svc.AddItem(ctx, "c-1", AddItemInput{VendorProductID: "vp-shirt", VendorVariantID: "vv-m", Quantity: 1})
	require.NoError(t, err)
	short, err := cat.TakeStock(ctx, []catalog.StockItem{{VendorProductID: "vp-shirt", VendorVariantID: "vv-m", Quantity: 2}})
	require.NoError(t, err)
	require.Empty(t, short)

	res, err := v.Validate(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, IssueOutOfStock, res.Issues[0].Kind)

	b, err := json.Marshal(res.Issues[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), `"available":0`)
	assert.Contains(t, string(b), `"requested":1`)
}

func TestValidate_PriceChangedIsPersisted(t *testing.T) {
	svc, v, store, cat := setup(t)
	ctx := context.Background()
	_, err := svc.AddItem(ctx, "c-1", AddItemInput{VendorProductID: "vp-shirt", Quantity: 1})
	require.NoError(t, err)

	cat.SetPrice(catalog.StockItem{VendorProductID: "vp-shirt"}, dec("22.50"))

	res, err := v.Validate(ctx, "c-1")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, IssuePriceChanged, res.Issues[0].Kind)
	assert.True(t, res.Issues[0].RecordedPrice.Equal(dec("20")))
	assert.True(t, res.Issues[0].CurrentPrice.Equal(dec("22.50")))
	assert.True(t, res.Cart.Items[0].UnitPrice.Equal(dec("22.50")))

	c, err := store.ActiveCart(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, c.Items[0].UnitPrice.Equal(dec("22.50")))

	res, err = v.Validate(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestValidate_PriceWithinTolerance(t *testing.T) {
	svc, v, _, cat := setup(t)
	ctx := context.Background()
	_, err := svc.AddItem(ctx, "c-1", AddItemInput{VendorProductID: "vp-shirt", Quantity: 1})
	require.NoError(t, err)

	cat.SetPrice(catalog.StockItem{VendorProductID: "vp-shirt"}, dec("20.01"))

	res, err := v.Validate(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

type inactiveCatalog struct{ *catalog.Memory }

func (c inactiveCatalog) CheckStock(ctx context.Context, items []catalog.StockItem) (catalog.StockCheck, error) {
	check, err := c.Memory.CheckStock(ctx, items)
	for i := range check.Results {
		if check.Results[i].Item.VendorProductID == "vp-old" {
			check.Results[i].Active = false
		}
	}
	return check, err
}

func TestValidate_Unavailable(t *testing.T) {
	cat := seedCatalog()
	store := NewMemory()
	svc := NewService(store, cat, "USD")
	v := NewValidator(store, inactiveCatalog{cat})
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "c-1", AddItemInput{VendorProductID: "vp-old", Quantity: 1})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "c-1", AddItemInput{VendorProductID: "vp-shirt", Quantity: 1})
	require.NoError(t, err)

	res, err := v.Validate(ctx, "c-1")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, IssueUnavailable, res.Issues[0].Kind)
	assert.Equal(t, "vp-old", res.Issues[0].VendorProductID)
}

type brokenStock struct{ results int }

func (b brokenStock) CheckStock(_ context.Context, _ []catalog.StockItem) (catalog.StockCheck, error) {
	if b.results < 0 {
		return catalog.StockCheck{}, errors.New("connection refused")
	}
	return catalog.StockCheck{Results: make([]catalog.StockResult, b.results)}, nil
}

func TestValidate_StockCheckFailure(t *testing.T) {
	for name, stock := range map[string]brokenStock{"error": {results: -1}, "mismatch": {results: 3}} {
		t.Run(name, func(t *testing.T) {
			cat := seedCatalog()
			store := NewMemory()
			svc := NewService(store, cat, "USD")
			v := NewValidator(store, stock)
			ctx := context.Background()
			_, err := svc.AddItem(ctx, "c-1", AddItemInput{VendorProductID: "vp-shirt", Quantity: 1})
			require.NoError(t, err)

			_, err = v.Validate(ctx, "c-1")
			assert.ErrorIs(t, err, apperr.Dependency)
			e, _ := apperr.As(err)
			assert.Equal(t, "stock_check_failed", e.Code)
		})
	}
}
