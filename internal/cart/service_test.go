package cart

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-checkout-orders/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddItem_MergesSameLine(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "c-1", AddItemInput{VendorProductID: "vp-shirt", Quantity: 1})
	require.NoError(t, err)
	c, err := svc.AddItem(ctx, "c-1", AddItemInput{VendorProductID: "vp-shirt", Quantity: 2})
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)

	c, err = svc.AddItem(ctx, "c-1", AddItemInput{VendorProductID: "vp-shirt", VendorVariantID: "vv-m", Quantity: 1})
	require.NoError(t, err)
	require.Len(t, c.Items, 2)
	assert.Equal(t, "var-m", c.Items[1].VariantID)
	assert.True(t, c.Items[1].UnitPrice.Equal(dec("25")))
	assert.Equal(t, "p-shirt", c.Items[1].ProductID)
}

func TestAddItem_Rejects(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "c-1", AddItemInput{VendorProductID: "vp-shirt", Quantity: 0})
	assert.ErrorIs(t, err, apperr.Validation)

	_, err = svc.AddItem(ctx, "c-1", AddItemInput{VendorProductID: "nope", Quantity: 1})
	assert.ErrorIs(t, err, apperr.NotFound)

	_, err = svc.AddItem(ctx, "c-1", AddItemInput{VendorProductID: "vp-shirt", VendorVariantID: "vv-x", Quantity: 1})
	assert.ErrorIs(t, err, apperr.NotFound)
}

func TestSetItemQuantity(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()
	c, err := svc.AddItem(ctx, "c-1", AddItemInput{VendorProductID: "vp-shirt", Quantity: 1})
	require.NoError(t, err)
	id := c.Items[0].ID

	c, err = svc.SetItemQuantity(ctx, "c-1", id, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Items[0].Quantity)

	c, err = svc.SetItemQuantity(ctx, "c-1", id, 0)
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	_, err = svc.SetItemQuantity(ctx, "c-1", id, 1)
	assert.ErrorIs(t, err, apperr.NotFound)

	_, err = svc.SetItemQuantity(ctx, "someone-else", id, 1)
	assert.ErrorIs(t, err, apperr.NotFound)
}

func TestConvertedCartRejectsItems(t *testing.T) {
	svc, _, store, _ := setup(t)
	ctx := context.Background()
	c, err := svc.AddItem(ctx, "c-1", AddItemInput{VendorProductID: "vp-shirt", Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, store.SetStatus(ctx, c.ID, StatusActive, StatusConverted))
	assert.ErrorIs(t, store.SetStatus(ctx, c.ID, StatusActive, StatusConverted), ErrNotActive)

	_, err = store.UpsertItem(ctx, Item{CartID: c.ID, VendorProductID: "vp-shirt", Quantity: 1})
	assert.ErrorIs(t, err, ErrNotActive)

	// a fresh active cart is created for the next purchase
	next, err := svc.AddItem(ctx, "c-1", AddItemInput{VendorProductID: "vp-shirt", Quantity: 1})
	require.NoError(t, err)
	assert.NotEqual(t, c.ID, next.ID)

	old, ok := store.Get(c.ID)
	require.True(t, ok)
	assert.Equal(t, StatusConverted, old.Status)
}
