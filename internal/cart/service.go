package cart

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-checkout-orders/internal/apperr"
	"github.com/ariefcatur/go-checkout-orders/internal/catalog"
)

type ProductLookup interface {
	GetVendorProduct(ctx context.Context, id string) (catalog.VendorProduct, error)
}

// Service handles cart edits. Prices are snapshotted from the vendor listing
// at the time an item is added.
type Service struct {
	store    Store
	products ProductLookup
	currency string
}

func NewService(store Store, products ProductLookup, currency string) *Service {
	return &Service{store: store, products: products, currency: currency}
}

type AddItemInput struct {
	VendorProductID string `json:"vendor_product_id"`
	VendorVariantID string `json:"vendor_variant_id,omitempty"`
	Quantity        int    `json:"quantity"`
}

func (s *Service) Get(ctx context.Context, customerID string) (Cart, error) {
	c, err := s.store.ActiveCart(ctx, customerID)
	if errors.Is(err, ErrNotFound) {
		return Cart{CustomerID: customerID, Status: StatusActive, Currency: s.currency}, nil
	}
	if err != nil {
		return Cart{}, apperr.DependencyErr("cart_store", err)
	}
	return c, nil
}

func (s *Service) AddItem(ctx context.Context, customerID string, in AddItemInput) (Cart, error) {
	if in.Quantity < 1 {
		return Cart{}, apperr.Validationf("invalid_quantity", "quantity must be at least 1")
	}
	vp, err := s.products.GetVendorProduct(ctx, in.VendorProductID)
	if errors.Is(err, catalog.ErrNotFound) {
		return Cart{}, apperr.NotFoundf("product_not_found", "vendor product %s not found", in.VendorProductID)
	}
	if err != nil {
		return Cart{}, apperr.DependencyErr("catalog_unavailable", err)
	}
	if vp.Status != catalog.StatusActive {
		return Cart{}, apperr.Validationf("unavailable", "%s is not available", vp.Name)
	}

	it := Item{
		ProductID:       vp.ProductID,
		VendorID:        vp.VendorID,
		VendorProductID: vp.ID,
		Name:            vp.Name,
		Quantity:        in.Quantity,
		UnitPrice:       vp.Price,
		OriginalPrice:   vp.Price,
	}
	if in.VendorVariantID != "" {
		v, ok := vp.Variant(in.VendorVariantID)
		if !ok {
			return Cart{}, apperr.NotFoundf("variant_not_found", "variant %s not found", in.VendorVariantID)
		}
		if !v.Active {
			return Cart{}, apperr.Validationf("unavailable", "variant %s is not available", in.VendorVariantID)
		}
		it.VariantID = v.VariantID
		it.VendorVariantID = v.ID
		it.UnitPrice = v.Price
		it.OriginalPrice = v.Price
	}

	c, err := s.store.GetOrCreateActive(ctx, customerID, s.currency)
	if err != nil {
		return Cart{}, apperr.DependencyErr("cart_store", err)
	}
	it.CartID = c.ID
	if _, err := s.store.UpsertItem(ctx, it); err != nil {
		if errors.Is(err, ErrNotActive) {
			return Cart{}, apperr.Conflictf("cart_not_active", "cart is no longer active")
		}
		return Cart{}, apperr.DependencyErr("cart_store", err)
	}
	return s.Get(ctx, customerID)
}

func (s *Service) SetItemQuantity(ctx context.Context, customerID, itemID string, qty int) (Cart, error) {
	if qty < 0 {
		return Cart{}, apperr.Validationf("invalid_quantity", "quantity cannot be negative")
	}
	err := s.store.SetItemQuantity(ctx, customerID, itemID, qty)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotActive):
		return Cart{}, apperr.NotFoundf("cart_item_not_found", "item %s not in active cart", itemID)
	case err != nil:
		return Cart{}, apperr.DependencyErr("cart_store", err)
	}
	return s.Get(ctx, customerID)
}
