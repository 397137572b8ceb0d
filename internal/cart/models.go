package cart

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/catalog"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("cart: not found")
	ErrNotActive = errors.New("cart: not active")
)

type Status string

const (
	StatusActive    Status = "active"
	StatusConverted Status = "converted"
	StatusAbandoned Status = "abandoned"
	StatusExpired   Status = "expired"
)

type Cart struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Status     Status    `json:"status"`
	Currency   string    `json:"currency"`
	Items      []Item    `json:"items"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Item is unique per (cart, vendor product, vendor variant or none).
type Item struct {
	ID              string          `json:"id"`
	CartID          string          `json:"cart_id"`
	ProductID       string          `json:"product_id"`
	VariantID       string          `json:"variant_id,omitempty"`
	VendorID        string          `json:"vendor_id"`
	VendorProductID string          `json:"vendor_product_id"`
	VendorVariantID string          `json:"vendor_variant_id,omitempty"`
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	OriginalPrice   decimal.Decimal `json:"original_price"`
}

func (it Item) StockItem() catalog.StockItem {
	return catalog.StockItem{VendorProductID: it.VendorProductID, VendorVariantID: it.VendorVariantID, Quantity: it.Quantity}
}

func (it Item) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

func (c Cart) StockItems() []catalog.StockItem {
	out := make([]catalog.StockItem, 0, len(c.Items))
	for _, it := range c.Items {
		out = append(out, it.StockItem())
	}
	return out
}

type Store interface {
	// ActiveCart returns the customer's single active cart or ErrNotFound.
	ActiveCart(ctx context.Context, customerID string) (Cart, error)
	GetOrCreateActive(ctx context.Context, customerID, currency string) (Cart, error)
	// UpsertItem adds quantity to the line with the same vendor product and
	// variant, or inserts it. ErrNotActive when the cart is no longer active.
	UpsertItem(ctx context.Context, it Item) (Item, error)
	// SetItemQuantity sets an item's quantity; zero removes the line.
	SetItemQuantity(ctx context.Context, customerID, itemID string, qty int) error
	UpdateItemPrice(ctx context.Context, itemID string, price decimal.Decimal) error
	// SetStatus moves the cart from one status to another, ErrNotActive if
	// it is not currently in from.
	SetStatus(ctx context.Context, cartID string, from, to Status) error
}
