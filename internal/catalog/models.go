package catalog

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("catalog: not found")

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDraft    Status = "draft"
)

type Variant struct {
	ID   string `json:"id"`
	SKU  string `json:"sku"`
	Name string `json:"name"`
}

type Product struct {
	ID             string          `json:"id"`
	Slug           string          `json:"slug"`
	Name           string          `json:"name"`
	Variants       []Variant       `json:"variants"`
	VendorProducts []VendorProduct `json:"vendor_products"`
}

// VendorProduct is one seller's listing: own price and stock, independent of
// other vendors selling the same product.
type VendorProduct struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	VendorID  string          `json:"vendor_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Status    Status          `json:"status"`
	Variants  []VendorVariant `json:"variants"`
}

type VendorVariant struct {
	ID        string          `json:"id"`
	VariantID string          `json:"variant_id"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Active    bool            `json:"active"`
}

// Variant returns the vendor variant with the given id.
func (vp VendorProduct) Variant(id string) (VendorVariant, bool) {
	for _, v := range vp.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return VendorVariant{}, false
}

// StockItem addresses one stock counter: the vendor product itself, or one of
// its variants when VendorVariantID is set.
type StockItem struct {
	VendorProductID string `json:"vendor_product_id"`
	VendorVariantID string `json:"vendor_variant_id,omitempty"`
	Quantity        int    `json:"quantity"`
}

func (s StockItem) Key() string {
	if s.VendorVariantID == "" {
		return s.VendorProductID
	}
	return s.VendorProductID + "/" + s.VendorVariantID
}

type StockResult struct {
	Item      StockItem       `json:"item"`
	Found     bool            `json:"found"`
	Active    bool            `json:"active"`
	Available int             `json:"available"`
	Price     decimal.Decimal `json:"price"`
}

func (r StockResult) Sufficient() bool {
	return r.Found && r.Active && r.Available >= r.Item.Quantity
}

type StockCheck struct {
	AllAvailable bool          `json:"all_available"`
	Results      []StockResult `json:"results"`
}

// Shortage reports a stock counter that could not cover a request.
type Shortage struct {
	Item      StockItem `json:"item"`
	Available int       `json:"available"`
}

func newStockCheck(results []StockResult) StockCheck {
	all := true
	for _, r := range results {
		if !r.Sufficient() {
			all = false
		}
	}
	return StockCheck{AllAvailable: all, Results: results}
}

// Merge folds items addressing the same counter into one, keeping first-seen
// order, so an all-or-nothing decrement checks the combined quantity.
func Merge(items []StockItem) []StockItem {
	idx := make(map[string]int, len(items))
	out := make([]StockItem, 0, len(items))
	for _, it := range items {
		if i, ok := idx[it.Key()]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.Key()] = len(out)
		out = append(out, it)
	}
	return out
}
