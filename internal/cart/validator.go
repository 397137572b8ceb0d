package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-checkout-orders/internal/apperr"
	"github.com/ariefcatur/go-checkout-orders/internal/catalog"
	"github.com/shopspring/decimal"
)

type IssueKind string

const (
	IssueOutOfStock   IssueKind = "out_of_stock"
	IssuePriceChanged IssueKind = "price_changed"
	IssueUnavailable  IssueKind = "unavailable"
)

// PriceTolerance is the largest drift accepted without flagging.
var PriceTolerance = decimal.New(1, -2)

type Issue struct {
	ItemID          string          `json:"item_id"`
	VendorProductID string          `json:"vendor_product_id"`
	VendorVariantID string          `json:"vendor_variant_id,omitempty"`
	Kind            IssueKind       `json:"kind"`
	Requested       int             `json:"requested"`
	Available       int             `json:"available"`
	RecordedPrice   decimal.Decimal `json:"recorded_price"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
}

type Result struct {
	Valid  bool    `json:"valid"`
	Cart   Cart    `json:"cart"`
	Issues []Issue `json:"issues"`
}

type StockChecker interface {
	CheckStock(ctx context.Context, items []catalog.StockItem) (catalog.StockCheck, error)
}

type Validator struct {
	store Store
	stock StockChecker
}

func NewValidator(store Store, stock StockChecker) *Validator {
	return &Validator{store: store, stock: stock}
}

// Validate re-checks every line of the customer's active cart against live
// stock and price. A changed price is written back to the cart immediately
// and stays even if the checkout is later abandoned: the customer always
// sees the latest price.
func (v *Validator) Validate(ctx context.Context, customerID string) (Result, error) {
	c, err := v.store.ActiveCart(ctx, customerID)
	if errors.Is(err, ErrNotFound) {
		return Result{}, apperr.Validationf("empty_cart", "cart is empty")
	}
	if err != nil {
		return Result{}, apperr.DependencyErr("cart_store", err)
	}
	if len(c.Items) == 0 {
		return Result{}, apperr.Validationf("empty_cart", "cart is empty")
	}

	check, err := v.stock.CheckStock(ctx, c.StockItems())
	if err != nil {
		return Result{}, apperr.DependencyErr("stock_check_failed", err)
	}
	if len(check.Results) != len(c.Items) {
		return Result{}, apperr.DependencyErr("stock_check_failed",
			fmt.Errorf("stock check returned %d results for %d items", len(check.Results), len(c.Items)))
	}

	var issues []Issue
	for i, res := range check.Results {
		it := &c.Items[i]
		issue := Issue{
			ItemID:          it.ID,
			VendorProductID: it.VendorProductID,
			VendorVariantID: it.VendorVariantID,
			Requested:       it.Quantity,
			Available:       res.Available,
			RecordedPrice:   it.UnitPrice,
			CurrentPrice:    res.Price,
		}
		if !res.Found || !res.Active {
			issue.Kind = IssueUnavailable
			issues = append(issues, issue)
			continue
		}
		if res.Available < it.Quantity {
			issue.Kind = IssueOutOfStock
			issues = append(issues, issue)
		}
		if res.Price.Sub(it.UnitPrice).Abs().GreaterThan(PriceTolerance) {
			if err := v.store.UpdateItemPrice(ctx, it.ID, res.Price); err != nil {
				return Result{}, apperr.DependencyErr("cart_store", err)
			}
			issue.Kind = IssuePriceChanged
			issues = append(issues, issue)
			it.UnitPrice = res.Price
		}
	}
	return Result{Valid: len(issues) == 0, Cart: c, Issues: issues}, nil
}
