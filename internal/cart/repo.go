package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) ActiveCart(ctx context.Context, customerID string) (Cart, error) {
	var c Cart
	err := r.DB.QueryRow(ctx, `
		SELECT id, customer_id, status, currency, created_at, updated_at
		FROM carts WHERE customer_id=$1 AND status='active'`, customerID).
		Scan(&c.ID, &c.CustomerID, &c.Status, &c.Currency, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cart{}, ErrNotFound
	}
	if err != nil {
		return Cart{}, fmt.Errorf("query cart: %w", err)
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, cart_id, product_id, variant_id, vendor_id, vendor_product_id, vendor_variant_id,
		       name, quantity, unit_price, original_price
		FROM cart_items WHERE cart_id=$1 ORDER BY created_at, id`, c.ID)
	if err != nil {
		return Cart{}, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.VariantID, &it.VendorID, &it.VendorProductID,
			&it.VendorVariantID, &it.Name, &it.Quantity, &it.UnitPrice, &it.OriginalPrice); err != nil {
			return Cart{}, err
		}
		c.Items = append(c.Items, it)
	}
	return c, rows.Err()
}

// GetOrCreateActive relies on the partial unique index
// carts(customer_id) WHERE status='active' for the one-active-cart rule.
func (r *Repo) GetOrCreateActive(ctx context.Context, customerID, currency string) (Cart, error) {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO carts(id, customer_id, status, currency)
		VALUES ($1, $2, 'active', $3)
		ON CONFLICT (customer_id) WHERE status='active' DO NOTHING`, uuid.NewString(), customerID, currency)
	if err != nil {
		return Cart{}, fmt.Errorf("create cart: %w", err)
	}
	return r.ActiveCart(ctx, customerID)
}

func (r *Repo) UpsertItem(ctx context.Context, it Item) (Item, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO cart_items(id, cart_id, product_id, variant_id, vendor_id, vendor_product_id, vendor_variant_id,
		                       name, quantity, unit_price, original_price)
		SELECT $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
		WHERE EXISTS (SELECT 1 FROM carts WHERE id=$2 AND status='active')
		ON CONFLICT (cart_id, vendor_product_id, vendor_variant_id) DO UPDATE
		SET quantity = cart_items.quantity + EXCLUDED.quantity,
		    unit_price = EXCLUDED.unit_price,
		    updated_at = now()
		RETURNING id, quantity`,
		it.ID, it.CartID, it.ProductID, it.VariantID, it.VendorID, it.VendorProductID, it.VendorVariantID,
		it.Name, it.Quantity, it.UnitPrice, it.OriginalPrice,
	).Scan(&it.ID, &it.Quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotActive
	}
	if err != nil {
		return Item{}, fmt.Errorf("upsert cart item: %w", err)
	}
	return it, nil
}

func (r *Repo) SetItemQuantity(ctx context.Context, customerID, itemID string, qty int) error {
	var (
		q    string
		args = []any{itemID, customerID}
	)
	if qty <= 0 {
		q = `DELETE FROM cart_items ci USING carts c
		     WHERE ci.id=$1 AND ci.cart_id=c.id AND c.customer_id=$2 AND c.status='active'`
	} else {
		q = `UPDATE cart_items ci SET quantity=$3, updated_at=now() FROM carts c
		     WHERE ci.id=$1 AND ci.cart_id=c.id AND c.customer_id=$2 AND c.status='active'`
		args = append(args, qty)
	}
	ct, err := r.DB.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("set quantity: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) UpdateItemPrice(ctx context.Context, itemID string, price decimal.Decimal) error {
	ct, err := r.DB.Exec(ctx, `UPDATE cart_items SET unit_price=$2, updated_at=now() WHERE id=$1`, itemID, price)
	if err != nil {
		return fmt.Errorf("update price: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) SetStatus(ctx context.Context, cartID string, from, to Status) error {
	ct, err := r.DB.Exec(ctx, `UPDATE carts SET status=$3, updated_at=now() WHERE id=$1 AND status=$2`, cartID, from, to)
	if err != nil {
		return fmt.Errorf("set cart status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotActive
	}
	return nil
}
