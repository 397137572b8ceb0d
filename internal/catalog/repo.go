package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `SELECT id, slug, name FROM products WHERE slug=$1`, slug).
		Scan(&p.ID, &p.Slug, &p.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("query product: %w", err)
	}

	rows, err := r.DB.Query(ctx, `SELECT id, sku, name FROM product_variants WHERE product_id=$1 ORDER BY sku`, p.ID)
	if err != nil {
		return Product{}, fmt.Errorf("query variants: %w", err)
	}
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.SKU, &v.Name); err != nil {
			rows.Close()
			return Product{}, err
		}
		p.Variants = append(p.Variants, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Product{}, err
	}

	ids, err := r.vendorProductIDs(ctx, p.ID)
	if err != nil {
		return Product{}, err
	}
	for _, id := range ids {
		vp, err := r.GetVendorProduct(ctx, id)
		if err != nil {
			return Product{}, err
		}
		p.VendorProducts = append(p.VendorProducts, vp)
	}
	return p, nil
}

func (r *Repo) vendorProductIDs(ctx context.Context, productID string) ([]string, error) {
	rows, err := r.DB.Query(ctx, `SELECT id FROM vendor_products WHERE product_id=$1 ORDER BY price`, productID)
	if err != nil {
		return nil, fmt.Errorf("query vendor products: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repo) GetVendorProduct(ctx context.Context, id string) (VendorProduct, error) {
	var vp VendorProduct
	err := r.DB.QueryRow(ctx, `
		SELECT id, product_id, vendor_id, name, price, stock, status
		FROM vendor_products WHERE id=$1`, id).
		Scan(&vp.ID, &vp.ProductID, &vp.VendorID, &vp.Name, &vp.Price, &vp.Stock, &vp.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return VendorProduct{}, ErrNotFound
	}
	if err != nil {
		return VendorProduct{}, fmt.Errorf("query vendor product: %w", err)
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, variant_id, price, stock, active
		FROM vendor_variants WHERE vendor_product_id=$1 ORDER BY id`, id)
	if err != nil {
		return VendorProduct{}, fmt.Errorf("query vendor variants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v VendorVariant
		if err := rows.Scan(&v.ID, &v.VariantID, &v.Price, &v.Stock, &v.Active); err != nil {
			return VendorProduct{}, err
		}
		vp.Variants = append(vp.Variants, v)
	}
	return vp, rows.Err()
}

func (r *Repo) CheckStock(ctx context.Context, items []StockItem) (StockCheck, error) {
	results := make([]StockResult, 0, len(items))
	for _, it := range items {
		res := StockResult{Item: it}
		var err error
		if it.VendorVariantID == "" {
			var status Status
			err = r.DB.QueryRow(ctx, `SELECT stock, price, status FROM vendor_products WHERE id=$1`, it.VendorProductID).
				Scan(&res.Available, &res.Price, &status)
			res.Active = status == StatusActive
		} else {
			err = r.DB.QueryRow(ctx, `
				SELECT vv.stock, vv.price, vv.active AND vp.status = 'active'
				FROM vendor_variants vv JOIN vendor_products vp ON vp.id = vv.vendor_product_id
				WHERE vv.id=$1 AND vv.vendor_product_id=$2`, it.VendorVariantID, it.VendorProductID).
				Scan(&res.Available, &res.Price, &res.Active)
		}
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return StockCheck{}, fmt.Errorf("check stock %s: %w", it.Key(), err)
		default:
			res.Found = true
		}
		results = append(results, res)
	}
	return newStockCheck(results), nil
}

// lockOrder merges items and sorts them by key. Every transaction then locks
// stock rows in the same order, so two carts holding the same items in
// opposite order cannot deadlock each other.
func lockOrder(items []StockItem) []StockItem {
	out := Merge(items)
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// TakeStock decrements all counters in one transaction. Each decrement is a
// conditional UPDATE (stock >= qty), so concurrent callers cannot oversell:
// the row lock taken by the UPDATE serializes them and the loser sees zero
// rows affected.
func (r *Repo) TakeStock(ctx context.Context, items []StockItem) ([]Shortage, error) {
	items = lockOrder(items)
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var short []Shortage
	for _, it := range items {
		ok, err := decrement(ctx, tx, it)
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		avail, err := currentStock(ctx, tx, it)
		if err != nil {
			return nil, err
		}
		short = append(short, Shortage{Item: it, Available: avail})
	}
	if len(short) > 0 {
		return short, nil // rollback via defer
	}
	return nil, tx.Commit(ctx)
}

func (r *Repo) ReturnStock(ctx context.Context, items []StockItem) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, it := range lockOrder(items) {
		var q string
		args := []any{it.Quantity}
		if it.VendorVariantID == "" {
			q = `UPDATE vendor_products SET stock = stock + $1, updated_at = now() WHERE id=$2`
			args = append(args, it.VendorProductID)
		} else {
			q = `UPDATE vendor_variants SET stock = stock + $1, updated_at = now() WHERE id=$2 AND vendor_product_id=$3`
			args = append(args, it.VendorVariantID, it.VendorProductID)
		}
		if _, err := tx.Exec(ctx, q, args...); err != nil {
			return fmt.Errorf("return stock %s: %w", it.Key(), err)
		}
	}
	return tx.Commit(ctx)
}

func decrement(ctx context.Context, tx pgx.Tx, it StockItem) (bool, error) {
	var (
		q    string
		args = []any{it.Quantity}
	)
	if it.VendorVariantID == "" {
		q = `UPDATE vendor_products SET stock = stock - $1, updated_at = now()
		     WHERE id=$2 AND status='active' AND stock >= $1`
		args = append(args, it.VendorProductID)
	} else {
		q = `UPDATE vendor_variants SET stock = stock - $1, updated_at = now()
		     WHERE id=$2 AND vendor_product_id=$3 AND active AND stock >= $1`
		args = append(args, it.VendorVariantID, it.VendorProductID)
	}
	ct, err := tx.Exec(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("take stock %s: %w", it.Key(), err)
	}
	return ct.RowsAffected() == 1, nil
}

func currentStock(ctx context.Context, tx pgx.Tx, it StockItem) (int, error) {
	var n int
	var err error
	if it.VendorVariantID == "" {
		err = tx.QueryRow(ctx, `SELECT stock FROM vendor_products WHERE id=$1`, it.VendorProductID).Scan(&n)
	} else {
		err = tx.QueryRow(ctx, `SELECT stock FROM vendor_variants WHERE id=$1`, it.VendorVariantID).Scan(&n)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, err
}
