package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, number, customer_id, cart_id, status, payment_status, shipping_address,
	subtotal, tax, shipping, discount, total, currency, reservation_id, payment_id, notes, cancel_reason,
	confirmed_at, cancelled_at, version, created_at, updated_at`

// NextNumber bumps the per-day counter row; the upsert is atomic so two
// concurrent checkouts never share a number.
func (r *Repo) NextNumber(ctx context.Context, prefix string, day time.Time) (string, error) {
	var seq int
	err := r.DB.QueryRow(ctx, `
		INSERT INTO order_sequences(prefix, day, last) VALUES ($1, $2, 1)
		ON CONFLICT (prefix, day) DO UPDATE SET last = order_sequences.last + 1
		RETURNING last`, prefix, day.Format("2006-01-02")).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("next order number: %w", err)
	}
	return FormatNumber(prefix, day, seq), nil
}

func (r *Repo) Create(ctx context.Context, o Order, h ...History) (Order, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return Order{}, err
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, number, customer_id, cart_id, status, payment_status, shipping_address,
			subtotal, tax, shipping, discount, total, currency, reservation_id, payment_id, notes, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,1)
		RETURNING version, created_at, updated_at`,
		o.ID, o.Number, o.CustomerID, o.CartID, o.Status, o.PaymentStatus, addr,
		o.Subtotal, o.Tax, o.Shipping, o.Discount, o.Total, o.Currency, o.ReservationID, o.PaymentID, o.Notes,
	).Scan(&o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.OrderID = o.ID
		if err := tx.QueryRow(ctx, `
			INSERT INTO order_items(id, order_id, product_id, variant_id, vendor_id, vendor_product_id,
				vendor_variant_id, name, quantity, unit_price, total, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			RETURNING updated_at`,
			it.ID, it.OrderID, it.ProductID, it.VariantID, it.VendorID, it.VendorProductID,
			it.VendorVariantID, it.Name, it.Quantity, it.UnitPrice, it.Total, it.Status,
		).Scan(&it.UpdatedAt); err != nil {
			return Order{}, fmt.Errorf("insert order item: %w", err)
		}
	}
	if err := appendHistory(ctx, tx, o.ID, h); err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return o, nil
}

// Save writes the order row and every item, then appends h, in one
// transaction guarded by the version column.
func (r *Repo) Save(ctx context.Context, o Order, h ...History) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		UPDATE orders SET status=$3, payment_status=$4, payment_id=$5, cancel_reason=$6,
			confirmed_at=$7, cancelled_at=$8, version=version+1, updated_at=now()
		WHERE id=$1 AND version=$2
		RETURNING version, updated_at`,
		o.ID, o.Version, o.Status, o.PaymentStatus, o.PaymentID, o.CancelReason, o.ConfirmedAt, o.CancelledAt,
	).Scan(&o.Version, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, o.ID).Scan(&exists); err != nil {
			return Order{}, err
		}
		if !exists {
			return Order{}, ErrNotFound
		}
		return Order{}, ErrStale
	}
	if err != nil {
		return Order{}, fmt.Errorf("update order: %w", err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		if err := tx.QueryRow(ctx, `
			UPDATE order_items SET status=$2, tracking_number=$3, carrier=$4, shipped_at=$5, delivered_at=$6,
				updated_at=now()
			WHERE id=$1
			RETURNING updated_at`,
			it.ID, it.Status, it.TrackingNumber, it.Carrier, it.ShippedAt, it.DeliveredAt,
		).Scan(&it.UpdatedAt); err != nil {
			return Order{}, fmt.Errorf("update order item %s: %w", it.ID, err)
		}
	}
	if err := appendHistory(ctx, tx, o.ID, h); err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return o, nil
}

func appendHistory(ctx context.Context, tx pgx.Tx, orderID string, h []History) error {
	for _, row := range h {
		var itemID *string
		if row.ItemID != "" {
			itemID = &row.ItemID
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_status_history(id, order_id, item_id, from_status, to_status, reason, actor_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			uuid.NewString(), orderID, itemID, row.FromStatus, row.ToStatus, row.Reason, row.ActorID,
		); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (r *Repo) GetByNumber(ctx context.Context, number string) (Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE number=$1`, number)
}

func (r *Repo) FindByReservation(ctx context.Context, reservationID string) (Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE reservation_id=$1 ORDER BY created_at DESC LIMIT 1`, reservationID)
}

func (r *Repo) getOne(ctx context.Context, q string, arg any) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if err := r.loadItems(ctx, []*Order{&o}); err != nil {
		return Order{}, err
	}
	return o, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o    Order
		addr []byte
	)
	err := row.Scan(&o.ID, &o.Number, &o.CustomerID, &o.CartID, &o.Status, &o.PaymentStatus, &addr,
		&o.Subtotal, &o.Tax, &o.Shipping, &o.Discount, &o.Total, &o.Currency, &o.ReservationID, &o.PaymentID,
		&o.Notes, &o.CancelReason, &o.ConfirmedAt, &o.CancelledAt, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return Order{}, fmt.Errorf("decode shipping address: %w", err)
	}
	return o, nil
}

const itemColumns = `id, order_id, product_id, variant_id, vendor_id, vendor_product_id, vendor_variant_id,
	name, quantity, unit_price, total, status, tracking_number, carrier, shipped_at, delivered_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.VendorID, &it.VendorProductID,
		&it.VendorVariantID, &it.Name, &it.Quantity, &it.UnitPrice, &it.Total, &it.Status, &it.TrackingNumber,
		&it.Carrier, &it.ShippedAt, &it.DeliveredAt, &it.UpdatedAt)
	return it, err
}

func (r *Repo) loadItems(ctx context.Context, batch []*Order) error {
	if len(batch) == 0 {
		return nil
	}
	ids := make([]string, 0, len(batch))
	byID := make(map[string]*Order, len(batch))
	for _, o := range batch {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}
	rows, err := r.DB.Query(ctx, `SELECT `+itemColumns+` FROM order_items WHERE order_id = ANY($1) ORDER BY created_at, id`, ids)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return err
		}
		o := byID[it.OrderID]
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func (r *Repo) GetItem(ctx context.Context, itemID string) (Item, error) {
	it, err := scanItem(r.DB.QueryRow(ctx, `SELECT `+itemColumns+` FROM order_items WHERE id=$1`, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return it, err
}

func (r *Repo) List(ctx context.Context, f Filter) (Page, error) {
	f = f.normalized()
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.CustomerID != "" {
		add("customer_id = $%d", f.CustomerID)
	}
	if f.VendorID != "" {
		add("EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = orders.id AND oi.vendor_id = $%d)", f.VendorID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.PaymentStatus != "" {
		add("payment_status = $%d", f.PaymentStatus)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	p := Page{Limit: f.Limit, Offset: f.Offset, Orders: []Order{}}
	if err := r.DB.QueryRow(ctx, `SELECT count(*) FROM orders`+cond, args...).Scan(&p.Total); err != nil {
		return Page{}, fmt.Errorf("count orders: %w", err)
	}
	args = append(args, f.Limit, f.Offset)
	q := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, number DESC LIMIT $%d OFFSET $%d`,
		orderColumns, cond, len(args)-1, len(args))
	found, err := r.queryOrders(ctx, q, args...)
	if err != nil {
		return Page{}, err
	}
	p.Orders = found
	return p, nil
}

func (r *Repo) StalePending(ctx context.Context, before time.Time, limit int) ([]Order, error) {
	return r.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE status='pending' AND created_at < $1 ORDER BY created_at LIMIT $2`, before, limit)
}

func (r *Repo) queryOrders(ctx context.Context, q string, args ...any) ([]Order, error) {
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ptrs := make([]*Order, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := r.loadItems(ctx, ptrs); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) History(ctx context.Context, orderID string) ([]History, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, coalesce(item_id, ''), from_status, to_status, reason, actor_id, created_at
		FROM order_status_history WHERE order_id=$1 ORDER BY created_at, seq`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	out := []History{}
	for rows.Next() {
		var h History
		if err := rows.Scan(&h.ID, &h.OrderID, &h.ItemID, &h.FromStatus, &h.ToStatus, &h.Reason, &h.ActorID, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
