package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repo struct{ DB *pgxpool.Pool }

const paymentCols = `id, order_id, card_id, amount, currency, status, transaction_id,
	failure_reason, refunded_amount, refund_reason, created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.CardID, &p.Amount, &p.Currency, &p.Status, &p.TransactionID,
		&p.FailureReason, &p.RefundedAmount, &p.RefundReason, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	return p, err
}

func (r *Repo) CreatePayment(ctx context.Context, p Payment) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO payments(id, order_id, card_id, amount, currency, status, transaction_id,
			failure_reason, refunded_amount, refund_reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,'','',0,'',$7,$8)`,
		p.ID, p.OrderID, p.CardID, p.Amount, p.Currency, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *Repo) UpdatePayment(ctx context.Context, p Payment) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE payments SET status=$2, transaction_id=$3, failure_reason=$4, updated_at=$5
		WHERE id=$1`, p.ID, p.Status, p.TransactionID, p.FailureReason, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) GetPayment(ctx context.Context, id string) (Payment, error) {
	return scanPayment(r.DB.QueryRow(ctx, `SELECT `+paymentCols+` FROM payments WHERE id=$1`, id))
}

func (r *Repo) LatestForOrder(ctx context.Context, orderID string) (Payment, error) {
	return scanPayment(r.DB.QueryRow(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE order_id=$1 ORDER BY created_at DESC LIMIT 1`, orderID))
}

// AddRefund is a single conditional UPDATE: the refundable check and the
// increment cannot interleave with another refund.
func (r *Repo) AddRefund(ctx context.Context, id string, amount decimal.Decimal, reason string) (Payment, error) {
	p, err := scanPayment(r.DB.QueryRow(ctx, `
		UPDATE payments SET
			refunded_amount = refunded_amount + $2,
			status = CASE WHEN refunded_amount + $2 >= amount THEN 'refunded' ELSE 'partially_refunded' END,
			refund_reason = $3,
			updated_at = now()
		WHERE id=$1 AND status IN ('completed','partially_refunded') AND refunded_amount + $2 <= amount
		RETURNING `+paymentCols, id, amount, reason))
	if errors.Is(err, ErrNotFound) {
		if _, gerr := r.GetPayment(ctx, id); errors.Is(gerr, ErrNotFound) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, ErrRefundRejected
	}
	return p, err
}

func (r *Repo) RevertRefund(ctx context.Context, id string, amount decimal.Decimal) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE payments SET
			refunded_amount = GREATEST(refunded_amount - $2, 0),
			status = CASE WHEN refunded_amount - $2 <= 0 THEN 'completed' ELSE 'partially_refunded' END,
			updated_at = now()
		WHERE id=$1`, id, amount)
	return err
}

func (r *Repo) GetCard(ctx context.Context, customerID, cardID string) (Card, error) {
	return scanCard(r.DB.QueryRow(ctx, `
		SELECT id, customer_id, last4, brand, exp_month, exp_year, token, is_default, created_at
		FROM payment_cards WHERE id=$1 AND customer_id=$2`, cardID, customerID))
}

func (r *Repo) CardByID(ctx context.Context, cardID string) (Card, error) {
	return scanCard(r.DB.QueryRow(ctx, `
		SELECT id, customer_id, last4, brand, exp_month, exp_year, token, is_default, created_at
		FROM payment_cards WHERE id=$1`, cardID))
}

// SetDefaultCard flips the default inside one transaction; the partial unique
// index on (customer_id) WHERE is_default backs the invariant.
func (r *Repo) SetDefaultCard(ctx context.Context, customerID, cardID string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE payment_cards SET is_default=false WHERE customer_id=$1 AND is_default`, customerID); err != nil {
		return err
	}
	ct, err := tx.Exec(ctx, `UPDATE payment_cards SET is_default=true WHERE id=$1 AND customer_id=$2`, cardID, customerID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func scanCard(row pgx.Row) (Card, error) {
	var c Card
	err := row.Scan(&c.ID, &c.CustomerID, &c.Last4, &c.Brand, &c.ExpMonth, &c.ExpYear, &c.Token, &c.IsDefault, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Card{}, ErrNotFound
	}
	return c, err
}
