package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound       = errors.New("payment: not found")
	ErrRefundRejected = errors.New("payment: refund rejected")
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusProcessing        Status = "processing"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
)

// Payment is one charge attempt against an order.
type Payment struct {
	ID             string          `json:"id"`
	OrderID        string          `json:"order_id"`
	CardID         string          `json:"card_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Status         Status          `json:"status"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	RefundReason   string          `json:"refund_reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (p Payment) Refundable() decimal.Decimal {
	switch p.Status {
	case StatusCompleted, StatusPartiallyRefunded:
		return p.Amount.Sub(p.RefundedAmount)
	}
	return decimal.Zero
}

// Card references a tokenized instrument. Raw card data never reaches us.
type Card struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Last4      string    `json:"last4"`
	Brand      string    `json:"brand"`
	ExpMonth   int       `json:"exp_month"`
	ExpYear    int       `json:"exp_year"`
	Token      string    `json:"-"`
	IsDefault  bool      `json:"is_default"`
	CreatedAt  time.Time `json:"created_at"`
}

// Expired reports whether the card is past its expiry month.
func (c Card) Expired(now time.Time) bool {
	firstInvalid := time.Date(c.ExpYear, time.Month(c.ExpMonth)+1, 1, 0, 0, 0, 0, time.UTC)
	return !now.UTC().Before(firstInvalid)
}

type Store interface {
	CreatePayment(ctx context.Context, p Payment) error
	UpdatePayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id string) (Payment, error)
	LatestForOrder(ctx context.Context, orderID string) (Payment, error)
	// AddRefund adds amount to the refunded total only if the payment is
	// refundable and the total stays within the charged amount.
	AddRefund(ctx context.Context, id string, amount decimal.Decimal, reason string) (Payment, error)
	RevertRefund(ctx context.Context, id string, amount decimal.Decimal) error
}

type CardStore interface {
	GetCard(ctx context.Context, customerID, cardID string) (Card, error)
	CardByID(ctx context.Context, cardID string) (Card, error)
	SetDefaultCard(ctx context.Context, customerID, cardID string) error
}

func refundStatus(amount, refunded decimal.Decimal) Status {
	switch {
	case refunded.IsZero():
		return StatusCompleted
	case refunded.GreaterThanOrEqual(amount):
		return StatusRefunded
	}
	return StatusPartiallyRefunded
}
