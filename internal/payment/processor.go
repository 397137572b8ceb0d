package payment

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/apperr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Processor struct {
	store   Store
	cards   CardStore
	gateway Gateway
	now     func() time.Time
	log     *zap.Logger
}

func NewProcessor(store Store, cards CardStore, gateway Gateway, log *zap.Logger) *Processor {
	return &Processor{store: store, cards: cards, gateway: gateway, now: time.Now, log: log}
}

// Charge writes a processing record before the gateway is called, so every
// attempt is on disk even when the process dies mid-charge.
func (p *Processor) Charge(ctx context.Context, orderID, cardID string, amount decimal.Decimal, currency string) (Payment, error) {
	if !amount.IsPositive() {
		return Payment{}, apperr.Validationf("invalid_amount", "amount must be positive")
	}
	card, err := p.cards.CardByID(ctx, cardID)
	if errors.Is(err, ErrNotFound) {
		return Payment{}, apperr.NotFoundf("card_not_found", "payment card %s not found", cardID)
	}
	if err != nil {
		return Payment{}, apperr.DependencyErr("payment_store", err)
	}

	now := p.now().UTC()
	pay := Payment{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		CardID:    cardID,
		Amount:    amount,
		Currency:  currency,
		Status:    StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.store.CreatePayment(ctx, pay); err != nil {
		return Payment{}, apperr.DependencyErr("payment_store", err)
	}

	txID, err := p.gateway.Charge(ctx, ChargeRequest{
		PaymentID: pay.ID, OrderID: orderID, Amount: amount, Currency: currency, CardToken: card.Token,
	})
	if err != nil {
		pay.Status = StatusFailed
		pay.FailureReason = err.Error()
		if de, ok := IsDecline(err); ok {
			pay.FailureReason = de.Code
		}
		pay.UpdatedAt = p.now().UTC()
		if uerr := p.store.UpdatePayment(context.WithoutCancel(ctx), pay); uerr != nil {
			p.log.Error("record failed payment", zap.String("payment_id", pay.ID), zap.String("order_id", orderID), zap.Error(uerr))
		}
		if de, ok := IsDecline(err); ok {
			return pay, apperr.Wrap(apperr.PaymentDeclined, de.Code, de.Reason, err)
		}
		return pay, apperr.DependencyErr("payment_gateway", err)
	}

	pay.Status = StatusCompleted
	pay.TransactionID = txID
	pay.UpdatedAt = p.now().UTC()
	if err := p.store.UpdatePayment(context.WithoutCancel(ctx), pay); err != nil {
		// money moved; the processing row is left for reconciliation
		p.log.Error("record completed payment", zap.String("payment_id", pay.ID),
			zap.String("order_id", orderID), zap.String("transaction_id", txID), zap.Error(err))
	}
	return pay, nil
}

// Refund returns part or all of a completed payment. A refund that would push
// the refunded total past the charged amount is rejected without changes.
func (p *Processor) Refund(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (Payment, error) {
	if !amount.IsPositive() {
		return Payment{}, apperr.Validationf("invalid_amount", "refund amount must be positive")
	}
	pay, err := p.store.GetPayment(ctx, paymentID)
	if errors.Is(err, ErrNotFound) {
		return Payment{}, apperr.NotFoundf("payment_not_found", "payment %s not found", paymentID)
	}
	if err != nil {
		return Payment{}, apperr.DependencyErr("payment_store", err)
	}
	if pay.Status != StatusCompleted && pay.Status != StatusPartiallyRefunded {
		return Payment{}, apperr.Conflictf("payment_not_refundable", "payment is %s", pay.Status)
	}
	if amount.GreaterThan(pay.Refundable()) {
		return Payment{}, apperr.Validationf("refund_exceeds_amount",
			"refund of %s exceeds refundable %s", amount.StringFixed(2), pay.Refundable().StringFixed(2))
	}

	updated, err := p.store.AddRefund(ctx, paymentID, amount, reason)
	if errors.Is(err, ErrRefundRejected) {
		// lost a race with a concurrent refund
		return Payment{}, apperr.Validationf("refund_exceeds_amount", "refund exceeds refundable amount")
	}
	if err != nil {
		return Payment{}, apperr.DependencyErr("payment_store", err)
	}

	if _, err := p.gateway.Refund(ctx, pay.TransactionID, amount, pay.Currency); err != nil {
		if rerr := p.store.RevertRefund(context.WithoutCancel(ctx), paymentID, amount); rerr != nil {
			p.log.Error("revert refund", zap.String("payment_id", paymentID), zap.Error(rerr))
		}
		return Payment{}, apperr.DependencyErr("payment_gateway", err)
	}
	p.log.Info("refund issued", zap.String("payment_id", paymentID),
		zap.String("amount", amount.StringFixed(2)), zap.String("reason", reason))
	return updated, nil
}

func (p *Processor) Get(ctx context.Context, paymentID string) (Payment, error) {
	pay, err := p.store.GetPayment(ctx, paymentID)
	if errors.Is(err, ErrNotFound) {
		return Payment{}, apperr.NotFoundf("payment_not_found", "payment %s not found", paymentID)
	}
	return pay, err
}

// LatestForOrder returns the newest attempt for an order, or ErrNotFound.
func (p *Processor) LatestForOrder(ctx context.Context, orderID string) (Payment, error) {
	return p.store.LatestForOrder(ctx, orderID)
}
