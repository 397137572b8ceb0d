package checkout

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-checkout-orders/internal/apperr"
	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/ariefcatur/go-checkout-orders/internal/payment"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CancelOrder cancels a pending or confirmed order: refunds what was paid,
// cancels every item, records one history row and releases any reservation
// still outstanding.
func (c *Coordinator) CancelOrder(ctx context.Context, orderID, reason, actorID string) (orders.Order, error) {
	o, err := c.Ledger.Get(ctx, orderID)
	if err != nil {
		return orders.Order{}, ledgerErr(err, "order")
	}
	if o.Status == orders.StatusCancelled {
		return orders.Order{}, apperr.Conflictf("already_cancelled", "order %s is already cancelled", o.Number)
	}
	if !o.Status.Cancellable() {
		return orders.Order{}, apperr.Conflictf("order_not_cancellable", "order in status %s cannot be cancelled", o.Status)
	}
	return c.cancel(ctx, o, reason, actorID)
}

func (c *Coordinator) cancel(ctx context.Context, o orders.Order, reason, actorID string, extra ...orders.History) (orders.Order, error) {
	log := c.log.With(zap.String("order_id", o.ID), zap.String("actor_id", actorID))
	if reason == "" {
		reason = "cancelled"
	}
	if o.Status == orders.StatusPending {
		if err := c.adoptPayment(ctx, &o); err != nil {
			return orders.Order{}, err
		}
	}
	if err := c.refundRemaining(ctx, &o, "order cancelled: "+reason); err != nil {
		return orders.Order{}, err
	}

	from := o.Status
	now := c.now().UTC()
	o.Status = orders.StatusCancelled
	o.CancelReason = reason
	o.CancelledAt = &now
	for i := range o.Items {
		o.Items[i].Status = orders.ItemCancelled
	}
	h := append(extra, orders.History{
		FromStatus: string(from), ToStatus: string(orders.StatusCancelled), Reason: reason, ActorID: actorID,
	})
	saved, err := c.Ledger.Save(ctx, o, h...)
	if err != nil {
		log.Error("save cancelled order", zap.String("payment_status", string(o.PaymentStatus)), zap.Error(err))
		return orders.Order{}, ledgerErr(err, "order")
	}

	if saved.ReservationID != "" {
		c.release(ctx, saved.ReservationID, log.With(zap.String("reservation_id", saved.ReservationID)))
	}
	c.Events.Publish(ctx, orders.EventOrderCancelled, orders.NewStatusPayload(saved, reason))
	log.Info("order cancelled", zap.String("reason", reason))
	return saved, nil
}

// adoptPayment picks up a charge a pending order has not recorded yet, so the
// cancellation refunds it. A charge still in flight blocks the cancellation.
func (c *Coordinator) adoptPayment(ctx context.Context, o *orders.Order) error {
	pay, err := c.Payments.LatestForOrder(ctx, o.ID)
	switch {
	case errors.Is(err, payment.ErrNotFound):
		return nil
	case err != nil:
		if apperr.KindOf(err) != "" {
			return err
		}
		return apperr.DependencyErr("payment_store", err)
	}
	switch pay.Status {
	case payment.StatusPending, payment.StatusProcessing:
		return apperr.Conflictf("payment_in_progress", "payment for order %s is still being processed, retry shortly", o.Number)
	case payment.StatusFailed:
		return nil
	}
	o.PaymentID = pay.ID
	o.PaymentStatus = paymentStatusOf(pay)
	return nil
}

// refundRemaining refunds whatever is still refundable on the order's
// payment and updates its payment status. Safe to repeat: a payment already
// fully refunded is left alone.
func (c *Coordinator) refundRemaining(ctx context.Context, o *orders.Order, reason string) error {
	if !o.PaymentStatus.Settled() || o.PaymentID == "" {
		return nil
	}
	pay, err := c.Payments.Get(ctx, o.PaymentID)
	if err != nil {
		if apperr.KindOf(err) != "" {
			return err
		}
		return apperr.DependencyErr("payment_store", err)
	}
	if amt := pay.Refundable(); amt.IsPositive() {
		if pay, err = c.Payments.Refund(ctx, pay.ID, amt, reason); err != nil {
			return err
		}
	}
	o.PaymentStatus = paymentStatusOf(pay)
	return nil
}

func paymentStatusOf(p payment.Payment) orders.PaymentStatus {
	switch p.Status {
	case payment.StatusCompleted:
		return orders.PaymentPaid
	case payment.StatusRefunded:
		return orders.PaymentRefunded
	case payment.StatusPartiallyRefunded:
		return orders.PaymentPartiallyRefunded
	case payment.StatusFailed:
		return orders.PaymentFailed
	}
	return orders.PaymentPending
}

// UpdateOrderStatus moves an order along its transition table and appends
// exactly one history row. Moving to cancelled runs the cancellation side
// effects; moving to refunded refunds the remaining paid amount.
func (c *Coordinator) UpdateOrderStatus(ctx context.Context, orderID string, to orders.Status, reason, actorID string) (orders.Order, error) {
	if !to.Valid() {
		return orders.Order{}, apperr.Validationf("invalid_status", "unknown order status %q", to)
	}
	o, err := c.Ledger.Get(ctx, orderID)
	if err != nil {
		return orders.Order{}, ledgerErr(err, "order")
	}
	if !orders.CanTransition(o.Status, to) {
		return orders.Order{}, apperr.Conflictf("invalid_transition", "order cannot move from %s to %s", o.Status, to)
	}
	if to == orders.StatusCancelled {
		return c.cancel(ctx, o, reason, actorID)
	}

	from := o.Status
	switch to {
	case orders.StatusRefunded:
		if err := c.refundRemaining(ctx, &o, "order refunded: "+reason); err != nil {
			return orders.Order{}, err
		}
	case orders.StatusConfirmed:
		now := c.now().UTC()
		o.ConfirmedAt = &now
	}
	o.Status = to
	saved, err := c.Ledger.Save(ctx, o, orders.History{
		FromStatus: string(from), ToStatus: string(to), Reason: reason, ActorID: actorID,
	})
	if err != nil {
		return orders.Order{}, ledgerErr(err, "order")
	}
	c.Events.Publish(ctx, orders.EventOrderStatusChanged, orders.NewStatusPayload(saved, reason))
	return saved, nil
}

// UpdateOrderItemStatus moves one item along the item transition table,
// appends one item-scoped history row, then promotes the order when all of
// its items have reached a shared stage.
func (c *Coordinator) UpdateOrderItemStatus(ctx context.Context, itemID string, to orders.ItemStatus, tracking *orders.Tracking, actorID string) (orders.Item, error) {
	if !to.Valid() {
		return orders.Item{}, apperr.Validationf("invalid_status", "unknown item status %q", to)
	}
	ref, err := c.Ledger.GetItem(ctx, itemID)
	if err != nil {
		return orders.Item{}, ledgerErr(err, "order_item")
	}
	o, err := c.Ledger.Get(ctx, ref.OrderID)
	if err != nil {
		return orders.Item{}, ledgerErr(err, "order")
	}
	if o.Status.Terminal() {
		return orders.Item{}, apperr.Conflictf("order_closed", "order is %s", o.Status)
	}
	if o.Status == orders.StatusPending {
		return orders.Item{}, apperr.Conflictf("order_not_confirmed", "order is awaiting payment")
	}
	it := o.Item(itemID)
	if it == nil {
		return orders.Item{}, apperr.NotFoundf("order_item_not_found", "order_item not found")
	}
	if !orders.CanTransitionItem(it.Status, to) {
		return orders.Item{}, apperr.Conflictf("invalid_transition", "item cannot move from %s to %s", it.Status, to)
	}

	from := it.Status
	now := c.now().UTC()
	it.Status = to
	if tracking != nil {
		if tracking.Number != "" {
			it.TrackingNumber = tracking.Number
		}
		if tracking.Carrier != "" {
			it.Carrier = tracking.Carrier
		}
	}
	switch to {
	case orders.ItemShipped:
		it.ShippedAt = &now
	case orders.ItemDelivered:
		it.DeliveredAt = &now
	}
	item := *it
	itemRow := orders.History{
		ItemID: itemID, FromStatus: string(from), ToStatus: string(to), ActorID: actorID,
	}

	derived, ok := orders.DeriveStatus(o.Items)
	if ok && orders.Promotes(o.Status, derived) {
		if derived == orders.StatusCancelled {
			saved, err := c.cancel(ctx, o, "all items cancelled", actorID, itemRow)
			if err != nil {
				return orders.Item{}, err
			}
			c.publishItem(ctx, saved, item)
			return *saved.Item(itemID), nil
		}
		prev := o.Status
		o.Status = derived
		saved, err := c.Ledger.Save(ctx, o, itemRow, orders.History{
			FromStatus: string(prev), ToStatus: string(derived), Reason: "all items " + string(derived), ActorID: actorID,
		})
		if err != nil {
			return orders.Item{}, ledgerErr(err, "order")
		}
		c.publishItem(ctx, saved, item)
		c.Events.Publish(ctx, orders.EventOrderStatusChanged, orders.NewStatusPayload(saved, "derived from items"))
		return *saved.Item(itemID), nil
	}

	saved, err := c.Ledger.Save(ctx, o, itemRow)
	if err != nil {
		return orders.Item{}, ledgerErr(err, "order")
	}
	c.publishItem(ctx, saved, item)
	return *saved.Item(itemID), nil
}

func (c *Coordinator) publishItem(ctx context.Context, o orders.Order, it orders.Item) {
	p := orders.NewStatusPayload(o, "")
	p.ItemID = it.ID
	p.ItemStatus = string(it.Status)
	c.Events.Publish(ctx, orders.EventOrderItemStatusChanged, p)
}

// RefundPayment issues a partial or full refund against an order payment and
// mirrors the resulting payment status onto the order.
func (c *Coordinator) RefundPayment(ctx context.Context, paymentID string, amount decimal.Decimal, reason string) (payment.Payment, error) {
	pay, err := c.Payments.Refund(ctx, paymentID, amount, reason)
	if err != nil {
		return payment.Payment{}, err
	}
	o, err := c.Ledger.Get(ctx, pay.OrderID)
	if errors.Is(err, orders.ErrNotFound) {
		return pay, nil
	}
	if err != nil {
		c.log.Error("load order for refund", zap.String("payment_id", paymentID), zap.Error(err))
		return pay, nil
	}
	o.PaymentStatus = paymentStatusOf(pay)
	if _, err := c.Ledger.Save(ctx, o); err != nil {
		c.log.Error("mirror refund onto order", zap.String("order_id", o.ID), zap.String("payment_id", paymentID), zap.Error(err))
	}
	return pay, nil
}
