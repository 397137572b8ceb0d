package checkout

import (
	"context"

	"github.com/ariefcatur/go-checkout-orders/internal/orders"
)

func (c *Coordinator) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	o, err := c.Ledger.Get(ctx, id)
	if err != nil {
		return orders.Order{}, ledgerErr(err, "order")
	}
	return o, nil
}

func (c *Coordinator) GetOrderByNumber(ctx context.Context, number string) (orders.Order, error) {
	o, err := c.Ledger.GetByNumber(ctx, number)
	if err != nil {
		return orders.Order{}, ledgerErr(err, "order")
	}
	return o, nil
}

func (c *Coordinator) GetOrderItem(ctx context.Context, itemID string) (orders.Item, error) {
	it, err := c.Ledger.GetItem(ctx, itemID)
	if err != nil {
		return orders.Item{}, ledgerErr(err, "order_item")
	}
	return it, nil
}

func (c *Coordinator) ListOrders(ctx context.Context, f orders.Filter) (orders.Page, error) {
	p, err := c.Ledger.List(ctx, f)
	if err != nil {
		return orders.Page{}, ledgerErr(err, "order")
	}
	return p, nil
}

func (c *Coordinator) OrderHistory(ctx context.Context, orderID string) ([]orders.History, error) {
	h, err := c.Ledger.History(ctx, orderID)
	if err != nil {
		return nil, ledgerErr(err, "order")
	}
	return h, nil
}
