package httpx

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/access"
	"github.com/ariefcatur/go-checkout-orders/internal/apperr"
	"github.com/ariefcatur/go-checkout-orders/internal/checkout"
	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/ariefcatur/go-checkout-orders/internal/projection"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StatusCache is the read-through cache behind GET /orders/{id}/status.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (projection.StatusView, bool, error)
	Put(ctx context.Context, v projection.StatusView) (bool, error)
}

type OrdersHandler struct {
	Orders  *checkout.Coordinator
	Status  StatusCache // optional
	Limiter *ActorLimiter
	Log     *zap.Logger
}

type CheckoutReq struct {
	CustomerID        string `json:"customer_id,omitempty"`
	ShippingAddressID string `json:"shipping_address_id"`
	PaymentCardID     string `json:"payment_card_id"`
	Notes             string `json:"notes,omitempty"`
}

type CancelReq struct {
	Reason string `json:"reason"`
}

type StatusReq struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type ItemStatusReq struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Carrier        string `json:"carrier,omitempty"`
}

type RefundReq struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason,omitempty"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireActor)
		r.With(h.Limiter.Middleware).Post("/checkout", h.checkout)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/number/{number}", h.getOrderByNumber)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/{id}/status", h.getStatus)
		r.Get("/orders/{id}/history", h.getHistory)
		r.Post("/orders/{id}/cancel", h.cancelOrder)
		r.Patch("/orders/{id}/status", h.updateStatus)
		r.Patch("/order-items/{id}/status", h.updateItemStatus)
		r.Post("/payments/{id}/refund", h.refund)
	})
}

func orderResource(o orders.Order) access.Resource {
	return access.Resource{CustomerID: o.CustomerID, VendorIDs: o.VendorIDs()}
}

// visibleTo hides other vendors' lines from a vendor.
func visibleTo(a access.Actor, o orders.Order) orders.Order {
	if a.Role != access.RoleVendor {
		return o
	}
	items := make([]orders.Item, 0, len(o.Items))
	for _, it := range o.Items {
		if it.VendorID == a.VendorID {
			items = append(items, it)
		}
	}
	o.Items = items
	return o
}

// loadOrder fetches an order and checks the actor may act on it. An order the
// actor may not even view reads as not found.
func (h *OrdersHandler) loadOrder(ctx context.Context, id string, action access.Action) (orders.Order, error) {
	a := actorFrom(ctx)
	o, err := h.Orders.GetOrder(ctx, id)
	if err != nil {
		return orders.Order{}, err
	}
	res := orderResource(o)
	if !access.Can(a, access.ActionViewOrder, res) {
		return orders.Order{}, apperr.NotFoundf("order_not_found", "order not found")
	}
	if !access.Can(a, action, res) {
		return orders.Order{}, forbidden()
	}
	return o, nil
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	a := actorFrom(r.Context())
	if req.CustomerID == "" {
		req.CustomerID = a.ID
	}
	if !access.Can(a, access.ActionCheckout, access.Resource{CustomerID: req.CustomerID}) {
		writeError(w, r, h.Log, forbidden())
		return
	}
	o, err := h.Orders.CreateOrder(r.Context(), checkout.CreateOrderInput{
		CustomerID:        req.CustomerID,
		ShippingAddressID: req.ShippingAddressID,
		PaymentCardID:     req.PaymentCardID,
		Notes:             req.Notes,
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	code := http.StatusCreated
	if o.Status == orders.StatusPending {
		// paid, confirmation is still being recorded
		code = http.StatusAccepted
	}
	writeJSON(w, code, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r.Context())
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	switch a.Role {
	case access.RoleCustomer:
		f.CustomerID = a.ID
	case access.RoleVendor:
		f.VendorID = a.VendorID
	}
	if !access.Can(a, access.ActionListOrders, access.Resource{CustomerID: f.CustomerID, VendorIDs: []string{f.VendorID}}) {
		writeError(w, r, h.Log, forbidden())
		return
	}
	p, err := h.Orders.ListOrders(r.Context(), f)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	for i := range p.Orders {
		p.Orders[i] = visibleTo(a, p.Orders[i])
	}
	writeJSON(w, http.StatusOK, p)
}

func parseFilter(r *http.Request) (orders.Filter, error) {
	q := r.URL.Query()
	f := orders.Filter{
		CustomerID:    q.Get("customer_id"),
		VendorID:      q.Get("vendor_id"),
		Status:        orders.Status(q.Get("status")),
		PaymentStatus: orders.PaymentStatus(q.Get("payment_status")),
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, apperr.Validationf("invalid_status", "unknown order status %q", f.Status)
	}
	for key, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		if v := q.Get(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, apperr.Validationf("invalid_"+key, "%s must be an RFC 3339 timestamp", key)
			}
			*dst = t
		}
	}
	for key, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return f, apperr.Validationf("invalid_"+key, "%s must be a non-negative integer", key)
			}
			*dst = n
		}
	}
	return f, nil
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.loadOrder(r.Context(), chi.URLParam(r, "id"), access.ActionViewOrder)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, visibleTo(actorFrom(r.Context()), o))
}

func (h *OrdersHandler) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r.Context())
	o, err := h.Orders.GetOrderByNumber(r.Context(), chi.URLParam(r, "number"))
	if err == nil && !access.Can(a, access.ActionViewOrder, orderResource(o)) {
		err = apperr.NotFoundf("order_not_found", "order not found")
	}
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, visibleTo(a, o))
}

// getStatus serves from the status cache and falls back to the ledger.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a := actorFrom(r.Context())

	if h.Status != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		v, ok, err := h.Status.Get(ctx, id)
		cancel()
		switch {
		case err != nil:
			h.Log.Warn("status cache read", zap.String("order_id", id), zap.Error(err))
		case ok:
			if !access.Can(a, access.ActionViewOrder, access.Resource{CustomerID: v.CustomerID, VendorIDs: v.VendorIDs}) {
				writeError(w, r, h.Log, apperr.NotFoundf("order_not_found", "order not found"))
				return
			}
			writeJSON(w, http.StatusOK, v)
			return
		}
	}

	o, err := h.loadOrder(r.Context(), id, access.ActionViewOrder)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, projection.FromOrder(o))
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o orders.Order) {
	if h.Status == nil {
		return
	}
	if _, err := h.Status.Put(context.WithoutCancel(ctx), projection.FromOrder(o)); err != nil {
		h.Log.Warn("status cache write", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (h *OrdersHandler) getHistory(w http.ResponseWriter, r *http.Request) {
	o, err := h.loadOrder(r.Context(), chi.URLParam(r, "id"), access.ActionViewOrder)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	hist, err := h.Orders.OrderHistory(r.Context(), o.ID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	o, err := h.loadOrder(r.Context(), chi.URLParam(r, "id"), access.ActionCancelOrder)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	o, err = h.Orders.CancelOrder(r.Context(), o.ID, req.Reason, actorFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	o, err := h.loadOrder(r.Context(), chi.URLParam(r, "id"), access.ActionUpdateOrderStatus)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	o, err = h.Orders.UpdateOrderStatus(r.Context(), o.ID, orders.Status(req.Status), req.Reason, actorFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) updateItemStatus(w http.ResponseWriter, r *http.Request) {
	var req ItemStatusReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	a := actorFrom(r.Context())
	it, err := h.Orders.GetOrderItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if !access.Can(a, access.ActionUpdateItemStatus, access.Resource{VendorIDs: []string{it.VendorID}}) {
		writeError(w, r, h.Log, forbidden())
		return
	}
	var tracking *orders.Tracking
	if req.TrackingNumber != "" || req.Carrier != "" {
		tracking = &orders.Tracking{Number: req.TrackingNumber, Carrier: req.Carrier}
	}
	it, err = h.Orders.UpdateOrderItemStatus(r.Context(), it.ID, orders.ItemStatus(req.Status), tracking, a.ID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if o, err := h.Orders.GetOrder(r.Context(), it.OrderID); err == nil {
		h.cacheStatus(r.Context(), o)
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *OrdersHandler) refund(w http.ResponseWriter, r *http.Request) {
	var req RefundReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if !access.Can(actorFrom(r.Context()), access.ActionRefundPayment, access.Resource{}) {
		writeError(w, r, h.Log, forbidden())
		return
	}
	pay, err := h.Orders.RefundPayment(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Reason)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if o, err := h.Orders.GetOrder(r.Context(), pay.OrderID); err == nil {
		h.cacheStatus(r.Context(), o)
	} else if !errors.Is(err, apperr.NotFound) {
		h.Log.Warn("reload order after refund", zap.String("payment_id", pay.ID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, pay)
}
