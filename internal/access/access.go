package access

import "slices"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// Actor is the caller as asserted by the upstream gateway.
type Actor struct {
	ID       string
	Role     Role
	VendorID string
}

type Action string

const (
	ActionCheckout          Action = "checkout"
	ActionManageCart        Action = "manage_cart"
	ActionViewOrder         Action = "view_order"
	ActionListOrders        Action = "list_orders"
	ActionCancelOrder       Action = "cancel_order"
	ActionUpdateOrderStatus Action = "update_order_status"
	ActionUpdateItemStatus  Action = "update_item_status"
	ActionRefundPayment     Action = "refund_payment"
)

// Resource carries the ownership fields a decision needs. CustomerID is the
// owning customer; VendorIDs are the vendors with a stake in it (all vendors
// on an order, or the single vendor of an order item).
type Resource struct {
	CustomerID string
	VendorIDs  []string
}

// Can reports whether actor may perform action on res.
func Can(actor Actor, action Action, res Resource) bool {
	if actor.ID == "" {
		return false
	}
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleCustomer:
		switch action {
		case ActionCheckout, ActionManageCart, ActionViewOrder, ActionListOrders, ActionCancelOrder:
			return res.CustomerID == actor.ID
		}
	case RoleVendor:
		if actor.VendorID == "" || !slices.Contains(res.VendorIDs, actor.VendorID) {
			return false
		}
		switch action {
		case ActionViewOrder, ActionListOrders, ActionUpdateItemStatus:
			return true
		}
	}
	return false
}
