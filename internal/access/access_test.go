package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCan(t *testing.T) {
	customer := Actor{ID: "c-1", Role: RoleCustomer}
	vendor := Actor{ID: "u-9", Role: RoleVendor, VendorID: "v-1"}
	admin := Actor{ID: "a-1", Role: RoleAdmin}
	own := Resource{CustomerID: "c-1", VendorIDs: []string{"v-1", "v-2"}}
	other := Resource{CustomerID: "c-2", VendorIDs: []string{"v-3"}}

	cases := []struct {
		actor  Actor
		action Action
		res    Resource
		want   bool
	}{
		{customer, ActionViewOrder, own, true},
		{customer, ActionCancelOrder, own, true},
		{customer, ActionViewOrder, other, false},
		{customer, ActionUpdateOrderStatus, own, false},
		{customer, ActionUpdateItemStatus, own, false},
		{customer, ActionRefundPayment, own, false},
		{vendor, ActionViewOrder, own, true},
		{vendor, ActionUpdateItemStatus, Resource{VendorIDs: []string{"v-1"}}, true},
		{vendor, ActionUpdateItemStatus, Resource{VendorIDs: []string{"v-2"}}, false},
		{vendor, ActionCancelOrder, own, false},
		{vendor, ActionViewOrder, other, false},
		{Actor{ID: "u-8", Role: RoleVendor}, ActionViewOrder, own, false},
		{admin, ActionUpdateOrderStatus, other, true},
		{admin, ActionRefundPayment, other, true},
		{Actor{Role: RoleAdmin}, ActionViewOrder, own, false},
		{Actor{ID: "x", Role: "guest"}, ActionViewOrder, own, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Can(c.actor, c.action, c.res), "%s %s %s", c.actor.Role, c.actor.ID, c.action)
	}
}
