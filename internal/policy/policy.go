// Package policy decides which role may do what to an order. Every function
// is pure; anything not listed in the tables is denied.
package policy

import "connect-kitchen/internal/models"

type Action string

const (
	ActionCreateOrder       Action = "create_order"
	ActionCreatePublicOrder Action = "create_public_order"
	ActionEditOrder         Action = "edit_order"
	ActionSetPaid           Action = "set_paid"
	ActionSoftDelete        Action = "soft_delete"
	ActionSettleTab         Action = "settle_tab"
	ActionListOrders        Action = "list_orders"
	ActionLastOrderNumber   Action = "last_order_number"
)

var actions = map[models.Role]map[Action]bool{
	models.RoleAdmin: {
		ActionCreateOrder:       true,
		ActionCreatePublicOrder: true,
		ActionEditOrder:         true,
		ActionSetPaid:           true,
		ActionSoftDelete:        true,
		ActionSettleTab:         true,
		ActionListOrders:        true,
		ActionLastOrderNumber:   true,
	},
	models.RoleWaiter: {
		ActionCreateOrder:       true,
		ActionCreatePublicOrder: true,
		ActionEditOrder:         true,
		ActionSetPaid:           true,
		ActionSettleTab:         true,
		ActionListOrders:        true,
		ActionLastOrderNumber:   true,
	},
	models.RoleKitchen: {
		ActionListOrders: true,
	},
	models.RoleGuest: {
		ActionCreatePublicOrder: true,
		// Further narrowed by CanEdit.
		ActionEditOrder: true,
	},
}

var transitions = map[models.Role]map[models.Status]bool{
	models.RoleAdmin: {
		models.StatusPreparing: true,
		models.StatusReady:     true,
		models.StatusCollected: true,
		models.StatusCancelled: true,
	},
	models.RoleWaiter: {
		models.StatusCollected: true,
	},
	models.RoleKitchen: {
		models.StatusPreparing: true,
		models.StatusReady:     true,
		models.StatusCancelled: true,
	},
}

// Allow reports whether role may perform action at all.
func Allow(role models.Role, action Action) bool {
	return actions[role][action]
}

// AllowTransition reports whether role may move an order into target.
// Whether target is reachable from the current status is not checked here.
func AllowTransition(role models.Role, target models.Status) bool {
	return transitions[role][target]
}

type EditDecision int

const (
	EditAllowed EditDecision = iota
	EditDenied
	// EditLocked: a guest's own order that the kitchen already picked up.
	EditLocked
)

// CanEdit decides whether actor may edit order. Staff with the edit action
// may edit any order; a guest only an order on its own tab that is still New.
func CanEdit(actor models.Actor, order models.Order) EditDecision {
	if !Allow(actor.Role, ActionEditOrder) {
		return EditDenied
	}
	if actor.Role != models.RoleGuest {
		return EditAllowed
	}
	if actor.TabID == "" || order.TabID != actor.TabID {
		return EditDenied
	}
	if order.Status != models.StatusNew {
		return EditLocked
	}
	return EditAllowed
}

// Rooms returns the broadcast rooms a role joins on connect.
func Rooms(role models.Role) []string {
	if !role.Staff() {
		return nil
	}
	return []string{string(role)}
}

// ReadyNotificationRooms are the rooms told that an order is ready for pickup.
func ReadyNotificationRooms() []string {
	return []string{string(models.RoleWaiter), string(models.RoleAdmin)}
}
