package models

import "time"

type LineItemView struct {
	MenuItem MenuItemSummary `json:"menuItem"`
	Quantity int             `json:"quantity"`
	Remarks  string          `json:"remarks,omitempty"`
}

// OrderView is an order with its menu items resolved, so receivers of a
// broadcast never need a follow-up fetch.
type OrderView struct {
	ID                 string         `json:"id"`
	OrderNumber        string         `json:"orderNumber"`
	EventID            string         `json:"eventId"`
	TabID              string         `json:"tabId,omitempty"`
	TableNumber        string         `json:"tableNumber,omitempty"`
	CustomerName       string         `json:"customerName,omitempty"`
	IsPreOrder         bool           `json:"isPreOrder"`
	IsPaid             bool           `json:"isPaid"`
	DeliveryAddress    string         `json:"deliveryAddress,omitempty"`
	Items              []LineItemView `json:"items"`
	Status             Status         `json:"status"`
	IsActive           bool           `json:"isActive"`
	Version            int64          `json:"version"`
	TotalItems         int            `json:"totalItems"`
	TotalPrice         float64        `json:"totalPrice"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	PreparingStartedAt *time.Time     `json:"preparingStartedAt,omitempty"`
	ReadyAt            *time.Time     `json:"readyAt,omitempty"`
	CollectedAt        *time.Time     `json:"collectedAt,omitempty"`
	CancelledAt        *time.Time     `json:"cancelledAt,omitempty"`
}

// NewOrderView resolves line items against menu. Unknown items keep only
// their id.
func NewOrderView(o Order, menu map[string]MenuItem) OrderView {
	view := OrderView{
		ID:                 o.ID,
		OrderNumber:        o.OrderNumber,
		EventID:            o.EventID,
		TabID:              o.TabID,
		TableNumber:        o.TableNumber,
		CustomerName:       o.CustomerName,
		IsPreOrder:         o.IsPreOrder,
		IsPaid:             o.IsPaid,
		DeliveryAddress:    o.DeliveryAddress,
		Items:              make([]LineItemView, 0, len(o.Items)),
		Status:             o.Status,
		IsActive:           o.IsActive,
		Version:            o.Version,
		TotalItems:         o.TotalItems(),
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		PreparingStartedAt: o.PreparingStartedAt,
		ReadyAt:            o.ReadyAt,
		CollectedAt:        o.CollectedAt,
		CancelledAt:        o.CancelledAt,
	}

	for _, item := range o.Items {
		summary := MenuItemSummary{ID: item.MenuItemID}
		if m, ok := menu[item.MenuItemID]; ok {
			summary = m.Summary()
			view.TotalPrice += m.Price * float64(item.Quantity)
		}
		view.Items = append(view.Items, LineItemView{
			MenuItem: summary,
			Quantity: item.Quantity,
			Remarks:  item.Remarks,
		})
	}

	return view
}
