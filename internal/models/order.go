package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Status string

const (
	StatusNew       Status = "New"
	StatusPreparing Status = "Preparing"
	StatusReady     Status = "Ready"
	StatusCollected Status = "Collected"
	StatusCancelled Status = "Cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusPreparing, StatusReady, StatusCollected, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCollected || s == StatusCancelled
}

type LineItem struct {
	MenuItemID string `json:"menuItem"`
	Quantity   int    `json:"quantity"`
	Remarks    string `json:"remarks,omitempty"`
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID              string     `bun:"id,pk" json:"id"`
	OrderNumber     string     `bun:"order_number,notnull,unique" json:"orderNumber"`
	EventID         string     `bun:"event_id,notnull" json:"eventId"`
	TabID           string     `bun:"tab_id,nullzero" json:"tabId,omitempty"`
	TableNumber     string     `bun:"table_number,nullzero" json:"tableNumber,omitempty"`
	CustomerName    string     `bun:"customer_name,nullzero" json:"customerName,omitempty"`
	IsPreOrder      bool       `bun:"is_pre_order,notnull" json:"isPreOrder"`
	IsPaid          bool       `bun:"is_paid,notnull" json:"isPaid"`
	DeliveryAddress string     `bun:"delivery_address,nullzero" json:"deliveryAddress,omitempty"`
	Items           []LineItem `bun:"items,type:jsonb" json:"items"`
	Status          Status     `bun:"status,notnull" json:"status"`
	IsActive        bool       `bun:"is_active,notnull" json:"isActive"`
	Version         int64      `bun:"version,notnull" json:"version"`
	CreatedBy       string     `bun:"created_by,nullzero" json:"createdBy,omitempty"`

	CreatedAt          time.Time  `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt          time.Time  `bun:"updated_at,notnull" json:"updatedAt"`
	PreparingStartedAt *time.Time `bun:"preparing_started_at" json:"preparingStartedAt,omitempty"`
	ReadyAt            *time.Time `bun:"ready_at" json:"readyAt,omitempty"`
	CollectedAt        *time.Time `bun:"collected_at" json:"collectedAt,omitempty"`
	CancelledAt        *time.Time `bun:"cancelled_at" json:"cancelledAt,omitempty"`
}

// TotalItems sums the quantities of every line.
func (o Order) TotalItems() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}

// Clone returns a copy that shares no slices or timestamps with o.
func (o Order) Clone() Order {
	c := o
	c.Items = append([]LineItem(nil), o.Items...)
	c.PreparingStartedAt = cloneTime(o.PreparingStartedAt)
	c.ReadyAt = cloneTime(o.ReadyAt)
	c.CollectedAt = cloneTime(o.CollectedAt)
	c.CancelledAt = cloneTime(o.CancelledAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// OrderInput is the payload of new_order and new_public_order.
type OrderInput struct {
	EventID         string     `json:"eventId"`
	TabID           string     `json:"tabId,omitempty"`
	TableNumber     string     `json:"tableNumber,omitempty"`
	CustomerName    string     `json:"customerName,omitempty"`
	IsPreOrder      bool       `json:"isPreOrder"`
	IsPaid          bool       `json:"isPaid"`
	DeliveryAddress string     `json:"deliveryAddress,omitempty"`
	Items           []LineItem `json:"items"`
}

// OrderPatch carries the editable fields of edit_order. Nil means unchanged.
type OrderPatch struct {
	TableNumber     *string     `json:"tableNumber,omitempty"`
	CustomerName    *string     `json:"customerName,omitempty"`
	Items           *[]LineItem `json:"items,omitempty"`
	IsPreOrder      *bool       `json:"isPreOrder,omitempty"`
	IsPaid          *bool       `json:"isPaid,omitempty"`
	DeliveryAddress *string     `json:"deliveryAddress,omitempty"`
}

func (p OrderPatch) Empty() bool {
	return p.TableNumber == nil && p.CustomerName == nil && p.Items == nil &&
		p.IsPreOrder == nil && p.IsPaid == nil && p.DeliveryAddress == nil
}

// SettleTabRequest selects the orders of one tab within an event.
// TabID wins over CustomerName when both are set.
type SettleTabRequest struct {
	EventID      string `json:"eventId"`
	CustomerName string `json:"customerName,omitempty"`
	TabID        string `json:"tabId,omitempty"`
}

// PublicOrderStatus is what the anonymous status board may see.
type PublicOrderStatus struct {
	ID          string     `json:"id"`
	OrderNumber string     `json:"orderNumber"`
	Status      Status     `json:"status"`
	TabID       string     `json:"tabId,omitempty"`
	TableNumber string     `json:"tableNumber,omitempty"`
	ReadyAt     *time.Time `json:"readyAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (o Order) PublicStatus() PublicOrderStatus {
	return PublicOrderStatus{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		TabID:       o.TabID,
		TableNumber: o.TableNumber,
		ReadyAt:     o.ReadyAt,
		UpdatedAt:   o.UpdatedAt,
	}
}
