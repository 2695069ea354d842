package models

import "time"

type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeStatus  ChangeType = "status_changed"
	ChangeSettled ChangeType = "settled"
	ChangeDeleted ChangeType = "deleted"
)

// OrderChange describes one persisted mutation. It is handed to every
// publisher after the write succeeded.
type OrderChange struct {
	Type           ChangeType `json:"type"`
	Order          OrderView  `json:"order"`
	PreviousStatus Status     `json:"previousStatus,omitempty"`
	Actor          Actor      `json:"-"`
	OccurredAt     time.Time  `json:"occurredAt"`
}

// EnteredReady reports whether the change moved the order into Ready.
func (c OrderChange) EnteredReady() bool {
	return c.Type == ChangeStatus && c.Order.Status == StatusReady && c.PreviousStatus != StatusReady
}

// OrderIntegrationEvent is the Kafka record value for order topics.
type OrderIntegrationEvent struct {
	Type           ChangeType `json:"type"`
	OccurredAt     time.Time  `json:"occurredAt"`
	ActorID        string     `json:"actorId,omitempty"`
	ActorRole      Role       `json:"actorRole,omitempty"`
	PreviousStatus Status     `json:"previousStatus,omitempty"`
	Order          OrderView  `json:"order"`
}

// ReadyNotification is sent to the Waiter and Admin rooms. Clients hide it
// when TriggeredBy is their own actor id.
type ReadyNotification struct {
	OrderNumber string `json:"orderNumber"`
	OrderID     string `json:"orderId"`
	TriggeredBy string `json:"triggeredBy"`
	TableNumber string `json:"tableNumber,omitempty"`
}
