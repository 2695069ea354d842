package realtime

import "connect-kitchen/internal/models"

// Broadcaster turns persisted changes into order_update and order_deleted
// frames for every session.
type Broadcaster struct {
	hub *Hub
}

func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

func (b *Broadcaster) PublishChange(change models.OrderChange) {
	if change.Type == models.ChangeDeleted {
		b.hub.BroadcastDeleted(change.Order.ID, change.Order.Version)
		return
	}
	b.hub.BroadcastOrder(change.Order)
}
