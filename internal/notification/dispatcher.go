// Package notification derives targeted alerts from order changes.
package notification

import (
	"fmt"

	"connect-kitchen/internal/logger"
	"connect-kitchen/internal/models"
	"connect-kitchen/internal/policy"
	"connect-kitchen/internal/realtime"
)

type RoomEmitter interface {
	EmitToRooms(rooms []string, event string, data interface{})
}

// Dispatcher tells the front of house that an order is ready for pickup.
// The notification names the actor who marked it ready so that actor's own
// clients can hide it.
type Dispatcher struct {
	emitter RoomEmitter
	log     *logger.Logger
}

func NewDispatcher(emitter RoomEmitter, log *logger.Logger) *Dispatcher {
	return &Dispatcher{emitter: emitter, log: log}
}

func (d *Dispatcher) PublishChange(change models.OrderChange) {
	if !change.EnteredReady() {
		return
	}

	note := models.ReadyNotification{
		OrderNumber: change.Order.OrderNumber,
		OrderID:     change.Order.ID,
		TriggeredBy: change.Actor.ID,
		TableNumber: change.Order.TableNumber,
	}
	rooms := policy.ReadyNotificationRooms()
	d.emitter.EmitToRooms(rooms, realtime.EventReadyNotification, note)

	d.log.Info("NOTIFY", fmt.Sprintf("Order %s ready, notified %v (triggered by %s)", note.OrderNumber, rooms, note.TriggeredBy))
}
