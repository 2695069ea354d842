package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"connect-kitchen/internal/logger"
	"connect-kitchen/internal/models"
	"connect-kitchen/internal/order"
)

// Engine is the part of the order service the socket commands drive.
type Engine interface {
	CreateOrder(ctx context.Context, input models.OrderInput, actor models.Actor) (models.OrderView, error)
	CreatePublicOrder(ctx context.Context, input models.OrderInput, actor models.Actor) (models.OrderView, error)
	EditOrder(ctx context.Context, id string, patch models.OrderPatch, actor models.Actor) (models.OrderView, error)
	TransitionStatus(ctx context.Context, id string, target models.Status, actor models.Actor) (models.OrderView, error)
	SoftDelete(ctx context.Context, id string, actor models.Actor) error
}

type editPayload struct {
	OrderID string `json:"orderId"`
	models.OrderPatch
}

type statusPayload struct {
	OrderID string        `json:"orderId"`
	Status  models.Status `json:"status"`
}

type deletePayload struct {
	OrderID string `json:"orderId"`
}

// Dispatcher runs inbound socket commands against the engine and answers
// the sender. Broadcasting the result is the publishers' job.
type Dispatcher struct {
	hub     *Hub
	engine  Engine
	log     *logger.Logger
	timeout time.Duration
}

func NewDispatcher(hub *Hub, engine Engine, timeout time.Duration, log *logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{hub: hub, engine: engine, log: log, timeout: timeout}
}

// Handle processes one raw frame from sess.
func (d *Dispatcher) Handle(ctx context.Context, sess *Session, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Event == "" {
		d.hub.Unicast(sess, EventError, ErrorPayload{Message: "malformed message", Code: "invalid_order"}, nil)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	actor := sess.Actor()
	d.log.LogRealtime(msg.Event, sess.ID, fmt.Sprintf("from %s %s", actor.Role, actor.ID))

	switch msg.Event {
	case EventNewOrder:
		var input models.OrderInput
		if !d.decode(sess, msg, &input) {
			return
		}
		view, err := d.engine.CreateOrder(ctx, input, actor)
		d.reply(sess, msg, &view, err)

	case EventNewPublicOrder:
		var input models.OrderInput
		if !d.decode(sess, msg, &input) {
			return
		}
		view, err := d.engine.CreatePublicOrder(ctx, input, actor)
		if err == nil {
			sess.AdoptTab(view.TabID)
		}
		d.reply(sess, msg, &view, err)

	case EventEditOrder:
		var p editPayload
		if !d.decode(sess, msg, &p) {
			return
		}
		view, err := d.engine.EditOrder(ctx, p.OrderID, p.OrderPatch, actor)
		d.reply(sess, msg, &view, err)

	case EventUpdateOrderStatus:
		var p statusPayload
		if !d.decode(sess, msg, &p) {
			return
		}
		view, err := d.engine.TransitionStatus(ctx, p.OrderID, p.Status, actor)
		d.reply(sess, msg, &view, err)

	case EventDeleteOrder:
		var p deletePayload
		if !d.decode(sess, msg, &p) {
			return
		}
		err := d.engine.SoftDelete(ctx, p.OrderID, actor)
		d.reply(sess, msg, nil, err)

	default:
		d.fail(sess, msg, fmt.Errorf("unknown event %q: %w", msg.Event, order.ErrInvalidOrder))
	}
}

func (d *Dispatcher) decode(sess *Session, msg Message, dst interface{}) bool {
	if len(msg.Data) == 0 {
		d.fail(sess, msg, fmt.Errorf("%s without data: %w", msg.Event, order.ErrInvalidOrder))
		return false
	}
	if err := json.Unmarshal(msg.Data, dst); err != nil {
		d.fail(sess, msg, fmt.Errorf("malformed %s payload: %w", msg.Event, order.ErrInvalidOrder))
		return false
	}
	return true
}

// reply acks the sender when it asked for an ack. Otherwise only failures
// are reported, as an error event.
func (d *Dispatcher) reply(sess *Session, msg Message, view *models.OrderView, err error) {
	if err != nil {
		d.fail(sess, msg, err)
		return
	}
	if msg.AckID == nil {
		return
	}

	ack := Ack{Status: "ok"}
	if view != nil {
		ack.Order = view
	}
	d.hub.Unicast(sess, EventAck, ack, msg.AckID)
}

func (d *Dispatcher) fail(sess *Session, msg Message, err error) {
	code := order.ErrorCode(err)
	if code == "internal" {
		d.log.Error("REALTIME", fmt.Sprintf("%s from session %s failed: %v", msg.Event, sess.ID, err))
	} else {
		d.log.LogRealtime(msg.Event, sess.ID, fmt.Sprintf("rejected: %v", err))
	}

	message := order.PublicMessage(err)
	if msg.AckID != nil {
		d.hub.Unicast(sess, EventAck, Ack{Status: "error", Message: message, Code: code}, msg.AckID)
		return
	}
	d.hub.Unicast(sess, EventError, ErrorPayload{Message: message, Code: code, Event: msg.Event}, nil)
}
