package realtime

import "encoding/json"

// Server to client events.
const (
	EventInitialOrders     = "initial_orders"
	EventOrderUpdate       = "order_update"
	EventReadyNotification = "order_ready_notification"
	EventOrderDeleted      = "order_deleted"
	EventError             = "error"
	EventAck               = "ack"
)

// Client to server events.
const (
	EventNewOrder          = "new_order"
	EventNewPublicOrder    = "new_public_order"
	EventEditOrder         = "edit_order"
	EventUpdateOrderStatus = "update_order_status"
	EventDeleteOrder       = "delete_order"
)

// Message is one frame in either direction. AckID is set by a client that
// wants an acknowledgement, and echoed in the ack.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID *int64          `json:"ackId,omitempty"`
}

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
	AckID *int64      `json:"ackId,omitempty"`
}

// Ack is the data of an ack frame.
type Ack struct {
	Status  string      `json:"status"`
	Order   interface{} `json:"order,omitempty"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Event   string `json:"event,omitempty"`
}

func encode(event string, data interface{}, ackID *int64) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: data, AckID: ackID})
}
