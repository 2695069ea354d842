// Package realtime keeps connected clients in sync with order state: an
// initial snapshot on connect, then every change as it is persisted.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"connect-kitchen/internal/logger"
	"connect-kitchen/internal/models"
	"connect-kitchen/internal/policy"

	"github.com/google/uuid"
)

// Snapshotter provides the active orders sent to a session on connect.
type Snapshotter interface {
	ListActive(ctx context.Context) ([]models.OrderView, error)
}

// Relay carries broadcasts between instances. A relayed frame is delivered
// by every instance, including the one that published it.
type Relay interface {
	Publish(ctx context.Context, payload []byte) error
}

// envelope is a broadcast as it travels through the relay.
type envelope struct {
	Rooms   []string        `json:"rooms,omitempty"`
	OrderID string          `json:"orderId,omitempty"`
	Version int64           `json:"version,omitempty"`

	// Final marks the last frame an order normally gets: deleted, or in a
	// terminal status.
	Final bool            `json:"final,omitempty"`
	Frame json.RawMessage `json:"frame"`
}

// retired is a finished order whose version is forgotten after expiry.
type retired struct {
	orderID string
	version int64
	expiry  time.Time
}

type Hub struct {
	log        *logger.Logger
	snapshot   Snapshotter
	bufferSize int

	relay        Relay
	relayTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[string]map[string]*Session

	// deliverMu orders deliveries, so frames of one order reach every
	// session in version order. Held only around non-blocking enqueues.
	deliverMu sync.Mutex
	versions  map[string]int64

	// Finished orders keep their version for versionRetention, long enough
	// to reject frames that were overtaken by the final one.
	retiring         []retired
	versionRetention time.Duration
	now              func() time.Time
}

func NewHub(snapshot Snapshotter, bufferSize int, log *logger.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		log:          log,
		snapshot:     snapshot,
		bufferSize:   bufferSize,
		relayTimeout: 2 * time.Second,
		sessions:     make(map[string]*Session),
		rooms:        make(map[string]map[string]*Session),
		versions:     make(map[string]int64),

		versionRetention: 5 * time.Minute,
		now:              time.Now,
	}
}

// UseRelay routes broadcasts through r. Frames only reach local sessions
// once they come back through DeliverRelayed.
func (h *Hub) UseRelay(r Relay) {
	h.relay = r
}

// Register adds a session for actor, joins the rooms of its role, and queues
// the active orders as its first frame.
func (h *Hub) Register(ctx context.Context, actor models.Actor) *Session {
	sess := newSession(uuid.NewString(), actor, policy.Rooms(actor.Role), h.bufferSize)

	h.mu.Lock()
	h.sessions[sess.ID] = sess
	for _, room := range sess.rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[string]*Session)
		}
		h.rooms[room][sess.ID] = sess
	}
	total := len(h.sessions)
	h.mu.Unlock()

	h.log.Info("REALTIME", fmt.Sprintf("Session %s connected as %s %s (%d sessions)", sess.ID, actor.Role, actor.ID, total))

	first := h.initialFrame(ctx, sess)
	if !sess.finishSync(first) {
		h.drop(sess, "buffer overflow during initial sync")
	}
	return sess
}

func (h *Hub) initialFrame(ctx context.Context, sess *Session) []byte {
	orders, err := h.snapshot.ListActive(ctx)
	if err != nil {
		h.log.Error("REALTIME", fmt.Sprintf("Initial orders for session %s failed: %v", sess.ID, err))
		frame, _ := encode(EventError, ErrorPayload{Message: "failed to load orders", Code: "internal", Event: EventInitialOrders}, nil)
		return frame
	}

	frame, err := encode(EventInitialOrders, orders, nil)
	if err != nil {
		h.log.Error("REALTIME", fmt.Sprintf("Failed to encode initial orders: %v", err))
		return nil
	}
	return frame
}

// Unregister removes the session. Order state is not touched.
func (h *Hub) Unregister(sess *Session) {
	h.mu.Lock()
	_, ok := h.sessions[sess.ID]
	delete(h.sessions, sess.ID)
	for _, room := range sess.rooms {
		if members := h.rooms[room]; members != nil {
			delete(members, sess.ID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	total := len(h.sessions)
	h.mu.Unlock()

	sess.close()
	if ok {
		h.log.Info("REALTIME", fmt.Sprintf("Session %s disconnected (%d sessions)", sess.ID, total))
	}
}

// drop disconnects a session that cannot keep up. Skipping a frame instead
// would leave it with a silently wrong view; reconnecting resyncs it.
func (h *Hub) drop(sess *Session, reason string) {
	h.log.Warn("REALTIME", fmt.Sprintf("Dropping session %s: %s", sess.ID, reason))
	h.Unregister(sess)
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// RoomSize returns the number of sessions in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ---------------- OUTBOUND ----------------

// BroadcastOrder sends order_update with the order to every session.
func (h *Hub) BroadcastOrder(view models.OrderView) {
	frame, err := encode(EventOrderUpdate, view, nil)
	if err != nil {
		h.log.Error("REALTIME", fmt.Sprintf("Failed to encode order %s: %v", view.ID, err))
		return
	}
	h.dispatch(envelope{OrderID: view.ID, Version: view.Version, Final: view.Status.Terminal(), Frame: frame})
}

// BroadcastDeleted sends order_deleted with the order id to every session.
func (h *Hub) BroadcastDeleted(orderID string, version int64) {
	frame, err := encode(EventOrderDeleted, orderID, nil)
	if err != nil {
		h.log.Error("REALTIME", fmt.Sprintf("Failed to encode deletion of %s: %v", orderID, err))
		return
	}
	h.dispatch(envelope{OrderID: orderID, Version: version, Final: true, Frame: frame})
}

// EmitToRooms sends event to the members of rooms. A session in several of
// them receives it once.
func (h *Hub) EmitToRooms(rooms []string, event string, data interface{}) {
	frame, err := encode(event, data, nil)
	if err != nil {
		h.log.Error("REALTIME", fmt.Sprintf("Failed to encode %s: %v", event, err))
		return
	}
	h.dispatch(envelope{Rooms: rooms, Frame: frame})
}

// Unicast sends a frame to one local session only.
func (h *Hub) Unicast(sess *Session, event string, data interface{}, ackID *int64) {
	frame, err := encode(event, data, ackID)
	if err != nil {
		h.log.Error("REALTIME", fmt.Sprintf("Failed to encode %s for session %s: %v", event, sess.ID, err))
		return
	}
	if !sess.enqueue(frame) {
		h.drop(sess, "buffer overflow")
	}
}

func (h *Hub) dispatch(env envelope) {
	if h.relay == nil {
		h.deliver(env)
		return
	}

	payload, err := json.Marshal(env)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.relayTimeout)
		err = h.relay.Publish(ctx, payload)
		cancel()
	}
	if err != nil {
		// Other instances miss this one; local sessions still get it.
		h.log.Error("REALTIME", fmt.Sprintf("Relay publish failed, delivering locally: %v", err))
		h.deliver(env)
	}
}

// DeliverRelayed hands a frame received from the relay to local sessions.
func (h *Hub) DeliverRelayed(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		h.log.Error("REALTIME", fmt.Sprintf("Malformed relay message: %v", err))
		return
	}
	h.deliver(env)
}

func (h *Hub) deliver(env envelope) {
	h.deliverMu.Lock()
	h.expireVersions()
	if env.OrderID != "" && !h.advance(env.OrderID, env.Version, env.Final) {
		h.deliverMu.Unlock()
		h.log.Debug("REALTIME", fmt.Sprintf("Skipping stale broadcast of %s at version %d", env.OrderID, env.Version))
		return
	}

	var slow []*Session
	for _, sess := range h.targets(env.Rooms) {
		if !sess.enqueue(env.Frame) {
			slow = append(slow, sess)
		}
	}
	h.deliverMu.Unlock()

	for _, sess := range slow {
		h.drop(sess, "buffer overflow")
	}
}

// advance records version as the newest seen for orderID. It reports false
// when a newer or equal version was already delivered, so a late frame never
// overwrites a fresher one on the clients. Callers hold deliverMu.
func (h *Hub) advance(orderID string, version int64, final bool) bool {
	if version <= h.versions[orderID] {
		return false
	}
	h.versions[orderID] = version
	if final {
		h.retiring = append(h.retiring, retired{orderID: orderID, version: version, expiry: h.now().Add(h.versionRetention)})
	}
	return true
}

// expireVersions forgets finished orders whose retention has passed, unless
// a newer frame arrived for them since. Callers hold deliverMu.
func (h *Hub) expireVersions() {
	now := h.now()
	n := 0
	for n < len(h.retiring) && !now.Before(h.retiring[n].expiry) {
		r := h.retiring[n]
		if h.versions[r.orderID] == r.version {
			delete(h.versions, r.orderID)
		}
		n++
	}
	if n > 0 {
		h.retiring = append(h.retiring[:0:0], h.retiring[n:]...)
	}
}

// trackedOrders returns how many orders have a recorded version.
func (h *Hub) trackedOrders() int {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()
	return len(h.versions)
}

func (h *Hub) targets(rooms []string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(rooms) == 0 {
		all := make([]*Session, 0, len(h.sessions))
		for _, sess := range h.sessions {
			all = append(all, sess)
		}
		return all
	}

	seen := make(map[string]bool)
	var members []*Session
	for _, room := range rooms {
		for id, sess := range h.rooms[room] {
			if !seen[id] {
				seen[id] = true
				members = append(members, sess)
			}
		}
	}
	return members
}

// Close disconnects every session.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*Session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		all = append(all, sess)
	}
	h.mu.RUnlock()

	for _, sess := range all {
		h.Unregister(sess)
	}
}
