package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"connect-kitchen/internal/logger"
	"connect-kitchen/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ActorResolver identifies the caller of a request. No credential yields a
// guest; an invalid one is an error.
type ActorResolver interface {
	ResolveActor(r *http.Request) (models.Actor, error)
}

type WSHandler struct {
	hub        *Hub
	dispatcher *Dispatcher
	resolver   ActorResolver
	log        *logger.Logger
	upgrader   websocket.Upgrader

	// inflight tracks command goroutines so shutdown can wait for them.
	inflight sync.WaitGroup
}

func NewWSHandler(hub *Hub, dispatcher *Dispatcher, resolver ActorResolver, allowedOrigins []string, log *logger.Logger) *WSHandler {
	return &WSHandler{
		hub:        hub,
		dispatcher: dispatcher,
		resolver:   resolver,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, err := h.resolver.ResolveActor(r)
	if err != nil {
		h.log.LogSecurity("SOCKET_AUTH", fmt.Sprintf("Rejected socket from %s: %v", r.RemoteAddr, err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "authentication error"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Warn("REALTIME", fmt.Sprintf("WebSocket upgrade failed: %v", err))
		return
	}

	syncCtx, cancel := context.WithTimeout(r.Context(), writeWait)
	sess := h.hub.Register(syncCtx, actor)
	cancel()

	go h.writePump(conn, sess)
	h.readPump(conn, sess)

	h.hub.Unregister(sess)
}

func (h *WSHandler) readPump(conn *websocket.Conn, sess *Session) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("REALTIME", fmt.Sprintf("Session %s read error: %v", sess.ID, err))
			}
			return
		}

		// Commands run concurrently and outlive a disconnect: a command
		// that was received is carried out. A session with too many running
		// stops being read until one finishes.
		if !sess.beginCommand() {
			return
		}
		h.inflight.Add(1)
		go func(raw []byte) {
			defer h.inflight.Done()
			defer sess.endCommand()
			h.dispatcher.Handle(context.Background(), sess, raw)
		}(raw)
	}
}

func (h *WSHandler) writePump(conn *websocket.Conn, sess *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame := <-sess.Send():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.hub.Unregister(sess)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.Unregister(sess)
				return
			}
		case <-sess.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Wait blocks until every running command has finished.
func (h *WSHandler) Wait() {
	h.inflight.Wait()
}
