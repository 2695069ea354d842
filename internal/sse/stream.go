// Package sse serves the realtime order feed as Server-Sent Events for
// read-only viewers such as the public status board.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"connect-kitchen/internal/logger"
	"connect-kitchen/internal/realtime"
)

const heartbeatInterval = 25 * time.Second

// StreamHandler registers each stream as a hub session. Viewers receive the
// same events as socket clients but cannot send commands.
type StreamHandler struct {
	Logger   *logger.Logger
	Hub      *realtime.Hub
	Resolver realtime.ActorResolver
}

func NewStreamHandler(log *logger.Logger, hub *realtime.Hub, resolver realtime.ActorResolver) *StreamHandler {
	return &StreamHandler{Logger: log, Hub: hub, Resolver: resolver}
}

type frameHeader struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	actor, err := h.Resolver.ResolveActor(r)
	if err != nil {
		h.Logger.LogSecurity("SSE_AUTH", fmt.Sprintf("Rejected stream from %s: %v", r.RemoteAddr, err))
		http.Error(w, "Unauthorized access", http.StatusUnauthorized)
		return
	}

	// The server write timeout would otherwise cut the stream.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	h.setupSSEHeaders(w)

	ctx := r.Context()
	sess := h.Hub.Register(ctx, actor)
	defer h.Hub.Unregister(sess)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"sessionId\":\"%s\"}\n\n", sess.ID)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case frame := <-sess.Send():
			var hdr frameHeader
			if err := json.Unmarshal(frame, &hdr); err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to decode frame for session %s: %v", sess.ID, err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", hdr.Event, hdr.Data)
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()

		case <-sess.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Session %s closed by server", sess.ID))
			return

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from stream: %s", sess.ID))
			return
		}
	}
}

func (h *StreamHandler) setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Accel-Buffering", "no")
}
