package sse_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connect-kitchen/internal/auth"
	"connect-kitchen/internal/logger"
	"connect-kitchen/internal/models"
	"connect-kitchen/internal/realtime"
	"connect-kitchen/internal/sse"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "stream-secret"

type activeOrders []models.OrderView

func (a activeOrders) ListActive(ctx context.Context) ([]models.OrderView, error) {
	return a, nil
}

type event struct {
	name string
	data string
}

func setupStream(t *testing.T) (*realtime.Hub, *httptest.Server) {
	t.Helper()
	hub := realtime.NewHub(activeOrders{{ID: "o-1", OrderNumber: "CN202610001", Status: models.StatusNew, Version: 1}}, 16, logger.Discard())
	authn := auth.NewAuthenticator(auth.NewHMACVerifier(secret), logger.Discard())
	server := httptest.NewServer(sse.NewStreamHandler(logger.Discard(), hub, authn))
	t.Cleanup(server.Close)
	return hub, server
}

func staffToken(t *testing.T, id string, role models.Role) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user": map[string]interface{}{"id": id, "role": string(role)},
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

// openStream connects and returns the parsed events. Cancelling ctx
// disconnects the client.
func openStream(t *testing.T, ctx context.Context, url, bearer string) <-chan event {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"))

	out := make(chan event, 16)
	go func() {
		defer resp.Body.Close()
		defer close(out)
		scanner := bufio.NewScanner(resp.Body)
		var current event
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if current.name != "" {
					out <- current
				}
				current = event{}
			case strings.HasPrefix(line, "event: "):
				current.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				current.data = strings.TrimPrefix(line, "data: ")
			}
		}
	}()
	return out
}

func nextEvent(t *testing.T, events <-chan event) event {
	t.Helper()
	select {
	case e, ok := <-events:
		require.True(t, ok, "stream closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event on stream")
		return event{}
	}
}

func TestStream_InitialOrdersThenUpdates(t *testing.T) {
	hub, server := setupStream(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := openStream(t, ctx, server.URL+"?tabId=tab-1", "")

	connected := nextEvent(t, events)
	assert.Equal(t, "connected", connected.name)

	initial := nextEvent(t, events)
	require.Equal(t, realtime.EventInitialOrders, initial.name)
	var orders []models.OrderView
	require.NoError(t, json.Unmarshal([]byte(initial.data), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "o-1", orders[0].ID)

	// A viewer without a credential is a guest and joins no room.
	assert.Equal(t, 1, hub.SessionCount())
	for _, room := range []string{"Admin", "Waiter", "Kitchen"} {
		assert.Equal(t, 0, hub.RoomSize(room))
	}

	hub.BroadcastOrder(models.OrderView{ID: "o-1", OrderNumber: "CN202610001", Status: models.StatusPreparing, Version: 2})
	update := nextEvent(t, events)
	require.Equal(t, realtime.EventOrderUpdate, update.name)
	var view models.OrderView
	require.NoError(t, json.Unmarshal([]byte(update.data), &view))
	assert.Equal(t, models.StatusPreparing, view.Status)

	hub.BroadcastDeleted("o-1", 3)
	deleted := nextEvent(t, events)
	assert.Equal(t, realtime.EventOrderDeleted, deleted.name)
	assert.Equal(t, `"o-1"`, deleted.data)
}

func TestStream_StaffTokenJoinsRoleRoom(t *testing.T) {
	hub, server := setupStream(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := openStream(t, ctx, server.URL, staffToken(t, "u-k", models.RoleKitchen))
	nextEvent(t, events)
	assert.Equal(t, realtime.EventInitialOrders, nextEvent(t, events).name)
	assert.Equal(t, 1, hub.RoomSize("Kitchen"))

	hub.EmitToRooms([]string{"Kitchen"}, realtime.EventReadyNotification, map[string]string{"orderId": "o-1"})
	assert.Equal(t, realtime.EventReadyNotification, nextEvent(t, events).name)
}

func TestStream_InvalidCredentialRejected(t *testing.T) {
	hub, server := setupStream(t)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, hub.SessionCount())
}

func TestStream_DisconnectUnregistersSession(t *testing.T) {
	hub, server := setupStream(t)
	ctx, cancel := context.WithCancel(context.Background())

	events := openStream(t, ctx, server.URL, "")
	nextEvent(t, events)
	nextEvent(t, events)
	require.Equal(t, 1, hub.SessionCount())

	cancel()
	assert.Eventually(t, func() bool { return hub.SessionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStream_EndsWhenHubCloses(t *testing.T) {
	hub, server := setupStream(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := openStream(t, ctx, server.URL, "")
	nextEvent(t, events)
	nextEvent(t, events)

	hub.Close()
	select {
	case _, ok := <-events:
		assert.False(t, ok, "stream should end without further events")
	case <-time.After(2 * time.Second):
		t.Fatal("stream still open after hub closed")
	}
}
