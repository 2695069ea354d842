package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"connect-kitchen/internal/logger"
	"connect-kitchen/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noOrders struct{}

func (noOrders) ListActive(ctx context.Context) ([]models.OrderView, error) {
	return []models.OrderView{}, nil
}

func events(sess *Session) []string {
	var names []string
	for {
		select {
		case raw := <-sess.Send():
			var f struct {
				Event string `json:"event"`
			}
			if err := json.Unmarshal(raw, &f); err == nil {
				names = append(names, f.Event)
			}
		default:
			return names
		}
	}
}

func TestFinishedOrderVersionsAreForgotten(t *testing.T) {
	hub := NewHub(noOrders{}, 32, logger.Discard())
	clock := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	hub.now = func() time.Time { return clock }

	sess := hub.Register(context.Background(), models.Actor{ID: "u-1", Role: models.RoleWaiter})
	require.Equal(t, []string{EventInitialOrders}, events(sess))

	hub.BroadcastOrder(models.OrderView{ID: "o-1", Version: 3, Status: models.StatusCollected})
	hub.BroadcastOrder(models.OrderView{ID: "o-2", Version: 1, Status: models.StatusNew})
	assert.Equal(t, 2, hub.trackedOrders())

	// Within retention a frame overtaken by the final one is still rejected.
	hub.BroadcastOrder(models.OrderView{ID: "o-1", Version: 2, Status: models.StatusReady})
	assert.Equal(t, []string{EventOrderUpdate, EventOrderUpdate}, events(sess))

	clock = clock.Add(6 * time.Minute)
	hub.BroadcastDeleted("o-2", 2)
	assert.Equal(t, 1, hub.trackedOrders(), "o-1 expired, o-2 is retiring")

	clock = clock.Add(6 * time.Minute)
	hub.BroadcastOrder(models.OrderView{ID: "o-3", Version: 1, Status: models.StatusNew})
	assert.Equal(t, 1, hub.trackedOrders(), "only the open order o-3 is left")
	assert.Equal(t, []string{EventOrderDeleted, EventOrderUpdate}, events(sess))
}

func TestRetiredOrderWithNewerFrameKeepsLatestUntilItExpires(t *testing.T) {
	hub := NewHub(noOrders{}, 32, logger.Discard())
	clock := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	hub.now = func() time.Time { return clock }

	hub.BroadcastOrder(models.OrderView{ID: "o-1", Version: 2, Status: models.StatusCollected})
	clock = clock.Add(3 * time.Minute)
	hub.BroadcastDeleted("o-1", 3)

	// The first retirement expired, but o-1 moved on to version 3.
	clock = clock.Add(3 * time.Minute)
	hub.BroadcastOrder(models.OrderView{ID: "o-2", Version: 1, Status: models.StatusNew})
	assert.Equal(t, 2, hub.trackedOrders())

	clock = clock.Add(3 * time.Minute)
	hub.BroadcastOrder(models.OrderView{ID: "o-2", Version: 2, Status: models.StatusPreparing})
	assert.Equal(t, 1, hub.trackedOrders())
}

func TestSessionCommandSlotsAreBounded(t *testing.T) {
	sess := newSession("s-1", models.Actor{ID: "g-1", Role: models.RoleGuest}, nil, 4)

	for i := 0; i < maxInflightCommands; i++ {
		require.True(t, sess.beginCommand())
	}

	started := make(chan bool, 1)
	go func() { started <- sess.beginCommand() }()

	select {
	case <-started:
		t.Fatal("command started beyond the per-session limit")
	case <-time.After(50 * time.Millisecond):
	}

	sess.endCommand()
	select {
	case ok := <-started:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("waiting command did not start after a slot was freed")
	}

	sess.close()
	assert.False(t, sess.beginCommand())
}
