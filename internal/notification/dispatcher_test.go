package notification_test

import (
	"testing"
	"time"

	"connect-kitchen/internal/logger"
	"connect-kitchen/internal/models"
	"connect-kitchen/internal/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEmitter struct {
	mock.Mock
}

func (m *MockEmitter) EmitToRooms(rooms []string, event string, data interface{}) {
	m.Called(rooms, event, data)
}

func readyChange(previous models.Status) models.OrderChange {
	return models.OrderChange{
		Type:           models.ChangeStatus,
		Order:          models.OrderView{ID: "o-1", OrderNumber: "CN202610007", Status: models.StatusReady, TableNumber: "4"},
		PreviousStatus: previous,
		Actor:          models.Actor{ID: "u-kitchen", Role: models.RoleKitchen},
		OccurredAt:     time.Now(),
	}
}

func TestReadyNotificationSentToWaiterAndAdmin(t *testing.T) {
	emitter := new(MockEmitter)
	emitter.On("EmitToRooms", mock.Anything, mock.Anything, mock.Anything).Once()

	notification.NewDispatcher(emitter, logger.Discard()).PublishChange(readyChange(models.StatusPreparing))

	emitter.AssertExpectations(t)
	require.Len(t, emitter.Calls, 1)
	args := emitter.Calls[0].Arguments
	assert.ElementsMatch(t, []string{"Waiter", "Admin"}, args.Get(0).([]string))
	assert.NotContains(t, args.Get(0).([]string), "Kitchen")
	assert.Equal(t, "order_ready_notification", args.String(1))

	note, ok := args.Get(2).(models.ReadyNotification)
	require.True(t, ok)
	assert.Equal(t, "CN202610007", note.OrderNumber)
	assert.Equal(t, "o-1", note.OrderID)
	assert.Equal(t, "u-kitchen", note.TriggeredBy)
	assert.Equal(t, "4", note.TableNumber)
}

func TestNoNotificationForOtherChanges(t *testing.T) {
	emitter := new(MockEmitter)
	d := notification.NewDispatcher(emitter, logger.Discard())

	preparing := readyChange(models.StatusNew)
	preparing.Order.Status = models.StatusPreparing
	d.PublishChange(preparing)

	edited := readyChange(models.StatusReady)
	edited.Type = models.ChangeUpdated
	d.PublishChange(edited)

	settled := readyChange(models.StatusReady)
	settled.Type = models.ChangeSettled
	settled.Order.Status = models.StatusCollected
	d.PublishChange(settled)

	emitter.AssertNotCalled(t, "EmitToRooms", mock.Anything, mock.Anything, mock.Anything)
}
