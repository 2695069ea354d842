package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"connect-kitchen/internal/models"
	"connect-kitchen/internal/order/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	// A named shared-cache memory database per test, on a single connection
	// so every statement sees the same data.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, db.CreateSchema(context.Background(), bunDB))

	t.Cleanup(func() { bunDB.Close() })
	return &db.DB{Bun: bunDB}, bunDB
}

func newOrder(eventID, number string, created time.Time) *models.Order {
	return &models.Order{
		ID:          uuid.NewString(),
		OrderNumber: number,
		EventID:     eventID,
		Items:       []models.LineItem{{MenuItemID: "m-1", Quantity: 2, Remarks: "extra spicy"}},
		Status:      models.StatusNew,
		IsActive:    true,
		Version:     1,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestCreateAndGetOrder(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()

	created := time.Now().UTC().Truncate(time.Millisecond)
	order := newOrder("ev-1", "CN202610001", created)
	order.TableNumber = "12"
	require.NoError(t, orderDB.CreateOrder(ctx, order))

	got, err := orderDB.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "CN202610001", got.OrderNumber)
	assert.Equal(t, models.StatusNew, got.Status)
	assert.True(t, got.IsActive)
	assert.False(t, got.IsPaid)
	assert.Equal(t, "12", got.TableNumber)
	assert.Empty(t, got.CustomerName)
	assert.Equal(t, []models.LineItem{{MenuItemID: "m-1", Quantity: 2, Remarks: "extra spicy"}}, got.Items)
	assert.True(t, got.CreatedAt.Equal(got.UpdatedAt))
	assert.Nil(t, got.ReadyAt)

	_, err = orderDB.GetOrderByID(ctx, "non-existent")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestCreateOrder_DuplicateNumberRejected(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, orderDB.CreateOrder(ctx, newOrder("ev-1", "CN202610001", now)))
	assert.Error(t, orderDB.CreateOrder(ctx, newOrder("ev-1", "CN202610001", now)))
}

func TestUpdateOrder_CompareAndSwap(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()

	order := newOrder("ev-1", "CN202610001", time.Now().UTC())
	require.NoError(t, orderDB.CreateOrder(ctx, order))

	// First writer read version 1.
	first := order.Clone()
	first.Status = models.StatusPreparing
	first.Version = 2
	require.NoError(t, orderDB.UpdateOrder(ctx, &first, 1))

	// Second writer also read version 1 and must lose.
	second := order.Clone()
	second.CustomerName = "Aung"
	second.Version = 2
	err := orderDB.UpdateOrder(ctx, &second, 1)
	assert.ErrorIs(t, err, db.ErrStaleVersion)

	got, err := orderDB.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPreparing, got.Status)
	assert.Empty(t, got.CustomerName)
	assert.Equal(t, int64(2), got.Version)
}

func TestListQueries(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	a := newOrder("ev-1", "CN202610001", base)
	a.TabID = "tab-1"
	b := newOrder("ev-1", "CN202610002", base.Add(time.Minute))
	b.Status = models.StatusCollected
	b.TabID = "tab-1"
	c := newOrder("ev-2", "CN202610003", base.Add(2*time.Minute))
	d := newOrder("ev-1", "CN202610004", base.Add(3*time.Minute))
	d.IsActive = false
	d.TabID = "tab-1"

	for _, o := range []*models.Order{a, b, c, d} {
		require.NoError(t, orderDB.CreateOrder(ctx, o))
	}

	active, err := orderDB.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, ids(active))

	byEvent, err := orderDB.ListByEvent(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, a.ID}, ids(byEvent))

	open, err := orderDB.ListOpenByEvent(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids(open))

	byTab, err := orderDB.ListByTab(ctx, "tab-1")
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, a.ID}, ids(byTab))

	last, err := orderDB.LastOrder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "CN202610004", last.OrderNumber)
}

func TestListSettleCandidates(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	named := newOrder("ev-1", "CN202610001", now)
	named.CustomerName = "Su"
	anonymous := newOrder("ev-1", "CN202610002", now.Add(time.Second))
	tabbed := newOrder("ev-1", "CN202610003", now.Add(2*time.Second))
	tabbed.TabID = "tab-9"
	tabbed.CustomerName = "Su"
	done := newOrder("ev-1", "CN202610004", now.Add(3*time.Second))
	done.CustomerName = "Su"
	done.Status = models.StatusCollected

	for _, o := range []*models.Order{named, anonymous, tabbed, done} {
		require.NoError(t, orderDB.CreateOrder(ctx, o))
	}

	byName, err := orderDB.ListSettleCandidates(ctx, models.SettleTabRequest{EventID: "ev-1", CustomerName: "Su"})
	require.NoError(t, err)
	assert.Equal(t, []string{named.ID, tabbed.ID}, ids(byName))

	byTab, err := orderDB.ListSettleCandidates(ctx, models.SettleTabRequest{EventID: "ev-1", TabID: "tab-9", CustomerName: "Su"})
	require.NoError(t, err)
	assert.Equal(t, []string{tabbed.ID}, ids(byTab))

	walkIns, err := orderDB.ListSettleCandidates(ctx, models.SettleTabRequest{EventID: "ev-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{anonymous.ID}, ids(walkIns))
}

func TestIncrementCounter_ConcurrentCallersGetDistinctValues(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()

	first, err := orderDB.IncrementCounter(ctx, "CN202610")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	const callers = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seqs []int64
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := orderDB.IncrementCounter(ctx, "CN202610")
			assert.NoError(t, err)
			mu.Lock()
			seqs = append(seqs, seq)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	require.Len(t, seqs, callers)
	for i, seq := range seqs {
		assert.Equal(t, int64(i+2), seq)
	}

	other, err := orderDB.IncrementCounter(ctx, "CN202611")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other, "each month bucket counts on its own")
}

func TestMenuItems(t *testing.T) {
	orderDB, _ := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, orderDB.CreateMenuItem(ctx, &models.MenuItem{ID: "m-1", EventID: "ev-1", Name: "Mohinga", Price: 4.5, Category: "Main", RequiresPrep: true}))
	require.NoError(t, orderDB.CreateMenuItem(ctx, &models.MenuItem{ID: "m-2", EventID: "ev-1", Name: "Tea", Price: 1, Category: "Drink"}))
	require.NoError(t, orderDB.CreateMenuItem(ctx, &models.MenuItem{ID: "m-3", EventID: "ev-1", Name: "Old", Price: 1, Category: "Drink", IsDeleted: true}))

	items, err := orderDB.GetMenuItems(ctx, []string{"m-1", "m-3", "missing"})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	empty, err := orderDB.GetMenuItems(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	menu, err := orderDB.GetMenuItemsByEvent(ctx, "ev-1")
	require.NoError(t, err)
	require.Len(t, menu, 2)
	assert.Equal(t, "Tea", menu[0].Name)
	assert.Equal(t, "Mohinga", menu[1].Name)
}

func ids(orders []models.Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}
