package menu_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"connect-kitchen/internal/logger"
	"connect-kitchen/internal/menu"
	"connect-kitchen/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetMenuItems(ctx context.Context, ids []string) ([]models.MenuItem, error) {
	args := m.Called(ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.MenuItem), args.Error(1)
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

var (
	mohinga = models.MenuItem{ID: "m-1", EventID: "ev-1", Name: "Mohinga", Price: 4.5, Category: "Main", RequiresPrep: true}
	tea     = models.MenuItem{ID: "m-2", EventID: "ev-1", Name: "Tea", Price: 1, Category: "Drink"}
)

func TestLookup_WithoutCache(t *testing.T) {
	store := new(MockStore)
	store.On("GetMenuItems", []string{"m-1", "m-2"}).Return([]models.MenuItem{mohinga}, nil).Once()

	catalog := menu.NewCatalog(store, nil, logger.Discard())
	items, err := catalog.Lookup(context.Background(), []string{"m-1", "m-2", "m-1", ""})

	require.NoError(t, err)
	assert.Equal(t, map[string]models.MenuItem{"m-1": mohinga}, items)
	store.AssertExpectations(t)
}

func TestLookup_ReadsThroughCache(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := new(MockStore)
	store.On("GetMenuItems", []string{"m-1", "m-2"}).Return([]models.MenuItem{mohinga, tea}, nil).Once()

	catalog := menu.NewCatalog(store, menu.NewRedisCache(client, time.Minute), logger.Discard())
	ctx := context.Background()

	first, err := catalog.Lookup(ctx, []string{"m-1", "m-2"})
	require.NoError(t, err)
	assert.Len(t, first, 2)
	assert.True(t, mr.Exists("menu_item:m-1"))
	assert.Equal(t, time.Minute, mr.TTL("menu_item:m-1"))

	// Served from Redis; the store expectation was Once.
	second, err := catalog.Lookup(ctx, []string{"m-2", "m-1"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	store.AssertExpectations(t)
}

func TestLookup_PartialCacheHit(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := menu.NewRedisCache(client, time.Minute)
	require.NoError(t, cache.SetMany(context.Background(), []models.MenuItem{mohinga}))

	store := new(MockStore)
	store.On("GetMenuItems", []string{"m-2"}).Return([]models.MenuItem{tea}, nil).Once()

	items, err := menu.NewCatalog(store, cache, logger.Discard()).Lookup(context.Background(), []string{"m-1", "m-2"})
	require.NoError(t, err)
	assert.Equal(t, "Mohinga", items["m-1"].Name)
	assert.Equal(t, "Tea", items["m-2"].Name)
	store.AssertExpectations(t)
}

func TestLookup_CacheDownFallsBackToStore(t *testing.T) {
	client, mr := setupTestRedis(t)
	mr.Close()

	store := new(MockStore)
	store.On("GetMenuItems", []string{"m-1"}).Return([]models.MenuItem{mohinga}, nil).Once()

	items, err := menu.NewCatalog(store, menu.NewRedisCache(client, time.Minute), logger.Discard()).
		Lookup(context.Background(), []string{"m-1"})
	require.NoError(t, err)
	assert.Equal(t, mohinga, items["m-1"])
}

func TestLookup_StoreError(t *testing.T) {
	store := new(MockStore)
	store.On("GetMenuItems", mock.Anything).Return(nil, errors.New("db down")).Once()

	_, err := menu.NewCatalog(store, nil, logger.Discard()).Lookup(context.Background(), []string{"m-1"})
	assert.Error(t, err)
}

func TestRedisCache_Invalidate(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := menu.NewRedisCache(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.SetMany(ctx, []models.MenuItem{mohinga, tea}))
	require.NoError(t, cache.Invalidate(ctx, "m-1"))

	assert.False(t, mr.Exists("menu_item:m-1"))
	got, err := cache.GetMany(ctx, []string{"m-1", "m-2"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
