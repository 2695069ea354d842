package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"connect-kitchen/internal/models"

	"github.com/uptrace/bun"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrStaleVersion is returned when a compare-and-swap update finds the
	// row at a different version than the caller read.
	ErrStaleVersion = errors.New("stale order version")
)

type DB struct {
	Bun *bun.DB
}

// updatableColumns are the order columns an update may write. id,
// order_number, event_id and created_at never change after insert.
var updatableColumns = []string{
	"tab_id", "table_number", "customer_name", "is_pre_order", "is_paid",
	"delivery_address", "items", "status", "is_active", "version", "updated_at",
	"preparing_started_at", "ready_at", "collected_at", "cancelled_at",
}

// ---------------- ORDERS ----------------

// CreateOrder → insert new order
func (d *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := d.Bun.NewInsert().Model(order).Exec(ctx)
	return err
}

// GetOrderByID → fetch one order by its ID
func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// UpdateOrder writes order only if the stored row is still at
// expectedVersion. order.Version must already hold the new version.
func (d *DB) UpdateOrder(ctx context.Context, order *models.Order, expectedVersion int64) error {
	res, err := d.Bun.NewUpdate().
		Model(order).
		Column(updatableColumns...).
		Where("id = ?", order.ID).
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %s at version %d: %w", order.ID, expectedVersion, ErrStaleVersion)
	}
	return nil
}

// ListActive → every active order, oldest first
func (d *DB) ListActive(ctx context.Context) ([]models.Order, error) {
	orders := []models.Order{}
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Scan(ctx)
	return orders, err
}

// ListByEvent → active orders of one event, newest first
func (d *DB) ListByEvent(ctx context.Context, eventID string) ([]models.Order, error) {
	orders := []models.Order{}
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("event_id = ?", eventID).
		Where("is_active = ?", true).
		Order("created_at DESC").
		Scan(ctx)
	return orders, err
}

// ListOpenByEvent → active orders of one event that are not finished
func (d *DB) ListOpenByEvent(ctx context.Context, eventID string) ([]models.Order, error) {
	orders := []models.Order{}
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("event_id = ?", eventID).
		Where("is_active = ?", true).
		Where("status NOT IN (?)", bun.In([]string{string(models.StatusCollected), string(models.StatusCancelled)})).
		Order("created_at ASC").
		Scan(ctx)
	return orders, err
}

// ListByTab → active orders placed from one guest tab, newest first
func (d *DB) ListByTab(ctx context.Context, tabID string) ([]models.Order, error) {
	orders := []models.Order{}
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("tab_id = ?", tabID).
		Where("is_active = ?", true).
		Order("created_at DESC").
		Scan(ctx)
	return orders, err
}

// ListSettleCandidates → open orders of the tab selected by req. A request
// without tab id and customer name selects orders that carry neither.
func (d *DB) ListSettleCandidates(ctx context.Context, req models.SettleTabRequest) ([]models.Order, error) {
	orders := []models.Order{}
	q := d.Bun.NewSelect().
		Model(&orders).
		Where("event_id = ?", req.EventID).
		Where("is_active = ?", true).
		Where("status NOT IN (?)", bun.In([]string{string(models.StatusCollected), string(models.StatusCancelled)}))

	switch {
	case req.TabID != "":
		q = q.Where("tab_id = ?", req.TabID)
	case req.CustomerName != "":
		q = q.Where("customer_name = ?", req.CustomerName)
	default:
		q = q.Where("customer_name IS NULL")
	}

	err := q.Order("created_at ASC").Scan(ctx)
	return orders, err
}

// LastOrder → most recently created order, any state
func (d *DB) LastOrder(ctx context.Context) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Order("created_at DESC", "order_number DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// ---------------- COUNTERS ----------------

// IncrementCounter atomically bumps the counter row for bucket, creating it
// at 1 when missing, and returns the new value. One statement, so concurrent
// callers on any instance never read the same value.
func (d *DB) IncrementCounter(ctx context.Context, bucket string) (int64, error) {
	var seq int64
	err := d.Bun.NewRaw(
		`INSERT INTO order_counters (id, seq) VALUES (?, 1)
		ON CONFLICT (id) DO UPDATE SET seq = order_counters.seq + 1
		RETURNING seq`, bucket,
	).Scan(ctx, &seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// ---------------- MENU ITEMS ----------------

// GetMenuItems → menu items by id; unknown ids are simply absent
func (d *DB) GetMenuItems(ctx context.Context, ids []string) ([]models.MenuItem, error) {
	items := []models.MenuItem{}
	if len(ids) == 0 {
		return items, nil
	}
	err := d.Bun.NewSelect().
		Model(&items).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	return items, err
}

// GetMenuItemsByEvent → the non-deleted menu of one event
func (d *DB) GetMenuItemsByEvent(ctx context.Context, eventID string) ([]models.MenuItem, error) {
	items := []models.MenuItem{}
	err := d.Bun.NewSelect().
		Model(&items).
		Where("event_id = ?", eventID).
		Where("is_deleted = ?", false).
		Order("category", "name").
		Scan(ctx)
	return items, err
}

// CreateMenuItem → insert a menu item (seeding and tests)
func (d *DB) CreateMenuItem(ctx context.Context, item *models.MenuItem) error {
	_, err := d.Bun.NewInsert().Model(item).Exec(ctx)
	return err
}

// CreateSchema creates the tables from the models. Production uses the SQL
// migrations; this is for in-memory databases.
func CreateSchema(ctx context.Context, bunDB *bun.DB) error {
	for _, model := range []interface{}{
		(*models.Order)(nil),
		(*models.MenuItem)(nil),
		(*models.OrderCounter)(nil),
	} {
		if _, err := bunDB.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
