package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"connect-kitchen/internal/logger"
	"connect-kitchen/internal/models"
	orderdb "connect-kitchen/internal/order/db"
	"connect-kitchen/internal/policy"

	"github.com/google/uuid"
)

type Store interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	UpdateOrder(ctx context.Context, order *models.Order, expectedVersion int64) error
	ListActive(ctx context.Context) ([]models.Order, error)
	ListByEvent(ctx context.Context, eventID string) ([]models.Order, error)
	ListOpenByEvent(ctx context.Context, eventID string) ([]models.Order, error)
	ListByTab(ctx context.Context, tabID string) ([]models.Order, error)
	ListSettleCandidates(ctx context.Context, req models.SettleTabRequest) ([]models.Order, error)
	LastOrder(ctx context.Context) (*models.Order, error)
}

// Sequence issues order numbers. It must never hand the same number to two
// callers, on any instance.
type Sequence interface {
	Next(ctx context.Context) (string, error)
}

// MenuCatalog resolves menu items by id. Unknown ids are absent from the
// result; deleted items are included.
type MenuCatalog interface {
	Lookup(ctx context.Context, ids []string) (map[string]models.MenuItem, error)
}

// ChangePublisher receives every persisted change. PublishChange is called
// on the request path and must not block.
type ChangePublisher interface {
	PublishChange(change models.OrderChange)
}

type OrderService struct {
	Store    Store
	Sequence Sequence
	Menu     MenuCatalog

	log     *logger.Logger
	timeout time.Duration
	now     func() time.Time

	mu         sync.RWMutex
	publishers []ChangePublisher
}

func NewOrderService(store Store, seq Sequence, menu MenuCatalog, log *logger.Logger, timeout time.Duration) *OrderService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OrderService{
		Store:    store,
		Sequence: seq,
		Menu:     menu,
		log:      log,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source. Times are stored in UTC at millisecond
// precision.
func (s *OrderService) SetClock(now func() time.Time) {
	s.now = now
}

// Subscribe adds p to the publishers told about every change.
func (s *OrderService) Subscribe(p ChangePublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishers = append(s.publishers, p)
}

// ---------------- MUTATIONS ----------------

// CreateOrder is the staff creation path.
func (s *OrderService) CreateOrder(ctx context.Context, input models.OrderInput, actor models.Actor) (models.OrderView, error) {
	if !policy.Allow(actor.Role, policy.ActionCreateOrder) {
		return models.OrderView{}, fmt.Errorf("%s may not create orders: %w", actor.Role, ErrForbidden)
	}
	return s.create(ctx, input, actor)
}

// CreatePublicOrder is the guest ordering path. The order is never marked
// paid, and belongs to the guest's tab: the session's tab when it has one,
// else the tab in input, else a new one.
func (s *OrderService) CreatePublicOrder(ctx context.Context, input models.OrderInput, actor models.Actor) (models.OrderView, error) {
	if !policy.Allow(actor.Role, policy.ActionCreatePublicOrder) {
		return models.OrderView{}, fmt.Errorf("%s may not place public orders: %w", actor.Role, ErrForbidden)
	}

	input.IsPaid = false
	switch {
	case actor.Role == models.RoleGuest && actor.TabID != "":
		input.TabID = actor.TabID
	case strings.TrimSpace(input.TabID) == "":
		input.TabID = uuid.NewString()
	}

	return s.create(ctx, input, actor)
}

func (s *OrderService) create(ctx context.Context, input models.OrderInput, actor models.Actor) (models.OrderView, error) {
	if len(input.Items) == 0 {
		return models.OrderView{}, ErrEmptyOrder
	}
	if input.EventID == "" {
		return models.OrderView{}, fmt.Errorf("eventId is required: %w", ErrInvalidOrder)
	}

	menu, err := s.validateItems(ctx, input.EventID, input.Items)
	if err != nil {
		return models.OrderView{}, err
	}

	seqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	number, err := s.Sequence.Next(seqCtx)
	cancel()
	if err != nil {
		s.log.Error("ORDER", fmt.Sprintf("Order number allocation failed: %v", err))
		return models.OrderView{}, fmt.Errorf("%w: %v", ErrSequenceUnavailable, err)
	}

	now := s.clock()
	order := models.Order{
		ID:              uuid.NewString(),
		OrderNumber:     number,
		EventID:         input.EventID,
		TabID:           input.TabID,
		TableNumber:     input.TableNumber,
		CustomerName:    input.CustomerName,
		IsPreOrder:      input.IsPreOrder,
		IsPaid:          input.IsPaid,
		DeliveryAddress: input.DeliveryAddress,
		Items:           append([]models.LineItem(nil), input.Items...),
		Status:          models.StatusNew,
		IsActive:        true,
		Version:         1,
		CreatedBy:       actor.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.Store.CreateOrder(storeCtx, &order); err != nil {
		return models.OrderView{}, fmt.Errorf("failed to create order: %w", err)
	}

	s.log.LogOrder("CREATE", order.ID, fmt.Sprintf("%s by %s (%s), %d items", order.OrderNumber, actor.ID, actor.Role, order.TotalItems()))

	view := models.NewOrderView(order, menu)
	s.publish(models.OrderChange{Type: models.ChangeCreated, Order: view, Actor: actor, OccurredAt: now})
	return view, nil
}

// TransitionStatus moves an order one step along the lifecycle graph.
func (s *OrderService) TransitionStatus(ctx context.Context, id string, target models.Status, actor models.Actor) (models.OrderView, error) {
	if !target.Valid() {
		return models.OrderView{}, fmt.Errorf("unknown status %q: %w", target, ErrInvalidTransition)
	}

	order, err := s.load(ctx, id)
	if err != nil {
		return models.OrderView{}, err
	}

	if !policy.AllowTransition(actor.Role, target) {
		return models.OrderView{}, fmt.Errorf("%s may not move orders to %s: %w", actor.Role, target, ErrForbidden)
	}
	if !CanTransition(order.Status, target) {
		return models.OrderView{}, fmt.Errorf("%s -> %s: %w", order.Status, target, ErrInvalidTransition)
	}

	previous := order.Status
	expected := order.Version
	now := s.clock()

	order.Status = target
	stampTransition(order, now)
	order.UpdatedAt = now
	order.Version++

	if err := s.save(ctx, order, expected); err != nil {
		return models.OrderView{}, err
	}

	s.log.LogOrder("STATUS", order.ID, fmt.Sprintf("%s %s -> %s by %s (%s)", order.OrderNumber, previous, target, actor.ID, actor.Role))

	view := s.view(ctx, *order)
	s.publish(models.OrderChange{Type: models.ChangeStatus, Order: view, PreviousStatus: previous, Actor: actor, OccurredAt: now})
	return view, nil
}

// EditOrder applies patch to a non-terminal order. Staff may edit any such
// order; a guest only its own tab's orders, and only while they are New.
func (s *OrderService) EditOrder(ctx context.Context, id string, patch models.OrderPatch, actor models.Actor) (models.OrderView, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return models.OrderView{}, err
	}

	if order.Status.Terminal() {
		return models.OrderView{}, fmt.Errorf("order %s is %s: %w", order.OrderNumber, order.Status, ErrImmutable)
	}

	switch policy.CanEdit(actor, *order) {
	case policy.EditDenied:
		return models.OrderView{}, fmt.Errorf("%s may not edit order %s: %w", actor.Role, order.OrderNumber, ErrForbidden)
	case policy.EditLocked:
		return models.OrderView{}, fmt.Errorf("order %s: %w", order.OrderNumber, ErrOrderInPreparation)
	}

	if patch.IsPaid != nil && !policy.Allow(actor.Role, policy.ActionSetPaid) {
		return models.OrderView{}, fmt.Errorf("%s may not change payment state: %w", actor.Role, ErrForbidden)
	}

	if patch.Empty() {
		return s.view(ctx, *order), nil
	}

	if patch.Items != nil {
		if len(*patch.Items) == 0 {
			return models.OrderView{}, ErrEmptyOrder
		}
		if _, err := s.validateItems(ctx, order.EventID, *patch.Items); err != nil {
			return models.OrderView{}, err
		}
		order.Items = append([]models.LineItem(nil), (*patch.Items)...)
	}
	if patch.TableNumber != nil {
		order.TableNumber = *patch.TableNumber
	}
	if patch.CustomerName != nil {
		order.CustomerName = *patch.CustomerName
	}
	if patch.IsPreOrder != nil {
		order.IsPreOrder = *patch.IsPreOrder
	}
	if patch.IsPaid != nil {
		order.IsPaid = *patch.IsPaid
	}
	if patch.DeliveryAddress != nil {
		order.DeliveryAddress = *patch.DeliveryAddress
	}

	expected := order.Version
	now := s.clock()
	order.UpdatedAt = now
	order.Version++

	if err := s.save(ctx, order, expected); err != nil {
		return models.OrderView{}, err
	}

	s.log.LogOrder("EDIT", order.ID, fmt.Sprintf("%s edited by %s (%s)", order.OrderNumber, actor.ID, actor.Role))

	view := s.view(ctx, *order)
	s.publish(models.OrderChange{Type: models.ChangeUpdated, Order: view, Actor: actor, OccurredAt: now})
	return view, nil
}

// SoftDelete hides an order from every listing. Its status is kept.
func (s *OrderService) SoftDelete(ctx context.Context, id string, actor models.Actor) error {
	if !policy.Allow(actor.Role, policy.ActionSoftDelete) {
		return fmt.Errorf("%s may not delete orders: %w", actor.Role, ErrForbidden)
	}

	order, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	expected := order.Version
	now := s.clock()
	order.IsActive = false
	order.UpdatedAt = now
	order.Version++

	if err := s.save(ctx, order, expected); err != nil {
		return err
	}

	s.log.LogOrder("DELETE", order.ID, fmt.Sprintf("%s deleted by %s", order.OrderNumber, actor.ID))

	s.publish(models.OrderChange{Type: models.ChangeDeleted, Order: s.view(ctx, *order), Actor: actor, OccurredAt: now})
	return nil
}

type SettleResult struct {
	Settled []models.OrderView `json:"settled"`
	// Conflicts lists ids of orders that changed while settling and were
	// left untouched.
	Conflicts []string `json:"conflicts,omitempty"`
}

// SettleTab closes a tab in one go: every open order of the tab is marked
// paid and Collected, whatever state it was in. This bypasses the single
// order lifecycle graph and has its own permission.
func (s *OrderService) SettleTab(ctx context.Context, req models.SettleTabRequest, actor models.Actor) (SettleResult, error) {
	result := SettleResult{Settled: []models.OrderView{}}

	if !policy.Allow(actor.Role, policy.ActionSettleTab) {
		return result, fmt.Errorf("%s may not settle tabs: %w", actor.Role, ErrForbidden)
	}
	if req.EventID == "" {
		return result, fmt.Errorf("eventId is required: %w", ErrInvalidOrder)
	}

	listCtx, cancel := context.WithTimeout(ctx, s.timeout)
	candidates, err := s.Store.ListSettleCandidates(listCtx, req)
	cancel()
	if err != nil {
		return result, fmt.Errorf("failed to load tab: %w", err)
	}

	for i := range candidates {
		order := &candidates[i]
		previous := order.Status
		expected := order.Version
		now := s.clock()

		order.Status = models.StatusCollected
		stampTransition(order, now)
		order.IsPaid = true
		order.UpdatedAt = now
		order.Version++

		if err := s.save(ctx, order, expected); err != nil {
			if errors.Is(err, ErrConflict) {
				result.Conflicts = append(result.Conflicts, order.ID)
				continue
			}
			return result, err
		}

		view := s.view(ctx, *order)
		result.Settled = append(result.Settled, view)
		s.publish(models.OrderChange{Type: models.ChangeSettled, Order: view, PreviousStatus: previous, Actor: actor, OccurredAt: now})
	}

	s.log.LogOrder("SETTLE", req.EventID, fmt.Sprintf("tab %q/%q settled by %s: %d orders, %d conflicts",
		req.TabID, req.CustomerName, actor.ID, len(result.Settled), len(result.Conflicts)))
	return result, nil
}

// ---------------- QUERIES ----------------

// ListActive returns every active order, oldest first.
func (s *OrderService) ListActive(ctx context.Context) ([]models.OrderView, error) {
	return s.list(ctx, func(ctx context.Context) ([]models.Order, error) {
		return s.Store.ListActive(ctx)
	})
}

func (s *OrderService) ListByEvent(ctx context.Context, eventID string) ([]models.OrderView, error) {
	return s.list(ctx, func(ctx context.Context) ([]models.Order, error) {
		return s.Store.ListByEvent(ctx, eventID)
	})
}

func (s *OrderService) ListByTab(ctx context.Context, tabID string) ([]models.OrderView, error) {
	if tabID == "" {
		return nil, fmt.Errorf("tabId is required: %w", ErrInvalidOrder)
	}
	return s.list(ctx, func(ctx context.Context) ([]models.Order, error) {
		return s.Store.ListByTab(ctx, tabID)
	})
}

// PublicStatus is the anonymous status board of an event: open orders only,
// without customer details.
func (s *OrderService) PublicStatus(ctx context.Context, eventID string) ([]models.PublicOrderStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	orders, err := s.Store.ListOpenByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	board := make([]models.PublicOrderStatus, 0, len(orders))
	for _, o := range orders {
		board = append(board, o.PublicStatus())
	}
	return board, nil
}

// LastOrderNumber returns the number of the most recently created order, or
// "" when there is none.
func (s *OrderService) LastOrderNumber(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	order, err := s.Store.LastOrder(ctx)
	if errors.Is(err, orderdb.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load last order: %w", err)
	}
	return order.OrderNumber, nil
}

// ---------------- HELPERS ----------------

func (s *OrderService) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// load returns an active order. Soft-deleted orders are not found.
func (s *OrderService) load(ctx context.Context, id string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	order, err := s.Store.GetOrderByID(ctx, id)
	if errors.Is(err, orderdb.ErrNotFound) || (err == nil && !order.IsActive) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", id, err)
	}
	return order, nil
}

// save writes order if nobody else wrote it since expected. A lost race is
// reported as ErrConflict and always logged.
func (s *OrderService) save(ctx context.Context, order *models.Order, expected int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.Store.UpdateOrder(ctx, order, expected)
	if errors.Is(err, orderdb.ErrStaleVersion) {
		s.log.Warn("ORDER", fmt.Sprintf("Concurrent update rejected for order %s (%s): expected version %d", order.ID, order.OrderNumber, expected))
		return fmt.Errorf("order %s: %w", order.OrderNumber, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", order.ID, err)
	}
	return nil
}

// validateItems checks quantities and that every item is on the event's
// menu. It returns the resolved menu for building views.
func (s *OrderService) validateItems(ctx context.Context, eventID string, items []models.LineItem) (map[string]models.MenuItem, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("quantity of %s must be at least 1: %w", item.MenuItemID, ErrInvalidOrder)
		}
		ids = append(ids, item.MenuItemID)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	menu, err := s.Menu.Lookup(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load menu items: %w", err)
	}

	for _, id := range ids {
		m, ok := menu[id]
		if !ok || m.IsDeleted {
			return nil, fmt.Errorf("menu item %s is not available: %w", id, ErrInvalidOrder)
		}
		if m.EventID != eventID {
			return nil, fmt.Errorf("menu item %s belongs to another event: %w", id, ErrInvalidOrder)
		}
	}
	return menu, nil
}

// view denormalizes one order. A menu failure degrades to id-only items;
// the mutation already happened and must still be reported.
func (s *OrderService) view(ctx context.Context, order models.Order) models.OrderView {
	menu, err := s.lookupMenu(ctx, []models.Order{order})
	if err != nil {
		s.log.Warn("ORDER", fmt.Sprintf("Menu lookup failed for order %s: %v", order.ID, err))
	}
	return models.NewOrderView(order, menu)
}

func (s *OrderService) list(ctx context.Context, query func(context.Context) ([]models.Order, error)) ([]models.OrderView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	orders, err := query(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	menu, err := s.lookupMenu(ctx, orders)
	if err != nil {
		return nil, err
	}

	views := make([]models.OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, models.NewOrderView(o, menu))
	}
	return views, nil
}

func (s *OrderService) lookupMenu(ctx context.Context, orders []models.Order) (map[string]models.MenuItem, error) {
	seen := make(map[string]bool)
	ids := []string{}
	for _, o := range orders {
		for _, item := range o.Items {
			if !seen[item.MenuItemID] {
				seen[item.MenuItemID] = true
				ids = append(ids, item.MenuItemID)
			}
		}
	}
	if len(ids) == 0 {
		return map[string]models.MenuItem{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	menu, err := s.Menu.Lookup(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load menu items: %w", err)
	}
	return menu, nil
}

func (s *OrderService) publish(change models.OrderChange) {
	s.mu.RLock()
	publishers := append([]ChangePublisher(nil), s.publishers...)
	s.mu.RUnlock()

	for _, p := range publishers {
		p.PublishChange(change)
	}
}
