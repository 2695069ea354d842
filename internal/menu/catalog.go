// Package menu resolves the menu items that orders reference.
package menu

import (
	"context"
	"fmt"

	"connect-kitchen/internal/logger"
	"connect-kitchen/internal/models"
)

type Store interface {
	GetMenuItems(ctx context.Context, ids []string) ([]models.MenuItem, error)
}

type Cache interface {
	GetMany(ctx context.Context, ids []string) (map[string]models.MenuItem, error)
	SetMany(ctx context.Context, items []models.MenuItem) error
}

// Catalog reads through an optional cache into the store. A failing cache
// only costs a store round trip.
type Catalog struct {
	store Store
	cache Cache
	log   *logger.Logger
}

func NewCatalog(store Store, cache Cache, log *logger.Logger) *Catalog {
	return &Catalog{store: store, cache: cache, log: log}
}

func (c *Catalog) Lookup(ctx context.Context, ids []string) (map[string]models.MenuItem, error) {
	ids = unique(ids)
	result := make(map[string]models.MenuItem, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	missing := ids
	if c.cache != nil {
		cached, err := c.cache.GetMany(ctx, ids)
		if err != nil {
			c.log.Warn("MENU", fmt.Sprintf("Cache read failed, using database: %v", err))
		} else {
			missing = missing[:0:0]
			for _, id := range ids {
				if item, ok := cached[id]; ok {
					result[id] = item
				} else {
					missing = append(missing, id)
				}
			}
		}
	}

	if len(missing) == 0 {
		return result, nil
	}

	items, err := c.store.GetMenuItems(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("failed to load menu items: %w", err)
	}
	for _, item := range items {
		result[item.ID] = item
	}

	if c.cache != nil && len(items) > 0 {
		if err := c.cache.SetMany(ctx, items); err != nil {
			c.log.Warn("MENU", fmt.Sprintf("Cache write failed: %v", err))
		}
	}
	return result, nil
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
