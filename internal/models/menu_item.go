package models

import "github.com/uptrace/bun"

type MenuItem struct {
	bun.BaseModel `bun:"table:menu_items"`

	ID           string  `bun:"id,pk" json:"id"`
	EventID      string  `bun:"event_id,notnull" json:"eventId"`
	Name         string  `bun:"name,notnull" json:"name"`
	Price        float64 `bun:"price,notnull" json:"price"`
	Category     string  `bun:"category,notnull" json:"category"`
	RequiresPrep bool    `bun:"requires_prep,notnull" json:"requiresPrep"`
	IsDeleted    bool    `bun:"is_deleted,notnull" json:"isDeleted"`
}

// MenuItemSummary is the part of a menu item embedded in broadcast orders.
type MenuItemSummary struct {
	ID           string  `json:"id"`
	Name         string  `json:"name,omitempty"`
	Price        float64 `json:"price"`
	Category     string  `json:"category,omitempty"`
	RequiresPrep bool    `json:"requiresPrep"`
}

func (m MenuItem) Summary() MenuItemSummary {
	return MenuItemSummary{
		ID:           m.ID,
		Name:         m.Name,
		Price:        m.Price,
		Category:     m.Category,
		RequiresPrep: m.RequiresPrep,
	}
}
