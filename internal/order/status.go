package order

import (
	"time"

	"connect-kitchen/internal/models"
)

// successors is the lifecycle graph. Collected and Cancelled have no way out
// and nothing leads back to New.
var successors = map[models.Status][]models.Status{
	models.StatusNew:       {models.StatusPreparing, models.StatusCancelled},
	models.StatusPreparing: {models.StatusReady},
	models.StatusReady:     {models.StatusCollected},
}

// CanTransition reports whether to directly follows from.
func CanTransition(from, to models.Status) bool {
	for _, next := range successors[from] {
		if next == to {
			return true
		}
	}
	return false
}

// stampTransition records the first entry into o.Status.
func stampTransition(o *models.Order, at time.Time) {
	t := at
	switch o.Status {
	case models.StatusPreparing:
		if o.PreparingStartedAt == nil {
			o.PreparingStartedAt = &t
		}
	case models.StatusReady:
		if o.ReadyAt == nil {
			o.ReadyAt = &t
		}
	case models.StatusCollected:
		if o.CollectedAt == nil {
			o.CollectedAt = &t
		}
	case models.StatusCancelled:
		if o.CancelledAt == nil {
			o.CancelledAt = &t
		}
	}
}
