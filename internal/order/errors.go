package order

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrForbidden         = errors.New("not authorized for this action")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrImmutable         = errors.New("order can no longer be changed")
	ErrEmptyOrder        = errors.New("order must contain at least one item")
	ErrConflict          = errors.New("order was changed by someone else, reload and retry")
	// ErrSequenceUnavailable means no order number could be issued. The order
	// is not persisted.
	ErrSequenceUnavailable = errors.New("order number sequence unavailable")
	// ErrOrderInPreparation is returned to a guest editing its own order after
	// the kitchen picked it up.
	ErrOrderInPreparation = errors.New("order is already being prepared")
	ErrInvalidOrder       = errors.New("invalid order")
)

type errorMapping struct {
	err    error
	code   string
	status int
}

var errorMappings = []errorMapping{
	{ErrNotFound, "not_found", http.StatusNotFound},
	{ErrForbidden, "forbidden", http.StatusForbidden},
	{ErrInvalidTransition, "invalid_transition", http.StatusConflict},
	{ErrImmutable, "immutable", http.StatusConflict},
	{ErrEmptyOrder, "empty_order", http.StatusBadRequest},
	{ErrConflict, "conflict", http.StatusConflict},
	{ErrSequenceUnavailable, "sequence_unavailable", http.StatusServiceUnavailable},
	{ErrOrderInPreparation, "order_in_preparation", http.StatusConflict},
	{ErrInvalidOrder, "invalid_order", http.StatusBadRequest},
	{context.DeadlineExceeded, "timeout", http.StatusGatewayTimeout},
}

// ErrorCode returns the stable wire code for err, "internal" when err is
// not one of the engine's errors.
func ErrorCode(err error) string {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.code
		}
	}
	return "internal"
}

func HTTPStatus(err error) int {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// PublicMessage is the text a client may see for err: the text of the
// matching engine error only, never the failure wrapped around it.
func PublicMessage(err error) string {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.err.Error()
		}
	}
	return "internal server error"
}
