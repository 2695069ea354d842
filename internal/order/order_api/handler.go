package order_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"connect-kitchen/internal/auth"
	"connect-kitchen/internal/logger"
	"connect-kitchen/internal/models"
	"connect-kitchen/internal/order"
	"connect-kitchen/internal/policy"
	"connect-kitchen/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Orders is the part of the order service exposed over HTTP.
type Orders interface {
	ListActive(ctx context.Context) ([]models.OrderView, error)
	ListByEvent(ctx context.Context, eventID string) ([]models.OrderView, error)
	ListByTab(ctx context.Context, tabID string) ([]models.OrderView, error)
	PublicStatus(ctx context.Context, eventID string) ([]models.PublicOrderStatus, error)
	LastOrderNumber(ctx context.Context) (string, error)
	SettleTab(ctx context.Context, req models.SettleTabRequest, actor models.Actor) (order.SettleResult, error)
}

type Handler struct {
	OrderService Orders
	Auth         *auth.Authenticator
	Logger       *logger.Logger
}

func NewHandler(orderService Orders, authenticator *auth.Authenticator, log *logger.Logger) *Handler {
	return &Handler{
		OrderService: orderService,
		Auth:         authenticator,
		Logger:       log,
	}
}

// RegisterRoutes mounts the order endpoints under /api/orders. stream serves
// the read-only event feed at /api/orders/stream.
func (h *Handler) RegisterRoutes(r chi.Router, stream http.Handler) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(h.Auth.Middleware)

		// --- Public Routes ---
		r.Get("/public/status/{eventId}", h.PublicStatus)
		r.Get("/public/tab/{tabId}", h.ListByTab)
		if stream != nil {
			r.Get("/stream", stream.ServeHTTP)
		}

		// --- Staff Routes ---
		r.With(h.Auth.RequireAction(policy.ActionListOrders)).Get("/", h.ListActive)
		r.With(h.Auth.RequireAction(policy.ActionListOrders)).Get("/event/{eventId}", h.ListByEvent)
		r.With(h.Auth.RequireAction(policy.ActionLastOrderNumber)).Get("/last", h.LastOrderNumber)
		r.With(h.Auth.RequireAction(policy.ActionSettleTab)).Post("/tab/settle", h.SettleTab)
	})
}

func (h *Handler) ListActive(w http.ResponseWriter, r *http.Request) {
	orders, err := h.OrderService.ListActive(r.Context())
	if err != nil {
		h.writeError(w, "ListActive", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Active orders", orders))
}

func (h *Handler) ListByEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	h.Logger.Debug("API", fmt.Sprintf("ListByEvent: eventId=%s", eventID))

	orders, err := h.OrderService.ListByEvent(r.Context(), eventID)
	if err != nil {
		h.writeError(w, "ListByEvent", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event orders", orders))
}

func (h *Handler) PublicStatus(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	board, err := h.OrderService.PublicStatus(r.Context(), eventID)
	if err != nil {
		h.writeError(w, "PublicStatus", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order status", board))
}

func (h *Handler) ListByTab(w http.ResponseWriter, r *http.Request) {
	tabID := chi.URLParam(r, "tabId")

	orders, err := h.OrderService.ListByTab(r.Context(), tabID)
	if err != nil {
		h.writeError(w, "ListByTab", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Tab orders", orders))
}

func (h *Handler) LastOrderNumber(w http.ResponseWriter, r *http.Request) {
	number, err := h.OrderService.LastOrderNumber(r.Context())
	if err != nil {
		h.writeError(w, "LastOrderNumber", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Last order number", map[string]string{"orderNumber": number}))
}

func (h *Handler) SettleTab(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	var req models.SettleTabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("SettleTab: failed to decode request body: %v", err))
		h.writeError(w, "SettleTab", fmt.Errorf("invalid request body: %w", order.ErrInvalidOrder))
		return
	}

	result, err := h.OrderService.SettleTab(r.Context(), req, actor)
	if err != nil {
		h.writeError(w, "SettleTab", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("SettleTab: %s settled %d orders for event %s", actor.ID, len(result.Settled), req.EventID))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Tab settled", result))
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status := order.HTTPStatus(err)
	code := order.ErrorCode(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s failed: %v", op, err))
	} else {
		h.Logger.Debug("API", fmt.Sprintf("%s rejected: %v", op, err))
	}
	utils.WriteJSON(w, status, utils.ErrorResponse("Request failed", code, order.PublicMessage(err)))
}
