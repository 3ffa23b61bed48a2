package handler

import (
	"net/http"

	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/order"
)

// Handler serves the order API over net/http, delegating business logic to
// the order service.
type Handler struct {
	orders *order.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders *order.Service) *Handler {
	return &Handler{orders: orders}
}

// Register mounts the order routes on mux under /api.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("PATCH /api/orders/{id}/status", h.UpdateOrderStatus)
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.CancelOrder)
	mux.HandleFunc("GET /api/orders/{id}/history", h.History)
	mux.HandleFunc("POST /api/orders/{id}/items", h.AddItems)
	mux.HandleFunc("PATCH /api/orders/{id}/items/{lineId}", h.UpdateItemQuantity)
	mux.HandleFunc("DELETE /api/orders/{id}/items/{lineId}", h.RemoveItem)
	mux.HandleFunc("POST /api/orders/{id}/discounts", h.ApplyDiscount)
	mux.HandleFunc("DELETE /api/orders/{id}/discounts/{discountId}", h.RemoveDiscount)
}
