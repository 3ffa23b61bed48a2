package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"

	"github.com/xiaoyoufung/lmwn-swe-assignment/internal/domain/order"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// CreateOrder handles POST /api/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req order.CreateOrderRequest
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "restaurantId":
			req.RestaurantID, err = d.Str()
		case "tableId":
			req.TableID, err = decodeOptStr(d)
		case "createdBy":
			req.CreatedBy, err = d.Str()
		case "items":
			req.Items, err = decodeLineRequests(d)
		case "discountIds":
			req.DiscountIDs, err = decodeStrings(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/orders/"+o.ID())
	writeOrder(w, http.StatusCreated, o)
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// ListOrders handles GET /api/orders. Supported query parameters are
// restaurantId, status, number, from, to (RFC 3339) and limit.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orders, err := h.orders.ListOrders(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, o := range orders {
			encodeOrder(e, o)
		}
		e.ArrEnd()
	})
}

func parseFilter(r *http.Request) (order.Filter, error) {
	q := r.URL.Query()
	f := order.Filter{
		RestaurantID: q.Get("restaurantId"),
		Number:       q.Get("number"),
		Limit:        defaultListLimit,
	}
	if v := q.Get("status"); v != "" {
		st, err := order.ParseStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = &st
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"from", &f.From},
		{"to", &f.To},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, badRequest("invalid "+p.name, err)
		}
		*p.dst = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, badRequest("limit must be a positive integer", nil)
		}
		f.Limit = min(n, maxListLimit)
	}
	return f, nil
}

// UpdateOrderStatus handles PATCH /api/orders/{id}/status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	req := order.UpdateStatusRequest{OrderID: r.PathValue("id")}
	var status string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			status, err = d.Str()
		case "changedBy":
			req.ChangedBy, err = d.Str()
		case "notes":
			req.Notes, err = decodeOptStr(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Status, err = order.ParseStatus(status); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateOrderStatus(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// CancelOrder handles POST /api/orders/{id}/cancel.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	req := order.CancelOrderRequest{OrderID: r.PathValue("id")}
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "reason":
			req.Reason, err = d.Str()
		case "cancelledBy":
			req.CancelledBy, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.CancelOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// History handles GET /api/orders/{id}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	records, err := h.orders.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, rec := range records {
			encodeHistory(e, rec)
		}
		e.ArrEnd()
	})
}

// AddItems handles POST /api/orders/{id}/items.
func (h *Handler) AddItems(w http.ResponseWriter, r *http.Request) {
	var items []order.LineRequest
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		var err error
		items, err = decodeLineRequests(d)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.AddItems(r.Context(), r.PathValue("id"), items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// UpdateItemQuantity handles PATCH /api/orders/{id}/items/{lineId}.
func (h *Handler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	var quantity int
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		var err error
		quantity, err = d.Int()
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateItemQuantity(r.Context(), r.PathValue("id"), r.PathValue("lineId"), quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// RemoveItem handles DELETE /api/orders/{id}/items/{lineId}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.RemoveItem(r.Context(), r.PathValue("id"), r.PathValue("lineId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// ApplyDiscount handles POST /api/orders/{id}/discounts.
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	var discountID string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "discountId" {
			return d.Skip()
		}
		var err error
		discountID, err = d.Str()
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.ApplyDiscount(r.Context(), r.PathValue("id"), discountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// RemoveDiscount handles DELETE /api/orders/{id}/discounts/{discountId}.
func (h *Handler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.RemoveDiscount(r.Context(), r.PathValue("id"), r.PathValue("discountId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}
