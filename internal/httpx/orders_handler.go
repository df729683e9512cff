package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dnjuguna/mkulima-market/internal/auth"
	"github.com/dnjuguna/mkulima-market/internal/market"
)

type OrderStore interface {
	CreateFromCart(ctx context.Context, userID string, info market.DeliveryInfo) (market.Order, []market.OrderItem, error)
	Order(ctx context.Context, id int64) (market.Order, []market.OrderItem, error)
	ListByUser(ctx context.Context, userID string) ([]market.Order, error)
	ListByFarmer(ctx context.Context, farmerID int64) ([]market.Order, error)
	HasFarmerItems(ctx context.Context, orderID, farmerID int64) (bool, error)
	Advance(ctx context.Context, id int64, to market.Status) (market.Order, error)
	Cancel(ctx context.Context, id int64, userID string, admin bool) (market.Order, error)
}

type OrdersHandler struct {
	Orders   OrderStore
	Farmers  FarmerDirectory
	Producer EventPublisher
	Service  string
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Get("/api/orders", h.list)
	r.Get("/api/orders/{id}", h.get)
	r.Post("/api/orders", h.create)
	r.Patch("/api/orders/{id}", h.advance)
	r.Post("/api/orders/{id}/cancel", h.cancel)
}

type createOrderReq struct {
	DeliveryAddress      string `json:"delivery_address"`
	DeliveryPhone        string `json:"delivery_phone"`
	DeliveryInstructions string `json:"delivery_instructions"`
	PaymentMethod        string `json:"payment_method"`
}

type orderResp struct {
	market.Order
	Items []market.OrderItem `json:"items"`
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.DeliveryAddress == "" || req.DeliveryPhone == "" {
		writeErrorMsg(w, http.StatusBadRequest, "delivery address and phone are required")
		return
	}

	o, items, err := h.Orders.CreateFromCart(r.Context(), ident.UserID, market.DeliveryInfo{
		Address:      req.DeliveryAddress,
		Phone:        req.DeliveryPhone,
		Instructions: req.DeliveryInstructions,
		Method:       req.PaymentMethod,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	qtys := make([]market.ItemQty, 0, len(items))
	for _, it := range items {
		qtys = append(qtys, market.ItemQty{ProductID: it.ProductID, Qty: it.Qty})
	}
	PublishOrderEvent(h.Producer, h.Service, r.Header.Get("X-Request-Id"),
		market.TopicOrderCreated, market.EventOrderCreated, o.ID,
		market.OrderCreatedPayload{
			OrderID: o.ID, UserID: o.UserID, Total: o.TotalAmount.String(), Items: qtys,
		})

	writeJSON(w, http.StatusCreated, orderResp{Order: o, Items: items})
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}

	if ident.Role == market.RoleFarmer {
		farmer, err := h.Farmers.ByUserID(r.Context(), ident.UserID)
		if err != nil {
			writeJSON(w, http.StatusOK, []market.Order{})
			return
		}
		orders, err := h.Orders.ListByFarmer(r.Context(), farmer.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, orders)
		return
	}

	orders, err := h.Orders.ListByUser(r.Context(), ident.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid order id")
		return
	}
	o, items, err := h.Orders.Order(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !h.canSee(r, ident, o) {
		// 404, not 403: do not leak that the order exists
		writeErrorMsg(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, orderResp{Order: o, Items: items})
}

// advance applies a fulfillment step: admins anywhere, farmers only on
// orders carrying their items.
func (h *OrdersHandler) advance(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var req struct {
		Status market.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !market.ValidStatus(req.Status) {
		writeErrorMsg(w, http.StatusBadRequest, "invalid status")
		return
	}

	switch ident.Role {
	case market.RoleAdmin:
	case market.RoleFarmer:
		farmer, err := h.Farmers.ByUserID(r.Context(), ident.UserID)
		if err != nil {
			writeErrorMsg(w, http.StatusForbidden, "forbidden")
			return
		}
		owns, err := h.Orders.HasFarmerItems(r.Context(), id, farmer.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		if !owns {
			writeErrorMsg(w, http.StatusForbidden, "forbidden")
			return
		}
	default:
		writeErrorMsg(w, http.StatusForbidden, "forbidden")
		return
	}

	o, err := h.Orders.Advance(r.Context(), id, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// cancel closes an order the customer no longer wants: before payment
// starts, or after the payment window lapsed and the order sits in
// PAYMENT_FAILED. Anything mid-payment belongs to the callback.
func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.Orders.Cancel(r.Context(), id, ident.UserID, ident.Role == market.RoleAdmin)
	if err != nil {
		writeError(w, err)
		return
	}

	PublishOrderEvent(h.Producer, h.Service, r.Header.Get("X-Request-Id"),
		market.TopicOrderCancelled, market.EventOrderCancelled, o.ID,
		market.OrderCancelledPayload{
			OrderID: o.ID, UserID: o.UserID, Reason: "CANCELLED_BY_CUSTOMER",
		})

	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) canSee(r *http.Request, ident auth.Identity, o market.Order) bool {
	if ident.Role == market.RoleAdmin || o.UserID == ident.UserID {
		return true
	}
	if ident.Role == market.RoleFarmer {
		farmer, err := h.Farmers.ByUserID(r.Context(), ident.UserID)
		if err != nil {
			return false
		}
		owns, err := h.Orders.HasFarmerItems(r.Context(), o.ID, farmer.ID)
		return err == nil && owns
	}
	return false
}
