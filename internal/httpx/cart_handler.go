package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dnjuguna/mkulima-market/internal/market"
)

type CartStore interface {
	Add(ctx context.Context, userID string, productID int64, qty int) (market.CartLine, error)
	SetQuantity(ctx context.Context, userID string, lineID int64, qty int) (market.CartLine, error)
	Remove(ctx context.Context, userID string, lineID int64) error
	Clear(ctx context.Context, userID string) error
	Snapshot(ctx context.Context, userID string) ([]market.CartLine, error)
}

type CartHandler struct {
	Cart CartStore
}

func (h *CartHandler) Register(r *chi.Mux) {
	r.Get("/api/cart", h.get)
	r.Post("/api/cart", h.add)
	r.Patch("/api/cart/{id}", h.setQuantity)
	r.Delete("/api/cart/{id}", h.remove)
	r.Delete("/api/cart", h.clear)
}

type cartResp struct {
	Items []market.CartLine `json:"items"`
	market.PriceQuote
}

// get returns the snapshot priced with the same function order creation
// uses, so the displayed total always matches the charged total.
func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	lines, err := h.Cart.Snapshot(r.Context(), id.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResp{Items: lines, PriceQuote: market.Quote(lines)})
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req struct {
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	line, err := h.Cart.Add(r.Context(), id.UserID, req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, line)
}

func (h *CartHandler) setQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	lineID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid cart item id")
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid json")
		return
	}
	line, err := h.Cart.SetQuantity(r.Context(), id.UserID, lineID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	lineID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid cart item id")
		return
	}
	if err := h.Cart.Remove(r.Context(), id.UserID, lineID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.Cart.Clear(r.Context(), id.UserID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
