package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/dnjuguna/mkulima-market/internal/market"
	"github.com/dnjuguna/mkulima-market/internal/store"
)

type ProductStore interface {
	Product(ctx context.Context, id int64) (market.Product, error)
	List(ctx context.Context, f store.ProductFilters) ([]market.Product, error)
	Create(ctx context.Context, p market.Product) (market.Product, error)
	Update(ctx context.Context, id int64, u store.ProductUpdate) (market.Product, error)
	Deactivate(ctx context.Context, id int64) error
}

type FarmerDirectory interface {
	ByUserID(ctx context.Context, userID string) (market.Farmer, error)
}

type CategoryStore interface {
	List(ctx context.Context) ([]market.Category, error)
	Create(ctx context.Context, name, description string) (market.Category, error)
}

type ProductsHandler struct {
	Products   ProductStore
	Farmers    FarmerDirectory
	Categories CategoryStore
}

func (h *ProductsHandler) Register(r *chi.Mux) {
	r.Get("/api/products", h.list)
	r.Get("/api/products/{id}", h.get)
	r.Post("/api/products", h.create)
	r.Patch("/api/products/{id}", h.update)
	r.Delete("/api/products/{id}", h.deactivate)
	r.Get("/api/categories", h.listCategories)
	r.Post("/api/categories", h.createCategory)
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	var f store.ProductFilters
	q := r.URL.Query()
	f.CategoryID, _ = strconv.ParseInt(q.Get("categoryId"), 10, 64)
	f.FarmerID, _ = strconv.ParseInt(q.Get("farmerId"), 10, 64)
	f.Search = q.Get("search")

	ps, err := h.Products.List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid product id")
		return
	}
	p, err := h.Products.Product(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type productReq struct {
	CategoryID  int64  `json:"category_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Unit        string `json:"unit"`
	Stock       int    `json:"stock"`
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	farmer, err := h.Farmers.ByUserID(r.Context(), ident.UserID)
	if err != nil {
		writeErrorMsg(w, http.StatusForbidden, "farmer profile required")
		return
	}

	var req productReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid json")
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		writeErrorMsg(w, http.StatusBadRequest, "invalid price")
		return
	}
	if req.Name == "" || req.Unit == "" || req.Stock < 0 {
		writeErrorMsg(w, http.StatusBadRequest, "missing fields")
		return
	}

	p, err := h.Products.Create(r.Context(), market.Product{
		FarmerID:    farmer.ID,
		CategoryID:  req.CategoryID,
		Name:        req.Name,
		Description: req.Description,
		Price:       price,
		Unit:        req.Unit,
		Stock:       req.Stock,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type productPatch struct {
	CategoryID  *int64  `json:"category_id"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *string `json:"price"`
	Unit        *string `json:"unit"`
	Stock       *int    `json:"stock"`
}

func (h *ProductsHandler) update(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid product id")
		return
	}
	if !h.ownsProduct(w, r, ident.UserID, id) {
		return
	}

	var req productPatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid json")
		return
	}
	var u store.ProductUpdate
	u.CategoryID = req.CategoryID
	u.Name = req.Name
	u.Description = req.Description
	u.Unit = req.Unit
	u.Stock = req.Stock
	if req.Price != nil {
		price, err := decimal.NewFromString(*req.Price)
		if err != nil || price.IsNegative() {
			writeErrorMsg(w, http.StatusBadRequest, "invalid price")
			return
		}
		u.Price = &price
	}
	if req.Stock != nil && *req.Stock < 0 {
		writeErrorMsg(w, http.StatusBadRequest, "invalid stock")
		return
	}

	p, err := h.Products.Update(r.Context(), id, u)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// deactivate soft-deletes; historical orders keep referencing the product.
func (h *ProductsHandler) deactivate(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid product id")
		return
	}
	if !h.ownsProduct(w, r, ident.UserID, id) {
		return
	}
	if err := h.Products.Deactivate(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductsHandler) ownsProduct(w http.ResponseWriter, r *http.Request, userID string, productID int64) bool {
	p, err := h.Products.Product(r.Context(), productID)
	if err != nil {
		writeError(w, err)
		return false
	}
	farmer, err := h.Farmers.ByUserID(r.Context(), userID)
	if err != nil || farmer.ID != p.FarmerID {
		writeErrorMsg(w, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}

func (h *ProductsHandler) listCategories(w http.ResponseWriter, r *http.Request) {
	cs, err := h.Categories.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (h *ProductsHandler) createCategory(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	if ident.Role != market.RoleAdmin {
		writeErrorMsg(w, http.StatusForbidden, "admin access required")
		return
	}
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeErrorMsg(w, http.StatusBadRequest, "invalid category")
		return
	}
	c, err := h.Categories.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}
