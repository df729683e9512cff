package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/dnjuguna/mkulima-market/internal/auth"
	"github.com/dnjuguna/mkulima-market/internal/market"
	"github.com/dnjuguna/mkulima-market/internal/store"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMsg(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeError maps the error taxonomy onto HTTP status codes. Stock
// shortages carry enough detail for the client to fix the cart.
func writeError(w http.ResponseWriter, err error) {
	var shortage *market.StockShortageError
	var unavailable *market.ProductUnavailableError
	var transition *market.InvalidTransitionError
	var state *market.InvalidStateError
	var gateway *market.GatewayError
	var integrity *market.IntegrityError

	switch {
	case errors.As(err, &shortage):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":        shortage.Error(),
			"product_id":   shortage.ProductID,
			"product_name": shortage.ProductName,
			"requested":    shortage.Requested,
			"available":    shortage.Available,
		})
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      unavailable.Error(),
			"product_id": unavailable.ProductID,
		})
	case errors.As(err, &transition), errors.As(err, &state):
		writeErrorMsg(w, http.StatusConflict, err.Error())
	case errors.Is(err, market.ErrEmptyCart), errors.Is(err, market.ErrInvalidArgument):
		writeErrorMsg(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, market.ErrNotFound):
		writeErrorMsg(w, http.StatusNotFound, "not found")
	case errors.Is(err, market.ErrForbidden):
		writeErrorMsg(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeErrorMsg(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, store.ErrEmailTaken):
		writeErrorMsg(w, http.StatusConflict, err.Error())
	case errors.As(err, &gateway):
		writeErrorMsg(w, http.StatusBadGateway, "payment provider unavailable, try again")
	case errors.As(err, &integrity):
		logrus.WithError(err).Error("integrity violation")
		writeErrorMsg(w, http.StatusInternalServerError, "internal error")
	default:
		logrus.WithError(err).Error("unhandled error")
		writeErrorMsg(w, http.StatusInternalServerError, "internal error")
	}
}

// identity pulls the authenticated principal or writes 401.
func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		writeErrorMsg(w, http.StatusUnauthorized, "unauthorized")
		return auth.Identity{}, false
	}
	return id, true
}
