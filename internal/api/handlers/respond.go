package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Cheertaboi/order-fulfillment-core/internal/apperr"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Available string `json:"available_balance,omitempty"`
	Requested string `json:"requested_amount,omitempty"`
}

// writeError maps the domain error taxonomy onto HTTP statuses. Unclassified
// errors become opaque 500s; internals never leak to the caller.
func writeError(w http.ResponseWriter, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}

	body := errorBody{Error: e.Message, Code: string(e.Code)}
	switch e.Code {
	case apperr.CodeValidation:
		writeJSON(w, http.StatusBadRequest, body)
	case apperr.CodeNotFound:
		writeJSON(w, http.StatusNotFound, body)
	case apperr.CodeStateConflict:
		writeJSON(w, http.StatusConflict, body)
	case apperr.CodeInsufficientFunds:
		body.Available = e.Available.String()
		body.Requested = e.Requested.String()
		writeJSON(w, http.StatusUnprocessableEntity, body)
	case apperr.CodeUnavailable:
		writeJSON(w, http.StatusServiceUnavailable, body)
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// userID returns the caller identity as verified by the upstream auth layer.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func isAdmin(r *http.Request) bool {
	return r.Header.Get("X-Admin") == "true"
}
