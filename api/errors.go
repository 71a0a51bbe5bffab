package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vdutts/vault/identity"
	"github.com/vdutts/vault/pin"
	"github.com/vdutts/vault/unlock"
)

const maxBodySize = 1 << 14

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// decodeJSON reads a size-limited JSON body into T. On failure it writes a
// 400 and returns false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return v, false
	}
	return v, true
}

// mapError writes the HTTP reply for err. Messages for the known classes are
// the ones shown to the user; anything else is logged and hidden.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, unlock.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, unlock.ErrPinMismatch):
		writeError(w, http.StatusBadRequest, unlock.ConditionPinMismatch)
	case errors.Is(err, pin.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, identity.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "identity provider unavailable")
	case errors.Is(err, pin.ErrIO):
		slog.Error("credential store failure", "error", err)
		writeError(w, http.StatusInternalServerError, "credential store unavailable")
	default:
		slog.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
