package server

import (
	"encoding/json"
	"net/http"

	"github.com/IYouKnow/atlas-probe/internal/fault"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders a command failure with a status chosen by its kind.
func writeError(w http.ResponseWriter, err error) {
	kind := fault.KindOf(err)
	writeJSON(w, statusFor(kind), errorBody{Error: err.Error(), Kind: kind.String()})
}

func statusFor(k fault.Kind) int {
	switch k {
	case fault.NotFound:
		return http.StatusNotFound
	case fault.PermissionDenied:
		return http.StatusForbidden
	case fault.InvalidAddress, fault.SerializationError, fault.InvalidRequest:
		return http.StatusBadRequest
	case fault.ConnectionError, fault.ReadError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
