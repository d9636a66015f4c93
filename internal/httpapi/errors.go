package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"mealgen/internal/pipeline"
	"mealgen/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusFor maps errors returned before a stream starts to HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case pipeline.IsTooBusy(err):
		return http.StatusTooManyRequests
	case errors.Is(err, pipeline.ErrInvalidRecipeCount):
		return http.StatusBadRequest
	case errors.As(err, &he):
		return he.StatusCode()
	default:
		return http.StatusInternalServerError
	}
}
