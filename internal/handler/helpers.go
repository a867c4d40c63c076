package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/blogchat/internal/chat"
	"github.com/blogchat/internal/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps the service error taxonomy to HTTP statuses.
// Validation errors carry their message to the client; everything else gets a
// fixed string so internals do not leak.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, chat.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, chat.ErrTransientStore):
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
	default:
		logger.Errorf("handler: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// queryInt parses a non-negative query parameter. Malformed or negative
// values fall back to the default (negative LIMIT/OFFSET would error in the
// store).
func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
