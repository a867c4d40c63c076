package handler

import (
	"net/http"
	"strings"

	"github.com/blogchat/internal/directory"
	"github.com/blogchat/internal/logger"
)

// UserHandler proxies user search to the directory service for the new-room
// picker.
type UserHandler struct {
	directory *directory.Client
}

func NewUserHandler(d *directory.Client) *UserHandler {
	return &UserHandler{directory: d}
}

func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := queryInt(r, "limit", 20)
	if limit > 50 {
		limit = 50
	}

	users, err := h.directory.Search(r.Context(), query, limit)
	if err != nil {
		logger.Errorf("user search %q: %v", query, err)
		writeError(w, http.StatusServiceUnavailable, "directory unavailable")
		return
	}
	writeJSON(w, http.StatusOK, users)
}
