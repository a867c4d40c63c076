package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blogchat/internal/chat"
	"github.com/blogchat/internal/middleware"
	"github.com/blogchat/internal/model"
)

type RoomHandler struct {
	svc *chat.Service
}

func NewRoomHandler(svc *chat.Service) *RoomHandler {
	return &RoomHandler{svc: svc}
}

type CreateDirectRoomRequest struct {
	UserID string `json:"user_id"`
}

type CreateGroupRoomRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}

// CreateDirectRoom creates (or returns the existing) direct room with the
// requested user.
func (h *RoomHandler) CreateDirectRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateDirectRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	room, err := h.svc.CreateDirectRoom(r.Context(), middleware.GetUserID(r.Context()), req.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *RoomHandler) CreateGroupRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	room, err := h.svc.CreateGroupRoom(r.Context(), middleware.GetUserID(r.Context()), req.Name, req.MemberIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// ListRooms returns the caller's rooms with previews and unread counts,
// newest activity first.
func (h *RoomHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.svc.Rooms(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// GetRoom returns the room with participants and messages, and marks it read
// for the caller.
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	view, err := h.svc.Room(r.Context(), roomID, middleware.GetUserID(r.Context()), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *RoomHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if err := h.svc.MarkAsRead(r.Context(), roomID, middleware.GetUserID(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type AddParticipantRequest struct {
	UserID string                `json:"user_id"`
	Role   model.ParticipantRole `json:"role,omitempty"`
}

func (h *RoomHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	var req AddParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	roomID := chi.URLParam(r, "roomID")
	p, err := h.svc.AddParticipant(r.Context(), roomID, middleware.GetUserID(r.Context()), req.UserID, req.Role)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *RoomHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	userID := chi.URLParam(r, "userID")
	if err := h.svc.RemoveParticipant(r.Context(), roomID, middleware.GetUserID(r.Context()), userID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Leave removes the caller from the room.
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	me := middleware.GetUserID(r.Context())
	if err := h.svc.RemoveParticipant(r.Context(), roomID, me, me); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
