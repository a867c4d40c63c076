package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blogchat/internal/chat"
	"github.com/blogchat/internal/middleware"
	"github.com/blogchat/internal/model"
)

type MessageHandler struct {
	svc *chat.Service
}

func NewMessageHandler(svc *chat.Service) *MessageHandler {
	return &MessageHandler{svc: svc}
}

type SendMessageRequest struct {
	Content string            `json:"content"`
	Kind    model.MessageKind `json:"kind,omitempty"`
	BlogID  string            `json:"blog_id,omitempty"`
	Media   *model.MediaRef   `json:"media,omitempty"`
}

func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	roomID := chi.URLParam(r, "roomID")
	m, err := h.svc.Append(r.Context(), roomID, middleware.GetUserID(r.Context()), chat.AppendInput{
		Content: req.Content,
		Kind:    req.Kind,
		BlogID:  req.BlogID,
		Media:   req.Media,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

func (h *MessageHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	roomID := chi.URLParam(r, "roomID")
	messageID := chi.URLParam(r, "messageID")
	m, err := h.svc.Edit(r.Context(), roomID, messageID, middleware.GetUserID(r.Context()), req.Content)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MessageHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	messageID := chi.URLParam(r, "messageID")
	if err := h.svc.Delete(r.Context(), roomID, messageID, middleware.GetUserID(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type SetReactionRequest struct {
	Emoji string `json:"emoji"`
}

func (h *MessageHandler) SetReaction(w http.ResponseWriter, r *http.Request) {
	var req SetReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	roomID := chi.URLParam(r, "roomID")
	messageID := chi.URLParam(r, "messageID")
	if err := h.svc.SetReaction(r.Context(), roomID, messageID, middleware.GetUserID(r.Context()), req.Emoji); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) RemoveReaction(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	messageID := chi.URLParam(r, "messageID")
	if err := h.svc.RemoveReaction(r.Context(), roomID, messageID, middleware.GetUserID(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
