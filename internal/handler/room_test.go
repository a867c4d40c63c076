package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blogchat/internal/access"
	"github.com/blogchat/internal/chat"
	"github.com/blogchat/internal/middleware"
	"github.com/blogchat/internal/model"
	"github.com/blogchat/internal/storage/memstore"
)

// asUser injects the authenticated user id the way AuthValidate does.
func asUser(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), middleware.UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newTestRouter(t *testing.T, userID string) (*chi.Mux, *chat.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	svc := chat.New(access.NewGuard(store), store, store, nil, nil, nil, nil)
	roomH := NewRoomHandler(svc)
	msgH := NewMessageHandler(svc)

	r := chi.NewRouter()
	r.Use(asUser(userID))
	r.Get("/api/rooms", roomH.ListRooms)
	r.Post("/api/rooms/direct", roomH.CreateDirectRoom)
	r.Post("/api/rooms/group", roomH.CreateGroupRoom)
	r.Get("/api/rooms/{roomID}", roomH.GetRoom)
	r.Post("/api/rooms/{roomID}/read", roomH.MarkRead)
	r.Post("/api/rooms/{roomID}/messages", msgH.SendMessage)
	r.Delete("/api/rooms/{roomID}/messages/{messageID}", msgH.DeleteMessage)
	return r, svc, store
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateDirectRoomEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t, "alice")

	rec := doJSON(t, router, http.MethodPost, "/api/rooms/direct", `{"user_id":"bob"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var room model.Room
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &room))
	assert.Equal(t, model.RoomKindDirect, room.Kind)

	// same pair resolves to the same room
	rec = doJSON(t, router, http.MethodPost, "/api/rooms/direct", `{"user_id":"bob"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var again model.Room
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.Equal(t, room.ID, again.ID)

	rec = doJSON(t, router, http.MethodPost, "/api/rooms/direct", `{"user_id":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/rooms/direct", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendAndFetchMessages(t *testing.T) {
	router, svc, _ := newTestRouter(t, "alice")
	ctx := context.Background()
	room, err := svc.CreateDirectRoom(ctx, "alice", "bob")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/api/rooms/"+room.ID+"/messages", `{"content":"hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var m model.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, "hello", m.Content)
	assert.Positive(t, m.Seq)

	rec = doJSON(t, router, http.MethodGet, "/api/rooms/"+room.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view model.RoomView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Messages, 1)
	assert.Equal(t, "hello", view.Messages[0].Content)
}

func TestNegativePagingParamsFallBack(t *testing.T) {
	router, svc, _ := newTestRouter(t, "alice")
	ctx := context.Background()
	room, err := svc.CreateDirectRoom(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = svc.Append(ctx, room.ID, "alice", chat.AppendInput{Content: "hello"})
	require.NoError(t, err)

	// negative and malformed values are treated like absent ones
	for _, query := range []string{"?limit=-5&offset=-1", "?limit=abc&offset="} {
		rec := doJSON(t, router, http.MethodGet, "/api/rooms/"+room.ID+query, "")
		require.Equal(t, http.StatusOK, rec.Code, "query %q", query)
		var view model.RoomView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		require.Len(t, view.Messages, 1)
	}
}

func TestServiceErrorMapping(t *testing.T) {
	router, svc, _ := newTestRouter(t, "carol")
	ctx := context.Background()
	room, err := svc.CreateDirectRoom(ctx, "alice", "bob")
	require.NoError(t, err)

	// carol is not a participant
	rec := doJSON(t, router, http.MethodGet, "/api/rooms/"+room.ID, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/rooms/no-such-room", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/rooms/"+room.ID+"/messages", `{"content":"hi"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMarkReadEndpoint(t *testing.T) {
	router, svc, store := newTestRouter(t, "bob")
	ctx := context.Background()
	room, err := svc.CreateDirectRoom(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = svc.Append(ctx, room.ID, "alice", chat.AppendInput{Content: "unread"})
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/api/rooms/"+room.ID+"/read", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	unread, err := store.UnreadCount(ctx, room.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}

func TestDeleteMessageEndpoint(t *testing.T) {
	router, svc, _ := newTestRouter(t, "alice")
	ctx := context.Background()
	room, err := svc.CreateDirectRoom(ctx, "alice", "bob")
	require.NoError(t, err)
	m, err := svc.Append(ctx, room.ID, "alice", chat.AppendInput{Content: "oops"})
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodDelete, "/api/rooms/"+room.ID+"/messages/"+m.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// tombstoned messages no longer resolve
	rec = doJSON(t, router, http.MethodDelete, "/api/rooms/"+room.ID+"/messages/"+m.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
