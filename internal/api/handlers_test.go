package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/auth"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/crypt"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/messaging"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/presence"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/rooms"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/signals"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/storage"
)

const testSecret = "api-test-secret"

type testEnv struct {
	api   *API
	store *storage.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "api_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	store, err := storage.NewStore(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	authService, err := auth.NewService(ctx, auth.Config{Secret: testSecret}, store)
	require.NoError(t, err)

	sealer, err := crypt.NewSealer(base64.StdEncoding.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)

	router := rooms.NewRouter()
	registry := presence.NewRegistry(router)
	messagingService := messaging.NewService(
		ctx,
		messaging.Config{},
		store,
		router,
		signals.NewEmitter(router),
		sealer,
		router,
		nil,
	)

	for _, u := range []models.User{
		{ID: "alice", UserName: "alice", DisplayName: "Alice", Role: models.RoleMember},
		{ID: "bob", UserName: "bob", DisplayName: "Bob", Role: models.RoleMember},
		{ID: "root", UserName: "root", DisplayName: "Root", Role: models.RoleSuperAdmin},
	} {
		require.NoError(t, store.UpsertUser(u))
	}

	return &testEnv{
		api:   New(authService, messagingService, registry, store),
		store: store,
	}
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

// do runs a request through RequireAuth the way the mux would.
func (e *testEnv) do(t *testing.T, method, target, userID string, body any, handler func(http.ResponseWriter, *http.Request, string), pathValues map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if userID != "" {
		req.Header.Set("token", tokenFor(t, userID))
	}
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}

	rec := httptest.NewRecorder()
	e.api.RequireAuth(handler)(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, env.Success, "expected success envelope: %s", rec.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestRequireAuth(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/me", "", nil, e.api.MeHandler, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var env struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Message)

	rec = e.do(t, http.MethodGet, "/api/me", "alice", nil, e.api.MeHandler, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeData[models.User](t, rec)
	assert.Equal(t, "alice", me.ID)
}

func TestSendMessageHandler(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/messages", "alice",
		map[string]string{"recipientId": "bob", "content": "hi"},
		e.api.SendMessageHandler, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	msg := decodeData[models.Message](t, rec)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, "alice", msg.SenderID)

	// Both or neither target is a validation error.
	rec = e.do(t, http.MethodPost, "/api/messages", "alice",
		map[string]string{"recipientId": "bob", "groupId": "g1", "content": "hi"},
		e.api.SendMessageHandler, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/messages", "alice",
		map[string]string{"content": "hi"},
		e.api.SendMessageHandler, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Restricted recipient surfaces as 403.
	rec = e.do(t, http.MethodPost, "/api/messages", "alice",
		map[string]string{"recipientId": "root", "content": "hi"},
		e.api.SendMessageHandler, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestConversationHandler_MarksRead(t *testing.T) {
	e := newTestEnv(t)

	e.do(t, http.MethodPost, "/api/messages", "alice",
		map[string]string{"recipientId": "bob", "content": "unread"},
		e.api.SendMessageHandler, nil)

	rec := e.do(t, http.MethodGet, "/api/messages/unread", "bob", nil, e.api.UnreadHandler, nil)
	counts := decodeData[models.UnreadCounts](t, rec)
	assert.Equal(t, 1, counts.Messages)

	// Fetching the conversation is the read signal.
	rec = e.do(t, http.MethodGet, "/api/messages/user/alice", "bob", nil, e.api.ConversationHandler, map[string]string{"id": "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decodeData[[]models.Message](t, rec)
	require.Len(t, msgs, 1)

	rec = e.do(t, http.MethodGet, "/api/messages/unread?refresh=1", "bob", nil, e.api.UnreadHandler, nil)
	counts = decodeData[models.UnreadCounts](t, rec)
	assert.Equal(t, 0, counts.Messages)
}

func TestReactionAndSeenHandlers(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/messages", "alice",
		map[string]string{"recipientId": "bob", "content": "react"},
		e.api.SendMessageHandler, nil)
	msg := decodeData[models.Message](t, rec)

	rec = e.do(t, http.MethodPost, "/api/messages/"+msg.ID+"/reactions", "bob",
		map[string]string{"type": "like"},
		e.api.ReactHandler, map[string]string{"id": msg.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeData[models.Message](t, rec)
	require.Len(t, updated.Reactions, 1)

	rec = e.do(t, http.MethodDelete, "/api/messages/"+msg.ID+"/reactions", "bob", nil,
		e.api.UnreactHandler, map[string]string{"id": msg.ID})
	updated = decodeData[models.Message](t, rec)
	assert.Empty(t, updated.Reactions)

	rec = e.do(t, http.MethodPost, "/api/messages/"+msg.ID+"/seen", "bob", nil,
		e.api.MarkSeenHandler, map[string]string{"id": msg.ID})
	updated = decodeData[models.Message](t, rec)
	require.Len(t, updated.SeenBy, 1)
	assert.Equal(t, models.StatusSeen, updated.Status)

	// Unknown message id maps to 404.
	rec = e.do(t, http.MethodPost, "/api/messages/nope/seen", "bob", nil,
		e.api.MarkSeenHandler, map[string]string{"id": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteMessageHandler(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/messages", "alice",
		map[string]string{"recipientId": "bob", "content": "bye"},
		e.api.SendMessageHandler, nil)
	msg := decodeData[models.Message](t, rec)

	rec = e.do(t, http.MethodDelete, "/api/messages/"+msg.ID, "alice", nil,
		e.api.DeleteMessageHandler, map[string]string{"id": msg.ID})
	result := decodeData[map[string]bool](t, rec)
	assert.False(t, result["purged"])

	rec = e.do(t, http.MethodDelete, "/api/messages/"+msg.ID, "bob", nil,
		e.api.DeleteMessageHandler, map[string]string{"id": msg.ID})
	result = decodeData[map[string]bool](t, rec)
	assert.True(t, result["purged"])
}

func TestGroupHandlers(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/groups", "alice",
		map[string]any{"name": "Team", "members": []string{"bob"}},
		e.api.CreateGroupHandler, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	group := decodeData[models.Group](t, rec)
	assert.ElementsMatch(t, []string{"alice", "bob"}, group.Members)

	rec = e.do(t, http.MethodGet, "/api/groups", "bob", nil, e.api.GroupsHandler, nil)
	groups := decodeData[[]models.Group](t, rec)
	require.Len(t, groups, 1)

	rec = e.do(t, http.MethodPost, "/api/groups/"+group.ID+"/leave", "bob", nil,
		e.api.LeaveGroupHandler, map[string]string{"id": group.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	// Leaving again is a conflict.
	rec = e.do(t, http.MethodPost, "/api/groups/"+group.ID+"/leave", "bob", nil,
		e.api.LeaveGroupHandler, map[string]string{"id": group.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUsersHandler(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/users", "alice", nil, e.api.UsersHandler, nil)
	users := decodeData[[]userWithPresence](t, rec)

	// The caller and restricted accounts are excluded.
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].ID)
	assert.False(t, users[0].Online)
}

func TestSavePushSubscriptionHandler(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/push/subscription", "alice",
		map[string]string{"endpoint": "https://push.example/abc"},
		e.api.SavePushSubscriptionHandler, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	raw, err := e.store.GetPushSubscription("alice")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "push.example")
}
