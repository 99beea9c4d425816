package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/client"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/storage"
)

const (
	integrationSecret = "very-secure-test-secret"
	integrationAddr   = "127.0.0.1:8897"
)

func signTestToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(integrationSecret))
	require.NoError(t, err)
	return token
}

func TestIntegration(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "integration_test")
	require.NoError(t, err)
	defer func() { _ = os.RemoveAll(tmpDir) }()
	dbFile := filepath.Join(tmpDir, "integration.db")

	// Users are provisioned out of band; seed them before the server takes
	// the database lock.
	seed, err := storage.NewStore(dbFile)
	require.NoError(t, err)
	require.NoError(t, seed.UpsertUser(models.User{ID: "alice", UserName: "alice", DisplayName: "Alice", Role: models.RoleMember}))
	require.NoError(t, seed.UpsertUser(models.User{ID: "bob", UserName: "bob", DisplayName: "Bob", Role: models.RoleMember}))
	require.NoError(t, seed.Close())

	_ = os.Setenv("MESSAGING_DB", dbFile)
	_ = os.Setenv("API_ADDR", integrationAddr)
	_ = os.Setenv("AUTH_SECRET", integrationSecret)
	_ = os.Setenv("CONTENT_KEY", base64.StdEncoding.EncodeToString(make([]byte, 32)))
	defer func() {
		_ = os.Unsetenv("MESSAGING_DB")
		_ = os.Unsetenv("API_ADDR")
		_ = os.Unsetenv("AUTH_SECRET")
		_ = os.Unsetenv("CONTENT_KEY")
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := run(ctx, "", "", ""); err != nil && err != context.Canceled {
			t.Errorf("Server error: %v", err)
		}
	}()

	baseURL := fmt.Sprintf("http://%s", integrationAddr)
	waitForServer(t, baseURL+"/api/me", 20)

	aliceAPI := client.NewAPI(baseURL, signTestToken(t, "alice"))
	bobAPI := client.NewAPI(baseURL, signTestToken(t, "bob"))

	// Bob connects and joins his personal room.
	bobRT := client.NewRealtime(baseURL, "bob", client.RealtimeConfig{Token: signTestToken(t, "bob")})
	newMessages := make(chan models.NewMessagePayload, 1)
	bobRT.OnNewMessage(func(p models.NewMessagePayload) { newMessages <- p })
	require.NoError(t, bobRT.Connect(ctx))
	defer func() { _ = bobRT.Disconnect() }()

	// Room joins are processed asynchronously after the handshake.
	time.Sleep(200 * time.Millisecond)

	// Alice sends; the durable write answers first, then bob's socket
	// receives the push.
	sent, err := aliceAPI.SendMessage(ctx, client.SendMessageRequest{RecipientID: "bob", Content: "hello bob"})
	require.NoError(t, err)
	require.Equal(t, "hello bob", sent.Content)
	require.Equal(t, models.StatusSent, sent.Status)

	select {
	case p := <-newMessages:
		require.Equal(t, sent.ID, p.Message.ID)
		require.Equal(t, "hello bob", p.Message.Content)
		require.Equal(t, "alice", p.SenderID)
	case <-time.After(3 * time.Second):
		t.Fatal("bob never received the push event")
	}

	// Unread shows up for bob, clears once he opens the conversation.
	counts, err := bobAPI.UnreadCounts(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 1, counts.Messages)

	msgs, err := bobAPI.Conversation(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	counts, err = bobAPI.UnreadCounts(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 0, counts.Messages)

	// Reaction round trip over REST.
	reacted, err := bobAPI.React(ctx, sent.ID, "like")
	require.NoError(t, err)
	require.Len(t, reacted.Reactions, 1)

	// Both participants deleting hard-deletes the message.
	require.NoError(t, aliceAPI.DeleteMessage(ctx, sent.ID))
	require.NoError(t, bobAPI.DeleteMessage(ctx, sent.ID))
	msgs, err = bobAPI.Conversation(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, msgs)

	// Presence: alice sees bob online while his socket is up.
	users, err := aliceAPI.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "bob", users[0].ID)
	require.True(t, users[0].Online)
}

func waitForServer(t *testing.T, urlStr string, retries int) {
	t.Helper()
	httpClient := &http.Client{Timeout: 500 * time.Millisecond}
	for i := 0; i < retries; i++ {
		resp, err := httpClient.Get(urlStr)
		if err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("Server failed to start at %s after %d retries", urlStr, retries)
}
