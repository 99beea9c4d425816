package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/apperr"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "storage_test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	store, err := NewStore(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore(t *testing.T) {
	store := newTestStore(t)

	t.Run("Users", func(t *testing.T) {
		user := models.User{
			ID:          "user1",
			UserName:    "alice",
			DisplayName: "Alice",
			Role:        models.RoleMember,
		}
		if err := store.UpsertUser(user); err != nil {
			t.Fatalf("UpsertUser failed: %v", err)
		}

		got, err := store.GetUser("user1")
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		if got.UserName != "alice" || got.Role != models.RoleMember {
			t.Errorf("unexpected user: %+v", got)
		}

		_, err = store.GetUser("nobody")
		if apperr.KindOf(err) != apperr.KindNotFound {
			t.Errorf("expected not found, got %v", err)
		}

		if err := store.UpsertUser(models.User{ID: "user2", UserName: "bob", DisplayName: "Bob", Role: models.RoleManager}); err != nil {
			t.Fatal(err)
		}
		users, err := store.ListUsers()
		if err != nil {
			t.Fatalf("ListUsers failed: %v", err)
		}
		if len(users) != 2 {
			t.Errorf("expected 2 users, got %d", len(users))
		}
	})

	t.Run("Groups", func(t *testing.T) {
		group := models.Group{
			ID:        "group1",
			Name:      "Backend",
			CreatorID: "user1",
			Members:   []string{"user1", "user2"},
			CreatedAt: time.Now().Unix(),
		}
		if err := store.UpsertGroup(group); err != nil {
			t.Fatalf("UpsertGroup failed: %v", err)
		}

		got, err := store.GetGroup("group1")
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if !got.HasMember("user2") {
			t.Error("expected user2 to be a member")
		}

		groups, err := store.ListGroupsFor("user2")
		if err != nil {
			t.Fatalf("ListGroupsFor failed: %v", err)
		}
		if len(groups) != 1 {
			t.Errorf("expected 1 group, got %d", len(groups))
		}

		groups, err = store.ListGroupsFor("user3")
		if err != nil {
			t.Fatal(err)
		}
		if len(groups) != 0 {
			t.Errorf("expected no groups for non-member, got %d", len(groups))
		}
	})

	t.Run("Messages", func(t *testing.T) {
		msg1 := models.Message{
			ID:        "m1",
			SenderID:  "user1",
			Target:    models.DirectTarget("user2"),
			Content:   "hello",
			CreatedAt: time.Now().Unix(),
			Status:    models.StatusSent,
		}
		if _, err := store.PutMessage(msg1); err != nil {
			t.Fatalf("PutMessage 1 failed: %v", err)
		}

		// Reply direction lands in the same conversation.
		msg2 := models.Message{
			ID:        "m2",
			SenderID:  "user2",
			Target:    models.DirectTarget("user1"),
			Content:   "world",
			CreatedAt: time.Now().Unix(),
			Status:    models.StatusSent,
		}
		if _, err := store.PutMessage(msg2); err != nil {
			t.Fatalf("PutMessage 2 failed: %v", err)
		}

		convKey := models.DirectConvKey("user1", "user2")
		msgs, err := store.ListMessages(convKey)
		if err != nil {
			t.Fatalf("ListMessages failed: %v", err)
		}
		if len(msgs) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(msgs))
		}
		if msgs[0].Content != "hello" || msgs[1].Content != "world" {
			t.Errorf("messages out of order: %q, %q", msgs[0].Content, msgs[1].Content)
		}

		got, err := store.GetMessage("m2")
		if err != nil {
			t.Fatalf("GetMessage failed: %v", err)
		}
		if got.SenderID != "user2" {
			t.Errorf("expected sender user2, got %s", got.SenderID)
		}
	})

	t.Run("UpdateMessage", func(t *testing.T) {
		updated, err := store.UpdateMessage("m1", func(m *models.Message) (MutateAction, error) {
			m.Read = true
			m.Reactions = append(m.Reactions, models.Reaction{UserID: "user2", Type: "like", At: time.Now().Unix()})
			return MutateSave, nil
		})
		if err != nil {
			t.Fatalf("UpdateMessage failed: %v", err)
		}
		if !updated.Read || len(updated.Reactions) != 1 {
			t.Errorf("mutation not applied: %+v", updated)
		}

		got, err := store.GetMessage("m1")
		if err != nil {
			t.Fatal(err)
		}
		if !got.Read {
			t.Error("read flag not persisted")
		}

		_, err = store.UpdateMessage("m1", func(m *models.Message) (MutateAction, error) {
			return MutateDelete, nil
		})
		if err != nil {
			t.Fatalf("UpdateMessage delete failed: %v", err)
		}
		if _, err := store.GetMessage("m1"); apperr.KindOf(err) != apperr.KindNotFound {
			t.Errorf("expected not found after delete, got %v", err)
		}
	})

	t.Run("UpdateMessages", func(t *testing.T) {
		convKey := models.DirectConvKey("user1", "user2")
		saved, deleted, err := store.UpdateMessages(convKey, func(m *models.Message) (MutateAction, error) {
			if m.ID == "m2" {
				return MutateDelete, nil
			}
			return MutateNone, nil
		})
		if err != nil {
			t.Fatalf("UpdateMessages failed: %v", err)
		}
		if saved != 0 || deleted != 1 {
			t.Errorf("expected 0 saved / 1 deleted, got %d / %d", saved, deleted)
		}

		msgs, err := store.ListMessages(convKey)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 0 {
			t.Errorf("expected empty conversation, got %d messages", len(msgs))
		}
	})

	t.Run("Conversations", func(t *testing.T) {
		direct := models.Message{
			ID:        "m3",
			SenderID:  "user1",
			Target:    models.DirectTarget("user2"),
			Content:   "again",
			CreatedAt: time.Now().Unix(),
			Status:    models.StatusSent,
		}
		if _, err := store.PutMessage(direct); err != nil {
			t.Fatal(err)
		}
		grouped := models.Message{
			ID:        "m4",
			SenderID:  "user2",
			Target:    models.GroupTarget("group1"),
			Content:   "to the group",
			CreatedAt: time.Now().Unix(),
			Status:    models.StatusSent,
		}
		if _, err := store.PutMessage(grouped); err != nil {
			t.Fatal(err)
		}

		refs, err := store.ListConversationsFor("user1")
		if err != nil {
			t.Fatalf("ListConversationsFor failed: %v", err)
		}
		if len(refs) != 2 {
			t.Fatalf("expected 2 conversations, got %d", len(refs))
		}

		// user3 is in no group and no direct conversation.
		refs, err = store.ListConversationsFor("user3")
		if err != nil {
			t.Fatal(err)
		}
		if len(refs) != 0 {
			t.Errorf("expected no conversations for user3, got %d", len(refs))
		}
	})

	t.Run("PushSubscriptions", func(t *testing.T) {
		raw := []byte(`{"endpoint":"https://push.example/abc"}`)
		if err := store.UpsertPushSubscription("user1", raw); err != nil {
			t.Fatalf("UpsertPushSubscription failed: %v", err)
		}

		got, err := store.GetPushSubscription("user1")
		if err != nil {
			t.Fatalf("GetPushSubscription failed: %v", err)
		}
		if string(got) != string(raw) {
			t.Errorf("subscription mismatch: %s", got)
		}

		if err := store.DeletePushSubscription("user1"); err != nil {
			t.Fatal(err)
		}
		if _, err := store.GetPushSubscription("user1"); apperr.KindOf(err) != apperr.KindNotFound {
			t.Errorf("expected not found after delete, got %v", err)
		}
	})
}
