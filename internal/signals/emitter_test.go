package signals

import (
	"testing"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/rooms"
)

type captured struct {
	room    string
	event   string
	payload any
}

type fakeBroadcaster struct {
	events []captured
}

func (f *fakeBroadcaster) Publish(room, event string, payload any) {
	f.events = append(f.events, captured{room: room, event: event, payload: payload})
}

func (f *fakeBroadcaster) Broadcast(event string, payload any) {
	f.events = append(f.events, captured{event: event, payload: payload})
}

func (f *fakeBroadcaster) last(t *testing.T) captured {
	t.Helper()
	if len(f.events) == 0 {
		t.Fatal("no events published")
	}
	return f.events[len(f.events)-1]
}

func TestEmitter_Typing(t *testing.T) {
	b := &fakeBroadcaster{}
	e := NewEmitter(b)

	// Direct: conversationID is the counterpart, events go to their room.
	e.Typing("alice", "bob", false)
	ev := b.last(t)
	if ev.room != rooms.UserRoom("bob") || ev.event != models.EventUserTyping {
		t.Errorf("unexpected event: %+v", ev)
	}
	payload := ev.payload.(models.TypingPayload)
	if payload.UserID != "alice" || payload.ConversationID != "bob" {
		t.Errorf("unexpected payload: %+v", payload)
	}

	// Group: events go to the group room.
	e.StopTyping("alice", "g1", true)
	ev = b.last(t)
	if ev.room != rooms.GroupRoom("g1") || ev.event != models.EventUserStoppedTyping {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestEmitter_ReactionChanged(t *testing.T) {
	b := &fakeBroadcaster{}
	e := NewEmitter(b)

	reactions := []models.Reaction{{UserID: "alice", Type: "like", At: 100}}
	reactionType := "like"
	e.ReactionChanged("m1", reactions, "alice", &reactionType, "bob", false)

	ev := b.last(t)
	if ev.room != rooms.UserRoom("bob") || ev.event != models.EventMessageReaction {
		t.Fatalf("unexpected event: %+v", ev)
	}
	payload := ev.payload.(models.ReactionPayload)
	if len(payload.Reactions) != 1 || payload.ReactionType == nil || *payload.ReactionType != "like" {
		t.Errorf("unexpected payload: %+v", payload)
	}

	// Removal pushes the (possibly empty) full list with a nil type.
	e.ReactionChanged("m1", nil, "alice", nil, "bob", false)
	payload = b.last(t).payload.(models.ReactionPayload)
	if payload.ReactionType != nil || len(payload.Reactions) != 0 {
		t.Errorf("unexpected removal payload: %+v", payload)
	}
}

func TestEmitter_Seen(t *testing.T) {
	b := &fakeBroadcaster{}
	e := NewEmitter(b)

	seenBy := []models.SeenEntry{{UserID: "bob", At: 200}}
	e.Seen("m1", seenBy, models.StatusSeen, "bob", "g1", true)

	ev := b.last(t)
	if ev.room != rooms.GroupRoom("g1") || ev.event != models.EventMessageSeen {
		t.Fatalf("unexpected event: %+v", ev)
	}
	payload := ev.payload.(models.SeenPayload)
	if payload.Status != models.StatusSeen || len(payload.SeenBy) != 1 {
		t.Errorf("unexpected payload: %+v", payload)
	}
}
