package presence

import (
	"testing"
	"time"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
)

type published struct {
	room    string
	event   string
	payload any
}

type fakeBroadcaster struct {
	publishes  []published
	broadcasts []published
}

func (f *fakeBroadcaster) Publish(room, event string, payload any) {
	f.publishes = append(f.publishes, published{room: room, event: event, payload: payload})
}

func (f *fakeBroadcaster) Broadcast(event string, payload any) {
	f.broadcasts = append(f.broadcasts, published{event: event, payload: payload})
}

func TestRegistry_OnlineOffline(t *testing.T) {
	b := &fakeBroadcaster{}
	r := NewRegistry(b)
	now := time.Unix(1000, 0)
	r.now = func() time.Time { return now }

	if r.Status("alice").Online {
		t.Error("unknown user must report offline")
	}

	r.MarkOnline("alice")
	p := r.Status("alice")
	if !p.Online || p.LastSeen != 1000 {
		t.Errorf("unexpected presence: %+v", p)
	}
	if len(b.broadcasts) != 1 || b.broadcasts[0].event != models.EventUserOnline {
		t.Fatalf("expected one userOnline broadcast, got %+v", b.broadcasts)
	}

	now = time.Unix(2000, 0)
	r.MarkOffline("alice")
	p = r.Status("alice")
	if p.Online {
		t.Error("expected offline")
	}
	if p.LastSeen != 2000 {
		t.Errorf("expected lastSeen 2000, got %d", p.LastSeen)
	}
	if len(b.broadcasts) != 2 || b.broadcasts[1].event != models.EventUserOffline {
		t.Fatalf("expected userOffline broadcast, got %+v", b.broadcasts)
	}
	payload, ok := b.broadcasts[1].payload.(models.PresencePayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", b.broadcasts[1].payload)
	}
	if payload.UserID != "alice" || payload.Status != "offline" || payload.LastSeen != 2000 {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestRegistry_LastConnectionWins(t *testing.T) {
	b := &fakeBroadcaster{}
	r := NewRegistry(b)

	r.MarkOnline("alice")
	r.MarkOnline("alice") // second tab
	r.MarkOffline("alice")

	// Closing one tab marks the user offline even if another tab remains.
	if r.Status("alice").Online {
		t.Error("expected offline after any disconnect")
	}
}
