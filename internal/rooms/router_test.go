package rooms

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
)

func receiveEvent(t *testing.T, ch <-chan models.ServerEvent) models.ServerEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for event")
		return models.ServerEvent{}
	}
}

func expectNoEvent(t *testing.T, ch <-chan models.ServerEvent) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %q", ev.Event)
	default:
	}
}

func TestRouter_PersonalRoom(t *testing.T) {
	r := NewRouter()

	ch1 := r.Connect("conn1")
	ch2 := r.Connect("conn2")

	r.JoinPersonal("conn1", "alice")
	r.JoinPersonal("conn2", "bob")

	r.Publish(UserRoom("alice"), "testEvent", map[string]string{"to": "alice"})

	ev := receiveEvent(t, ch1)
	if ev.Event != "testEvent" {
		t.Errorf("expected testEvent, got %s", ev.Event)
	}
	var payload map[string]string
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if payload["to"] != "alice" {
		t.Errorf("unexpected payload: %v", payload)
	}

	expectNoEvent(t, ch2)
}

func TestRouter_GroupRoom(t *testing.T) {
	r := NewRouter()

	ch1 := r.Connect("conn1")
	ch2 := r.Connect("conn2")
	ch3 := r.Connect("conn3")

	r.JoinPersonal("conn1", "alice")
	r.JoinPersonal("conn2", "bob")
	r.JoinPersonal("conn3", "carol")

	r.JoinGroup("conn1", "g1")
	r.JoinGroup("conn2", "g1")

	r.Publish(GroupRoom("g1"), "groupEvent", nil)
	receiveEvent(t, ch1)
	receiveEvent(t, ch2)
	expectNoEvent(t, ch3)

	r.LeaveGroup("conn2", "g1")
	r.Publish(GroupRoom("g1"), "groupEvent", nil)
	receiveEvent(t, ch1)
	expectNoEvent(t, ch2)
}

func TestRouter_Broadcast(t *testing.T) {
	r := NewRouter()

	ch1 := r.Connect("conn1")
	ch2 := r.Connect("conn2")
	// conn2 never joined a room; broadcast reaches it anyway.

	r.Broadcast("globalEvent", nil)
	receiveEvent(t, ch1)
	receiveEvent(t, ch2)
}

func TestRouter_Disconnect(t *testing.T) {
	r := NewRouter()

	ch := r.Connect("conn1")
	r.JoinPersonal("conn1", "alice")
	if !r.UserConnected("alice") {
		t.Error("expected alice to be connected")
	}

	r.Disconnect("conn1")
	if r.UserConnected("alice") {
		t.Error("expected alice to be disconnected")
	}

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed")
	}

	// Publishing to the dead room must not panic.
	r.Publish(UserRoom("alice"), "testEvent", nil)
	r.Disconnect("conn1") // idempotent
}

func TestRouter_UserConnected(t *testing.T) {
	r := NewRouter()

	if r.UserConnected("alice") {
		t.Error("no connections yet")
	}

	r.Connect("conn1")
	if r.UserConnected("alice") {
		t.Error("connected but not joined, should not count")
	}

	r.JoinPersonal("conn1", "alice")
	r.Connect("conn2")
	r.JoinPersonal("conn2", "alice")

	r.Disconnect("conn1")
	if !r.UserConnected("alice") {
		t.Error("second connection should keep alice connected")
	}

	r.Disconnect("conn2")
	if r.UserConnected("alice") {
		t.Error("all connections gone")
	}
}

func TestRouter_SlowConnectionDropsEvents(t *testing.T) {
	r := NewRouter()

	r.Connect("conn1")
	r.JoinPersonal("conn1", "alice")

	// Overflow the send buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBuffer+10; i++ {
			r.Publish(UserRoom("alice"), "testEvent", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow connection")
	}
}
