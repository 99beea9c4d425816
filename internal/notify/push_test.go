package notify

import (
	"testing"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/apperr"
)

type fakeSubs struct {
	subs  map[string][]byte
	calls int
}

func (f *fakeSubs) GetPushSubscription(userID string) ([]byte, error) {
	f.calls++
	if raw, ok := f.subs[userID]; ok {
		return raw, nil
	}
	return nil, apperr.NotFound("no push subscription for user %s", userID)
}

func TestConfig_Enabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Error("empty config must be disabled")
	}
	if (Config{VAPIDPublicKey: "pub"}).Enabled() {
		t.Error("half a key pair must be disabled")
	}
	if !(Config{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"}).Enabled() {
		t.Error("full key pair must be enabled")
	}
}

func TestNotifyNewMessage_DisabledSkipsLookup(t *testing.T) {
	subs := &fakeSubs{}
	p := NewPusher(Config{}, subs)

	p.NotifyNewMessage("alice", "Bob", "hi")
	if subs.calls != 0 {
		t.Error("disabled pusher must not look up subscriptions")
	}
}

func TestNotifyNewMessage_SwallowsFailures(t *testing.T) {
	subs := &fakeSubs{subs: map[string][]byte{
		"corrupt": []byte("not json"),
	}}
	p := NewPusher(Config{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv", Subject: "mailto:x@y"}, subs)

	// No subscription and a corrupt subscription both return quietly.
	p.NotifyNewMessage("missing", "Bob", "hi")
	p.NotifyNewMessage("corrupt", "Bob", "hi")
}
