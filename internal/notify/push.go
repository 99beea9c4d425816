// Package notify delivers web push notifications to users with no live
// connection. Push is a best-effort side channel: failures are logged and
// swallowed, exactly like socket push failures.
package notify

import (
	"encoding/json"
	"log/slog"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// SubscriptionSource provides the stored push subscription for a user.
type SubscriptionSource interface {
	GetPushSubscription(userID string) ([]byte, error)
}

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string
}

// Enabled reports whether VAPID keys are configured; without them the pusher
// is a no-op.
func (c Config) Enabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

type Pusher struct {
	config Config
	subs   SubscriptionSource
}

func NewPusher(config Config, subs SubscriptionSource) *Pusher {
	return &Pusher{config: config, subs: subs}
}

type messageNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
}

// NotifyNewMessage pushes a "new message" notification to userID. Callers
// fire and forget; every failure path only logs.
func (p *Pusher) NotifyNewMessage(userID, senderName, preview string) {
	if !p.config.Enabled() {
		return
	}

	raw, err := p.subs.GetPushSubscription(userID)
	if err != nil {
		return // user never subscribed
	}

	var sub webpush.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		slog.Warn("corrupt push subscription", "user_id", userID, "error", err)
		return
	}

	payload, err := json.Marshal(messageNotification{
		Title: "New message from " + senderName,
		Body:  preview,
		Tag:   "message:" + userID,
	})
	if err != nil {
		slog.Error("failed to marshal push payload", "error", err)
		return
	}

	resp, err := webpush.SendNotification(payload, &sub, &webpush.Options{
		Subscriber:      p.config.Subject,
		VAPIDPublicKey:  p.config.VAPIDPublicKey,
		VAPIDPrivateKey: p.config.VAPIDPrivateKey,
		TTL:             60,
	})
	if err != nil {
		slog.Warn("push notification failed", "user_id", userID, "error", err)
		return
	}
	_ = resp.Body.Close()
}
