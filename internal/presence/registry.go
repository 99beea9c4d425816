// Package presence tracks best-known online state per user. The registry is
// process-local and not persisted: absence of a record means unknown/offline.
package presence

import (
	"sync"
	"time"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/rooms"
)

type Registry struct {
	mu          sync.RWMutex
	records     map[string]models.Presence
	broadcaster rooms.Broadcaster
	now         func() time.Time
}

func NewRegistry(broadcaster rooms.Broadcaster) *Registry {
	return &Registry{
		records:     make(map[string]models.Presence),
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// MarkOnline records the user as online. Last connection wins: a second tab
// overwrites the record, which is acceptable since presence is advisory, not
// a source of truth. Every contact list may need the transition, so it goes
// out as a global broadcast.
func (r *Registry) MarkOnline(userID string) {
	now := r.now().Unix()

	r.mu.Lock()
	r.records[userID] = models.Presence{Online: true, LastSeen: now}
	r.mu.Unlock()

	r.broadcaster.Broadcast(models.EventUserOnline, models.PresencePayload{
		UserID: userID,
		Status: "online",
	})
}

// MarkOffline records the user as offline. Closing one of several tabs marks
// the user fully offline; see the multi-tab note in DESIGN.md.
func (r *Registry) MarkOffline(userID string) {
	now := r.now().Unix()

	r.mu.Lock()
	r.records[userID] = models.Presence{Online: false, LastSeen: now}
	r.mu.Unlock()

	r.broadcaster.Broadcast(models.EventUserOffline, models.PresencePayload{
		UserID:   userID,
		Status:   "offline",
		LastSeen: now,
	})
}

// Status returns the best-known presence for the user. Unknown users report
// as offline with a zero last-seen.
func (r *Registry) Status(userID string) models.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records[userID]
}
