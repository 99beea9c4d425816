package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c-pro/geche"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
)

const (
	DefaultCacheTTL      = 30 * time.Second
	DefaultBadgeDebounce = 500 * time.Millisecond

	summariesKey = "conversations"
)

type StoreConfig struct {
	CacheTTL      time.Duration
	BadgeDebounce time.Duration
}

func (c *StoreConfig) defaults() {
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.BadgeDebounce == 0 {
		c.BadgeDebounce = DefaultBadgeDebounce
	}
}

// Store reconciles local conversation state with the server. It caches the
// conversation list, debounces unread badge refreshes under event bursts,
// zeroes a conversation's unread optimistically when it is opened, and keeps
// a suppression set so a later refresh cannot resurrect a cleared badge
// until the conversation sees new activity. Conversations deleted locally go
// into a hidden set and stay out of the list until new activity arrives,
// even while the server still returns them.
type Store struct {
	api    *API
	rt     *Realtime
	config StoreConfig

	mu         sync.Mutex
	cache      geche.Geche[string, []models.ConversationSummary]
	unread     models.UnreadCounts
	suppressed map[string]bool
	hidden     map[string]bool
	selected   string
	timer      *time.Timer
	onBadge    func(models.UnreadCounts)
}

func NewStore(ctx context.Context, api *API, rt *Realtime, config StoreConfig) *Store {
	config.defaults()
	s := &Store{
		api:        api,
		rt:         rt,
		config:     config,
		cache:      geche.NewMapTTLCache[string, []models.ConversationSummary](ctx, config.CacheTTL, config.CacheTTL),
		suppressed: make(map[string]bool),
		hidden:     make(map[string]bool),
	}

	if rt != nil {
		rt.OnNewMessage(func(p models.NewMessagePayload) {
			s.handleActivity(p.SenderID)
		})
		rt.OnNewGroupMessage(func(p models.NewGroupMessagePayload) {
			s.handleActivity(p.GroupID)
		})
		rt.OnSeen(func(models.SeenPayload) { s.invalidate() })
		rt.OnReaction(func(models.ReactionPayload) { s.invalidate() })
		rt.OnGroupCreated(func(models.GroupCreatedPayload) { s.invalidate() })
		rt.OnConnected(func() {
			// Events may have been missed while disconnected.
			s.invalidate()
			s.scheduleRefresh()
		})
	}
	return s
}

// OnBadge registers the unread badge callback. It fires on optimistic
// zeroing and after each debounced refresh.
func (s *Store) OnBadge(h func(models.UnreadCounts)) {
	s.mu.Lock()
	s.onBadge = h
	s.mu.Unlock()
}

// Badge returns the last computed unread counts without touching the server.
func (s *Store) Badge() models.UnreadCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Conversations returns the conversation list, served from cache within the
// TTL. Suppressed conversations report zero unread regardless of what the
// server said; hidden conversations are excluded even when the server still
// returns them.
func (s *Store) Conversations(ctx context.Context) ([]models.ConversationSummary, error) {
	if cached, err := s.cache.Get(summariesKey); err == nil {
		return cached, nil
	}

	fetched, err := s.api.Conversations(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	summaries := fetched[:0]
	for _, summary := range fetched {
		if s.hidden[summary.Target.ID] {
			continue
		}
		if s.suppressed[summary.Target.ID] {
			summary.Unread = 0
		}
		summaries = append(summaries, summary)
	}
	s.mu.Unlock()

	s.cache.Set(summariesKey, summaries)
	return summaries, nil
}

// OpenConversation selects a conversation and returns its history. The
// conversation's unread contribution is zeroed immediately, before the
// server confirms, and suppressed against refresh until new activity. For
// direct conversations the history fetch itself marks messages read; for
// groups every unseen message is marked seen.
func (s *Store) OpenConversation(ctx context.Context, conversationID string, isGroup bool) ([]models.Message, error) {
	s.zeroOptimistically(conversationID)

	var msgs []models.Message
	var err error
	if isGroup {
		msgs, err = s.api.GroupMessages(ctx, conversationID)
	} else {
		msgs, err = s.api.Conversation(ctx, conversationID)
	}
	if err != nil {
		return nil, err
	}

	if isGroup {
		userID := s.userID()
		for _, m := range msgs {
			if m.SenderID == userID || m.SeenByUser(userID) {
				continue
			}
			if _, err := s.api.MarkSeen(ctx, m.ID); err != nil {
				slog.Debug("mark seen", "message_id", m.ID, "error", err)
			}
		}
	}

	s.invalidate()
	s.scheduleRefresh()
	return msgs, nil
}

// Send performs a non-optimistic send: the message only enters local state
// once the server has durably stored it and returned the canonical record.
func (s *Store) Send(ctx context.Context, req SendMessageRequest) (models.Message, error) {
	msg, err := s.api.SendMessage(ctx, req)
	if err != nil {
		return models.Message{}, err
	}
	s.invalidate()
	return msg, nil
}

// DeleteConversation deletes the 1:1 history for this user server-side and
// hides the conversation locally. The server may keep listing it until the
// other party deletes too; the hidden set keeps it out of the list until new
// activity arrives.
func (s *Store) DeleteConversation(ctx context.Context, otherID string) error {
	if err := s.api.DeleteConversation(ctx, otherID); err != nil {
		return err
	}
	s.hide(otherID)
	return nil
}

// DeleteGroupMessages clears the group history for this user and hides the
// group conversation locally until new activity arrives.
func (s *Store) DeleteGroupMessages(ctx context.Context, groupID string) error {
	if err := s.api.DeleteGroupMessages(ctx, groupID); err != nil {
		return err
	}
	s.hide(groupID)
	return nil
}

func (s *Store) hide(conversationID string) {
	s.mu.Lock()
	s.hidden[conversationID] = true
	delete(s.suppressed, conversationID)
	if s.selected == conversationID {
		s.selected = ""
	}
	s.mu.Unlock()

	s.invalidate()
	s.scheduleRefresh()
}

func (s *Store) zeroOptimistically(conversationID string) {
	s.mu.Lock()
	s.selected = conversationID
	s.suppressed[conversationID] = true
	delete(s.hidden, conversationID)

	if cached, err := s.cache.Get(summariesKey); err == nil {
		for i := range cached {
			if cached[i].Target.ID == conversationID && cached[i].Unread > 0 {
				s.unread.Messages -= cached[i].Unread
				s.unread.Conversations--
				if s.unread.Messages < 0 {
					s.unread.Messages = 0
				}
				if s.unread.Conversations < 0 {
					s.unread.Conversations = 0
				}
				cached[i].Unread = 0
				s.cache.Set(summariesKey, cached)
				break
			}
		}
	}
	badge := s.onBadge
	unread := s.unread
	s.mu.Unlock()

	if badge != nil {
		badge(unread)
	}
}

// handleActivity reacts to a new message in a conversation: activity lifts
// the suppression, so the next refresh may show unread again, and un-hides a
// locally deleted conversation.
func (s *Store) handleActivity(conversationID string) {
	s.mu.Lock()
	if s.selected != conversationID {
		delete(s.suppressed, conversationID)
	}
	delete(s.hidden, conversationID)
	s.mu.Unlock()

	s.invalidate()
	s.scheduleRefresh()
}

func (s *Store) invalidate() {
	if err := s.cache.Del(summariesKey); err != nil {
		slog.Debug("conversation cache invalidation", "error", err)
	}
}

// scheduleRefresh coalesces refreshes: bursts of events collapse into one
// recount after the debounce window.
func (s *Store) scheduleRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.config.BadgeDebounce, s.refreshBadge)
}

func (s *Store) refreshBadge() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	summaries, err := s.Conversations(ctx)
	if err != nil {
		slog.Debug("badge refresh", "error", err)
		return
	}

	var counts models.UnreadCounts
	s.mu.Lock()
	for _, summary := range summaries {
		if s.suppressed[summary.Target.ID] {
			continue
		}
		if summary.Unread > 0 {
			counts.Conversations++
			counts.Messages += summary.Unread
		}
	}
	s.unread = counts
	badge := s.onBadge
	s.mu.Unlock()

	if badge != nil {
		badge(counts)
	}
}

func (s *Store) userID() string {
	if s.rt != nil {
		return s.rt.userID
	}
	return ""
}
