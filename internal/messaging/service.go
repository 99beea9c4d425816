// Package messaging implements the server-side message lifecycle: send,
// read/seen markers, reactions, and per-user soft deletion with 1:1
// hard-delete quorum. Durable writes always complete before any push event
// is published; push failures never fail the originating request.
package messaging

import (
	"context"
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/c-pro/geche"
	"github.com/google/uuid"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/apperr"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/content"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/crypt"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/rooms"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/signals"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/storage"
)

const DefaultUnreadCacheTTL = 30 * time.Second

// ConnectionChecker reports whether a user has any live connection; it
// decides between socket push and web push for direct messages.
type ConnectionChecker interface {
	UserConnected(userID string) bool
}

// Notifier delivers out-of-band notifications to offline users.
type Notifier interface {
	NotifyNewMessage(userID, senderName, preview string)
}

type Config struct {
	UnreadCacheTTL time.Duration
}

type Service struct {
	store       *storage.Store
	broadcaster rooms.Broadcaster
	signals     *signals.Emitter
	sealer      *crypt.Sealer
	conns       ConnectionChecker
	notifier    Notifier
	unreadCache geche.Geche[string, models.UnreadCounts]
	now         func() time.Time
}

func NewService(
	ctx context.Context,
	config Config,
	store *storage.Store,
	broadcaster rooms.Broadcaster,
	emitter *signals.Emitter,
	sealer *crypt.Sealer,
	conns ConnectionChecker,
	notifier Notifier,
) *Service {
	ttl := config.UnreadCacheTTL
	if ttl == 0 {
		ttl = DefaultUnreadCacheTTL
	}
	return &Service{
		store:       store,
		broadcaster: broadcaster,
		signals:     emitter,
		sealer:      sealer,
		conns:       conns,
		notifier:    notifier,
		unreadCache: geche.NewMapTTLCache[string, models.UnreadCounts](ctx, ttl, ttl),
		now:         time.Now,
	}
}

type SendInput struct {
	SenderID    string
	Target      models.MessageTarget
	Content     string
	Attachments []models.Attachment
	ReplyTo     string
}

// Send validates and persists a message, then publishes a push event to the
// target room. The push is fire-and-forget: by the time it happens the
// message is already durably stored, so a push failure must never fail or
// roll back the send.
func (s *Service) Send(in SendInput) (models.Message, error) {
	if in.SenderID == "" {
		return models.Message{}, apperr.Validation("sender is required")
	}
	if !in.Target.Valid() {
		return models.Message{}, apperr.Validation("exactly one of recipient or group is required")
	}

	plain := content.Sanitize(in.Content)
	if plain == "" && len(in.Attachments) == 0 {
		return models.Message{}, apperr.Validation("message needs content or at least one attachment")
	}
	for _, a := range in.Attachments {
		if err := content.ValidateAttachment(a); err != nil {
			return models.Message{}, err
		}
	}

	if in.Target.IsGroup() {
		group, err := s.store.GetGroup(in.Target.ID)
		if err != nil {
			return models.Message{}, err
		}
		if !group.HasMember(in.SenderID) {
			return models.Message{}, apperr.Forbidden("sender is not a member of group %s", group.ID)
		}
	} else {
		if in.Target.ID == in.SenderID {
			return models.Message{}, apperr.Validation("cannot message yourself")
		}
		recipient, err := s.store.GetUser(in.Target.ID)
		if err != nil {
			return models.Message{}, err
		}
		if recipient.Restricted() {
			return models.Message{}, apperr.Forbidden("user %s cannot be messaged", recipient.ID)
		}
	}

	if in.ReplyTo != "" {
		if _, err := s.store.GetMessage(in.ReplyTo); err != nil {
			return models.Message{}, err
		}
	}

	msg := models.Message{
		ID:          uuid.NewString(),
		SenderID:    in.SenderID,
		Target:      in.Target,
		Content:     plain,
		Attachments: in.Attachments,
		ReplyTo:     in.ReplyTo,
		CreatedAt:   s.now().Unix(),
		Status:      models.StatusSent,
	}

	stored := msg
	if !msg.Target.IsGroup() {
		sealed, err := s.sealer.Seal(plain)
		if err != nil {
			return models.Message{}, apperr.Internal(err)
		}
		stored.Content = sealed
	}

	if _, err := s.store.PutMessage(stored); err != nil {
		return models.Message{}, apperr.Internal(err)
	}

	s.publishNewMessage(msg)
	return msg, nil
}

func (s *Service) publishNewMessage(msg models.Message) {
	if msg.Target.IsGroup() {
		s.broadcaster.Publish(rooms.GroupRoom(msg.Target.ID), models.EventNewGroupMessage, models.NewGroupMessagePayload{
			Message:  msg,
			GroupID:  msg.Target.ID,
			SenderID: msg.SenderID,
		})
		s.invalidateGroupUnread(msg.Target.ID, msg.SenderID)
		return
	}

	recipientID := msg.Target.ID
	s.broadcaster.Publish(rooms.UserRoom(recipientID), models.EventNewMessage, models.NewMessagePayload{
		Message:  msg,
		SenderID: msg.SenderID,
	})
	s.invalidateUnread(recipientID)

	if s.notifier != nil && !s.conns.UserConnected(recipientID) {
		sender, err := s.store.GetUser(msg.SenderID)
		if err != nil {
			return
		}
		go s.notifier.NotifyNewMessage(recipientID, sender.DisplayName, previewOf(msg.Content))
	}
}

const previewLimit = 80

// previewOf truncates content for the push notification body, cutting on a
// rune boundary so the payload stays valid UTF-8.
func previewOf(content string) string {
	if len(content) <= previewLimit {
		return content
	}
	cut := previewLimit
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}

// MarkRead flips every unread direct message from senderID to userID to
// read. Idempotent; no per-message event is pushed, the counter refresh is
// the signal.
func (s *Service) MarkRead(userID, senderID string) (int, error) {
	convKey := models.DirectConvKey(userID, senderID)
	updated, _, err := s.store.UpdateMessages(convKey, func(m *models.Message) (storage.MutateAction, error) {
		if m.SenderID != senderID || m.Read || m.DeletedFor(userID) {
			return storage.MutateNone, nil
		}
		m.Read = true
		return storage.MutateSave, nil
	})
	if err != nil {
		return 0, apperr.Internal(err)
	}
	s.invalidateUnread(userID)
	return updated, nil
}

// MarkSeen adds the viewer to a message's seenBy set and pushes a seen
// event. The sender is never added to their own message. Idempotent:
// repeated calls after the first are no-ops and push nothing.
func (s *Service) MarkSeen(viewerID, messageID string) (models.Message, error) {
	changed := false
	msg, err := s.store.UpdateMessage(messageID, func(m *models.Message) (storage.MutateAction, error) {
		if err := requireParticipant(s.store, *m, viewerID); err != nil {
			return storage.MutateNone, err
		}
		if m.SenderID == viewerID || m.SeenByUser(viewerID) {
			return storage.MutateNone, nil
		}
		m.SeenBy = append(m.SeenBy, models.SeenEntry{UserID: viewerID, At: s.now().Unix()})
		if m.Status != models.StatusSeen {
			m.Status = models.StatusSeen
		}
		changed = true
		return storage.MutateSave, nil
	})
	if err != nil {
		return models.Message{}, err
	}

	if changed {
		convID, isGroup := conversationFor(msg, viewerID)
		s.signals.Seen(msg.ID, msg.SeenBy, msg.Status, viewerID, convID, isGroup)
		s.invalidateUnread(viewerID)
	}
	return s.reveal(msg)
}

// React upserts the caller's reaction: a user holds at most one reaction
// per message and a new type replaces the old one.
func (s *Service) React(userID, messageID, reactionType string) (models.Message, error) {
	if reactionType == "" {
		return models.Message{}, apperr.Validation("reaction type is required")
	}

	msg, err := s.store.UpdateMessage(messageID, func(m *models.Message) (storage.MutateAction, error) {
		if err := requireParticipant(s.store, *m, userID); err != nil {
			return storage.MutateNone, err
		}
		at := s.now().Unix()
		for i, r := range m.Reactions {
			if r.UserID == userID {
				m.Reactions[i] = models.Reaction{UserID: userID, Type: reactionType, At: at}
				return storage.MutateSave, nil
			}
		}
		m.Reactions = append(m.Reactions, models.Reaction{UserID: userID, Type: reactionType, At: at})
		return storage.MutateSave, nil
	})
	if err != nil {
		return models.Message{}, err
	}

	convID, isGroup := conversationFor(msg, userID)
	s.signals.ReactionChanged(msg.ID, msg.Reactions, userID, &reactionType, convID, isGroup)
	return s.reveal(msg)
}

// Unreact removes the caller's reaction entry if present and pushes the full
// updated list.
func (s *Service) Unreact(userID, messageID string) (models.Message, error) {
	msg, err := s.store.UpdateMessage(messageID, func(m *models.Message) (storage.MutateAction, error) {
		if err := requireParticipant(s.store, *m, userID); err != nil {
			return storage.MutateNone, err
		}
		for i, r := range m.Reactions {
			if r.UserID == userID {
				m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
				return storage.MutateSave, nil
			}
		}
		return storage.MutateNone, nil
	})
	if err != nil {
		return models.Message{}, err
	}

	convID, isGroup := conversationFor(msg, userID)
	s.signals.ReactionChanged(msg.ID, msg.Reactions, userID, nil, convID, isGroup)
	return s.reveal(msg)
}

// SoftDelete marks the message deleted for byUser. When both participants of
// a 1:1 conversation have deleted it, the message is hard-deleted and never
// visible to either party again. Group deletion only ever affects the
// caller's own view.
func (s *Service) SoftDelete(messageID, byUser string) (hardDeleted bool, err error) {
	_, err = s.store.UpdateMessage(messageID, func(m *models.Message) (storage.MutateAction, error) {
		if err := requireParticipant(s.store, *m, byUser); err != nil {
			return storage.MutateNone, err
		}
		if m.DeletedFor(byUser) {
			return storage.MutateNone, nil
		}
		m.DeletedBy = append(m.DeletedBy, byUser)

		if !m.Target.IsGroup() && m.DeletedFor(m.SenderID) && m.DeletedFor(m.Target.ID) {
			hardDeleted = true
			return storage.MutateDelete, nil
		}
		return storage.MutateSave, nil
	})
	if err != nil {
		return false, err
	}
	s.invalidateUnread(byUser)
	return hardDeleted, nil
}

// SoftDeleteConversation applies SoftDelete to every message of the 1:1
// conversation with otherID in a single pass; messages that reach the
// hard-delete quorum are purged.
func (s *Service) SoftDeleteConversation(userID, otherID string) (softDeleted, hardDeleted int, err error) {
	convKey := models.DirectConvKey(userID, otherID)
	softDeleted, hardDeleted, err = s.store.UpdateMessages(convKey, func(m *models.Message) (storage.MutateAction, error) {
		if m.DeletedFor(userID) {
			return storage.MutateNone, nil
		}
		m.DeletedBy = append(m.DeletedBy, userID)
		if m.DeletedFor(m.SenderID) && m.DeletedFor(m.Target.ID) {
			return storage.MutateDelete, nil
		}
		return storage.MutateSave, nil
	})
	if err != nil {
		return 0, 0, apperr.Internal(err)
	}
	s.invalidateUnread(userID)
	return softDeleted, hardDeleted, nil
}

// SoftDeleteGroupMessages hides every message of a group from the caller.
// There is no hard-delete quorum for N members.
func (s *Service) SoftDeleteGroupMessages(userID, groupID string) (int, error) {
	group, err := s.store.GetGroup(groupID)
	if err != nil {
		return 0, err
	}
	if !group.HasMember(userID) {
		return 0, apperr.Forbidden("not a member of group %s", groupID)
	}

	softDeleted, _, err := s.store.UpdateMessages(models.GroupConvKey(groupID), func(m *models.Message) (storage.MutateAction, error) {
		if m.DeletedFor(userID) {
			return storage.MutateNone, nil
		}
		m.DeletedBy = append(m.DeletedBy, userID)
		return storage.MutateSave, nil
	})
	if err != nil {
		return 0, apperr.Internal(err)
	}
	s.invalidateUnread(userID)
	return softDeleted, nil
}

// Conversation returns the 1:1 history between userID and otherID, excluding
// messages the requester deleted, with direct content decrypted.
func (s *Service) Conversation(userID, otherID string) ([]models.Message, error) {
	if _, err := s.store.GetUser(otherID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(models.DirectConvKey(userID, otherID))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return s.visibleTo(msgs, userID)
}

// GroupMessages returns a group's history for a member. Membership is
// enforced here, on the REST read path, not at room join time.
func (s *Service) GroupMessages(userID, groupID string) ([]models.Message, error) {
	group, err := s.store.GetGroup(groupID)
	if err != nil {
		return nil, err
	}
	if !group.HasMember(userID) {
		return nil, apperr.Forbidden("not a member of group %s", groupID)
	}

	msgs, err := s.store.ListMessages(models.GroupConvKey(groupID))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return s.visibleTo(msgs, userID)
}

// ConversationSummaries computes the conversation list view: per
// conversation the latest message visible to the requester and their unread
// count. Conversations whose every message is deleted for the requester are
// omitted.
func (s *Service) ConversationSummaries(userID string) ([]models.ConversationSummary, error) {
	refs, err := s.store.ListConversationsFor(userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	var summaries []models.ConversationSummary
	for _, ref := range refs {
		msgs, err := s.store.ListMessages(ref.Key)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		visible, err := s.visibleTo(msgs, userID)
		if err != nil {
			return nil, err
		}
		if len(visible) == 0 {
			continue
		}

		last := visible[len(visible)-1]
		summary := models.ConversationSummary{
			Key:         ref.Key,
			Target:      ref.Target,
			LastMessage: &last,
			Unread:      countUnread(visible, userID, ref.Target.IsGroup()),
		}

		if ref.Target.IsGroup() {
			group, err := s.store.GetGroup(ref.Target.ID)
			if err == nil {
				summary.Name = group.Name
			}
		} else {
			other, err := s.store.GetUser(ref.Target.ID)
			if err == nil {
				summary.Name = other.DisplayName
			}
		}
		summaries = append(summaries, summary)
	}

	// Most recent activity first.
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastMessage.CreatedAt > summaries[j].LastMessage.CreatedAt
	})
	return summaries, nil
}

// UnreadCounts returns the user's unread counters. Results are cached for
// the configured TTL to bound read load under polling; force bypasses and
// refreshes the cache.
func (s *Service) UnreadCounts(userID string, force bool) (models.UnreadCounts, error) {
	if !force {
		if counts, err := s.unreadCache.Get(userID); err == nil {
			return counts, nil
		}
	}

	counts, err := s.computeUnread(userID)
	if err != nil {
		return models.UnreadCounts{}, err
	}
	s.unreadCache.Set(userID, counts)
	return counts, nil
}

func (s *Service) computeUnread(userID string) (models.UnreadCounts, error) {
	refs, err := s.store.ListConversationsFor(userID)
	if err != nil {
		return models.UnreadCounts{}, apperr.Internal(err)
	}

	var counts models.UnreadCounts
	for _, ref := range refs {
		msgs, err := s.store.ListMessages(ref.Key)
		if err != nil {
			return models.UnreadCounts{}, apperr.Internal(err)
		}
		unread := countUnread(msgs, userID, ref.Target.IsGroup())
		if unread > 0 {
			counts.Conversations++
			counts.Messages += unread
		}
	}
	return counts, nil
}

func countUnread(msgs []models.Message, userID string, isGroup bool) int {
	unread := 0
	for _, m := range msgs {
		if m.SenderID == userID || m.DeletedFor(userID) {
			continue
		}
		if isGroup {
			if !m.SeenByUser(userID) {
				unread++
			}
		} else if !m.Read {
			unread++
		}
	}
	return unread
}

func (s *Service) invalidateUnread(userIDs ...string) {
	for _, id := range userIDs {
		if err := s.unreadCache.Del(id); err != nil {
			slog.Debug("unread cache invalidation", "user_id", id, "error", err)
		}
	}
}

func (s *Service) invalidateGroupUnread(groupID, exceptUserID string) {
	group, err := s.store.GetGroup(groupID)
	if err != nil {
		return
	}
	for _, member := range group.Members {
		if member != exceptUserID {
			s.invalidateUnread(member)
		}
	}
}

// reveal returns the message with content in its plaintext form. Direct
// content is sealed at rest and opened on every read path; group content is
// stored in the clear.
func (s *Service) reveal(msg models.Message) (models.Message, error) {
	if msg.Target.IsGroup() || msg.Content == "" {
		return msg, nil
	}
	plain, err := s.sealer.Open(msg.Content)
	if err != nil {
		return models.Message{}, apperr.Internal(err)
	}
	msg.Content = plain
	return msg, nil
}

func (s *Service) visibleTo(msgs []models.Message, userID string) ([]models.Message, error) {
	var visible []models.Message
	for _, m := range msgs {
		if m.DeletedFor(userID) {
			continue
		}
		revealed, err := s.reveal(m)
		if err != nil {
			return nil, err
		}
		visible = append(visible, revealed)
	}
	return visible, nil
}

// conversationFor derives the signal conversation id from the viewpoint of
// the acting user: the group id for groups, otherwise the other participant.
func conversationFor(msg models.Message, userID string) (string, bool) {
	if msg.Target.IsGroup() {
		return msg.Target.ID, true
	}
	return msg.Counterpart(userID), false
}

func requireParticipant(store *storage.Store, msg models.Message, userID string) error {
	if msg.Target.IsGroup() {
		group, err := store.GetGroup(msg.Target.ID)
		if err != nil {
			return err
		}
		if !group.HasMember(userID) {
			return apperr.Forbidden("not a member of group %s", group.ID)
		}
		return nil
	}
	if msg.SenderID != userID && msg.Target.ID != userID {
		return apperr.Forbidden("not a participant of this conversation")
	}
	return nil
}
