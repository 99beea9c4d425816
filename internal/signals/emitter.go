// Package signals propagates ephemeral state: typing indicators and
// reaction/seen updates. Signals are at-most-once with no retry and no
// persistence; a dropped signal self-heals on the next REST fetch.
package signals

import (
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/rooms"
)

type Emitter struct {
	broadcaster rooms.Broadcaster
}

func NewEmitter(broadcaster rooms.Broadcaster) *Emitter {
	return &Emitter{broadcaster: broadcaster}
}

// targetRoom computes the destination identically for every signal type:
// the group room for group conversations, otherwise the counterpart's
// personal room (conversationID is the other participant's id).
func targetRoom(conversationID string, isGroup bool) string {
	if isGroup {
		return rooms.GroupRoom(conversationID)
	}
	return rooms.UserRoom(conversationID)
}

// Typing signals that userID is typing. The sender must re-emit while
// actively typing; the receiving client auto-clears the indicator after a
// few seconds of silence.
func (e *Emitter) Typing(userID, conversationID string, isGroup bool) {
	e.broadcaster.Publish(targetRoom(conversationID, isGroup), models.EventUserTyping, models.TypingPayload{
		UserID:         userID,
		ConversationID: conversationID,
	})
}

func (e *Emitter) StopTyping(userID, conversationID string, isGroup bool) {
	e.broadcaster.Publish(targetRoom(conversationID, isGroup), models.EventUserStoppedTyping, models.TypingPayload{
		UserID:         userID,
		ConversationID: conversationID,
	})
}

// ReactionChanged pushes the full updated reaction list, never a delta, so
// late-arriving events still converge every viewer to the same state.
func (e *Emitter) ReactionChanged(messageID string, reactions []models.Reaction, userID string, reactionType *string, conversationID string, isGroup bool) {
	e.broadcaster.Publish(targetRoom(conversationID, isGroup), models.EventMessageReaction, models.ReactionPayload{
		MessageID:    messageID,
		Reactions:    reactions,
		UserID:       userID,
		ReactionType: reactionType,
	})
}

// Seen pushes the full seen-by set after a viewer marked a message seen.
func (e *Emitter) Seen(messageID string, seenBy []models.SeenEntry, status models.MessageStatus, userID, conversationID string, isGroup bool) {
	e.broadcaster.Publish(targetRoom(conversationID, isGroup), models.EventMessageSeen, models.SeenPayload{
		MessageID: messageID,
		SeenBy:    seenBy,
		Status:    status,
		UserID:    userID,
	})
}
