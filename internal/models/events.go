package models

import "encoding/json"

// Realtime wire format.
//
// Client to server events are commands (join, room membership, typing).
// Server to client events are one-way pushes; the durable write always
// happens over REST before any push is published.

type ClientEventType string

const (
	ClientEventJoin       ClientEventType = "join"
	ClientEventJoinGroup  ClientEventType = "joinGroup"
	ClientEventLeaveGroup ClientEventType = "leaveGroup"
	ClientEventTyping     ClientEventType = "typing"
	ClientEventStopTyping ClientEventType = "stopTyping"
)

// ClientEvent represents a message sent from the client to the server.
type ClientEvent struct {
	Type           ClientEventType `json:"type"`
	UserID         string          `json:"userId,omitempty"`
	GroupID        string          `json:"groupId,omitempty"`
	ConversationID string          `json:"conversationId,omitempty"`
	IsGroup        bool            `json:"isGroup,omitempty"`
}

const (
	EventNewMessage        = "newMessage"
	EventNewGroupMessage   = "newGroupMessage"
	EventMessageReaction   = "messageReaction"
	EventMessageSeen       = "messageSeen"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventGroupCreated      = "groupCreated"
	EventUserOnline        = "userOnline"
	EventUserOffline       = "userOffline"
)

// ServerEvent is the envelope for every server to client push.
type ServerEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type NewMessagePayload struct {
	Message  Message `json:"message"`
	SenderID string  `json:"senderId"`
}

type NewGroupMessagePayload struct {
	Message  Message `json:"message"`
	GroupID  string  `json:"groupId"`
	SenderID string  `json:"senderId"`
}

// ReactionPayload carries the full reaction list, not a delta, so every
// viewer converges on the same state regardless of event arrival order.
type ReactionPayload struct {
	MessageID    string     `json:"messageId"`
	Reactions    []Reaction `json:"reactions"`
	UserID       string     `json:"userId"`
	ReactionType *string    `json:"reactionType"`
}

type SeenPayload struct {
	MessageID string        `json:"messageId"`
	SeenBy    []SeenEntry   `json:"seenBy"`
	Status    MessageStatus `json:"status"`
	UserID    string        `json:"userId"`
}

type TypingPayload struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

type GroupCreatedPayload struct {
	Group     Group  `json:"group"`
	CreatorID string `json:"creatorId"`
}

type PresencePayload struct {
	UserID   string `json:"userId"`
	Status   string `json:"status"`
	LastSeen int64  `json:"lastSeen,omitempty"`
}
