package models

import (
	"sort"
	"strings"
)

type Role string

const (
	RoleMember     Role = "member"
	RoleManager    Role = "manager"
	RoleSuperAdmin Role = "superadmin"
)

// User represents a user in the system. User records are owned by the task
// management side of the application; messaging only reads them.
type User struct {
	ID          string   `json:"id"`
	UserName    string   `json:"userName"`
	DisplayName string   `json:"displayName"`
	Role        Role     `json:"role"`
	Presence    Presence `json:"presence"`
}

// Restricted reports whether the user may not be messaged.
func (u User) Restricted() bool {
	return u.Role == RoleSuperAdmin
}

// Presence represents the online status of a user. Absence of a record means
// unknown/offline.
type Presence struct {
	Online   bool  `json:"online"`
	LastSeen int64 `json:"lastSeen"` // Unix timestamp (seconds)
}

type TargetKind string

const (
	TargetDirect TargetKind = "direct"
	TargetGroup  TargetKind = "group"
)

// MessageTarget is the tagged destination of a message: exactly one of a
// direct recipient or a group. The variant makes recipient-XOR-group
// structurally impossible to violate.
type MessageTarget struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

func DirectTarget(recipientID string) MessageTarget {
	return MessageTarget{Kind: TargetDirect, ID: recipientID}
}

func GroupTarget(groupID string) MessageTarget {
	return MessageTarget{Kind: TargetGroup, ID: groupID}
}

func (t MessageTarget) IsGroup() bool {
	return t.Kind == TargetGroup
}

func (t MessageTarget) Valid() bool {
	return (t.Kind == TargetDirect || t.Kind == TargetGroup) && t.ID != ""
}

type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusSeen      MessageStatus = "seen"
)

// Reaction is one user's reaction to a message. A message holds at most one
// reaction per user; a new reaction replaces the previous one.
type Reaction struct {
	UserID string `json:"userId"`
	Type   string `json:"type"`
	At     int64  `json:"at"`
}

// SeenEntry records one viewer of a message. The sender is never recorded.
type SeenEntry struct {
	UserID string `json:"userId"`
	At     int64  `json:"at"`
}

type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	FileID   string `json:"fileId"`
	Size     int64  `json:"size"`
}

// Message represents a chat message.
type Message struct {
	ID          string        `json:"id"`
	SenderID    string        `json:"senderId"`
	Target      MessageTarget `json:"target"`
	Content     string        `json:"content"`
	Attachments []Attachment  `json:"attachments,omitempty"`
	ReplyTo     string        `json:"replyTo,omitempty"`
	CreatedAt   int64         `json:"createdAt"` // Unix timestamp (seconds)
	Read        bool          `json:"read"`      // 1:1 only
	Status      MessageStatus `json:"status"`
	Reactions   []Reaction    `json:"reactions,omitempty"`
	SeenBy      []SeenEntry   `json:"seenBy,omitempty"`
	DeletedBy   []string      `json:"-"`
}

// DeletedFor reports whether userID soft-deleted the message. Every read
// path must exclude messages deleted for the requester.
func (m Message) DeletedFor(userID string) bool {
	for _, id := range m.DeletedBy {
		if id == userID {
			return true
		}
	}
	return false
}

func (m Message) SeenByUser(userID string) bool {
	for _, s := range m.SeenBy {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

// ReactionOf returns the user's reaction entry, if any.
func (m Message) ReactionOf(userID string) (Reaction, bool) {
	for _, r := range m.Reactions {
		if r.UserID == userID {
			return r, true
		}
	}
	return Reaction{}, false
}

// Counterpart returns the other participant of a direct message from the
// viewpoint of userID. For the sender that is the recipient and vice versa.
func (m Message) Counterpart(userID string) string {
	if m.Target.IsGroup() {
		return ""
	}
	if m.SenderID == userID {
		return m.Target.ID
	}
	return m.SenderID
}

// ConvKey returns the storage key of the conversation the message belongs to.
func (m Message) ConvKey() string {
	if m.Target.IsGroup() {
		return GroupConvKey(m.Target.ID)
	}
	return DirectConvKey(m.SenderID, m.Target.ID)
}

// DirectConvKey builds a deterministic key for a 1:1 conversation; the order
// of the two user ids does not matter.
func DirectConvKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return "d:" + ids[0] + ":" + ids[1]
}

func GroupConvKey(groupID string) string {
	return "g:" + groupID
}

// DirectConvParticipants is the inverse of DirectConvKey.
func DirectConvParticipants(key string) (string, string, bool) {
	if !strings.HasPrefix(key, "d:") {
		return "", "", false
	}
	parts := strings.SplitN(key[2:], ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Group is a named set of members that share a group conversation.
type Group struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	CreatorID string   `json:"creatorId"`
	Members   []string `json:"members"`
	CreatedAt int64    `json:"createdAt"`
}

func (g Group) HasMember(userID string) bool {
	for _, id := range g.Members {
		if id == userID {
			return true
		}
	}
	return false
}

// ConversationSummary is the read model behind the conversation list view:
// the most recent message visible to the requester plus their unread count.
// It is recomputed per request and never stored.
type ConversationSummary struct {
	Key         string        `json:"key"`
	Target      MessageTarget `json:"target"`
	Name        string        `json:"name"`
	LastMessage *Message      `json:"lastMessage,omitempty"`
	Unread      int           `json:"unread"`
}

// UnreadCounts is the derived unread counter pair served by the polling
// endpoint. Always reconstructable from messages; cached only to bound load.
type UnreadCounts struct {
	Conversations int `json:"conversationCount"`
	Messages      int `json:"totalUnreadMessages"`
}
