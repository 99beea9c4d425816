package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBUser struct {
	ID          string `msgpack:"id"`
	UserName    string `msgpack:"userName"`
	DisplayName string `msgpack:"displayName"`
	Role        string `msgpack:"role"`
	LastSeen    int64  `msgpack:"lastSeen"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

type DBGroup struct {
	ID        string   `msgpack:"id"`
	Name      string   `msgpack:"name"`
	CreatorID string   `msgpack:"creatorId"`
	Members   []string `msgpack:"members"`
	CreatedAt int64    `msgpack:"createdAt"`
}

func (g *DBGroup) Key() []byte {
	return []byte(g.ID)
}

func (g *DBGroup) MarshalBinary() (data []byte, err error) {
	type alias DBGroup
	return msgpack.Marshal((*alias)(g))
}

func (g *DBGroup) UnmarshalBinary(data []byte) error {
	type alias DBGroup
	return msgpack.Unmarshal(data, (*alias)(g))
}

// DBConversation is the metadata record for one conversation bucket. Direct
// conversations carry both participant ids, group conversations the group id.
type DBConversation struct {
	ConvKey      string   `msgpack:"convKey"`
	Kind         string   `msgpack:"kind"`
	Participants []string `msgpack:"participants"`
	GroupID      string   `msgpack:"groupId"`
	LastActivity int64    `msgpack:"lastActivity"`
}

func (c *DBConversation) Key() []byte {
	return []byte(c.ConvKey)
}

func (c *DBConversation) MarshalBinary() (data []byte, err error) {
	type alias DBConversation
	return msgpack.Marshal((*alias)(c))
}

func (c *DBConversation) UnmarshalBinary(data []byte) error {
	type alias DBConversation
	return msgpack.Unmarshal(data, (*alias)(c))
}

type DBMessage struct {
	ID          string         `msgpack:"id"`
	Seq         uint64         `msgpack:"seq"`
	SenderID    string         `msgpack:"senderId"`
	TargetKind  string         `msgpack:"targetKind"`
	TargetID    string         `msgpack:"targetId"`
	Content     string         `msgpack:"content"`
	Attachments []DBAttachment `msgpack:"attachments"`
	ReplyTo     string         `msgpack:"replyTo"`
	CreatedAt   int64          `msgpack:"createdAt"`
	Read        bool           `msgpack:"read"`
	Status      string         `msgpack:"status"`
	Reactions   []DBReaction   `msgpack:"reactions"`
	SeenBy      []DBSeen       `msgpack:"seenBy"`
	DeletedBy   []string       `msgpack:"deletedBy"`
}

type DBAttachment struct {
	Name     string `msgpack:"name"`
	MimeType string `msgpack:"mimeType"`
	FileID   string `msgpack:"fileId"`
	Size     int64  `msgpack:"size"`
}

type DBReaction struct {
	UserID string `msgpack:"userId"`
	Type   string `msgpack:"type"`
	At     int64  `msgpack:"at"`
}

type DBSeen struct {
	UserID string `msgpack:"userId"`
	At     int64  `msgpack:"at"`
}

func (m *DBMessage) Key() []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, m.Seq)
	return key
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

// DBMessageIndex locates a message by id inside its conversation bucket.
type DBMessageIndex struct {
	MessageID string `msgpack:"messageId"`
	ConvKey   string `msgpack:"convKey"`
	Seq       uint64 `msgpack:"seq"`
}

func (i *DBMessageIndex) Key() []byte {
	return []byte(i.MessageID)
}

func (i *DBMessageIndex) MarshalBinary() (data []byte, err error) {
	type alias DBMessageIndex
	return msgpack.Marshal((*alias)(i))
}

func (i *DBMessageIndex) UnmarshalBinary(data []byte) error {
	type alias DBMessageIndex
	return msgpack.Unmarshal(data, (*alias)(i))
}

type DBPushSubscription struct {
	UserID       string `msgpack:"userId"`
	Subscription []byte `msgpack:"subscription"`
}

func (p *DBPushSubscription) Key() []byte {
	return []byte(p.UserID)
}

func (p *DBPushSubscription) MarshalBinary() (data []byte, err error) {
	type alias DBPushSubscription
	return msgpack.Marshal((*alias)(p))
}

func (p *DBPushSubscription) UnmarshalBinary(data []byte) error {
	type alias DBPushSubscription
	return msgpack.Unmarshal(data, (*alias)(p))
}
