package storage

import (
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/apperr"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
)

var (
	bucketUsers         = []byte("users")
	bucketGroups        = []byte("groups")
	bucketConversations = []byte("conversations")
	bucketMessages      = []byte("messages")
	bucketMessageIndex  = []byte("message_index")
	bucketPushSubs      = []byte("push_subscriptions")
)

// MutateAction tells an update pass what to do with a message after the
// mutate callback ran.
type MutateAction int

const (
	MutateNone MutateAction = iota
	MutateSave
	MutateDelete
)

// ConversationRef identifies one conversation a user participates in.
type ConversationRef struct {
	Key          string
	Target       models.MessageTarget
	LastActivity int64
}

type Store struct {
	db *bbolt.DB
}

func NewStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketUsers,
			bucketGroups,
			bucketConversations,
			bucketMessages,
			bucketMessageIndex,
			bucketPushSubs,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertUser stores a new or updated user record.
func (s *Store) UpsertUser(user models.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		dbUser := &DBUser{
			ID:          user.ID,
			UserName:    user.UserName,
			DisplayName: user.DisplayName,
			Role:        string(user.Role),
			LastSeen:    user.Presence.LastSeen,
		}
		data, err := dbUser.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbUser.Key(), data)
	})
}

func (s *Store) GetUser(id string) (models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(id))
		if data == nil {
			return apperr.NotFound("user %s not found", id)
		}
		var dbUser DBUser
		if err := dbUser.UnmarshalBinary(data); err != nil {
			return err
		}
		user = userFromDB(dbUser)
		return nil
	})
	return user, err
}

func (s *Store) ListUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			users = append(users, userFromDB(dbUser))
			return nil
		})
	})
	return users, err
}

// UpsertGroup saves a group record.
func (s *Store) UpsertGroup(group models.Group) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketGroups)
		dbGroup := &DBGroup{
			ID:        group.ID,
			Name:      group.Name,
			CreatorID: group.CreatorID,
			Members:   group.Members,
			CreatedAt: group.CreatedAt,
		}
		data, err := dbGroup.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbGroup.Key(), data)
	})
}

func (s *Store) GetGroup(id string) (models.Group, error) {
	var group models.Group
	err := s.db.View(func(tx *bbolt.Tx) error {
		g, err := getGroupTx(tx, id)
		if err != nil {
			return err
		}
		group = g
		return nil
	})
	return group, err
}

func getGroupTx(tx *bbolt.Tx, id string) (models.Group, error) {
	data := tx.Bucket(bucketGroups).Get([]byte(id))
	if data == nil {
		return models.Group{}, apperr.NotFound("group %s not found", id)
	}
	var dbGroup DBGroup
	if err := dbGroup.UnmarshalBinary(data); err != nil {
		return models.Group{}, err
	}
	return models.Group{
		ID:        dbGroup.ID,
		Name:      dbGroup.Name,
		CreatorID: dbGroup.CreatorID,
		Members:   dbGroup.Members,
		CreatedAt: dbGroup.CreatedAt,
	}, nil
}

// ListGroupsFor returns the groups userID is a member of.
func (s *Store) ListGroupsFor(userID string) ([]models.Group, error) {
	var groups []models.Group
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketGroups).ForEach(func(k, v []byte) error {
			var dbGroup DBGroup
			if err := dbGroup.UnmarshalBinary(v); err != nil {
				return err
			}
			g := models.Group{
				ID:        dbGroup.ID,
				Name:      dbGroup.Name,
				CreatorID: dbGroup.CreatorID,
				Members:   dbGroup.Members,
				CreatedAt: dbGroup.CreatedAt,
			}
			if g.HasMember(userID) {
				groups = append(groups, g)
			}
			return nil
		})
	})
	return groups, err
}

// PutMessage persists a new message, assigning the next per-conversation
// sequence number, and updates the conversation metadata and id index in the
// same transaction. The message content must already be in its at-rest form.
func (s *Store) PutMessage(message models.Message) (models.Message, error) {
	if message.ID == "" {
		return models.Message{}, errors.New("message missing id")
	}
	convKey := message.ConvKey()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		convBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(convKey))
		if err != nil {
			return fmt.Errorf("failed to create conversation bucket: %w", err)
		}

		seq, err := convBucket.NextSequence()
		if err != nil {
			return err
		}

		dbMsg := messageToDB(message, seq)
		data, err := dbMsg.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := convBucket.Put(dbMsg.Key(), data); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}

		idx := &DBMessageIndex{MessageID: message.ID, ConvKey: convKey, Seq: seq}
		idxData, err := idx.MarshalBinary()
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketMessageIndex).Put(idx.Key(), idxData); err != nil {
			return err
		}

		return upsertConversationTx(tx, message, convKey)
	})
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func upsertConversationTx(tx *bbolt.Tx, message models.Message, convKey string) error {
	conv := &DBConversation{
		ConvKey:      convKey,
		Kind:         string(message.Target.Kind),
		LastActivity: message.CreatedAt,
	}
	if message.Target.IsGroup() {
		conv.GroupID = message.Target.ID
	} else {
		conv.Participants = []string{message.SenderID, message.Target.ID}
	}
	data, err := conv.MarshalBinary()
	if err != nil {
		return err
	}
	return tx.Bucket(bucketConversations).Put(conv.Key(), data)
}

// GetMessage looks a message up by id through the index bucket.
func (s *Store) GetMessage(id string) (models.Message, error) {
	var message models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		dbMsg, _, err := getMessageTx(tx, id)
		if err != nil {
			return err
		}
		message = messageFromDB(*dbMsg)
		return nil
	})
	return message, err
}

func getMessageTx(tx *bbolt.Tx, id string) (*DBMessage, *DBMessageIndex, error) {
	idxData := tx.Bucket(bucketMessageIndex).Get([]byte(id))
	if idxData == nil {
		return nil, nil, apperr.NotFound("message %s not found", id)
	}
	var idx DBMessageIndex
	if err := idx.UnmarshalBinary(idxData); err != nil {
		return nil, nil, err
	}

	convBucket := tx.Bucket(bucketMessages).Bucket([]byte(idx.ConvKey))
	if convBucket == nil {
		return nil, nil, apperr.NotFound("message %s not found", id)
	}
	key := (&DBMessage{Seq: idx.Seq}).Key()
	data := convBucket.Get(key)
	if data == nil {
		return nil, nil, apperr.NotFound("message %s not found", id)
	}

	var dbMsg DBMessage
	if err := dbMsg.UnmarshalBinary(data); err != nil {
		return nil, nil, err
	}
	return &dbMsg, &idx, nil
}

// UpdateMessage applies mutate to a message inside one write transaction.
// MutateSave rewrites the record, MutateDelete removes it together with its
// index entry, MutateNone leaves storage untouched.
func (s *Store) UpdateMessage(id string, mutate func(*models.Message) (MutateAction, error)) (models.Message, error) {
	var out models.Message
	err := s.db.Update(func(tx *bbolt.Tx) error {
		dbMsg, idx, err := getMessageTx(tx, id)
		if err != nil {
			return err
		}

		msg := messageFromDB(*dbMsg)
		action, err := mutate(&msg)
		if err != nil {
			return err
		}
		out = msg

		convBucket := tx.Bucket(bucketMessages).Bucket([]byte(idx.ConvKey))
		switch action {
		case MutateSave:
			updated := messageToDB(msg, idx.Seq)
			data, err := updated.MarshalBinary()
			if err != nil {
				return err
			}
			return convBucket.Put(updated.Key(), data)
		case MutateDelete:
			if err := convBucket.Delete((&DBMessage{Seq: idx.Seq}).Key()); err != nil {
				return err
			}
			return tx.Bucket(bucketMessageIndex).Delete([]byte(id))
		default:
			return nil
		}
	})
	if err != nil {
		return models.Message{}, err
	}
	return out, nil
}

// UpdateMessages applies mutate to every message of a conversation in one
// transaction and returns how many were saved and hard-deleted.
func (s *Store) UpdateMessages(convKey string, mutate func(*models.Message) (MutateAction, error)) (saved, deleted int, err error) {
	err = s.db.Update(func(tx *bbolt.Tx) error {
		convBucket := tx.Bucket(bucketMessages).Bucket([]byte(convKey))
		if convBucket == nil {
			return nil // no messages yet
		}

		type pending struct {
			key    []byte
			data   []byte
			id     string
			delete bool
		}
		var updates []pending

		err := convBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			msg := messageFromDB(dbMsg)
			action, err := mutate(&msg)
			if err != nil {
				return err
			}
			switch action {
			case MutateSave:
				updated := messageToDB(msg, dbMsg.Seq)
				data, err := updated.MarshalBinary()
				if err != nil {
					return err
				}
				updates = append(updates, pending{key: append([]byte(nil), k...), data: data})
			case MutateDelete:
				updates = append(updates, pending{key: append([]byte(nil), k...), id: msg.ID, delete: true})
			}
			return nil
		})
		if err != nil {
			return err
		}

		// Mutating a bucket invalidates its cursor, so writes happen after
		// the iteration pass.
		for _, u := range updates {
			if u.delete {
				if err := convBucket.Delete(u.key); err != nil {
					return err
				}
				if err := tx.Bucket(bucketMessageIndex).Delete([]byte(u.id)); err != nil {
					return err
				}
				deleted++
				continue
			}
			if err := convBucket.Put(u.key, u.data); err != nil {
				return err
			}
			saved++
		}
		return nil
	})
	return saved, deleted, err
}

// DeleteMessage removes a message and its index entry.
func (s *Store) DeleteMessage(id string) error {
	_, err := s.UpdateMessage(id, func(*models.Message) (MutateAction, error) {
		return MutateDelete, nil
	})
	return err
}

// ListMessages returns all messages of a conversation in sequence order.
func (s *Store) ListMessages(convKey string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		convBucket := tx.Bucket(bucketMessages).Bucket([]byte(convKey))
		if convBucket == nil {
			return nil
		}
		return convBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, messageFromDB(dbMsg))
			return nil
		})
	})
	return messages, err
}

// ListConversationsFor returns refs for every conversation the user can see:
// direct conversations they participate in and group conversations of groups
// they belong to.
func (s *Store) ListConversationsFor(userID string) ([]ConversationRef, error) {
	var refs []ConversationRef
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConversations).ForEach(func(k, v []byte) error {
			var conv DBConversation
			if err := conv.UnmarshalBinary(v); err != nil {
				return err
			}

			switch models.TargetKind(conv.Kind) {
			case models.TargetDirect:
				for _, p := range conv.Participants {
					if p == userID {
						other := conv.Participants[0]
						if other == userID && len(conv.Participants) > 1 {
							other = conv.Participants[1]
						}
						refs = append(refs, ConversationRef{
							Key:          conv.ConvKey,
							Target:       models.DirectTarget(other),
							LastActivity: conv.LastActivity,
						})
						break
					}
				}
			case models.TargetGroup:
				group, err := getGroupTx(tx, conv.GroupID)
				if err != nil {
					if apperr.KindOf(err) == apperr.KindNotFound {
						return nil // group dissolved, conversation orphaned
					}
					return err
				}
				if group.HasMember(userID) {
					refs = append(refs, ConversationRef{
						Key:          conv.ConvKey,
						Target:       models.GroupTarget(conv.GroupID),
						LastActivity: conv.LastActivity,
					})
				}
			}
			return nil
		})
	})
	return refs, err
}

func (s *Store) UpsertPushSubscription(userID string, subscription []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		sub := &DBPushSubscription{UserID: userID, Subscription: subscription}
		data, err := sub.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPushSubs).Put(sub.Key(), data)
	})
}

func (s *Store) GetPushSubscription(userID string) ([]byte, error) {
	var subscription []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketPushSubs).Get([]byte(userID))
		if data == nil {
			return apperr.NotFound("no push subscription for user %s", userID)
		}
		var sub DBPushSubscription
		if err := sub.UnmarshalBinary(data); err != nil {
			return err
		}
		subscription = sub.Subscription
		return nil
	})
	return subscription, err
}

func (s *Store) DeletePushSubscription(userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPushSubs).Delete([]byte(userID))
	})
}

func userFromDB(dbUser DBUser) models.User {
	return models.User{
		ID:          dbUser.ID,
		UserName:    dbUser.UserName,
		DisplayName: dbUser.DisplayName,
		Role:        models.Role(dbUser.Role),
		Presence: models.Presence{
			LastSeen: dbUser.LastSeen,
		},
	}
}

func messageToDB(m models.Message, seq uint64) *DBMessage {
	dbMsg := &DBMessage{
		ID:         m.ID,
		Seq:        seq,
		SenderID:   m.SenderID,
		TargetKind: string(m.Target.Kind),
		TargetID:   m.Target.ID,
		Content:    m.Content,
		ReplyTo:    m.ReplyTo,
		CreatedAt:  m.CreatedAt,
		Read:       m.Read,
		Status:     string(m.Status),
		DeletedBy:  m.DeletedBy,
	}
	for _, a := range m.Attachments {
		dbMsg.Attachments = append(dbMsg.Attachments, DBAttachment{
			Name:     a.Name,
			MimeType: a.MimeType,
			FileID:   a.FileID,
			Size:     a.Size,
		})
	}
	for _, r := range m.Reactions {
		dbMsg.Reactions = append(dbMsg.Reactions, DBReaction{UserID: r.UserID, Type: r.Type, At: r.At})
	}
	for _, e := range m.SeenBy {
		dbMsg.SeenBy = append(dbMsg.SeenBy, DBSeen{UserID: e.UserID, At: e.At})
	}
	return dbMsg
}

func messageFromDB(dbMsg DBMessage) models.Message {
	msg := models.Message{
		ID:        dbMsg.ID,
		SenderID:  dbMsg.SenderID,
		Target:    models.MessageTarget{Kind: models.TargetKind(dbMsg.TargetKind), ID: dbMsg.TargetID},
		Content:   dbMsg.Content,
		ReplyTo:   dbMsg.ReplyTo,
		CreatedAt: dbMsg.CreatedAt,
		Read:      dbMsg.Read,
		Status:    models.MessageStatus(dbMsg.Status),
		DeletedBy: dbMsg.DeletedBy,
	}
	for _, a := range dbMsg.Attachments {
		msg.Attachments = append(msg.Attachments, models.Attachment{
			Name:     a.Name,
			MimeType: a.MimeType,
			FileID:   a.FileID,
			Size:     a.Size,
		})
	}
	for _, r := range dbMsg.Reactions {
		msg.Reactions = append(msg.Reactions, models.Reaction{UserID: r.UserID, Type: r.Type, At: r.At})
	}
	for _, e := range dbMsg.SeenBy {
		msg.SeenBy = append(msg.SeenBy, models.SeenEntry{UserID: e.UserID, At: e.At})
	}
	return msg
}
