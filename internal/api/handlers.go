// Package api implements the REST boundary. Every durable mutation enters
// here; the websocket only carries pushes and ephemeral commands.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/apperr"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/auth"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/messaging"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/presence"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/storage"
)

type API struct {
	auth      *auth.Service
	messaging *messaging.Service
	presence  *presence.Registry
	store     *storage.Store
}

func New(auth *auth.Service, messaging *messaging.Service, presence *presence.Registry, store *storage.Store) *API {
	return &API{auth: auth, messaging: messaging, presence: presence, store: store}
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data}); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
	}

	message := err.Error()
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status == http.StatusInternalServerError {
		message = "internal error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: false, Message: message}); err != nil {
		log.Printf("failed to encode error response: %v", err)
	}
}

func (a *API) getToken(r *http.Request) string {
	token := r.Header.Get("token")
	if token == "" {
		if c, err := r.Cookie("token"); err == nil {
			token = c.Value
		}
	}
	return token
}

// RequireAuth resolves the caller before the wrapped handler runs.
func (a *API) RequireAuth(next func(w http.ResponseWriter, r *http.Request, userID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.auth.VerifyToken(a.getToken(r))
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r, userID)
	}
}

type sendMessageRequest struct {
	RecipientID string              `json:"recipientId,omitempty"`
	GroupID     string              `json:"groupId,omitempty"`
	Content     string              `json:"content"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
	ReplyTo     string              `json:"replyTo,omitempty"`
}

func (a *API) SendMessageHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	var target models.MessageTarget
	switch {
	case req.RecipientID != "" && req.GroupID != "":
		writeError(w, apperr.Validation("recipientId and groupId are mutually exclusive"))
		return
	case req.RecipientID != "":
		target = models.DirectTarget(req.RecipientID)
	case req.GroupID != "":
		target = models.GroupTarget(req.GroupID)
	default:
		writeError(w, apperr.Validation("recipientId or groupId is required"))
		return
	}

	msg, err := a.messaging.Send(messaging.SendInput{
		SenderID:    userID,
		Target:      target,
		Content:     req.Content,
		Attachments: req.Attachments,
		ReplyTo:     req.ReplyTo,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, msg)
}

// ConversationHandler returns the 1:1 history and, as a side effect, marks
// the other party's messages read. Opening a conversation is the read signal.
func (a *API) ConversationHandler(w http.ResponseWriter, r *http.Request, userID string) {
	otherID := r.PathValue("id")
	msgs, err := a.messaging.Conversation(userID, otherID)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := a.messaging.MarkRead(userID, otherID); err != nil {
		log.Printf("mark read on fetch: %v", err)
	}
	writeData(w, http.StatusOK, msgs)
}

func (a *API) DeleteConversationHandler(w http.ResponseWriter, r *http.Request, userID string) {
	otherID := r.PathValue("id")
	softDeleted, hardDeleted, err := a.messaging.SoftDeleteConversation(userID, otherID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{
		"deleted": softDeleted + hardDeleted,
		"purged":  hardDeleted,
	})
}

func (a *API) GroupMessagesHandler(w http.ResponseWriter, r *http.Request, userID string) {
	msgs, err := a.messaging.GroupMessages(userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, msgs)
}

func (a *API) DeleteGroupMessagesHandler(w http.ResponseWriter, r *http.Request, userID string) {
	deleted, err := a.messaging.SoftDeleteGroupMessages(userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (a *API) MarkReadHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		SenderID string `json:"senderId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SenderID == "" {
		writeError(w, apperr.Validation("senderId is required"))
		return
	}

	updated, err := a.messaging.MarkRead(userID, req.SenderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"updated": updated})
}

func (a *API) MarkSeenHandler(w http.ResponseWriter, r *http.Request, userID string) {
	msg, err := a.messaging.MarkSeen(userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, msg)
}

func (a *API) ReactHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	msg, err := a.messaging.React(userID, r.PathValue("id"), req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, msg)
}

func (a *API) UnreactHandler(w http.ResponseWriter, r *http.Request, userID string) {
	msg, err := a.messaging.Unreact(userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, msg)
}

func (a *API) DeleteMessageHandler(w http.ResponseWriter, r *http.Request, userID string) {
	hardDeleted, err := a.messaging.SoftDelete(r.PathValue("id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"purged": hardDeleted})
}

func (a *API) UnreadHandler(w http.ResponseWriter, r *http.Request, userID string) {
	force := r.URL.Query().Get("refresh") == "1"
	counts, err := a.messaging.UnreadCounts(userID, force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, counts)
}

func (a *API) ConversationsHandler(w http.ResponseWriter, r *http.Request, userID string) {
	summaries, err := a.messaging.ConversationSummaries(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, summaries)
}

func (a *API) CreateGroupHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		Name    string   `json:"name"`
		Members []string `json:"members"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	group, err := a.messaging.CreateGroup(userID, req.Name, req.Members)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, group)
}

func (a *API) LeaveGroupHandler(w http.ResponseWriter, r *http.Request, userID string) {
	if err := a.messaging.LeaveGroup(userID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (a *API) GroupsHandler(w http.ResponseWriter, r *http.Request, userID string) {
	groups, err := a.messaging.Groups(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, groups)
}

type userWithPresence struct {
	models.User
	Online   bool  `json:"online"`
	LastSeen int64 `json:"lastSeen,omitempty"`
}

// UsersHandler lists messageable users with live presence merged in.
// Restricted accounts and the caller are excluded.
func (a *API) UsersHandler(w http.ResponseWriter, r *http.Request, userID string) {
	users, err := a.store.ListUsers()
	if err != nil {
		writeError(w, apperr.Internal(err))
		return
	}

	out := make([]userWithPresence, 0, len(users))
	for _, u := range users {
		if u.ID == userID || u.Restricted() {
			continue
		}
		p := a.presence.Status(u.ID)
		out = append(out, userWithPresence{User: u, Online: p.Online, LastSeen: p.LastSeen})
	}
	writeData(w, http.StatusOK, out)
}

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request, userID string) {
	user, err := a.store.GetUser(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

// SavePushSubscriptionHandler stores the browser push subscription verbatim;
// it is only parsed when a notification is actually sent.
func (a *API) SavePushSubscriptionHandler(w http.ResponseWriter, r *http.Request, userID string) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 16<<10))
	if err != nil || len(raw) == 0 {
		writeError(w, apperr.Validation("subscription body is required"))
		return
	}
	if !json.Valid(raw) {
		writeError(w, apperr.Validation("subscription must be JSON"))
		return
	}

	if err := a.store.UpsertPushSubscription(userID, raw); err != nil {
		writeError(w, apperr.Internal(err))
		return
	}
	writeData(w, http.StatusCreated, nil)
}
