// Package client is the Go client for the messaging service: a thin REST
// client, a reconnecting realtime socket and a reconciliation store that
// keeps local conversation state consistent with the server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
)

// API wraps the REST endpoints. All durable writes go through here; the
// socket never carries message content upstream.
type API struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL:    baseURL,
		token:      token,
		httpClient: http.DefaultClient,
	}
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(raw)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("token", a.token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Success {
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode data: %w", err)
		}
	}
	return nil
}

type SendMessageRequest struct {
	RecipientID string              `json:"recipientId,omitempty"`
	GroupID     string              `json:"groupId,omitempty"`
	Content     string              `json:"content"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
	ReplyTo     string              `json:"replyTo,omitempty"`
}

func (a *API) SendMessage(ctx context.Context, req SendMessageRequest) (models.Message, error) {
	var msg models.Message
	err := a.do(ctx, http.MethodPost, "/api/messages", req, &msg)
	return msg, err
}

// Conversation fetches the 1:1 history; the server marks the other party's
// messages read as a side effect of this call.
func (a *API) Conversation(ctx context.Context, otherID string) ([]models.Message, error) {
	var msgs []models.Message
	err := a.do(ctx, http.MethodGet, "/api/messages/user/"+otherID, nil, &msgs)
	return msgs, err
}

func (a *API) GroupMessages(ctx context.Context, groupID string) ([]models.Message, error) {
	var msgs []models.Message
	err := a.do(ctx, http.MethodGet, "/api/messages/group/"+groupID, nil, &msgs)
	return msgs, err
}

func (a *API) Conversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var summaries []models.ConversationSummary
	err := a.do(ctx, http.MethodGet, "/api/conversations", nil, &summaries)
	return summaries, err
}

func (a *API) UnreadCounts(ctx context.Context, force bool) (models.UnreadCounts, error) {
	path := "/api/messages/unread"
	if force {
		path += "?refresh=1"
	}
	var counts models.UnreadCounts
	err := a.do(ctx, http.MethodGet, path, nil, &counts)
	return counts, err
}

func (a *API) MarkRead(ctx context.Context, senderID string) error {
	return a.do(ctx, http.MethodPost, "/api/messages/read", map[string]string{"senderId": senderID}, nil)
}

func (a *API) MarkSeen(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := a.do(ctx, http.MethodPost, "/api/messages/"+messageID+"/seen", nil, &msg)
	return msg, err
}

func (a *API) React(ctx context.Context, messageID, reactionType string) (models.Message, error) {
	var msg models.Message
	err := a.do(ctx, http.MethodPost, "/api/messages/"+messageID+"/reactions", map[string]string{"type": reactionType}, &msg)
	return msg, err
}

func (a *API) Unreact(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := a.do(ctx, http.MethodDelete, "/api/messages/"+messageID+"/reactions", nil, &msg)
	return msg, err
}

func (a *API) DeleteMessage(ctx context.Context, messageID string) error {
	return a.do(ctx, http.MethodDelete, "/api/messages/"+messageID, nil, nil)
}

func (a *API) DeleteConversation(ctx context.Context, otherID string) error {
	return a.do(ctx, http.MethodDelete, "/api/messages/user/"+otherID, nil, nil)
}

func (a *API) DeleteGroupMessages(ctx context.Context, groupID string) error {
	return a.do(ctx, http.MethodDelete, "/api/messages/group/"+groupID, nil, nil)
}

func (a *API) CreateGroup(ctx context.Context, name string, members []string) (models.Group, error) {
	var group models.Group
	err := a.do(ctx, http.MethodPost, "/api/groups", map[string]any{"name": name, "members": members}, &group)
	return group, err
}

func (a *API) LeaveGroup(ctx context.Context, groupID string) error {
	return a.do(ctx, http.MethodPost, "/api/groups/"+groupID+"/leave", nil, nil)
}

func (a *API) Groups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	err := a.do(ctx, http.MethodGet, "/api/groups", nil, &groups)
	return groups, err
}

type User struct {
	models.User
	Online   bool  `json:"online"`
	LastSeen int64 `json:"lastSeen,omitempty"`
}

func (a *API) Users(ctx context.Context) ([]User, error) {
	var users []User
	err := a.do(ctx, http.MethodGet, "/api/users", nil, &users)
	return users, err
}

func (a *API) SavePushSubscription(ctx context.Context, subscription json.RawMessage) error {
	return a.do(ctx, http.MethodPost, "/api/push/subscription", subscription, nil)
}
