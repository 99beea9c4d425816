// Package http assembles the mux and owns the HTTP server lifecycle.
package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/api"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/auth"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/messaging"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/presence"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/rooms"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/signals"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/storage"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(
	authService *auth.Service,
	messagingService *messaging.Service,
	router *rooms.Router,
	registry *presence.Registry,
	emitter *signals.Emitter,
	store *storage.Store,
	addr string,
) *APIServer {
	wsServer := ws.NewServer(authService, router, registry, emitter)
	apiHandlers := api.New(authService, messagingService, registry, store)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/messages", apiHandlers.RequireAuth(apiHandlers.SendMessageHandler))
	mux.HandleFunc("GET /api/messages/user/{id}", apiHandlers.RequireAuth(apiHandlers.ConversationHandler))
	mux.HandleFunc("DELETE /api/messages/user/{id}", apiHandlers.RequireAuth(apiHandlers.DeleteConversationHandler))
	mux.HandleFunc("GET /api/messages/group/{id}", apiHandlers.RequireAuth(apiHandlers.GroupMessagesHandler))
	mux.HandleFunc("DELETE /api/messages/group/{id}", apiHandlers.RequireAuth(apiHandlers.DeleteGroupMessagesHandler))
	mux.HandleFunc("POST /api/messages/read", apiHandlers.RequireAuth(apiHandlers.MarkReadHandler))
	mux.HandleFunc("GET /api/messages/unread", apiHandlers.RequireAuth(apiHandlers.UnreadHandler))
	mux.HandleFunc("POST /api/messages/{id}/seen", apiHandlers.RequireAuth(apiHandlers.MarkSeenHandler))
	mux.HandleFunc("POST /api/messages/{id}/reactions", apiHandlers.RequireAuth(apiHandlers.ReactHandler))
	mux.HandleFunc("DELETE /api/messages/{id}/reactions", apiHandlers.RequireAuth(apiHandlers.UnreactHandler))
	mux.HandleFunc("DELETE /api/messages/{id}", apiHandlers.RequireAuth(apiHandlers.DeleteMessageHandler))
	mux.HandleFunc("GET /api/conversations", apiHandlers.RequireAuth(apiHandlers.ConversationsHandler))
	mux.HandleFunc("POST /api/groups", apiHandlers.RequireAuth(apiHandlers.CreateGroupHandler))
	mux.HandleFunc("POST /api/groups/{id}/leave", apiHandlers.RequireAuth(apiHandlers.LeaveGroupHandler))
	mux.HandleFunc("GET /api/groups", apiHandlers.RequireAuth(apiHandlers.GroupsHandler))
	mux.HandleFunc("GET /api/users", apiHandlers.RequireAuth(apiHandlers.UsersHandler))
	mux.HandleFunc("GET /api/me", apiHandlers.RequireAuth(apiHandlers.MeHandler))
	mux.HandleFunc("POST /api/push/subscription", apiHandlers.RequireAuth(apiHandlers.SavePushSubscriptionHandler))

	// WebSocket endpoint
	mux.HandleFunc("/api/realtime", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
