// Package ws upgrades authenticated HTTP requests to websocket connections
// and runs one Connection per socket.
package ws

import (
	"log"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/auth"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/presence"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/rooms"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/signals"
)

type Server struct {
	auth     *auth.Service
	router   *rooms.Router
	presence *presence.Registry
	typing   *signals.Emitter
	upgrader *websocket.Upgrader
}

func NewServer(auth *auth.Service, router *rooms.Router, presence *presence.Registry, typing *signals.Emitter) *Server {
	return &Server{
		auth:     auth,
		router:   router,
		presence: presence,
		typing:   typing,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}
}

// HandleConnections authenticates the request, upgrades it and blocks until
// the connection closes. The token travels in a header or query parameter
// since browsers cannot set headers on websocket upgrades.
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	userID, err := s.auth.VerifyToken(token)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("error upgrading to websocket: %v", err)
		return
	}

	conn := NewConnection(s.router, s.presence, s.typing, ws, uuid.NewString(), userID)
	if err := conn.Handle(r.Context()); err != nil {
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			slog.Debug("websocket connection ended", "user_id", userID, "error", err)
		}
	}
}
