package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
)

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type connectionRouter interface {
	Connect(connID string) <-chan models.ServerEvent
	Disconnect(connID string)
	JoinPersonal(connID, userID string)
	JoinGroup(connID, groupID string)
	LeaveGroup(connID, groupID string)
}

type presenceTracker interface {
	MarkOnline(userID string)
	MarkOffline(userID string)
}

type typingEmitter interface {
	Typing(userID, conversationID string, isGroup bool)
	StopTyping(userID, conversationID string, isGroup bool)
}

// Connection couples one websocket to the room router. It owns two pumps:
// one reading client events, one draining the router's outbound channel into
// the socket. The socket carries commands and pushes only; durable writes go
// over REST.
type Connection struct {
	ws         wsConnection
	router     connectionRouter
	presence   presenceTracker
	typing     typingEmitter
	connID     string
	userID     string
	joined     bool
	fromClient chan models.ClientEvent
	fromServer <-chan models.ServerEvent
	errorCh    chan error
}

func NewConnection(
	router connectionRouter,
	presence presenceTracker,
	typing typingEmitter,
	ws wsConnection,
	connID string,
	userID string,
) *Connection {
	return &Connection{
		ws:         ws,
		router:     router,
		presence:   presence,
		typing:     typing,
		connID:     connID,
		userID:     userID,
		fromClient: make(chan models.ClientEvent),
		fromServer: router.Connect(connID),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		c.router.Disconnect(c.connID)
		if c.joined {
			c.presence.MarkOffline(c.userID)
		}
		close(c.fromClient)
		close(c.errorCh)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpEvents(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpEvents(ctx context.Context) error {
	for {
		var ev models.ClientEvent
		if err := c.ws.ReadJSON(&ev); err != nil {
			return err
		}
		select {
		case c.fromClient <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case ev := <-c.fromClient:
			if err := c.processClientEvent(ev); err != nil {
				return err
			}
		case ev, ok := <-c.fromServer:
			if !ok {
				return nil
			}
			if err := c.ws.WriteJSON(ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) processClientEvent(ev models.ClientEvent) error {
	switch ev.Type {
	case models.ClientEventJoin:
		// Join is the handshake: only after it does the connection receive
		// room events. A client can only join as the user it authenticated as.
		if ev.UserID != c.userID {
			return errors.New("join for a different user")
		}
		c.router.JoinPersonal(c.connID, c.userID)
		if !c.joined {
			c.joined = true
			c.presence.MarkOnline(c.userID)
		}
	case models.ClientEventJoinGroup:
		if c.joined && ev.GroupID != "" {
			c.router.JoinGroup(c.connID, ev.GroupID)
		}
	case models.ClientEventLeaveGroup:
		if ev.GroupID != "" {
			c.router.LeaveGroup(c.connID, ev.GroupID)
		}
	case models.ClientEventTyping:
		if c.joined && ev.ConversationID != "" {
			c.typing.Typing(c.userID, ev.ConversationID, ev.IsGroup)
		}
	case models.ClientEventStopTyping:
		if c.joined && ev.ConversationID != "" {
			c.typing.StopTyping(c.userID, ev.ConversationID, ev.IsGroup)
		}
	}

	return nil
}
