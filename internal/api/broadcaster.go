package api

import (
	"encoding/json"

	"github.com/yegors/co-translate/internal/session"
	"github.com/yegors/co-translate/internal/websocket"
	"github.com/yegors/co-translate/pkg/logger"
)

// Broadcaster pushes session changes and notifications to WebSocket clients
type Broadcaster struct {
	ws      *websocket.Server
	session *session.Manager
	logger  *logger.Logger
}

// NewBroadcaster subscribes to the session and sends each new client the
// current snapshot
func NewBroadcaster(ws *websocket.Server, sessionManager *session.Manager, logger *logger.Logger) *Broadcaster {
	b := &Broadcaster{
		ws:      ws,
		session: sessionManager,
		logger:  logger.Named("broadcaster"),
	}
	sessionManager.Subscribe(b)
	ws.SetConnectHandler(b.greet)
	return b
}

// SessionChanged implements session.Observer
func (b *Broadcaster) SessionChanged(snap session.Snapshot) {
	msg, err := snapshotMessage(snap)
	if err != nil {
		b.logger.Error("Failed to encode session snapshot", logger.Error(err))
		return
	}
	b.ws.Broadcast(msg)
}

// Notify implements session.Observer
func (b *Broadcaster) Notify(n session.Notification) {
	b.ws.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeNotification,
		Data: map[string]any{
			"level":   string(n.Level),
			"title":   n.Title,
			"message": n.Message,
		},
	})
}

func (b *Broadcaster) greet(c *websocket.Client) {
	msg, err := snapshotMessage(b.session.Snapshot())
	if err != nil {
		b.logger.Error("Failed to encode session snapshot", logger.Error(err))
		return
	}
	c.SendMessage(msg)
}

// snapshotMessage flattens the snapshot's JSON form into message data
func snapshotMessage(snap session.Snapshot) (*websocket.Message, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return &websocket.Message{Type: websocket.MessageTypeSessionState, Data: data}, nil
}
