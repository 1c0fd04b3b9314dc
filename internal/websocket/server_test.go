package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yegors/co-translate/pkg/logger"
)

type recordingHandler struct {
	got chan Message
}

func (h *recordingHandler) HandleMessage(_ *Client, messageType string, data map[string]any) error {
	h.got <- Message{Type: messageType, Data: data}
	return nil
}

func startServer(t *testing.T) (*Server, string, chan *Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := NewServer(logger.NewNop())
	connected := make(chan *Client, 1)
	s.SetConnectHandler(func(c *Client) { connected <- c })
	go s.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(s.HandleConnection))
	t.Cleanup(srv.Close)
	return s, "ws" + strings.TrimPrefix(srv.URL, "http"), connected
}

// TestBroadcastReachesClient delivers a broadcast and a handled incoming message.
func TestBroadcastReachesClient(t *testing.T) {
	s, url, connected := startServer(t)
	handler := &recordingHandler{got: make(chan Message, 1)}
	s.SetMessageHandler(handler)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never registered")
	}
	if s.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d, want 1", s.ClientCount())
	}

	s.Broadcast(&Message{Type: MessageTypeNotification, Data: map[string]any{"title": "Recording started"}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Type != MessageTypeNotification || msg.Data["title"] != "Recording started" {
		t.Fatalf("message = %+v", msg)
	}

	if err := conn.WriteJSON(Message{Type: MessageTypeSpeechEnded, Data: map[string]any{"utterance_id": "u1"}}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	select {
	case got := <-handler.got:
		if got.Type != MessageTypeSpeechEnded || got.Data["utterance_id"] != "u1" {
			t.Fatalf("handled = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message never handled")
	}
}
