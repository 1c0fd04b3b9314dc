package synthesis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yegors/co-translate/internal/websocket"
	"github.com/yegors/co-translate/pkg/logger"
)

// ErrNoListeners is returned when no presentation layer is connected to speak
var ErrNoListeners = errors.New("no connected clients to speak")

// Hub is the subset of the WebSocket server the browser engine needs
type Hub interface {
	Broadcast(message *websocket.Message)
	ClientCount() int
}

// BrowserEngine relays utterances to connected browsers, which speak them with
// their own speech synthesis and acknowledge with speech_ended
type BrowserEngine struct {
	hub     Hub
	maxWait time.Duration
	logger  *logger.Logger

	mu      sync.Mutex
	pending map[string]chan struct{}
}

// NewBrowserEngine creates a browser engine; maxWait bounds one utterance
func NewBrowserEngine(hub Hub, maxWait time.Duration, log *logger.Logger) *BrowserEngine {
	if maxWait <= 0 {
		maxWait = 2 * time.Minute
	}
	return &BrowserEngine{
		hub:     hub,
		maxWait: maxWait,
		logger:  log.Named("browser-tts"),
		pending: make(map[string]chan struct{}),
	}
}

// Name implements Engine
func (e *BrowserEngine) Name() string { return "browser" }

// Ready implements Engine; at least one client must be connected
func (e *BrowserEngine) Ready() error {
	if e.hub.ClientCount() == 0 {
		return ErrNoListeners
	}
	return nil
}

// Speak implements Engine
func (e *BrowserEngine) Speak(ctx context.Context, text, locale string) error {
	if err := e.Ready(); err != nil {
		return err
	}

	id := uuid.NewString()
	ended := make(chan struct{})

	e.mu.Lock()
	e.pending[id] = ended
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.pending, id)
		e.mu.Unlock()
	}()

	e.hub.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeSpeak,
		Data: map[string]any{
			"utterance_id": id,
			"text":         text,
			"locale":       locale,
		},
	})

	timer := time.NewTimer(e.maxWait)
	defer timer.Stop()

	select {
	case <-ended:
		return nil
	case <-ctx.Done():
		e.hub.Broadcast(&websocket.Message{
			Type: websocket.MessageTypeSpeakCancel,
			Data: map[string]any{"utterance_id": id},
		})
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("utterance %s not acknowledged within %s", id, e.maxWait)
	}
}

// HandleMessage implements websocket.MessageHandler for speech_ended acknowledgements
func (e *BrowserEngine) HandleMessage(_ *websocket.Client, messageType string, data map[string]any) error {
	if messageType != websocket.MessageTypeSpeechEnded {
		return nil
	}

	id, _ := data["utterance_id"].(string)
	if id == "" {
		return fmt.Errorf("speech_ended without utterance_id")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.pending[id]; ok {
		close(ch)
		delete(e.pending, id)
	}
	return nil
}
