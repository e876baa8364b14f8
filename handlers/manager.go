package handlers

import (
	"encoding/json"
	"fmt"
	"sync"
)

// envelope is the combined stream wrapper: {"stream":"btcusdt@kline_1h","data":{...}}
type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// eventHeader is the part of every payload naming its event type
type eventHeader struct {
	Event string `json:"e"`
}

// HandlerManager routes stream frames to handlers by event type
type HandlerManager struct {
	handlers map[string]MessageHandler
	mu       sync.RWMutex
}

// NewHandlerManager creates a new HandlerManager
func NewHandlerManager() *HandlerManager {
	return &HandlerManager{
		handlers: make(map[string]MessageHandler),
	}
}

// RegisterHandler registers handler for its message type
func (hm *HandlerManager) RegisterHandler(handler MessageHandler) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.handlers[handler.GetMessageType()] = handler
	fmt.Printf("📦 Registered handler: %s\n", handler.GetMessageType())
}

// UnregisterHandler removes the handler for a message type
func (hm *HandlerManager) UnregisterHandler(messageType string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	delete(hm.handlers, messageType)
}

// GetHandler returns the handler for a message type
func (hm *HandlerManager) GetHandler(messageType string) (MessageHandler, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	handler, exists := hm.handlers[messageType]
	return handler, exists
}

// Dispatch decodes a frame, combined or raw, and hands its payload to the matching
// handler. Frames without a registered handler, such as subscription acks, are ignored.
func (hm *HandlerManager) Dispatch(frame []byte) error {
	payload := []byte(frame)

	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	if len(env.Data) > 0 {
		payload = env.Data
	}

	var header eventHeader
	if err := json.Unmarshal(payload, &header); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if header.Event == "" {
		return nil
	}

	handler, exists := hm.GetHandler(header.Event)
	if !exists {
		return nil
	}
	return handler.Handle(payload)
}

// ListHandlers returns the registered message types
func (hm *HandlerManager) ListHandlers() []string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	names := make([]string, 0, len(hm.handlers))
	for name := range hm.handlers {
		names = append(names, name)
	}
	return names
}
