package handlers

// MessageHandler processes the payload of one exchange stream event type
type MessageHandler interface {
	// Handle processes the raw JSON payload of one event
	Handle(data []byte) error

	// GetMessageType returns the event type handled, e.g. "kline"
	GetMessageType() string
}
