package models

// Live wall event types
const (
	EventMessagePublished = "message.published"
	EventMessageRemoved   = "message.removed"
	EventError            = "error"
	EventPing             = "ping"
	EventPong             = "pong"
)

type WSMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

type WSMessageRemovedPayload struct {
	MessageID string `json:"message_id"`
}

type WSErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
