package monitor

import "time"

// MonitorMessage is one unit of conversational traffic shown to an operator.
type MonitorMessage struct {
	Timestamp   time.Time `json:"timestamp"`
	MessageType string    `json:"message_type"` // "USER", "ASSISTANT" or "TOOL"
	ChannelID   string    `json:"channel_id"`
	Username    string    `json:"username"`
	Content     string    `json:"content"`
}

// Monitor defines the interface for components that observe the message flow
// across all front channels.
type Monitor interface {
	Start() error
	Stop() error
	OnMessage(msg MonitorMessage)
}
