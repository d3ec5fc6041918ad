package bus

import "fmt"

// ChannelSystem marks synthetic inbound events (subagent announces, spawned
// follow-ups). For these messages ChatID encodes the true origin as
// "origin_channel:origin_chat_id".
const ChannelSystem = "system"

// InboundMessage is a user (or synthetic) message arriving from a channel.
type InboundMessage struct {
	Channel  string         `json:"channel"`
	SenderID string         `json:"sender_id"`
	ChatID   string         `json:"chat_id"`
	Content  string         `json:"content"`
	Media    []string       `json:"media,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// SessionKey overrides the session the message is routed to.
	// Empty means the default "<channel>:<chat_id>".
	SessionKey string `json:"session_key,omitempty"`
}

// SessionKeyOrDefault resolves the session key for this message.
func (m *InboundMessage) SessionKeyOrDefault() string {
	if m.SessionKey != "" {
		return m.SessionKey
	}
	return fmt.Sprintf("%s:%s", m.Channel, m.ChatID)
}

// OutboundMessage is an agent reply bound for a channel.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}
