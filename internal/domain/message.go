package domain

import "time"

// Message is a single inbound chat event as delivered by the transport bridge.
// TimestampSeconds is assigned by the origin, not the time of receipt.
type Message struct {
	Sender           string
	Text             string
	TimestampSeconds int64
	IsFromSelf       bool
	IsGroup          bool
	Chat             *Chat
}

// Chat is the metadata the transport knows about the conversation a message
// arrived in. It may be missing when the lookup failed.
type Chat struct {
	IsKnownContact bool
	DisplayName    string
	LastMessage    *LastMessage
}

// LastMessage describes the most recent message in the chat. Messages sent by
// the account owner and by the bot are both FromSelf; FromBot tells them apart.
type LastMessage struct {
	FromSelf         bool
	FromBot          bool
	TimestampSeconds int64
}

// SentAt returns the origin timestamp as a time.Time.
func (m Message) SentAt() time.Time {
	return time.Unix(m.TimestampSeconds, 0)
}

// ChatName returns the chat display name or a placeholder for logging.
func (m Message) ChatName() string {
	if m.Chat == nil || m.Chat.DisplayName == "" {
		return "Unknown"
	}
	return m.Chat.DisplayName
}
