package domain

import "time"

// HistoryMessage is a single persisted conversation turn.
type HistoryMessage struct {
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ChatMessage returns the prompt form of m.
func (m HistoryMessage) ChatMessage() ChatMessage {
	return ChatMessage{Role: m.Role, Content: m.Content}
}
