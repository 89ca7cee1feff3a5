package models

import (
	"time"

	"gorm.io/gorm"
)

// ChatHistory is one persisted row of the message log.
// The embedded gorm.Model ID is the append sequence: history is replayed in ID order.
type ChatHistory struct {
	gorm.Model

	// SenderID is the account ID of the authenticated sender.
	SenderID string `gorm:"type:text;not null;index"`
	// Sender is the display name the sender had joined with.
	Sender string `gorm:"type:text;not null"`
	// Text is the sanitized plain-text body.
	Text string `gorm:"type:text;not null"`
}

// ToMessage converts a stored row into its wire form.
func (h ChatHistory) ToMessage() ChatMessage {
	return ChatMessage{
		ID:        h.ID,
		SenderID:  h.SenderID,
		Sender:    h.Sender,
		Text:      h.Text,
		Timestamp: h.CreatedAt,
	}
}

// HistoryFromMessage builds the row for a message about to be appended.
// CreatedAt carries the server-assigned timestamp.
func HistoryFromMessage(msg ChatMessage) ChatHistory {
	return ChatHistory{
		Model:    gorm.Model{CreatedAt: msg.Timestamp},
		SenderID: msg.SenderID,
		Sender:   msg.Sender,
		Text:     msg.Text,
	}
}

// HistoryScope narrows a message log query. The zero value selects the full log.
type HistoryScope struct {
	// SenderID restricts the result to one account.
	SenderID string
	// Limit keeps only the newest Limit messages; the result stays oldest-first.
	Limit int
}

// ChatMessage is the wire form of a chat message.
type ChatMessage struct {
	ID        uint      `json:"id"`
	SenderID  string    `json:"senderId"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
