package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TitleMaxRunes is the longest conversation title derived from a first utterance.
const TitleMaxRunes = 50

// Conversation is an owner-scoped, append-only exchange with the assistant.
type Conversation struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Turn is one role-tagged message inside a conversation.
type Turn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Seq            int       `json:"seq"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	ItemIDs        []int64   `json:"item_ids,omitempty"`
	CreatedAt      time.Time `json:"created_at"`

	// Items is filled from the catalog when history is read, never stored.
	Items []Item `json:"items,omitempty"`
}

// DeriveTitle builds a conversation title from the first user utterance.
func DeriveTitle(utterance string) string {
	utterance = strings.TrimSpace(utterance)
	if utf8.RuneCountInString(utterance) <= TitleMaxRunes {
		return utterance
	}
	runes := []rune(utterance)
	return string(runes[:TitleMaxRunes]) + "..."
}
