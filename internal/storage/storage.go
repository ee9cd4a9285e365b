package storage

import (
	"context"
	"errors"

	"github.com/xaenox/recipebot/internal/models"
)

// ErrNotFound is returned for unknown conversation ids.
var ErrNotFound = errors.New("storage: conversation not found")

// Storage is the durable, append-only conversation log. Ownership is not
// checked here; callers verify it before reading or deleting.
type Storage interface {
	// CreateConversation stores a new conversation together with its first
	// turns in one transaction.
	CreateConversation(ctx context.Context, conv *models.Conversation, turns []*models.Turn) error
	// AppendTurns writes turns atomically after the existing ones, assigning
	// consecutive sequence numbers in slice order.
	AppendTurns(ctx context.Context, conversationID string, turns []*models.Turn) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	// ListTurns returns turns oldest-first.
	ListTurns(ctx context.Context, conversationID string) ([]models.Turn, error)
	ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error)
	// DeleteConversation removes the conversation and all its turns.
	DeleteConversation(ctx context.Context, id string) error
	Close() error

	// Embed ThreadStorage interface
	ThreadStorage
}

// ThreadStorage remembers the active conversation of a chat user.
type ThreadStorage interface {
	GetThread(ctx context.Context, userID int64) (string, error)
	SaveThread(ctx context.Context, userID int64, conversationID string) error
	DeleteThread(ctx context.Context, userID int64) error
}
