// Package conversation owns conversation lifecycle: creation, ordered turn
// persistence, ownership checks and history replay.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/recipebot/internal/catalog"
	"github.com/xaenox/recipebot/internal/metrics"
	"github.com/xaenox/recipebot/internal/models"
	"github.com/xaenox/recipebot/internal/storage"
	"go.uber.org/zap"
)

var (
	// ErrNotAccessible is what callers outside this package should match on:
	// unknown ids and foreign conversations look the same from outside.
	ErrNotAccessible = errors.New("conversation not accessible")
	ErrNotFound      = fmt.Errorf("%w: not found", ErrNotAccessible)
	ErrForbidden     = fmt.Errorf("%w: owned by another user", ErrNotAccessible)
)

// Exchange is one completed user/assistant turn pair.
type Exchange struct {
	// ConversationID is empty for the first turn of a new conversation.
	ConversationID    string
	OwnerID           string
	UserUtterance     string
	AssistantResponse string
	ItemIDs           []int64
}

type Manager struct {
	store   storage.Storage
	catalog catalog.Reader
	locks   *KeyedMutex
	now     func() time.Time
	logger  *zap.Logger
}

func NewManager(store storage.Storage, reader catalog.Reader, logger *zap.Logger) *Manager {
	return &Manager{
		store:   store,
		catalog: reader,
		locks:   NewKeyedMutex(),
		now:     time.Now,
		logger:  logger.Named("conversation"),
	}
}

// ContinueOrStart persists the user turn followed by the assistant turn and
// returns the conversation id, creating the conversation when none is given.
// Both turns are written in one transaction.
func (m *Manager) ContinueOrStart(ctx context.Context, ex Exchange) (string, error) {
	now := m.now()
	itemIDs := append([]int64{}, ex.ItemIDs...)
	turns := []*models.Turn{
		{ID: uuid.New().String(), Role: models.RoleUser, Content: ex.UserUtterance, CreatedAt: now},
		{ID: uuid.New().String(), Role: models.RoleAssistant, Content: ex.AssistantResponse, ItemIDs: itemIDs, CreatedAt: now},
	}

	if ex.ConversationID == "" {
		conv := &models.Conversation{
			ID:        uuid.New().String(),
			OwnerID:   ex.OwnerID,
			Title:     models.DeriveTitle(ex.UserUtterance),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := m.store.CreateConversation(ctx, conv, turns); err != nil {
			metrics.StorageErrors.WithLabelValues("create").Inc()
			return "", fmt.Errorf("create conversation: %w", err)
		}
		m.logger.Debug("Started conversation",
			zap.String("conversation_id", conv.ID),
			zap.String("owner_id", ex.OwnerID))
		return conv.ID, nil
	}

	unlock := m.locks.Lock(ex.ConversationID)
	defer unlock()

	if _, err := m.authorize(ctx, ex.ConversationID, ex.OwnerID); err != nil {
		return "", err
	}

	if err := m.store.AppendTurns(ctx, ex.ConversationID, turns); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrNotFound
		}
		metrics.StorageErrors.WithLabelValues("append").Inc()
		return "", fmt.Errorf("append turns: %w", err)
	}
	return ex.ConversationID, nil
}

// Authorize checks that the conversation exists and belongs to ownerID.
func (m *Manager) Authorize(ctx context.Context, conversationID, ownerID string) error {
	_, err := m.authorize(ctx, conversationID, ownerID)
	return err
}

func (m *Manager) authorize(ctx context.Context, conversationID, ownerID string) (*models.Conversation, error) {
	conv, err := m.store.GetConversation(ctx, conversationID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.StorageErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv.OwnerID != ownerID {
		m.logger.Warn("Rejected access to foreign conversation",
			zap.String("conversation_id", conversationID),
			zap.String("owner_id", ownerID))
		return nil, ErrForbidden
	}
	return conv, nil
}

// GetHistory returns the turns oldest-first with referenced recipes resolved
// from the catalog as it is now.
func (m *Manager) GetHistory(ctx context.Context, conversationID, ownerID string) ([]models.Turn, error) {
	turns, err := m.turns(ctx, conversationID, ownerID)
	if err != nil {
		return nil, err
	}

	for i := range turns {
		if turns[i].Role != models.RoleAssistant || len(turns[i].ItemIDs) == 0 {
			continue
		}
		items, err := m.catalog.GetByIDs(ctx, turns[i].ItemIDs)
		if err != nil {
			return nil, fmt.Errorf("resolve referenced recipes: %w", err)
		}
		turns[i].Items = items
	}
	return turns, nil
}

// Recent returns at most n of the latest turns, oldest-first, without
// resolving recipes. n <= 0 returns none but still checks ownership.
func (m *Manager) Recent(ctx context.Context, conversationID, ownerID string, n int) ([]models.Turn, error) {
	turns, err := m.turns(ctx, conversationID, ownerID)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns, nil
}

func (m *Manager) turns(ctx context.Context, conversationID, ownerID string) ([]models.Turn, error) {
	if _, err := m.authorize(ctx, conversationID, ownerID); err != nil {
		return nil, err
	}
	turns, err := m.store.ListTurns(ctx, conversationID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.StorageErrors.WithLabelValues("list_turns").Inc()
		return nil, fmt.Errorf("list turns: %w", err)
	}
	return turns, nil
}

func (m *Manager) ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	convs, err := m.store.ListConversations(ctx, ownerID)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("list_conversations").Inc()
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// DeleteConversation removes a conversation and all of its turns after
// verifying ownership.
func (m *Manager) DeleteConversation(ctx context.Context, conversationID, ownerID string) error {
	unlock := m.locks.Lock(conversationID)
	defer unlock()

	if _, err := m.authorize(ctx, conversationID, ownerID); err != nil {
		return err
	}
	if err := m.store.DeleteConversation(ctx, conversationID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		metrics.StorageErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("delete conversation: %w", err)
	}
	m.logger.Info("Deleted conversation",
		zap.String("conversation_id", conversationID),
		zap.String("owner_id", ownerID))
	return nil
}
