package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xaenox/recipebot/internal/models"
)

type MemoryStorage struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	turns         map[string][]models.Turn
	threads       map[int64]threadInfo
}

type threadInfo struct {
	ConversationID string
	CreatedAt      time.Time
	LastUsedAt     time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		conversations: make(map[string]*models.Conversation),
		turns:         make(map[string][]models.Turn),
		threads:       make(map[int64]threadInfo),
	}
}

func (s *MemoryStorage) CreateConversation(ctx context.Context, conv *models.Conversation, turns []*models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *conv
	s.conversations[conv.ID] = &stored
	s.turns[conv.ID] = nil
	s.appendLocked(conv.ID, turns)
	return nil
}

func (s *MemoryStorage) AppendTurns(ctx context.Context, conversationID string, turns []*models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[conversationID]; !exists {
		return ErrNotFound
	}
	s.appendLocked(conversationID, turns)
	return nil
}

func (s *MemoryStorage) appendLocked(conversationID string, turns []*models.Turn) {
	existing := s.turns[conversationID]
	for _, t := range turns {
		t.ConversationID = conversationID
		t.Seq = len(existing) + 1
		stored := *t
		stored.ItemIDs = append([]int64(nil), t.ItemIDs...)
		stored.Items = nil
		existing = append(existing, stored)
	}
	s.turns[conversationID] = existing

	if len(turns) > 0 {
		conv := s.conversations[conversationID]
		conv.UpdatedAt = turns[len(turns)-1].CreatedAt
	}
}

func (s *MemoryStorage) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[id]
	if !exists {
		return nil, ErrNotFound
	}
	out := *conv
	return &out, nil
}

func (s *MemoryStorage) ListTurns(ctx context.Context, conversationID string) ([]models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.conversations[conversationID]; !exists {
		return nil, ErrNotFound
	}
	stored := s.turns[conversationID]
	out := make([]models.Turn, len(stored))
	for i, t := range stored {
		out[i] = t
		out[i].ItemIDs = append([]int64(nil), t.ItemIDs...)
	}
	return out, nil
}

func (s *MemoryStorage) ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.OwnerID == ownerID {
			out = append(out, *conv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStorage) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[id]; !exists {
		return ErrNotFound
	}
	delete(s.conversations, id)
	delete(s.turns, id)
	for userID, thread := range s.threads {
		if thread.ConversationID == id {
			delete(s.threads, userID)
		}
	}
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

func (s *MemoryStorage) GetThread(ctx context.Context, userID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if thread, exists := s.threads[userID]; exists {
		thread.LastUsedAt = time.Now()
		s.threads[userID] = thread
		return thread.ConversationID, nil
	}
	return "", nil
}

func (s *MemoryStorage) SaveThread(ctx context.Context, userID int64, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads[userID] = threadInfo{
		ConversationID: conversationID,
		CreatedAt:      time.Now(),
		LastUsedAt:     time.Now(),
	}
	return nil
}

func (s *MemoryStorage) DeleteThread(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.threads, userID)
	return nil
}
