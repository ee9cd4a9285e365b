package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/recipebot/internal/models"
	"go.uber.org/zap"
)

func newConversation(owner string, at time.Time) *models.Conversation {
	return &models.Conversation{
		ID:        uuid.New().String(),
		OwnerID:   owner,
		Title:     "pasta ideas",
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func newTurn(role models.Role, content string, at time.Time, itemIDs ...int64) *models.Turn {
	return &models.Turn{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		ItemIDs:   itemIDs,
		CreatedAt: at,
	}
}

// runStorageContract exercises behaviour every backend must share.
func runStorageContract(t *testing.T, newStore func(t *testing.T) Storage) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("create with turns and list in order", func(t *testing.T) {
		s := newStore(t)
		conv := newConversation("alice", base)
		user := newTurn(models.RoleUser, "pasta?", base)
		assistant := newTurn(models.RoleAssistant, "Try carbonara.", base.Add(time.Second), 7, 3)

		require.NoError(t, s.CreateConversation(ctx, conv, []*models.Turn{user, assistant}))
		assert.Equal(t, 1, user.Seq)
		assert.Equal(t, 2, assistant.Seq)

		got, err := s.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.OwnerID)
		assert.Equal(t, "pasta ideas", got.Title)

		turns, err := s.ListTurns(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, turns, 2)
		assert.Equal(t, models.RoleUser, turns[0].Role)
		assert.Equal(t, "pasta?", turns[0].Content)
		assert.Empty(t, turns[0].ItemIDs)
		assert.Equal(t, models.RoleAssistant, turns[1].Role)
		assert.Equal(t, []int64{7, 3}, turns[1].ItemIDs)
		assert.Equal(t, conv.ID, turns[1].ConversationID)
	})

	t.Run("append continues sequence", func(t *testing.T) {
		s := newStore(t)
		conv := newConversation("alice", base)
		require.NoError(t, s.CreateConversation(ctx, conv, []*models.Turn{
			newTurn(models.RoleUser, "one", base),
			newTurn(models.RoleAssistant, "two", base),
		}))

		later := base.Add(time.Minute)
		require.NoError(t, s.AppendTurns(ctx, conv.ID, []*models.Turn{
			newTurn(models.RoleUser, "three", later),
			newTurn(models.RoleAssistant, "four", later),
		}))

		turns, err := s.ListTurns(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, turns, 4)
		for i, turn := range turns {
			assert.Equal(t, i+1, turn.Seq)
		}
		assert.Equal(t, "four", turns[3].Content)

		got, err := s.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.True(t, got.UpdatedAt.Equal(later), "updated_at = %v, want %v", got.UpdatedAt, later)
	})

	t.Run("unknown conversation", func(t *testing.T) {
		s := newStore(t)
		missing := uuid.New().String()

		_, err := s.GetConversation(ctx, missing)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.ListTurns(ctx, missing)
		assert.ErrorIs(t, err, ErrNotFound)
		err = s.AppendTurns(ctx, missing, []*models.Turn{newTurn(models.RoleUser, "x", base)})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteConversation(ctx, missing), ErrNotFound)
	})

	t.Run("delete cascades", func(t *testing.T) {
		s := newStore(t)
		conv := newConversation("alice", base)
		require.NoError(t, s.CreateConversation(ctx, conv, []*models.Turn{
			newTurn(models.RoleUser, "one", base),
		}))
		require.NoError(t, s.SaveThread(ctx, 42, conv.ID))

		require.NoError(t, s.DeleteConversation(ctx, conv.ID))

		_, err := s.GetConversation(ctx, conv.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.ListTurns(ctx, conv.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		thread, err := s.GetThread(ctx, 42)
		require.NoError(t, err)
		assert.Empty(t, thread)
	})

	t.Run("list conversations by owner newest first", func(t *testing.T) {
		s := newStore(t)
		older := newConversation("alice", base)
		newer := newConversation("alice", base.Add(time.Hour))
		other := newConversation("bob", base)
		for _, c := range []*models.Conversation{older, newer, other} {
			require.NoError(t, s.CreateConversation(ctx, c, nil))
		}

		convs, err := s.ListConversations(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, convs, 2)
		assert.Equal(t, newer.ID, convs[0].ID)
		assert.Equal(t, older.ID, convs[1].ID)

		none, err := s.ListConversations(ctx, "carol")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("threads", func(t *testing.T) {
		s := newStore(t)
		first := newConversation("tg:1", base)
		second := newConversation("tg:1", base)
		require.NoError(t, s.CreateConversation(ctx, first, nil))
		require.NoError(t, s.CreateConversation(ctx, second, nil))

		got, err := s.GetThread(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, got)

		require.NoError(t, s.SaveThread(ctx, 1, first.ID))
		require.NoError(t, s.SaveThread(ctx, 1, second.ID))
		got, err = s.GetThread(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, second.ID, got)

		require.NoError(t, s.DeleteThread(ctx, 1))
		got, err = s.GetThread(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("concurrent appends keep pairs contiguous", func(t *testing.T) {
		s := newStore(t)
		conv := newConversation("alice", base)
		require.NoError(t, s.CreateConversation(ctx, conv, nil))

		const writers = 8
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.AppendTurns(ctx, conv.ID, []*models.Turn{
					newTurn(models.RoleUser, fmt.Sprintf("q%d", i), base),
					newTurn(models.RoleAssistant, fmt.Sprintf("a%d", i), base),
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		turns, err := s.ListTurns(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, turns, 2*writers)
		for i := 0; i < len(turns); i += 2 {
			assert.Equal(t, models.RoleUser, turns[i].Role)
			assert.Equal(t, models.RoleAssistant, turns[i+1].Role)
			assert.Equal(t, "a"+turns[i].Content[1:], turns[i+1].Content)
		}
	})
}

func TestMemoryStorage(t *testing.T) {
	runStorageContract(t, func(t *testing.T) Storage {
		return NewMemoryStorage()
	})
}

func TestSQLiteStorage(t *testing.T) {
	runStorageContract(t, func(t *testing.T) Storage {
		s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "recipebot.db"), zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	conv := newConversation("alice", time.Now())
	assistant := newTurn(models.RoleAssistant, "hi", time.Now(), 1, 2)
	require.NoError(t, s.CreateConversation(ctx, conv, []*models.Turn{assistant}))

	assistant.ItemIDs[0] = 99
	turns, err := s.ListTurns(ctx, conv.ID)
	require.NoError(t, err)
	turns[0].ItemIDs[1] = 77

	again, err := s.ListTurns(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, again[0].ItemIDs)
}
