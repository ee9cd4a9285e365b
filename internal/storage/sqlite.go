package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	"github.com/xaenox/recipebot/internal/models"
	"go.uber.org/zap"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteStorage keeps conversations in a local SQLite file for single-node
// deployments.
type SQLiteStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStorage(path string, logger *zap.Logger) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return &SQLiteStorage{db: db, logger: logger.Named("sqlite")}, nil
}

func (s *SQLiteStorage) CreateConversation(ctx context.Context, conv *models.Conversation, turns []*models.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, owner_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.OwnerID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating conversation: %w", err)
	}

	if err := s.insertTurns(ctx, tx, conv.ID, 0, turns); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) AppendTurns(ctx context.Context, conversationID string, turns []*models.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	var lastSeq sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT (SELECT MAX(seq) FROM turns WHERE conversation_id = c.id)
		FROM conversations c
		WHERE c.id = ?`, conversationID).Scan(&lastSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("error reading last turn: %w", err)
	}

	if err := s.insertTurns(ctx, tx, conversationID, int(lastSeq.Int64), turns); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) insertTurns(ctx context.Context, tx *sql.Tx, conversationID string, lastSeq int, turns []*models.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	for i, t := range turns {
		t.ConversationID = conversationID
		t.Seq = lastSeq + i + 1
		itemIDs := t.ItemIDs
		if itemIDs == nil {
			itemIDs = []int64{}
		}
		encoded, err := json.Marshal(itemIDs)
		if err != nil {
			return fmt.Errorf("error encoding item ids: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO turns (id, conversation_id, seq, role, content, item_ids, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.ID, conversationID, t.Seq, string(t.Role), t.Content, string(encoded), t.CreatedAt)
		if err != nil {
			return fmt.Errorf("error inserting turn: %w", err)
		}
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		turns[len(turns)-1].CreatedAt, conversationID)
	if err != nil {
		return fmt.Errorf("error touching conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM conversations
		WHERE id = ?`, id).Scan(&conv.ID, &conv.OwnerID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying conversation: %w", err)
	}
	return conv, nil
}

func (s *SQLiteStorage) ListTurns(ctx context.Context, conversationID string) ([]models.Turn, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, seq, role, content, item_ids, created_at
		FROM turns
		WHERE conversation_id = ?
		ORDER BY seq ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("error querying turns: %w", err)
	}
	defer rows.Close()

	turns := make([]models.Turn, 0)
	for rows.Next() {
		var (
			t       models.Turn
			role    string
			itemIDs string
		)
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Seq, &role, &t.Content, &itemIDs, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning turn: %w", err)
		}
		t.Role = models.Role(role)
		var ids []int64
		if err := json.Unmarshal([]byte(itemIDs), &ids); err != nil {
			return nil, fmt.Errorf("error decoding item ids: %w", err)
		}
		if len(ids) > 0 {
			t.ItemIDs = ids
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}
	return turns, nil
}

func (s *SQLiteStorage) ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM conversations
		WHERE owner_id = ?
		ORDER BY updated_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error querying conversations: %w", err)
	}
	defer rows.Close()

	convs := make([]models.Conversation, 0)
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning conversation: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return convs, nil
}

func (s *SQLiteStorage) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	// Delete turns and threads
	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("error deleting turns: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_threads WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("error deleting chat threads: %w", err)
	}

	// Delete conversation
	result, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error deleting conversation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

func (s *SQLiteStorage) GetThread(ctx context.Context, userID int64) (string, error) {
	var conversationID string
	err := s.db.QueryRowContext(ctx, `
		UPDATE chat_threads SET last_used_at = ?
		WHERE user_id = ?
		RETURNING conversation_id`, time.Now(), userID).Scan(&conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("error querying chat thread: %w", err)
	}
	return conversationID, nil
}

func (s *SQLiteStorage) SaveThread(ctx context.Context, userID int64, conversationID string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_threads (user_id, conversation_id, created_at, last_used_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET conversation_id = excluded.conversation_id, created_at = excluded.created_at, last_used_at = excluded.last_used_at`,
		userID, conversationID, now, now)
	if err != nil {
		return fmt.Errorf("error saving chat thread: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteThread(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_threads WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("error deleting chat thread: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
