package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/xaenox/recipebot/internal/models"
	"github.com/xaenox/recipebot/pkg/config"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(cfg config.DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger.Named("postgres")}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

// DB exposes the connection pool so the catalog reader can share it.
func (s *PostgresStorage) DB() *sql.DB {
	return s.db
}

func (s *PostgresStorage) initializeSchema() error {
	// Read migrations file
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	// Execute migrations
	if _, err = s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) CreateConversation(ctx context.Context, conv *models.Conversation, turns []*models.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, owner_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		conv.ID, conv.OwnerID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating conversation: %w", err)
	}

	if err := s.insertTurns(ctx, tx, conv.ID, 0, turns); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PostgresStorage) AppendTurns(ctx context.Context, conversationID string, turns []*models.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	// Row lock serializes concurrent appends to the same conversation.
	var id string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, conversationID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("error locking conversation: %w", err)
	}

	var lastSeq int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM turns WHERE conversation_id = $1`, conversationID).Scan(&lastSeq)
	if err != nil {
		return fmt.Errorf("error reading last turn: %w", err)
	}

	if err := s.insertTurns(ctx, tx, conversationID, lastSeq, turns); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PostgresStorage) insertTurns(ctx context.Context, tx *sql.Tx, conversationID string, lastSeq int, turns []*models.Turn) error {
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
		_, err := tx.ExecContext(ctx, `
			INSERT INTO turns (id, conversation_id, seq, role, content, item_ids, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			t.ID, conversationID, t.Seq, string(t.Role), t.Content, pq.Array(itemIDs), t.CreatedAt)
		if err != nil {
			return fmt.Errorf("error inserting turn: %w", err)
		}
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = $1 WHERE id = $2`,
		turns[len(turns)-1].CreatedAt, conversationID)
	if err != nil {
		return fmt.Errorf("error touching conversation: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM conversations
		WHERE id = $1`, id).Scan(&conv.ID, &conv.OwnerID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		// Malformed ids are rejected by the uuid column type.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "22P02" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error querying conversation: %w", err)
	}
	return conv, nil
}

func (s *PostgresStorage) ListTurns(ctx context.Context, conversationID string) ([]models.Turn, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, seq, role, content, item_ids, created_at
		FROM turns
		WHERE conversation_id = $1
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
			itemIDs pq.Int64Array
		)
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Seq, &role, &t.Content, &itemIDs, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning turn: %w", err)
		}
		t.Role = models.Role(role)
		if len(itemIDs) > 0 {
			t.ItemIDs = []int64(itemIDs)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}
	return turns, nil
}

func (s *PostgresStorage) ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM conversations
		WHERE owner_id = $1
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

func (s *PostgresStorage) DeleteConversation(ctx context.Context, id string) error {
	if _, err := s.GetConversation(ctx, id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE conversation_id = $1`, id); err != nil {
		return fmt.Errorf("error deleting turns: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_threads WHERE conversation_id = $1`, id); err != nil {
		return fmt.Errorf("error deleting chat threads: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
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

func (s *PostgresStorage) GetThread(ctx context.Context, userID int64) (string, error) {
	var conversationID string
	err := s.db.QueryRowContext(ctx, `
		UPDATE chat_threads SET last_used_at = $1
		WHERE user_id = $2
		RETURNING conversation_id`, time.Now(), userID).Scan(&conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("error querying chat thread: %w", err)
	}
	return conversationID, nil
}

func (s *PostgresStorage) SaveThread(ctx context.Context, userID int64, conversationID string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_threads (user_id, conversation_id, created_at, last_used_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET conversation_id = EXCLUDED.conversation_id, created_at = EXCLUDED.created_at, last_used_at = EXCLUDED.last_used_at`,
		userID, conversationID, now)
	if err != nil {
		return fmt.Errorf("error saving chat thread: %w", err)
	}
	return nil
}

func (s *PostgresStorage) DeleteThread(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_threads WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("error deleting chat thread: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
