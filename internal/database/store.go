package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned by updates that matched no record.
var ErrNotFound = errors.New("record not found")

// MaxRecentTurns caps GetRecentTurns.
const MaxRecentTurns = 100

// Store defines the interface for history store operations.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// EnsureUser inserts the user unless one already exists for its chat ID.
	// created reports whether a new record was written.
	EnsureUser(ctx context.Context, user *User) (created bool, err error)

	// GetUser retrieves a user by chat ID. Returns nil, nil if not found.
	GetUser(ctx context.Context, chatID int64) (*User, error)

	// UpdateUserPhone stores the phone number shared by the user.
	UpdateUserPhone(ctx context.Context, chatID int64, phone string) error

	// SaveTurn inserts a conversation turn.
	SaveTurn(ctx context.Context, turn *Turn) error

	// GetRecentTurns returns at most limit most recent turns of a chat,
	// ordered oldest to newest.
	GetRecentTurns(ctx context.Context, chatID int64, limit int) ([]Turn, error)

	// PruneTurns deletes turns older than before and returns how many were removed.
	PruneTurns(ctx context.Context, before time.Time) (int64, error)

	// SaveFile inserts an uploaded file record.
	SaveFile(ctx context.Context, file *File) error

	// UpdateFileDescription sets the description of a stored file.
	UpdateFileDescription(ctx context.Context, id, description string) error

	// GetFile retrieves a file by ID. Returns nil, nil if not found.
	GetFile(ctx context.Context, id string) (*File, error)

	// RunMaintenance performs backend maintenance such as VACUUM.
	RunMaintenance(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store", "driver", "sqlite"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.logger.Info("Database connection closed successfully.")
	return nil
}

func (s *sqlxStore) EnsureUser(ctx context.Context, user *User) (bool, error) {
	if user == nil {
		return false, fmt.Errorf("cannot save nil user")
	}
	if user.ChatID == 0 {
		return false, fmt.Errorf("user must have a non-zero chat_id")
	}

	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `
        INSERT INTO users (id, chat_id, first_name, username, phone, created_at, updated_at)
        VALUES (:id, :chat_id, :first_name, :username, :phone, :created_at, :updated_at)
        ON CONFLICT(chat_id) DO NOTHING;
    `

	result, err := s.db.NamedExecContext(ctx, query, user)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error ensuring user", "chat_id", user.ChatID, "error", err)
		return false, fmt.Errorf("failed to ensure user for chat %d: %w", user.ChatID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	created := rows == 1
	if created {
		s.logger.InfoContext(ctx, "New user registered", "chat_id", user.ChatID, "user_id", user.ID)
	}
	return created, nil
}

func (s *sqlxStore) GetUser(ctx context.Context, chatID int64) (*User, error) {
	var user User
	query := `SELECT id, chat_id, first_name, username, phone, created_at, updated_at
	          FROM users WHERE chat_id = ?`

	err := s.db.GetContext(ctx, &user, query, chatID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No user found", "chat_id", chatID)
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting user", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to get user for chat %d: %w", chatID, err)
	}
	return &user, nil
}

func (s *sqlxStore) UpdateUserPhone(ctx context.Context, chatID int64, phone string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET phone = ?, updated_at = ? WHERE chat_id = ?`,
		phone, time.Now().UTC(), chatID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating user phone", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to update phone for chat %d: %w", chatID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user for chat %d: %w", chatID, ErrNotFound)
	}
	return nil
}

func (s *sqlxStore) SaveTurn(ctx context.Context, turn *Turn) error {
	if turn == nil {
		return fmt.Errorf("cannot save nil turn")
	}
	if turn.ChatID == 0 {
		return fmt.Errorf("turn must have a non-zero chat_id")
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	query := `
        INSERT INTO turns (id, chat_id, user_message, bot_reply, sentiment_score, sentiment_label, timestamp)
        VALUES (:id, :chat_id, :user_message, :bot_reply, :sentiment_score, :sentiment_label, :timestamp);
    `

	if _, err := s.db.NamedExecContext(ctx, query, turn); err != nil {
		s.logger.ErrorContext(ctx, "Error saving turn", "chat_id", turn.ChatID, "error", err)
		return fmt.Errorf("failed to save turn (chat %d): %w", turn.ChatID, err)
	}

	s.logger.DebugContext(ctx, "Turn saved", "chat_id", turn.ChatID, "turn_id", turn.ID)
	return nil
}

func (s *sqlxStore) GetRecentTurns(ctx context.Context, chatID int64, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > MaxRecentTurns {
		limit = MaxRecentTurns
	}

	var turns []Turn
	query := `
        SELECT id, chat_id, user_message, bot_reply, sentiment_score, sentiment_label, timestamp
        FROM turns
        WHERE chat_id = ?
        ORDER BY timestamp DESC, rowid DESC
        LIMIT ?;
    `

	if err := s.db.SelectContext(ctx, &turns, query, chatID, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error getting recent turns", "chat_id", chatID, "limit", limit, "error", err)
		return nil, fmt.Errorf("failed to get recent turns for chat %d: %w", chatID, err)
	}

	slices.Reverse(turns)
	return turns, nil
}

func (s *sqlxStore) PruneTurns(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE timestamp < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune turns: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func (s *sqlxStore) SaveFile(ctx context.Context, file *File) error {
	if file == nil {
		return fmt.Errorf("cannot save nil file")
	}
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}
	if file.Data == nil {
		file.Data = []byte{}
	}
	file.Size = int64(len(file.Data))

	query := `
        INSERT INTO files (id, chat_id, file_name, mime_type, kind, size, data, description, created_at)
        VALUES (:id, :chat_id, :file_name, :mime_type, :kind, :size, :data, :description, :created_at);
    `

	if _, err := s.db.NamedExecContext(ctx, query, file); err != nil {
		s.logger.ErrorContext(ctx, "Error saving file", "chat_id", file.ChatID, "file_name", file.FileName, "error", err)
		return fmt.Errorf("failed to save file %q: %w", file.FileName, err)
	}
	return nil
}

func (s *sqlxStore) UpdateFileDescription(ctx context.Context, id, description string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE files SET description = ? WHERE id = ?`, description, id)
	if err != nil {
		return fmt.Errorf("failed to update description of file %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("file %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *sqlxStore) GetFile(ctx context.Context, id string) (*File, error) {
	var file File
	query := `SELECT id, chat_id, file_name, mime_type, kind, size, data, description, created_at
	          FROM files WHERE id = ?`

	err := s.db.GetContext(ctx, &file, query, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get file %s: %w", id, err)
	}
	return &file, nil
}

// RunMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		s.logger.WarnContext(ctx, "Failed to set busy timeout", "error", err)
	}

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}
