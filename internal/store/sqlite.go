// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides session/mode/admin-chat/transcript persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			user_id    TEXT PRIMARY KEY,
			state      TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS mode_records (
			user_id           TEXT PRIMARY KEY,
			current_mode      TEXT NOT NULL,
			last_mode_change  DATETIME NOT NULL,
			mode_change_count INTEGER NOT NULL DEFAULT 0,

			CHECK (current_mode IN ('choosing', 'using_bot', 'chatting_admin'))
		);

		CREATE TABLE IF NOT EXISTS admin_chats (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			admin_id        TEXT NOT NULL,
			started_at      DATETIME NOT NULL,
			last_message_at DATETIME NOT NULL,
			is_active       INTEGER NOT NULL DEFAULT 0
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_admin_chats_active
			ON admin_chats(user_id) WHERE is_active = 1;

		CREATE INDEX IF NOT EXISTS idx_admin_chats_user
			ON admin_chats(user_id, started_at);

		CREATE TABLE IF NOT EXISTS transcript (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			author     TEXT NOT NULL,
			direction  TEXT NOT NULL,
			text       TEXT NOT NULL,
			created_at DATETIME NOT NULL,

			CHECK (direction IN ('inbound', 'outbound'))
		);

		CREATE INDEX IF NOT EXISTS idx_transcript_user_created
			ON transcript(user_id, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// GetSession retrieves a session record by user ID.
// Returns ErrNotFound if no record exists.
func (s *SQLiteStore) GetSession(ctx context.Context, userID string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, state, started_at, updated_at FROM sessions WHERE user_id = ?`,
		userID)

	var rec SessionRecord
	var state string
	err := row.Scan(&rec.UserID, &state, &rec.StartedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	rec.State = []byte(state)
	return &rec, nil
}

// PutSession inserts or replaces the session record for a user
func (s *SQLiteStore) PutSession(ctx context.Context, rec *SessionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, state, started_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			state = excluded.state,
			started_at = excluded.started_at,
			updated_at = excluded.updated_at`,
		rec.UserID, string(rec.State), rec.StartedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}
	return nil
}

// DeleteSession removes a session record. Deleting a missing record is not an error.
func (s *SQLiteStore) DeleteSession(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// GetModeRecord retrieves the mode record for a user.
// Returns ErrNotFound if the user has no record yet.
func (s *SQLiteStore) GetModeRecord(ctx context.Context, userID string) (*ModeRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, current_mode, last_mode_change, mode_change_count
		 FROM mode_records WHERE user_id = ?`,
		userID)

	var rec ModeRecord
	err := row.Scan(&rec.UserID, &rec.CurrentMode, &rec.LastModeChange, &rec.ModeChangeCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning mode record: %w", err)
	}
	return &rec, nil
}

// PutModeRecord inserts or replaces the mode record for a user
func (s *SQLiteStore) PutModeRecord(ctx context.Context, rec *ModeRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mode_records (user_id, current_mode, last_mode_change, mode_change_count)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			current_mode = excluded.current_mode,
			last_mode_change = excluded.last_mode_change,
			mode_change_count = excluded.mode_change_count`,
		rec.UserID, rec.CurrentMode, rec.LastModeChange, rec.ModeChangeCount)
	if err != nil {
		return fmt.Errorf("upserting mode record: %w", err)
	}
	return nil
}

// CreateAdminChat inserts a new admin chat session.
// Returns ErrActiveChatExists if the chat is active and the user already has
// an active chat (enforced by the partial unique index).
func (s *SQLiteStore) CreateAdminChat(ctx context.Context, chat *AdminChat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admin_chats (id, user_id, admin_id, started_at, last_message_at, is_active)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		chat.ID, chat.UserID, chat.AdminID, chat.StartedAt, chat.LastMessageAt, boolToInt(chat.IsActive))
	if err != nil {
		var serr *sqlite.Error
		if errors.As(err, &serr) && serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return ErrActiveChatExists
		}
		return fmt.Errorf("inserting admin chat: %w", err)
	}
	return nil
}

// GetActiveAdminChat returns the single active admin chat for a user.
// Returns ErrNotFound if none is active.
func (s *SQLiteStore) GetActiveAdminChat(ctx context.Context, userID string) (*AdminChat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, admin_id, started_at, last_message_at, is_active
		 FROM admin_chats WHERE user_id = ? AND is_active = 1`,
		userID)

	chat, err := scanAdminChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning admin chat: %w", err)
	}
	return chat, nil
}

// UpdateAdminChat updates an existing admin chat row by ID.
// Returns ErrNotFound if the row does not exist.
func (s *SQLiteStore) UpdateAdminChat(ctx context.Context, chat *AdminChat) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE admin_chats
		 SET admin_id = ?, last_message_at = ?, is_active = ?
		 WHERE id = ?`,
		chat.AdminID, chat.LastMessageAt, boolToInt(chat.IsActive), chat.ID)
	if err != nil {
		return fmt.Errorf("updating admin chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAdminChats returns a user's admin chats, most recent first
func (s *SQLiteStore) ListAdminChats(ctx context.Context, userID string, limit int) ([]*AdminChat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, admin_id, started_at, last_message_at, is_active
		 FROM admin_chats WHERE user_id = ?
		 ORDER BY started_at DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying admin chats: %w", err)
	}
	defer rows.Close()

	var chats []*AdminChat
	for rows.Next() {
		chat, err := scanAdminChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning admin chat: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// SaveTranscriptEntry appends one entry to the conversation transcript
func (s *SQLiteStore) SaveTranscriptEntry(ctx context.Context, entry *TranscriptEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcript (id, user_id, author, direction, text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Author, entry.Direction, entry.Text, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting transcript entry: %w", err)
	}
	return nil
}

// ListTranscript returns a user's transcript in chronological order
func (s *SQLiteStore) ListTranscript(ctx context.Context, userID string, limit int) ([]*TranscriptEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, author, direction, text, created_at
		 FROM transcript WHERE user_id = ?
		 ORDER BY created_at ASC, id ASC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying transcript: %w", err)
	}
	defer rows.Close()

	var entries []*TranscriptEntry
	for rows.Next() {
		var e TranscriptEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Author, &e.Direction, &e.Text, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transcript entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan helpers
type scanner interface {
	Scan(dest ...any) error
}

func scanAdminChat(row scanner) (*AdminChat, error) {
	var chat AdminChat
	var active int
	err := row.Scan(&chat.ID, &chat.UserID, &chat.AdminID, &chat.StartedAt, &chat.LastMessageAt, &active)
	if err != nil {
		return nil, err
	}
	chat.IsActive = active != 0
	return &chat, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
