// ABOUTME: Store interface and data types for pasarbot persistence
// ABOUTME: Defines SessionRecord, ModeRecord, AdminChat, TranscriptEntry and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrActiveChatExists is returned when trying to create an admin chat for a
// user who already has an active one
var ErrActiveChatExists = errors.New("active admin chat already exists")

// SessionRecord is the persisted form of a user's dialogue session.
// State holds the raw JSON document exactly as written; the session manager
// owns parsing and shape normalization, the store never interprets it.
type SessionRecord struct {
	UserID    string
	State     []byte
	StartedAt time.Time
	UpdatedAt time.Time
}

// Mode constants for ModeRecord.CurrentMode
const (
	ModeChoosing      = "choosing"
	ModeUsingBot      = "using_bot"
	ModeChattingAdmin = "chatting_admin"
)

// ModeRecord tracks which conversation mode a user is in.
// ModeChangeCount is monotonically incremented on every transition so mode
// flapping stays observable.
type ModeRecord struct {
	UserID          string
	CurrentMode     string
	LastModeChange  time.Time
	ModeChangeCount int
}

// AdminChat is one human-operator session with a user. At most one per user
// may have IsActive set at any time; historical rows are kept.
type AdminChat struct {
	ID            string
	UserID        string
	AdminID       string
	StartedAt     time.Time
	LastMessageAt time.Time
	IsActive      bool
}

// Direction constants for transcript entries
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Author kind constants for transcript entries
const (
	AuthorUser     = "user"
	AuthorBot      = "bot"
	AuthorOperator = "operator"
)

// TranscriptEntry is one message in a user's linear conversation history,
// regardless of whether the bot or a human operator produced it.
type TranscriptEntry struct {
	ID        string
	UserID    string
	Author    string // "user", "bot", or "operator:<admin_id>"
	Direction string
	Text      string
	CreatedAt time.Time
}

// Store defines the persistence boundary for sessions, mode records,
// admin chats and the conversation transcript.
type Store interface {
	// Sessions
	GetSession(ctx context.Context, userID string) (*SessionRecord, error)
	PutSession(ctx context.Context, rec *SessionRecord) error
	DeleteSession(ctx context.Context, userID string) error

	// Mode records
	GetModeRecord(ctx context.Context, userID string) (*ModeRecord, error)
	PutModeRecord(ctx context.Context, rec *ModeRecord) error

	// Admin chat sessions
	CreateAdminChat(ctx context.Context, chat *AdminChat) error
	GetActiveAdminChat(ctx context.Context, userID string) (*AdminChat, error)
	UpdateAdminChat(ctx context.Context, chat *AdminChat) error
	ListAdminChats(ctx context.Context, userID string, limit int) ([]*AdminChat, error)

	// Transcript
	SaveTranscriptEntry(ctx context.Context, entry *TranscriptEntry) error
	ListTranscript(ctx context.Context, userID string, limit int) ([]*TranscriptEntry, error)

	// Close releases any resources held by the store
	Close() error
}
