// ABOUTME: Admin Takeover Coordinator: starts and stops human-operator sessions
// ABOUTME: Enforces one active operator per user and keeps the mode machine consistent

package takeover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pasarbot/pasarbot/internal/mode"
	"github.com/pasarbot/pasarbot/internal/store"
	"github.com/pasarbot/pasarbot/internal/transcript"
)

// ErrAlreadyActiveElsewhere is returned when another admin already has an
// active chat with the user.
var ErrAlreadyActiveElsewhere = errors.New("user already has an active operator session with another admin")

// ErrNotActive is returned when no active chat matches the given user and admin.
var ErrNotActive = errors.New("no matching active operator session")

// ChatStore defines what the coordinator needs from storage
type ChatStore interface {
	CreateAdminChat(ctx context.Context, chat *store.AdminChat) error
	GetActiveAdminChat(ctx context.Context, userID string) (*store.AdminChat, error)
	UpdateAdminChat(ctx context.Context, chat *store.AdminChat) error
}

// ModeTransitioner drives the per-user mode machine
type ModeTransitioner interface {
	Current(ctx context.Context, userID string) (*store.ModeRecord, error)
	Transition(ctx context.Context, userID string, trigger mode.Trigger) (*store.ModeRecord, error)
}

// Sender delivers a message to the user on the chat platform
type Sender interface {
	Send(ctx context.Context, userID, text string, quickReplies []string) error
}

// Coordinator owns the operator takeover lifecycle. Callers serialize
// operations per user (the dispatch gateway wraps every coordinator call in
// the same per-user lock that guards bot-flow events).
type Coordinator struct {
	chats   ChatStore
	modes   ModeTransitioner
	journal *transcript.Recorder
	sender  Sender
	logger  *slog.Logger
}

// New creates a takeover coordinator.
func New(chats ChatStore, modes ModeTransitioner, journal *transcript.Recorder, sender Sender, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		chats:   chats,
		modes:   modes,
		journal: journal,
		sender:  sender,
		logger:  logger.With("component", "takeover"),
	}
}

// Start opens an operator session for the user. Starting twice with the same
// admin returns the existing session; a different admin gets
// ErrAlreadyActiveElsewhere. The user's in-progress dialogue session is left
// untouched so it can resume after release.
func (c *Coordinator) Start(ctx context.Context, userID, adminID string) (*store.AdminChat, error) {
	existing, err := c.chats.GetActiveAdminChat(ctx, userID)
	if err == nil {
		if existing.AdminID == adminID {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: admin %s holds the session", ErrAlreadyActiveElsewhere, existing.AdminID)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checking active chat for %s: %w", userID, err)
	}

	now := time.Now().UTC()
	chat := &store.AdminChat{
		ID:            uuid.New().String(),
		UserID:        userID,
		AdminID:       adminID,
		StartedAt:     now,
		LastMessageAt: now,
		IsActive:      true,
	}
	if err := c.chats.CreateAdminChat(ctx, chat); err != nil {
		if errors.Is(err, store.ErrActiveChatExists) {
			return nil, ErrAlreadyActiveElsewhere
		}
		return nil, fmt.Errorf("creating admin chat for %s: %w", userID, err)
	}

	if _, err := c.modes.Transition(ctx, userID, mode.TriggerOperatorTakeover); err != nil {
		// A chatting_admin record without an active chat can be left behind
		// by a crash between chat close and mode release. The chat we just
		// created makes the mode consistent again, so that case is fine.
		if !c.alreadyChattingAdmin(ctx, userID, err) {
			return nil, fmt.Errorf("mode transition for takeover of %s: %w", userID, err)
		}
	}

	c.logger.Info("operator takeover started",
		"user_id", userID,
		"admin_id", adminID,
		"chat_id", chat.ID)
	return chat, nil
}

// Stop closes the operator session held by adminID and reactivates the bot.
// Returns ErrNotActive if no active session matches this user and admin.
func (c *Coordinator) Stop(ctx context.Context, userID, adminID string) error {
	chat, err := c.chats.GetActiveAdminChat(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotActive
	}
	if err != nil {
		return fmt.Errorf("checking active chat for %s: %w", userID, err)
	}
	if chat.AdminID != adminID {
		return fmt.Errorf("%w: session is held by admin %s", ErrNotActive, chat.AdminID)
	}

	chat.IsActive = false
	chat.LastMessageAt = time.Now().UTC()
	if err := c.chats.UpdateAdminChat(ctx, chat); err != nil {
		return fmt.Errorf("closing admin chat %s: %w", chat.ID, err)
	}

	if _, err := c.modes.Transition(ctx, userID, mode.TriggerOperatorRelease); err != nil {
		return fmt.Errorf("mode transition for release of %s: %w", userID, err)
	}

	c.logger.Info("operator takeover stopped",
		"user_id", userID,
		"admin_id", adminID,
		"chat_id", chat.ID)
	return nil
}

// IsActive reports whether any operator session is active for the user.
func (c *Coordinator) IsActive(ctx context.Context, userID string) (bool, error) {
	_, err := c.chats.GetActiveAdminChat(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SendAsOperator delivers a message from the operator to the user. The
// message is journaled first, then sent; only the admin holding the active
// session may send, which keeps stale operator consoles from leaking
// messages into the conversation.
func (c *Coordinator) SendAsOperator(ctx context.Context, userID, adminID, text string) error {
	chat, err := c.chats.GetActiveAdminChat(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotActive
	}
	if err != nil {
		return fmt.Errorf("checking active chat for %s: %w", userID, err)
	}
	if chat.AdminID != adminID {
		return fmt.Errorf("%w: session is held by admin %s", ErrNotActive, chat.AdminID)
	}

	// Record first, then act
	c.journal.RecordOperator(userID, adminID, text)

	if err := c.sender.Send(ctx, userID, text, nil); err != nil {
		return fmt.Errorf("delivering operator message to %s: %w", userID, err)
	}

	chat.LastMessageAt = time.Now().UTC()
	if err := c.chats.UpdateAdminChat(ctx, chat); err != nil {
		c.logger.Error("failed to stamp operator activity",
			"error", err,
			"chat_id", chat.ID)
	}
	return nil
}

func (c *Coordinator) alreadyChattingAdmin(ctx context.Context, userID string, cause error) bool {
	if !errors.Is(cause, mode.ErrInvalidTransition) {
		return false
	}
	rec, err := c.modes.Current(ctx, userID)
	return err == nil && rec.CurrentMode == store.ModeChattingAdmin
}
