// ABOUTME: Transcript recorder: journals every message crossing the conversation
// ABOUTME: Bot replies, operator messages and user input all land in one linear history

package transcript

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pasarbot/pasarbot/internal/store"
)

// TranscriptStore defines what the recorder needs from storage
type TranscriptStore interface {
	SaveTranscriptEntry(ctx context.Context, entry *store.TranscriptEntry) error
	ListTranscript(ctx context.Context, userID string, limit int) ([]*store.TranscriptEntry, error)
}

// Recorder journals conversation messages. Writes are best-effort: a failed
// journal write is logged but never blocks or fails message delivery, and it
// uses a detached timeout context so persistence survives request
// cancellation.
type Recorder struct {
	store  TranscriptStore
	logger *slog.Logger
}

// New creates a transcript recorder.
func New(st TranscriptStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:  st,
		logger: logger.With("component", "transcript"),
	}
}

// RecordInbound journals a message the user sent.
func (r *Recorder) RecordInbound(userID, text string) {
	r.save(&store.TranscriptEntry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Author:    store.AuthorUser,
		Direction: store.DirectionInbound,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	})
}

// RecordBot journals a reply the bot produced.
func (r *Recorder) RecordBot(userID, text string) {
	r.save(&store.TranscriptEntry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Author:    store.AuthorBot,
		Direction: store.DirectionOutbound,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	})
}

// RecordOperator journals a message a human operator sent to the user.
func (r *Recorder) RecordOperator(userID, adminID, text string) {
	r.save(&store.TranscriptEntry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Author:    store.AuthorOperator + ":" + adminID,
		Direction: store.DirectionOutbound,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	})
}

// History returns the user's transcript in chronological order.
func (r *Recorder) History(ctx context.Context, userID string, limit int) ([]*store.TranscriptEntry, error) {
	return r.store.ListTranscript(ctx, userID, limit)
}

// save writes an entry with a separate timeout context so journaling
// continues even if the triggering request was cancelled.
func (r *Recorder) save(entry *store.TranscriptEntry) {
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.store.SaveTranscriptEntry(saveCtx, entry); err != nil {
		r.logger.Error("failed to journal message",
			"error", err,
			"user_id", entry.UserID,
			"author", entry.Author)
	}
}
