// ABOUTME: Session Manager: loads, mutates and clears per-user dialogue state
// ABOUTME: Owns shape normalization so data is never absent and legacy wrappers never leak

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pasarbot/pasarbot/internal/store"
)

// State is the canonical in-memory shape of a user's dialogue session.
// Data is never nil: an empty map is the canonical "no data yet" state.
type State struct {
	UserID    string
	Flow      string // "" means no active flow
	Step      string
	Data      map[string]string
	StartedAt time.Time
}

// InFlow reports whether the user has an active dialogue flow.
func (s *State) InFlow() bool {
	return s.Flow != ""
}

// Mutation is a partial update applied to a session. Nil pointer fields are
// left untouched; Set entries are merged into Data field by field.
type Mutation struct {
	Flow *string
	Step *string
	Set  map[string]string
}

// stateDoc is the persisted JSON document. The SessionData wrapper is the
// legacy nested shape still present in old rows; it is unwrapped on read and
// never written.
type stateDoc struct {
	Flow        string            `json:"flow,omitempty"`
	Step        string            `json:"step,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	SessionData *stateDoc         `json:"session_data,omitempty"`
}

// SessionStore defines what the manager needs from storage
type SessionStore interface {
	GetSession(ctx context.Context, userID string) (*store.SessionRecord, error)
	PutSession(ctx context.Context, rec *store.SessionRecord) error
	DeleteSession(ctx context.Context, userID string) error
}

// RetryPolicy bounds the retries applied to store operations.
// Zero values select the defaults.
type RetryPolicy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
}

const (
	defaultMaxAttempts     = 3
	defaultInitialInterval = 100 * time.Millisecond
)

// Manager normalizes, reads and updates per-user dialogue sessions.
// Callers are expected to serialize operations per user; the manager itself
// performs plain read-modify-write against the store.
type Manager struct {
	store  SessionStore
	logger *slog.Logger
	retry  RetryPolicy
}

// New creates a session manager backed by the given store.
func New(st SessionStore, logger *slog.Logger, retry RetryPolicy) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialInterval == 0 {
		retry.InitialInterval = defaultInitialInterval
	}
	return &Manager{
		store:  st,
		logger: logger.With("component", "session"),
		retry:  retry,
	}
}

// Load fetches the user's session, normalizing whatever shape is stored.
// A missing record yields a fresh empty session. A malformed record is
// recovered as a fresh session rather than surfaced as an error: losing a
// corrupt flow position is preferable to wedging the user permanently.
func (m *Manager) Load(ctx context.Context, userID string) (*State, error) {
	var rec *store.SessionRecord
	err := m.withRetry(ctx, func() error {
		var getErr error
		rec, getErr = m.store.GetSession(ctx, userID)
		if errors.Is(getErr, store.ErrNotFound) {
			rec = nil
			return nil
		}
		return getErr
	})
	if err != nil {
		return nil, fmt.Errorf("loading session for %s: %w", userID, err)
	}

	if rec == nil {
		return emptyState(userID), nil
	}
	return m.normalize(userID, rec), nil
}

// Update applies a partial mutation to the user's session and persists it.
// Entering a flow (empty -> non-empty, or switching flows) stamps StartedAt.
func (m *Manager) Update(ctx context.Context, userID string, mut Mutation) (*State, error) {
	state, err := m.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if mut.Flow != nil && *mut.Flow != state.Flow {
		state.Flow = *mut.Flow
		if state.Flow != "" {
			state.StartedAt = time.Now().UTC()
		}
	}
	if mut.Step != nil {
		state.Step = *mut.Step
	}
	for k, v := range mut.Set {
		state.Data[k] = v
	}

	if err := m.persist(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Clear resets the user's session to the initial empty state.
func (m *Manager) Clear(ctx context.Context, userID string) error {
	err := m.withRetry(ctx, func() error {
		return m.store.DeleteSession(ctx, userID)
	})
	if err != nil {
		return fmt.Errorf("clearing session for %s: %w", userID, err)
	}
	m.logger.Debug("session cleared", "user_id", userID)
	return nil
}

// persist writes the canonical flat document for the state.
func (m *Manager) persist(ctx context.Context, state *State) error {
	doc := stateDoc{
		Flow: state.Flow,
		Step: state.Step,
		Data: state.Data,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding session state: %w", err)
	}

	rec := &store.SessionRecord{
		UserID:    state.UserID,
		State:     raw,
		StartedAt: state.StartedAt,
		UpdatedAt: time.Now().UTC(),
	}
	err = m.withRetry(ctx, func() error {
		return m.store.PutSession(ctx, rec)
	})
	if err != nil {
		return fmt.Errorf("persisting session for %s: %w", state.UserID, err)
	}
	return nil
}

// normalize converts whatever document shape is stored into the canonical
// flat State. This is the single seam where the legacy nested wrapper and
// missing data maps are repaired; nothing downstream branches on shape.
func (m *Manager) normalize(userID string, rec *store.SessionRecord) *State {
	var doc stateDoc
	if err := json.Unmarshal(rec.State, &doc); err != nil {
		m.logger.Warn("malformed session state, resetting",
			"user_id", userID,
			"error", err)
		return emptyState(userID)
	}

	// Unwrap the legacy nested shape
	if doc.SessionData != nil {
		doc = *doc.SessionData
	}
	if doc.Data == nil {
		doc.Data = make(map[string]string)
	}

	return &State{
		UserID:    userID,
		Flow:      doc.Flow,
		Step:      doc.Step,
		Data:      doc.Data,
		StartedAt: rec.StartedAt,
	}
}

// withRetry runs op with bounded exponential backoff.
func (m *Manager) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.retry.InitialInterval
	return backoff.Retry(op, backoff.WithMaxRetries(backoff.WithContext(bo, ctx), m.retry.MaxAttempts))
}

func emptyState(userID string) *State {
	return &State{
		UserID: userID,
		Data:   make(map[string]string),
	}
}
