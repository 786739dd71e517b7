// ABOUTME: In-memory Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store implementation. It mirrors the SQLite
// store's behavior, including the active-admin-chat uniqueness rule.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]*SessionRecord     // keyed by user ID
	modes      map[string]*ModeRecord        // keyed by user ID
	adminChats map[string]*AdminChat         // keyed by chat ID
	transcript map[string][]*TranscriptEntry // keyed by user ID

	// FailPuts, when set, makes all write operations return the given error.
	// Used by tests to exercise persistence-failure paths.
	FailPuts error
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]*SessionRecord),
		modes:      make(map[string]*ModeRecord),
		adminChats: make(map[string]*AdminChat),
		transcript: make(map[string][]*TranscriptEntry),
	}
}

// GetSession retrieves a session record by user ID.
func (m *MemoryStore) GetSession(ctx context.Context, userID string) (*SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	cp.State = append([]byte(nil), rec.State...)
	return &cp, nil
}

// PutSession stores a session record.
func (m *MemoryStore) PutSession(ctx context.Context, rec *SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailPuts != nil {
		return m.FailPuts
	}
	cp := *rec
	cp.State = append([]byte(nil), rec.State...)
	m.sessions[rec.UserID] = &cp
	return nil
}

// DeleteSession removes a session record.
func (m *MemoryStore) DeleteSession(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailPuts != nil {
		return m.FailPuts
	}
	delete(m.sessions, userID)
	return nil
}

// GetModeRecord retrieves the mode record for a user.
func (m *MemoryStore) GetModeRecord(ctx context.Context, userID string) (*ModeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.modes[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// PutModeRecord stores a mode record.
func (m *MemoryStore) PutModeRecord(ctx context.Context, rec *ModeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailPuts != nil {
		return m.FailPuts
	}
	cp := *rec
	m.modes[rec.UserID] = &cp
	return nil
}

// CreateAdminChat stores a new admin chat, enforcing active exclusivity.
func (m *MemoryStore) CreateAdminChat(ctx context.Context, chat *AdminChat) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailPuts != nil {
		return m.FailPuts
	}
	if chat.IsActive {
		for _, existing := range m.adminChats {
			if existing.UserID == chat.UserID && existing.IsActive {
				return ErrActiveChatExists
			}
		}
	}
	cp := *chat
	m.adminChats[chat.ID] = &cp
	return nil
}

// GetActiveAdminChat returns the active admin chat for a user, if any.
func (m *MemoryStore) GetActiveAdminChat(ctx context.Context, userID string) (*AdminChat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, chat := range m.adminChats {
		if chat.UserID == userID && chat.IsActive {
			cp := *chat
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateAdminChat replaces an existing admin chat row by ID.
func (m *MemoryStore) UpdateAdminChat(ctx context.Context, chat *AdminChat) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailPuts != nil {
		return m.FailPuts
	}
	existing, ok := m.adminChats[chat.ID]
	if !ok {
		return ErrNotFound
	}
	existing.AdminID = chat.AdminID
	existing.LastMessageAt = chat.LastMessageAt
	existing.IsActive = chat.IsActive
	return nil
}

// ListAdminChats returns a user's admin chats, most recent first.
func (m *MemoryStore) ListAdminChats(ctx context.Context, userID string, limit int) ([]*AdminChat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var chats []*AdminChat
	for _, chat := range m.adminChats {
		if chat.UserID == userID {
			cp := *chat
			chats = append(chats, &cp)
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].StartedAt.After(chats[j].StartedAt)
	})
	if limit > 0 && len(chats) > limit {
		chats = chats[:limit]
	}
	return chats, nil
}

// SaveTranscriptEntry appends a transcript entry.
func (m *MemoryStore) SaveTranscriptEntry(ctx context.Context, entry *TranscriptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailPuts != nil {
		return m.FailPuts
	}
	cp := *entry
	m.transcript[entry.UserID] = append(m.transcript[entry.UserID], &cp)
	return nil
}

// ListTranscript returns a user's transcript in chronological order.
func (m *MemoryStore) ListTranscript(ctx context.Context, userID string, limit int) ([]*TranscriptEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.transcript[userID]
	out := make([]*TranscriptEntry, 0, len(entries))
	for _, e := range entries {
		cp := *e
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}
