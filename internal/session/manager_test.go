// ABOUTME: Tests for the session manager
// ABOUTME: Covers shape normalization, mutation merging, clearing, and retry exhaustion

package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasarbot/pasarbot/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	mgr := New(st, nil, RetryPolicy{InitialInterval: time.Millisecond})
	return mgr, st
}

func strPtr(s string) *string { return &s }

func TestLoad_FreshUser(t *testing.T) {
	mgr, _ := newTestManager(t)

	state, err := mgr.Load(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, "user-1", state.UserID)
	assert.Empty(t, state.Flow)
	assert.Empty(t, state.Step)
	assert.NotNil(t, state.Data, "data must never be absent")
	assert.Empty(t, state.Data)
	assert.False(t, state.InFlow())
}

// wrappedMissStore annotates store errors the way a driver layer would,
// so the miss sentinel only matches through the error chain.
type wrappedMissStore struct {
	*store.MemoryStore
}

func (s *wrappedMissStore) GetSession(ctx context.Context, userID string) (*store.SessionRecord, error) {
	rec, err := s.MemoryStore.GetSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return rec, nil
}

func TestLoad_WrappedNotFoundIsFreshSession(t *testing.T) {
	st := &wrappedMissStore{store.NewMemoryStore()}
	mgr := New(st, nil, RetryPolicy{InitialInterval: time.Millisecond})

	state, err := mgr.Load(context.Background(), "user-1")
	require.NoError(t, err, "a wrapped miss is still a miss, not a failure")
	assert.False(t, state.InFlow())
	assert.NotNil(t, state.Data)
}

func TestLoad_CanonicalShape(t *testing.T) {
	mgr, st := newTestManager(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.PutSession(ctx, &store.SessionRecord{
		UserID:    "user-1",
		State:     []byte(`{"flow":"registration","step":"phone","data":{"name":"Ari"}}`),
		StartedAt: now,
		UpdatedAt: now,
	}))

	state, err := mgr.Load(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, "registration", state.Flow)
	assert.Equal(t, "phone", state.Step)
	assert.Equal(t, "Ari", state.Data["name"])
	assert.True(t, state.StartedAt.Equal(now))
}

func TestLoad_LegacyNestedShape(t *testing.T) {
	mgr, st := newTestManager(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, st.PutSession(ctx, &store.SessionRecord{
		UserID:    "user-1",
		State:     []byte(`{"session_data":{"flow":"marketplace","step":"price","data":{"title":"sepeda"}}}`),
		StartedAt: now,
		UpdatedAt: now,
	}))

	state, err := mgr.Load(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, "marketplace", state.Flow, "legacy wrapper must be unwrapped")
	assert.Equal(t, "price", state.Step)
	assert.Equal(t, "sepeda", state.Data["title"])
}

func TestLoad_MissingDataNormalized(t *testing.T) {
	mgr, st := newTestManager(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		state string
	}{
		{"absent", `{"flow":"registration","step":"name"}`},
		{"null", `{"flow":"registration","step":"name","data":null}`},
		{"legacy absent", `{"session_data":{"flow":"registration","step":"name"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now := time.Now().UTC()
			require.NoError(t, st.PutSession(ctx, &store.SessionRecord{
				UserID: "user-1", State: []byte(tc.state), StartedAt: now, UpdatedAt: now,
			}))

			state, err := mgr.Load(ctx, "user-1")
			require.NoError(t, err)
			assert.NotNil(t, state.Data, "data must be normalized to an empty map")
			assert.Equal(t, "registration", state.Flow)
		})
	}
}

func TestLoad_MalformedStateRecovered(t *testing.T) {
	mgr, st := newTestManager(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, st.PutSession(ctx, &store.SessionRecord{
		UserID: "user-1", State: []byte(`{"flow": `), StartedAt: now, UpdatedAt: now,
	}))

	state, err := mgr.Load(ctx, "user-1")
	require.NoError(t, err, "malformed state is recovered, never surfaced")
	assert.Empty(t, state.Flow)
	assert.NotNil(t, state.Data)
}

func TestUpdate_EnterFlowStampsStartedAt(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	before := time.Now().UTC()
	state, err := mgr.Update(ctx, "user-1", Mutation{
		Flow: strPtr("registration"),
		Step: strPtr("name"),
	})
	require.NoError(t, err)

	assert.Equal(t, "registration", state.Flow)
	assert.Equal(t, "name", state.Step)
	assert.False(t, state.StartedAt.Before(before), "entering a flow stamps StartedAt")
}

func TestUpdate_MergesData(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Update(ctx, "user-1", Mutation{
		Flow: strPtr("registration"),
		Step: strPtr("phone"),
		Set:  map[string]string{"name": "Ari"},
	})
	require.NoError(t, err)

	// Second mutation merges, it must not drop earlier fields
	state, err := mgr.Update(ctx, "user-1", Mutation{
		Step: strPtr("location"),
		Set:  map[string]string{"phone": "0812"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Ari", state.Data["name"])
	assert.Equal(t, "0812", state.Data["phone"])
	assert.Equal(t, "registration", state.Flow)
	assert.Equal(t, "location", state.Step)
}

func TestUpdate_PersistsCanonicalFlatShape(t *testing.T) {
	mgr, st := newTestManager(t)
	ctx := context.Background()

	// Seed a legacy-shaped row, then mutate it
	now := time.Now().UTC()
	require.NoError(t, st.PutSession(ctx, &store.SessionRecord{
		UserID:    "user-1",
		State:     []byte(`{"session_data":{"flow":"registration","step":"name","data":{}}}`),
		StartedAt: now,
		UpdatedAt: now,
	}))

	_, err := mgr.Update(ctx, "user-1", Mutation{Step: strPtr("phone"), Set: map[string]string{"name": "Ari"}})
	require.NoError(t, err)

	rec, err := st.GetSession(ctx, "user-1")
	require.NoError(t, err)
	assert.NotContains(t, string(rec.State), "session_data", "writes use the canonical flat shape")
	assert.Contains(t, string(rec.State), `"step":"phone"`)
}

func TestClear(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Update(ctx, "user-1", Mutation{
		Flow: strPtr("registration"),
		Step: strPtr("name"),
		Set:  map[string]string{"name": "Ari"},
	})
	require.NoError(t, err)

	require.NoError(t, mgr.Clear(ctx, "user-1"))

	state, err := mgr.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, state.Flow)
	assert.Empty(t, state.Step)
	assert.Empty(t, state.Data)
}

func TestUpdate_RetryExhaustionSurfaces(t *testing.T) {
	st := store.NewMemoryStore()
	st.FailPuts = errors.New("disk on fire")
	mgr := New(st, nil, RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond})

	_, err := mgr.Update(context.Background(), "user-1", Mutation{Flow: strPtr("registration")})
	require.Error(t, err, "exhausted retries must surface to the caller")
	assert.ErrorContains(t, err, "disk on fire")
}
