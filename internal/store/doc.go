// Package store provides the persistence boundary for pasarbot.
//
// Three logical tables back the conversation core:
//
//   - sessions: one row per user holding the raw JSON dialogue state.
//     The store never parses the state document; shape normalization
//     (including the legacy nested wrapper) lives in the session package.
//   - mode_records: one row per user tracking the conversation mode,
//     the time of the last transition, and a transition counter.
//   - admin_chats: one row per operator takeover. A partial unique index
//     guarantees at most one active chat per user while keeping the full
//     takeover history queryable.
//
// A transcript table records every message that crossed the conversation,
// whether the bot or a human operator produced it.
//
// Two implementations exist: SQLiteStore (modernc.org/sqlite, WAL mode,
// schema auto-created) for production, and MemoryStore for tests.
package store
