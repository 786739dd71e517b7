// Package dispatch routes every inbound conversation event to the right
// handler and owns the per-user serialization boundary.
//
// # Overview
//
// The Gateway is the single entry point for the system. Platform adapters
// normalize their updates into flow events and call Handle; the operator API
// calls the takeover wrappers. Everything that touches one user's state runs
// under that user's lock, so interleaved processing for a single user is
// impossible by construction.
//
// # Event Pipeline
//
// Handle runs each admitted event through a fixed pipeline:
//
//  1. Guard: drop duplicates and floods before any state is touched
//  2. Lock: acquire the per-user mutex
//  3. Journal: record the inbound message in the transcript
//  4. Session: load and normalize the user's dialogue state
//  5. Mode: resolve choosing / using_bot / chatting_admin
//  6. Dispatch: menu handling or the active flow's step handler
//  7. Reply: journal and deliver outbound messages
//
// # Modes
//
// In choosing mode the user picks between the bot and a human operator. In
// using_bot mode events go to the flow menu or the active step handler. In
// chatting_admin mode events are journaled but never auto-answered; the
// transcript is the operator's queue.
//
// # Takeover
//
// StartTakeover, StopTakeover and SendAsOperator run under the same per-user
// lock as inbound events. A takeover therefore lands either strictly before
// or strictly after any concurrently arriving user event, never in the
// middle of one.
package dispatch
