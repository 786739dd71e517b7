// Package mode implements the per-user conversation mode machine.
//
// A user is always in exactly one of three modes: choosing, using_bot or
// chatting_admin. Transitions happen only through named triggers; anything
// not on an edge returns ErrInvalidTransition and leaves the record
// untouched. Every applied transition bumps ModeChangeCount and stamps
// LastModeChange strictly after the previous value.
package mode
