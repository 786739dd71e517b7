// Package session manages per-user dialogue state.
//
// The manager is the only code that interprets the stored JSON document. It
// normalizes every historical shape (the legacy nested wrapper, missing data
// maps, malformed rows) into one canonical State on read and always writes
// the flat canonical form, so the rest of the system never branches on
// storage shape.
package session
