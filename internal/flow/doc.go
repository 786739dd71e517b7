// Package flow defines the dialogue flows and the registry that binds step
// names to handlers.
//
// Handlers are pure: they read the event and the current session state and
// return a Result describing what should happen (advance, stay, or
// terminate) along with the replies to send. They never touch storage, so
// they are trivially testable and safe to re-run on a redelivered event.
//
// The registry wires the built-in flows (registration, marketplace,
// community, payment, utility, admin) and exposes the menu metadata the
// dispatcher uses to offer them.
package flow
