// Package guard provides event deduplication and per-user rate limiting
// to keep platform redeliveries and floods away from the dispatcher.
package guard
