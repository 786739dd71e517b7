// ABOUTME: Rate/Dedup Guard: suppresses duplicate deliveries and per-user floods
// ABOUTME: Sits in front of the dispatcher; never inspects or mutates session state

package guard

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultDedupTTL covers the chat platform's at-least-once redelivery window.
	DefaultDedupTTL = 2 * time.Minute
	// DefaultMaxFingerprints bounds the dedup cache size.
	DefaultMaxFingerprints = 100_000

	// DefaultRateWindow and DefaultRateCeiling are tuned well above normal
	// step-by-step interaction cadence so only floods trip the ceiling.
	DefaultRateWindow  = 10 * time.Second
	DefaultRateCeiling = 20
)

// Options configures a Guard. Zero values select the defaults.
type Options struct {
	DedupTTL        time.Duration
	MaxFingerprints int
	RateWindow      time.Duration
	RateCeiling     int
}

// Guard decides, per user, whether an inbound event may reach the dispatcher.
// It drops platform-level delivery duplicates (fingerprint seen within the
// dedup TTL) and floods (too many events inside the sliding rate window).
type Guard struct {
	fingerprints *Cache
	logger       *slog.Logger

	mu      sync.Mutex
	windows map[string][]time.Time // admitted event times per user
	window  time.Duration
	ceiling int
	done    chan struct{}
	closed  bool
}

// New creates a guard with the given options.
func New(opts Options, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DedupTTL == 0 {
		opts.DedupTTL = DefaultDedupTTL
	}
	if opts.MaxFingerprints == 0 {
		opts.MaxFingerprints = DefaultMaxFingerprints
	}
	if opts.RateWindow == 0 {
		opts.RateWindow = DefaultRateWindow
	}
	if opts.RateCeiling == 0 {
		opts.RateCeiling = DefaultRateCeiling
	}

	g := &Guard{
		fingerprints: NewCache(opts.DedupTTL, opts.MaxFingerprints),
		logger:       logger.With("component", "guard"),
		windows:      make(map[string][]time.Time),
		window:       opts.RateWindow,
		ceiling:      opts.RateCeiling,
		done:         make(chan struct{}),
	}
	go g.sweepLoop()
	return g
}

// Admit reports whether the event may proceed to the dispatcher.
// Duplicates are checked before the rate window so platform redeliveries
// never count against the user's event budget.
func (g *Guard) Admit(userID, fingerprint string) bool {
	if g.fingerprints.Seen(fingerprint) {
		g.logger.Debug("duplicate event dropped",
			"user_id", userID,
			"fingerprint", fingerprint)
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	times := g.windows[userID]

	// Slide the window forward
	cutoff := now.Add(-g.window)
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= g.ceiling {
		g.windows[userID] = kept
		// The event was never admitted, so its fingerprint must not stick:
		// a redelivery after the flood subsides is a fresh event, not a
		// duplicate.
		g.fingerprints.Forget(fingerprint)
		g.logger.Warn("event rate ceiling hit, dropping event",
			"user_id", userID,
			"events_in_window", len(kept))
		return false
	}

	g.windows[userID] = append(kept, now)
	return true
}

func (g *Guard) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.sweepWindows(time.Now())
		case <-g.done:
			return
		}
	}
}

// sweepWindows drops per-user entries with no events inside the window, so
// users who went quiet do not pin map entries forever.
func (g *Guard) sweepWindows(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := now.Add(-g.window)
	for userID, times := range g.windows {
		kept := times[:0]
		for _, t := range times {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(g.windows, userID)
			continue
		}
		g.windows[userID] = kept
	}
}

// Close releases the guard's background resources. Safe to call multiple times.
func (g *Guard) Close() {
	g.mu.Lock()
	if !g.closed {
		close(g.done)
		g.closed = true
	}
	g.mu.Unlock()

	g.fingerprints.Close()
}
