// ABOUTME: Tests for the rate/dedup guard
// ABOUTME: Validates duplicate suppression, flood ceiling, TTL expiry, and user independence

package guard

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAdmit_NewEvent(t *testing.T) {
	g := New(Options{}, nil)
	defer g.Close()

	assert.True(t, g.Admit("user-1", "event-1"))
}

func TestAdmit_DuplicateDropped(t *testing.T) {
	g := New(Options{}, nil)
	defer g.Close()

	assert.True(t, g.Admit("user-1", "event-1"))
	assert.False(t, g.Admit("user-1", "event-1"), "redelivery of the same fingerprint must be dropped")
}

func TestAdmit_DuplicateExpires(t *testing.T) {
	g := New(Options{DedupTTL: 10 * time.Millisecond}, nil)
	defer g.Close()

	assert.True(t, g.Admit("user-1", "event-1"))
	time.Sleep(20 * time.Millisecond)
	assert.True(t, g.Admit("user-1", "event-1"), "fingerprint outside the TTL is a new event")
}

func TestAdmit_FloodCeiling(t *testing.T) {
	g := New(Options{RateWindow: time.Second, RateCeiling: 5}, nil)
	defer g.Close()

	for i := 0; i < 5; i++ {
		assert.True(t, g.Admit("user-1", fmt.Sprintf("event-%d", i)), "event %d within ceiling", i)
	}
	assert.False(t, g.Admit("user-1", "event-flood"), "event beyond the ceiling must be dropped")
}

func TestAdmit_WindowSlides(t *testing.T) {
	g := New(Options{RateWindow: 20 * time.Millisecond, RateCeiling: 2}, nil)
	defer g.Close()

	assert.True(t, g.Admit("user-1", "event-1"))
	assert.True(t, g.Admit("user-1", "event-2"))
	assert.False(t, g.Admit("user-1", "event-3"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, g.Admit("user-1", "event-4"), "window must slide past old events")
}

func TestAdmit_DuplicatesDoNotCountAgainstWindow(t *testing.T) {
	g := New(Options{RateWindow: time.Second, RateCeiling: 3}, nil)
	defer g.Close()

	assert.True(t, g.Admit("user-1", "event-1"))
	// Platform redeliveries of the same event
	assert.False(t, g.Admit("user-1", "event-1"))
	assert.False(t, g.Admit("user-1", "event-1"))

	// The user still has budget for two genuine events
	assert.True(t, g.Admit("user-1", "event-2"))
	assert.True(t, g.Admit("user-1", "event-3"))
}

func TestAdmit_RateRejectedEventIsNotADuplicate(t *testing.T) {
	g := New(Options{RateWindow: 20 * time.Millisecond, RateCeiling: 1}, nil)
	defer g.Close()

	assert.True(t, g.Admit("user-1", "event-a"))
	assert.False(t, g.Admit("user-1", "event-b"), "second event inside the window is over the ceiling")

	// event-b was never admitted, so once the flood subsides its redelivery
	// must go through rather than being held as a duplicate for the dedup TTL.
	time.Sleep(30 * time.Millisecond)
	assert.True(t, g.Admit("user-1", "event-b"), "rate-rejected fingerprint must not be remembered as seen")
}

func TestSweepWindows_DropsIdleUsers(t *testing.T) {
	g := New(Options{RateWindow: 10 * time.Millisecond, RateCeiling: 5}, nil)
	defer g.Close()

	assert.True(t, g.Admit("user-1", "a-1"))
	assert.True(t, g.Admit("user-2", "b-1"))

	g.sweepWindows(time.Now().Add(20 * time.Millisecond))

	g.mu.Lock()
	remaining := len(g.windows)
	g.mu.Unlock()
	assert.Zero(t, remaining, "users with no events inside the window must be swept")
}

func TestCache_Forget(t *testing.T) {
	c := NewCache(time.Minute, 10)
	defer c.Close()

	assert.False(t, c.Seen("key"))
	c.Forget("key")
	assert.False(t, c.Seen("key"), "forgotten key is new again")
	assert.True(t, c.Seen("key"))

	c.Forget("never-seen") // no-op
}

func TestAdmit_UsersIndependent(t *testing.T) {
	g := New(Options{RateWindow: time.Second, RateCeiling: 2}, nil)
	defer g.Close()

	assert.True(t, g.Admit("user-1", "a-1"))
	assert.True(t, g.Admit("user-1", "a-2"))
	assert.False(t, g.Admit("user-1", "a-3"))

	// Another user's budget is untouched by user-1's flood
	assert.True(t, g.Admit("user-2", "b-1"))
	assert.True(t, g.Admit("user-2", "b-2"))
}

func TestAdmit_Concurrent(t *testing.T) {
	g := New(Options{RateWindow: time.Minute, RateCeiling: 10_000}, nil)
	defer g.Close()

	const numGoroutines = 50

	// All goroutines race on the same fingerprint; exactly one may win
	var admitted int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			if g.Admit("user-1", "contested-event") {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted, "exactly one delivery of a duplicated event may be admitted")
}

func TestCache_EvictionAtCapacity(t *testing.T) {
	c := NewCache(time.Minute, 2)
	defer c.Close()

	assert.False(t, c.Seen("first"))
	assert.False(t, c.Seen("second"))
	assert.False(t, c.Seen("third"), "inserting past capacity evicts the oldest")

	assert.False(t, c.Seen("first"), "oldest key should have been evicted")
	assert.True(t, c.Seen("third"))
}

func TestCache_Close(t *testing.T) {
	c := NewCache(time.Minute, 10)
	c.Seen("key")
	c.Close()
	c.Close() // multiple closes must not panic
}
