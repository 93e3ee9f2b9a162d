package generator

import (
	"sync"
	"time"
)

// Notifier receives transient notifications.
type Notifier interface {
	Notify(message string, ttl time.Duration)
}

// Toast is a transient notification that clears itself after its TTL.
// Showing a new message supersedes the pending dismissal of the previous one.
type Toast struct {
	mu      sync.Mutex
	message string
	seq     uint64
	timer   *time.Timer
}

// Show displays message and schedules its dismissal. A non-positive ttl keeps
// the message until the next Show or Dismiss.
func (t *Toast) Show(message string, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.seq++
	t.message = message
	if ttl <= 0 {
		return
	}
	seq := t.seq
	t.timer = time.AfterFunc(ttl, func() { t.expire(seq) })
}

// Notify implements Notifier.
func (t *Toast) Notify(message string, ttl time.Duration) {
	t.Show(message, ttl)
}

// Dismiss clears the toast immediately.
func (t *Toast) Dismiss() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.seq++
	t.message = ""
}

// Current returns the visible message, if any.
func (t *Toast) Current() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.message, t.message != ""
}

func (t *Toast) expire(seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// a superseded timer may still fire after Stop lost the race
	if t.seq != seq {
		return
	}
	t.message = ""
	t.timer = nil
}

func (t *Toast) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
