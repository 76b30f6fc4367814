package playback

import (
	"context"
	"sync"
	"time"
)

// PlaybackClock paces video packets against the wall clock. It keeps an
// anchor time and the deadline of the next frame relative to it.
type PlaybackClock struct {
	mu           sync.Mutex
	anchor       time.Time
	nextDeadline time.Duration

	now func() time.Time
}

// NewPlaybackClock returns a clock anchored at the current time.
func NewPlaybackClock() *PlaybackClock {
	c := &PlaybackClock{now: time.Now}
	c.Reset()
	return c
}

// Reset re-anchors the clock so the next frame is due immediately.
func (c *PlaybackClock) Reset() {
	c.mu.Lock()
	c.anchor = c.now()
	c.nextDeadline = 0
	c.mu.Unlock()
}

// Wait returns how long the caller should sleep before presenting the next
// frame. When playback is more than two intervals late the deadline is
// pulled forward to now instead of bursting to catch up.
func (c *PlaybackClock) Wait(interval time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := c.now().Sub(c.anchor)
	if elapsed < c.nextDeadline {
		return c.nextDeadline - elapsed
	}
	if elapsed-c.nextDeadline > 2*interval {
		c.nextDeadline = elapsed
	}
	return 0
}

// Pace sleeps until the next frame is due. It returns early with the
// context error when ctx is cancelled.
func (c *PlaybackClock) Pace(ctx context.Context, interval time.Duration) error {
	d := c.Wait(interval)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Advance moves the deadline one frame interval forward.
func (c *PlaybackClock) Advance(interval time.Duration) {
	c.mu.Lock()
	c.nextDeadline += interval
	c.mu.Unlock()
}

// Elapsed returns the wall time since the last Reset.
func (c *PlaybackClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Sub(c.anchor)
}

// FrameInterval returns the duration of one frame at fps, using fallback
// when fps is not positive.
func FrameInterval(fps, fallback float64) time.Duration {
	if fps <= 0 || fps > 1000 {
		fps = fallback
	}
	if fps <= 0 {
		fps = 25
	}
	return time.Duration(float64(time.Second) / fps)
}
