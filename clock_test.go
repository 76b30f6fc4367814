package playback

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time      { return c.t }
func (c *fakeClock) add(d time.Duration) { c.t = c.t.Add(d) }

func newTestClock() (*PlaybackClock, *fakeClock) {
	fc := &fakeClock{t: time.Unix(1000, 0)}
	c := &PlaybackClock{now: fc.now}
	c.Reset()
	return c, fc
}

func TestPlaybackClock_Wait(t *testing.T) {
	const interval = 100 * time.Millisecond
	c, fc := newTestClock()

	if d := c.Wait(interval); d != 0 {
		t.Fatalf("first frame wait = %v, want 0", d)
	}
	c.Advance(interval)

	fc.add(30 * time.Millisecond)
	if d := c.Wait(interval); d != 70*time.Millisecond {
		t.Errorf("ahead of schedule wait = %v, want 70ms", d)
	}

	fc.add(70 * time.Millisecond)
	if d := c.Wait(interval); d != 0 {
		t.Errorf("on time wait = %v, want 0", d)
	}
}

func TestPlaybackClock_ResetsWhenFarBehind(t *testing.T) {
	const interval = 100 * time.Millisecond
	c, fc := newTestClock()

	c.Advance(interval) // deadline 100ms
	fc.add(350 * time.Millisecond)

	// 250ms late > 2 intervals: deadline pulled to now.
	if d := c.Wait(interval); d != 0 {
		t.Fatalf("late wait = %v, want 0", d)
	}
	c.Advance(interval)
	if d := c.Wait(interval); d != interval {
		t.Errorf("after catch-up reset wait = %v, want %v", d, interval)
	}
}

func TestPlaybackClock_SlightlyBehindKeepsDeadline(t *testing.T) {
	const interval = 100 * time.Millisecond
	c, fc := newTestClock()

	c.Advance(interval)
	fc.add(250 * time.Millisecond) // 150ms late, within two intervals

	if d := c.Wait(interval); d != 0 {
		t.Fatalf("wait = %v, want 0", d)
	}
	c.Advance(interval) // deadline 200ms, elapsed 250ms
	if d := c.Wait(interval); d != 0 {
		t.Errorf("expected to stay behind schedule, wait = %v", d)
	}
}

func TestPlaybackClock_PaceCancelled(t *testing.T) {
	c := NewPlaybackClock()
	c.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Pace(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Pace = %v, want context.Canceled", err)
	}
}

func TestFrameInterval(t *testing.T) {
	tests := []struct {
		name     string
		fps      float64
		fallback float64
		want     time.Duration
	}{
		{"25fps", 25, 30, 40 * time.Millisecond},
		{"10fps", 10, 25, 100 * time.Millisecond},
		{"unknown uses fallback", 0, 50, 20 * time.Millisecond},
		{"absurd uses fallback", 90000, 25, 40 * time.Millisecond},
		{"no fallback", 0, 0, 40 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FrameInterval(tt.fps, tt.fallback); got != tt.want {
				t.Errorf("FrameInterval(%v, %v) = %v, want %v", tt.fps, tt.fallback, got, tt.want)
			}
		})
	}
}
