package playback

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestFramePool_CapDropsWithoutBlocking(t *testing.T) {
	pool := NewFramePool(4, 1000, nil)

	var held []*VideoFrame
	for i := 0; i < 4; i++ {
		if !pool.Reserve() {
			t.Fatalf("Reserve %d failed below the cap", i)
		}
		f, err := pool.NewFrame(64)
		if err != nil {
			t.Fatalf("NewFrame: %v", err)
		}
		held = append(held, f)
	}

	for i := 0; i < 10; i++ {
		if pool.Reserve() {
			t.Fatal("Reserve succeeded above the cap")
		}
	}

	stats := pool.Stats()
	if stats.InFlight != 4 || stats.Dropped != 10 || stats.Delivered != 4 {
		t.Errorf("stats = %+v", stats)
	}

	held[0].Release()
	if !pool.Reserve() {
		t.Error("Reserve failed after a release")
	}
	pool.Unreserve()

	for _, f := range held {
		f.Release()
	}
	if n := pool.InFlight(); n != 0 {
		t.Errorf("InFlight = %d, want 0", n)
	}
}

func TestFramePool_ReusesBuffers(t *testing.T) {
	pool := NewFramePool(2, 0, nil)

	pool.Reserve()
	a, _ := pool.NewFrame(100)
	a.Release()

	pool.Reserve()
	b, _ := pool.NewFrame(80)
	defer b.Release()

	if b.handle != a.handle {
		t.Errorf("handle %d not reused, got %d", a.handle, b.handle)
	}
	if len(b.Data) != 80 {
		t.Errorf("len(Data) = %d, want 80", len(b.Data))
	}
	if got := pool.Stats().Allocated; got != 1 {
		t.Errorf("Allocated = %d, want 1", got)
	}
}

func TestFramePool_Discard(t *testing.T) {
	pool := NewFramePool(1, 0, nil)
	pool.Reserve()
	f, _ := pool.NewFrame(10)
	pool.Discard(f)

	stats := pool.Stats()
	if stats.InFlight != 0 || stats.Delivered != 0 {
		t.Errorf("stats after discard = %+v", stats)
	}
}

func TestFramePool_InvalidSize(t *testing.T) {
	pool := NewFramePool(1, 0, nil)
	pool.Reserve()
	if _, err := pool.NewFrame(0); err == nil {
		t.Error("Expected error for zero size")
	}
	pool.Unreserve()
	if n := pool.InFlight(); n != 0 {
		t.Errorf("InFlight = %d, want 0", n)
	}
}

func TestFramePool_Exhausted(t *testing.T) {
	pool := NewFramePool(1, 0, nil)
	pool.Reserve()
	f, _ := pool.NewFrame(10)
	defer f.Release()

	// Bypass Reserve to reach the arena limit directly.
	if _, _, err := pool.rent(10); !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("Expected ErrPoolExhausted, got %v", err)
	}
}

func TestFramePool_ConcurrentReleaseNeverExceedsCap(t *testing.T) {
	const capacity = 3
	pool := NewFramePool(capacity, 1<<20, nil)
	frames := make(chan *VideoFrame, 64)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for f := range frames {
			if n := pool.InFlight(); n > capacity {
				t.Errorf("InFlight = %d exceeds cap", n)
			}
			f.Release()
		}
	}()

	for i := 0; i < 2000; i++ {
		if !pool.Reserve() {
			continue
		}
		f, err := pool.NewFrame(32)
		if err != nil {
			pool.Unreserve()
			continue
		}
		frames <- f
	}
	close(frames)
	wg.Wait()

	if !pool.WaitIdle(time.Second) {
		t.Errorf("pool not idle: %d in flight", pool.InFlight())
	}
	stats := pool.Stats()
	if stats.Allocated > capacity {
		t.Errorf("Allocated = %d exceeds cap", stats.Allocated)
	}
}
