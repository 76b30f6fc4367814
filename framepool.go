package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrPoolExhausted is returned by Rent when every buffer is handed out.
var ErrPoolExhausted = errors.New("frame pool exhausted")

// FramePoolStats is a snapshot of pool counters.
type FramePoolStats struct {
	InFlight  int    // Reserved or delivered, not yet released
	Capacity  int    // In-flight cap
	Allocated int    // Buffers backing the arena
	Delivered uint64 // Frames built by NewFrame
	Dropped   uint64 // Reservations refused at the cap
}

// FramePool is an arena of pixel buffers addressed by handle, with a cap on
// the number of frames handed out at once. Buffers are reused across frames;
// a buffer goes back to the arena when its frame is released.
//
// The reservation protocol is Reserve, then NewFrame. Any failure between
// the two must call Unreserve.
type FramePool struct {
	mu   sync.Mutex
	bufs [][]byte // Indexed by handle
	free []int

	capacity int32
	inFlight atomic.Int32

	delivered atomic.Uint64
	dropped   atomic.Uint64

	dropLogInterval uint64
	log             *slog.Logger
}

// NewFramePool creates a pool allowing at most capacity frames in flight.
func NewFramePool(capacity, dropLogInterval int, logger *slog.Logger) *FramePool {
	if capacity <= 0 {
		capacity = 1
	}
	if dropLogInterval <= 0 {
		dropLogInterval = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FramePool{
		bufs:            make([][]byte, 0, capacity),
		free:            make([]int, 0, capacity),
		capacity:        int32(capacity),
		dropLogInterval: uint64(dropLogInterval),
		log:             logger,
	}
}

// Reserve claims an in-flight slot. It never blocks: at the cap it counts a
// drop and returns false.
func (p *FramePool) Reserve() bool {
	for {
		n := p.inFlight.Load()
		if n >= p.capacity {
			dropped := p.dropped.Add(1)
			if dropped%p.dropLogInterval == 1 || p.dropLogInterval == 1 {
				p.log.Warn("dropping video frames, consumer not releasing",
					"dropped", dropped, "in_flight", n, "capacity", p.capacity)
			}
			return false
		}
		if p.inFlight.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Unreserve gives back a slot claimed by Reserve that never became a frame.
func (p *FramePool) Unreserve() {
	p.inFlight.Add(-1)
}

// NewFrame rents a buffer of size bytes and wraps it in a VideoFrame owned
// by the pool. The caller must hold a reservation.
func (p *FramePool) NewFrame(size int) (*VideoFrame, error) {
	handle, buf, err := p.rent(size)
	if err != nil {
		return nil, err
	}
	p.delivered.Add(1)
	return &VideoFrame{Data: buf, pool: p, handle: handle}, nil
}

// Discard returns an undelivered frame's buffer and its reservation.
func (p *FramePool) Discard(f *VideoFrame) {
	f.Release()
	p.delivered.Add(^uint64(0))
}

func (p *FramePool) rent(size int) (int, []byte, error) {
	if size <= 0 {
		return -1, nil, fmt.Errorf("invalid frame size %d", size)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		h := p.free[n-1]
		p.free = p.free[:n-1]
		if cap(p.bufs[h]) < size {
			p.bufs[h] = make([]byte, size)
		}
		p.bufs[h] = p.bufs[h][:size]
		return h, p.bufs[h], nil
	}
	if len(p.bufs) >= int(p.capacity) {
		return -1, nil, ErrPoolExhausted
	}
	p.bufs = append(p.bufs, make([]byte, size))
	h := len(p.bufs) - 1
	return h, p.bufs[h], nil
}

// put returns a buffer to the arena and frees its in-flight slot.
func (p *FramePool) put(handle int) {
	p.mu.Lock()
	if handle >= 0 && handle < len(p.bufs) {
		p.free = append(p.free, handle)
	}
	p.mu.Unlock()
	p.inFlight.Add(-1)
}

// InFlight returns the number of frames currently handed out.
func (p *FramePool) InFlight() int {
	return int(p.inFlight.Load())
}

// Stats returns a snapshot of the pool counters.
func (p *FramePool) Stats() FramePoolStats {
	p.mu.Lock()
	allocated := len(p.bufs)
	p.mu.Unlock()
	return FramePoolStats{
		InFlight:  int(p.inFlight.Load()),
		Capacity:  int(p.capacity),
		Allocated: allocated,
		Delivered: p.delivered.Load(),
		Dropped:   p.dropped.Load(),
	}
}

// WaitIdle blocks until every frame has been released or the timeout passes.
// It reports whether the pool drained.
func (p *FramePool) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for p.inFlight.Load() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}
