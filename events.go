package playback

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// EventType identifies a player notification.
type EventType int

const (
	EventFrameReady      EventType = iota // A frame was handed to the OnFrame handler
	EventPositionChanged                  // Position moved (fraction in Event.Position)
	EventLengthChanged                    // Duration known (milliseconds in Event.Length)
	EventPlaying
	EventPaused
	EventStopped
	EventEndReached
	EventError // Non-fatal decode or device error
)

func (t EventType) String() string {
	switch t {
	case EventFrameReady:
		return "frame-ready"
	case EventPositionChanged:
		return "position-changed"
	case EventLengthChanged:
		return "length-changed"
	case EventPlaying:
		return "playing"
	case EventPaused:
		return "paused"
	case EventStopped:
		return "stopped"
	case EventEndReached:
		return "end-reached"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a notification delivered to subscribers, in emission order, on
// the player's notifier goroutine.
type Event struct {
	Type EventType

	Position float64       // PositionChanged: fraction 0.0-1.0
	Time     time.Duration // PositionChanged, FrameReady: media time
	Length   int64         // LengthChanged: milliseconds (0 = unknown)

	// FrameReady
	Width  int
	Height int
	Stride int

	Err error // Error
}

type notification struct {
	event Event
	frame *VideoFrame

	// pinned position events are never replaced by later ones.
	pinned bool
}

// notifier delivers events and frames from its own goroutine so the decode
// loop never runs consumer code. Emission never blocks; consecutive pending
// position events collapse into the latest.
type notifier struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []notification
	closed bool

	subs    map[int]func(Event)
	nextSub int
	onFrame func(*VideoFrame)

	// generation reports the current seek generation; frames from older
	// generations are released instead of delivered.
	generation func() uint64

	delivered atomic.Uint64
	stale     atomic.Uint64

	done chan struct{}
	log  *slog.Logger
}

func newNotifier(generation func() uint64, logger *slog.Logger) *notifier {
	n := &notifier{
		subs:       make(map[int]func(Event)),
		generation: generation,
		done:       make(chan struct{}),
		log:        logger,
	}
	n.cond = sync.NewCond(&n.mu)
	go n.run()
	return n
}

func (n *notifier) emit(ev Event) {
	n.push(ev, false)
}

// emitPinned queues a position event that later position events cannot
// collapse, so subscribers always see a seek target.
func (n *notifier) emitPinned(ev Event) {
	n.push(ev, true)
}

func (n *notifier) push(ev Event, pinned bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	if ev.Type == EventPositionChanged && len(n.queue) > 0 {
		last := &n.queue[len(n.queue)-1]
		if last.frame == nil && last.event.Type == EventPositionChanged && !last.pinned {
			last.event, last.pinned = ev, pinned
			return
		}
	}
	n.queue = append(n.queue, notification{event: ev, pinned: pinned})
	n.cond.Signal()
}

// deliverFrame queues a frame for the OnFrame handler. The notifier owns
// the frame from here on.
func (n *notifier) deliverFrame(f *VideoFrame) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		f.Release()
		return
	}
	n.queue = append(n.queue, notification{
		event: Event{Type: EventFrameReady, Time: f.PTS, Width: f.Width, Height: f.Height, Stride: f.Stride},
		frame: f,
	})
	n.cond.Signal()
}

func (n *notifier) subscribe(fn func(Event)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextSub
	n.nextSub++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

func (n *notifier) setFrameHandler(fn func(*VideoFrame)) {
	n.mu.Lock()
	n.onFrame = fn
	n.mu.Unlock()
}

// close stops the goroutine after it drains the queue. Queued frames are
// released, not delivered.
func (n *notifier) close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		<-n.done
		return
	}
	n.closed = true
	for _, item := range n.queue {
		if item.frame != nil {
			item.frame.Release()
		}
	}
	n.queue = nil
	n.cond.Broadcast()
	n.mu.Unlock()
	<-n.done
}

func (n *notifier) run() {
	defer close(n.done)

	for {
		n.mu.Lock()
		for len(n.queue) == 0 && !n.closed {
			n.cond.Wait()
		}
		if n.closed {
			n.mu.Unlock()
			return
		}
		item := n.queue[0]
		n.queue[0] = notification{}
		n.queue = n.queue[1:]

		subs := make([]func(Event), 0, len(n.subs))
		for _, fn := range n.subs {
			subs = append(subs, fn)
		}
		onFrame := n.onFrame
		n.mu.Unlock()

		if item.frame != nil {
			f := item.frame
			if f.Generation != n.generation() {
				n.stale.Add(1)
				f.Release()
				continue
			}
			n.delivered.Add(1)
			if onFrame != nil {
				onFrame(f)
			} else {
				f.Release()
			}
		}

		for _, fn := range subs {
			fn(item.event)
		}
	}
}
