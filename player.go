package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrNoSession    = errors.New("no media open")
	ErrInvalidState = errors.New("invalid player state")
)

// PlaybackState is the controller state.
type PlaybackState int32

const (
	StateIdle PlaybackState = iota
	StateOpening
	StateReady
	StatePlaying
	StatePaused
	StateStopped // End reached; Play rewinds
	StateClosed  // Disposed, terminal
)

func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats is a telemetry snapshot of a player.
type Stats struct {
	State     PlaybackState
	SessionID string // Empty when nothing is open
	Backend   Provider
	HasVideo  bool
	HasAudio  bool
	Position  time.Duration
	Duration  time.Duration

	PacketsRead  uint64
	PacketsStale uint64 // Read before a seek and discarded
	ReadErrors   uint64

	FramesDecoded   uint64
	FramesConverted uint64
	FramesDelivered uint64
	FramesDropped   uint64 // Refused at the in-flight cap
	FramesStale     uint64 // Released by the notifier after a seek
	FramesInFlight  int
	DecodeErrors    uint64
	ConvertErrors   uint64

	AudioFrames  uint64
	AudioChunks  uint64
	AudioSkipped uint64 // Before a seek target
	Audio        AudioOutputStats
}

// Player opens one media source at a time and plays it: a decode goroutine
// paces video frames to the OnFrame handler and feeds audio to the device.
//
// Public methods are safe for concurrent use. Event subscribers and the
// frame handler run on the player's notifier goroutine, in emission order.
type Player struct {
	mu     sync.Mutex
	config Config
	log    *slog.Logger

	state  atomic.Int32
	paused atomic.Bool
	volume atomic.Int32

	sess       atomic.Pointer[session]
	audioOut   atomic.Pointer[AudioOutput]
	generation atomic.Uint64
	pipeline   *decodePipeline

	// pendingSeek is a seek made while a stuck decode loop still held the
	// session; applied by the next start. noSeekTarget when unset.
	pendingSeek time.Duration

	pool   *FramePool
	clock  *PlaybackClock
	notify *notifier
	stats  counters
}

// NewPlayer creates an idle player. Zero config fields take their defaults.
func NewPlayer(config Config) (*Player, error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := config.Logger.With("component", "player")
	p := &Player{
		config: config,
		log:    log,
		pool:   NewFramePool(config.MaxFramesInFlight, config.DropLogInterval, config.Logger.With("component", "framepool")),
		clock:  NewPlaybackClock(),

		pendingSeek: noSeekTarget,
	}
	p.volume.Store(100)
	p.notify = newNotifier(p.generation.Load, config.Logger.With("component", "notifier"))
	return p, nil
}

// Open closes any current media and opens uri. On failure the player is
// left idle with no media.
func (p *Player) Open(ctx context.Context, uri string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() == StateClosed {
		return ErrInvalidState
	}
	if err := p.closeLocked(); err != nil {
		p.log.Warn("closing previous media failed", "error", err)
	}

	p.setState(StateOpening)
	s, err := openSession(ctx, uri, &p.generation, sessionEnv{
		config: p.config,
		pool:   p.pool,
		notify: p.notify,
		stats:  &p.stats,
		log:    p.config.Logger,
	})
	if err != nil {
		p.setState(StateIdle)
		p.log.Info("open failed", "uri", uri, "error", err)
		return err
	}

	p.sess.Store(s)
	if s.audio != nil {
		s.audio.out.SetVolume(int(p.volume.Load()))
		p.audioOut.Store(s.audio.out)
	}
	p.paused.Store(false)
	p.clock.Reset()
	p.setState(StateReady)
	p.notify.emit(Event{Type: EventLengthChanged, Length: s.duration.Milliseconds()})
	return nil
}

// Play starts or resumes playback. From Paused it only clears the pause;
// from Stopped it rewinds first.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.sess.Load()
	if s == nil {
		return ErrNoSession
	}

	switch p.State() {
	case StatePlaying:
		return nil

	case StatePaused:
		p.clock.Reset()
		p.paused.Store(false)
		if out := p.audioOut.Load(); out != nil {
			out.Resume()
		}

	case StateStopped:
		if err := p.repositionLocked(s, 0); err != nil {
			return err
		}
		fallthrough

	case StateReady:
		if err := p.startLocked(s); err != nil {
			return err
		}

	default:
		return fmt.Errorf("%w: play in %s", ErrInvalidState, p.State())
	}

	p.setState(StatePlaying)
	p.notify.emit(Event{Type: EventPlaying})
	return nil
}

// startLocked spawns a decode loop, making sure the previous one has exited,
// and applies a seek deferred while that loop was stuck.
func (p *Player) startLocked(s *session) error {
	if d := p.pipeline; d != nil && !d.finished() {
		if !d.stop(p.config.StopTimeout) {
			return fmt.Errorf("%w: previous decode loop still running", ErrInvalidState)
		}
	}
	if target := p.pendingSeek; target != noSeekTarget {
		p.pendingSeek = noSeekTarget
		if err := p.repositionLocked(s, target); err != nil {
			p.log.Warn("deferred seek failed", "target", target, "error", err)
		}
	}
	p.paused.Store(false)
	if out := p.audioOut.Load(); out != nil {
		out.Resume()
	}
	p.clock.Reset()
	p.pipeline = startDecodePipeline(p, s)
	return nil
}

// Pause suspends playback without discarding decoder state.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sess.Load() == nil {
		return ErrNoSession
	}
	switch p.State() {
	case StatePaused:
		return nil
	case StatePlaying:
	default:
		return fmt.Errorf("%w: pause in %s", ErrInvalidState, p.State())
	}

	p.paused.Store(true)
	if out := p.audioOut.Load(); out != nil {
		out.Pause()
	}
	p.setState(StatePaused)
	p.notify.emit(Event{Type: EventPaused})
	return nil
}

// Stop ends playback, rewinds to the start and returns to Ready.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.sess.Load()
	if s == nil {
		return ErrNoSession
	}
	switch p.State() {
	case StateReady:
		return nil
	case StatePlaying, StatePaused, StateStopped:
	default:
		return fmt.Errorf("%w: stop in %s", ErrInvalidState, p.State())
	}

	p.stopLoopLocked()
	if err := p.repositionLocked(s, 0); err != nil {
		p.log.Warn("rewind after stop failed", "error", err)
		s.resetPosition(0)
	}
	p.setState(StateReady)
	p.notify.emit(Event{Type: EventStopped})
	return nil
}

// stopLoopLocked cancels the decode loop and waits up to StopTimeout. It
// reports whether the loop exited. On timeout the generation moves on so
// whatever the loop still produces is discarded; the loop exits on its own
// once its current call returns, and keeps the session lock until then.
func (p *Player) stopLoopLocked() bool {
	p.paused.Store(false)
	d := p.pipeline
	if d == nil || d.stop(p.config.StopTimeout) {
		return true
	}
	p.log.Warn("decode loop did not stop in time", "timeout", p.config.StopTimeout)
	p.generation.Add(1)
	return false
}

// loopStuckLocked reports whether a cancelled decode loop is still running.
func (p *Player) loopStuckLocked() bool {
	d := p.pipeline
	return d != nil && d.ctx.Err() != nil && !d.finished()
}

// repositionLocked seeks the source to target, then drops pending audio and
// resets the clock and position inside the session lock, so the decode loop
// resumes only after the old audio is gone. While a stuck loop holds the
// session lock the seek is deferred to the next start instead.
func (p *Player) repositionLocked(s *session, target time.Duration) error {
	if p.loopStuckLocked() {
		p.pendingSeek = target
		if out := p.audioOut.Load(); out != nil {
			out.Flush()
		}
		p.clock.Reset()
		s.resetPosition(target)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil {
		return ErrNoSession
	}
	if err := s.seekLocked(target); err != nil {
		return err
	}
	p.pendingSeek = noSeekTarget
	if out := p.audioOut.Load(); out != nil {
		out.Flush()
	}
	p.clock.Reset()
	s.resetPosition(target)
	return nil
}

// Seek moves playback to fraction (clamped to 0..1) of the duration. The
// demuxer lands on the preceding keyframe; output resumes at the target.
func (p *Player) Seek(fraction float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.sess.Load()
	if s == nil {
		return ErrNoSession
	}
	if s.duration <= 0 {
		return fmt.Errorf("%w: seek with unknown duration", ErrNotSupported)
	}
	fraction = min(max(fraction, 0), 1)
	target := time.Duration(fraction * float64(s.duration))

	if err := p.repositionLocked(s, target); err != nil {
		p.log.Debug("seek failed", "target", target, "error", err)
		return err
	}

	if p.State() == StateStopped {
		p.setState(StateReady)
	}
	p.log.Debug("seek", "fraction", fraction, "target", target)
	return nil
}

// SetVolume sets the output volume, clamped to 0..100. It takes effect
// without flushing queued audio.
func (p *Player) SetVolume(volume int) {
	volume = clampVolume(volume)
	p.volume.Store(int32(volume))
	if out := p.audioOut.Load(); out != nil {
		out.SetVolume(volume)
	}
}

// Volume returns the current volume, 0..100.
func (p *Player) Volume() int {
	return int(p.volume.Load())
}

// IsPlaying reports whether the player is in the Playing state.
func (p *Player) IsPlaying() bool {
	return p.State() == StatePlaying
}

// Position returns the playback position as a fraction of the duration, or
// 0 when nothing is open or the duration is unknown.
func (p *Player) Position() float64 {
	s := p.sess.Load()
	if s == nil {
		return 0
	}
	return s.Fraction(s.Position())
}

// PositionTime returns the playback position as media time.
func (p *Player) PositionTime() time.Duration {
	s := p.sess.Load()
	if s == nil {
		return 0
	}
	return s.Position()
}

// Length returns the duration in milliseconds (0 = unknown).
func (p *Player) Length() int64 {
	return p.Duration().Milliseconds()
}

func (p *Player) Duration() time.Duration {
	s := p.sess.Load()
	if s == nil {
		return 0
	}
	return s.duration
}

func (p *Player) State() PlaybackState {
	return PlaybackState(p.state.Load())
}

func (p *Player) setState(st PlaybackState) {
	old := PlaybackState(p.state.Swap(int32(st)))
	if old != st {
		p.log.Debug("state", "from", old, "to", st)
	}
}

// Stats returns a telemetry snapshot.
func (p *Player) Stats() Stats {
	pool := p.pool.Stats()
	st := Stats{
		State:           p.State(),
		PacketsRead:     p.stats.packetsRead.Load(),
		PacketsStale:    p.stats.packetsStale.Load(),
		ReadErrors:      p.stats.readErrors.Load(),
		FramesDecoded:   p.stats.framesDecoded.Load(),
		FramesConverted: p.stats.framesConverted.Load(),
		FramesDelivered: p.notify.delivered.Load(),
		FramesDropped:   pool.Dropped,
		FramesStale:     p.notify.stale.Load(),
		FramesInFlight:  pool.InFlight,
		DecodeErrors:    p.stats.decodeErrors.Load(),
		ConvertErrors:   p.stats.convertErrors.Load(),
		AudioFrames:     p.stats.audioFrames.Load(),
		AudioChunks:     p.stats.audioChunks.Load(),
		AudioSkipped:    p.stats.audioSkipped.Load(),
	}
	if s := p.sess.Load(); s != nil {
		st.SessionID = s.id
		st.Backend = s.backend
		st.Position = s.Position()
		st.Duration = s.duration
		st.HasVideo = s.videoIndex >= 0
		st.HasAudio = s.audioIndex >= 0
	}
	if out := p.audioOut.Load(); out != nil {
		st.Audio = out.Stats()
		st.HasAudio = true
	}
	return st
}

// Subscribe registers fn for every event. The returned func unsubscribes.
func (p *Player) Subscribe(fn func(Event)) func() {
	return p.notify.subscribe(fn)
}

// OnFrame sets the frame handler. The handler owns each frame it receives
// and must call Release exactly once, within or after the call; frames are
// pooled and at most MaxFramesInFlight are outstanding. Without a handler
// frames are released immediately.
func (p *Player) OnFrame(fn func(*VideoFrame)) {
	p.notify.setFrameHandler(fn)
}

// Close stops playback and releases the open media. The player returns to
// Idle and can open another source.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() == StateClosed {
		return nil
	}
	err := p.closeLocked()
	p.setState(StateIdle)
	return err
}

func (p *Player) closeLocked() error {
	s := p.sess.Load()
	if s == nil {
		return nil
	}

	wasActive := p.State() == StatePlaying || p.State() == StatePaused
	stopped := p.stopLoopLocked()
	d := p.pipeline
	p.pipeline = nil
	p.pendingSeek = noSeekTarget

	out := p.audioOut.Load()
	p.sess.Store(nil)
	p.audioOut.Store(nil)
	// Frames still queued for delivery belong to the closed media.
	p.generation.Add(1)

	var err error
	if !stopped && d.detach() {
		// The stuck loop holds the session lock; it closes the media when
		// its current call returns.
		if out != nil {
			out.Flush()
		}
		s.log.Warn("decode loop still running, media closes when it exits")
	} else {
		err = s.close()
	}
	if wasActive {
		p.notify.emit(Event{Type: EventStopped})
	}
	return err
}

// Dispose stops and closes the player for good. Frames still held by the
// consumer stay valid until released.
func (p *Player) Dispose() error {
	p.mu.Lock()
	if p.State() == StateClosed {
		p.mu.Unlock()
		return nil
	}
	err := p.closeLocked()
	p.setState(StateClosed)
	p.mu.Unlock()

	p.notify.close()
	return err
}

// endReached is called by the decode loop that hit end of stream. It does
// not take the player lock: Stop may hold it while waiting for the loop.
func (p *Player) endReached(d *decodePipeline) {
	if d.ctx.Err() != nil {
		return
	}
	if !p.state.CompareAndSwap(int32(StatePlaying), int32(StateStopped)) &&
		!p.state.CompareAndSwap(int32(StatePaused), int32(StateStopped)) {
		return
	}
	if s := d.session; s != nil {
		p.log.Info("end reached", "uri", s.uri, "position", s.Position())
	}
	p.notify.emit(Event{Type: EventEndReached})
}
