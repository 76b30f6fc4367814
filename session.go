package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const noSeekTarget time.Duration = -1

// counters are the player-wide telemetry counters shared by the decode paths.
type counters struct {
	framesDecoded   atomic.Uint64
	framesConverted atomic.Uint64
	decodeErrors    atomic.Uint64
	convertErrors   atomic.Uint64
	readErrors      atomic.Uint64
	audioFrames     atomic.Uint64
	audioChunks     atomic.Uint64
	audioSkipped    atomic.Uint64
	packetsRead     atomic.Uint64
	packetsStale    atomic.Uint64
}

// sessionEnv carries the player-owned collaborators a session works with.
type sessionEnv struct {
	config Config
	pool   *FramePool
	notify *notifier
	stats  *counters
	log    *slog.Logger
}

// session is one open media source with its selected streams. mu guards the
// source and decoder state; it is held by the decode loop for each packet
// read and decode step, and by Seek, Stop and Close.
type session struct {
	mu sync.Mutex

	id       string // Correlates log lines of one open
	uri      string
	src      Source
	backend  Provider
	streams  []StreamInfo
	duration time.Duration

	videoIndex int // -1 when absent; fixed after open
	audioIndex int // -1 when absent; fixed after open
	video      *videoPath
	audio      *audioPath

	generation *atomic.Uint64
	position   atomic.Int64 // Media time in ns
	notify     *notifier

	log *slog.Logger
}

// openSession opens uri and prepares a decode path per selected stream.
// A stream whose decoder, converter or output cannot be set up is disabled
// on its own; the open fails only when nothing playable remains.
func openSession(ctx context.Context, uri string, generation *atomic.Uint64, env sessionEnv) (*session, error) {
	id := uuid.New().String()
	log := env.log.With("session", id, "uri", uri)

	backend, err := BackendFor(uri, env.config.Backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}

	src, err := backend.Open(ctx, uri)
	if err != nil {
		if errors.Is(err, ErrOpenFailed) || errors.Is(err, ErrNoStreamInfo) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, uri, err)
	}

	streams := src.Streams()
	if len(streams) == 0 {
		src.Close()
		return nil, fmt.Errorf("%w: %s", ErrNoStreamInfo, uri)
	}

	s := &session{
		id:         id,
		uri:        uri,
		src:        src,
		backend:    backend.Provider(),
		streams:    streams,
		duration:   src.Duration(),
		videoIndex: -1,
		audioIndex: -1,
		generation: generation,
		notify:     env.notify,
		log:        log,
	}

	for _, st := range streams {
		switch {
		case st.Type == MediaTypeVideo && s.video == nil:
			vp, err := newVideoPath(src, st, env)
			if err != nil {
				log.Warn("video stream disabled", "stream", st.String(), "error", err)
				continue
			}
			s.video, s.videoIndex = vp, st.Index
		case st.Type == MediaTypeAudio && s.audio == nil && !env.config.DisableAudio:
			ap, err := newAudioPath(src, st, env)
			if err != nil {
				log.Warn("audio stream disabled", "stream", st.String(), "error", err)
				continue
			}
			s.audio, s.audioIndex = ap, st.Index
		}
	}

	if s.video == nil && s.audio == nil {
		src.Close()
		return nil, fmt.Errorf("%w: %s", ErrNoUsableStream, uri)
	}

	attrs := []any{"backend", s.backend, "duration", s.duration}
	if s.video != nil {
		attrs = append(attrs, "video", s.video.stream.String())
	}
	if s.audio != nil {
		attrs = append(attrs, "audio", s.audio.stream.String())
	}
	log.Info("media opened", attrs...)
	return s, nil
}

// Position returns the current media time.
func (s *session) Position() time.Duration {
	return time.Duration(s.position.Load())
}

// Fraction converts a media time to a fraction of the duration.
func (s *session) Fraction(t time.Duration) float64 {
	if s.duration <= 0 {
		return 0
	}
	f := float64(t) / float64(s.duration)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// advancePosition moves the position forward to t and notifies. Earlier
// timestamps are ignored so notifications stay monotonic.
func (s *session) advancePosition(t time.Duration) {
	for {
		cur := s.position.Load()
		if int64(t) <= cur {
			return
		}
		if s.position.CompareAndSwap(cur, int64(t)) {
			break
		}
	}
	s.notify.emit(Event{Type: EventPositionChanged, Position: s.Fraction(t), Time: t})
}

// resetPosition sets the position unconditionally and notifies. The
// notification is not collapsed into later position events.
func (s *session) resetPosition(t time.Duration) {
	s.position.Store(int64(t))
	s.notify.emitPinned(Event{Type: EventPositionChanged, Position: s.Fraction(t), Time: t})
}

// seekLocked repositions the demuxer to the keyframe at or before target,
// flushes decoders and bumps the generation. Caller holds mu.
func (s *session) seekLocked(target time.Duration) error {
	if err := s.src.Seek(target); err != nil {
		return fmt.Errorf("seek to %v: %w", target, err)
	}
	if s.video != nil {
		if err := s.video.dec.Flush(); err != nil {
			s.log.Debug("video decoder flush failed", "error", err)
		}
	}
	if s.audio != nil {
		if err := s.audio.dec.Flush(); err != nil {
			s.log.Debug("audio decoder flush failed", "error", err)
		}
	}
	s.generation.Add(1)

	// Decoding restarts at a keyframe; output resumes at the target.
	skip := noSeekTarget
	if target > 0 {
		skip = target
	}
	if s.video != nil {
		s.video.skipUntil = skip
	}
	if s.audio != nil {
		s.audio.skipUntil = skip
	}
	return nil
}

// frameInterval returns the pacing interval of the video stream.
func (s *session) frameInterval(fallback float64) time.Duration {
	if s.video == nil {
		return FrameInterval(0, fallback)
	}
	return s.video.interval
}

// close releases decode paths, the audio output and the source. The two
// decode paths tear down concurrently. duration is left intact for readers
// still holding the session. Idempotent.
func (s *session) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.src == nil {
		return nil
	}

	var g errgroup.Group
	if s.video != nil {
		v := s.video
		g.Go(v.close)
	}
	if s.audio != nil {
		a := s.audio
		g.Go(a.close)
	}
	err := g.Wait()

	if cerr := s.src.Close(); err == nil {
		err = cerr
	}
	s.src = nil
	s.video, s.audio = nil, nil
	s.position.Store(0)
	s.log.Info("media closed")
	return err
}
