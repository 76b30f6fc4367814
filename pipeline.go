package playback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// Decode loop lifecycle, see decodePipeline.state.
const (
	loopRunning int32 = iota
	loopExited
	loopDetached // Close gave up waiting; the loop closes the session on exit
)

// decodePipeline is one run of the demux/decode loop for a session. A new
// pipeline is started by each Play from Ready or Stopped; pause and resume
// keep the same pipeline.
type decodePipeline struct {
	player  *Player
	session *session

	// Captured at start; session.close clears the session's fields while
	// a timed-out loop may still be running.
	hasVideo   bool
	videoIndex int
	audioIndex int
	audioOut   *AudioOutput
	interval   time.Duration

	// End of the last queued audio chunk and its generation. Loop only.
	audioEnd time.Duration
	audioGen uint64

	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	log *slog.Logger
}

// startDecodePipeline starts a loop over s. Caller holds the player lock and
// s is open.
func startDecodePipeline(p *Player, s *session) *decodePipeline {
	ctx, cancel := context.WithCancel(context.Background())
	d := &decodePipeline{
		player:     p,
		session:    s,
		hasVideo:   s.video != nil,
		videoIndex: s.videoIndex,
		audioIndex: s.audioIndex,
		interval:   s.frameInterval(p.config.DefaultFrameRate),
		audioEnd:   -1,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        s.log.With("component", "decode"),
	}
	if s.audio != nil {
		d.audioOut = s.audio.out
	}
	go d.processLoop()
	return d
}

// stop cancels the loop and waits up to timeout for it to exit. It reports
// whether the loop finished in time.
func (d *decodePipeline) stop(timeout time.Duration) bool {
	d.cancel()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-d.done:
		return true
	case <-t.C:
		return false
	}
}

// detach hands the session over to a loop that did not stop in time: the
// loop closes it when its current call returns. It reports false when the
// loop has already exited and the caller must close the session itself.
func (d *decodePipeline) detach() bool {
	return d.state.CompareAndSwap(loopRunning, loopDetached)
}

// finished reports whether the loop has exited.
func (d *decodePipeline) finished() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

func (d *decodePipeline) processLoop() {
	defer close(d.done)
	defer func() {
		if d.state.CompareAndSwap(loopRunning, loopExited) {
			return
		}
		if err := d.session.close(); err != nil {
			d.log.Warn("closing detached media failed", "error", err)
		}
	}()

	p, s := d.player, d.session
	cfg := p.config
	interval := d.interval
	readErrors := 0

	for {
		if d.ctx.Err() != nil {
			return
		}

		if p.paused.Load() {
			d.sleep(cfg.PausePollInterval)
			continue
		}

		// Audio-only: keep the read side close to the device instead of
		// decoding the whole file into memory.
		if !d.hasVideo && d.audioOut != nil && d.audioOut.PendingDuration() > cfg.AudioQueueHighWater {
			d.updateAudioPosition()
			d.sleep(cfg.AudioPollInterval)
			continue
		}

		s.mu.Lock()
		if s.src == nil {
			s.mu.Unlock()
			return
		}
		generation := s.generation.Load()
		pkt, err := s.src.ReadPacket()
		catchingUp := err == nil && s.video != nil && pkt.StreamIndex == d.videoIndex && s.video.catchingUp(pkt)
		s.mu.Unlock()

		if err != nil {
			if errors.Is(err, io.EOF) {
				if d.endOfStream(generation) {
					return
				}
				continue
			}
			readErrors++
			p.stats.readErrors.Add(1)
			d.log.Debug("read packet failed", "error", err, "consecutive", readErrors)
			if readErrors >= cfg.MaxConsecutiveReadErrors {
				d.log.Warn("too many read errors, treating as end of stream", "count", readErrors)
				if d.endOfStream(generation) {
					return
				}
				readErrors = 0
			}
			continue
		}
		readErrors = 0
		p.stats.packetsRead.Add(1)

		switch pkt.StreamIndex {
		case d.videoIndex:
			if !catchingUp {
				if err := p.clock.Pace(d.ctx, interval); err != nil {
					pkt.Release()
					return
				}
			}
			s.mu.Lock()
			if s.generation.Load() == generation && s.video != nil {
				s.video.decode(s, pkt, generation)
			} else {
				p.stats.packetsStale.Add(1)
			}
			s.mu.Unlock()
			if !catchingUp {
				p.clock.Advance(interval)
			}

		case d.audioIndex:
			s.mu.Lock()
			if s.generation.Load() == generation && s.audio != nil {
				if end := s.audio.decode(s, pkt, generation); end >= 0 && !d.hasVideo {
					d.audioEnd, d.audioGen = end, generation
					d.advanceAudioPositionLocked()
				}
			} else {
				p.stats.packetsStale.Add(1)
			}
			s.mu.Unlock()
		}
		pkt.Release()
	}
}

// updateAudioPosition moves an audio-only position to what the device is
// playing now.
func (d *decodePipeline) updateAudioPosition() {
	s := d.session
	s.mu.Lock()
	d.advanceAudioPositionLocked()
	s.mu.Unlock()
}

// advanceAudioPositionLocked reports the end of the queued audio minus what
// is still pending. Positions from before a seek are not reported; the
// session position never moves back below the seek target. Caller holds the
// session lock.
func (d *decodePipeline) advanceAudioPositionLocked() {
	s := d.session
	if d.hasVideo || d.audioOut == nil || d.audioEnd < 0 || d.audioGen != s.generation.Load() {
		return
	}
	s.advancePosition(d.audioEnd - d.audioOut.PendingDuration())
}

// endOfStream finishes the run unless a seek moved the demuxer after the
// read that hit the end, in which case the loop carries on. Queued audio
// plays out before the end is reported.
func (d *decodePipeline) endOfStream(generation uint64) bool {
	s := d.session
	if s.generation.Load() != generation {
		return false
	}

	if d.audioOut != nil {
		d.audioOut.EndOfInput()
		for !d.audioOut.Drained() {
			if s.generation.Load() != generation {
				return false
			}
			if d.ctx.Err() != nil {
				return true
			}
			d.updateAudioPosition()
			d.sleep(d.player.config.AudioPollInterval)
		}
		d.updateAudioPosition()
	}
	if s.generation.Load() != generation {
		return false
	}
	d.player.endReached(d)
	return true
}

func (d *decodePipeline) sleep(dur time.Duration) {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-d.ctx.Done():
	case <-t.C:
	}
}
