package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// videoPath decodes one video stream, converts frames into pooled packed
// buffers and hands them to the notifier. It never blocks on the consumer:
// when too many frames are in flight the new frame is dropped.
type videoPath struct {
	stream   StreamInfo
	dec      Decoder
	conv     VideoConverter
	interval time.Duration

	// skipUntil holds frames back after a seek until they reach the
	// target. noSeekTarget when inactive. Guarded by the session lock.
	skipUntil time.Duration

	pool   *FramePool
	notify *notifier
	stats  *counters
	format PixelFormat
	log    *slog.Logger
}

func newVideoPath(src Source, st StreamInfo, env sessionEnv) (*videoPath, error) {
	dec, err := src.OpenDecoder(st.Index, DecoderOptions{Threads: env.config.DecoderThreads})
	if err != nil {
		return nil, fmt.Errorf("open decoder: %w", err)
	}
	conv, err := src.NewVideoConverter(st.Index, ConvertOptions{
		Format: env.config.OutputFormat,
		Width:  env.config.OutputWidth,
		Height: env.config.OutputHeight,
		Mode:   env.config.ScaleMode,
	})
	if err != nil {
		dec.Close()
		return nil, fmt.Errorf("create converter: %w", err)
	}

	return &videoPath{
		stream:    st,
		dec:       dec,
		conv:      conv,
		interval:  FrameInterval(st.AvgFrameRate.Float64(), env.config.DefaultFrameRate),
		skipUntil: noSeekTarget,
		pool:      env.pool,
		notify:    env.notify,
		stats:     env.stats,
		format:    env.config.OutputFormat,
		log:       env.log.With("component", "video", "stream", st.Index),
	}, nil
}

// packetTime returns the packet timestamp as media time, or -1 if unset.
func (v *videoPath) packetTime(pkt *Packet) time.Duration {
	if pkt.PTS == NoPTS {
		return -1
	}
	return secondsToDuration(v.stream.Seconds(pkt.PTS))
}

// catchingUp reports whether the packet lies before a pending seek target,
// in which case it is decoded without pacing. Caller holds the session lock.
func (v *videoPath) catchingUp(pkt *Packet) bool {
	if v.skipUntil == noSeekTarget {
		return false
	}
	t := v.packetTime(pkt)
	return t >= 0 && t+v.interval <= v.skipUntil
}

// decode sends one packet and processes every frame it yields. Caller
// holds the session lock.
func (v *videoPath) decode(s *session, pkt *Packet, generation uint64) {
	if err := v.dec.SendPacket(pkt); err != nil {
		v.decodeError("send packet", err)
		return
	}

	for {
		raw, err := v.dec.ReceiveFrame()
		if errors.Is(err, ErrNeedMoreData) || errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			v.decodeError("receive frame", err)
			return
		}
		v.stats.framesDecoded.Add(1)
		v.present(s, raw, generation)
	}
}

func (v *videoPath) present(s *session, raw *RawFrame, generation uint64) {
	if s.generation.Load() != generation {
		return
	}
	pts := secondsToDuration(v.stream.Seconds(raw.Timestamp()))

	if v.skipUntil != noSeekTarget {
		if pts+v.interval <= v.skipUntil {
			return
		}
		v.skipUntil = noSeekTarget
	}

	s.advancePosition(pts)

	if !v.pool.Reserve() {
		return
	}

	w, h, stride := v.conv.OutputSize(raw.Width, raw.Height)
	frame, err := v.pool.NewFrame(stride * h)
	if err != nil {
		v.pool.Unreserve()
		v.stats.convertErrors.Add(1)
		v.log.Debug("frame buffer unavailable", "error", err)
		return
	}
	if err := v.conv.Convert(raw, frame.Data); err != nil {
		v.pool.Discard(frame)
		v.stats.convertErrors.Add(1)
		v.log.Debug("frame conversion failed", "error", err)
		return
	}
	v.stats.framesConverted.Add(1)

	frame.Width = w
	frame.Height = h
	frame.Stride = stride
	frame.Format = v.format
	frame.PTS = pts
	frame.Generation = generation
	v.notify.deliverFrame(frame)
}

func (v *videoPath) decodeError(op string, err error) {
	v.stats.decodeErrors.Add(1)
	v.log.Debug("video decode error", "op", op, "error", err)
	v.notify.emit(Event{Type: EventError, Err: fmt.Errorf("video %s: %w", op, err)})
}

func (v *videoPath) close() error {
	var errs []error
	if v.conv != nil {
		errs = append(errs, v.conv.Close())
	}
	if v.dec != nil {
		errs = append(errs, v.dec.Close())
	}
	return errors.Join(errs...)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
