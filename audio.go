package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// audioPath decodes one audio stream to s16 stereo at the source rate and
// queues every chunk on the AudioOutput.
type audioPath struct {
	stream StreamInfo
	dec    Decoder
	res    Resampler // nil: manual conversion
	manual StereoConverter
	out    *AudioOutput

	// skipUntil discards chunks that end before a seek target. Guarded by
	// the session lock.
	skipUntil time.Duration

	stats  *counters
	notify *notifier
	log    *slog.Logger
}

func newAudioPath(src Source, st StreamInfo, env sessionEnv) (*audioPath, error) {
	log := env.log.With("component", "audio", "stream", st.Index)

	dec, err := src.OpenDecoder(st.Index, DecoderOptions{})
	if err != nil {
		return nil, fmt.Errorf("open decoder: %w", err)
	}

	res, err := src.NewResampler(st.Index, st.SampleRate, 2)
	if err != nil {
		log.Info("resampler unavailable, converting samples manually", "format", st.SampleFormat, "error", err)
		res = nil
	}

	dev, err := OpenAudioDevice(env.config.AudioDevice, env.config.AudioDeviceName, env.log)
	if err != nil {
		closeAll(res, dec)
		return nil, err
	}
	out, err := NewAudioOutput(dev, AudioOutputConfig{
		Buffers:      env.config.AudioBuffers,
		Prebuffer:    env.config.AudioPrebuffer,
		PollInterval: env.config.AudioPollInterval,
	}, env.log)
	if err != nil {
		dev.Close()
		closeAll(res, dec)
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	return &audioPath{
		stream:    st,
		dec:       dec,
		res:       res,
		out:       out,
		skipUntil: noSeekTarget,
		stats:     env.stats,
		notify:    env.notify,
		log:       log,
	}, nil
}

// decode sends one packet and queues every chunk it yields. It returns the
// media time at the end of the last chunk, or -1 if none was queued.
// Chunks are not queued once a seek or stop has moved past generation.
// Caller holds the session lock.
func (a *audioPath) decode(s *session, pkt *Packet, generation uint64) time.Duration {
	last := time.Duration(-1)

	if err := a.dec.SendPacket(pkt); err != nil {
		a.decodeError("send packet", err)
		return last
	}

	for {
		raw, err := a.dec.ReceiveFrame()
		if errors.Is(err, ErrNeedMoreData) || errors.Is(err, io.EOF) {
			return last
		}
		if err != nil {
			a.decodeError("receive frame", err)
			return last
		}
		a.stats.audioFrames.Add(1)

		pts := secondsToDuration(a.stream.Seconds(raw.Timestamp()))
		if a.skipUntil != noSeekTarget {
			if pts+frameDuration(raw) <= a.skipUntil {
				a.stats.audioSkipped.Add(1)
				continue
			}
			a.skipUntil = noSeekTarget
		}

		chunk, err := a.convert(raw, pts)
		if err != nil {
			a.decodeError("convert", err)
			continue
		}
		if s.generation.Load() != generation {
			return last
		}
		a.out.Enqueue(chunk)
		a.stats.audioChunks.Add(1)
		last = pts + chunk.Duration()
	}
}

// convert produces an owned s16 stereo chunk, using the backend resampler
// when present and manual conversion otherwise.
func (a *audioPath) convert(raw *RawFrame, pts time.Duration) (AudioChunk, error) {
	var (
		data    []byte
		samples int
		err     error
	)
	if a.res != nil {
		data, samples, err = a.res.Resample(raw)
		if err != nil {
			a.log.Debug("resample failed, converting manually", "error", err)
		}
	}
	if a.res == nil || err != nil {
		data, err = a.manual.Convert(raw)
		if err != nil {
			return AudioChunk{}, err
		}
		samples = raw.Samples
	}

	rate := raw.SampleRate
	if rate <= 0 {
		rate = a.stream.SampleRate
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	return AudioChunk{
		Data:       owned,
		SampleRate: rate,
		Channels:   2,
		Samples:    samples,
		PTS:        pts,
	}, nil
}

func (a *audioPath) decodeError(op string, err error) {
	a.stats.decodeErrors.Add(1)
	a.log.Debug("audio decode error", "op", op, "error", err)
	a.notify.emit(Event{Type: EventError, Err: fmt.Errorf("audio %s: %w", op, err)})
}

func (a *audioPath) close() error {
	var errs []error
	if a.out != nil {
		errs = append(errs, a.out.Close())
	}
	if a.res != nil {
		errs = append(errs, a.res.Close())
	}
	if a.dec != nil {
		errs = append(errs, a.dec.Close())
	}
	return errors.Join(errs...)
}

func frameDuration(f *RawFrame) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples) * time.Second / time.Duration(f.SampleRate)
}

func closeAll(closers ...io.Closer) {
	for _, c := range closers {
		if c != nil {
			c.Close()
		}
	}
}
