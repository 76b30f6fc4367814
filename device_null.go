package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// NullDevice is a silent AudioDevice that consumes queued buffers at the
// wall-clock rate implied by their sample count. It behaves like a real
// source: it stops by itself when the queue runs dry.
type NullDevice struct {
	mu sync.Mutex

	buffers map[uint32]time.Duration // id -> uploaded duration
	nextID  uint32

	queue     []uint32 // Pending, head is playing
	processed []uint32 // Finished, awaiting Unqueue
	playing   bool
	headStart time.Time     // When the head buffer started
	pausedAt  time.Duration // Head progress at pause

	gain   float32
	played time.Duration
	closed bool

	now func() time.Time
}

// NewNullDevice creates a null audio device.
func NewNullDevice() *NullDevice {
	return &NullDevice{
		buffers: make(map[uint32]time.Duration),
		nextID:  1,
		gain:    1,
		now:     time.Now,
	}
}

func (d *NullDevice) Provider() Provider { return ProviderNullAudio }

func (d *NullDevice) CreateBuffers(n int) ([]uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDeviceUnavailable
	}
	ids := make([]uint32, n)
	for i := range ids {
		ids[i] = d.nextID
		d.buffers[d.nextID] = 0
		d.nextID++
	}
	return ids, nil
}

func (d *NullDevice) Upload(buf uint32, pcm []byte, sampleRate int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.buffers[buf]; !ok {
		return fmt.Errorf("unknown buffer %d", buf)
	}
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	samples := len(pcm) / 4 // s16 stereo
	d.buffers[buf] = time.Duration(samples) * time.Second / time.Duration(sampleRate)
	return nil
}

func (d *NullDevice) Queue(bufs ...uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	for _, b := range bufs {
		if _, ok := d.buffers[b]; !ok {
			return fmt.Errorf("unknown buffer %d", b)
		}
	}
	d.queue = append(d.queue, bufs...)
	return nil
}

func (d *NullDevice) Unqueue(n int) ([]uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	if n > len(d.processed) {
		return nil, fmt.Errorf("unqueue %d buffers, only %d processed", n, len(d.processed))
	}
	out := make([]uint32, n)
	copy(out, d.processed[:n])
	d.processed = d.processed[n:]
	return out, nil
}

func (d *NullDevice) Processed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	return len(d.processed)
}

func (d *NullDevice) Queued() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	return len(d.processed) + len(d.queue)
}

func (d *NullDevice) Playing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	return d.playing
}

func (d *NullDevice) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	if d.playing || len(d.queue) == 0 {
		return nil
	}
	d.playing = true
	d.headStart = d.now().Add(-d.pausedAt)
	d.pausedAt = 0
	return nil
}

func (d *NullDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	if !d.playing {
		return nil
	}
	d.playing = false
	d.pausedAt = d.now().Sub(d.headStart)
	return nil
}

func (d *NullDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	d.playing = false
	d.pausedAt = 0
	d.processed = append(d.processed, d.queue...)
	d.queue = d.queue[:0]
	return nil
}

func (d *NullDevice) SetGain(gain float32) error {
	d.mu.Lock()
	d.gain = gain
	d.mu.Unlock()
	return nil
}

// Gain returns the last gain set.
func (d *NullDevice) Gain() float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gain
}

// Played returns the total audio duration consumed.
func (d *NullDevice) Played() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	return d.played
}

func (d *NullDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.playing = false
	d.queue = nil
	d.processed = nil
	return nil
}

// advance retires buffers whose duration has elapsed. Caller holds mu.
func (d *NullDevice) advance() {
	if !d.playing {
		return
	}
	now := d.now()
	for len(d.queue) > 0 {
		dur := d.buffers[d.queue[0]]
		end := d.headStart.Add(dur)
		if now.Before(end) {
			return
		}
		d.processed = append(d.processed, d.queue[0])
		d.queue = d.queue[1:]
		d.headStart = end
		d.played += dur
	}
	// Ran dry
	d.playing = false
}

func init() {
	RegisterAudioDevice(ProviderNullAudio, func(string, *slog.Logger) (AudioDevice, error) {
		return NewNullDevice(), nil
	})
	RegisterDeviceLister(ProviderNullAudio, func(context.Context) ([]DeviceInfo, error) {
		return []DeviceInfo{{
			DeviceID: "null",
			Label:    "Silent output",
			Provider: ProviderNullAudio,
			Default:  true,
		}}, nil
	})
}
