package playback

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// AudioOutputConfig configures an AudioOutput.
type AudioOutputConfig struct {
	Buffers      int           // Device buffers in the pool (default: 16)
	Prebuffer    int           // Buffers queued before the first start (default: 4)
	PollInterval time.Duration // Drain loop period (default: 5ms)
}

// AudioOutputStats is a snapshot of the output's telemetry.
type AudioOutputStats struct {
	PendingChunks   int           // Chunks waiting for a device buffer
	PendingDuration time.Duration // Audio not yet played (pending + queued)
	QueuedBuffers   int           // Buffers in the device queue
	FreeBuffers     int
	BuffersPlayed   uint64
	Underruns       uint64
	UploadErrors    uint64
	Started         bool
	Paused          bool
}

// AudioOutput feeds decoded chunks into an AudioDevice from its own drain
// goroutine. Enqueue never blocks on the device and never drops a chunk.
type AudioOutput struct {
	config AudioOutputConfig
	log    *slog.Logger

	// Device state, guarded by devMu
	devMu      sync.Mutex
	dev        AudioDevice
	free       []uint32
	bufDur     map[uint32]time.Duration
	started    bool
	paused     bool
	endOfInput bool

	// Pending chunks, guarded by pendMu
	pendMu  sync.Mutex
	pending []AudioChunk

	pendingDur atomic.Int64
	queuedDur  atomic.Int64

	gainBits  atomic.Uint32
	gainDirty atomic.Bool

	buffersPlayed atomic.Uint64
	underruns     atomic.Uint64
	uploadErrors  atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewAudioOutput allocates the device buffer pool and starts the drain loop.
// The output owns dev and closes it on Close.
func NewAudioOutput(dev AudioDevice, config AudioOutputConfig, logger *slog.Logger) (*AudioOutput, error) {
	if config.Buffers <= 0 {
		config.Buffers = 16
	}
	if config.Prebuffer <= 0 {
		config.Prebuffer = 4
	}
	if config.Prebuffer > config.Buffers {
		config.Prebuffer = config.Buffers
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	ids, err := dev.CreateBuffers(config.Buffers)
	if err != nil {
		return nil, fmt.Errorf("create audio buffers: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &AudioOutput{
		config: config,
		log:    logger.With("component", "audio_output", "device", dev.Provider().String()),
		dev:    dev,
		free:   ids,
		bufDur: make(map[uint32]time.Duration, len(ids)),
		ctx:    ctx,
		cancel: cancel,
	}
	o.gainBits.Store(math.Float32bits(1))

	o.wg.Add(1)
	go o.drainLoop()

	return o, nil
}

// Enqueue appends a chunk for playback. The output takes ownership of
// chunk.Data.
func (o *AudioOutput) Enqueue(chunk AudioChunk) {
	if len(chunk.Data) == 0 || o.closed.Load() {
		return
	}
	o.pendMu.Lock()
	o.pending = append(o.pending, chunk)
	o.pendingDur.Add(int64(chunk.Duration()))
	o.pendMu.Unlock()
}

// EndOfInput signals that no more chunks will arrive, so a short tail
// below the prebuffer threshold still starts playing.
func (o *AudioOutput) EndOfInput() {
	o.devMu.Lock()
	o.endOfInput = true
	o.devMu.Unlock()
}

// Pause pauses the device and stops submitting buffers.
func (o *AudioOutput) Pause() {
	o.devMu.Lock()
	defer o.devMu.Unlock()
	if o.paused {
		return
	}
	o.paused = true
	if err := o.dev.Pause(); err != nil {
		o.log.Warn("audio pause failed", "error", err)
	}
}

// Resume restarts a paused output.
func (o *AudioOutput) Resume() {
	o.devMu.Lock()
	defer o.devMu.Unlock()
	if !o.paused {
		return
	}
	o.paused = false
	if o.started && o.dev.Queued() > o.dev.Processed() {
		if err := o.dev.Play(); err != nil {
			o.log.Warn("audio resume failed", "error", err)
		}
	}
}

// Flush drops pending chunks, stops the device and reclaims every queued
// buffer. The next chunks prebuffer again before playback starts. The pause
// state is kept.
func (o *AudioOutput) Flush() {
	o.pendMu.Lock()
	o.pending = nil
	o.pendingDur.Store(0)
	o.pendMu.Unlock()

	o.devMu.Lock()
	defer o.devMu.Unlock()

	if err := o.dev.Stop(); err != nil {
		o.log.Warn("audio stop failed", "error", err)
	}
	o.reclaim()
	o.started = false
	o.endOfInput = false
	o.queuedDur.Store(0)
}

// SetVolume sets the gain from a 0-100 volume, applied on the next poll.
func (o *AudioOutput) SetVolume(volume int) {
	volume = clampVolume(volume)
	o.gainBits.Store(math.Float32bits(float32(volume) / 100))
	o.gainDirty.Store(true)
}

// PendingDuration returns the audio accepted but not yet played.
func (o *AudioOutput) PendingDuration() time.Duration {
	return time.Duration(o.pendingDur.Load() + o.queuedDur.Load())
}

// Drained reports whether end of input was signalled and everything played.
func (o *AudioOutput) Drained() bool {
	if o.closed.Load() {
		return true
	}
	o.pendMu.Lock()
	pending := len(o.pending)
	o.pendMu.Unlock()

	o.devMu.Lock()
	defer o.devMu.Unlock()
	return o.endOfInput && pending == 0 && o.dev.Queued() == 0
}

// Stats returns a telemetry snapshot.
func (o *AudioOutput) Stats() AudioOutputStats {
	o.pendMu.Lock()
	pending := len(o.pending)
	o.pendMu.Unlock()

	o.devMu.Lock()
	queued := 0
	if !o.closed.Load() {
		queued = o.dev.Queued()
	}
	free := len(o.free)
	started, paused := o.started, o.paused
	o.devMu.Unlock()

	return AudioOutputStats{
		PendingChunks:   pending,
		PendingDuration: o.PendingDuration(),
		QueuedBuffers:   queued,
		FreeBuffers:     free,
		BuffersPlayed:   o.buffersPlayed.Load(),
		Underruns:       o.underruns.Load(),
		UploadErrors:    o.uploadErrors.Load(),
		Started:         started,
		Paused:          paused,
	}
}

// Close stops the drain loop and closes the device. Idempotent.
func (o *AudioOutput) Close() error {
	if !o.closed.CompareAndSwap(false, true) {
		return nil
	}
	o.cancel()
	o.wg.Wait()

	o.devMu.Lock()
	defer o.devMu.Unlock()
	o.dev.Stop()
	return o.dev.Close()
}

func (o *AudioOutput) drainLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.poll()
		}
	}
}

// poll runs one drain iteration: gain, reclaim, upload, start/restart.
func (o *AudioOutput) poll() {
	o.devMu.Lock()
	defer o.devMu.Unlock()

	if o.gainDirty.Swap(false) {
		if err := o.dev.SetGain(math.Float32frombits(o.gainBits.Load())); err != nil {
			o.log.Debug("set gain failed", "error", err)
		}
	}

	o.reclaim()
	if o.paused {
		return
	}

	for len(o.free) > 0 {
		chunk, ok := o.popPending()
		if !ok {
			break
		}
		id := o.free[len(o.free)-1]
		if err := o.dev.Upload(id, chunk.Data, chunk.SampleRate); err != nil {
			o.uploadErrors.Add(1)
			o.log.Debug("audio upload failed", "error", err)
			continue
		}
		if err := o.dev.Queue(id); err != nil {
			o.uploadErrors.Add(1)
			o.log.Debug("audio queue failed", "error", err)
			continue
		}
		o.free = o.free[:len(o.free)-1]
		d := chunk.Duration()
		o.bufDur[id] = d
		o.queuedDur.Add(int64(d))
	}

	queued := o.dev.Queued()
	if queued == 0 || o.dev.Playing() {
		return
	}

	if !o.started {
		o.pendMu.Lock()
		tail := o.endOfInput && len(o.pending) == 0
		o.pendMu.Unlock()
		if queued < o.config.Prebuffer && !tail {
			return
		}
		o.started = true
	} else {
		o.underruns.Add(1)
		o.log.Debug("audio underrun, restarting", "queued", queued)
	}
	if err := o.dev.Play(); err != nil {
		o.log.Warn("audio play failed", "error", err)
	}
}

// reclaim moves processed buffers back to the free list. Caller holds devMu.
func (o *AudioOutput) reclaim() {
	n := o.dev.Processed()
	if n <= 0 {
		return
	}
	ids, err := o.dev.Unqueue(n)
	if err != nil {
		o.log.Debug("audio unqueue failed", "error", err)
		return
	}
	for _, id := range ids {
		o.queuedDur.Add(-int64(o.bufDur[id]))
		delete(o.bufDur, id)
		o.free = append(o.free, id)
	}
	o.buffersPlayed.Add(uint64(len(ids)))
}

func (o *AudioOutput) popPending() (AudioChunk, bool) {
	o.pendMu.Lock()
	defer o.pendMu.Unlock()
	if len(o.pending) == 0 {
		return AudioChunk{}, false
	}
	c := o.pending[0]
	o.pending[0] = AudioChunk{}
	o.pending = o.pending[1:]
	o.pendingDur.Add(-int64(c.Duration()))
	return c, true
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
