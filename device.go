package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// ErrDeviceUnavailable is returned when no audio output can be opened.
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// AudioDevice is a queued-buffer audio output. Buffers carry interleaved
// s16 stereo; the device plays queued buffers in order and reports the
// ones it finished as processed.
type AudioDevice interface {
	io.Closer

	Provider() Provider

	// CreateBuffers allocates n device buffers and returns their ids.
	CreateBuffers(n int) ([]uint32, error)

	// Upload fills a buffer that is not queued.
	Upload(buf uint32, pcm []byte, sampleRate int) error

	// Queue appends buffers to the play queue.
	Queue(bufs ...uint32) error

	// Unqueue removes n processed buffers from the head of the queue.
	Unqueue(n int) ([]uint32, error)

	// Processed returns the number of queued buffers that finished playing.
	Processed() int

	// Queued returns the number of buffers in the queue, processed or not.
	Queued() int

	// Playing reports whether the device is currently consuming buffers.
	// A device that runs out of queued data stops by itself.
	Playing() bool

	Play() error
	Pause() error

	// Stop halts playback and marks every queued buffer processed.
	Stop() error

	// SetGain sets the output gain (0 = mute, 1 = unity).
	SetGain(gain float32) error
}

// AudioDeviceFactory opens an audio device. An empty name selects the
// provider's default output.
type AudioDeviceFactory func(name string, logger *slog.Logger) (AudioDevice, error)

var (
	deviceFactoriesMu sync.RWMutex
	deviceFactories   = make(map[Provider]AudioDeviceFactory)
)

// RegisterAudioDevice registers a device implementation.
func RegisterAudioDevice(p Provider, factory AudioDeviceFactory) {
	deviceFactoriesMu.Lock()
	defer deviceFactoriesMu.Unlock()
	deviceFactories[p] = factory
	setProviderAvailable(p)
}

// OpenAudioDevice opens output name (empty = default) of the requested
// provider. ProviderAuto tries OpenAL and falls back to the null device.
func OpenAudioDevice(p Provider, name string, logger *slog.Logger) (AudioDevice, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if p != ProviderAuto {
		return openDevice(p, name, logger)
	}

	dev, err := openDevice(ProviderOpenAL, name, logger)
	if err == nil {
		return dev, nil
	}
	logger.Warn("audio device unavailable, using null output", "provider", ProviderOpenAL, "device", name, "error", err)
	return openDevice(ProviderNullAudio, "", logger)
}

func openDevice(p Provider, name string, logger *slog.Logger) (AudioDevice, error) {
	deviceFactoriesMu.RLock()
	factory, ok := deviceFactories[p]
	deviceFactoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s not registered", ErrDeviceUnavailable, p)
	}
	dev, err := factory(name, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, p, err)
	}
	return dev, nil
}
