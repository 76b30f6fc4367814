package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config configures a Player.
type Config struct {
	// Backend selects the decoding backend. ProviderAuto picks by URI scheme.
	Backend Provider

	// AudioDevice selects the audio output. ProviderAuto tries OpenAL and
	// falls back to the null device.
	AudioDevice Provider

	// AudioDeviceName selects an output by DeviceInfo.DeviceID (empty =
	// the provider's default). See ListAudioOutputs.
	AudioDeviceName string

	// DisableAudio skips audio stream selection entirely.
	DisableAudio bool

	// Video output
	OutputFormat PixelFormat // BGRA32 (default) or RGBA32
	OutputWidth  int         // 0 = source width
	OutputHeight int         // 0 = source height
	ScaleMode    ScaleMode

	// MaxFramesInFlight caps delivered-but-unreleased video frames.
	MaxFramesInFlight int

	// DefaultFrameRate paces video when the stream reports no rate.
	DefaultFrameRate float64

	// DecoderThreads is passed to video decoders (0 = backend auto).
	DecoderThreads int

	// Audio output
	AudioBuffers        int           // Device buffer pool size
	AudioPrebuffer      int           // Buffers queued before the first start
	AudioPollInterval   time.Duration // Drain loop period
	AudioQueueHighWater time.Duration // Audio-only read throttle

	// Decode loop
	PausePollInterval        time.Duration
	MaxConsecutiveReadErrors int
	DropLogInterval          int // Log a warning every N dropped frames

	// StopTimeout bounds how long Stop waits for the decode loop.
	StopTimeout time.Duration

	// Logger for the player and its components (nil = slog.Default()).
	Logger *slog.Logger
}

// DefaultConfig returns the default player configuration.
func DefaultConfig() Config {
	return Config{
		Backend:                  ProviderAuto,
		AudioDevice:              ProviderAuto,
		OutputFormat:             PixelFormatBGRA32,
		ScaleMode:                ScaleModeFit,
		MaxFramesInFlight:        4,
		DefaultFrameRate:         25,
		AudioBuffers:             16,
		AudioPrebuffer:           4,
		AudioPollInterval:        5 * time.Millisecond,
		AudioQueueHighWater:      500 * time.Millisecond,
		PausePollInterval:        10 * time.Millisecond,
		MaxConsecutiveReadErrors: 32,
		DropLogInterval:          100,
		StopTimeout:              2 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.OutputFormat == PixelFormatI420 {
		c.OutputFormat = d.OutputFormat
	}
	if c.MaxFramesInFlight <= 0 {
		c.MaxFramesInFlight = d.MaxFramesInFlight
	}
	if c.DefaultFrameRate <= 0 {
		c.DefaultFrameRate = d.DefaultFrameRate
	}
	if c.AudioBuffers <= 0 {
		c.AudioBuffers = d.AudioBuffers
	}
	if c.AudioPrebuffer <= 0 {
		c.AudioPrebuffer = d.AudioPrebuffer
	}
	if c.AudioPollInterval <= 0 {
		c.AudioPollInterval = d.AudioPollInterval
	}
	if c.AudioQueueHighWater <= 0 {
		c.AudioQueueHighWater = d.AudioQueueHighWater
	}
	if c.PausePollInterval <= 0 {
		c.PausePollInterval = d.PausePollInterval
	}
	if c.MaxConsecutiveReadErrors <= 0 {
		c.MaxConsecutiveReadErrors = d.MaxConsecutiveReadErrors
	}
	if c.DropLogInterval <= 0 {
		c.DropLogInterval = d.DropLogInterval
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = d.StopTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Validate reports configuration values that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.Backend != ProviderAuto && !c.Backend.IsBackend() {
		errs = append(errs, fmt.Errorf("backend %s is not a decoding backend", c.Backend))
	}
	if c.AudioDevice != ProviderAuto && !c.AudioDevice.IsDevice() {
		errs = append(errs, fmt.Errorf("audio device %s is not an output device", c.AudioDevice))
	}
	switch c.OutputFormat {
	case PixelFormatI420, PixelFormatBGRA32, PixelFormatRGBA32:
	default:
		errs = append(errs, fmt.Errorf("output format %s not supported", c.OutputFormat))
	}
	if c.OutputWidth < 0 || c.OutputHeight < 0 {
		errs = append(errs, fmt.Errorf("negative output size %dx%d", c.OutputWidth, c.OutputHeight))
	}
	if c.OutputWidth%2 != 0 || c.OutputHeight%2 != 0 {
		errs = append(errs, fmt.Errorf("output size %dx%d must be even", c.OutputWidth, c.OutputHeight))
	}
	if c.AudioBuffers > 0 && c.AudioPrebuffer > c.AudioBuffers {
		errs = append(errs, fmt.Errorf("audio prebuffer %d exceeds buffer pool %d", c.AudioPrebuffer, c.AudioBuffers))
	}
	if c.DefaultFrameRate < 0 || c.DefaultFrameRate > 1000 {
		errs = append(errs, fmt.Errorf("default frame rate %v out of range", c.DefaultFrameRate))
	}
	return errors.Join(errs...)
}

// ConfigFromEnv returns DefaultConfig overlaid with PLAYBACK_* environment
// variables. Unparseable values are reported together.
func ConfigFromEnv() (Config, error) {
	c := DefaultConfig()
	var errs []error

	if v := envOr("PLAYBACK_BACKEND", ""); v != "" {
		p, err := parseProvider(v)
		if err != nil {
			errs = append(errs, err)
		}
		c.Backend = p
	}
	if v := envOr("PLAYBACK_AUDIO_DEVICE", ""); v != "" {
		p, err := parseProvider(v)
		if err != nil {
			errs = append(errs, err)
		}
		c.AudioDevice = p
	}
	c.AudioDeviceName = os.Getenv("PLAYBACK_AUDIO_DEVICE_NAME")
	c.DisableAudio = envBool("PLAYBACK_NO_AUDIO", &errs)

	switch strings.ToLower(envOr("PLAYBACK_OUTPUT_FORMAT", "bgra")) {
	case "bgra", "bgra32":
		c.OutputFormat = PixelFormatBGRA32
	case "rgba", "rgba32":
		c.OutputFormat = PixelFormatRGBA32
	default:
		errs = append(errs, fmt.Errorf("PLAYBACK_OUTPUT_FORMAT: unknown format %q", os.Getenv("PLAYBACK_OUTPUT_FORMAT")))
	}
	mode, err := ParseScaleMode(envOr("PLAYBACK_SCALE_MODE", "fit"))
	if err != nil {
		errs = append(errs, fmt.Errorf("PLAYBACK_SCALE_MODE: %w", err))
	}
	c.ScaleMode = mode

	envInt("PLAYBACK_OUTPUT_WIDTH", &c.OutputWidth, &errs)
	envInt("PLAYBACK_OUTPUT_HEIGHT", &c.OutputHeight, &errs)
	envInt("PLAYBACK_MAX_FRAMES_IN_FLIGHT", &c.MaxFramesInFlight, &errs)
	envInt("PLAYBACK_DECODER_THREADS", &c.DecoderThreads, &errs)
	envInt("PLAYBACK_AUDIO_BUFFERS", &c.AudioBuffers, &errs)
	envInt("PLAYBACK_AUDIO_PREBUFFER", &c.AudioPrebuffer, &errs)
	envInt("PLAYBACK_DROP_LOG_INTERVAL", &c.DropLogInterval, &errs)
	envDuration("PLAYBACK_AUDIO_POLL", &c.AudioPollInterval, &errs)
	envDuration("PLAYBACK_AUDIO_HIGH_WATER", &c.AudioQueueHighWater, &errs)
	envDuration("PLAYBACK_PAUSE_POLL", &c.PausePollInterval, &errs)
	envDuration("PLAYBACK_STOP_TIMEOUT", &c.StopTimeout, &errs)

	if v := envOr("PLAYBACK_DEFAULT_FPS", ""); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("PLAYBACK_DEFAULT_FPS: %w", err))
		} else {
			c.DefaultFrameRate = f
		}
	}

	return c, errors.Join(errs...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, dst *int, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func envDuration(key string, dst *time.Duration, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}

func envBool(key string, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
	}
	return b
}

func parseProvider(name string) (Provider, error) {
	for p := ProviderAuto; p < providerCount; p++ {
		if strings.EqualFold(p.String(), name) {
			return p, nil
		}
	}
	return ProviderAuto, fmt.Errorf("unknown provider %q", name)
}
