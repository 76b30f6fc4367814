package playback

import (
	"testing"
	"time"
)

func TestConfig_WithDefaults(t *testing.T) {
	c := Config{AudioDevice: ProviderNullAudio, MaxFramesInFlight: 2}.withDefaults()

	if c.MaxFramesInFlight != 2 {
		t.Errorf("MaxFramesInFlight = %d, want explicit 2", c.MaxFramesInFlight)
	}
	if c.OutputFormat != PixelFormatBGRA32 {
		t.Errorf("OutputFormat = %v, want BGRA32", c.OutputFormat)
	}
	if c.StopTimeout != 2*time.Second || c.AudioBuffers != 16 || c.DefaultFrameRate != 25 {
		t.Errorf("defaults not applied: %+v", c)
	}
	if c.Logger == nil {
		t.Error("Expected a default logger")
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"device as backend", func(c *Config) { c.Backend = ProviderOpenAL }},
		{"backend as device", func(c *Config) { c.AudioDevice = ProviderFFmpeg }},
		{"nv12 output", func(c *Config) { c.OutputFormat = PixelFormatNV12 }},
		{"negative size", func(c *Config) { c.OutputWidth = -2 }},
		{"odd size", func(c *Config) { c.OutputWidth, c.OutputHeight = 641, 480 }},
		{"prebuffer above pool", func(c *Config) { c.AudioBuffers, c.AudioPrebuffer = 2, 4 }},
		{"absurd frame rate", func(c *Config) { c.DefaultFrameRate = 5000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(&c)
			if err := c.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("PLAYBACK_BACKEND", "synthetic")
	t.Setenv("PLAYBACK_AUDIO_DEVICE", "null")
	t.Setenv("PLAYBACK_AUDIO_DEVICE_NAME", "speakers")
	t.Setenv("PLAYBACK_NO_AUDIO", "true")
	t.Setenv("PLAYBACK_OUTPUT_FORMAT", "rgba")
	t.Setenv("PLAYBACK_SCALE_MODE", "stretch")
	t.Setenv("PLAYBACK_OUTPUT_WIDTH", "320")
	t.Setenv("PLAYBACK_OUTPUT_HEIGHT", "240")
	t.Setenv("PLAYBACK_MAX_FRAMES_IN_FLIGHT", "8")
	t.Setenv("PLAYBACK_STOP_TIMEOUT", "500ms")
	t.Setenv("PLAYBACK_DEFAULT_FPS", "29.97")

	c, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if c.Backend != ProviderSynthetic || c.AudioDevice != ProviderNullAudio || !c.DisableAudio {
		t.Errorf("providers = %v/%v disable=%v", c.Backend, c.AudioDevice, c.DisableAudio)
	}
	if c.AudioDeviceName != "speakers" {
		t.Errorf("AudioDeviceName = %q", c.AudioDeviceName)
	}
	if c.OutputFormat != PixelFormatRGBA32 || c.ScaleMode != ScaleModeStretch {
		t.Errorf("output = %v mode %v", c.OutputFormat, c.ScaleMode)
	}
	if c.OutputWidth != 320 || c.OutputHeight != 240 || c.MaxFramesInFlight != 8 {
		t.Errorf("sizes = %dx%d cap %d", c.OutputWidth, c.OutputHeight, c.MaxFramesInFlight)
	}
	if c.StopTimeout != 500*time.Millisecond || c.DefaultFrameRate != 29.97 {
		t.Errorf("timeout %v fps %v", c.StopTimeout, c.DefaultFrameRate)
	}
}

func TestConfigFromEnv_Errors(t *testing.T) {
	t.Setenv("PLAYBACK_BACKEND", "vlc")
	t.Setenv("PLAYBACK_OUTPUT_WIDTH", "wide")
	t.Setenv("PLAYBACK_AUDIO_POLL", "soon")
	t.Setenv("PLAYBACK_OUTPUT_FORMAT", "yuv")

	if _, err := ConfigFromEnv(); err == nil {
		t.Error("Expected errors for unparseable variables")
	}
}

func TestParseProvider(t *testing.T) {
	for p := ProviderAuto; p < providerCount; p++ {
		got, err := parseProvider(p.String())
		if err != nil || got != p {
			t.Errorf("parseProvider(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := parseProvider("gstreamer"); err == nil {
		t.Error("Expected error for unknown provider")
	}
}
