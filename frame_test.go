package playback

import (
	"testing"
	"time"
)

func TestPixelFormat_String(t *testing.T) {
	tests := []struct {
		format PixelFormat
		want   string
	}{
		{PixelFormatI420, "I420"},
		{PixelFormatNV12, "NV12"},
		{PixelFormatRGB24, "RGB24"},
		{PixelFormatRGBA32, "RGBA32"},
		{PixelFormatBGRA32, "BGRA32"},
		{PixelFormat(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.format.String(); got != tt.want {
				t.Errorf("PixelFormat.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPixelFormat_PlaneCount(t *testing.T) {
	tests := []struct {
		format PixelFormat
		want   int
	}{
		{PixelFormatI420, 3},
		{PixelFormatNV12, 2},
		{PixelFormatRGB24, 1},
		{PixelFormatRGBA32, 1},
		{PixelFormatBGRA32, 1},
		{PixelFormat(99), 0},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := tt.format.PlaneCount(); got != tt.want {
				t.Errorf("PixelFormat.PlaneCount() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSampleFormat(t *testing.T) {
	tests := []struct {
		name   string
		format SampleFormat
		bytes  int
		planar bool
	}{
		{"u8", SampleFormatU8, 1, false},
		{"s16", SampleFormatS16, 2, false},
		{"s32", SampleFormatS32, 4, false},
		{"flt", SampleFormatF32, 4, false},
		{"dbl", SampleFormatF64, 8, false},
		{"u8p", SampleFormatU8P, 1, true},
		{"s16p", SampleFormatS16P, 2, true},
		{"s32p", SampleFormatS32P, 4, true},
		{"fltp", SampleFormatF32P, 4, true},
		{"dblp", SampleFormatF64P, 8, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseSampleFormat(tt.name); got != tt.format {
				t.Errorf("ParseSampleFormat(%q) = %v, want %v", tt.name, got, tt.format)
			}
			if got := tt.format.BytesPerSample(); got != tt.bytes {
				t.Errorf("BytesPerSample() = %d, want %d", got, tt.bytes)
			}
			if got := tt.format.Planar(); got != tt.planar {
				t.Errorf("Planar() = %v, want %v", got, tt.planar)
			}
		})
	}

	if got := ParseSampleFormat("s24"); got != SampleFormatNone {
		t.Errorf("ParseSampleFormat(s24) = %v, want none", got)
	}
}

func TestRawFrame_Timestamp(t *testing.T) {
	f := &RawFrame{PTS: 100, BestEffortPTS: 90}
	if got := f.Timestamp(); got != 100 {
		t.Errorf("Timestamp() = %d, want 100", got)
	}
	f.PTS = NoPTS
	if got := f.Timestamp(); got != 90 {
		t.Errorf("Timestamp() fallback = %d, want 90", got)
	}
}

func TestRational(t *testing.T) {
	if got := (Rational{Num: 30000, Den: 1001}).Float64(); got < 29.97 || got > 29.98 {
		t.Errorf("Float64() = %v", got)
	}
	if (Rational{Num: 1, Den: 0}).Valid() {
		t.Error("Expected 1/0 to be invalid")
	}
	if got := (Rational{}).Float64(); got != 0 {
		t.Errorf("zero Rational Float64() = %v", got)
	}
}

func TestVideoFrame_ReleaseOnce(t *testing.T) {
	pool := NewFramePool(2, 0, nil)
	if !pool.Reserve() {
		t.Fatal("Reserve failed")
	}
	f, err := pool.NewFrame(16)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}

	f.Release()
	f.Release()

	if f.Data != nil {
		t.Error("Expected Data to be nil after Release")
	}
	if n := pool.InFlight(); n != 0 {
		t.Errorf("InFlight = %d after double release, want 0", n)
	}
}

func TestVideoFrame_Clone(t *testing.T) {
	pool := NewFramePool(1, 0, nil)
	pool.Reserve()
	f, _ := pool.NewFrame(8)
	copy(f.Data, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	f.Width, f.Height, f.Stride = 2, 1, 8
	f.PTS = time.Second

	c := f.Clone()
	f.Release()

	if len(c.Data) != 8 || c.Data[7] != 8 || c.PTS != time.Second {
		t.Errorf("Clone lost data: %+v", c.Data)
	}
	c.Release()
	if n := pool.InFlight(); n != 0 {
		t.Errorf("releasing a clone touched the pool: InFlight = %d", n)
	}
}

func TestAudioChunk_Duration(t *testing.T) {
	c := AudioChunk{SampleRate: 48000, Channels: 2, Samples: 480}
	if got := c.Duration(); got != 10*time.Millisecond {
		t.Errorf("Duration() = %v, want 10ms", got)
	}
	c.SampleRate = 0
	if got := c.Duration(); got != 0 {
		t.Errorf("Duration() with no rate = %v", got)
	}
}

func TestI420Size(t *testing.T) {
	if got := I420Size(640, 480); got != 640*480*3/2 {
		t.Errorf("I420Size(640, 480) = %d", got)
	}
}
