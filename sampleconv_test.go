package playback

import (
	"encoding/binary"
	"math"
	"testing"
)

func s16Bytes(v ...int16) []byte {
	b := make([]byte, 0, len(v)*2)
	for _, s := range v {
		b = binary.LittleEndian.AppendUint16(b, uint16(s))
	}
	return b
}

func f32Bytes(v ...float32) []byte {
	b := make([]byte, 0, len(v)*4)
	for _, s := range v {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(s))
	}
	return b
}

func approx(a, b float32) bool {
	return math.Abs(float64(a-b)) < 0.002
}

func TestToStereoFloat(t *testing.T) {
	tests := []struct {
		name     string
		planes   [][]byte
		format   SampleFormat
		channels int
		samples  int
		want     []float32
	}{
		{
			name:     "mono s16 duplicated",
			planes:   [][]byte{s16Bytes(16384, -16384)},
			format:   SampleFormatS16,
			channels: 1,
			samples:  2,
			want:     []float32{0.5, 0.5, -0.5, -0.5},
		},
		{
			name:     "stereo packed s16",
			planes:   [][]byte{s16Bytes(16384, -16384)},
			format:   SampleFormatS16,
			channels: 2,
			samples:  1,
			want:     []float32{0.5, -0.5},
		},
		{
			name:     "stereo planar float",
			planes:   [][]byte{f32Bytes(0.25, 0.75), f32Bytes(-0.25, -0.75)},
			format:   SampleFormatF32P,
			channels: 2,
			samples:  2,
			want:     []float32{0.25, -0.25, 0.75, -0.75},
		},
		{
			name:     "u8 midpoint is silence",
			planes:   [][]byte{{128, 128}},
			format:   SampleFormatU8,
			channels: 2,
			samples:  1,
			want:     []float32{0, 0},
		},
		{
			name:     "5.1 front left only",
			planes:   [][]byte{f32Bytes(1, 0, 0, 0, 0, 0)},
			format:   SampleFormatF32,
			channels: 6,
			samples:  1,
			want:     []float32{mixNorm, 0},
		},
		{
			name:     "5.1 center to both",
			planes:   [][]byte{f32Bytes(0, 0, 1, 0, 0, 0)},
			format:   SampleFormatF32,
			channels: 6,
			samples:  1,
			want:     []float32{mixCenter * mixNorm, mixCenter * mixNorm},
		},
		{
			name:     "4 channel odd even split",
			planes:   [][]byte{f32Bytes(0.2, 0.4, 0.6, 0.8)},
			format:   SampleFormatF32,
			channels: 4,
			samples:  1,
			want:     []float32{0.4, 0.6},
		},
		{
			name:     "float clamped",
			planes:   [][]byte{f32Bytes(2, -3)},
			format:   SampleFormatF32,
			channels: 2,
			samples:  1,
			want:     []float32{1, -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToStereoFloat(nil, tt.planes, tt.format, tt.channels, tt.samples)
			if err != nil {
				t.Fatalf("ToStereoFloat: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d samples, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if !approx(got[i], tt.want[i]) {
					t.Errorf("sample %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestToStereoFloat_Errors(t *testing.T) {
	tests := []struct {
		name     string
		planes   [][]byte
		format   SampleFormat
		channels int
	}{
		{"unknown format", [][]byte{{0, 0}}, SampleFormatNone, 1},
		{"no channels", [][]byte{{0, 0}}, SampleFormatS16, 0},
		{"short packed", [][]byte{{0, 0}}, SampleFormatS16, 2},
		{"missing plane", [][]byte{{0, 0}}, SampleFormatS16P, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ToStereoFloat(nil, tt.planes, tt.format, tt.channels, 1); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestFloatToS16(t *testing.T) {
	got := FloatToS16(nil, []float32{0, 1, -1, 2, float32(math.NaN())})
	want := []int16{0, 32767, -32767, 32767, 0}
	for i, w := range want {
		if s := int16(binary.LittleEndian.Uint16(got[i*2:])); s != w {
			t.Errorf("sample %d = %d, want %d", i, s, w)
		}
	}
}

func TestStereoConverter_ReusesBuffers(t *testing.T) {
	var c StereoConverter
	f := &RawFrame{
		SampleFormat: SampleFormatS32P,
		Channels:     1,
		Samples:      3,
		Planes:       [][]byte{make([]byte, 12)},
	}

	out, err := c.Convert(f)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(out) != 3*2*2 {
		t.Errorf("len = %d, want 12", len(out))
	}
	first := &out[0]

	out, _ = c.Convert(f)
	if &out[0] != first {
		t.Error("Expected the output buffer to be reused")
	}
}
