package playback

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func TestParsePatternType(t *testing.T) {
	tests := []struct {
		name string
		want PatternType
	}{
		{"", PatternColorBars},
		{"bars", PatternColorBars},
		{"Gradient", PatternGradient},
		{"checker", PatternCheckerboard},
		{"solidcolor", PatternSolidColor},
		{"noise", PatternNoise},
		{"movingbox", PatternMovingBox},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePatternType(tt.name)
			if err != nil || got != tt.want {
				t.Errorf("ParsePatternType(%q) = %v, %v; want %v", tt.name, got, err, tt.want)
			}
		})
	}

	if _, err := ParsePatternType("plaid"); err == nil {
		t.Error("Expected error for unknown pattern")
	}
}

func TestParseAudioPatternType(t *testing.T) {
	tests := []struct {
		name string
		want AudioPatternType
	}{
		{"", AudioPatternSineWave},
		{"silence", AudioPatternSilence},
		{"squarewave", AudioPatternSquareWave},
		{"whitenoise", AudioPatternWhiteNoise},
		{"SWEEP", AudioPatternSweep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAudioPatternType(tt.name)
			if err != nil || got != tt.want {
				t.Errorf("ParseAudioPatternType(%q) = %v, %v; want %v", tt.name, got, err, tt.want)
			}
		})
	}

	if _, err := ParseAudioPatternType("pink"); err == nil {
		t.Error("Expected error for unknown audio pattern")
	}
}

func TestPatternGenerator_Deterministic(t *testing.T) {
	patterns := []PatternType{PatternColorBars, PatternGradient, PatternCheckerboard, PatternSolidColor, PatternNoise, PatternMovingBox}

	for _, p := range patterns {
		t.Run(p.String(), func(t *testing.T) {
			a := newPatternGenerator(64, 48, p)
			b := newPatternGenerator(64, 48, p)

			planesA, strides := a.generate(7)
			if len(planesA) != 3 || strides[0] != 64 || strides[1] != 32 {
				t.Fatalf("unexpected layout: %d planes, strides %v", len(planesA), strides)
			}
			if len(planesA[0]) != 64*48 || len(planesA[1]) != 32*24 {
				t.Fatalf("unexpected plane sizes %d, %d", len(planesA[0]), len(planesA[1]))
			}
			wantY := bytes.Clone(planesA[0])

			b.generate(3)
			planesB, _ := b.generate(7)
			if !bytes.Equal(planesB[0], wantY) {
				t.Error("same frame number rendered differently")
			}
		})
	}
}

func TestPatternGenerator_MovingBoxAnimates(t *testing.T) {
	g := newPatternGenerator(64, 64, PatternMovingBox)
	first, _ := g.generate(0)
	y0 := bytes.Clone(first[0])
	second, _ := g.generate(20)
	if bytes.Equal(y0, second[0]) {
		t.Error("moving box did not move")
	}
}

func TestToneGenerator_PhaseFollowsSampleIndex(t *testing.T) {
	g := newToneGenerator(48000, 2, SampleFormatF32, AudioPatternSineWave)

	planeBytes, planes := g.frameSize(100)
	if planes != 1 || planeBytes != 100*4*2 {
		t.Fatalf("frameSize = %d, %d", planeBytes, planes)
	}

	whole := [][]byte{make([]byte, planeBytes)}
	g.fill(whole, 0, 100)

	// Rendering the second half on its own lands on the same samples.
	half := [][]byte{make([]byte, planeBytes/2)}
	g.fill(half, 50, 50)
	if !bytes.Equal(half[0], whole[0][planeBytes/2:]) {
		t.Error("tone phase depends on buffer boundaries")
	}

	left := math.Float32frombits(binary.LittleEndian.Uint32(whole[0][8*10:]))
	right := math.Float32frombits(binary.LittleEndian.Uint32(whole[0][8*10+4:]))
	if math.Abs(float64(right-left*0.8)) > 1e-6 {
		t.Errorf("right channel %v, want 0.8 * %v", right, left)
	}
}

func TestToneGenerator_Planar(t *testing.T) {
	g := newToneGenerator(8000, 3, SampleFormatS16P, AudioPatternSquareWave)
	planeBytes, planes := g.frameSize(10)
	if planes != 3 || planeBytes != 20 {
		t.Fatalf("frameSize = %d, %d", planeBytes, planes)
	}

	buf := make([][]byte, planes)
	for i := range buf {
		buf[i] = make([]byte, planeBytes)
	}
	g.fill(buf, 1, 1)
	if got := int16(binary.LittleEndian.Uint16(buf[0])); got != 16383 {
		t.Errorf("square sample = %d", got)
	}
}

func TestRGBToYUV(t *testing.T) {
	y, u, v := rgbToYUV(0, 0, 0)
	if y != 16 || u != 128 || v != 128 {
		t.Errorf("black = %d,%d,%d", y, u, v)
	}
	y, _, _ = rgbToYUV(255, 255, 255)
	if y < 234 {
		t.Errorf("white luma = %d, want 235", y)
	}
}
