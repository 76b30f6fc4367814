package playback

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// PatternType defines the type of test pattern to generate.
type PatternType int

const (
	PatternColorBars    PatternType = iota // SMPTE color bars
	PatternGradient                        // Horizontal gradient
	PatternCheckerboard                    // Checkerboard pattern
	PatternSolidColor                      // Solid color
	PatternNoise                           // Random noise
	PatternMovingBox                       // Moving box (animated)
)

func (p PatternType) String() string {
	switch p {
	case PatternColorBars:
		return "ColorBars"
	case PatternGradient:
		return "Gradient"
	case PatternCheckerboard:
		return "Checkerboard"
	case PatternSolidColor:
		return "SolidColor"
	case PatternNoise:
		return "Noise"
	case PatternMovingBox:
		return "MovingBox"
	default:
		return "Unknown"
	}
}

// ParsePatternType maps a short name ("bars", "gradient", "checker",
// "solid", "noise", "box") to a PatternType.
func ParsePatternType(name string) (PatternType, error) {
	switch strings.ToLower(name) {
	case "", "bars", "colorbars":
		return PatternColorBars, nil
	case "gradient":
		return PatternGradient, nil
	case "checker", "checkerboard":
		return PatternCheckerboard, nil
	case "solid", "solidcolor":
		return PatternSolidColor, nil
	case "noise":
		return PatternNoise, nil
	case "box", "movingbox":
		return PatternMovingBox, nil
	default:
		return PatternColorBars, fmt.Errorf("unknown pattern %q", name)
	}
}

// patternGenerator renders I420 test patterns. Output depends only on the
// frame number, so seeking regenerates the same picture.
type patternGenerator struct {
	width, height int
	pattern       PatternType
	checkerSize   int
	solid         [3]uint8

	frameData []byte
	yPlane    []byte
	uPlane    []byte
	vPlane    []byte
	static    bool // Static pattern already rendered
}

func newPatternGenerator(width, height int, pattern PatternType) *patternGenerator {
	ySize := width * height
	uvSize := (width / 2) * (height / 2)
	frameData := make([]byte, ySize+uvSize*2)

	return &patternGenerator{
		width:       width,
		height:      height,
		pattern:     pattern,
		checkerSize: 32,
		solid:       [3]uint8{0, 128, 255},
		frameData:   frameData,
		yPlane:      frameData[:ySize],
		uPlane:      frameData[ySize : ySize+uvSize],
		vPlane:      frameData[ySize+uvSize:],
	}
}

// generate renders frameNum and returns the planes and strides.
func (g *patternGenerator) generate(frameNum uint64) ([][]byte, []int) {
	switch g.pattern {
	case PatternNoise:
		g.generateNoise(frameNum)
	case PatternMovingBox:
		g.generateMovingBox(frameNum)
	default:
		if !g.static {
			g.generateStatic()
			g.static = true
		}
	}
	return [][]byte{g.yPlane, g.uPlane, g.vPlane}, []int{g.width, g.width / 2, g.width / 2}
}

func (g *patternGenerator) generateStatic() {
	w, h := g.width, g.height
	barWidth := max(w/8, 1)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var yVal, u, v uint8
			switch g.pattern {
			case PatternGradient:
				yVal, u, v = uint8((x*255)/w), 128, 128
			case PatternCheckerboard:
				yVal, u, v = 16, 128, 128
				if ((x/g.checkerSize)+(y/g.checkerSize))%2 == 0 {
					yVal = 235
				}
			case PatternSolidColor:
				yVal, u, v = rgbToYUV(g.solid[0], g.solid[1], g.solid[2])
			default:
				rgb := colorBarsRGB[min(x/barWidth, 7)]
				yVal, u, v = rgbToYUV(rgb[0], rgb[1], rgb[2])
			}

			g.yPlane[y*w+x] = yVal
			if x%2 == 0 && y%2 == 0 {
				uvIdx := (y/2)*(w/2) + (x / 2)
				if uvIdx < len(g.uPlane) {
					g.uPlane[uvIdx] = u
					g.vPlane[uvIdx] = v
				}
			}
		}
	}
}

// SMPTE color bars (simplified 8-bar pattern)
var colorBarsRGB = [][3]uint8{
	{192, 192, 192}, // White (75%)
	{192, 192, 0},   // Yellow
	{0, 192, 192},   // Cyan
	{0, 192, 0},     // Green
	{192, 0, 192},   // Magenta
	{192, 0, 0},     // Red
	{0, 0, 192},     // Blue
	{16, 16, 16},    // Black
}

func (g *patternGenerator) generateNoise(frameNum uint64) {
	// xorshift64 seeded by frame number
	state := frameNum*0x9E3779B97F4A7C15 + 1
	for i := range g.yPlane {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		g.yPlane[i] = uint8(state)
	}
	for i := range g.uPlane {
		g.uPlane[i] = 128
		g.vPlane[i] = 128
	}
}

func (g *patternGenerator) generateMovingBox(frameNum uint64) {
	w, h := g.width, g.height

	for i := range g.yPlane {
		g.yPlane[i] = 16
	}
	for i := range g.uPlane {
		g.uPlane[i] = 128
		g.vPlane[i] = 128
	}

	// Box moves in a circle
	boxSize := max(min(w, h)/5, 2)
	radius := float64(min(w, h)) / 4
	angle := float64(frameNum) * 0.05
	boxX := w/2 + int(radius*math.Cos(angle)) - boxSize/2
	boxY := h/2 + int(radius*math.Sin(angle)) - boxSize/2

	for y := max(boxY, 0); y < boxY+boxSize && y < h; y++ {
		for x := max(boxX, 0); x < boxX+boxSize && x < w; x++ {
			g.yPlane[y*w+x] = 235
		}
	}
}

// rgbToYUV converts RGB to YUV (BT.601)
func rgbToYUV(r, g, b uint8) (y, u, v uint8) {
	yf := 16.0 + 65.481*float64(r)/255.0 + 128.553*float64(g)/255.0 + 24.966*float64(b)/255.0
	uf := 128.0 - 37.797*float64(r)/255.0 - 74.203*float64(g)/255.0 + 112.0*float64(b)/255.0
	vf := 128.0 + 112.0*float64(r)/255.0 - 93.786*float64(g)/255.0 - 18.214*float64(b)/255.0

	y = uint8(clamp(yf, 16, 235))
	u = uint8(clamp(uf, 16, 240))
	v = uint8(clamp(vf, 16, 240))
	return
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AudioPatternType defines the type of audio test pattern.
type AudioPatternType int

const (
	AudioPatternSilence    AudioPatternType = iota // Silence
	AudioPatternSineWave                           // Sine wave tone
	AudioPatternSquareWave                         // Square wave tone
	AudioPatternWhiteNoise                         // White noise
	AudioPatternSweep                              // Frequency sweep
)

func (p AudioPatternType) String() string {
	switch p {
	case AudioPatternSilence:
		return "Silence"
	case AudioPatternSineWave:
		return "SineWave"
	case AudioPatternSquareWave:
		return "SquareWave"
	case AudioPatternWhiteNoise:
		return "WhiteNoise"
	case AudioPatternSweep:
		return "Sweep"
	default:
		return "Unknown"
	}
}

// ParseAudioPatternType maps "silence", "sine", "square", "noise" or
// "sweep" to an AudioPatternType.
func ParseAudioPatternType(name string) (AudioPatternType, error) {
	switch strings.ToLower(name) {
	case "silence":
		return AudioPatternSilence, nil
	case "", "sine", "sinewave":
		return AudioPatternSineWave, nil
	case "square", "squarewave":
		return AudioPatternSquareWave, nil
	case "noise", "whitenoise":
		return AudioPatternWhiteNoise, nil
	case "sweep":
		return AudioPatternSweep, nil
	default:
		return AudioPatternSineWave, fmt.Errorf("unknown audio pattern %q", name)
	}
}

// toneGenerator renders test audio in any SampleFormat. The waveform is a
// function of the absolute sample index, so seek lands on the same phase.
type toneGenerator struct {
	sampleRate int
	channels   int
	format     SampleFormat
	pattern    AudioPatternType
	frequency  float64
	amplitude  float64

	sweepStartHz  float64
	sweepEndHz    float64
	sweepDuration time.Duration
}

func newToneGenerator(sampleRate, channels int, format SampleFormat, pattern AudioPatternType) *toneGenerator {
	return &toneGenerator{
		sampleRate:    sampleRate,
		channels:      channels,
		format:        format,
		pattern:       pattern,
		frequency:     440.0, // A4
		amplitude:     0.5,
		sweepStartHz:  200,
		sweepEndHz:    2000,
		sweepDuration: 2 * time.Second,
	}
}

// frameSize returns the bytes needed for n samples per channel, and the
// plane count.
func (g *toneGenerator) frameSize(n int) (planeBytes, planes int) {
	bps := g.format.BytesPerSample()
	if g.format.Planar() {
		return n * bps, g.channels
	}
	return n * bps * g.channels, 1
}

// fill renders n samples per channel starting at absolute sample start.
func (g *toneGenerator) fill(planes [][]byte, start int64, n int) {
	bps := g.format.BytesPerSample()
	for i := 0; i < n; i++ {
		v := g.sample(start + int64(i))
		for ch := 0; ch < g.channels; ch++ {
			// Alternate channels get a slightly lower level so down-mixing is observable.
			cv := v
			if ch%2 == 1 {
				cv *= 0.8
			}
			if g.format.Planar() {
				encodeSample(planes[ch][i*bps:], g.format, cv)
			} else {
				encodeSample(planes[0][(i*g.channels+ch)*bps:], g.format, cv)
			}
		}
	}
}

func (g *toneGenerator) sample(idx int64) float64 {
	t := float64(idx) / float64(g.sampleRate)
	switch g.pattern {
	case AudioPatternSineWave:
		return g.amplitude * math.Sin(2*math.Pi*g.frequency*t)
	case AudioPatternSquareWave:
		if math.Sin(2*math.Pi*g.frequency*t) >= 0 {
			return g.amplitude
		}
		return -g.amplitude
	case AudioPatternWhiteNoise:
		state := uint64(idx)*0x9E3779B97F4A7C15 + 1
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		return g.amplitude * ((float64(state)/float64(^uint64(0)))*2.0 - 1.0)
	case AudioPatternSweep:
		// Linear chirp, restarting every sweepDuration
		d := g.sweepDuration.Seconds()
		ts := math.Mod(t, d)
		k := (g.sweepEndHz - g.sweepStartHz) / d
		return g.amplitude * math.Sin(2*math.Pi*(g.sweepStartHz*ts+k*ts*ts/2))
	default:
		return 0
	}
}

// encodeSample writes v in [-1, 1] as one little-endian sample.
func encodeSample(b []byte, format SampleFormat, v float64) {
	switch format {
	case SampleFormatU8, SampleFormatU8P:
		b[0] = uint8(clamp(v*128+128, 0, 255))
	case SampleFormatS16, SampleFormatS16P:
		binary.LittleEndian.PutUint16(b, uint16(int16(clamp(v*32767, -32768, 32767))))
	case SampleFormatS32, SampleFormatS32P:
		binary.LittleEndian.PutUint32(b, uint32(int32(clamp(v*2147483647, -2147483648, 2147483647))))
	case SampleFormatF32, SampleFormatF32P:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case SampleFormatF64, SampleFormatF64P:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	}
}
