// Core frame and sample types used across the playback package.
package playback

import (
	"math"
	"sync/atomic"
	"time"
)

// NoPTS marks an unset timestamp (matches AV_NOPTS_VALUE).
const NoPTS int64 = math.MinInt64

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatI420   PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                      // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatRGB24                     // Packed RGB, 3 bytes per pixel
	PixelFormatRGBA32                    // Packed RGBA, 4 bytes per pixel
	PixelFormatBGRA32                    // Packed BGRA, 4 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatRGB24:
		return "RGB24"
	case PixelFormatRGBA32:
		return "RGBA32"
	case PixelFormatBGRA32:
		return "BGRA32"
	default:
		return "Unknown"
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3 // Y, U, V
	case PixelFormatNV12:
		return 2 // Y, UV
	case PixelFormatRGB24, PixelFormatRGBA32, PixelFormatBGRA32:
		return 1 // Packed
	default:
		return 0
	}
}

// BytesPerPixel returns the pixel size of a packed format, 0 for planar ones.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixelFormatRGB24:
		return 3
	case PixelFormatRGBA32, PixelFormatBGRA32:
		return 4
	default:
		return 0
	}
}

// SampleFormat represents decoded audio sample formats.
type SampleFormat int

const (
	SampleFormatNone SampleFormat = iota
	SampleFormatU8                // Unsigned 8-bit, packed
	SampleFormatS16               // Signed 16-bit, packed
	SampleFormatS32               // Signed 32-bit, packed
	SampleFormatF32               // 32-bit float, packed
	SampleFormatF64               // 64-bit float, packed
	SampleFormatU8P               // Unsigned 8-bit, planar
	SampleFormatS16P              // Signed 16-bit, planar
	SampleFormatS32P              // Signed 32-bit, planar
	SampleFormatF32P              // 32-bit float, planar
	SampleFormatF64P              // 64-bit float, planar
)

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatU8:
		return "u8"
	case SampleFormatS16:
		return "s16"
	case SampleFormatS32:
		return "s32"
	case SampleFormatF32:
		return "flt"
	case SampleFormatF64:
		return "dbl"
	case SampleFormatU8P:
		return "u8p"
	case SampleFormatS16P:
		return "s16p"
	case SampleFormatS32P:
		return "s32p"
	case SampleFormatF32P:
		return "fltp"
	case SampleFormatF64P:
		return "dblp"
	default:
		return "none"
	}
}

// ParseSampleFormat maps an FFmpeg-style sample format name to a SampleFormat.
func ParseSampleFormat(name string) SampleFormat {
	for f := SampleFormatU8; f <= SampleFormatF64P; f++ {
		if f.String() == name {
			return f
		}
	}
	return SampleFormatNone
}

// BytesPerSample returns the number of bytes per sample for this format.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatU8, SampleFormatU8P:
		return 1
	case SampleFormatS16, SampleFormatS16P:
		return 2
	case SampleFormatS32, SampleFormatS32P, SampleFormatF32, SampleFormatF32P:
		return 4
	case SampleFormatF64, SampleFormatF64P:
		return 8
	default:
		return 0
	}
}

// Planar reports whether each channel lives in its own plane.
func (f SampleFormat) Planar() bool {
	return f >= SampleFormatU8P && f <= SampleFormatF64P
}

// Rational is a time base or frame rate.
type Rational struct {
	Num, Den int
}

// Float64 returns the rational as a float, 0 when undefined.
func (r Rational) Float64() float64 {
	if r.Num == 0 || r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Valid reports whether both terms are positive.
func (r Rational) Valid() bool {
	return r.Num > 0 && r.Den > 0
}

// RawFrame is a decoded but not yet converted frame handed out by a Decoder.
// It is only valid until the next ReceiveFrame call on the same decoder.
type RawFrame struct {
	PTS           int64 // In stream time base, NoPTS if unset
	BestEffortPTS int64 // Decoder estimate, NoPTS if unset

	// Video
	Width  int
	Height int
	Format PixelFormat

	// Audio
	SampleRate   int
	Channels     int
	Samples      int // Samples per channel
	SampleFormat SampleFormat

	// Planes holds plane data for backends that expose it. Packed audio uses
	// a single plane; planar audio one plane per channel.
	Planes  [][]byte
	Strides []int

	// Native carries the backend's own frame object.
	Native any
}

// Timestamp returns the presentation timestamp, falling back to the
// best-effort estimate when the primary one is unset.
func (f *RawFrame) Timestamp() int64 {
	if f.PTS != NoPTS {
		return f.PTS
	}
	return f.BestEffortPTS
}

// VideoFrame is a converted, timestamped frame delivered to the consumer.
// The consumer owns it until Release is called; Data must not be touched
// afterwards.
type VideoFrame struct {
	Data       []byte        // Packed pixel data
	Stride     int           // Row stride in bytes
	Width      int           // Frame width in pixels
	Height     int           // Frame height in pixels
	Format     PixelFormat   // Pixel format
	PTS        time.Duration // Presentation timestamp
	Generation uint64        // Seek generation the frame was decoded in

	pool     *FramePool
	handle   int
	released atomic.Bool
}

// Release returns the frame's buffer to its pool. Only the first call has
// an effect.
func (f *VideoFrame) Release() {
	if f == nil || !f.released.CompareAndSwap(false, true) {
		return
	}
	f.Data = nil
	if f.pool != nil {
		f.pool.put(f.handle)
	}
}

// Clone creates a deep copy that is not tied to the pool.
// Use this when you need to keep the frame data beyond Release.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{
		Stride:     f.Stride,
		Width:      f.Width,
		Height:     f.Height,
		Format:     f.Format,
		PTS:        f.PTS,
		Generation: f.Generation,
		handle:     -1,
	}
	if f.Data != nil {
		clone.Data = make([]byte, len(f.Data))
		copy(clone.Data, f.Data)
	}
	return clone
}

// AudioChunk is a block of interleaved signed 16-bit stereo samples.
type AudioChunk struct {
	Data       []byte        // Little-endian s16, interleaved
	SampleRate int           // Sample rate (e.g., 48000)
	Channels   int           // Always 2 for output chunks
	Samples    int           // Samples per channel
	PTS        time.Duration // Presentation timestamp
}

// Duration returns the playback length of the chunk.
func (c *AudioChunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Samples) * time.Second / time.Duration(c.SampleRate)
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	ySize := width * height
	uvSize := (width / 2) * (height / 2)
	return ySize + uvSize*2
}
