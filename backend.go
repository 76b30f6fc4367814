package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Common errors
var (
	ErrNotSupported    = errors.New("operation not supported")
	ErrBackendNotFound = errors.New("no backend available for source")
	ErrOpenFailed      = errors.New("cannot open source")
	ErrNoStreamInfo    = errors.New("no stream information")
	ErrNoUsableStream  = errors.New("no usable video or audio stream")
	ErrNeedMoreData    = errors.New("decoder needs more data")
)

// Packet is one unit of compressed data read from a Source.
type Packet struct {
	StreamIndex int
	PTS         int64 // Stream time base, NoPTS if unset
	DTS         int64
	Duration    int64
	Keyframe    bool
	Data        []byte

	// Native carries the backend's own packet object.
	Native any

	release func()
}

// OnRelease sets the function run by Release. Backends use it to free
// native packet memory.
func (p *Packet) OnRelease(fn func()) {
	p.release = fn
}

// Release frees backend resources held by the packet. Safe to call twice.
func (p *Packet) Release() {
	if p == nil || p.release == nil {
		return
	}
	fn := p.release
	p.release = nil
	fn()
}

// DecoderOptions configures a per-stream decoder.
type DecoderOptions struct {
	Threads int // Decoder threads (0 = auto)
}

// Decoder turns packets of one stream into raw frames.
type Decoder interface {
	io.Closer

	// SendPacket submits one compressed packet.
	SendPacket(pkt *Packet) error

	// ReceiveFrame returns the next decoded frame, ErrNeedMoreData when the
	// decoder wants another packet, or io.EOF after a drain.
	// The frame is valid until the next ReceiveFrame call.
	ReceiveFrame() (*RawFrame, error)

	// Flush discards buffered partial frames (used after a seek).
	Flush() error
}

// ConvertOptions configures pixel conversion for a video stream.
type ConvertOptions struct {
	Format PixelFormat // Target packed format
	Width  int         // Target width (0 = source width)
	Height int         // Target height (0 = source height)
	Mode   ScaleMode   // Aspect handling when both dimensions are set
}

// VideoConverter converts raw video frames to a packed pixel format.
type VideoConverter interface {
	io.Closer

	// OutputSize returns the converted frame geometry for a source size.
	OutputSize(srcWidth, srcHeight int) (width, height, stride int)

	// Convert writes the converted frame into dst, which holds at least
	// stride*height bytes as reported by OutputSize.
	Convert(src *RawFrame, dst []byte) error
}

// Resampler converts raw audio frames to interleaved s16.
type Resampler interface {
	io.Closer

	// Resample converts one frame. It returns the s16 interleaved data and
	// the number of samples per channel written.
	Resample(src *RawFrame) ([]byte, int, error)

	// Delay returns the number of samples buffered inside the resampler.
	Delay() int
}

// Source is an open media file or stream.
type Source interface {
	io.Closer

	// URI returns the path or URI the source was opened with.
	URI() string

	// Streams returns the stream metadata.
	Streams() []StreamInfo

	// Duration returns the container duration, 0 if unknown.
	Duration() time.Duration

	// ReadPacket reads the next packet. Returns io.EOF at end of stream.
	ReadPacket() (*Packet, error)

	// Seek repositions to the nearest keyframe at or before t.
	Seek(t time.Duration) error

	// OpenDecoder opens a decoder for the given stream index.
	OpenDecoder(stream int, opts DecoderOptions) (Decoder, error)

	// NewVideoConverter creates a pixel converter for a video stream.
	NewVideoConverter(stream int, opts ConvertOptions) (VideoConverter, error)

	// NewResampler creates a resampler for an audio stream.
	NewResampler(stream int, outRate, outChannels int) (Resampler, error)
}

// Backend opens sources.
type Backend interface {
	Provider() Provider
	Open(ctx context.Context, uri string) (Source, error)
}

// --- Registry ---

type backendRegistry struct {
	mu sync.RWMutex

	backends map[Provider]Backend
	schemes  map[string]Provider
	fallback Provider
}

var globalBackendRegistry = &backendRegistry{
	backends: make(map[Provider]Backend),
	schemes:  make(map[string]Provider),
}

// RegisterBackend registers a backend for the given URI schemes. A backend
// registered with the "*" scheme serves every scheme nobody claimed.
func RegisterBackend(b Backend, schemes ...string) {
	globalBackendRegistry.mu.Lock()
	defer globalBackendRegistry.mu.Unlock()

	p := b.Provider()
	globalBackendRegistry.backends[p] = b
	for _, s := range schemes {
		if s == "*" {
			globalBackendRegistry.fallback = p
			continue
		}
		globalBackendRegistry.schemes[strings.ToLower(s)] = p
	}
	setProviderAvailable(p)
}

// BackendFor resolves the backend for a URI. A provider other than
// ProviderAuto bypasses scheme matching.
func BackendFor(uri string, p Provider) (Backend, error) {
	globalBackendRegistry.mu.RLock()
	defer globalBackendRegistry.mu.RUnlock()

	if p == ProviderAuto {
		var ok bool
		p, ok = globalBackendRegistry.schemes[uriScheme(uri)]
		if !ok {
			p = globalBackendRegistry.fallback
		}
	}
	b, ok := globalBackendRegistry.backends[p]
	if !ok || !p.Available() {
		return nil, fmt.Errorf("%w: %s (%s)", ErrBackendNotFound, uri, p)
	}
	return b, nil
}

// Backends returns the registered backend providers.
func Backends() []Provider {
	globalBackendRegistry.mu.RLock()
	defer globalBackendRegistry.mu.RUnlock()

	result := make([]Provider, 0, len(globalBackendRegistry.backends))
	for p := range globalBackendRegistry.backends {
		result = append(result, p)
	}
	return result
}

// uriScheme returns the lower-cased scheme of uri, "" for plain paths.
// Single letter schemes are treated as Windows drive letters.
func uriScheme(uri string) string {
	i := strings.IndexByte(uri, ':')
	if i < 2 {
		return ""
	}
	scheme := uri[:i]
	for _, r := range scheme {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.') {
			return ""
		}
	}
	return strings.ToLower(scheme)
}
