package playback

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SyntheticScheme is the URI scheme served by the synthetic backend.
const SyntheticScheme = "synth"

const syntheticVideoTimeBase = 90000

// SyntheticOptions describes a generated source. They round-trip through
// synth: URIs, e.g. "synth:?duration=2s&fps=10&audio=0".
type SyntheticOptions struct {
	Video    bool
	Audio    bool
	Duration time.Duration

	// Video
	FPS     float64
	Width   int
	Height  int
	GOP     int // Frames per keyframe interval
	Pattern PatternType

	// Audio
	SampleRate   int
	Channels     int
	SampleFormat SampleFormat
	FrameSamples int // Samples per channel per packet
	AudioPattern AudioPatternType

	// Fault injection
	Corrupt         int           // Every Nth video packet fails to decode (0 = never)
	ReadFailAfter   int           // Every read after the first N packets fails (0 = never)
	Stall           int           // Decoding the Nth video packet blocks for StallFor, once (0 = never)
	StallFor        time.Duration // 0 = one second
	NoResampler     bool          // Resampler creation fails, forcing manual conversion
	FailVideo       bool          // Video decoder fails to open
	FailAudio       bool          // Audio decoder fails to open
	NoPTS           bool          // Frames carry only a best-effort timestamp
	UnknownDuration bool          // Container reports no duration
	FailOpen        bool          // Source cannot be opened
	NoStreamInfo    bool          // Stream information cannot be read
}

// DefaultSyntheticOptions returns a 2 second 320x240 25fps video with a
// 48kHz stereo s16 tone.
func DefaultSyntheticOptions() SyntheticOptions {
	return SyntheticOptions{
		Video:        true,
		Audio:        true,
		Duration:     2 * time.Second,
		FPS:          25,
		Width:        320,
		Height:       240,
		Pattern:      PatternColorBars,
		SampleRate:   48000,
		Channels:     2,
		SampleFormat: SampleFormatS16,
		FrameSamples: 1024,
		AudioPattern: AudioPatternSineWave,
	}
}

// ParseSyntheticURI parses a synth: URI. Unset options keep their defaults.
func ParseSyntheticURI(uri string) (SyntheticOptions, error) {
	o := DefaultSyntheticOptions()

	u, err := url.Parse(uri)
	if err != nil {
		return o, err
	}
	if u.Scheme != SyntheticScheme {
		return o, fmt.Errorf("not a %s: URI: %q", SyntheticScheme, uri)
	}

	q := u.Query()
	var errs []error
	boolOpt := func(key string, dst *bool) {
		if !q.Has(key) {
			return
		}
		v := q.Get(key)
		if v == "" {
			*dst = true
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
	intOpt := func(key string, dst *int) {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				errs = append(errs, fmt.Errorf("%s: invalid value %q", key, v))
				return
			}
			*dst = n
		}
	}

	boolOpt("video", &o.Video)
	boolOpt("audio", &o.Audio)
	if v := q.Get("duration"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("duration: invalid value %q", v))
		} else {
			o.Duration = d
		}
	}
	if v := q.Get("fps"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			errs = append(errs, fmt.Errorf("fps: invalid value %q", v))
		} else {
			o.FPS = f
		}
	}
	intOpt("width", &o.Width)
	intOpt("height", &o.Height)
	intOpt("gop", &o.GOP)
	if v := q.Get("pattern"); v != "" {
		p, err := ParsePatternType(v)
		if err != nil {
			errs = append(errs, err)
		}
		o.Pattern = p
	}
	intOpt("rate", &o.SampleRate)
	intOpt("channels", &o.Channels)
	intOpt("samples", &o.FrameSamples)
	if v := q.Get("format"); v != "" {
		f := ParseSampleFormat(v)
		if f == SampleFormatNone {
			errs = append(errs, fmt.Errorf("format: unknown sample format %q", v))
		} else {
			o.SampleFormat = f
		}
	}
	if v := q.Get("tone"); v != "" {
		p, err := ParseAudioPatternType(v)
		if err != nil {
			errs = append(errs, err)
		}
		o.AudioPattern = p
	}
	intOpt("corrupt", &o.Corrupt)
	intOpt("readfail", &o.ReadFailAfter)
	intOpt("stall", &o.Stall)
	if v := q.Get("stallfor"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("stallfor: invalid value %q", v))
		} else {
			o.StallFor = d
		}
	}
	boolOpt("noresampler", &o.NoResampler)
	boolOpt("failvideo", &o.FailVideo)
	boolOpt("failaudio", &o.FailAudio)
	boolOpt("nopts", &o.NoPTS)
	boolOpt("unknownduration", &o.UnknownDuration)
	boolOpt("failopen", &o.FailOpen)
	boolOpt("noinfo", &o.NoStreamInfo)

	if o.Width < 2 || o.Height < 2 || o.Width%2 != 0 || o.Height%2 != 0 {
		errs = append(errs, fmt.Errorf("frame size %dx%d must be even and at least 2x2", o.Width, o.Height))
	}
	if o.SampleRate <= 0 || o.Channels <= 0 || o.FrameSamples <= 0 {
		errs = append(errs, errors.New("audio rate, channels and samples must be positive"))
	}
	if o.GOP <= 0 {
		o.GOP = max(int(math.Round(o.FPS)), 1)
	}
	return o, errors.Join(errs...)
}

// URI encodes the options as a synth: URI.
func (o SyntheticOptions) URI() string {
	q := url.Values{}
	q.Set("video", strconv.FormatBool(o.Video))
	q.Set("audio", strconv.FormatBool(o.Audio))
	q.Set("duration", o.Duration.String())
	q.Set("fps", strconv.FormatFloat(o.FPS, 'g', -1, 64))
	q.Set("width", strconv.Itoa(o.Width))
	q.Set("height", strconv.Itoa(o.Height))
	if o.GOP > 0 {
		q.Set("gop", strconv.Itoa(o.GOP))
	}
	q.Set("pattern", strings.ToLower(o.Pattern.String()))
	q.Set("tone", strings.ToLower(o.AudioPattern.String()))
	q.Set("rate", strconv.Itoa(o.SampleRate))
	q.Set("channels", strconv.Itoa(o.Channels))
	q.Set("format", o.SampleFormat.String())
	q.Set("samples", strconv.Itoa(o.FrameSamples))
	if o.Corrupt > 0 {
		q.Set("corrupt", strconv.Itoa(o.Corrupt))
	}
	if o.ReadFailAfter > 0 {
		q.Set("readfail", strconv.Itoa(o.ReadFailAfter))
	}
	if o.Stall > 0 {
		q.Set("stall", strconv.Itoa(o.Stall))
	}
	if o.StallFor > 0 {
		q.Set("stallfor", o.StallFor.String())
	}
	flags := map[string]bool{
		"noresampler": o.NoResampler, "failvideo": o.FailVideo, "failaudio": o.FailAudio,
		"nopts": o.NoPTS, "unknownduration": o.UnknownDuration, "failopen": o.FailOpen,
		"noinfo": o.NoStreamInfo,
	}
	for k, v := range flags {
		if v {
			q.Set(k, "1")
		}
	}
	return SyntheticScheme + ":?" + q.Encode()
}

// SyntheticBackend generates test-pattern video and tone audio in pure Go.
type SyntheticBackend struct{}

func (SyntheticBackend) Provider() Provider { return ProviderSynthetic }

// Open parses uri and returns a generated source.
func (SyntheticBackend) Open(ctx context.Context, uri string) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts, err := ParseSyntheticURI(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, uri, err)
	}
	if opts.FailOpen {
		return nil, fmt.Errorf("%w: %s: simulated open failure", ErrOpenFailed, uri)
	}
	if opts.NoStreamInfo {
		return nil, fmt.Errorf("%w: %s", ErrNoStreamInfo, uri)
	}
	return newSyntheticSource(uri, opts), nil
}

type syntheticSource struct {
	uri  string
	opts SyntheticOptions

	streams     []StreamInfo
	videoIndex  int
	audioIndex  int
	videoFrames int64
	totalSample int64

	mu        sync.Mutex
	nextVideo int64 // Frame number
	nextAudio int64 // Absolute sample index
	reads     int
	closed    bool
}

func newSyntheticSource(uri string, opts SyntheticOptions) *syntheticSource {
	s := &syntheticSource{uri: uri, opts: opts, videoIndex: -1, audioIndex: -1}

	if opts.Video {
		s.videoIndex = len(s.streams)
		s.videoFrames = int64(math.Ceil(opts.Duration.Seconds() * opts.FPS))
		fps := Rational{Num: int(math.Round(opts.FPS * 1000)), Den: 1000}
		s.streams = append(s.streams, StreamInfo{
			Index:        s.videoIndex,
			Type:         MediaTypeVideo,
			CodecName:    "testpattern",
			VideoCodec:   VideoCodecRaw,
			Width:        opts.Width,
			Height:       opts.Height,
			AvgFrameRate: fps,
			TimeBase:     Rational{Num: 1, Den: syntheticVideoTimeBase},
		})
	}
	if opts.Audio {
		s.audioIndex = len(s.streams)
		s.totalSample = int64(opts.Duration.Seconds() * float64(opts.SampleRate))
		s.streams = append(s.streams, StreamInfo{
			Index:        s.audioIndex,
			Type:         MediaTypeAudio,
			CodecName:    "tone",
			AudioCodec:   AudioCodecPCM,
			SampleRate:   opts.SampleRate,
			Channels:     opts.Channels,
			SampleFormat: opts.SampleFormat,
			TimeBase:     Rational{Num: 1, Den: opts.SampleRate},
		})
	}
	if !opts.Video && !opts.Audio {
		s.streams = append(s.streams, StreamInfo{Index: 0, Type: MediaTypeData, CodecName: "none"})
	}
	return s
}

func (s *syntheticSource) URI() string { return s.uri }

func (s *syntheticSource) Streams() []StreamInfo {
	out := make([]StreamInfo, len(s.streams))
	copy(out, s.streams)
	return out
}

func (s *syntheticSource) Duration() time.Duration {
	if s.opts.UnknownDuration {
		return 0
	}
	return s.opts.Duration
}

func (s *syntheticSource) videoPTS(frame int64) int64 {
	return int64(math.Round(float64(frame) * syntheticVideoTimeBase / s.opts.FPS))
}

// ReadPacket returns the stream whose next packet is earliest, video first
// on ties.
func (s *syntheticSource) ReadPacket() (*Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("source closed")
	}
	if s.opts.ReadFailAfter > 0 && s.reads >= s.opts.ReadFailAfter {
		return nil, errors.New("synth: simulated read failure")
	}
	s.reads++

	videoDone := s.videoIndex < 0 || s.nextVideo >= s.videoFrames
	audioDone := s.audioIndex < 0 || s.nextAudio >= s.totalSample
	if videoDone && audioDone {
		return nil, io.EOF
	}

	if !videoDone {
		vt := float64(s.nextVideo) / s.opts.FPS
		at := float64(s.nextAudio) / float64(s.opts.SampleRate)
		if audioDone || vt <= at {
			frame := s.nextVideo
			s.nextVideo++
			data := binary.BigEndian.AppendUint64(nil, uint64(frame))
			return &Packet{
				StreamIndex: s.videoIndex,
				PTS:         s.videoPTS(frame),
				DTS:         s.videoPTS(frame),
				Duration:    s.videoPTS(frame+1) - s.videoPTS(frame),
				Keyframe:    frame%int64(s.opts.GOP) == 0,
				Data:        data,
			}, nil
		}
	}

	start := s.nextAudio
	n := min(int64(s.opts.FrameSamples), s.totalSample-start)
	s.nextAudio += n
	data := binary.BigEndian.AppendUint64(nil, uint64(start))
	data = binary.BigEndian.AppendUint32(data, uint32(n))
	return &Packet{
		StreamIndex: s.audioIndex,
		PTS:         start,
		DTS:         start,
		Duration:    n,
		Keyframe:    true,
		Data:        data,
	}, nil
}

// Seek lands on the GOP keyframe at or before t. Audio restarts at the
// keyframe time so both streams stay interleaved.
func (s *syntheticSource) Seek(t time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("source closed")
	}
	if t < 0 {
		t = 0
	}
	if t > s.opts.Duration {
		t = s.opts.Duration
	}

	target := t.Seconds()
	if s.videoIndex >= 0 {
		frame := int64(target * s.opts.FPS)
		frame -= frame % int64(s.opts.GOP)
		frame = max(min(frame, s.videoFrames-1), 0)
		s.nextVideo = frame
		target = float64(frame) / s.opts.FPS
	}
	if s.audioIndex >= 0 {
		sample := int64(target * float64(s.opts.SampleRate))
		sample -= sample % int64(s.opts.FrameSamples)
		s.nextAudio = max(min(sample, s.totalSample), 0)
	}
	return nil
}

func (s *syntheticSource) OpenDecoder(stream int, opts DecoderOptions) (Decoder, error) {
	switch stream {
	case s.videoIndex:
		if s.opts.FailVideo {
			return nil, errors.New("testpattern: simulated decoder failure")
		}
		return &syntheticVideoDecoder{
			opts: s.opts,
			gen:  newPatternGenerator(s.opts.Width, s.opts.Height, s.opts.Pattern),
		}, nil
	case s.audioIndex:
		if s.opts.FailAudio {
			return nil, errors.New("tone: simulated decoder failure")
		}
		return &syntheticAudioDecoder{
			opts: s.opts,
			gen:  newToneGenerator(s.opts.SampleRate, s.opts.Channels, s.opts.SampleFormat, s.opts.AudioPattern),
		}, nil
	default:
		return nil, fmt.Errorf("%w: no decoder for stream %d", ErrNotSupported, stream)
	}
}

func (s *syntheticSource) NewVideoConverter(stream int, opts ConvertOptions) (VideoConverter, error) {
	if stream != s.videoIndex || stream < 0 {
		return nil, fmt.Errorf("stream %d is not video", stream)
	}
	return newPixelConverter(opts)
}

func (s *syntheticSource) NewResampler(stream int, outRate, outChannels int) (Resampler, error) {
	if stream != s.audioIndex || stream < 0 {
		return nil, fmt.Errorf("stream %d is not audio", stream)
	}
	if s.opts.NoResampler {
		return nil, fmt.Errorf("%w: resampler disabled", ErrNotSupported)
	}
	if outRate != s.opts.SampleRate || outChannels != 2 {
		return nil, fmt.Errorf("%w: %dHz %dch output", ErrNotSupported, outRate, outChannels)
	}
	return &syntheticResampler{}, nil
}

func (s *syntheticSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type pendingFrame struct {
	index int64
	pts   int64
	count int
}

type syntheticVideoDecoder struct {
	opts    SyntheticOptions
	gen     *patternGenerator
	pending []pendingFrame
	frame   RawFrame
	stalled bool
}

func (d *syntheticVideoDecoder) SendPacket(pkt *Packet) error {
	if len(pkt.Data) < 8 {
		return fmt.Errorf("testpattern: short packet (%d bytes)", len(pkt.Data))
	}
	idx := int64(binary.BigEndian.Uint64(pkt.Data))
	if d.opts.Corrupt > 0 && (idx+1)%int64(d.opts.Corrupt) == 0 {
		return fmt.Errorf("testpattern: corrupt packet %d", idx)
	}
	if d.opts.Stall > 0 && idx+1 == int64(d.opts.Stall) && !d.stalled {
		d.stalled = true
		stall := d.opts.StallFor
		if stall <= 0 {
			stall = time.Second
		}
		time.Sleep(stall)
	}
	d.pending = append(d.pending, pendingFrame{index: idx, pts: pkt.PTS})
	return nil
}

func (d *syntheticVideoDecoder) ReceiveFrame() (*RawFrame, error) {
	if len(d.pending) == 0 {
		return nil, ErrNeedMoreData
	}
	p := d.pending[0]
	d.pending = d.pending[1:]

	planes, strides := d.gen.generate(uint64(p.index))
	d.frame = RawFrame{
		PTS:           p.pts,
		BestEffortPTS: p.pts,
		Width:         d.opts.Width,
		Height:        d.opts.Height,
		Format:        PixelFormatI420,
		Planes:        planes,
		Strides:       strides,
	}
	if d.opts.NoPTS {
		d.frame.PTS = NoPTS
	}
	return &d.frame, nil
}

func (d *syntheticVideoDecoder) Flush() error {
	d.pending = nil
	return nil
}

func (d *syntheticVideoDecoder) Close() error {
	d.pending = nil
	return nil
}

type syntheticAudioDecoder struct {
	opts    SyntheticOptions
	gen     *toneGenerator
	pending []pendingFrame
	planes  [][]byte
	frame   RawFrame
}

func (d *syntheticAudioDecoder) SendPacket(pkt *Packet) error {
	if len(pkt.Data) < 12 {
		return fmt.Errorf("tone: short packet (%d bytes)", len(pkt.Data))
	}
	start := int64(binary.BigEndian.Uint64(pkt.Data))
	n := int(binary.BigEndian.Uint32(pkt.Data[8:]))
	d.pending = append(d.pending, pendingFrame{index: start, pts: pkt.PTS, count: n})
	return nil
}

func (d *syntheticAudioDecoder) ReceiveFrame() (*RawFrame, error) {
	if len(d.pending) == 0 {
		return nil, ErrNeedMoreData
	}
	p := d.pending[0]
	d.pending = d.pending[1:]

	size, nplanes := d.gen.frameSize(p.count)
	if len(d.planes) != nplanes {
		d.planes = make([][]byte, nplanes)
	}
	for i := range d.planes {
		if cap(d.planes[i]) < size {
			d.planes[i] = make([]byte, size)
		}
		d.planes[i] = d.planes[i][:size]
	}
	d.gen.fill(d.planes, p.index, p.count)

	d.frame = RawFrame{
		PTS:           p.pts,
		BestEffortPTS: p.pts,
		SampleRate:    d.opts.SampleRate,
		Channels:      d.opts.Channels,
		Samples:       p.count,
		SampleFormat:  d.opts.SampleFormat,
		Planes:        d.planes,
	}
	if d.opts.NoPTS {
		d.frame.PTS = NoPTS
	}
	return &d.frame, nil
}

func (d *syntheticAudioDecoder) Flush() error {
	d.pending = nil
	return nil
}

func (d *syntheticAudioDecoder) Close() error {
	d.pending = nil
	return nil
}

// syntheticResampler converts to s16 stereo at the source rate.
type syntheticResampler struct {
	conv StereoConverter
}

func (r *syntheticResampler) Resample(src *RawFrame) ([]byte, int, error) {
	out, err := r.conv.Convert(src)
	if err != nil {
		return nil, 0, err
	}
	return out, src.Samples, nil
}

func (r *syntheticResampler) Delay() int { return 0 }

func (r *syntheticResampler) Close() error { return nil }

func init() {
	RegisterBackend(SyntheticBackend{}, SyntheticScheme)
}
