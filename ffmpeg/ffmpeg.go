//go:build cgo && !noffmpeg

// Package ffmpeg registers a playback backend built on libavformat,
// libavcodec, libswscale and libswresample through go-astiav.
//
// Import it for its side effect:
//
//	import _ "github.com/thesyncim/playback/ffmpeg"
//
// It claims plain paths, file: URIs and every scheme no other backend
// registered.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/asticode/go-astiav"

	"github.com/thesyncim/playback"
)

// avTimeBase is AV_TIME_BASE: container durations and seek targets are in
// microseconds.
const avTimeBase = 1000000

func init() {
	astiav.SetLogLevel(astiav.LogLevelError)
	playback.RegisterBackend(Backend{}, "*", "file")
}

// Available reports whether the backend was compiled in.
func Available() bool { return true }

// Backend opens sources with libavformat.
type Backend struct{}

func (Backend) Provider() playback.Provider { return playback.ProviderFFmpeg }

func (Backend) Open(ctx context.Context, uri string) (playback.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(uri, "file://")

	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, fmt.Errorf("%w: alloc format context", playback.ErrOpenFailed)
	}
	if err := fc.OpenInput(path, nil, nil); err != nil {
		fc.Free()
		return nil, fmt.Errorf("%w: %s: %w", playback.ErrOpenFailed, uri, err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("%w: %s: %w", playback.ErrNoStreamInfo, uri, err)
	}

	s := &source{uri: uri, fc: fc, streams: fc.Streams()}
	for _, st := range s.streams {
		s.infos = append(s.infos, streamInfo(st))
	}
	if d := fc.Duration(); d > 0 && d != astiav.NoPtsValue {
		s.duration = time.Duration(d) * time.Second / avTimeBase
	}
	return s, nil
}

func streamInfo(st *astiav.Stream) playback.StreamInfo {
	cp := st.CodecParameters()
	tb := st.TimeBase()
	info := playback.StreamInfo{
		Index:     st.Index(),
		CodecName: cp.CodecID().String(),
		TimeBase:  playback.Rational{Num: tb.Num(), Den: tb.Den()},
	}
	switch cp.MediaType() {
	case astiav.MediaTypeVideo:
		fr := st.AvgFrameRate()
		info.Type = playback.MediaTypeVideo
		info.VideoCodec = playback.ParseVideoCodec(info.CodecName)
		info.Width = cp.Width()
		info.Height = cp.Height()
		info.AvgFrameRate = playback.Rational{Num: fr.Num(), Den: fr.Den()}
	case astiav.MediaTypeAudio:
		info.Type = playback.MediaTypeAudio
		info.AudioCodec = playback.ParseAudioCodec(info.CodecName)
		info.SampleRate = cp.SampleRate()
		info.Channels = cp.ChannelLayout().Channels()
		info.SampleFormat = playback.ParseSampleFormat(cp.SampleFormat().String())
	case astiav.MediaTypeSubtitle:
		info.Type = playback.MediaTypeSubtitle
	case astiav.MediaTypeData:
		info.Type = playback.MediaTypeData
	}
	return info
}

// source wraps an open format context. Calls are serialised by the
// player's session lock.
type source struct {
	uri      string
	fc       *astiav.FormatContext
	streams  []*astiav.Stream
	infos    []playback.StreamInfo
	duration time.Duration
}

func (s *source) URI() string                    { return s.uri }
func (s *source) Streams() []playback.StreamInfo { return s.infos }
func (s *source) Duration() time.Duration        { return s.duration }

func (s *source) stream(i int) (*astiav.Stream, bool) {
	if i < 0 || i >= len(s.streams) {
		return nil, false
	}
	return s.streams[i], true
}

func (s *source) ReadPacket() (*playback.Packet, error) {
	if s.fc == nil {
		return nil, io.EOF
	}
	pkt := astiav.AllocPacket()
	if pkt == nil {
		return nil, errors.New("alloc packet")
	}
	if err := s.fc.ReadFrame(pkt); err != nil {
		pkt.Free()
		if errors.Is(err, astiav.ErrEof) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}

	out := &playback.Packet{
		StreamIndex: pkt.StreamIndex(),
		PTS:         ts(pkt.Pts()),
		DTS:         ts(pkt.Dts()),
		Duration:    pkt.Duration(),
		Keyframe:    pkt.Flags().Has(astiav.PacketFlagKey),
		Native:      pkt,
	}
	out.OnRelease(func() {
		pkt.Unref()
		pkt.Free()
	})
	return out, nil
}

func (s *source) Seek(t time.Duration) error {
	if s.fc == nil {
		return playback.ErrNotSupported
	}
	target := int64(t / time.Microsecond)
	if err := s.fc.SeekFrame(-1, target, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("seek frame: %w", err)
	}
	return nil
}

func (s *source) OpenDecoder(index int, opts playback.DecoderOptions) (playback.Decoder, error) {
	st, ok := s.stream(index)
	if !ok {
		return nil, fmt.Errorf("no stream %d", index)
	}
	d := &decoder{
		params:  st.CodecParameters(),
		info:    s.infos[index],
		threads: opts.Threads,
		frame:   astiav.AllocFrame(),
	}
	if err := d.open(); err != nil {
		d.frame.Free()
		return nil, err
	}
	return d, nil
}

func (s *source) NewVideoConverter(index int, opts playback.ConvertOptions) (playback.VideoConverter, error) {
	if _, ok := s.stream(index); !ok {
		return nil, fmt.Errorf("no stream %d", index)
	}
	var dstFmt astiav.PixelFormat
	switch opts.Format {
	case playback.PixelFormatBGRA32:
		dstFmt = astiav.PixelFormatBgra
	case playback.PixelFormatRGBA32:
		dstFmt = astiav.PixelFormatRgba
	default:
		return nil, fmt.Errorf("%w: output format %s", playback.ErrNotSupported, opts.Format)
	}
	return &converter{opts: opts, dstFmt: dstFmt}, nil
}

func (s *source) NewResampler(index int, outRate, outChannels int) (playback.Resampler, error) {
	if _, ok := s.stream(index); !ok {
		return nil, fmt.Errorf("no stream %d", index)
	}
	if outChannels != 2 {
		return nil, fmt.Errorf("%w: %d output channels", playback.ErrNotSupported, outChannels)
	}
	swr := astiav.AllocSoftwareResampleContext()
	if swr == nil {
		return nil, errors.New("alloc resample context")
	}
	return &resampler{swr: swr, rate: outRate, dst: astiav.AllocFrame()}, nil
}

func (s *source) Close() error {
	if s.fc == nil {
		return nil
	}
	s.fc.CloseInput()
	s.fc.Free()
	s.fc = nil
	s.streams = nil
	return nil
}

// --- Decoder ---

type decoder struct {
	params  *astiav.CodecParameters
	info    playback.StreamInfo
	threads int

	cc    *astiav.CodecContext
	frame *astiav.Frame
	raw   playback.RawFrame
	buf   []byte
}

func (d *decoder) open() error {
	codec := astiav.FindDecoder(d.params.CodecID())
	if codec == nil {
		return fmt.Errorf("%w: no decoder for %s", playback.ErrNotSupported, d.params.CodecID())
	}
	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return errors.New("alloc codec context")
	}
	if err := d.params.ToCodecContext(cc); err != nil {
		cc.Free()
		return fmt.Errorf("codec parameters: %w", err)
	}
	if d.params.MediaType() == astiav.MediaTypeVideo {
		cc.SetThreadCount(d.threads)
	}
	if err := cc.Open(codec, nil); err != nil {
		cc.Free()
		return fmt.Errorf("open codec %s: %w", codec.Name(), err)
	}
	d.cc = cc
	return nil
}

func (d *decoder) SendPacket(pkt *playback.Packet) error {
	p, ok := pkt.Native.(*astiav.Packet)
	if !ok {
		return fmt.Errorf("%w: packet from another backend", playback.ErrNotSupported)
	}
	if err := d.cc.SendPacket(p); err != nil && !errors.Is(err, astiav.ErrEagain) {
		return err
	}
	return nil
}

func (d *decoder) ReceiveFrame() (*playback.RawFrame, error) {
	d.frame.Unref()
	if err := d.cc.ReceiveFrame(d.frame); err != nil {
		switch {
		case errors.Is(err, astiav.ErrEagain):
			return nil, playback.ErrNeedMoreData
		case errors.Is(err, astiav.ErrEof):
			return nil, io.EOF
		}
		return nil, err
	}

	f := d.frame
	d.raw = playback.RawFrame{
		PTS:           ts(f.Pts()),
		BestEffortPTS: ts(f.PktDts()),
		Native:        f,
	}
	switch d.info.Type {
	case playback.MediaTypeVideo:
		d.raw.Width = f.Width()
		d.raw.Height = f.Height()
		d.raw.Format = pixelFormat(f.PixelFormat())
	case playback.MediaTypeAudio:
		if err := d.fillAudio(f); err != nil {
			return nil, err
		}
	}
	return &d.raw, nil
}

// fillAudio copies the samples into Planes so frames can be converted
// without swresample.
func (d *decoder) fillAudio(f *astiav.Frame) error {
	format := playback.ParseSampleFormat(f.SampleFormat().String())
	channels := f.ChannelLayout().Channels()
	samples := f.NbSamples()

	n, err := f.SamplesBufferSize(1)
	if err != nil {
		return fmt.Errorf("samples buffer size: %w", err)
	}
	if cap(d.buf) < n {
		d.buf = make([]byte, n)
	}
	d.buf = d.buf[:n]
	if _, err := f.SamplesCopyToBuffer(d.buf, 1); err != nil {
		return fmt.Errorf("copy samples: %w", err)
	}

	planes := [][]byte{d.buf}
	if format.Planar() && channels > 1 {
		size := samples * format.BytesPerSample()
		planes = make([][]byte, 0, channels)
		for c := 0; c < channels && (c+1)*size <= len(d.buf); c++ {
			planes = append(planes, d.buf[c*size:(c+1)*size])
		}
	}

	d.raw.SampleRate = f.SampleRate()
	d.raw.Channels = channels
	d.raw.Samples = samples
	d.raw.SampleFormat = format
	d.raw.Planes = planes
	return nil
}

// Flush drops buffered frames by reopening the codec context.
func (d *decoder) Flush() error {
	if d.cc != nil {
		d.cc.Free()
		d.cc = nil
	}
	return d.open()
}

func (d *decoder) Close() error {
	if d.cc != nil {
		d.cc.Free()
		d.cc = nil
	}
	if d.frame != nil {
		d.frame.Free()
		d.frame = nil
	}
	return nil
}

// --- Video conversion ---

// converter scales decoded frames to packed BGRA or RGBA with swscale. The
// context is rebuilt when the source geometry or format changes.
type converter struct {
	opts   playback.ConvertOptions
	dstFmt astiav.PixelFormat

	ssc        *astiav.SoftwareScaleContext
	dst        *astiav.Frame
	srcW, srcH int
	srcFmt     astiav.PixelFormat
}

func (c *converter) OutputSize(srcWidth, srcHeight int) (width, height, stride int) {
	width, height = playback.CalculateScaledSize(srcWidth, srcHeight, c.opts.Width, c.opts.Height, c.opts.Mode)
	return width, height, width * 4
}

func (c *converter) ensure(src *astiav.Frame) error {
	sw, sh, sf := src.Width(), src.Height(), src.PixelFormat()
	if c.ssc != nil && sw == c.srcW && sh == c.srcH && sf == c.srcFmt {
		return nil
	}
	c.release()

	dw, dh, _ := c.OutputSize(sw, sh)
	ssc, err := astiav.CreateSoftwareScaleContext(sw, sh, sf, dw, dh, c.dstFmt,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear))
	if err != nil {
		return fmt.Errorf("create scale context %dx%d %s -> %dx%d: %w", sw, sh, sf, dw, dh, err)
	}
	dst := astiav.AllocFrame()
	dst.SetWidth(dw)
	dst.SetHeight(dh)
	dst.SetPixelFormat(c.dstFmt)
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		ssc.Free()
		return fmt.Errorf("alloc scale buffer: %w", err)
	}
	c.ssc, c.dst = ssc, dst
	c.srcW, c.srcH, c.srcFmt = sw, sh, sf
	return nil
}

func (c *converter) Convert(src *playback.RawFrame, dst []byte) error {
	f, ok := src.Native.(*astiav.Frame)
	if !ok {
		return fmt.Errorf("%w: frame from another backend", playback.ErrNotSupported)
	}
	if err := c.ensure(f); err != nil {
		return err
	}
	if err := c.ssc.ScaleFrame(f, c.dst); err != nil {
		return fmt.Errorf("scale frame: %w", err)
	}
	if _, err := c.dst.ImageCopyToBuffer(dst, 1); err != nil {
		return fmt.Errorf("copy image: %w", err)
	}
	return nil
}

func (c *converter) release() {
	if c.dst != nil {
		c.dst.Free()
		c.dst = nil
	}
	if c.ssc != nil {
		c.ssc.Free()
		c.ssc = nil
	}
}

func (c *converter) Close() error {
	c.release()
	return nil
}

// --- Audio resampling ---

// resampler converts to s16 stereo at a fixed rate. swresample configures
// itself from the first frame; output is sized with its internal delay.
type resampler struct {
	swr  *astiav.SoftwareResampleContext
	rate int
	dst  *astiav.Frame
	buf  []byte
}

func (r *resampler) Resample(src *playback.RawFrame) ([]byte, int, error) {
	f, ok := src.Native.(*astiav.Frame)
	if !ok {
		return nil, 0, fmt.Errorf("%w: frame from another backend", playback.ErrNotSupported)
	}

	r.dst.Unref()
	r.dst.SetChannelLayout(astiav.ChannelLayoutStereo)
	r.dst.SetSampleFormat(astiav.SampleFormatS16)
	r.dst.SetSampleRate(r.rate)
	r.dst.SetNbSamples(r.Delay() + f.NbSamples()*r.rate/max(f.SampleRate(), 1) + 1)
	if err := r.dst.AllocBuffer(0); err != nil {
		return nil, 0, fmt.Errorf("alloc resample buffer: %w", err)
	}
	if err := r.swr.ConvertFrame(f, r.dst); err != nil {
		return nil, 0, fmt.Errorf("convert frame: %w", err)
	}

	samples := r.dst.NbSamples()
	n := samples * 2 * 2
	if cap(r.buf) < n {
		r.buf = make([]byte, n)
	}
	r.buf = r.buf[:n]
	if samples == 0 {
		return r.buf, 0, nil
	}
	if _, err := r.dst.SamplesCopyToBuffer(r.buf, 1); err != nil {
		return nil, 0, fmt.Errorf("copy samples: %w", err)
	}
	return r.buf, samples, nil
}

func (r *resampler) Delay() int {
	if r.swr == nil {
		return 0
	}
	return int(r.swr.Delay(int64(r.rate)))
}

func (r *resampler) Close() error {
	if r.dst != nil {
		r.dst.Free()
		r.dst = nil
	}
	if r.swr != nil {
		r.swr.Free()
		r.swr = nil
	}
	return nil
}

func ts(v int64) int64 {
	if v == astiav.NoPtsValue {
		return playback.NoPTS
	}
	return v
}

func pixelFormat(f astiav.PixelFormat) playback.PixelFormat {
	switch f {
	case astiav.PixelFormatNv12:
		return playback.PixelFormatNV12
	case astiav.PixelFormatRgb24:
		return playback.PixelFormatRGB24
	case astiav.PixelFormatRgba:
		return playback.PixelFormatRGBA32
	case astiav.PixelFormatBgra:
		return playback.PixelFormatBGRA32
	default:
		// Other formats only go through swscale.
		return playback.PixelFormatI420
	}
}
