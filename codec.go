package playback

import (
	"fmt"
	"strings"
)

// MediaType identifies the kind of elementary stream.
type MediaType int

const (
	MediaTypeUnknown MediaType = iota
	MediaTypeVideo
	MediaTypeAudio
	MediaTypeSubtitle
	MediaTypeData
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	case MediaTypeSubtitle:
		return "subtitle"
	case MediaTypeData:
		return "data"
	default:
		return "unknown"
	}
}

// VideoCodec identifies the video codec type.
type VideoCodec int

const (
	VideoCodecUnknown VideoCodec = iota
	VideoCodecVP8
	VideoCodecVP9
	VideoCodecH264
	VideoCodecH265
	VideoCodecAV1
	VideoCodecMPEG4
	VideoCodecRaw
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecVP8:
		return "VP8"
	case VideoCodecVP9:
		return "VP9"
	case VideoCodecH264:
		return "H264"
	case VideoCodecH265:
		return "H265"
	case VideoCodecAV1:
		return "AV1"
	case VideoCodecMPEG4:
		return "MPEG4"
	case VideoCodecRaw:
		return "Raw"
	default:
		return "Unknown"
	}
}

// AudioCodec identifies the audio codec type.
type AudioCodec int

const (
	AudioCodecUnknown AudioCodec = iota
	AudioCodecOpus
	AudioCodecG711A // A-law (PCMA)
	AudioCodecG711U // μ-law (PCMU)
	AudioCodecAAC
	AudioCodecMP3
	AudioCodecVorbis
	AudioCodecFLAC
	AudioCodecPCM
)

func (c AudioCodec) String() string {
	switch c {
	case AudioCodecOpus:
		return "Opus"
	case AudioCodecG711A:
		return "PCMA"
	case AudioCodecG711U:
		return "PCMU"
	case AudioCodecAAC:
		return "AAC"
	case AudioCodecMP3:
		return "MP3"
	case AudioCodecVorbis:
		return "Vorbis"
	case AudioCodecFLAC:
		return "FLAC"
	case AudioCodecPCM:
		return "PCM"
	default:
		return "Unknown"
	}
}

// ParseVideoCodec maps a backend codec name (e.g. "h264", "hevc") to a VideoCodec.
func ParseVideoCodec(name string) VideoCodec {
	switch strings.ToLower(name) {
	case "vp8":
		return VideoCodecVP8
	case "vp9":
		return VideoCodecVP9
	case "h264", "avc":
		return VideoCodecH264
	case "h265", "hevc":
		return VideoCodecH265
	case "av1", "libdav1d", "libaom-av1":
		return VideoCodecAV1
	case "mpeg4":
		return VideoCodecMPEG4
	case "rawvideo":
		return VideoCodecRaw
	default:
		return VideoCodecUnknown
	}
}

// ParseAudioCodec maps a backend codec name (e.g. "aac", "opus") to an AudioCodec.
func ParseAudioCodec(name string) AudioCodec {
	name = strings.ToLower(name)
	switch {
	case name == "opus" || name == "libopus":
		return AudioCodecOpus
	case name == "pcm_alaw":
		return AudioCodecG711A
	case name == "pcm_mulaw":
		return AudioCodecG711U
	case name == "aac":
		return AudioCodecAAC
	case name == "mp3" || name == "mp3float":
		return AudioCodecMP3
	case name == "vorbis":
		return AudioCodecVorbis
	case name == "flac":
		return AudioCodecFLAC
	case strings.HasPrefix(name, "pcm_"):
		return AudioCodecPCM
	default:
		return AudioCodecUnknown
	}
}

// StreamInfo describes one elementary stream of an open source.
type StreamInfo struct {
	Index     int
	Type      MediaType
	CodecName string // Backend codec name

	// Set from CodecName by the backend; Unknown for codecs the player has
	// no name for.
	VideoCodec VideoCodec
	AudioCodec AudioCodec

	// Video
	Width        int
	Height       int
	AvgFrameRate Rational

	// Audio
	SampleRate   int
	Channels     int
	SampleFormat SampleFormat

	TimeBase Rational
}

// Seconds converts a timestamp in this stream's time base to seconds.
func (s StreamInfo) Seconds(ts int64) float64 {
	if ts == NoPTS || !s.TimeBase.Valid() {
		return 0
	}
	return float64(ts) * s.TimeBase.Float64()
}

// Codec returns the codec name for display: the typed codec when known,
// otherwise the backend name.
func (s StreamInfo) Codec() string {
	switch {
	case s.Type == MediaTypeVideo && s.VideoCodec != VideoCodecUnknown:
		return s.VideoCodec.String()
	case s.Type == MediaTypeAudio && s.AudioCodec != AudioCodecUnknown:
		return s.AudioCodec.String()
	default:
		return s.CodecName
	}
}

func (s StreamInfo) String() string {
	switch s.Type {
	case MediaTypeVideo:
		return fmt.Sprintf("#%d video %s %dx%d@%.2f", s.Index, s.Codec(), s.Width, s.Height, s.AvgFrameRate.Float64())
	case MediaTypeAudio:
		return fmt.Sprintf("#%d audio %s %dHz %dch %s", s.Index, s.Codec(), s.SampleRate, s.Channels, s.SampleFormat)
	default:
		return fmt.Sprintf("#%d %s %s", s.Index, s.Type, s.CodecName)
	}
}
