package playback

import (
	"encoding/binary"
	"fmt"
	"math"
)

// 5.1 down-mix weights (FL FR FC LFE BL BR channel order).
const (
	mixCenter   = 0.7071
	mixSurround = 0.7071
	mixLFE      = 0.5
	mixNorm     = 1 / (1 + mixCenter + mixSurround + mixLFE)
)

// StereoConverter converts decoded audio of any common sample format and
// channel count to interleaved s16 stereo without a native resampler.
// Scratch buffers are reused between calls.
type StereoConverter struct {
	mix []float32
	out []byte
}

// Convert converts one raw audio frame. The returned slice is valid until
// the next call.
func (c *StereoConverter) Convert(f *RawFrame) ([]byte, error) {
	var err error
	c.mix, err = ToStereoFloat(c.mix[:0], f.Planes, f.SampleFormat, f.Channels, f.Samples)
	if err != nil {
		return nil, err
	}
	c.out = FloatToS16(c.out[:0], c.mix)
	return c.out, nil
}

// ToStereoFloat appends samples*2 interleaved stereo floats to dst.
// Mono is duplicated, 5.1 is down-mixed with energy-preserving weights and
// other layouts split even channels left and odd channels right.
func ToStereoFloat(dst []float32, planes [][]byte, format SampleFormat, channels, samples int) ([]float32, error) {
	bps := format.BytesPerSample()
	if bps == 0 {
		return dst, fmt.Errorf("%w: sample format %s", ErrNotSupported, format)
	}
	if channels <= 0 {
		return dst, fmt.Errorf("invalid channel count %d", channels)
	}
	if err := checkPlanes(planes, format, channels, samples); err != nil {
		return dst, err
	}

	read := func(ch, i int) float32 {
		if format.Planar() {
			return decodeSample(planes[ch][i*bps:], format)
		}
		return decodeSample(planes[0][(i*channels+ch)*bps:], format)
	}

	for i := 0; i < samples; i++ {
		var l, r float32
		switch channels {
		case 1:
			l = read(0, i)
			r = l
		case 2:
			l, r = read(0, i), read(1, i)
		case 6:
			fc := read(2, i) * mixCenter
			lfe := read(3, i) * mixLFE
			l = (read(0, i) + fc + read(4, i)*mixSurround + lfe) * mixNorm
			r = (read(1, i) + fc + read(5, i)*mixSurround + lfe) * mixNorm
		default:
			var nl, nr int
			for ch := 0; ch < channels; ch++ {
				if ch%2 == 0 {
					l += read(ch, i)
					nl++
				} else {
					r += read(ch, i)
					nr++
				}
			}
			l /= float32(nl)
			if nr > 0 {
				r /= float32(nr)
			} else {
				r = l
			}
		}
		dst = append(dst, clampUnit(l), clampUnit(r))
	}
	return dst, nil
}

func checkPlanes(planes [][]byte, format SampleFormat, channels, samples int) error {
	bps := format.BytesPerSample()
	if format.Planar() {
		if len(planes) < channels {
			return fmt.Errorf("planar audio: %d planes for %d channels", len(planes), channels)
		}
		for ch := 0; ch < channels; ch++ {
			if len(planes[ch]) < samples*bps {
				return fmt.Errorf("planar audio: plane %d holds %d bytes, need %d", ch, len(planes[ch]), samples*bps)
			}
		}
		return nil
	}
	if len(planes) < 1 || len(planes[0]) < samples*channels*bps {
		return fmt.Errorf("packed audio: need %d bytes", samples*channels*bps)
	}
	return nil
}

// decodeSample reads one little-endian sample as a float in [-1, 1].
func decodeSample(b []byte, format SampleFormat) float32 {
	switch format {
	case SampleFormatU8, SampleFormatU8P:
		return (float32(b[0]) - 128) / 128
	case SampleFormatS16, SampleFormatS16P:
		return float32(int16(binary.LittleEndian.Uint16(b))) / 32768
	case SampleFormatS32, SampleFormatS32P:
		return float32(float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648)
	case SampleFormatF32, SampleFormatF32P:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case SampleFormatF64, SampleFormatF64P:
		return float32(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	default:
		return 0
	}
}

func clampUnit(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	if v != v { // NaN
		return 0
	}
	return v
}

// FloatToS16 appends src as little-endian s16, clamping out-of-range values.
func FloatToS16(dst []byte, src []float32) []byte {
	for _, v := range src {
		s := int32(clampUnit(v) * 32767)
		dst = binary.LittleEndian.AppendUint16(dst, uint16(int16(s)))
	}
	return dst
}
