package playback

import "fmt"

// ScaleMode defines how scaling should handle aspect ratio mismatches.
type ScaleMode int

const (
	// ScaleModeFit scales to fit within target dimensions, preserving aspect ratio.
	ScaleModeFit ScaleMode = iota
	// ScaleModeFill scales to fill target dimensions, preserving aspect ratio (may crop).
	ScaleModeFill
	// ScaleModeStretch scales to exactly match target dimensions (may distort).
	ScaleModeStretch
)

func (m ScaleMode) String() string {
	switch m {
	case ScaleModeFit:
		return "fit"
	case ScaleModeFill:
		return "fill"
	case ScaleModeStretch:
		return "stretch"
	default:
		return "unknown"
	}
}

// ParseScaleMode maps "fit", "fill" or "stretch" to a ScaleMode.
func ParseScaleMode(s string) (ScaleMode, error) {
	switch s {
	case "fit", "":
		return ScaleModeFit, nil
	case "fill":
		return ScaleModeFill, nil
	case "stretch":
		return ScaleModeStretch, nil
	default:
		return ScaleModeFit, fmt.Errorf("unknown scale mode %q", s)
	}
}

// VideoScaler scales I420 planes.
type VideoScaler struct {
	srcWidth, srcHeight int
	dstWidth, dstHeight int
	mode                ScaleMode

	// Pre-allocated output planes
	outY, outU, outV []byte
}

// NewVideoScaler creates a new scaler for the given dimensions.
func NewVideoScaler(srcWidth, srcHeight, dstWidth, dstHeight int, mode ScaleMode) *VideoScaler {
	ySize := dstWidth * dstHeight
	uvSize := (dstWidth / 2) * (dstHeight / 2)

	return &VideoScaler{
		srcWidth:  srcWidth,
		srcHeight: srcHeight,
		dstWidth:  dstWidth,
		dstHeight: dstHeight,
		mode:      mode,
		outY:      make([]byte, ySize),
		outU:      make([]byte, uvSize),
		outV:      make([]byte, uvSize),
	}
}

// Scale scales I420 planes to the target dimensions. The input planes are
// returned unchanged when no scaling is needed. Output planes are reused by
// the next call.
func (s *VideoScaler) Scale(planes [][]byte, strides []int) ([][]byte, []int) {
	if s.srcWidth == s.dstWidth && s.srcHeight == s.dstHeight {
		return planes, strides
	}

	srcX, srcY, srcW, srcH := s.calculateSourceRegion(s.srcWidth, s.srcHeight)

	s.scalePlane(planes[0], strides[0], srcX, srcY, srcW, srcH,
		s.outY, s.dstWidth, s.dstWidth, s.dstHeight)

	// Chroma at half resolution
	s.scalePlane(planes[1], strides[1], srcX/2, srcY/2, srcW/2, srcH/2,
		s.outU, s.dstWidth/2, s.dstWidth/2, s.dstHeight/2)
	s.scalePlane(planes[2], strides[2], srcX/2, srcY/2, srcW/2, srcH/2,
		s.outV, s.dstWidth/2, s.dstWidth/2, s.dstHeight/2)

	return [][]byte{s.outY, s.outU, s.outV}, []int{s.dstWidth, s.dstWidth / 2, s.dstWidth / 2}
}

// calculateSourceRegion determines what region of the source to use based on scale mode.
func (s *VideoScaler) calculateSourceRegion(srcW, srcH int) (x, y, w, h int) {
	if s.mode != ScaleModeFill {
		return 0, 0, srcW, srcH
	}

	// Crop source to match target aspect ratio
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(s.dstWidth) / float64(s.dstHeight)

	if srcAspect > dstAspect {
		newW := int(float64(srcH) * dstAspect)
		return ((srcW - newW) / 2) &^ 1, 0, newW, srcH
	} else if srcAspect < dstAspect {
		newH := int(float64(srcW) / dstAspect)
		return 0, ((srcH - newH) / 2) &^ 1, srcW, newH
	}
	return 0, 0, srcW, srcH
}

// scalePlane scales a single plane using bilinear interpolation.
func (s *VideoScaler) scalePlane(src []byte, srcStride, srcX, srcY, srcW, srcH int,
	dst []byte, dstStride, dstW, dstH int) {

	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return
	}

	// Fixed-point scaling factors (16.16)
	xRatio := (srcW << 16) / dstW
	yRatio := (srcH << 16) / dstH

	for y := 0; y < dstH; y++ {
		srcYFP := y * yRatio
		yWeight := srcYFP & 0xFFFF

		y0 := srcYFP>>16 + srcY
		y1 := y0 + 1
		if y1 >= srcY+srcH {
			y1 = y0
		}

		for x := 0; x < dstW; x++ {
			srcXFP := x * xRatio
			xWeight := srcXFP & 0xFFFF

			x0 := srcXFP>>16 + srcX
			x1 := x0 + 1
			if x1 >= srcX+srcW {
				x1 = x0
			}

			p00 := int(src[y0*srcStride+x0])
			p10 := int(src[y0*srcStride+x1])
			p01 := int(src[y1*srcStride+x0])
			p11 := int(src[y1*srcStride+x1])

			top := (p00*(0x10000-xWeight) + p10*xWeight) >> 16
			bottom := (p01*(0x10000-xWeight) + p11*xWeight) >> 16

			dst[y*dstStride+x] = byte((top*(0x10000-yWeight) + bottom*yWeight) >> 16)
		}
	}
}

// CalculateScaledSize returns the output dimensions when scaling with a given mode.
// A zero maxW or maxH keeps the source aspect ratio along that axis.
func CalculateScaledSize(srcW, srcH, maxW, maxH int, mode ScaleMode) (w, h int) {
	switch {
	case srcW <= 0 || srcH <= 0:
		return maxW, maxH
	case maxW <= 0 && maxH <= 0:
		return srcW, srcH
	case maxW <= 0:
		return (srcW*maxH/srcH + 1) &^ 1, maxH
	case maxH <= 0:
		return maxW, (srcH*maxW/srcW + 1) &^ 1
	}

	if mode != ScaleModeFit {
		return maxW, maxH
	}

	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(maxW) / float64(maxH)

	if srcAspect > dstAspect {
		w = maxW
		h = int(float64(maxW) / srcAspect)
	} else {
		h = maxH
		w = int(float64(maxH) * srcAspect)
	}
	// Even dimensions for 4:2:0 chroma
	w = (w + 1) &^ 1
	h = (h + 1) &^ 1
	return w, h
}

// I420ToPacked converts I420 planes to packed 32-bit RGBA or BGRA using
// BT.601 limited-range coefficients. Alpha is always opaque.
func I420ToPacked(dst []byte, dstStride int, planes [][]byte, strides []int, width, height int, format PixelFormat) error {
	var ri, bi int
	switch format {
	case PixelFormatRGBA32:
		ri, bi = 0, 2
	case PixelFormatBGRA32:
		ri, bi = 2, 0
	default:
		return fmt.Errorf("%w: packing to %s", ErrNotSupported, format)
	}
	if len(planes) < 3 || len(strides) < 3 {
		return fmt.Errorf("I420 frame needs 3 planes, got %d", len(planes))
	}
	if dstStride < width*4 || len(dst) < dstStride*(height-1)+width*4 {
		return fmt.Errorf("destination too small: %d bytes for %dx%d stride %d", len(dst), width, height, dstStride)
	}

	yp, up, vp := planes[0], planes[1], planes[2]
	for y := 0; y < height; y++ {
		row := dst[y*dstStride:]
		yRow := yp[y*strides[0]:]
		uRow := up[(y/2)*strides[1]:]
		vRow := vp[(y/2)*strides[2]:]
		for x := 0; x < width; x++ {
			c := 298 * (int(yRow[x]) - 16)
			d := int(uRow[x/2]) - 128
			e := int(vRow[x/2]) - 128

			px := row[x*4 : x*4+4]
			px[ri] = clampByte((c + 409*e + 128) >> 8)
			px[1] = clampByte((c - 100*d - 208*e + 128) >> 8)
			px[bi] = clampByte((c + 516*d + 128) >> 8)
			px[3] = 0xFF
		}
	}
	return nil
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// pixelConverter is the pure-Go VideoConverter for I420 sources.
type pixelConverter struct {
	opts   ConvertOptions
	scaler *VideoScaler
}

func newPixelConverter(opts ConvertOptions) (*pixelConverter, error) {
	if opts.Format.BytesPerPixel() != 4 {
		return nil, fmt.Errorf("%w: output format %s", ErrNotSupported, opts.Format)
	}
	return &pixelConverter{opts: opts}, nil
}

func (c *pixelConverter) OutputSize(srcWidth, srcHeight int) (width, height, stride int) {
	width, height = CalculateScaledSize(srcWidth, srcHeight, c.opts.Width, c.opts.Height, c.opts.Mode)
	return width, height, width * 4
}

func (c *pixelConverter) Convert(src *RawFrame, dst []byte) error {
	if src.Format != PixelFormatI420 {
		return fmt.Errorf("%w: converting from %s", ErrNotSupported, src.Format)
	}
	w, h, stride := c.OutputSize(src.Width, src.Height)

	planes, strides := src.Planes, src.Strides
	if w != src.Width || h != src.Height {
		if c.scaler == nil || c.scaler.srcWidth != src.Width || c.scaler.srcHeight != src.Height ||
			c.scaler.dstWidth != w || c.scaler.dstHeight != h {
			c.scaler = NewVideoScaler(src.Width, src.Height, w, h, c.opts.Mode)
		}
		planes, strides = c.scaler.Scale(planes, strides)
	}
	return I420ToPacked(dst, stride, planes, strides, w, h, c.opts.Format)
}

func (c *pixelConverter) Close() error {
	c.scaler = nil
	return nil
}
