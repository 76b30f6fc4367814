package playback

import (
	"errors"
	"testing"
)

func TestVideoScaler_NoScaling(t *testing.T) {
	planes, strides := createGradientPlanes(640, 480)

	scaler := NewVideoScaler(640, 480, 640, 480, ScaleModeStretch)
	out, outStrides := scaler.Scale(planes, strides)

	// Should return the input planes when no scaling is needed
	if &out[0][0] != &planes[0][0] || outStrides[0] != strides[0] {
		t.Error("Expected same planes when no scaling needed")
	}
}

func TestVideoScaler_Downscale(t *testing.T) {
	srcW, srcH := 1280, 720
	dstW, dstH := 640, 360

	planes, strides := createGradientPlanes(srcW, srcH)

	scaler := NewVideoScaler(srcW, srcH, dstW, dstH, ScaleModeStretch)
	out, outStrides := scaler.Scale(planes, strides)

	if len(out[0]) != dstW*dstH {
		t.Errorf("Y plane size mismatch: expected %d, got %d", dstW*dstH, len(out[0]))
	}
	if len(out[1]) != (dstW/2)*(dstH/2) {
		t.Errorf("U plane size mismatch")
	}
	if outStrides[0] != dstW || outStrides[1] != dstW/2 {
		t.Errorf("Unexpected strides %v", outStrides)
	}

	// Horizontal gradient survives scaling
	if out[0][0] >= out[0][dstW-1] {
		t.Errorf("Expected gradient left %d < right %d", out[0][0], out[0][dstW-1])
	}
}

func TestVideoScaler_Upscale(t *testing.T) {
	planes, strides := createGradientPlanes(320, 240)

	scaler := NewVideoScaler(320, 240, 640, 480, ScaleModeStretch)
	out, _ := scaler.Scale(planes, strides)

	if len(out[0]) != 640*480 {
		t.Errorf("Expected %d Y bytes, got %d", 640*480, len(out[0]))
	}
}

func TestVideoScaler_Fill(t *testing.T) {
	// 16:9 source to 4:3 destination (should crop sides)
	planes, strides := createGradientPlanes(1920, 1080)

	scaler := NewVideoScaler(1920, 1080, 640, 480, ScaleModeFill)
	out, _ := scaler.Scale(planes, strides)

	if len(out[0]) != 640*480 {
		t.Errorf("Expected %d Y bytes, got %d", 640*480, len(out[0]))
	}
	// Cropped sides: the left edge is no longer the darkest source column
	if out[0][0] == 0 {
		t.Error("Expected left columns to be cropped")
	}
}

func TestCalculateScaledSize(t *testing.T) {
	tests := []struct {
		name             string
		srcW, srcH       int
		maxW, maxH       int
		mode             ScaleMode
		expectW, expectH int
	}{
		{"16:9 to 4:3 fit", 1920, 1080, 640, 480, ScaleModeFit, 640, 360},
		{"4:3 to 16:9 fit", 640, 480, 1280, 720, ScaleModeFit, 960, 720},
		{"same aspect", 1280, 720, 640, 360, ScaleModeFit, 640, 360},
		{"fill mode", 1920, 1080, 640, 480, ScaleModeFill, 640, 480},
		{"stretch mode", 1920, 1080, 640, 480, ScaleModeStretch, 640, 480},
		{"source size", 320, 240, 0, 0, ScaleModeFit, 320, 240},
		{"width only", 1280, 720, 640, 0, ScaleModeFit, 640, 360},
		{"height only", 1280, 720, 0, 360, ScaleModeFit, 640, 360},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := CalculateScaledSize(tt.srcW, tt.srcH, tt.maxW, tt.maxH, tt.mode)
			if w != tt.expectW || h != tt.expectH {
				t.Errorf("Expected %dx%d, got %dx%d", tt.expectW, tt.expectH, w, h)
			}
		})
	}
}

func TestParseScaleMode(t *testing.T) {
	for _, mode := range []ScaleMode{ScaleModeFit, ScaleModeFill, ScaleModeStretch} {
		got, err := ParseScaleMode(mode.String())
		if err != nil || got != mode {
			t.Errorf("ParseScaleMode(%q) = %v, %v", mode.String(), got, err)
		}
	}
	if _, err := ParseScaleMode("zoom"); err == nil {
		t.Error("Expected error for unknown mode")
	}
}

func TestI420ToPacked(t *testing.T) {
	tests := []struct {
		name    string
		y, u, v byte
		format  PixelFormat
		want    [4]byte
	}{
		{"black bgra", 16, 128, 128, PixelFormatBGRA32, [4]byte{0, 0, 0, 255}},
		{"white bgra", 235, 128, 128, PixelFormatBGRA32, [4]byte{255, 255, 255, 255}},
		{"red rgba", 82, 90, 240, PixelFormatRGBA32, [4]byte{255, 0, 0, 255}},
		{"red bgra", 82, 90, 240, PixelFormatBGRA32, [4]byte{0, 0, 255, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planes := [][]byte{{tt.y, tt.y, tt.y, tt.y}, {tt.u}, {tt.v}}
			strides := []int{2, 1, 1}
			dst := make([]byte, 2*2*4)

			if err := I420ToPacked(dst, 8, planes, strides, 2, 2, tt.format); err != nil {
				t.Fatalf("I420ToPacked: %v", err)
			}
			for i := 0; i < 4; i++ {
				px := dst[i*4 : i*4+4]
				for c := 0; c < 4; c++ {
					if diff := int(px[c]) - int(tt.want[c]); diff < -2 || diff > 2 {
						t.Fatalf("pixel %d = %v, want %v", i, px, tt.want)
					}
				}
			}
		})
	}
}

func TestI420ToPacked_Errors(t *testing.T) {
	planes, strides := createGradientPlanes(4, 4)

	err := I420ToPacked(make([]byte, 64), 16, planes, strides, 4, 4, PixelFormatRGB24)
	if !errors.Is(err, ErrNotSupported) {
		t.Errorf("Expected ErrNotSupported, got %v", err)
	}
	if err := I420ToPacked(make([]byte, 10), 16, planes, strides, 4, 4, PixelFormatBGRA32); err == nil {
		t.Error("Expected error for short destination")
	}
}

func TestPixelConverter(t *testing.T) {
	conv, err := newPixelConverter(ConvertOptions{Format: PixelFormatBGRA32, Width: 160, Height: 120, Mode: ScaleModeFit})
	if err != nil {
		t.Fatalf("newPixelConverter: %v", err)
	}
	defer conv.Close()

	w, h, stride := conv.OutputSize(320, 240)
	if w != 160 || h != 120 || stride != 640 {
		t.Fatalf("OutputSize = %dx%d/%d", w, h, stride)
	}

	planes, strides := createGradientPlanes(320, 240)
	src := &RawFrame{Width: 320, Height: 240, Format: PixelFormatI420, Planes: planes, Strides: strides}
	dst := make([]byte, stride*h)
	if err := conv.Convert(src, dst); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	for i := 3; i < len(dst); i += 4 {
		if dst[i] != 0xFF {
			t.Fatalf("alpha at %d = %d", i, dst[i])
		}
	}

	if _, err := newPixelConverter(ConvertOptions{Format: PixelFormatI420}); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Expected ErrNotSupported for planar output, got %v", err)
	}
	src.Format = PixelFormatNV12
	if err := conv.Convert(src, dst); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Expected ErrNotSupported for NV12 input, got %v", err)
	}
}

func createGradientPlanes(width, height int) ([][]byte, []int) {
	yData := make([]byte, width*height)
	uData := make([]byte, (width/2)*(height/2))
	vData := make([]byte, (width/2)*(height/2))

	// Fill Y with horizontal gradient
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			yData[y*width+x] = byte(x * 255 / width)
		}
	}
	for i := range uData {
		uData[i] = 128
		vData[i] = 128
	}
	return [][]byte{yData, uData, vData}, []int{width, width / 2, width / 2}
}
