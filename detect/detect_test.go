package detect

import (
	"errors"
	"math"
	"testing"

	"github.com/d3ud3u-ntp2/spherize/raster"
	"github.com/d3ud3u-ntp2/spherize/roi"
)

// TestDefaultOptions verifies the stock saliency configuration
func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.InputWidth != 320 || opts.InputHeight != 320 {
		t.Errorf("input size = %dx%d; want 320x320", opts.InputWidth, opts.InputHeight)
	}
	if opts.InputName != "input" || opts.OutputName != "output" {
		t.Errorf("tensor names = %q/%q; want input/output", opts.InputName, opts.OutputName)
	}
	if opts.Threshold != 0.5 {
		t.Errorf("Threshold = %v; want 0.5", opts.Threshold)
	}
	if opts.NormalizeStddevRGB != [3]float32{1, 1, 1} {
		t.Errorf("stddev = %v; want {1,1,1}", opts.NormalizeStddevRGB)
	}
}

func solidRaster(w, h int, r, g, b uint8) *raster.Raster {
	img := raster.New(w, h, 3)
	for i := 0; i < len(img.Pix); i += 3 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2] = r, g, b
	}
	return img
}

// TestPreprocessLayout verifies the NCHW plane ordering and 0-1 scale
func TestPreprocessLayout(t *testing.T) {
	opts := DefaultOptions()
	opts.InputWidth, opts.InputHeight = 4, 4

	data := preprocess(solidRaster(4, 4, 255, 0, 0), opts)
	if len(data) != 3*4*4 {
		t.Fatalf("len(data) = %d; want %d", len(data), 3*4*4)
	}
	numPixels := 16
	for i := 0; i < numPixels; i++ {
		if math.Abs(float64(data[i])-1.0) > 1e-3 {
			t.Fatalf("red plane[%d] = %v; want 1.0", i, data[i])
		}
		if math.Abs(float64(data[numPixels+i])) > 1e-3 {
			t.Fatalf("green plane[%d] = %v; want 0.0", i, data[numPixels+i])
		}
		if math.Abs(float64(data[2*numPixels+i])) > 1e-3 {
			t.Fatalf("blue plane[%d] = %v; want 0.0", i, data[2*numPixels+i])
		}
	}
}

// TestPreprocessFlattensAlphaOverWhite verifies transparent pixels read
// as white, not black
func TestPreprocessFlattensAlphaOverWhite(t *testing.T) {
	img := raster.New(2, 2, 4)
	// all channels zero: fully transparent black

	opts := DefaultOptions()
	opts.InputWidth, opts.InputHeight = 2, 2

	data := preprocess(img, opts)
	for i, v := range data {
		if math.Abs(float64(v)-1.0) > 1e-3 {
			t.Fatalf("data[%d] = %v; want 1.0 (white)", i, v)
		}
	}
}

// TestPreprocessNormalize verifies mean and stddev are applied per
// channel after the 0-1 scale
func TestPreprocessNormalize(t *testing.T) {
	opts := DefaultOptions()
	opts.InputWidth, opts.InputHeight = 2, 2
	opts.NormalizeMeanRGB = [3]float32{0.5, 0.5, 0.5}
	opts.NormalizeStddevRGB = [3]float32{0.5, 0.5, 0.5}

	data := preprocess(solidRaster(2, 2, 255, 0, 255), opts)
	numPixels := 4
	if math.Abs(float64(data[0])-1.0) > 1e-3 {
		t.Errorf("red = %v; want 1.0", data[0])
	}
	if math.Abs(float64(data[numPixels])+1.0) > 1e-3 {
		t.Errorf("green = %v; want -1.0", data[numPixels])
	}

	// zero stddev falls back to 1 instead of dividing by zero
	opts.NormalizeStddevRGB = [3]float32{}
	data = preprocess(solidRaster(2, 2, 255, 0, 255), opts)
	if math.Abs(float64(data[0])-0.5) > 1e-3 {
		t.Errorf("red with zero stddev = %v; want 0.5", data[0])
	}
}

// TestBoxFromHeatmap verifies thresholding and the map back to source
// coordinates
func TestBoxFromHeatmap(t *testing.T) {
	opts := DefaultOptions()
	opts.InputWidth, opts.InputHeight = 8, 8

	heat := make([]float32, 64)
	for i := range heat {
		heat[i] = 0.1
	}
	for y := 2; y < 6; y++ {
		for x := 2; x < 6; x++ {
			heat[y*8+x] = 0.9
		}
	}

	box, err := boxFromHeatmap(heat, opts, 16, 16)
	if err != nil {
		t.Fatalf("boxFromHeatmap() error = %v", err)
	}
	want := raster.Box{MinX: 4, MinY: 4, MaxX: 12, MaxY: 12}
	if box != want {
		t.Errorf("box = %v; want %v", box, want)
	}
}

// TestBoxFromHeatmapNoSubject verifies an all-cold map reports no
// subject
func TestBoxFromHeatmapNoSubject(t *testing.T) {
	opts := DefaultOptions()
	opts.InputWidth, opts.InputHeight = 4, 4

	heat := make([]float32, 16)
	for i := range heat {
		heat[i] = 0.05
	}
	_, err := boxFromHeatmap(heat, opts, 8, 8)
	if !errors.Is(err, roi.ErrNoSubject) {
		t.Errorf("error = %v; want roi.ErrNoSubject", err)
	}
}

// TestScaleToSource verifies outward rounding and clipping
func TestScaleToSource(t *testing.T) {
	tests := []struct {
		name       string
		box        raster.Box
		srcW, srcH int
		inW, inH   int
		want       raster.Box
	}{
		{
			name: "identity",
			box:  raster.Box{MinX: 1, MinY: 2, MaxX: 5, MaxY: 6},
			srcW: 10, srcH: 10, inW: 10, inH: 10,
			want: raster.Box{MinX: 1, MinY: 2, MaxX: 5, MaxY: 6},
		},
		{
			name: "double",
			box:  raster.Box{MinX: 1, MinY: 1, MaxX: 3, MaxY: 3},
			srcW: 8, srcH: 8, inW: 4, inH: 4,
			want: raster.Box{MinX: 2, MinY: 2, MaxX: 6, MaxY: 6},
		},
		{
			name: "fractional rounds outward",
			box:  raster.Box{MinX: 1, MinY: 1, MaxX: 2, MaxY: 2},
			srcW: 3, srcH: 3, inW: 2, inH: 2,
			want: raster.Box{MinX: 1, MinY: 1, MaxX: 3, MaxY: 3},
		},
		{
			name: "clips to source",
			box:  raster.Box{MinX: 0, MinY: 0, MaxX: 4, MaxY: 4},
			srcW: 6, srcH: 6, inW: 4, inH: 4,
			want: raster.Box{MinX: 0, MinY: 0, MaxX: 6, MaxY: 6},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scaleToSource(tt.box, tt.srcW, tt.srcH, tt.inW, tt.inH)
			if got != tt.want {
				t.Errorf("scaleToSource() = %v; want %v", got, tt.want)
			}
		})
	}
}
