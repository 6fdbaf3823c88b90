// Package detect locates the subject of a source layer with an ONNX
// saliency model, yielding the bounding box automatic warps center on.
// The onnxruntime bindings need cgo; binaries built without it get
// ErrCGORequired from Subject and fall back to intensity detection.
package detect

import (
	"errors"
	"image"
	"image/color"
	"math"
	"strings"

	resize "github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"github.com/d3ud3u-ntp2/spherize/raster"
	"github.com/d3ud3u-ntp2/spherize/roi"
)

// ErrCGORequired is returned when detection is attempted in a binary
// built without CGO support.
var ErrCGORequired = errors.New("subject detection requires CGO support; rebuild with CGO_ENABLED=1")

// Options configures how the detector runs.
type Options struct {
	// Path to the onnxruntime shared library (.dll/.so/.dylib). If empty, the
	// environment variable ONNXRUNTIME_SHARED_LIBRARY_PATH will be respected.
	ORTSharedLibraryPath string

	// Input and output tensor names in the model graph.
	InputName  string
	OutputName string

	// Image preprocessing settings
	InputWidth         int
	InputHeight        int
	NormalizeMeanRGB   [3]float32 // default {0,0,0}
	NormalizeStddevRGB [3]float32 // default {1,1,1}

	// Interpolation filter name: "bicubic", "bilinear", "nearest", or "catmullrom".
	Interpolation string

	// Threshold is the minimum heatmap probability for a pixel to count
	// as subject.
	Threshold float32
}

// DefaultOptions returns the configuration matching common saliency
// models with a square 320x320 input and a sigmoid probability map out.
func DefaultOptions() Options {
	return Options{
		InputName:          "input",
		OutputName:         "output",
		InputWidth:         320,
		InputHeight:        320,
		NormalizeMeanRGB:   [3]float32{0, 0, 0},
		NormalizeStddevRGB: [3]float32{1, 1, 1},
		Interpolation:      "bicubic",
		Threshold:          0.5,
	}
}

// preprocess flattens img over white, resizes it to the model input
// size, and lays it out as NCHW float32 normalized RGB.
func preprocess(img *raster.Raster, opts Options) []float32 {
	src := img.FlattenOver(color.NRGBA{R: 255, G: 255, B: 255, A: 255}).ToNRGBA()

	var dst image.Image
	if strings.EqualFold(strings.TrimSpace(opts.Interpolation), "bicubic") {
		dst = resize.Resize(uint(opts.InputWidth), uint(opts.InputHeight), src, resize.Bicubic)
	} else {
		rgba := image.NewRGBA(image.Rect(0, 0, opts.InputWidth, opts.InputHeight))
		scaler := chooseScaler(opts.Interpolation)
		scaler.Scale(rgba, rgba.Bounds(), src, src.Bounds(), draw.Over, nil)
		dst = rgba
	}

	numPixels := opts.InputWidth * opts.InputHeight
	data := make([]float32, 3*numPixels)

	// Avoid division by zero
	stdR := opts.NormalizeStddevRGB[0]
	stdG := opts.NormalizeStddevRGB[1]
	stdB := opts.NormalizeStddevRGB[2]
	if stdR == 0 {
		stdR = 1
	}
	if stdG == 0 {
		stdG = 1
	}
	if stdB == 0 {
		stdB = 1
	}

	rOff := 0
	gOff := numPixels
	bOff := 2 * numPixels
	idx := 0
	for y := 0; y < opts.InputHeight; y++ {
		for x := 0; x < opts.InputWidth; x++ {
			c := color.RGBAModel.Convert(dst.At(x, y)).(color.RGBA)
			r := float32(c.R) / 255.0
			g := float32(c.G) / 255.0
			b := float32(c.B) / 255.0
			data[rOff+idx] = (r - opts.NormalizeMeanRGB[0]) / stdR
			data[gOff+idx] = (g - opts.NormalizeMeanRGB[1]) / stdG
			data[bOff+idx] = (b - opts.NormalizeMeanRGB[2]) / stdB
			idx++
		}
	}
	return data
}

func chooseScaler(name string) draw.Scaler {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bilinear":
		return draw.BiLinear
	case "nearest":
		return draw.NearestNeighbor
	default:
		return draw.CatmullRom
	}
}

// boxFromHeatmap thresholds the model's probability map and bounds the
// surviving pixels in source coordinates.
func boxFromHeatmap(heat []float32, opts Options, srcW, srcH int) (raster.Box, error) {
	m := raster.NewMask(opts.InputWidth, opts.InputHeight)
	n := len(heat)
	if n > len(m.Pix) {
		n = len(m.Pix)
	}
	for i := 0; i < n; i++ {
		v := heat[i]
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		m.Pix[i] = uint8(v*255 + 0.5)
	}

	threshold := int(opts.Threshold*255 + 0.5)
	if threshold < 1 {
		threshold = 1
	}
	b, err := roi.FromMask(m, threshold)
	if err != nil {
		return raster.Box{}, err
	}
	return scaleToSource(b, srcW, srcH, opts.InputWidth, opts.InputHeight), nil
}

// scaleToSource maps a box in model-input coordinates back onto the
// source image, rounding outward so the subject stays covered.
func scaleToSource(b raster.Box, srcW, srcH, inW, inH int) raster.Box {
	sx := float64(srcW) / float64(inW)
	sy := float64(srcH) / float64(inH)
	out := raster.Box{
		MinX: int(float64(b.MinX) * sx),
		MinY: int(float64(b.MinY) * sy),
		MaxX: int(math.Ceil(float64(b.MaxX) * sx)),
		MaxY: int(math.Ceil(float64(b.MaxY) * sy)),
	}
	return out.Clip(srcW, srcH)
}
