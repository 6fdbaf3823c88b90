//go:build cgo
// +build cgo

package detect

import (
	"errors"
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/d3ud3u-ntp2/spherize/raster"
)

// Subject runs the saliency model at modelPath over img and returns the
// subject's bounding box in image coordinates. roi.ErrNoSubject passes
// through when the thresholded heatmap is empty.
func Subject(modelPath string, img *raster.Raster, opts Options) (raster.Box, error) {
	if img == nil {
		return raster.Box{}, errors.New("missing raster")
	}
	if opts.InputWidth <= 0 || opts.InputHeight <= 0 {
		return raster.Box{}, fmt.Errorf("invalid input size %dx%d", opts.InputWidth, opts.InputHeight)
	}
	if opts.InputName == "" || opts.OutputName == "" {
		return raster.Box{}, errors.New("input and output names must be provided")
	}

	if opts.ORTSharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.ORTSharedLibraryPath)
	} else if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		ort.SetSharedLibraryPath(p)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return raster.Box{}, err
	}
	defer ort.DestroyEnvironment()

	inShape := ort.NewShape(1, 3, int64(opts.InputHeight), int64(opts.InputWidth))
	input, err := ort.NewTensor(inShape, preprocess(img, opts))
	if err != nil {
		return raster.Box{}, err
	}
	defer input.Destroy()

	outShape := ort.NewShape(1, 1, int64(opts.InputHeight), int64(opts.InputWidth))
	output, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		return raster.Box{}, err
	}
	defer output.Destroy()

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{opts.InputName},
		[]string{opts.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		return raster.Box{}, err
	}
	defer session.Destroy()

	if err := session.Run(); err != nil {
		return raster.Box{}, fmt.Errorf("failed to run detection model: %w", err)
	}

	return boxFromHeatmap(output.GetData(), opts, img.W, img.H)
}
