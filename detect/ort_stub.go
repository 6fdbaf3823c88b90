//go:build !cgo
// +build !cgo

package detect

import "github.com/d3ud3u-ntp2/spherize/raster"

// Subject returns ErrCGORequired; the onnxruntime bindings are not
// available without cgo.
func Subject(modelPath string, img *raster.Raster, opts Options) (raster.Box, error) {
	return raster.Box{}, ErrCGORequired
}
