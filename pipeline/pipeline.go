// Package pipeline wires box resolution, spherical warping, mask
// construction, and compositing into the single configurable operation
// the CLI and the job tasks run.
package pipeline

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/d3ud3u-ntp2/spherize/compose"
	"github.com/d3ud3u-ntp2/spherize/raster"
	"github.com/d3ud3u-ntp2/spherize/roi"
	"github.com/d3ud3u-ntp2/spherize/warp"
)

// Layer is one source layer of an operation. Mask, when set, overrides
// the shared silhouette mask for this layer (a color-key cutout from a
// kit, for example); offsets carry through to compositing and shift the
// warp box into the layer's own frame.
type Layer struct {
	Image   *raster.Raster
	Mask    *raster.Mask
	OffsetX int
	OffsetY int
}

// Options configures one operation. The zero value is not useful; start
// from DefaultOptions.
type Options struct {
	// BoxSource is the explicit region of interest: inline "x0,y0,x1,y1"
	// text or the path of a box file. Empty means automatic detection
	// against the reference layer.
	BoxSource string

	// Strength is the warp amount in [0,1]; 0 is the identity, 1 the
	// full spherical projection.
	Strength float64

	// Smooth softens the shared silhouette mask with a half-pixel blur.
	Smooth bool

	// Threshold is the intensity floor for automatic box detection.
	Threshold int

	// MaskLevels stretches shared-mask contrast between two percentiles
	// when hi > lo. The zero value leaves the mask alone.
	MaskLevels [2]float64

	// Workers caps the pixel-loop goroutines; 0 means GOMAXPROCS.
	Workers int
}

// DefaultOptions returns the standard full-strength smoothed
// configuration with the stock detection threshold.
func DefaultOptions() Options {
	return Options{
		Strength:  1.0,
		Smooth:    true,
		Threshold: roi.DefaultThreshold,
	}
}

// Result is the outcome of one operation. Degraded marks a run that
// finished without the warp backend; its layers were composited
// undistorted and Notes says so.
type Result struct {
	Image    *raster.Raster
	Box      raster.Box
	Degraded bool
	Notes    []string
}

// Run resolves the region of interest against the first (reference)
// layer, warps every layer through one field built for that box, derives
// one shared mask from the warped reference, and paints the layers in
// order over the background. Errors carry their stage: resolve, warp,
// mask, or composite.
func Run(background *raster.Raster, layers []Layer, opts Options) (Result, error) {
	if background == nil {
		return Result{}, errors.New("missing background raster")
	}
	if len(layers) == 0 {
		return Result{}, errors.New("no layers to composite")
	}
	for i, l := range layers {
		if l.Image == nil {
			return Result{}, fmt.Errorf("layer %d: missing raster", i)
		}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = roi.DefaultThreshold
	}

	ref := layers[0].Image
	box, err := roi.Resolve(opts.BoxSource, ref, threshold)
	if err != nil {
		return Result{}, fmt.Errorf("resolve: %w", err)
	}

	res := Result{Box: box}
	strength := opts.Strength
	if strength < 0 {
		strength = 0
	} else if strength > 1 {
		strength = 1
	}

	// One field per distinct layer geometry; with the usual single
	// full-frame geometry that is exactly one field for the whole run.
	var proj warp.Projector
	if strength > 0 {
		var ok bool
		proj, ok = warp.Active()
		if !ok {
			res.Degraded = true
			res.Notes = append(res.Notes, "warp backend unavailable, layers composited undistorted")
		}
	}
	type geometry struct{ w, h, offX, offY int }
	fields := make(map[geometry]*warp.Field)

	warped := make([]*raster.Raster, len(layers))
	for i, l := range layers {
		if proj == nil {
			warped[i] = l.Image.Clone()
			continue
		}
		g := geometry{l.Image.W, l.Image.H, l.OffsetX, l.OffsetY}
		field, ok := fields[g]
		if !ok {
			shifted := raster.Box{
				MinX: box.MinX - g.offX,
				MinY: box.MinY - g.offY,
				MaxX: box.MaxX - g.offX,
				MaxY: box.MaxY - g.offY,
			}
			field = proj.Field(g.w, g.h, shifted, strength)
			fields[g] = field
		}
		warped[i] = warp.Resample(l.Image, field, workers)
	}

	mask := compose.MaskFromReference(warped[0], opts.Smooth)
	if opts.MaskLevels[1] > opts.MaskLevels[0] {
		mask.Levels(opts.MaskLevels[0], opts.MaskLevels[1])
	}

	clayers := make([]compose.Layer, len(layers))
	for i := range layers {
		m := layers[i].Mask
		if m == nil {
			if warped[i].W != mask.W || warped[i].H != mask.H {
				return Result{}, fmt.Errorf("mask: layer %d is %dx%d but the shared mask is %dx%d; give it its own mask",
					i, warped[i].W, warped[i].H, mask.W, mask.H)
			}
			m = mask
		}
		clayers[i] = compose.Layer{
			Image:   warped[i],
			Mask:    m,
			OffsetX: layers[i].OffsetX,
			OffsetY: layers[i].OffsetY,
		}
	}

	out, err := compose.Composite(background, clayers, workers)
	if err != nil {
		return Result{}, fmt.Errorf("composite: %w", err)
	}
	res.Image = out
	return res, nil
}
