// Package compose paints ordered layers onto a background with
// mask-driven alpha blending and derives the silhouette masks the
// pipeline shares across layers.
package compose

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/d3ud3u-ntp2/spherize/raster"
)

// Layer pairs a raster with an optional opacity mask and a placement
// offset. A nil mask paints the layer at full opacity; a mask must match
// the layer's dimensions exactly.
type Layer struct {
	Image   *raster.Raster
	Mask    *raster.Mask
	OffsetX int
	OffsetY int
}

// Composite paints layers strictly in order onto background and returns
// the flattened 4-channel result. Per color channel the blend is
// out = src*a + out*(1-a) with a taken from the layer mask gated by the
// source's own alpha; full opacity reproduces the source pixel exactly
// and zero opacity leaves the prior output untouched.
func Composite(background *raster.Raster, layers []Layer, workers int) (*raster.Raster, error) {
	if background == nil {
		return nil, errors.New("nil background")
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := background.WithAlpha()
	if out == background {
		out = background.Clone()
	}
	for i, layer := range layers {
		if layer.Image == nil {
			return nil, fmt.Errorf("layer %d: nil image", i)
		}
		if layer.Mask != nil && (layer.Mask.W != layer.Image.W || layer.Mask.H != layer.Image.H) {
			return nil, fmt.Errorf("layer %d: mask %dx%d does not match image %dx%d",
				i, layer.Mask.W, layer.Mask.H, layer.Image.W, layer.Image.H)
		}
		paintLayer(out, layer, workers)
	}
	return out, nil
}

// paintLayer blends one layer into dst in place.
func paintLayer(dst *raster.Raster, layer Layer, workers int) {
	src := layer.Image.WithAlpha()
	offX, offY := layer.OffsetX, layer.OffsetY

	y0 := max(0, offY)
	y1 := min(dst.H, offY+src.H)
	x0 := max(0, offX)
	x1 := min(dst.W, offX+src.W)
	if y0 >= y1 || x0 >= x1 {
		return
	}

	rows := raster.SplitRows(y1-y0, workers)
	var wg sync.WaitGroup
	for _, rr := range rows {
		wg.Add(1)
		go func(r0, r1 int) {
			defer wg.Done()
			for y := y0 + r0; y < y0+r1; y++ {
				sy := y - offY
				drow := dst.Pix[y*dst.Stride : y*dst.Stride+dst.W*4]
				srow := src.Pix[sy*src.Stride : sy*src.Stride+src.W*4]
				var mrow []uint8
				if layer.Mask != nil {
					mrow = layer.Mask.Pix[sy*layer.Mask.W : sy*layer.Mask.W+layer.Mask.W]
				}
				for x := x0; x < x1; x++ {
					si := (x - offX) * 4
					di := x * 4
					ma := 255
					if mrow != nil {
						ma = int(mrow[x-offX])
					}
					sa := int(srow[si+3])
					if ma == 0 || sa == 0 {
						continue
					}
					if ma == 255 && sa == 255 {
						drow[di+0] = srow[si+0]
						drow[di+1] = srow[si+1]
						drow[di+2] = srow[si+2]
						drow[di+3] = 255
						continue
					}
					a := float64(ma) * float64(sa) / (255 * 255)
					drow[di+0] = uint8(float64(srow[si+0])*a + float64(drow[di+0])*(1-a) + 0.5)
					drow[di+1] = uint8(float64(srow[si+1])*a + float64(drow[di+1])*(1-a) + 0.5)
					drow[di+2] = uint8(float64(srow[si+2])*a + float64(drow[di+2])*(1-a) + 0.5)
					da := float64(drow[di+3]) / 255
					drow[di+3] = uint8((a+da*(1-a))*255 + 0.5)
				}
			}
		}(rr[0], rr[1])
	}
	wg.Wait()
}
