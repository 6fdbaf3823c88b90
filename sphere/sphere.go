// Package sphere is the spherical bulge backend for the warp package.
// Importing it registers the projector:
//
//	import _ "github.com/d3ud3u-ntp2/spherize/sphere"
//
// Binaries opt in with the blank import; library code that only needs the
// identity fallback leaves it out.
package sphere

import (
	"math"

	"github.com/d3ud3u-ntp2/spherize/raster"
	"github.com/d3ud3u-ntp2/spherize/warp"
)

func init() {
	warp.Register(projector{})
}

type projector struct{}

func (projector) Name() string { return "sphere" }

// Field builds the bulge mapping for box. Destination pixels are
// normalized against the box's inscribed ellipse: outside it the mapping
// stays identity, inside it the asin-based spherical factor pulls the
// source coordinate toward the center, magnifying the middle of the box.
// Source coordinates are clamped into the raster before resampling.
func (projector) Field(w, h int, box raster.Box, strength float64) *warp.Field {
	f := warp.IdentityField(w, h)
	if strength <= 0 || w == 0 || h == 0 {
		return f
	}
	if strength > 1 {
		strength = 1
	}
	f.Identity = false

	cx, cy := box.Center()
	rx, ry := box.HalfExtents()
	sx := f.SX.RawMatrix().Data
	sy := f.SY.RawMatrix().Data
	halfPi := math.Pi / 2
	maxX, maxY := float64(w-1), float64(h-1)

	for y := 0; y < h; y++ {
		dy := (float64(y) - cy) / ry
		dy2 := dy * dy
		for x := 0; x < w; x++ {
			dx := (float64(x) - cx) / rx
			d2 := dx*dx + dy2
			// d2 == 0 is the box center, where the factor is defined
			// as 1; identity entries already hold (x, y).
			if d2 > 1 || d2 == 0 {
				continue
			}
			d := math.Sqrt(d2)
			factor := math.Asin(d) / (d * halfPi)
			factor = 1 + (factor-1)*strength
			if factor == 1 {
				continue
			}
			fx := cx + dx*factor*rx
			fy := cy + dy*factor*ry
			if fx < 0 {
				fx = 0
			} else if fx > maxX {
				fx = maxX
			}
			if fy < 0 {
				fy = 0
			} else if fy > maxY {
				fy = maxY
			}
			i := y*w + x
			sx[i] = fx
			sy[i] = fy
		}
	}
	return f
}
