// Package warp resamples rasters through per-pixel coordinate fields.
// The geometric backend that builds those fields is pluggable: backends
// register themselves at init, and when none is present every warp
// degrades to an identity copy flagged with ErrNoProjector.
package warp

import (
	"errors"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/d3ud3u-ntp2/spherize/raster"
)

// ErrNoProjector means no warp backend is registered. Callers still
// receive a usable (identity) result and should surface the degraded mode
// rather than abort.
var ErrNoProjector = errors.New("no warp projector registered")

// Field holds a destination-to-source coordinate mapping for a w by h
// raster. SX and SY are indexed (row, column); Identity marks a field
// whose every entry maps a pixel to itself, letting resampling skip the
// interpolation entirely.
type Field struct {
	W, H     int
	SX, SY   *mat.Dense
	Identity bool
}

// IdentityField returns the mapping that sends every pixel to itself.
func IdentityField(w, h int) *Field {
	f := &Field{
		W:        w,
		H:        h,
		SX:       mat.NewDense(h, w, nil),
		SY:       mat.NewDense(h, w, nil),
		Identity: true,
	}
	sx := f.SX.RawMatrix().Data
	sy := f.SY.RawMatrix().Data
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			sx[i] = float64(x)
			sy[i] = float64(y)
		}
	}
	return f
}

// Projector builds the warp field for a bounding box at a given strength.
type Projector interface {
	Name() string
	Field(w, h int, box raster.Box, strength float64) *Field
}

var (
	projMu    sync.RWMutex
	projector Projector
)

// Register installs the warp backend, typically from a backend package's
// init. The last registration wins.
func Register(p Projector) {
	projMu.Lock()
	defer projMu.Unlock()
	projector = p
}

// Active returns the registered backend, if any.
func Active() (Projector, bool) {
	projMu.RLock()
	defer projMu.RUnlock()
	return projector, projector != nil
}

// Warp resamples img through the registered backend's field for box at
// the given strength, clamped into [0,1]. Zero strength is an exact
// identity and skips the backend. With no backend registered the input is
// copied unchanged and ErrNoProjector accompanies the copy.
func Warp(img *raster.Raster, box raster.Box, strength float64, workers int) (*raster.Raster, error) {
	if strength < 0 {
		strength = 0
	} else if strength > 1 {
		strength = 1
	}
	if strength == 0 {
		return img.Clone(), nil
	}
	p, ok := Active()
	if !ok {
		return img.Clone(), ErrNoProjector
	}
	return Resample(img, p.Field(img.W, img.H, box, strength), workers), nil
}

// Resample reads img through a field built for the same dimensions.
// Entries whose coordinates are exactly integral copy the source pixel
// directly, keeping identity regions bit-exact; fractional coordinates go
// through bilinear interpolation with mirror reflection at the edges.
func Resample(img *raster.Raster, f *Field, workers int) *raster.Raster {
	if f == nil || f.Identity {
		return img.Clone()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := raster.New(img.W, img.H, img.C)
	sx := f.SX.RawMatrix().Data
	sy := f.SY.RawMatrix().Data

	rows := raster.SplitRows(img.H, workers)
	var wg sync.WaitGroup
	for _, rr := range rows {
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			for y := y0; y < y1; y++ {
				for x := 0; x < img.W; x++ {
					i := y*img.W + x
					fx, fy := sx[i], sy[i]
					di := y*out.Stride + x*img.C
					ix, iy := int(fx), int(fy)
					if float64(ix) == fx && float64(iy) == fy && ix >= 0 && ix < img.W && iy >= 0 && iy < img.H {
						si := iy*img.Stride + ix*img.C
						copy(out.Pix[di:di+img.C], img.Pix[si:si+img.C])
						continue
					}
					raster.BilinearSample(img.Pix, img.Stride, img.W, img.H, img.C, fx, fy, out.Pix[di:di+img.C])
				}
			}
		}(rr[0], rr[1])
	}
	wg.Wait()
	return out
}
