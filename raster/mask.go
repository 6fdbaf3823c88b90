package raster

import (
	"image"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mask is a single-channel opacity raster. Values run 0 (transparent)
// through 255 (opaque).
type Mask struct {
	W, H int
	Pix  []uint8
}

// NewMask allocates a zeroed (fully transparent) mask.
func NewMask(w, h int) *Mask {
	return &Mask{W: w, H: h, Pix: make([]uint8, w*h)}
}

// MaskFromGray copies a grayscale image into a mask.
func MaskFromGray(g *image.Gray) *Mask {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	m := NewMask(w, h)
	for y := 0; y < h; y++ {
		o := g.PixOffset(b.Min.X, b.Min.Y+y)
		copy(m.Pix[y*w:y*w+w], g.Pix[o:o+w])
	}
	return m
}

// At returns the opacity at (x, y).
func (m *Mask) At(x, y int) uint8 {
	return m.Pix[y*m.W+x]
}

// Set writes the opacity at (x, y).
func (m *Mask) Set(x, y int, v uint8) {
	m.Pix[y*m.W+x] = v
}

// Fill sets every sample to v.
func (m *Mask) Fill(v uint8) {
	for i := range m.Pix {
		m.Pix[i] = v
	}
}

// Clone returns a deep copy.
func (m *Mask) Clone() *Mask {
	out := &Mask{W: m.W, H: m.H, Pix: make([]uint8, len(m.Pix))}
	copy(out.Pix, m.Pix)
	return out
}

// ToGray returns the mask as a grayscale image.
func (m *Mask) ToGray() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, m.W, m.H))
	for y := 0; y < m.H; y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+m.W], m.Pix[y*m.W:y*m.W+m.W])
	}
	return out
}

// GaussianBlur smooths the mask in place with a separable kernel,
// mirroring at the edges. Sigma around 0.5 gives the half-pixel softening
// used on silhouette masks; sigma <= 0 is a no-op.
func (m *Mask) GaussianBlur(sigma float64) {
	if sigma <= 0 || m.W == 0 || m.H == 0 {
		return
	}
	radius := int(math.Ceil(3 * sigma))
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		w := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = w
		sum += w
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	tmp := make([]uint8, len(m.Pix))
	// Horizontal pass
	for y := 0; y < m.H; y++ {
		row := m.Pix[y*m.W : y*m.W+m.W]
		out := tmp[y*m.W : y*m.W+m.W]
		for x := 0; x < m.W; x++ {
			acc := 0.0
			for i := -radius; i <= radius; i++ {
				acc += kernel[i+radius] * float64(row[ReflectIndex(x+i, m.W)])
			}
			out[x] = uint8(acc + 0.5)
		}
	}
	// Vertical pass
	for x := 0; x < m.W; x++ {
		for y := 0; y < m.H; y++ {
			acc := 0.0
			for i := -radius; i <= radius; i++ {
				acc += kernel[i+radius] * float64(tmp[ReflectIndex(y+i, m.H)*m.W+x])
			}
			m.Pix[y*m.W+x] = uint8(acc + 0.5)
		}
	}
}

// Levels stretches mask contrast so the lo and hi percentiles map to 0 and
// 255. lo and hi are percentages; lo <= 0 with hi >= 100 is the identity.
func (m *Mask) Levels(lo, hi float64) {
	if (lo <= 0 && hi >= 100) || len(m.Pix) == 0 {
		return
	}
	vals := make([]float64, len(m.Pix))
	for i, p := range m.Pix {
		vals[i] = float64(p)
	}
	sort.Float64s(vals)
	lov := stat.Quantile(lo/100, stat.Empirical, vals, nil)
	hiv := stat.Quantile(hi/100, stat.Empirical, vals, nil)
	if hiv <= lov {
		return
	}
	scale := 255 / (hiv - lov)
	for i, p := range m.Pix {
		v := (float64(p) - lov) * scale
		if v < 0 {
			v = 0
		} else if v > 255 {
			v = 255
		}
		m.Pix[i] = uint8(v + 0.5)
	}
}
