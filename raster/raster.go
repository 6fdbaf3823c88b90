// Package raster holds the flat pixel buffers the rest of the pipeline
// operates on: interleaved 8-bit rasters, single-channel opacity masks,
// and integer pixel boxes.
package raster

import (
	"image"
	"image/color"
	"image/draw"
)

// Raster is a flat 8-bit pixel buffer with 1, 3, or 4 interleaved channels.
// Stride is always W*C and Pix holds H*Stride bytes in row-major order.
// Four-channel rasters carry straight (non-premultiplied) alpha.
type Raster struct {
	W, H, C int
	Stride  int
	Pix     []uint8
}

// New allocates a zeroed raster. c must be 1, 3, or 4.
func New(w, h, c int) *Raster {
	return &Raster{
		W:      w,
		H:      h,
		C:      c,
		Stride: w * c,
		Pix:    make([]uint8, w*c*h),
	}
}

// FromImage copies img into a 4-channel raster, converting through
// straight alpha so decoded pixel values survive untouched.
func FromImage(img image.Image) *Raster {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	n, ok := img.(*image.NRGBA)
	if !ok {
		tmp := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(tmp, tmp.Bounds(), img, b.Min, draw.Src)
		n = tmp
		b = tmp.Bounds()
	}
	r := New(w, h, 4)
	for y := 0; y < h; y++ {
		o := n.PixOffset(b.Min.X, b.Min.Y+y)
		copy(r.Pix[y*r.Stride:y*r.Stride+w*4], n.Pix[o:o+w*4])
	}
	return r
}

// PixOffset returns the index of the first channel of (x, y).
func (r *Raster) PixOffset(x, y int) int {
	return y*r.Stride + x*r.C
}

// Clone returns a deep copy.
func (r *Raster) Clone() *Raster {
	out := &Raster{W: r.W, H: r.H, C: r.C, Stride: r.Stride, Pix: make([]uint8, len(r.Pix))}
	copy(out.Pix, r.Pix)
	return out
}

// WithAlpha returns the raster with an alpha channel. Four-channel input
// comes back as the receiver; 1- and 3-channel input is expanded into a
// new fully opaque 4-channel raster.
func (r *Raster) WithAlpha() *Raster {
	if r.C == 4 {
		return r
	}
	out := New(r.W, r.H, 4)
	for y := 0; y < r.H; y++ {
		src := r.Pix[y*r.Stride : y*r.Stride+r.W*r.C]
		dst := out.Pix[y*out.Stride : y*out.Stride+r.W*4]
		for x := 0; x < r.W; x++ {
			di := x * 4
			if r.C == 1 {
				v := src[x]
				dst[di+0], dst[di+1], dst[di+2] = v, v, v
			} else {
				si := x * 3
				dst[di+0], dst[di+1], dst[di+2] = src[si+0], src[si+1], src[si+2]
			}
			dst[di+3] = 255
		}
	}
	return out
}

// Intensity reduces the raster to ITU-R 601 luma. Alpha is ignored.
func (r *Raster) Intensity() *Mask {
	m := NewMask(r.W, r.H)
	if r.C == 1 {
		copy(m.Pix, r.Pix)
		return m
	}
	for y := 0; y < r.H; y++ {
		row := r.Pix[y*r.Stride : y*r.Stride+r.W*r.C]
		for x := 0; x < r.W; x++ {
			i := x * r.C
			yv := 0.299*float64(row[i+0]) + 0.587*float64(row[i+1]) + 0.114*float64(row[i+2])
			m.Pix[y*m.W+x] = uint8(yv + 0.5)
		}
	}
	return m
}

// InvertRGB inverts the color channels in place. Alpha is preserved.
func (r *Raster) InvertRGB() {
	if r.C == 1 {
		for i, p := range r.Pix {
			r.Pix[i] = 255 - p
		}
		return
	}
	for y := 0; y < r.H; y++ {
		row := r.Pix[y*r.Stride : y*r.Stride+r.W*r.C]
		for x := 0; x < r.W; x++ {
			i := x * r.C
			row[i+0] = 255 - row[i+0]
			row[i+1] = 255 - row[i+1]
			row[i+2] = 255 - row[i+2]
		}
	}
}

// Inverted returns an inverted copy, leaving the receiver untouched.
func (r *Raster) Inverted() *Raster {
	out := r.Clone()
	out.InvertRGB()
	return out
}

// FlattenOver composites the raster over a solid background color and
// returns an opaque 4-channel result.
func (r *Raster) FlattenOver(bg color.NRGBA) *Raster {
	src := r.WithAlpha()
	out := New(r.W, r.H, 4)
	br, bgc, bb := float64(bg.R), float64(bg.G), float64(bg.B)
	for y := 0; y < r.H; y++ {
		s := src.Pix[y*src.Stride : y*src.Stride+r.W*4]
		d := out.Pix[y*out.Stride : y*out.Stride+r.W*4]
		for x := 0; x < r.W; x++ {
			i := x * 4
			a := float64(s[i+3]) / 255
			d[i+0] = uint8(float64(s[i+0])*a + br*(1-a) + 0.5)
			d[i+1] = uint8(float64(s[i+1])*a + bgc*(1-a) + 0.5)
			d[i+2] = uint8(float64(s[i+2])*a + bb*(1-a) + 0.5)
			d[i+3] = 255
		}
	}
	return out
}

// ToNRGBA returns the raster as a straight-alpha image. Non-4-channel
// rasters come back fully opaque.
func (r *Raster) ToNRGBA() *image.NRGBA {
	src := r.WithAlpha()
	out := image.NewNRGBA(image.Rect(0, 0, r.W, r.H))
	for y := 0; y < r.H; y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+r.W*4], src.Pix[y*src.Stride:y*src.Stride+r.W*4])
	}
	return out
}
