// Package keyout builds layer masks by keying out a backing color, the
// way sticker sources ship their artwork on a flat green or magenta
// card. The keyed color becomes transparent in the mask and everything
// else stays opaque, so the compositor paints only the subject.
package keyout

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/cenkalti/dominantcolor"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/d3ud3u-ntp2/spherize/raster"
)

// DefaultTolerance is the per-channel distance applied when a key
// source does not name one.
const DefaultTolerance = 30

// Key is a parsed key-out request: either a concrete color or an
// instruction to pick the dominant color automatically.
type Key struct {
	Color color.NRGBA
	Auto  bool
}

// Parse reads a key spec: "#rrggbb", "#rrggbbaa", or "auto".
func Parse(s string) (Key, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return Key{}, errors.New("empty key color")
	}
	if s == "auto" {
		return Key{Auto: true}, nil
	}
	hexs := strings.TrimPrefix(s, "#")
	var a uint8 = 255
	switch len(hexs) {
	case 8:
		v, err := strconv.ParseUint(hexs[6:], 16, 8)
		if err != nil {
			return Key{}, fmt.Errorf("bad key color %q: %w", s, err)
		}
		a = uint8(v)
		hexs = hexs[:6]
	case 6:
	default:
		return Key{}, fmt.Errorf("bad key color %q: want #rrggbb, #rrggbbaa, or auto", s)
	}
	c, err := colorful.Hex("#" + hexs)
	if err != nil {
		return Key{}, fmt.Errorf("bad key color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return Key{Color: color.NRGBA{R: r, G: g, B: b, A: a}}, nil
}

// AutoKey picks the dominant color of the raster as the key. For
// sticker cards that is the card background.
func AutoKey(img *raster.Raster) color.NRGBA {
	c := dominantcolor.Find(img.ToNRGBA())
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255}
}

// MaskFromKey marks every pixel within a per-channel tolerance of key
// as transparent and the rest opaque.
func MaskFromKey(img *raster.Raster, key color.NRGBA, tolerance int) *raster.Mask {
	src := img.WithAlpha()
	m := raster.NewMask(src.W, src.H)
	m.Fill(255)
	for y := 0; y < src.H; y++ {
		row := src.Pix[y*src.Stride : (y+1)*src.Stride]
		mrow := m.Pix[y*m.W : (y+1)*m.W]
		for x := 0; x < src.W; x++ {
			i := x * 4
			if absDiff(row[i+0], key.R) <= tolerance &&
				absDiff(row[i+1], key.G) <= tolerance &&
				absDiff(row[i+2], key.B) <= tolerance {
				mrow[x] = 0
			}
		}
	}
	return m
}

// MaskFromKeyLab keys in CIE Lab space, which tracks perceived color
// difference better than raw channel distance on shaded card edges.
// Tolerances around 0.1 to 0.2 work for typical flat cards.
func MaskFromKeyLab(img *raster.Raster, key color.NRGBA, tolerance float64) *raster.Mask {
	src := img.WithAlpha()
	m := raster.NewMask(src.W, src.H)
	m.Fill(255)
	kc, _ := colorful.MakeColor(color.NRGBA{R: key.R, G: key.G, B: key.B, A: 255})
	for y := 0; y < src.H; y++ {
		row := src.Pix[y*src.Stride : (y+1)*src.Stride]
		mrow := m.Pix[y*m.W : (y+1)*m.W]
		for x := 0; x < src.W; x++ {
			i := x * 4
			pc, ok := colorful.MakeColor(color.NRGBA{R: row[i+0], G: row[i+1], B: row[i+2], A: 255})
			if ok && pc.DistanceLab(kc) <= tolerance {
				mrow[x] = 0
			}
		}
	}
	return m
}

// Build resolves the key (auto-picking the color when asked) and
// produces the mask. Lab keying interprets tolerance as a Lab distance;
// otherwise it is rounded to a per-channel byte distance.
func Build(img *raster.Raster, k Key, tolerance float64, lab bool) *raster.Mask {
	kc := k.Color
	if k.Auto {
		kc = AutoKey(img)
	}
	if lab {
		return MaskFromKeyLab(img, kc, tolerance)
	}
	return MaskFromKey(img, kc, int(tolerance+0.5))
}

// Cut applies a mask as the raster's alpha channel, keeping the darker
// of the existing alpha and the mask sample so keyed-out pixels never
// come back opaque. The input raster is left untouched.
func Cut(img *raster.Raster, m *raster.Mask) *raster.Raster {
	out := img.WithAlpha()
	if out == img {
		out = img.Clone()
	}
	if m == nil {
		return out
	}
	w, h := out.W, out.H
	if m.W < w {
		w = m.W
	}
	if m.H < h {
		h = m.H
	}
	for y := 0; y < h; y++ {
		row := out.Pix[y*out.Stride:]
		mrow := m.Pix[y*m.W:]
		for x := 0; x < w; x++ {
			i := x*4 + 3
			if mrow[x] < row[i] {
				row[i] = mrow[x]
			}
		}
	}
	return out
}

func absDiff(a, b uint8) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}
