package warp

import (
	"errors"
	"testing"

	"github.com/d3ud3u-ntp2/spherize/raster"
)

// testImage returns a 4-channel raster with a deterministic gradient.
func testImage(w, h int) *raster.Raster {
	r := raster.New(w, h, 4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := r.PixOffset(x, y)
			r.Pix[i+0] = uint8((x*7 + y*13) % 251)
			r.Pix[i+1] = uint8((x*3 + y*5) % 239)
			r.Pix[i+2] = uint8((x + y*2) % 101)
			r.Pix[i+3] = 255
		}
	}
	return r
}

func equalPix(a, b *raster.Raster) bool {
	if a.W != b.W || a.H != b.H || a.C != b.C {
		return false
	}
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			return false
		}
	}
	return true
}

type panicProjector struct{}

func (panicProjector) Name() string { return "panic" }
func (panicProjector) Field(w, h int, box raster.Box, strength float64) *Field {
	panic("backend should not be reached")
}

// shiftProjector maps every pixel one column to the right of itself.
type shiftProjector struct{}

func (shiftProjector) Name() string { return "shift" }
func (shiftProjector) Field(w, h int, box raster.Box, strength float64) *Field {
	f := IdentityField(w, h)
	f.Identity = false
	sx := f.SX.RawMatrix().Data
	for i := range sx {
		if sx[i] < float64(w-1) {
			sx[i]++
		}
	}
	return f
}

// TestWarpWithoutBackend verifies the identity fallback and its sentinel
func TestWarpWithoutBackend(t *testing.T) {
	cur, _ := Active()
	Register(nil)
	defer Register(cur)

	img := testImage(8, 8)
	box := raster.Box{MinX: 1, MinY: 1, MaxX: 7, MaxY: 7}
	out, err := Warp(img, box, 1.0, 1)
	if !errors.Is(err, ErrNoProjector) {
		t.Fatalf("Warp error = %v; want ErrNoProjector", err)
	}
	if out == nil || !equalPix(out, img) {
		t.Error("degraded warp should return the input unchanged")
	}
	if out == img {
		t.Error("degraded warp should return a copy, not the input itself")
	}
}

// TestWarpZeroStrengthSkipsBackend verifies strength 0 never builds a field
func TestWarpZeroStrengthSkipsBackend(t *testing.T) {
	cur, _ := Active()
	Register(panicProjector{})
	defer Register(cur)

	img := testImage(6, 4)
	out, err := Warp(img, raster.Box{MinX: 0, MinY: 0, MaxX: 6, MaxY: 4}, 0, 1)
	if err != nil {
		t.Fatalf("Warp error: %v", err)
	}
	if !equalPix(out, img) {
		t.Error("zero-strength warp should be the exact identity")
	}
}

// TestWarpClampsStrength verifies out-of-range strengths are clamped
func TestWarpClampsStrength(t *testing.T) {
	cur, _ := Active()
	Register(panicProjector{})
	defer Register(cur)

	img := testImage(4, 4)
	// negative strength clamps to 0, which skips the backend entirely
	out, err := Warp(img, raster.Box{MinX: 0, MinY: 0, MaxX: 4, MaxY: 4}, -2, 1)
	if err != nil {
		t.Fatalf("Warp error: %v", err)
	}
	if !equalPix(out, img) {
		t.Error("clamped zero-strength warp should be the identity")
	}
}

// TestRegisterActive verifies the backend registry
func TestRegisterActive(t *testing.T) {
	cur, _ := Active()
	defer Register(cur)

	Register(shiftProjector{})
	p, ok := Active()
	if !ok {
		t.Fatal("Active should report a registered backend")
	}
	if p.Name() != "shift" {
		t.Errorf("Active backend = %q; want %q", p.Name(), "shift")
	}

	Register(nil)
	if _, ok := Active(); ok {
		t.Error("Active should report false after registering nil")
	}
}

// TestResampleIdentityField verifies identity fields clone the input
func TestResampleIdentityField(t *testing.T) {
	img := testImage(5, 3)
	out := Resample(img, IdentityField(5, 3), 2)
	if !equalPix(out, img) {
		t.Error("identity field should reproduce the input exactly")
	}
}

// TestResampleIntegralCoordinates verifies whole-pixel moves copy directly
func TestResampleIntegralCoordinates(t *testing.T) {
	img := testImage(8, 2)
	f := shiftProjector{}.Field(8, 2, raster.Box{}, 1)
	out := Resample(img, f, 1)
	for y := 0; y < 2; y++ {
		for x := 0; x < 7; x++ {
			si := img.PixOffset(x+1, y)
			di := out.PixOffset(x, y)
			for c := 0; c < 4; c++ {
				if out.Pix[di+c] != img.Pix[si+c] {
					t.Fatalf("pixel (%d,%d) channel %d = %d; want %d", x, y, c, out.Pix[di+c], img.Pix[si+c])
				}
			}
		}
	}
}

// TestResampleFractionalCoordinates verifies interpolation kicks in
func TestResampleFractionalCoordinates(t *testing.T) {
	img := raster.New(2, 1, 1)
	copy(img.Pix, []uint8{0, 200})

	f := IdentityField(2, 1)
	f.Identity = false
	f.SX.RawMatrix().Data[0] = 0.5

	out := Resample(img, f, 1)
	if out.Pix[0] != 100 {
		t.Errorf("interpolated sample = %d; want 100", out.Pix[0])
	}
	if out.Pix[1] != 200 {
		t.Errorf("identity entry = %d; want 200", out.Pix[1])
	}
}

// TestIdentityFieldContents verifies every entry maps to itself
func TestIdentityFieldContents(t *testing.T) {
	f := IdentityField(4, 3)
	if !f.Identity {
		t.Error("IdentityField should be flagged Identity")
	}
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			if got := f.SX.At(y, x); got != float64(x) {
				t.Fatalf("SX(%d,%d) = %v; want %d", y, x, got, x)
			}
			if got := f.SY.At(y, x); got != float64(y) {
				t.Fatalf("SY(%d,%d) = %v; want %d", y, x, got, y)
			}
		}
	}
}
