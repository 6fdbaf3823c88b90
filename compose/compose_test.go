package compose

import (
	"strings"
	"testing"

	"github.com/d3ud3u-ntp2/spherize/raster"
)

func gradientImage(w, h int) *raster.Raster {
	r := raster.New(w, h, 4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := r.PixOffset(x, y)
			r.Pix[i+0] = uint8((x*11 + y*3) % 256)
			r.Pix[i+1] = uint8((x*5 + y*17) % 256)
			r.Pix[i+2] = uint8((x*2 + y*7) % 256)
			r.Pix[i+3] = 255
		}
	}
	return r
}

func whiteBackground(w, h int) *raster.Raster {
	r := raster.New(w, h, 3)
	for i := range r.Pix {
		r.Pix[i] = 255
	}
	return r
}

func samePix(t *testing.T, got, want *raster.Raster, label string) {
	t.Helper()
	if got.W != want.W || got.H != want.H || got.C != want.C {
		t.Fatalf("%s: dims %dx%dx%d; want %dx%dx%d", label, got.W, got.H, got.C, want.W, want.H, want.C)
	}
	for i := range got.Pix {
		if got.Pix[i] != want.Pix[i] {
			t.Fatalf("%s: byte %d = %d; want %d", label, i, got.Pix[i], want.Pix[i])
		}
	}
}

// TestMaskFromReference verifies mask dimensions and the smoothing switch
func TestMaskFromReference(t *testing.T) {
	ref := gradientImage(17, 9)

	m := MaskFromReference(ref, false)
	if m.W != 17 || m.H != 9 {
		t.Fatalf("mask dims = %dx%d; want 17x9", m.W, m.H)
	}

	smoothed := MaskFromReference(ref, true)
	if smoothed.W != 17 || smoothed.H != 9 {
		t.Fatalf("smoothed mask dims = %dx%d; want 17x9", smoothed.W, smoothed.H)
	}
	diff := false
	for i := range m.Pix {
		if m.Pix[i] != smoothed.Pix[i] {
			diff = true
			break
		}
	}
	if !diff {
		t.Error("smoothing should alter a non-uniform mask")
	}
}

// TestCompositeOpaqueMask verifies an all-255 mask reproduces the layer exactly
func TestCompositeOpaqueMask(t *testing.T) {
	bg := whiteBackground(12, 8)
	layer := gradientImage(12, 8)
	mask := raster.NewMask(12, 8)
	mask.Fill(255)

	out, err := Composite(bg, []Layer{{Image: layer, Mask: mask}}, 2)
	if err != nil {
		t.Fatalf("Composite error: %v", err)
	}
	samePix(t, out, layer, "opaque mask")
}

// TestCompositeTransparentMask verifies an all-0 mask leaves the background
func TestCompositeTransparentMask(t *testing.T) {
	bg := whiteBackground(12, 8)
	layer := gradientImage(12, 8)
	mask := raster.NewMask(12, 8) // zeroed

	out, err := Composite(bg, []Layer{{Image: layer, Mask: mask}}, 2)
	if err != nil {
		t.Fatalf("Composite error: %v", err)
	}
	samePix(t, out, bg.WithAlpha(), "transparent mask")
}

// TestCompositeBlendFormula verifies the partial-opacity math per channel
func TestCompositeBlendFormula(t *testing.T) {
	bg := raster.New(1, 1, 4)
	copy(bg.Pix, []uint8{10, 40, 90, 255})
	layer := raster.New(1, 1, 4)
	copy(layer.Pix, []uint8{200, 60, 30, 255})
	mask := raster.NewMask(1, 1)
	mask.Fill(128)

	out, err := Composite(bg, []Layer{{Image: layer, Mask: mask}}, 1)
	if err != nil {
		t.Fatalf("Composite error: %v", err)
	}

	a := float64(128) * float64(255) / (255 * 255)
	for c := 0; c < 3; c++ {
		want := uint8(float64(layer.Pix[c])*a + float64(bg.Pix[c])*(1-a) + 0.5)
		if out.Pix[c] != want {
			t.Errorf("channel %d = %d; want %d", c, out.Pix[c], want)
		}
	}
	if out.Pix[3] != 255 {
		t.Errorf("alpha = %d; want 255 over an opaque background", out.Pix[3])
	}
}

// TestCompositeIntrinsicAlpha verifies a layer's own alpha gates the blend
func TestCompositeIntrinsicAlpha(t *testing.T) {
	bg := whiteBackground(2, 1)
	layer := raster.New(2, 1, 4)
	// left pixel fully transparent, right pixel opaque red
	copy(layer.Pix, []uint8{200, 0, 0, 0, 200, 0, 0, 255})

	out, err := Composite(bg, []Layer{{Image: layer}}, 1)
	if err != nil {
		t.Fatalf("Composite error: %v", err)
	}
	if out.Pix[0] != 255 || out.Pix[1] != 255 || out.Pix[2] != 255 {
		t.Errorf("transparent source pixel painted over the background: %v", out.Pix[:4])
	}
	if out.Pix[4] != 200 || out.Pix[5] != 0 || out.Pix[6] != 0 {
		t.Errorf("opaque source pixel = %v; want [200 0 0]", out.Pix[4:7])
	}
}

// TestCompositeSequential verifies one call equals iterative painting
func TestCompositeSequential(t *testing.T) {
	bg := whiteBackground(9, 9)
	l1 := Layer{Image: gradientImage(9, 9)}
	m2 := raster.NewMask(9, 9)
	m2.Fill(77)
	l2 := Layer{Image: gradientImage(9, 9).Inverted(), Mask: m2}
	m3 := raster.NewMask(9, 9)
	for i := range m3.Pix {
		m3.Pix[i] = uint8(i % 256)
	}
	l3 := Layer{Image: gradientImage(9, 9), Mask: m3}

	all, err := Composite(bg, []Layer{l1, l2, l3}, 2)
	if err != nil {
		t.Fatalf("Composite error: %v", err)
	}

	step := bg.WithAlpha().Clone()
	for _, l := range []Layer{l1, l2, l3} {
		step, err = Composite(step, []Layer{l}, 2)
		if err != nil {
			t.Fatalf("iterative Composite error: %v", err)
		}
	}
	samePix(t, all, step, "sequential equivalence")
}

// TestCompositeThreeLayerScenario verifies [opaque, half, transparent]
// masks over the same source collapse to the first layer
func TestCompositeThreeLayerScenario(t *testing.T) {
	bg := whiteBackground(10, 10)
	img := gradientImage(10, 10)

	opaque := raster.NewMask(10, 10)
	opaque.Fill(255)
	half := raster.NewMask(10, 10)
	half.Fill(128)
	transparent := raster.NewMask(10, 10)

	out, err := Composite(bg, []Layer{
		{Image: img, Mask: opaque},
		{Image: img, Mask: half},
		{Image: img, Mask: transparent},
	}, 2)
	if err != nil {
		t.Fatalf("Composite error: %v", err)
	}
	samePix(t, out, img, "three-layer collapse")
}

// TestCompositePaintOrder verifies later layers win where both are opaque
func TestCompositePaintOrder(t *testing.T) {
	bg := whiteBackground(4, 4)
	red := raster.New(4, 4, 4)
	blue := raster.New(4, 4, 4)
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			ri := red.PixOffset(x, y)
			red.Pix[ri+0], red.Pix[ri+3] = 255, 255
			bi := blue.PixOffset(x, y)
			blue.Pix[bi+2], blue.Pix[bi+3] = 255, 255
		}
	}

	out, err := Composite(bg, []Layer{{Image: red}, {Image: blue}}, 1)
	if err != nil {
		t.Fatalf("Composite error: %v", err)
	}
	if out.Pix[0] != 0 || out.Pix[2] != 255 {
		t.Errorf("top pixel = %v; want blue over red", out.Pix[:4])
	}
}

// TestCompositeOffsets verifies placement and clipping at the edges
func TestCompositeOffsets(t *testing.T) {
	bg := whiteBackground(6, 6)
	dot := raster.New(2, 2, 4)
	for i := 0; i < 4; i++ {
		o := i * 4
		dot.Pix[o+0], dot.Pix[o+3] = 9, 255
	}

	out, err := Composite(bg, []Layer{{Image: dot, OffsetX: 5, OffsetY: 5}}, 1)
	if err != nil {
		t.Fatalf("Composite error: %v", err)
	}
	// only the (5,5) corner lands inside the background
	i := out.PixOffset(5, 5)
	if out.Pix[i] != 9 {
		t.Errorf("offset pixel = %d; want 9", out.Pix[i])
	}
	j := out.PixOffset(4, 4)
	if out.Pix[j] != 255 {
		t.Errorf("pixel outside the offset layer = %d; want background", out.Pix[j])
	}
}

// TestCompositeMaskMismatch verifies the error names the offending layer
func TestCompositeMaskMismatch(t *testing.T) {
	bg := whiteBackground(4, 4)
	layer := gradientImage(4, 4)
	bad := raster.NewMask(3, 4)

	_, err := Composite(bg, []Layer{{Image: layer}, {Image: layer, Mask: bad}}, 1)
	if err == nil {
		t.Fatal("mismatched mask should fail")
	}
	if !strings.Contains(err.Error(), "layer 1") {
		t.Errorf("error %q should identify layer 1", err)
	}
}

// TestCompositeUpgradesBackground verifies 3-channel backgrounds become
// opaque RGBA without mutating the caller's raster
func TestCompositeUpgradesBackground(t *testing.T) {
	bg := whiteBackground(3, 3)
	orig := bg.Clone()
	layer := gradientImage(3, 3)

	out, err := Composite(bg, []Layer{{Image: layer}}, 1)
	if err != nil {
		t.Fatalf("Composite error: %v", err)
	}
	if out.C != 4 {
		t.Fatalf("output channels = %d; want 4", out.C)
	}
	samePix(t, bg, orig, "background mutation")
}
