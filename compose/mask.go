package compose

import "github.com/d3ud3u-ntp2/spherize/raster"

// MaskFromReference derives the shared opacity mask for an operation from
// the warped reference layer: its intensity taken directly, optionally
// softened with a half-pixel Gaussian to hide sampling aliasing at the
// silhouette edge. One mask serves every layer of the operation.
func MaskFromReference(warped *raster.Raster, smooth bool) *raster.Mask {
	m := warped.Intensity()
	if smooth {
		m.GaussianBlur(0.5)
	}
	return m
}
