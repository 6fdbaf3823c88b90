package raster

import "math"

// ReflectIndex maps i into [0, n) by mirroring at the edges without
// repeating the edge sample (period 2n-2).
func ReflectIndex(i, n int) int {
	if n <= 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

// BilinearSample reads the four neighbors of (fx, fy) from an interleaved
// c-channel buffer, resolving out-of-range neighbors by mirror reflection,
// and writes the weighted result into out. out must hold c bytes.
func BilinearSample(pix []uint8, stride, w, h, c int, fx, fy float64, out []uint8) {
	x := int(math.Floor(fx))
	y := int(math.Floor(fy))
	tx := fx - float64(x)
	ty := fy - float64(y)

	x0 := ReflectIndex(x, w)
	y0 := ReflectIndex(y, h)
	x1 := ReflectIndex(x+1, w)
	y1 := ReflectIndex(y+1, h)

	i00 := y0*stride + x0*c
	i10 := y0*stride + x1*c
	i01 := y1*stride + x0*c
	i11 := y1*stride + x1*c

	w00 := (1 - tx) * (1 - ty)
	w10 := tx * (1 - ty)
	w01 := (1 - tx) * ty
	w11 := tx * ty

	for ch := 0; ch < c; ch++ {
		val := w00*float64(pix[i00+ch]) + w10*float64(pix[i10+ch]) + w01*float64(pix[i01+ch]) + w11*float64(pix[i11+ch])
		if val < 0 {
			val = 0
		} else if val > 255 {
			val = 255
		}
		out[ch] = uint8(val + 0.5)
	}
}

// Sample bilinearly reads the raster at (fx, fy) into out.
func (r *Raster) Sample(fx, fy float64, out []uint8) {
	BilinearSample(r.Pix, r.Stride, r.W, r.H, r.C, fx, fy, out)
}

// SplitRows partitions h rows into contiguous [start, end) ranges, one per
// worker, with the last range absorbing the remainder.
func SplitRows(h, workers int) [][2]int {
	if workers < 1 {
		workers = 1
	}
	if workers > h {
		workers = h
	}
	if workers == 0 {
		return nil
	}
	rows := make([][2]int, 0, workers)
	step := h / workers
	start := 0
	for i := 0; i < workers; i++ {
		end := start + step
		if i == workers-1 {
			end = h
		}
		rows = append(rows, [2]int{start, end})
		start = end
	}
	return rows
}
