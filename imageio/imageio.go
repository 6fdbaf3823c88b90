// Package imageio is the codec boundary: it decodes source files into
// rasters, encodes results, and owns the output naming conventions.
package imageio

import (
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"

	"golang.org/x/crypto/blake2b"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/d3ud3u-ntp2/spherize/raster"
)

// ErrMissingInput means a required input file could not be located.
var ErrMissingInput = errors.New("missing input")

// DefaultJPEGQuality is used when callers pass a zero quality.
const DefaultJPEGQuality = 95

// Load decodes path into a 4-channel raster. PNG, JPEG, GIF, and WEBP
// are recognized. A missing file fails with ErrMissingInput.
func Load(path string) (*raster.Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return raster.FromImage(img), nil
}

// Dimensions reads just the image header of path.
func Dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		return 0, 0, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read %s header: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// SavePNG writes the raster as PNG, creating parent directories as
// needed. PNG keeps the alpha channel, so 4-channel rasters round-trip
// losslessly through it.
func SavePNG(path string, r *raster.Raster) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(f, r.ToNRGBA()); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}

// SaveJPEG writes the raster as JPEG with the given quality (1..100,
// 0 for the default), flattening any transparency over white first.
func SaveJPEG(path string, r *raster.Raster, quality int) error {
	if quality == 0 {
		quality = DefaultJPEGQuality
	}
	if quality < 1 || quality > 100 {
		return errors.New("jpeg quality 1..100")
	}
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	flat := r.FlattenOver(color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	if err := jpeg.Encode(f, flat.ToNRGBA(), &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}

// Save picks the codec from the file extension: .jpg/.jpeg with the
// given quality, anything else PNG.
func Save(path string, r *raster.Raster, quality int) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return SaveJPEG(path, r, quality)
	default:
		return SavePNG(path, r)
	}
}

// EnsureDir creates dir and any missing parents.
func EnsureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// Thumbnail scales the raster down so its longest side is maxDim,
// preserving aspect ratio. Rasters already within the limit come back
// unscaled.
func Thumbnail(r *raster.Raster, maxDim int) *raster.Raster {
	if maxDim <= 0 || (r.W <= maxDim && r.H <= maxDim) {
		return r
	}
	w, h := r.W, r.H
	if w >= h {
		h = h * maxDim / w
		w = maxDim
	} else {
		w = w * maxDim / h
		h = maxDim
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	src := r.ToNRGBA()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return raster.FromImage(dst)
}

// HashFile fingerprints a file by its size and first n bytes (the whole
// file when n <= 0) with BLAKE2b-256.
func HashFile(path string, n int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	h, _ := blake2b.New256(nil)
	fmt.Fprintf(h, "%d:", st.Size())
	var rd io.Reader = f
	if n > 0 {
		rd = io.LimitReader(f, n)
	}
	if _, err := io.Copy(h, rd); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes fingerprints a byte string with BLAKE2b-256; used to key
// cache directories by their source.
func HashBytes(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// OutputName maps an input path into outDir, appending a suffix to the
// stem: input/apple.jpg with suffix "spherized" and ext "png" becomes
// outDir/apple_spherized.png. An empty ext keeps the input's extension.
func OutputName(inputPath, outDir, suffix, ext string) string {
	base := filepath.Base(inputPath)
	e := filepath.Ext(base)
	stem := strings.TrimSuffix(base, e)
	if ext == "" {
		ext = e
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name := stem + ext
	if suffix != "" {
		name = stem + "_" + suffix + ext
	}
	return filepath.Join(outDir, name)
}
