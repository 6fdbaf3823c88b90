// Package roi resolves the elliptical region of interest a warp operates
// on, either from an explicit box source or by scanning a reference
// raster for pixels bright enough to be subject matter.
package roi

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/d3ud3u-ntp2/spherize/raster"
)

// DefaultThreshold is the minimum intensity a pixel needs to count as
// subject matter during automatic detection.
const DefaultThreshold = 10

var (
	// ErrNoSubject means automatic detection found no pixel at or above
	// the threshold.
	ErrNoSubject = errors.New("no subject found above threshold")

	// ErrMalformedBox means a box source did not yield four integers
	// spanning a positive area.
	ErrMalformedBox = errors.New("malformed box source")
)

// Resolve produces the bounding box for an operation. explicit may be
// empty (automatic detection), inline "x0,y0,x1,y1" text, or the path of
// a box file. An unusable explicit source is logged and falls back to
// automatic detection; detection over a reference with no pixel at or
// above threshold fails with ErrNoSubject.
func Resolve(explicit string, ref *raster.Raster, threshold int) (raster.Box, error) {
	if ref == nil {
		return raster.Box{}, errors.New("nil reference raster")
	}
	if explicit != "" {
		b, err := Explicit(explicit)
		if err == nil {
			return b, nil
		}
		log.Printf("box source %q unusable, falling back to detection: %v", explicit, err)
	}
	return Detect(ref, threshold)
}

// Explicit resolves an explicit box source without a reference raster:
// inline box text first, then as a box file path.
func Explicit(source string) (raster.Box, error) {
	if b, err := ParseBoxText(source); err == nil {
		if !b.Valid() {
			return raster.Box{}, fmt.Errorf("%w: zero-area box %q", ErrMalformedBox, source)
		}
		return b, nil
	}
	b, err := ReadBoxFile(source)
	if err != nil {
		return raster.Box{}, err
	}
	if !b.Valid() {
		return raster.Box{}, fmt.Errorf("%w: zero-area box in %s", ErrMalformedBox, source)
	}
	return b, nil
}

// ParseBoxText parses "x0,y0,x1,y1" with commas and/or whitespace between
// the four integers.
func ParseBoxText(s string) (raster.Box, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(fields) != 4 {
		return raster.Box{}, fmt.Errorf("%w: %q", ErrMalformedBox, s)
	}
	var vals [4]int
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return raster.Box{}, fmt.Errorf("%w: %q", ErrMalformedBox, s)
		}
		vals[i] = v
	}
	return raster.Box{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}, nil
}

// ReadBoxFile returns the box from the first well-formed line of path.
// Blank lines, '#' comments, and lines that do not parse are skipped; a
// file with no usable line fails with ErrMalformedBox.
func ReadBoxFile(path string) (raster.Box, error) {
	f, err := os.Open(path)
	if err != nil {
		return raster.Box{}, fmt.Errorf("failed to open box file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if b, err := ParseBoxText(line); err == nil {
			return b, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return raster.Box{}, fmt.Errorf("failed to read box file: %w", err)
	}
	return raster.Box{}, fmt.Errorf("%w: no usable line in %s", ErrMalformedBox, path)
}

// Detect scans the reference raster's intensity for subject pixels and
// bounds them.
func Detect(ref *raster.Raster, threshold int) (raster.Box, error) {
	return FromMask(ref.Intensity(), threshold)
}

// FromMask returns the tight axis-aligned bound of every mask sample at
// or above threshold, Max exclusive, or ErrNoSubject when none qualifies.
func FromMask(m *raster.Mask, threshold int) (raster.Box, error) {
	minX, minY := m.W, m.H
	maxX, maxY := -1, -1
	for y := 0; y < m.H; y++ {
		row := m.Pix[y*m.W : y*m.W+m.W]
		for x, v := range row {
			if int(v) < threshold {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < 0 {
		return raster.Box{}, ErrNoSubject
	}
	return raster.Box{MinX: minX, MinY: minY, MaxX: maxX + 1, MaxY: maxY + 1}, nil
}
