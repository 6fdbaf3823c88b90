package raster

import (
	"fmt"
	"image"
)

// Box is an axis-aligned pixel region, Min inclusive and Max exclusive,
// matching image.Rectangle semantics.
type Box struct {
	MinX, MinY, MaxX, MaxY int
}

// Dx returns the width.
func (b Box) Dx() int { return b.MaxX - b.MinX }

// Dy returns the height.
func (b Box) Dy() int { return b.MaxY - b.MinY }

// Valid reports whether the box has positive area.
func (b Box) Valid() bool {
	return b.MinX < b.MaxX && b.MinY < b.MaxY
}

// Clip bounds the box to a w by h raster. A box that lies entirely
// outside comes back empty, not clamped to the nearest edge.
func (b Box) Clip(w, h int) Box {
	if b.MinX < 0 {
		b.MinX = 0
	}
	if b.MinY < 0 {
		b.MinY = 0
	}
	if b.MaxX > w {
		b.MaxX = w
	}
	if b.MaxY > h {
		b.MaxY = h
	}
	return b
}

// Center returns the box midpoint in float pixel coordinates.
func (b Box) Center() (cx, cy float64) {
	return float64(b.MinX+b.MaxX) / 2, float64(b.MinY+b.MaxY) / 2
}

// HalfExtents returns the half width and half height, floored at 1 so a
// degenerate box still defines a usable ellipse.
func (b Box) HalfExtents() (rx, ry float64) {
	rx = float64(b.Dx()) / 2
	ry = float64(b.Dy()) / 2
	if rx < 1 {
		rx = 1
	}
	if ry < 1 {
		ry = 1
	}
	return rx, ry
}

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.MinX, b.MinY, b.MaxX, b.MaxY)
}

func (b Box) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", b.MinX, b.MinY, b.MaxX, b.MaxY)
}
