// Package geometry maps detector-space points into screen space and smooths
// the result frame to frame.
package geometry

import "math"

// DefaultAspectRatio is the shape forced onto the active zone.
const DefaultAspectRatio = 16.0 / 9.0

// minZoneExtent keeps the active zone usable when the margin eats the frame.
const minZoneExtent = 10

// Point is a 2D coordinate. Depending on context it is in detector pixels
// or screen pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistSq returns the squared euclidean distance between p and q.
func (p Point) DistSq(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// IsZero reports whether p is the origin.
func (p Point) IsZero() bool {
	return p.X == 0 && p.Y == 0
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// ScreenRect returns the rectangle covering a width x height screen whose
// top-left pixel is the origin.
func ScreenRect(width, height int) Rect {
	return Rect{MaxX: float64(width), MaxY: float64(height)}
}

// Width returns the horizontal extent of r.
func (r Rect) Width() float64 { return r.MaxX - r.MinX }

// Height returns the vertical extent of r.
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Center returns the midpoint of r.
func (r Rect) Center() Point {
	return Point{X: r.MinX + r.Width()/2, Y: r.MinY + r.Height()/2}
}

// ZoneConfig describes how the active zone is carved out of a camera frame.
type ZoneConfig struct {
	FrameWidth  int
	FrameHeight int

	// Margin is removed from every side of the frame before the aspect
	// ratio is applied. Larger values mean less hand travel per screen.
	Margin int

	// OffsetX and OffsetY shift the zone center away from the frame center.
	OffsetX int
	OffsetY int

	// AspectRatio is width/height of the zone. Zero selects DefaultAspectRatio.
	AspectRatio float64
}

// ActiveZone returns the sub-rectangle of the camera frame that maps onto
// the full screen. The zone is as large as the margin allows while keeping
// the configured aspect ratio, and its half extents are whole pixels so
// that the zone center is exactly representable.
func ActiveZone(cfg ZoneConfig) Rect {
	ratio := cfg.AspectRatio
	if ratio <= 0 {
		ratio = DefaultAspectRatio
	}

	availW := float64(cfg.FrameWidth - 2*cfg.Margin)
	availH := float64(cfg.FrameHeight - 2*cfg.Margin)
	if availW < minZoneExtent {
		availW = minZoneExtent
	}
	if availH < minZoneExtent {
		availH = minZoneExtent
	}

	boxW := availW
	boxH := boxW / ratio
	if boxH > availH {
		boxH = availH
		boxW = boxH * ratio
	}

	cx := float64(cfg.FrameWidth/2 + cfg.OffsetX)
	cy := float64(cfg.FrameHeight/2 + cfg.OffsetY)
	halfW := math.Max(1, math.Floor(boxW/2))
	halfH := math.Max(1, math.Floor(boxH/2))

	return Rect{
		MinX: cx - halfW,
		MinY: cy - halfH,
		MaxX: cx + halfW,
		MaxY: cy + halfH,
	}
}

// Map linearly maps p from the zone rectangle onto the screen rectangle and
// clamps the result to the screen.
func Map(p Point, zone, screen Rect) Point {
	return Point{
		X: mapRange(p.X, zone.MinX, zone.MaxX, screen.MinX, screen.MaxX),
		Y: mapRange(p.Y, zone.MinY, zone.MaxY, screen.MinY, screen.MaxY),
	}
}

func mapRange(v, inMin, inMax, outMin, outMax float64) float64 {
	if inMax == inMin {
		return outMin
	}
	out := (v-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
	return math.Max(outMin, math.Min(outMax, out))
}
