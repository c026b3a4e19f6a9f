package exiletree

import "log"

// Vec2 is a 2D vector used for world positions, offsets, and sizes.
type Vec2 struct {
	X, Y float64
}

// Rect is an axis-aligned rectangle. The coordinate system has its origin at
// the top-left, with Y increasing downward.
type Rect struct {
	X, Y, Width, Height float64
}

// Contains reports whether the point (x, y) lies inside the rectangle.
// Points on the edge are considered inside.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.Width &&
		y >= r.Y && y <= r.Y+r.Height
}

// Intersects reports whether r and other overlap.
// Adjacent rectangles (sharing only an edge) are considered intersecting.
func (r Rect) Intersects(other Rect) bool {
	return r.X <= other.X+other.Width &&
		r.X+r.Width >= other.X &&
		r.Y <= other.Y+other.Height &&
		r.Y+r.Height >= other.Y
}

// Expand returns the rectangle grown by margin on every side.
func (r Rect) Expand(margin float64) Rect {
	return Rect{
		X:      r.X - margin,
		Y:      r.Y - margin,
		Width:  r.Width + 2*margin,
		Height: r.Height + 2*margin,
	}
}

// NodeKind classifies a tree node for sizing and styling. Kinds are ordered
// by descending visual weight: KindClassStart draws largest, KindNormal
// smallest.
type NodeKind uint8

const (
	KindClassStart       NodeKind = iota // class starting node
	KindKeystone                         // build-defining keystone
	KindJewelSocket                      // socketable jewel slot
	KindMastery                          // mastery with selectable effect
	KindNotable                          // notable passive
	KindAscendancyNotable                // notable inside an ascendancy subgraph
	KindNormal                           // plain passive
	KindDecoration                       // image-only, never allocatable or hit-testable
)

// Debug enables diagnostic logging for non-fatal conditions (skipped nodes,
// missing icons, dropped stale completions). Off by default; intended for
// development builds of the host.
var Debug bool

// debugf logs a diagnostic line when Debug is enabled.
func debugf(format string, args ...any) {
	if Debug {
		log.Printf("exiletree: "+format, args...)
	}
}
