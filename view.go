package exiletree

import (
	"math"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// Default scale clamp range. A viewer whose config leaves the range unset
// gets these.
const (
	defaultMinScale = 0.05
	defaultMaxScale = 4.0
)

// viewAnim holds active tweens for scale and offset.
type viewAnim struct {
	scale     *gween.Tween
	offsetX   *gween.Tween
	offsetY   *gween.Tween
	doneScale bool
	doneX     bool
	doneY     bool
}

// ViewState is the canvas transform: screen = world*Scale + Offset. Pure
// session state; never persisted with build data. Reset to a fit-to-bounds
// default whenever a new graph is loaded or the user requests it.
type ViewState struct {
	Scale            float64
	OffsetX, OffsetY float64
	// Viewport is the screen-space rectangle the tree renders into.
	Viewport Rect

	minScale float64
	maxScale float64

	anim    *viewAnim
	changed bool
}

// NewViewState creates a ViewState for the given viewport and scale clamp
// range. Non-positive clamp values fall back to the package defaults.
func NewViewState(viewport Rect, minScale, maxScale float64) *ViewState {
	if minScale <= 0 {
		minScale = defaultMinScale
	}
	if maxScale <= 0 {
		maxScale = defaultMaxScale
	}
	return &ViewState{
		Scale:    1,
		Viewport: viewport,
		minScale: minScale,
		maxScale: maxScale,
		changed:  true,
	}
}

// WorldToScreen converts world coordinates to screen coordinates.
func (v *ViewState) WorldToScreen(wx, wy float64) (sx, sy float64) {
	return wx*v.Scale + v.OffsetX, wy*v.Scale + v.OffsetY
}

// ScreenToWorld converts screen coordinates to world coordinates.
func (v *ViewState) ScreenToWorld(sx, sy float64) (wx, wy float64) {
	return (sx - v.OffsetX) / v.Scale, (sy - v.OffsetY) / v.Scale
}

// Pan shifts the view by a screen-space delta. Cancels any running
// animation: direct input wins over tweens.
func (v *ViewState) Pan(dx, dy float64) {
	if dx == 0 && dy == 0 {
		return
	}
	v.anim = nil
	v.OffsetX += dx
	v.OffsetY += dy
	v.changed = true
}

// ZoomAt scales the view by factor around the screen point (sx, sy), so the
// world point under the cursor stays put. Scale is clamped to the
// configured range; at the clamp the offset is untouched.
func (v *ViewState) ZoomAt(sx, sy, factor float64) {
	next := clamp(v.Scale*factor, v.minScale, v.maxScale)
	if next == v.Scale {
		return
	}
	v.anim = nil
	wx, wy := v.ScreenToWorld(sx, sy)
	v.Scale = next
	v.OffsetX = sx - wx*next
	v.OffsetY = sy - wy*next
	v.changed = true
}

// SetViewport updates the viewport after a canvas resize.
func (v *ViewState) SetViewport(viewport Rect) {
	if v.Viewport == viewport {
		return
	}
	v.Viewport = viewport
	v.changed = true
}

// fitTransform computes the scale and offset that center bounds in the
// viewport with the given padding, clamped to the scale range.
func (v *ViewState) fitTransform(bounds Rect, padding float64) (scale, ox, oy float64) {
	b := bounds.Expand(padding)
	scale = v.maxScale
	if b.Width > 0 {
		scale = v.Viewport.Width / b.Width
	}
	if b.Height > 0 {
		if s := v.Viewport.Height / b.Height; s < scale {
			scale = s
		}
	}
	scale = clamp(scale, v.minScale, v.maxScale)
	cx := b.X + b.Width/2
	cy := b.Y + b.Height/2
	ox = v.Viewport.X + v.Viewport.Width/2 - cx*scale
	oy = v.Viewport.Y + v.Viewport.Height/2 - cy*scale
	return scale, ox, oy
}

// FitToBounds immediately centers the given world bounds in the viewport.
func (v *ViewState) FitToBounds(bounds Rect, padding float64) {
	v.anim = nil
	v.Scale, v.OffsetX, v.OffsetY = v.fitTransform(bounds, padding)
	v.changed = true
}

// AnimateToBounds eases the view toward the fit-to-bounds transform over
// duration seconds.
func (v *ViewState) AnimateToBounds(bounds Rect, padding float64, duration float32) {
	scale, ox, oy := v.fitTransform(bounds, padding)
	v.anim = &viewAnim{
		scale:   gween.New(float32(v.Scale), float32(scale), duration, ease.OutQuad),
		offsetX: gween.New(float32(v.OffsetX), float32(ox), duration, ease.OutQuad),
		offsetY: gween.New(float32(v.OffsetY), float32(oy), duration, ease.OutQuad),
	}
}

// ScrollToWorld eases the view so the given world point ends centered, at
// the current scale.
func (v *ViewState) ScrollToWorld(wx, wy float64, duration float32) {
	ox := v.Viewport.X + v.Viewport.Width/2 - wx*v.Scale
	oy := v.Viewport.Y + v.Viewport.Height/2 - wy*v.Scale
	v.anim = &viewAnim{
		scale:   gween.New(float32(v.Scale), float32(v.Scale), duration, ease.OutQuad),
		offsetX: gween.New(float32(v.OffsetX), float32(ox), duration, ease.OutQuad),
		offsetY: gween.New(float32(v.OffsetY), float32(oy), duration, ease.OutQuad),
	}
}

// Update advances any running animation by dt seconds.
func (v *ViewState) Update(dt float32) {
	a := v.anim
	if a == nil {
		return
	}
	if !a.doneScale {
		val, done := a.scale.Update(dt)
		v.Scale = float64(val)
		a.doneScale = done
	}
	if !a.doneX {
		val, done := a.offsetX.Update(dt)
		v.OffsetX = float64(val)
		a.doneX = done
	}
	if !a.doneY {
		val, done := a.offsetY.Update(dt)
		v.OffsetY = float64(val)
		a.doneY = done
	}
	v.changed = true
	if a.doneScale && a.doneX && a.doneY {
		v.anim = nil
	}
}

// Animating reports whether a view animation is in flight.
func (v *ViewState) Animating() bool { return v.anim != nil }

// TakeChanged reports whether the view changed since the last call, and
// clears the flag. The viewer uses it as its redraw trigger.
func (v *ViewState) TakeChanged() bool {
	c := v.changed
	v.changed = false
	return c
}

// VisibleWorldBounds returns the world-space rectangle currently visible,
// expanded by a world-space margin. Drawing work outside it is culled.
func (v *ViewState) VisibleWorldBounds(margin float64) Rect {
	x0, y0 := v.ScreenToWorld(v.Viewport.X, v.Viewport.Y)
	x1, y1 := v.ScreenToWorld(v.Viewport.X+v.Viewport.Width, v.Viewport.Y+v.Viewport.Height)
	return Rect{
		X:      math.Min(x0, x1),
		Y:      math.Min(y0, y1),
		Width:  math.Abs(x1 - x0),
		Height: math.Abs(y1 - y0),
	}.Expand(margin)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
