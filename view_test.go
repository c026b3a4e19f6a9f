package exiletree

import "testing"

func testView() *ViewState {
	return NewViewState(Rect{Width: 800, Height: 600}, 0.1, 4.0)
}

func TestViewRoundTrip(t *testing.T) {
	v := testView()
	v.Scale = 2
	v.OffsetX = 30
	v.OffsetY = -10

	sx, sy := v.WorldToScreen(100, 50)
	if !approxEqual(sx, 230) || !approxEqual(sy, 90) {
		t.Errorf("WorldToScreen = (%v, %v), want (230, 90)", sx, sy)
	}
	wx, wy := v.ScreenToWorld(sx, sy)
	if !approxEqual(wx, 100) || !approxEqual(wy, 50) {
		t.Errorf("round trip = (%v, %v), want (100, 50)", wx, wy)
	}
}

func TestViewPan(t *testing.T) {
	v := testView()
	v.TakeChanged()
	v.Pan(25, -40)
	if v.OffsetX != 25 || v.OffsetY != -40 {
		t.Errorf("offset = (%v, %v)", v.OffsetX, v.OffsetY)
	}
	if !v.TakeChanged() {
		t.Error("pan did not mark the view changed")
	}
	// A zero pan is a no-op.
	v.Pan(0, 0)
	if v.TakeChanged() {
		t.Error("zero pan marked the view changed")
	}
}

func TestViewZoomAtKeepsCursorFixed(t *testing.T) {
	v := testView()
	v.OffsetX = 50
	v.OffsetY = 20

	wx, wy := v.ScreenToWorld(400, 300)
	v.ZoomAt(400, 300, 1.5)
	if !approxEqual(v.Scale, 1.5) {
		t.Fatalf("scale = %v, want 1.5", v.Scale)
	}
	sx, sy := v.WorldToScreen(wx, wy)
	if !approxEqual(sx, 400) || !approxEqual(sy, 300) {
		t.Errorf("cursor world point moved to (%v, %v)", sx, sy)
	}
}

func TestViewZoomClamp(t *testing.T) {
	v := testView()

	v.ZoomAt(0, 0, 1000)
	if v.Scale != 4.0 {
		t.Errorf("scale = %v, want clamped to 4.0", v.Scale)
	}
	// Pinned at the clamp, further zooming in is a no-op.
	ox, oy := v.OffsetX, v.OffsetY
	v.TakeChanged()
	v.ZoomAt(123, 456, 2)
	if v.Scale != 4.0 || v.OffsetX != ox || v.OffsetY != oy {
		t.Error("zoom at the clamp moved the view")
	}
	if v.TakeChanged() {
		t.Error("no-op zoom marked the view changed")
	}

	v.ZoomAt(0, 0, 1e-9)
	if v.Scale != 0.1 {
		t.Errorf("scale = %v, want clamped to 0.1", v.Scale)
	}
}

func TestViewFitToBounds(t *testing.T) {
	v := testView()
	bounds := Rect{X: -100, Y: -100, Width: 200, Height: 200}
	v.FitToBounds(bounds, 0)

	// 800x600 viewport over a 200x200 square: height limits the scale.
	if !approxEqual(v.Scale, 3.0) {
		t.Fatalf("scale = %v, want 3.0", v.Scale)
	}
	// The bounds center lands on the viewport center.
	sx, sy := v.WorldToScreen(0, 0)
	if !approxEqual(sx, 400) || !approxEqual(sy, 300) {
		t.Errorf("center at (%v, %v), want (400, 300)", sx, sy)
	}
}

func TestViewFitToBoundsRespectsClamp(t *testing.T) {
	v := testView()
	// A tiny tree would need scale 80; the clamp holds it at 4.
	v.FitToBounds(Rect{Width: 10, Height: 10}, 0)
	if v.Scale != 4.0 {
		t.Errorf("scale = %v, want clamped to 4.0", v.Scale)
	}
	// A degenerate empty bounds still centers without dividing by zero.
	v.FitToBounds(Rect{X: 5, Y: 5}, 0)
	sx, sy := v.WorldToScreen(5, 5)
	if !approxEqual(sx, 400) || !approxEqual(sy, 300) {
		t.Errorf("point bounds centered at (%v, %v)", sx, sy)
	}
}

func TestViewAnimateToBounds(t *testing.T) {
	v := testView()
	bounds := Rect{X: -100, Y: -100, Width: 200, Height: 200}
	v.AnimateToBounds(bounds, 0, 0.5)
	if !v.Animating() {
		t.Fatal("AnimateToBounds did not start an animation")
	}

	for i := 0; i < 60 && v.Animating(); i++ {
		v.Update(1.0 / 60.0)
	}
	if v.Animating() {
		t.Fatal("animation never finished")
	}
	if !approxEqual32(v.Scale, 3.0) {
		t.Errorf("final scale = %v, want 3.0", v.Scale)
	}
	sx, sy := v.WorldToScreen(0, 0)
	if !approxEqual32(sx, 400) || !approxEqual32(sy, 300) {
		t.Errorf("final center at (%v, %v)", sx, sy)
	}
}

func TestViewPanCancelsAnimation(t *testing.T) {
	v := testView()
	v.AnimateToBounds(Rect{Width: 100, Height: 100}, 0, 1)
	v.Pan(1, 1)
	if v.Animating() {
		t.Error("pan did not cancel the running animation")
	}
}

func TestViewScrollToWorld(t *testing.T) {
	v := testView()
	v.Scale = 2
	v.ScrollToWorld(50, -30, 0.25)
	for i := 0; i < 60 && v.Animating(); i++ {
		v.Update(1.0 / 60.0)
	}
	if v.Scale != 2 {
		t.Errorf("scroll changed the scale to %v", v.Scale)
	}
	sx, sy := v.WorldToScreen(50, -30)
	if !approxEqual32(sx, 400) || !approxEqual32(sy, 300) {
		t.Errorf("target at (%v, %v), want viewport center", sx, sy)
	}
}

func TestVisibleWorldBounds(t *testing.T) {
	v := testView()
	v.Scale = 2
	v.OffsetX = 100
	v.OffsetY = 100

	b := v.VisibleWorldBounds(0)
	if !approxEqual(b.X, -50) || !approxEqual(b.Y, -50) ||
		!approxEqual(b.Width, 400) || !approxEqual(b.Height, 300) {
		t.Errorf("bounds = %+v", b)
	}

	m := v.VisibleWorldBounds(25)
	if !approxEqual(m.X, -75) || !approxEqual(m.Width, 450) {
		t.Errorf("expanded bounds = %+v", m)
	}
}

func TestViewSetViewport(t *testing.T) {
	v := testView()
	v.TakeChanged()
	v.SetViewport(v.Viewport)
	if v.TakeChanged() {
		t.Error("identical viewport marked the view changed")
	}
	v.SetViewport(Rect{Width: 1024, Height: 768})
	if !v.TakeChanged() {
		t.Error("viewport change did not mark the view changed")
	}
}

// approxEqual32 tolerates float32 tween rounding.
func approxEqual32(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-3
}
