package exiletree

import (
	"image/color"
	"math"

	"github.com/google/uuid"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// ViewerState is the lifecycle of a mounted TreeViewer.
type ViewerState uint8

const (
	ViewerLoading ViewerState = iota // graph, positions, and icons in flight
	ViewerReady                      // interactive
	ViewerError                      // allocation or graph unobtainable
	ViewerClosed                     // released; Update and Draw are no-ops
)

func (s ViewerState) String() string {
	switch s {
	case ViewerLoading:
		return "loading"
	case ViewerReady:
		return "ready"
	case ViewerError:
		return "error"
	case ViewerClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ViewerConfig carries viewer tuning. Zero values fall back to defaults at
// construction.
type ViewerConfig struct {
	MinScale float64 // scale clamp, default 0.05
	MaxScale float64 // scale clamp, default 4.0
	// CullMargin expands the visible region by this many world units before
	// culling, so edges reaching in from just off-screen still draw.
	CullMargin float64 // default 150
	FitPadding float64 // world-space padding for fit-to-bounds, default 80
	// AssetRoot is the collaborator-supplied prefix for icon and
	// illustration art. Empty disables icon loading.
	AssetRoot string
	// ShowBackdrops draws class/ascendancy illustrations under the lattice.
	ShowBackdrops bool
	SnapshotDir   string // default "snapshots"
}

// node radii in world units, by kind. Descending visual weight.
var nodeRadii = [...]float64{
	KindClassStart:        42,
	KindKeystone:          34,
	KindJewelSocket:       28,
	KindMastery:           26,
	KindNotable:           24,
	KindAscendancyNotable: 20,
	KindNormal:            13,
	KindDecoration:        0,
}

// hitSlack widens every node's hit-test radius.
const hitSlack = 1.2

// hoverBoost grows the hovered node's drawn radius by 15%.
const hoverBoost = 1.15

var (
	colorBackground = color.RGBA{16, 18, 24, 255}
	colorEdgeDim    = color.RGBA{60, 64, 76, 255}
	colorEdgeLit    = color.RGBA{222, 178, 96, 255}
	colorGlow       = color.RGBA{222, 178, 96, 64}
	colorHoverRing  = color.RGBA{255, 255, 255, 255}

	// flat node fills by kind; allocation is communicated by the glow halo
	// and edge styling, never by dimming the node itself.
	nodeColors = [...]color.RGBA{
		KindClassStart:        {170, 60, 60, 255},
		KindKeystone:          {196, 154, 80, 255},
		KindJewelSocket:       {92, 140, 168, 255},
		KindMastery:           {120, 96, 160, 255},
		KindNotable:           {176, 148, 92, 255},
		KindAscendancyNotable: {150, 110, 170, 255},
		KindNormal:            {110, 114, 126, 255},
		KindDecoration:        {0, 0, 0, 0},
	}
)

// treeEdge is one deduplicated connection between two positioned nodes,
// with precomputed arc geometry. A and B are node ids with A < B.
type treeEdge struct {
	A, B int

	arc bool
	// arc geometry: circle center, radius, and endpoint angles in the
	// package's clockwise-from-up convention.
	cx, cy float64
	radius float64
	a1, a2 float64
}

// loadResult carries an async load completion back to the UI goroutine.
type loadResult struct {
	token     uuid.UUID
	graph     *TreeVersionGraph
	positions *PositionSet
	err       error
}

// TreeViewer renders one build loadout's passive tree on an Ebitengine
// canvas: pan, zoom-to-cursor, hover hit-testing, view-dependent culling,
// and two-pass edge layering. Drive it from the host's game loop by calling
// Update and Draw each frame.
//
// All mutation happens on the single UI goroutine. Each async load (graph
// fetch, icon warm-up) delivers through its own buffered channel and
// carries a token; a loadout switch or Close mid-flight replaces both, so
// an orphaned goroutine neither blocks on send nor applies stale data.
type TreeViewer struct {
	cfg      ViewerConfig
	repo     *Repository
	resolver *Resolver
	icons    *IconCache

	state  ViewerState
	errMsg string

	loadout   *BuildLoadout
	alloc     *AllocationView
	graph     *TreeVersionGraph
	positions *PositionSet
	edges     []treeEdge
	view      *ViewState

	hover  int // hovered node id, 0 = none
	dirty  bool
	canvas *ebiten.Image

	loadToken uuid.UUID
	results   chan loadResult

	dragging     bool
	lastX, lastY int

	snapshots []string
}

// NewViewer creates a viewer over the given graph repository. The viewer
// starts in ViewerLoading and stays there until Load is called and
// completes.
func NewViewer(repo *Repository, cfg ViewerConfig) *TreeViewer {
	if cfg.CullMargin <= 0 {
		cfg.CullMargin = 150
	}
	if cfg.FitPadding <= 0 {
		cfg.FitPadding = 80
	}
	if cfg.SnapshotDir == "" {
		cfg.SnapshotDir = "snapshots"
	}
	return &TreeViewer{
		cfg:      cfg,
		repo:     repo,
		resolver: NewResolver(),
		icons:    NewIconCache(cfg.AssetRoot),
		state:    ViewerLoading,
		view:     NewViewState(Rect{Width: 800, Height: 600}, cfg.MinScale, cfg.MaxScale),
		results:  make(chan loadResult, 1),
	}
}

// State returns the viewer lifecycle state.
func (t *TreeViewer) State() ViewerState { return t.state }

// ErrorMessage returns the user-facing message when State is ViewerError.
func (t *TreeViewer) ErrorMessage() string { return t.errMsg }

// View exposes the view state for host-driven adjustments.
func (t *TreeViewer) View() *ViewState { return t.view }

// Loadout returns the loadout the viewer currently presents, if any.
func (t *TreeViewer) Loadout() *BuildLoadout { return t.loadout }

// Load starts presenting a loadout, replacing whatever was active. The
// graph fetch, position resolution, and allocation-scoped icon warm-up run
// off the UI goroutine; the result is applied on the next Update. Any load
// still in flight is orphaned: its token no longer matches.
//
// Switching between loadouts that share a tree version is cheap; the
// repository returns the shared graph instance and the resolver returns the
// cached positions for it.
func (t *TreeViewer) Load(loadout *BuildLoadout) {
	if t.state == ViewerClosed {
		return
	}
	if loadout == nil || !loadout.HasTree {
		t.state = ViewerError
		t.errMsg = "build has no tree allocation"
		return
	}

	t.loadout = loadout
	t.alloc = nil
	t.state = ViewerLoading
	t.errMsg = ""
	t.loadToken = uuid.New()
	// A fresh channel per load: an orphaned goroutine sends into its own
	// buffered slot and can never block, however late it finishes.
	t.results = make(chan loadResult, 1)

	token := t.loadToken
	results := t.results
	version := loadout.TreeVersion
	go func() {
		graph, err := t.repo.Load(version)
		if err != nil {
			results <- loadResult{token: token, err: err}
			return
		}
		positions := t.resolver.Resolve(graph)
		if t.cfg.AssetRoot != "" {
			t.icons.Warm(allocatedIconRefs(loadout, graph))
		}
		results <- loadResult{token: token, graph: graph, positions: positions}
	}()
}

// allocatedIconRefs collects the icon references of allocated nodes only.
// Icon loading is allocation-scoped to bound work on huge graphs.
func allocatedIconRefs(loadout *BuildLoadout, g *TreeVersionGraph) []string {
	refs := make([]string, 0, len(loadout.Nodes))
	for _, id := range loadout.Nodes {
		if n, ok := g.Nodes[id]; ok && n.Icon != "" {
			refs = append(refs, n.Icon)
		}
	}
	return refs
}

// Close releases the viewer. Further Update and Draw calls are no-ops, and
// any in-flight load result is discarded when it arrives.
func (t *TreeViewer) Close() {
	if t.state == ViewerClosed {
		return
	}
	t.state = ViewerClosed
	t.loadToken = uuid.Nil
	t.results = make(chan loadResult, 1)
	if t.canvas != nil {
		t.canvas.Deallocate()
		t.canvas = nil
	}
	t.snapshots = nil
}

// ResetView animates back to the fit-to-bounds framing.
func (t *TreeViewer) ResetView() {
	if t.positions == nil {
		return
	}
	t.view.AnimateToBounds(t.positions.Bounds(), t.cfg.FitPadding, 0.35)
}

// ScrollToNode eases the view until the given node is centered. Unknown ids
// are ignored.
func (t *TreeViewer) ScrollToNode(id int) {
	if t.positions == nil {
		return
	}
	if pn, ok := t.positions.At(id); ok {
		t.view.ScrollToWorld(pn.X, pn.Y, 0.3)
	}
}

// HoverNode returns the node currently under the pointer, if any.
func (t *TreeViewer) HoverNode() (*TreeNode, bool) {
	if t.hover == 0 || t.graph == nil {
		return nil, false
	}
	n, ok := t.graph.Nodes[t.hover]
	return n, ok
}

// Update drains async results and processes pointer input. Call once per
// tick from the host game loop. Panning, zooming, and hover work purely on
// in-memory data and never block on I/O.
func (t *TreeViewer) Update() {
	if t.state == ViewerClosed {
		return
	}

	t.drainResults()

	if t.state != ViewerReady {
		return
	}

	t.handlePointer()
	t.view.Update(1 / float32(ebiten.TPS()))
	if t.view.TakeChanged() {
		t.dirty = true
	}
}

func (t *TreeViewer) drainResults() {
	for {
		select {
		case res := <-t.results:
			t.applyResult(res)
		default:
			return
		}
	}
}

// applyResult applies a load completion, unless it is stale.
func (t *TreeViewer) applyResult(res loadResult) {
	if res.token != t.loadToken {
		debugf("dropping stale load result")
		return
	}
	if res.err != nil {
		t.state = ViewerError
		t.errMsg = res.err.Error()
		return
	}

	t.graph = res.graph
	t.positions = res.positions
	t.alloc = NewAllocationView(t.loadout, t.graph)
	t.edges = buildEdges(t.graph, t.positions)
	t.hover = 0
	t.view.FitToBounds(t.positions.Bounds(), t.cfg.FitPadding)
	t.view.TakeChanged()
	t.state = ViewerReady
	t.dirty = true
}

// handlePointer implements left-drag panning, wheel zoom-to-cursor, and
// hover hit-testing.
func (t *TreeViewer) handlePointer() {
	mx, my := ebiten.CursorPosition()

	if _, wy := ebiten.Wheel(); wy != 0 {
		t.view.ZoomAt(float64(mx), float64(my), math.Pow(1.15, wy))
	}

	if ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		if t.dragging {
			t.view.Pan(float64(mx-t.lastX), float64(my-t.lastY))
		}
		t.dragging = true
	} else {
		t.dragging = false
	}

	if mx != t.lastX || my != t.lastY {
		if hit := t.HitTest(float64(mx), float64(my)); hit != t.hover {
			t.hover = hit
			t.dirty = true
		}
	}
	t.lastX, t.lastY = mx, my
}

// HitTest returns the id of the node nearest to the screen point whose
// distance is within its radius times 1.2, or 0 for none. Decorative nodes
// are excluded. Candidates are scanned in ascending node id order, and on
// an exact distance tie the lower id wins; that iteration order is part of
// the package contract.
func (t *TreeViewer) HitTest(sx, sy float64) int {
	if t.positions == nil {
		return 0
	}
	wx, wy := t.view.ScreenToWorld(sx, sy)

	best := 0
	bestDist := math.MaxFloat64
	for _, id := range t.positions.IDs() {
		pn, _ := t.positions.At(id)
		if pn.Node.Kind == KindDecoration {
			continue
		}
		r := nodeRadii[pn.Node.Kind] * hitSlack
		dx := wx - pn.X
		dy := wy - pn.Y
		d := dx*dx + dy*dy
		if d <= r*r && d < bestDist {
			best = id
			bestDist = d
		}
	}
	return best
}

// Draw renders the viewer into the given screen. The tree itself is drawn
// to an offscreen canvas only when the dirty flag is set (new data, view
// change, hover change, loadout switch) and blitted every frame.
func (t *TreeViewer) Draw(screen *ebiten.Image) {
	if t.state == ViewerClosed {
		return
	}

	b := screen.Bounds()
	t.view.SetViewport(Rect{Width: float64(b.Dx()), Height: float64(b.Dy())})
	if t.view.TakeChanged() {
		t.dirty = true
	}

	switch t.state {
	case ViewerLoading:
		ebitenutil.DebugPrint(screen, "loading tree...")
		return
	case ViewerError:
		ebitenutil.DebugPrint(screen, "tree unavailable: "+t.errMsg)
		return
	}

	if t.canvas == nil || t.canvas.Bounds() != b {
		if t.canvas != nil {
			t.canvas.Deallocate()
		}
		t.canvas = ebiten.NewImage(b.Dx(), b.Dy())
		t.dirty = true
	}
	if t.dirty {
		t.drawTree(t.canvas)
		t.dirty = false
	}
	screen.DrawImage(t.canvas, nil)
	t.flushSnapshots()
}

// drawTree redraws the whole visible tree: backdrops, then both edge
// passes, then nodes.
func (t *TreeViewer) drawTree(dst *ebiten.Image) {
	dst.Fill(colorBackground)

	visible := t.view.VisibleWorldBounds(t.cfg.CullMargin)

	if t.cfg.ShowBackdrops {
		t.drawBackdrops(dst, visible)
	}

	// Two passes keep allocated paths layered above the unallocated
	// lattice regardless of iteration order.
	dim, lit := splitEdges(t.edges, t.alloc)
	for _, e := range dim {
		t.drawEdge(dst, e, visible, colorEdgeDim, 3)
	}
	for _, e := range lit {
		t.drawEdge(dst, e, visible, colorEdgeLit, 6)
	}

	for _, id := range t.positions.IDs() {
		pn, _ := t.positions.At(id)
		t.drawNode(dst, pn, visible)
	}
}

// buildEdges enumerates every drawable connection once. Nodes are walked in
// ascending id order; each unordered endpoint pair is kept once. Class
// start nodes never participate, and cross-ascendancy edges are suppressed.
func buildEdges(g *TreeVersionGraph, ps *PositionSet) []treeEdge {
	seen := make(map[[2]int]struct{})
	var edges []treeEdge

	for _, id := range ps.IDs() {
		from, _ := ps.At(id)
		if from.Node.Kind == KindClassStart {
			continue
		}
		for _, conn := range from.Node.Connections {
			to, ok := ps.At(conn.Target)
			if !ok {
				continue
			}
			if to.Node.Kind == KindClassStart {
				continue
			}
			if from.Node.Ascendancy != "" && to.Node.Ascendancy != "" &&
				from.Node.Ascendancy != to.Node.Ascendancy {
				continue
			}

			key := [2]int{id, conn.Target}
			if key[0] > key[1] {
				key[0], key[1] = key[1], key[0]
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			edges = append(edges, makeEdge(g, from, to, conn, key))
		}
	}
	return edges
}

// makeEdge precomputes one edge's geometry. The edge is an arc when the
// connection carries an orbit override, or when both endpoints share a
// group and orbit; otherwise it is a straight chord.
func makeEdge(g *TreeVersionGraph, from, to PositionedNode, conn TreeConnection, key [2]int) treeEdge {
	e := treeEdge{A: key[0], B: key[1]}

	orbit := conn.Orbit
	sameRing := from.Node.Group == to.Node.Group && from.Node.Orbit == to.Node.Orbit && from.Node.Orbit > 0
	if orbit == 0 && sameRing {
		orbit = from.Node.Orbit
	}
	if orbit == 0 || orbit >= len(g.OrbitRadii) || g.OrbitRadii[orbit] == 0 {
		return e
	}
	group, ok := g.Groups[from.Node.Group]
	if !ok {
		return e
	}

	e.arc = true
	e.cx, e.cy = group.X, group.Y
	e.radius = g.OrbitRadii[orbit]
	e.a1, e.a2 = from.Angle, to.Angle
	return e
}

// splitEdges partitions edges into the unallocated pass (at least one
// endpoint unallocated, drawn dim) and the allocated pass (both endpoints
// allocated, drawn bright on top). Order within each pass follows the
// enumeration order of buildEdges.
func splitEdges(edges []treeEdge, alloc *AllocationView) (dim, lit []treeEdge) {
	if alloc == nil {
		return edges, nil
	}
	for _, e := range edges {
		if alloc.IsAllocated(e.A) && alloc.IsAllocated(e.B) {
			lit = append(lit, e)
		} else {
			dim = append(dim, e)
		}
	}
	return dim, lit
}

// drawEdge draws one arc or chord, culled against the visible region.
func (t *TreeViewer) drawEdge(dst *ebiten.Image, e treeEdge, visible Rect, clr color.RGBA, width float32) {
	a, _ := t.positions.At(e.A)
	b, _ := t.positions.At(e.B)
	if !edgeBounds(a, b).Intersects(visible) {
		return
	}

	if !e.arc {
		x0, y0 := t.view.WorldToScreen(a.X, a.Y)
		x1, y1 := t.view.WorldToScreen(b.X, b.Y)
		vector.StrokeLine(dst, float32(x0), float32(y0), float32(x1), float32(y1), width, clr, true)
		return
	}

	// Arc along the orbit circle, taking the shorter angular direction.
	delta := math.Mod(e.a2-e.a1, 2*math.Pi)
	if delta > math.Pi {
		delta -= 2 * math.Pi
	} else if delta < -math.Pi {
		delta += 2 * math.Pi
	}
	segments := int(math.Abs(delta)/0.08) + 1
	if segments < 4 {
		segments = 4
	}

	px, py := t.view.WorldToScreen(orbitPoint(e, e.a1))
	for i := 1; i <= segments; i++ {
		angle := e.a1 + delta*float64(i)/float64(segments)
		x, y := t.view.WorldToScreen(orbitPoint(e, angle))
		vector.StrokeLine(dst, float32(px), float32(py), float32(x), float32(y), width, clr, true)
		px, py = x, y
	}
}

// orbitPoint evaluates the arc circle at an angle (clockwise from up).
func orbitPoint(e treeEdge, angle float64) (float64, float64) {
	return e.cx + math.Sin(angle)*e.radius, e.cy - math.Cos(angle)*e.radius
}

// edgeBounds is the world AABB of an edge's endpoints, for culling.
func edgeBounds(a, b PositionedNode) Rect {
	minX := math.Min(a.X, b.X)
	minY := math.Min(a.Y, b.Y)
	return Rect{X: minX, Y: minY, Width: math.Abs(a.X - b.X), Height: math.Abs(a.Y - b.Y)}
}

// drawNode draws one node: flat circle by kind, glow halo plus optional
// icon when allocated, hover boost and white outline when hovered.
func (t *TreeViewer) drawNode(dst *ebiten.Image, pn PositionedNode, visible Rect) {
	kind := pn.Node.Kind
	if kind == KindDecoration {
		return
	}
	radius := nodeRadii[kind]
	if !(Rect{X: pn.X - radius, Y: pn.Y - radius, Width: radius * 2, Height: radius * 2}).Intersects(visible) {
		return
	}

	hovered := pn.Node.ID == t.hover
	if hovered {
		radius *= hoverBoost
	}

	sx, sy := t.view.WorldToScreen(pn.X, pn.Y)
	x, y := float32(sx), float32(sy)
	r := float32(radius * t.view.Scale)
	if r < 1 {
		r = 1
	}

	allocated := t.alloc != nil && t.alloc.IsAllocated(pn.Node.ID)
	if allocated {
		vector.DrawFilledCircle(dst, x, y, r*1.6, colorGlow, true)
	}

	vector.DrawFilledCircle(dst, x, y, r, nodeColors[kind], true)

	if allocated && pn.Node.Icon != "" {
		if icon, ok := t.icons.Get(pn.Node.Icon); ok {
			drawIcon(dst, icon, x, y, r)
		}
	}

	if hovered {
		vector.StrokeCircle(dst, x, y, r+2, 2, colorHoverRing, true)
	}
}

// drawIcon blits a pre-cropped circular icon centered on (x, y) scaled to
// the node diameter.
func drawIcon(dst *ebiten.Image, icon *ebiten.Image, x, y, r float32) {
	b := icon.Bounds()
	w := float64(b.Dx())
	h := float64(b.Dy())
	scale := float64(2*r) / math.Max(w, h)

	var op ebiten.DrawImageOptions
	op.GeoM.Translate(-w/2, -h/2)
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(float64(x), float64(y))
	op.Filter = ebiten.FilterLinear
	dst.DrawImage(icon, &op)
}

// drawBackdrops draws the class illustration under the class start node and
// the ascendancy illustration under its subgraph, when an ascendancy is
// selected.
func (t *TreeViewer) drawBackdrops(dst *ebiten.Image, visible Rect) {
	if t.alloc == nil || t.graph == nil {
		return
	}

	if c := t.graph.Class(t.alloc.ClassID()); c != nil {
		if pn, ok := t.positions.At(c.StartNode); ok {
			t.drawBackdrop(dst, c.Name, pn.X, pn.Y, visible)
		}
	}
	if asc := t.alloc.ActiveAscendancy(); asc != "" {
		if x, y, ok := t.ascendancyAnchor(asc); ok {
			t.drawBackdrop(dst, asc, x, y, visible)
		}
	}
}

// ascendancyAnchor is the position of the lowest-id node belonging to an
// ascendancy subgraph.
func (t *TreeViewer) ascendancyAnchor(name string) (float64, float64, bool) {
	for _, id := range t.positions.IDs() {
		pn, _ := t.positions.At(id)
		if pn.Node.Ascendancy == name {
			return pn.X, pn.Y, true
		}
	}
	return 0, 0, false
}

func (t *TreeViewer) drawBackdrop(dst *ebiten.Image, name string, wx, wy float64, visible Rect) {
	img, ok := t.icons.Illustration(name)
	if !ok {
		return
	}
	b := img.Bounds()
	w := float64(b.Dx())
	h := float64(b.Dy())
	if !(Rect{X: wx - w/2, Y: wy - h/2, Width: w, Height: h}).Intersects(visible) {
		return
	}

	sx, sy := t.view.WorldToScreen(wx, wy)
	var op ebiten.DrawImageOptions
	op.GeoM.Translate(-w/2, -h/2)
	op.GeoM.Scale(t.view.Scale, t.view.Scale)
	op.GeoM.Translate(sx, sy)
	op.Filter = ebiten.FilterLinear
	op.ColorScale.ScaleAlpha(0.5)
	dst.DrawImage(img, &op)
}
