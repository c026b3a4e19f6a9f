package exiletree

import (
	"math"
	"sync"
)

// PositionedNode pairs a TreeNode with its computed world position. Angle is
// the orbit angle in radians: 0 points up, increasing clockwise. Derived per
// tree version, never per loadout.
type PositionedNode struct {
	Node  *TreeNode
	X, Y  float64
	Angle float64
}

// PositionSet holds the resolved positions for one graph instance, plus the
// tree bounding box derived in the same pass. Immutable once built.
type PositionSet struct {
	graph  *TreeVersionGraph
	nodes  map[int]PositionedNode
	ids    []int // positioned node ids, ascending
	bounds Rect
}

// Graph returns the graph instance these positions were resolved from.
func (p *PositionSet) Graph() *TreeVersionGraph { return p.graph }

// At returns the positioned node for an id.
func (p *PositionSet) At(id int) (PositionedNode, bool) {
	pn, ok := p.nodes[id]
	return pn, ok
}

// IDs returns the ids of every positioned node in ascending order. Nodes
// whose group was missing from the graph are absent. The returned slice is
// shared and must not be mutated.
func (p *PositionSet) IDs() []int { return p.ids }

// Len returns the number of positioned nodes.
func (p *PositionSet) Len() int { return len(p.nodes) }

// Bounds returns the tree bounding box (min/max over every positioned
// node), used to center the initial view. Zero for an empty set.
func (p *PositionSet) Bounds() Rect { return p.bounds }

// Resolver computes and caches node positions per graph instance. The cache
// is keyed by graph identity: resolving the same *TreeVersionGraph twice
// returns the same *PositionSet, and recomputation only happens for a graph
// instance not seen before.
type Resolver struct {
	mu    sync.Mutex
	cache map[*TreeVersionGraph]*PositionSet
}

// NewResolver creates an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{cache: make(map[*TreeVersionGraph]*PositionSet)}
}

// Resolve returns the position set for a graph, computing it on first call.
func (r *Resolver) Resolve(g *TreeVersionGraph) *PositionSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ps, ok := r.cache[g]; ok {
		return ps
	}
	ps := resolvePositions(g)
	r.cache[g] = ps
	return ps
}

// resolvePositions maps every graph node to world space. Deterministic:
// the same graph always yields bit-identical floats.
func resolvePositions(g *TreeVersionGraph) *PositionSet {
	ps := &PositionSet{
		graph: g,
		nodes: make(map[int]PositionedNode, len(g.Nodes)),
	}

	angles := orbitAngleTables(g.SkillsPerOrbit)

	first := true
	for _, id := range g.SortedNodeIDs() {
		n := g.Nodes[id]
		group, ok := g.Groups[n.Group]
		if !ok {
			debugf("node %d: group %d missing, skipped", n.ID, n.Group)
			continue
		}

		pn := placeNode(n, group, g.OrbitRadii, angles)
		ps.nodes[id] = pn
		ps.ids = append(ps.ids, id)

		if first {
			ps.bounds = Rect{X: pn.X, Y: pn.Y}
			first = false
			continue
		}
		if pn.X < ps.bounds.X {
			ps.bounds.Width += ps.bounds.X - pn.X
			ps.bounds.X = pn.X
		} else if pn.X > ps.bounds.X+ps.bounds.Width {
			ps.bounds.Width = pn.X - ps.bounds.X
		}
		if pn.Y < ps.bounds.Y {
			ps.bounds.Height += ps.bounds.Y - pn.Y
			ps.bounds.Y = pn.Y
		} else if pn.Y > ps.bounds.Y+ps.bounds.Height {
			ps.bounds.Height = pn.Y - ps.bounds.Y
		}
	}
	return ps
}

// placeNode computes one node's world position from its group anchor and
// orbit slot. Orbit 0 (or a zero radius) pins the node to the anchor.
func placeNode(n *TreeNode, group *TreeGroup, radii []float64, angles [][]float64) PositionedNode {
	var radius float64
	if n.Orbit > 0 && n.Orbit < len(radii) {
		radius = radii[n.Orbit]
	}
	if n.Orbit == 0 || radius == 0 {
		return PositionedNode{Node: n, X: group.X, Y: group.Y}
	}

	angle := orbitAngle(angles, n.Orbit, n.OrbitIndex)
	return PositionedNode{
		Node:  n,
		X:     group.X + math.Sin(angle)*radius,
		Y:     group.Y - math.Cos(angle)*radius,
		Angle: angle,
	}
}

// orbitAngleTables precomputes, for each orbit, skillsPerOrbit[o]+1 angles
// evenly spaced over 2 pi: table[i] = 2 pi * i / skillsPerOrbit[o].
func orbitAngleTables(skillsPerOrbit []int) [][]float64 {
	tables := make([][]float64, len(skillsPerOrbit))
	for o, count := range skillsPerOrbit {
		if count <= 0 {
			continue
		}
		table := make([]float64, count+1)
		for i := 0; i <= count; i++ {
			table[i] = 2 * math.Pi * float64(i) / float64(count)
		}
		tables[o] = table
	}
	return tables
}

// orbitAngle looks up the precomputed angle for (orbit, index), falling
// back to a direct computation when the index is outside the table.
func orbitAngle(tables [][]float64, orbit, index int) float64 {
	if orbit < 0 || orbit >= len(tables) {
		return 0
	}
	table := tables[orbit]
	if index >= 0 && index < len(table) {
		return table[index]
	}
	count := len(table) - 1
	if count <= 0 {
		return 0
	}
	return 2 * math.Pi * float64(index) / float64(count)
}
