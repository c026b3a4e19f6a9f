package exiletree

import "sort"

// Gem is one skill or support gem inside a skill group.
type Gem struct {
	Name    string
	Level   int
	Quality int
}

// SkillGroup is one linked gem setup: a main skill and its supports, in
// document order.
type SkillGroup struct {
	Main     Gem
	Supports []Gem
	Enabled  bool
	Label    string
}

// BuildLoadout is one named configuration extracted from a build code.
// Created fresh on every successful decode; never mutated in place.
// Switching loadouts replaces the active one wholesale.
type BuildLoadout struct {
	ID   string // stable within one decode, unique across loadouts
	Name string

	ClassID      int
	AscendancyID int
	TreeVersion  string
	HasTree      bool // false when the source document carried no allocation

	// Nodes holds the allocated node ids in ascending order.
	Nodes []int
	// MasteryEffects maps mastery node id to the selected effect id.
	MasteryEffects map[int]int
	// SocketFills maps jewel-socket node id to the socketed item id.
	SocketFills map[int]int

	SkillGroups []SkillGroup
	Items       []*Item
}

// AllocationView is a read-only O(1) projection over a BuildLoadout,
// resolved against a graph. The renderer queries it once or twice per
// visible node every frame, so membership tests must not scan.
type AllocationView struct {
	allocated  map[int]struct{}
	mastery    map[int]int
	classID    int
	ascendancy string
}

// NewAllocationView builds the projection for a loadout. The graph resolves
// class and ascendancy ids to names; a nil graph leaves the ascendancy
// unset.
func NewAllocationView(l *BuildLoadout, g *TreeVersionGraph) *AllocationView {
	v := &AllocationView{
		allocated: make(map[int]struct{}, len(l.Nodes)),
		mastery:   make(map[int]int, len(l.MasteryEffects)),
		classID:   l.ClassID,
	}
	for _, id := range l.Nodes {
		v.allocated[id] = struct{}{}
	}
	for id, effect := range l.MasteryEffects {
		v.mastery[id] = effect
	}
	if g != nil {
		v.ascendancy = g.AscendancyName(l.ClassID, l.AscendancyID)
	}
	return v
}

// IsAllocated reports whether a node id is allocated.
func (v *AllocationView) IsAllocated(id int) bool {
	_, ok := v.allocated[id]
	return ok
}

// EffectFor returns the selected effect for a mastery node, if any.
func (v *AllocationView) EffectFor(masteryNodeID int) (int, bool) {
	effect, ok := v.mastery[masteryNodeID]
	return effect, ok
}

// Count returns the number of allocated nodes.
func (v *AllocationView) Count() int { return len(v.allocated) }

// ClassID returns the selected character class id.
func (v *AllocationView) ClassID() int { return v.classID }

// ActiveAscendancy returns the selected ascendancy name, or "" when none is
// selected.
func (v *AllocationView) ActiveAscendancy() string { return v.ascendancy }

// LoadoutSet holds the sibling loadouts from one decode and tracks which is
// active. Exactly one loadout is active at a time.
type LoadoutSet struct {
	loadouts []*BuildLoadout
	byID     map[string]*BuildLoadout
	active   *BuildLoadout
}

// NewLoadoutSet creates a set over the given loadouts. The first becomes
// active. Panics on an empty slice: a successful decode always yields at
// least one loadout.
func NewLoadoutSet(loadouts []*BuildLoadout) *LoadoutSet {
	if len(loadouts) == 0 {
		panic("exiletree: empty loadout set")
	}
	s := &LoadoutSet{
		loadouts: loadouts,
		byID:     make(map[string]*BuildLoadout, len(loadouts)),
		active:   loadouts[0],
	}
	for _, l := range loadouts {
		s.byID[l.ID] = l
	}
	return s
}

// Loadouts returns the sibling loadouts in document order. The returned
// slice must not be mutated.
func (s *LoadoutSet) Loadouts() []*BuildLoadout { return s.loadouts }

// Active returns the currently active loadout.
func (s *LoadoutSet) Active() *BuildLoadout { return s.active }

// Switch makes the loadout with the given id active and returns it. The
// caller must then rebuild its AllocationView and re-render; no state from
// the previously active loadout survives the switch.
func (s *LoadoutSet) Switch(id string) (*BuildLoadout, error) {
	l, ok := s.byID[id]
	if !ok {
		return nil, &LoadoutNotFoundError{ID: id}
	}
	s.active = l
	return l, nil
}

// normalizeNodes sorts and deduplicates an allocated-node list in place,
// returning the normalized slice. Decode output must be deterministic
// regardless of source ordering.
func normalizeNodes(nodes []int) []int {
	sort.Ints(nodes)
	out := nodes[:0]
	var prev int
	for i, id := range nodes {
		if i > 0 && id == prev {
			continue
		}
		out = append(out, id)
		prev = id
	}
	return out
}
