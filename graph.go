package exiletree

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// TreeConnection is one outgoing edge of a TreeNode. Orbit is the orbit
// override: when non-zero the edge is drawn as a circular arc along that
// orbit's radius; when zero the edge is an arc only if both endpoints share
// a group and orbit, and a straight chord otherwise.
type TreeConnection struct {
	Target int
	Orbit  int
}

// TreeNode is one immutable node of a tree version graph.
type TreeNode struct {
	ID          int
	Name        string
	Stats       []string // display stat lines
	Group       int      // owning TreeGroup id
	Orbit       int      // ring index, 0 = group center
	OrbitIndex  int      // angular slot within the ring
	Connections []TreeConnection
	Icon        string // asset reference, empty if none

	Kind       NodeKind
	Ascendancy string // non-empty only for ascendancy-exclusive nodes
}

// Allocatable reports whether the node can hold an allocation. Decorative
// image-only nodes cannot.
func (n *TreeNode) Allocatable() bool {
	return n.Kind != KindDecoration
}

// TreeGroup is a world anchor owning one or more orbits of nodes.
type TreeGroup struct {
	ID    int
	X, Y  float64
	Nodes []int
}

// TreeAscendancy is one sub-specialization of a character class.
type TreeAscendancy struct {
	ID   int
	Name string
}

// TreeClass is one character class with its starting node and ascendancies.
type TreeClass struct {
	ID           int
	Name         string
	StartNode    int
	Ascendancies []TreeAscendancy
}

// TreeVersionGraph is the full static graph for one tree revision. Loaded as
// a whole and treated as read-only for the process lifetime; all lookups are
// by value maps built once at load.
type TreeVersionGraph struct {
	Version        string
	Nodes          map[int]*TreeNode
	Groups         map[int]*TreeGroup
	Classes        []TreeClass
	OrbitRadii     []float64
	SkillsPerOrbit []int

	// sortedIDs is every node id in ascending order. Hit-testing and edge
	// enumeration iterate in this order; it is part of the package contract.
	sortedIDs []int
}

// SortedNodeIDs returns every node id in ascending order. The returned slice
// is shared and must not be mutated.
func (g *TreeVersionGraph) SortedNodeIDs() []int {
	return g.sortedIDs
}

// Class returns the class with the given id, or nil.
func (g *TreeVersionGraph) Class(id int) *TreeClass {
	for i := range g.Classes {
		if g.Classes[i].ID == id {
			return &g.Classes[i]
		}
	}
	return nil
}

// AscendancyName resolves a (class id, ascendancy id) pair to a name.
// Returns "" when either id is unknown or ascID is 0 (none selected).
func (g *TreeVersionGraph) AscendancyName(classID, ascID int) string {
	c := g.Class(classID)
	if c == nil || ascID == 0 {
		return ""
	}
	for _, a := range c.Ascendancies {
		if a.ID == ascID {
			return a.Name
		}
	}
	return ""
}

// finalize builds the sorted id index and validates edge targets. A
// connection referencing a node absent from the graph is a data error.
func (g *TreeVersionGraph) finalize() error {
	g.sortedIDs = make([]int, 0, len(g.Nodes))
	for id := range g.Nodes {
		g.sortedIDs = append(g.sortedIDs, id)
	}
	sort.Ints(g.sortedIDs)

	for _, id := range g.sortedIDs {
		for _, conn := range g.Nodes[id].Connections {
			if _, ok := g.Nodes[conn.Target]; !ok {
				return fmt.Errorf("tree %s: node %d connects to missing node %d", g.Version, id, conn.Target)
			}
		}
	}
	return nil
}

// GraphSource supplies raw tree structure data for a version. A nil graph
// with a nil error is the "not found" signal; the Repository turns it into
// a GraphNotFoundError.
type GraphSource interface {
	LoadTreeStructure(version string) (*TreeVersionGraph, error)
}

// Repository caches loaded tree graphs by version string. Concurrent
// requests for the same uncached version share a single load (single
// flight), and repeated Load calls return the same graph instance so
// downstream position caches stay valid.
type Repository struct {
	source GraphSource

	mu       sync.Mutex
	graphs   map[string]*TreeVersionGraph
	inflight map[string]*graphCall
}

type graphCall struct {
	done  chan struct{}
	graph *TreeVersionGraph
	err   error
}

// NewRepository creates a Repository backed by the given source.
func NewRepository(source GraphSource) *Repository {
	return &Repository{
		source:   source,
		graphs:   make(map[string]*TreeVersionGraph),
		inflight: make(map[string]*graphCall),
	}
}

// Load returns the graph for a tree version, loading it on first request.
// A failed load leaves the cache untouched, so a later call retries.
func (r *Repository) Load(version string) (*TreeVersionGraph, error) {
	r.mu.Lock()
	if g, ok := r.graphs[version]; ok {
		r.mu.Unlock()
		return g, nil
	}
	if call, ok := r.inflight[version]; ok {
		r.mu.Unlock()
		<-call.done
		return call.graph, call.err
	}
	call := &graphCall{done: make(chan struct{})}
	r.inflight[version] = call
	r.mu.Unlock()

	call.graph, call.err = r.load(version)

	r.mu.Lock()
	if call.err == nil {
		r.graphs[version] = call.graph
	}
	delete(r.inflight, version)
	r.mu.Unlock()

	close(call.done)
	return call.graph, call.err
}

func (r *Repository) load(version string) (*TreeVersionGraph, error) {
	g, err := r.source.LoadTreeStructure(version)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, &GraphNotFoundError{Version: version}
	}
	if g.Version == "" {
		g.Version = version
	}
	if err := g.finalize(); err != nil {
		return nil, err
	}
	return g, nil
}

// Cached reports whether a version is already loaded, without loading it.
func (r *Repository) Cached(version string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.graphs[version]
	return ok
}

// --- JSON file source ---

// FileGraphSource loads tree structure from tree_<version>.json files under
// a directory. A missing file is the "not found" signal, not an error.
type FileGraphSource struct {
	dir string
}

// NewFileGraphSource creates a FileGraphSource rooted at dir.
func NewFileGraphSource(dir string) *FileGraphSource {
	return &FileGraphSource{dir: dir}
}

// LoadTreeStructure implements GraphSource.
func (s *FileGraphSource) LoadTreeStructure(version string) (*TreeVersionGraph, error) {
	path := filepath.Join(s.dir, "tree_"+version+".json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tree structure %s: %w", path, err)
	}
	g, err := ParseGraphJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse tree structure %s: %w", path, err)
	}
	g.Version = version
	return g, nil
}

// --- JSON structure types ---

type jsonGraph struct {
	Version   string      `json:"version"`
	Nodes     []jsonNode  `json:"nodes"`
	Groups    []jsonGroup `json:"groups"`
	Classes   []jsonClass `json:"classes"`
	Constants struct {
		OrbitRadii     []float64 `json:"orbitRadii"`
		SkillsPerOrbit []int     `json:"skillsPerOrbit"`
	} `json:"constants"`
}

type jsonNode struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	Stats      []string `json:"stats,omitempty"`
	Group      int      `json:"group"`
	Orbit      int      `json:"orbit"`
	OrbitIndex int      `json:"orbitIndex"`
	Icon       string   `json:"icon,omitempty"`
	Out        []jsonEdge `json:"out,omitempty"`

	Notable     bool   `json:"isNotable,omitempty"`
	Keystone    bool   `json:"isKeystone,omitempty"`
	Mastery     bool   `json:"isMastery,omitempty"`
	JewelSocket bool   `json:"isJewelSocket,omitempty"`
	OnlyImage   bool   `json:"isOnlyImage,omitempty"`
	ClassStart  bool   `json:"isClassStart,omitempty"`
	Ascendancy  string `json:"ascendancyName,omitempty"`
}

// jsonEdge accepts either a bare target id or an {id, orbit} object, so
// sources without orbit overrides stay terse.
type jsonEdge struct {
	ID    int
	Orbit int
}

func (e *jsonEdge) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			ID    int `json:"id"`
			Orbit int `json:"orbit"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		e.ID = obj.ID
		e.Orbit = obj.Orbit
		return nil
	}
	return json.Unmarshal(data, &e.ID)
}

type jsonGroup struct {
	ID    int     `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Nodes []int   `json:"nodes"`
}

type jsonClass struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	StartNode    int    `json:"startNode"`
	Ascendancies []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"ascendancies,omitempty"`
}

// ParseGraphJSON parses tree structure JSON into a TreeVersionGraph. The
// returned graph has not been finalized; Repository.Load does that.
func ParseGraphJSON(data []byte) (*TreeVersionGraph, error) {
	var jg jsonGraph
	if err := json.Unmarshal(data, &jg); err != nil {
		return nil, err
	}

	g := &TreeVersionGraph{
		Version:        jg.Version,
		Nodes:          make(map[int]*TreeNode, len(jg.Nodes)),
		Groups:         make(map[int]*TreeGroup, len(jg.Groups)),
		OrbitRadii:     jg.Constants.OrbitRadii,
		SkillsPerOrbit: jg.Constants.SkillsPerOrbit,
	}

	for _, jn := range jg.Nodes {
		conns := make([]TreeConnection, 0, len(jn.Out))
		for _, e := range jn.Out {
			conns = append(conns, TreeConnection{Target: e.ID, Orbit: e.Orbit})
		}
		g.Nodes[jn.ID] = &TreeNode{
			ID:          jn.ID,
			Name:        jn.Name,
			Stats:       jn.Stats,
			Group:       jn.Group,
			Orbit:       jn.Orbit,
			OrbitIndex:  jn.OrbitIndex,
			Connections: conns,
			Icon:        jn.Icon,
			Kind:        classifyNode(jn),
			Ascendancy:  jn.Ascendancy,
		}
	}
	for _, jg2 := range jg.Groups {
		g.Groups[jg2.ID] = &TreeGroup{ID: jg2.ID, X: jg2.X, Y: jg2.Y, Nodes: jg2.Nodes}
	}
	for _, jc := range jg.Classes {
		c := TreeClass{ID: jc.ID, Name: jc.Name, StartNode: jc.StartNode}
		for _, ja := range jc.Ascendancies {
			c.Ascendancies = append(c.Ascendancies, TreeAscendancy{ID: ja.ID, Name: ja.Name})
		}
		g.Classes = append(g.Classes, c)
	}
	return g, nil
}

// classifyNode maps the boolean flag soup of the wire format onto a single
// NodeKind. Flag precedence follows visual weight; a node carrying several
// flags gets the heaviest one.
func classifyNode(jn jsonNode) NodeKind {
	switch {
	case jn.OnlyImage:
		return KindDecoration
	case jn.ClassStart:
		return KindClassStart
	case jn.Keystone:
		return KindKeystone
	case jn.JewelSocket:
		return KindJewelSocket
	case jn.Mastery:
		return KindMastery
	case jn.Notable && jn.Ascendancy != "":
		return KindAscendancyNotable
	case jn.Notable:
		return KindNotable
	default:
		return KindNormal
	}
}
