package exiletree

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// NodeMatch is one fuzzy-search hit. Score is in (0, 1]; exact matches
// score 1.0.
type NodeMatch struct {
	ID    int
	Name  string
	Score float64
}

type indexEntry struct {
	id   int
	name string // display name
	norm string // normalized for matching
}

// NodeIndex is a searchable name index over one graph. Build once per
// graph; immutable afterwards.
type NodeIndex struct {
	entries []indexEntry
}

// BuildNodeIndex indexes every named, non-decorative node, in ascending id
// order.
func BuildNodeIndex(g *TreeVersionGraph) *NodeIndex {
	idx := &NodeIndex{entries: make([]indexEntry, 0, len(g.Nodes))}
	for _, id := range g.SortedNodeIDs() {
		n := g.Nodes[id]
		if n.Name == "" || n.Kind == KindDecoration {
			continue
		}
		idx.entries = append(idx.entries, indexEntry{id: id, name: n.Name, norm: normalizeName(n.Name)})
	}
	return idx
}

// Search returns up to limit nodes matching the query, best first. Exact
// normalized matches rank above substring matches, which rank above fuzzy
// (edit distance) matches; within a rank, lower node id wins. Queries
// shorter than three characters only match exactly or by substring.
func (idx *NodeIndex) Search(query string, limit int) []NodeMatch {
	q := normalizeName(query)
	if q == "" || limit <= 0 {
		return nil
	}

	var matches []NodeMatch
	for _, e := range idx.entries {
		switch {
		case e.norm == q:
			matches = append(matches, NodeMatch{ID: e.id, Name: e.name, Score: 1.0})
		case strings.Contains(e.norm, q):
			matches = append(matches, NodeMatch{ID: e.id, Name: e.name, Score: 0.9})
		case len(q) >= 3:
			dist := levenshtein.ComputeDistance(q, e.norm)
			if dist > levenshteinLimit(len(e.norm)) {
				continue
			}
			matches = append(matches, NodeMatch{ID: e.id, Name: e.name, Score: 0.72 - 0.08*float64(dist)})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// levenshteinLimit is the edit-distance budget for a candidate of the
// given length.
func levenshteinLimit(length int) int {
	switch {
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 3
	}
}

// normalizeName lowercases and collapses a node name to letters, digits,
// and single spaces.
func normalizeName(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	var b strings.Builder
	lastSpace := false
	for _, r := range raw {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastSpace = false
		case r == ' ' || r == '\t' || r == '-' || r == '_' || r == '\'':
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			lastSpace = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}
