package exiletree

import "strings"

// AffixKind tags an item affix line with its source.
type AffixKind uint8

const (
	AffixExplicit AffixKind = iota
	AffixImplicit
	AffixEnchant
)

// Affix is one modifier line of an item.
type Affix struct {
	Text string
	Kind AffixKind
}

// Item is one equipped item reconstructed from its block in the document.
type Item struct {
	ID      int
	Class   string // item class, e.g. "Body Armour"
	Base    string
	Rarity  string
	Name    string
	Affixes []Affix
}

// parseItems parses every <Item> block into a map keyed by document item
// id. Items belong to loadouts only through item-set slot references, never
// through position in the document.
func parseItems(raw []xmlItem) map[int]*Item {
	items := make(map[int]*Item, len(raw))
	for _, xi := range raw {
		if xi.ID == 0 {
			continue
		}
		items[xi.ID] = parseItemText(xi.ID, xi.Text)
	}
	return items
}

// parseItemText parses one item block. The leading lines carry "Key: value"
// headers (Item Class, Rarity, quality and the like), followed by the name
// line, the base-type line, then affix lines. Affix lines suffixed
// "(implicit)" or "(enchant)" are tagged accordingly; everything else is an
// explicit. Separator rows of dashes are skipped.
func parseItemText(id int, text string) *Item {
	item := &Item{ID: id}

	var body []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "---") {
			continue
		}
		if key, value, ok := headerLine(line); ok {
			switch key {
			case "Item Class":
				item.Class = value
			case "Rarity":
				item.Rarity = strings.ToUpper(value)
			}
			continue
		}
		body = append(body, line)
	}

	if len(body) > 0 {
		item.Name = body[0]
		body = body[1:]
	}
	if len(body) > 0 && looksLikeBase(body[0]) {
		item.Base = body[0]
		body = body[1:]
	}
	for _, line := range body {
		item.Affixes = append(item.Affixes, affixFrom(line))
	}
	return item
}

// headerLine splits a "Key: value" line. Lines whose value parses as a pure
// number ("Quality: 20") are also headers but carry nothing the tree core
// keeps.
func headerLine(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ": ")
	if idx <= 0 {
		return "", "", false
	}
	key = line[:idx]
	if strings.ContainsAny(key, "+-%") {
		// A modifier like "+25: something" is not a header.
		return "", "", false
	}
	return key, strings.TrimSpace(line[idx+2:]), true
}

// looksLikeBase reports whether a line reads as a base-type line rather
// than an affix: no numbers, no percent signs.
func looksLikeBase(line string) bool {
	if strings.ContainsAny(line, "%+") {
		return false
	}
	for _, r := range line {
		if r >= '0' && r <= '9' {
			return false
		}
	}
	return true
}

func affixFrom(line string) Affix {
	switch {
	case strings.HasSuffix(line, "(implicit)"):
		return Affix{Text: strings.TrimSpace(strings.TrimSuffix(line, "(implicit)")), Kind: AffixImplicit}
	case strings.HasSuffix(line, "(enchant)"):
		return Affix{Text: strings.TrimSpace(strings.TrimSuffix(line, "(enchant)")), Kind: AffixEnchant}
	default:
		return Affix{Text: line, Kind: AffixExplicit}
	}
}

// attachItems resolves a loadout's equipped items by cross-referencing its
// item set's slot records. Slots are walked in document order so the item
// list is deterministic.
func attachItems(l *BuildLoadout, sets []xmlItemSet, items map[int]*Item, i int) {
	set := itemSetFor(sets, l.Name, i)
	if set == nil {
		return
	}
	for _, slot := range set.Slots {
		if item, ok := items[slot.ItemID]; ok {
			l.Items = append(l.Items, item)
		}
	}
}

// itemSetFor picks the item set for a loadout: with a single set it applies
// to every loadout; otherwise a set whose title matches the loadout's wins,
// then the set at the same position. Same ladder as specFor, so a document
// whose item sets are ordered differently from its skill sets still
// attaches each set to the loadout it names.
func itemSetFor(sets []xmlItemSet, name string, i int) *xmlItemSet {
	if len(sets) == 1 {
		return &sets[0]
	}
	if name != "" {
		for j := range sets {
			if sets[j].Title == name {
				return &sets[j]
			}
		}
	}
	if i < len(sets) {
		return &sets[i]
	}
	return nil
}
