package exiletree

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// userAgent identifies this client to paste hosts.
const userAgent = "exiletree/1.0 (+https://github.com/juddisjudd/exiletree)"

// ImportedBuild is the result of decoding one build code.
type ImportedBuild struct {
	Loadouts            []*BuildLoadout
	HasMultipleLoadouts bool
	// Notes is the author's free-text notes blob, preserved verbatim:
	// surrounding whitespace and inline color escapes are kept as
	// authored. See ParseNoteSpans.
	Notes string
}

// PasteFetcher resolves a hosted-paste URL to its raw encoded payload.
// Injected so the decoder is testable without a network.
type PasteFetcher interface {
	FetchPaste(ctx context.Context, rawURL string) (string, error)
}

// HTTPPasteFetcher fetches pastes over HTTP with a descriptive client
// identifier header.
type HTTPPasteFetcher struct {
	Client *http.Client
}

// FetchPaste implements PasteFetcher. A network error, non-success status,
// or empty body yields a *FetchError.
func (f *HTTPPasteFetcher) FetchPaste(ctx context.Context, rawURL string) (string, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &FetchError{URL: rawURL, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	payload := strings.TrimSpace(string(body))
	if payload == "" {
		return "", &FetchError{URL: rawURL, Status: resp.StatusCode, Err: fmt.Errorf("empty body")}
	}
	return payload, nil
}

// pasteHosts maps recognized paste hosts to their raw-payload path suffix.
var pasteHosts = map[string]string{
	"pobb.in": "/raw",
}

// RawPasteURL reports whether input is a hosted-paste link and, if so,
// returns the derived raw-payload endpoint. Unrecognized hosts are fetched
// as given: the host may serve the payload directly.
func RawPasteURL(input string) (string, bool) {
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return "", false
	}
	u, err := url.Parse(input)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	if suffix, ok := pasteHosts[host]; ok {
		u.Path = strings.TrimSuffix(u.Path, "/") + suffix
		return u.String(), true
	}
	return input, true
}

// DecodeBuildCode decodes a shareable build code into its loadouts. Input
// is either the raw encoded code or a hosted-paste link, which is resolved
// through fetcher first (a nil fetcher uses HTTPPasteFetcher defaults).
//
// Failures are returned as typed errors: *FetchError when paste resolution
// fails, *DecodeError when the payload is malformed. Decoding never
// panics past this boundary, and the same payload always decodes to
// structurally identical output.
func DecodeBuildCode(ctx context.Context, input string, fetcher PasteFetcher) (*ImportedBuild, error) {
	payload := strings.TrimSpace(input)

	if rawURL, ok := RawPasteURL(payload); ok {
		if fetcher == nil {
			fetcher = &HTTPPasteFetcher{}
		}
		fetched, err := fetcher.FetchPaste(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		payload = fetched
	}

	doc, err := decodePayload(payload)
	if err != nil {
		return nil, err
	}
	return parseBuildXML(doc)
}

// EncodeBuildCode is the inverse of the payload decode: deflate-compress
// the XML document and encode it as URL-safe base64. Used by tests and by
// hosts that re-share an imported build.
func EncodeBuildCode(doc []byte) string {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(doc)
	zw.Close()
	s := base64.StdEncoding.EncodeToString(buf.Bytes())
	s = strings.ReplaceAll(s, "+", "-")
	s = strings.ReplaceAll(s, "/", "_")
	return strings.TrimRight(s, "=")
}

// decodePayload reverses the build-code encoding: URL-safe base64 with
// missing padding restored, then a deflate stream, then UTF-8 XML bytes.
func decodePayload(code string) ([]byte, error) {
	s := strings.ReplaceAll(code, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	switch len(s) % 4 {
	case 1:
		// No valid base64 stream leaves a single trailing character.
		return nil, &DecodeError{Stage: "base64", Err: fmt.Errorf("truncated input (length %d)", len(s))}
	case 2:
		s += "=="
	case 3:
		s += "="
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &DecodeError{Stage: "base64", Err: err}
	}

	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Stage: "inflate", Err: err}
	}
	defer zr.Close()
	doc, err := io.ReadAll(zr)
	if err != nil {
		return nil, &DecodeError{Stage: "inflate", Err: err}
	}
	return doc, nil
}

// --- XML document structures ---

type xmlDoc struct {
	XMLName xml.Name
	Skills  xmlSkills `xml:"Skills"`
	Tree    xmlTree   `xml:"Tree"`
	Items   xmlItems  `xml:"Items"`
	Notes   string    `xml:"Notes"`
}

type xmlSkills struct {
	SkillSets []xmlSkillSet `xml:"SkillSet"`
	// Skills holds bare <Skill> elements for documents without skill sets.
	Skills []xmlSkill `xml:"Skill"`
}

type xmlSkillSet struct {
	ID     string     `xml:"id,attr"`
	Title  string     `xml:"title,attr"`
	Skills []xmlSkill `xml:"Skill"`
}

type xmlSkill struct {
	Label   string   `xml:"label,attr"`
	Enabled string   `xml:"enabled,attr"`
	Gems    []xmlGem `xml:"Gem"`
}

type xmlGem struct {
	Name    string `xml:"nameSpec,attr"`
	Level   int    `xml:"level,attr"`
	Quality int    `xml:"quality,attr"`
}

type xmlTree struct {
	ActiveSpec int       `xml:"activeSpec,attr"`
	Specs      []xmlSpec `xml:"Spec"`
}

type xmlSpec struct {
	Title          string      `xml:"title,attr"`
	ClassID        int         `xml:"classId,attr"`
	AscendClassID  int         `xml:"ascendClassId,attr"`
	TreeVersion    string      `xml:"treeVersion,attr"`
	Nodes          string      `xml:"nodes,attr"`
	MasteryEffects string      `xml:"masteryEffects,attr"`
	Sockets        []xmlSocket `xml:"Sockets>Socket"`
}

type xmlSocket struct {
	NodeID int `xml:"nodeId,attr"`
	ItemID int `xml:"itemId,attr"`
}

type xmlItems struct {
	Items    []xmlItem    `xml:"Item"`
	ItemSets []xmlItemSet `xml:"ItemSet"`
}

type xmlItem struct {
	ID   int    `xml:"id,attr"`
	Text string `xml:",chardata"`
}

type xmlItemSet struct {
	ID    int       `xml:"id,attr"`
	Title string    `xml:"title,attr"`
	Slots []xmlSlot `xml:"Slot"`
}

type xmlSlot struct {
	Name   string `xml:"name,attr"`
	ItemID int    `xml:"itemId,attr"`
}

// --- Document assembly ---

// parseBuildXML extracts loadouts from a decoded document. Each of the
// three section kinds (skill sets, tree specs, item sets) is parsed
// independently and tolerates absence of the others. Loadout identity comes
// from named skill-set sections; tree specs and item sets attach to
// loadouts by matching title first, then by position.
func parseBuildXML(doc []byte) (*ImportedBuild, error) {
	var d xmlDoc
	if err := xml.Unmarshal(doc, &d); err != nil {
		return nil, &DecodeError{Stage: "xml", Err: err}
	}

	skillSets := d.Skills.SkillSets
	if len(skillSets) == 0 && len(d.Skills.Skills) > 0 {
		skillSets = []xmlSkillSet{{Skills: d.Skills.Skills}}
	}

	count := len(skillSets)
	if len(d.Tree.Specs) > count {
		count = len(d.Tree.Specs)
	}
	if count == 0 {
		count = 1
	}

	items := parseItems(d.Items.Items)

	loadouts := make([]*BuildLoadout, 0, count)
	for i := 0; i < count; i++ {
		l := &BuildLoadout{
			MasteryEffects: map[int]int{},
			SocketFills:    map[int]int{},
		}

		var set *xmlSkillSet
		if i < len(skillSets) {
			set = &skillSets[i]
			l.Name = set.Title
			l.SkillGroups = parseSkillGroups(set.Skills)
		}

		if spec := specFor(d.Tree.Specs, set, i); spec != nil {
			applySpec(l, spec)
		}
		if l.Name == "" {
			l.Name = defaultLoadoutName(i, count)
		}
		l.ID = loadoutID(i, l.Name)

		attachItems(l, d.Items.ItemSets, items, i)
		loadouts = append(loadouts, l)
	}

	return &ImportedBuild{
		Loadouts:            loadouts,
		HasMultipleLoadouts: len(loadouts) > 1,
		Notes:               d.Notes,
	}, nil
}

// specFor picks the tree spec for loadout index i: a spec whose title
// matches the skill set's wins, otherwise the spec at the same position.
// Title matching is the reliable path; positional pairing is best-effort
// and may misassign under unusual document structures.
func specFor(specs []xmlSpec, set *xmlSkillSet, i int) *xmlSpec {
	if set != nil && set.Title != "" {
		for j := range specs {
			if specs[j].Title == set.Title {
				return &specs[j]
			}
		}
	}
	if i < len(specs) {
		return &specs[i]
	}
	return nil
}

// applySpec copies a tree spec's allocation onto a loadout.
func applySpec(l *BuildLoadout, spec *xmlSpec) {
	l.ClassID = spec.ClassID
	l.AscendancyID = spec.AscendClassID
	l.TreeVersion = spec.TreeVersion
	l.HasTree = spec.TreeVersion != "" || spec.Nodes != ""
	l.Nodes = normalizeNodes(parseIntList(spec.Nodes))
	for node, effect := range parseMasteryEffects(spec.MasteryEffects) {
		l.MasteryEffects[node] = effect
	}
	for _, s := range spec.Sockets {
		if s.NodeID != 0 && s.ItemID != 0 {
			l.SocketFills[s.NodeID] = s.ItemID
		}
	}
	if l.Name == "" {
		l.Name = spec.Title
	}
}

// parseSkillGroups turns <Skill> elements into SkillGroups: the first gem
// of a group is the main skill, the rest are supports. Document order is
// preserved.
func parseSkillGroups(skills []xmlSkill) []SkillGroup {
	groups := make([]SkillGroup, 0, len(skills))
	for _, s := range skills {
		if len(s.Gems) == 0 {
			continue
		}
		g := SkillGroup{
			Label:   s.Label,
			Enabled: s.Enabled != "false",
			Main:    gemFrom(s.Gems[0]),
		}
		for _, xg := range s.Gems[1:] {
			g.Supports = append(g.Supports, gemFrom(xg))
		}
		groups = append(groups, g)
	}
	return groups
}

func gemFrom(g xmlGem) Gem {
	return Gem{Name: g.Name, Level: g.Level, Quality: g.Quality}
}

// loadoutID derives a stable loadout id from position and name, as a
// name-based UUID. Decoding the same payload twice must yield identical
// ids, so random ids are out.
func loadoutID(i int, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "loadout/%d/%s", i, name)).String()
}

func defaultLoadoutName(i, count int) string {
	if count == 1 {
		return "Default"
	}
	return fmt.Sprintf("Loadout %d", i+1)
}

// parseIntList parses a comma-separated id list, skipping blanks and
// non-numeric entries.
func parseIntList(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			debugf("allocation list: skipping %q", p)
			continue
		}
		out = append(out, n)
	}
	return out
}

// parseMasteryEffects parses the "{nodeId,effectId},{...}" attribute form.
func parseMasteryEffects(s string) map[int]int {
	out := map[int]int{}
	for _, pair := range strings.Split(s, "},") {
		pair = strings.Trim(pair, "{} \t")
		if pair == "" {
			continue
		}
		fields := strings.SplitN(pair, ",", 2)
		if len(fields) != 2 {
			continue
		}
		node, err1 := strconv.Atoi(strings.TrimSpace(fields[0]))
		effect, err2 := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err1 != nil || err2 != nil {
			debugf("mastery effects: skipping %q", pair)
			continue
		}
		out[node] = effect
	}
	return out
}
