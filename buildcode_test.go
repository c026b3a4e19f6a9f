package exiletree

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// stubFetcher returns a canned payload or error for any URL.
type stubFetcher struct {
	payload string
	err     error
	calls   []string
}

func (f *stubFetcher) FetchPaste(_ context.Context, rawURL string) (string, error) {
	f.calls = append(f.calls, rawURL)
	if f.err != nil {
		return "", f.err
	}
	return f.payload, nil
}

const multiLoadoutDoc = `<Build>
	<Skills>
		<SkillSet id="1" title="Mapper">
			<Skill label="Main"><Gem nameSpec="Spark" level="20" quality="20"/><Gem nameSpec="Pierce" level="20"/></Skill>
			<Skill><Gem nameSpec="Flame Wall" level="18"/></Skill>
		</SkillSet>
		<SkillSet id="2" title="Bosser">
			<Skill><Gem nameSpec="Comet" level="20"/></Skill>
		</SkillSet>
		<SkillSet id="3" title="Leveling">
			<Skill><Gem nameSpec="Rolling Magma" level="4"/></Skill>
		</SkillSet>
	</Skills>
	<Tree activeSpec="1">
		<Spec title="Mapper" classId="2" ascendClassId="1" treeVersion="0_3" nodes="300,100,200" masteryEffects="{400,7},{500,9}">
			<Sockets><Socket nodeId="600" itemId="4"/></Sockets>
		</Spec>
		<Spec title="Bosser" classId="2" ascendClassId="1" treeVersion="0_3" nodes="100,200,700"/>
		<Spec title="Leveling" classId="2" ascendClassId="0" treeVersion="0_3" nodes="100"/>
	</Tree>
	<Items>
		<Item id="1">Item Class: Body Armour
Rarity: Rare
Corpse Shell
Vile Robe
+50 to maximum Life
12% increased Spell Damage (implicit)
30% increased Area of Effect (enchant)</Item>
		<Item id="2">Rarity: Unique
Wanderlust
Shabby Boots
10% increased Movement Speed</Item>
		<ItemSet id="1" title="Mapper"><Slot name="Body Armour" itemId="1"/><Slot name="Boots" itemId="2"/></ItemSet>
		<ItemSet id="2" title="Bosser"><Slot name="Body Armour" itemId="1"/></ItemSet>
		<ItemSet id="3" title="Leveling"></ItemSet>
	</Items>
	<Notes>^xFF7700Watch the mana.^7 Good luck!</Notes>
</Build>`

func TestDecodeBuildCode_MultiLoadout(t *testing.T) {
	code := EncodeBuildCode([]byte(multiLoadoutDoc))
	build, err := DecodeBuildCode(context.Background(), code, nil)
	if err != nil {
		t.Fatalf("DecodeBuildCode: %v", err)
	}

	if !build.HasMultipleLoadouts {
		t.Error("HasMultipleLoadouts = false, want true")
	}
	if len(build.Loadouts) != 3 {
		t.Fatalf("loadout count = %d, want 3", len(build.Loadouts))
	}

	mapper := build.Loadouts[0]
	if mapper.Name != "Mapper" {
		t.Errorf("loadout 0 name = %q, want Mapper", mapper.Name)
	}
	// Node list is normalized ascending.
	if !reflect.DeepEqual(mapper.Nodes, []int{100, 200, 300}) {
		t.Errorf("mapper nodes = %v, want [100 200 300]", mapper.Nodes)
	}
	if mapper.MasteryEffects[400] != 7 || mapper.MasteryEffects[500] != 9 {
		t.Errorf("mastery effects = %v", mapper.MasteryEffects)
	}
	if mapper.SocketFills[600] != 4 {
		t.Errorf("socket fills = %v", mapper.SocketFills)
	}
	if len(mapper.SkillGroups) != 2 {
		t.Fatalf("mapper skill groups = %d, want 2", len(mapper.SkillGroups))
	}
	if mapper.SkillGroups[0].Main.Name != "Spark" {
		t.Errorf("main gem = %q, want Spark", mapper.SkillGroups[0].Main.Name)
	}
	if len(mapper.SkillGroups[0].Supports) != 1 || mapper.SkillGroups[0].Supports[0].Name != "Pierce" {
		t.Errorf("supports = %v", mapper.SkillGroups[0].Supports)
	}

	// Sibling loadouts carry independent allocation sets even where they
	// share node ids.
	bosser := build.Loadouts[1]
	if !reflect.DeepEqual(bosser.Nodes, []int{100, 200, 700}) {
		t.Errorf("bosser nodes = %v, want [100 200 700]", bosser.Nodes)
	}
	bosser.MasteryEffects[999] = 1
	if _, leaked := mapper.MasteryEffects[999]; leaked {
		t.Error("loadouts share a mastery map")
	}
}

func TestDecodeBuildCode_ItemAssociation(t *testing.T) {
	code := EncodeBuildCode([]byte(multiLoadoutDoc))
	build, err := DecodeBuildCode(context.Background(), code, nil)
	if err != nil {
		t.Fatalf("DecodeBuildCode: %v", err)
	}

	// Items attach through item-set slot records, not document order.
	mapper := build.Loadouts[0]
	if len(mapper.Items) != 2 {
		t.Fatalf("mapper items = %d, want 2", len(mapper.Items))
	}
	bosser := build.Loadouts[1]
	if len(bosser.Items) != 1 || bosser.Items[0].ID != 1 {
		t.Fatalf("bosser items = %v, want just item 1", bosser.Items)
	}
	leveling := build.Loadouts[2]
	if len(leveling.Items) != 0 {
		t.Errorf("leveling items = %d, want 0", len(leveling.Items))
	}

	armour := mapper.Items[0]
	if armour.Class != "Body Armour" || armour.Rarity != "RARE" {
		t.Errorf("item header = class %q rarity %q", armour.Class, armour.Rarity)
	}
	if armour.Name != "Corpse Shell" || armour.Base != "Vile Robe" {
		t.Errorf("item identity = name %q base %q", armour.Name, armour.Base)
	}
	wantAffixes := []Affix{
		{Text: "+50 to maximum Life", Kind: AffixExplicit},
		{Text: "12% increased Spell Damage", Kind: AffixImplicit},
		{Text: "30% increased Area of Effect", Kind: AffixEnchant},
	}
	if !reflect.DeepEqual(armour.Affixes, wantAffixes) {
		t.Errorf("affixes = %v, want %v", armour.Affixes, wantAffixes)
	}
}

func TestDecodeBuildCode_ItemSetTitleMatch(t *testing.T) {
	// Item sets appear in the opposite order to the specs they belong to.
	// Association goes by title, not by position.
	const doc = `<Build>
	<Tree activeSpec="1">
		<Spec title="Mapper" classId="2" treeVersion="0_3" nodes="100"/>
		<Spec title="Bosser" classId="2" treeVersion="0_3" nodes="200"/>
	</Tree>
	<Items>
		<Item id="1">Rarity: Unique
Wanderlust
Shabby Boots</Item>
		<Item id="2">Rarity: Unique
Doomfletch
Royal Bow</Item>
		<ItemSet id="1" title="Bosser"><Slot name="Weapon" itemId="2"/></ItemSet>
		<ItemSet id="2" title="Mapper"><Slot name="Boots" itemId="1"/></ItemSet>
	</Items>
</Build>`
	build, err := DecodeBuildCode(context.Background(), EncodeBuildCode([]byte(doc)), nil)
	if err != nil {
		t.Fatalf("DecodeBuildCode: %v", err)
	}
	mapper, bosser := build.Loadouts[0], build.Loadouts[1]
	if len(mapper.Items) != 1 || mapper.Items[0].Name != "Wanderlust" {
		t.Errorf("mapper items = %v, want just Wanderlust", mapper.Items)
	}
	if len(bosser.Items) != 1 || bosser.Items[0].Name != "Doomfletch" {
		t.Errorf("bosser items = %v, want just Doomfletch", bosser.Items)
	}
}

func TestItemSetFor(t *testing.T) {
	sets := []xmlItemSet{
		{ID: 1, Title: "Bosser"},
		{ID: 2, Title: "Mapper"},
	}
	if got := itemSetFor(sets, "Mapper", 0); got == nil || got.ID != 2 {
		t.Errorf("title match = %v, want set 2", got)
	}
	// An unmatched title falls back to document position.
	if got := itemSetFor(sets, "Leveling", 1); got == nil || got.ID != 2 {
		t.Errorf("positional fallback = %v, want set 2", got)
	}
	if got := itemSetFor(sets, "Leveling", 5); got != nil {
		t.Errorf("out of range = %v, want nil", got)
	}
	// A lone set serves every loadout regardless of title.
	one := sets[:1]
	if got := itemSetFor(one, "Mapper", 3); got == nil || got.ID != 1 {
		t.Errorf("single set = %v, want set 1", got)
	}
}

func TestDecodeBuildCode_Deterministic(t *testing.T) {
	code := EncodeBuildCode([]byte(multiLoadoutDoc))
	a, err := DecodeBuildCode(context.Background(), code, nil)
	if err != nil {
		t.Fatalf("first decode: %v", err)
	}
	b, err := DecodeBuildCode(context.Background(), code, nil)
	if err != nil {
		t.Fatalf("second decode: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("decoding the same payload twice produced different output")
	}
}

func TestDecodeBuildCode_NotesPreserved(t *testing.T) {
	code := EncodeBuildCode([]byte(multiLoadoutDoc))
	build, err := DecodeBuildCode(context.Background(), code, nil)
	if err != nil {
		t.Fatalf("DecodeBuildCode: %v", err)
	}
	// Escapes stay untouched; translation is ParseNoteSpans' job.
	if build.Notes != "^xFF7700Watch the mana.^7 Good luck!" {
		t.Errorf("notes = %q", build.Notes)
	}
}

func TestDecodeBuildCode_NotesWhitespaceVerbatim(t *testing.T) {
	const doc = "<Build><Notes>\n  ^2kill act bosses twice  \n</Notes></Build>"
	build, err := DecodeBuildCode(context.Background(), EncodeBuildCode([]byte(doc)), nil)
	if err != nil {
		t.Fatalf("DecodeBuildCode: %v", err)
	}
	// Authors pad notes deliberately; decoding keeps every byte.
	if want := "\n  ^2kill act bosses twice  \n"; build.Notes != want {
		t.Errorf("notes = %q, want %q", build.Notes, want)
	}
}

func TestDecodeBuildCode_EmptyImport(t *testing.T) {
	code := EncodeBuildCode([]byte(`<Build><Skills></Skills></Build>`))
	build, err := DecodeBuildCode(context.Background(), code, nil)
	if err != nil {
		t.Fatalf("DecodeBuildCode: %v", err)
	}
	if build.HasMultipleLoadouts {
		t.Error("HasMultipleLoadouts = true, want false")
	}
	if len(build.Loadouts) != 1 {
		t.Fatalf("loadout count = %d, want 1", len(build.Loadouts))
	}
	l := build.Loadouts[0]
	if len(l.SkillGroups) != 0 {
		t.Errorf("skill groups = %d, want 0", len(l.SkillGroups))
	}
	if l.HasTree {
		t.Error("HasTree = true for a document without tree data")
	}
	if l.Name != "Default" {
		t.Errorf("name = %q, want Default", l.Name)
	}
}

func TestDecodeBuildCode_FlatSkillsImplicitLoadout(t *testing.T) {
	doc := `<Build><Skills><Skill><Gem nameSpec="Spark"/></Skill></Skills></Build>`
	build, err := DecodeBuildCode(context.Background(), EncodeBuildCode([]byte(doc)), nil)
	if err != nil {
		t.Fatalf("DecodeBuildCode: %v", err)
	}
	if len(build.Loadouts) != 1 || build.HasMultipleLoadouts {
		t.Fatalf("want exactly one implicit loadout, got %d", len(build.Loadouts))
	}
	if len(build.Loadouts[0].SkillGroups) != 1 {
		t.Errorf("skill groups = %d, want 1", len(build.Loadouts[0].SkillGroups))
	}
}

func TestDecodePayload_Padding(t *testing.T) {
	doc := []byte(`<Build><Skills></Skills></Build>`)
	full := EncodeBuildCode(doc) // padding already stripped

	// Whatever the remainder mod 4, decoding succeeds after repadding,
	// except a remainder of 1 which no valid base64 stream produces.
	if _, err := decodePayload(full); err != nil {
		t.Errorf("decode unpadded: %v", err)
	}

	// A remainder of 1 never falls out of valid base64.
	var dErr *DecodeError
	if _, err := decodePayload("AAAAA"); err == nil || !errors.As(err, &dErr) {
		t.Errorf("remainder-1 input: err = %v, want DecodeError", err)
	} else if dErr.Stage != "base64" {
		t.Errorf("remainder-1 stage = %q, want base64", dErr.Stage)
	}
}

func TestDecodeBuildCode_MalformedInputs(t *testing.T) {
	valid := EncodeBuildCode([]byte(`<Build/>`))
	tests := []struct {
		name  string
		input string
		stage string
	}{
		{"non-base64 characters", "!!!not base64!!!", "base64"},
		{"corrupt deflate stream", "AAAAAAAAAAAA", "inflate"},
		{"truncated stream", valid[:len(valid)/4*4-4], "inflate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBuildCode(context.Background(), tt.input, nil)
			var dErr *DecodeError
			if !errors.As(err, &dErr) {
				t.Fatalf("err = %v, want DecodeError", err)
			}
			if dErr.Stage != tt.stage {
				t.Errorf("stage = %q, want %q", dErr.Stage, tt.stage)
			}
		})
	}
}

func TestDecodeBuildCode_InvalidXML(t *testing.T) {
	code := EncodeBuildCode([]byte(`<Build><unclosed`))
	_, err := DecodeBuildCode(context.Background(), code, nil)
	var dErr *DecodeError
	if !errors.As(err, &dErr) {
		t.Fatalf("err = %v, want DecodeError", err)
	}
	if dErr.Stage != "xml" {
		t.Errorf("stage = %q, want xml", dErr.Stage)
	}
}

func TestDecodeBuildCode_PasteURL(t *testing.T) {
	fetcher := &stubFetcher{payload: EncodeBuildCode([]byte(`<Build/>`))}
	_, err := DecodeBuildCode(context.Background(), "https://pobb.in/abC123", fetcher)
	if err != nil {
		t.Fatalf("DecodeBuildCode: %v", err)
	}
	if len(fetcher.calls) != 1 || fetcher.calls[0] != "https://pobb.in/abC123/raw" {
		t.Errorf("fetched %v, want the derived /raw endpoint", fetcher.calls)
	}
}

func TestDecodeBuildCode_FetchFailure(t *testing.T) {
	fetcher := &stubFetcher{err: &FetchError{URL: "https://pobb.in/x/raw", Status: 404}}
	_, err := DecodeBuildCode(context.Background(), "https://pobb.in/x", fetcher)
	var fErr *FetchError
	if !errors.As(err, &fErr) {
		t.Fatalf("err = %v, want FetchError", err)
	}
}

func TestRawPasteURL(t *testing.T) {
	tests := []struct {
		input   string
		wantURL string
		wantOK  bool
	}{
		{"https://pobb.in/abc", "https://pobb.in/abc/raw", true},
		{"https://www.pobb.in/abc/", "https://www.pobb.in/abc/raw", true},
		{"https://example.com/paste/1", "https://example.com/paste/1", true},
		{"eJxLzs8rzk9PLVIoyUgtSgUAKqsFpw", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := RawPasteURL(tt.input)
		if ok != tt.wantOK || (ok && got != tt.wantURL) {
			t.Errorf("RawPasteURL(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.wantURL, tt.wantOK)
		}
	}
}

func TestParseMasteryEffects(t *testing.T) {
	got := parseMasteryEffects("{100,2},{200,5},{garbage},{,}")
	want := map[int]int{100: 2, 200: 5}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseMasteryEffects = %v, want %v", got, want)
	}
}

func TestParseIntList(t *testing.T) {
	got := parseIntList("1, 2,,three,4")
	if !reflect.DeepEqual(got, []int{1, 2, 4}) {
		t.Errorf("parseIntList = %v, want [1 2 4]", got)
	}
	if parseIntList("") != nil {
		t.Error("parseIntList(\"\") != nil")
	}
}

func TestSpecForPrefersTitleMatch(t *testing.T) {
	specs := []xmlSpec{
		{Title: "B", Nodes: "2"},
		{Title: "A", Nodes: "1"},
	}
	set := &xmlSkillSet{Title: "A"}
	got := specFor(specs, set, 0)
	if got == nil || got.Title != "A" {
		t.Fatalf("specFor picked %+v, want title A", got)
	}

	// Without a title match, position pairs them.
	set = &xmlSkillSet{Title: "C"}
	got = specFor(specs, set, 1)
	if got == nil || got.Title != "A" {
		t.Fatalf("positional specFor picked %+v, want index 1", got)
	}
}

func TestEncodeBuildCode_URLSafe(t *testing.T) {
	// Force bytes whose base64 needs +/ substitutions.
	doc := []byte(strings.Repeat("\xfb\xff\xfe pressure", 64))
	code := EncodeBuildCode(doc)
	if strings.ContainsAny(code, "+/=") {
		t.Errorf("encoded code is not URL-safe: %q", code)
	}
	raw, err := decodePayload(code)
	if err != nil {
		t.Fatalf("decodePayload: %v", err)
	}
	if string(raw) != string(doc) {
		t.Error("round-trip mismatch")
	}
}

func TestLoadoutIDStability(t *testing.T) {
	if loadoutID(0, "Mapper") != loadoutID(0, "Mapper") {
		t.Error("loadout id is not stable")
	}
	if loadoutID(0, "Mapper") == loadoutID(1, "Mapper") {
		t.Error("loadout id ignores position")
	}
}

func ExampleParseNoteSpans() {
	spans := ParseNoteSpans("^2kill boss^7 then leave")
	for _, s := range spans {
		fmt.Printf("%s %q\n", s.Color, s.Text)
	}
	// Output:
	// 00ff00 "kill boss"
	// ffffff " then leave"
}
