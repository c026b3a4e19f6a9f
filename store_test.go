package exiletree

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func openTestStore(t *testing.T) *SQLiteAllocationStore {
	t.Helper()
	s, err := OpenAllocationStore(filepath.Join(t.TempDir(), "allocations.db"))
	if err != nil {
		t.Fatalf("OpenAllocationStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)

	saved := &SavedAllocation{
		LoadoutID:      "loadout-a",
		Name:           "Mapper",
		TreeVersion:    "0_3",
		ClassID:        2,
		AscendancyID:   1,
		Nodes:          []int{100, 200, 300},
		MasteryEffects: map[int]int{400: 7, 500: 9},
		SocketFills:    map[int]int{600: 4},
	}
	if err := s.SaveAllocation(saved); err != nil {
		t.Fatalf("SaveAllocation: %v", err)
	}

	got, err := s.LoadAllocation("loadout-a")
	if err != nil {
		t.Fatalf("LoadAllocation: %v", err)
	}
	if !reflect.DeepEqual(got, saved) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, saved)
	}
}

func TestStoreSaveReplaces(t *testing.T) {
	s := openTestStore(t)

	first := &SavedAllocation{
		LoadoutID:      "loadout-a",
		Name:           "Before",
		TreeVersion:    "0_3",
		Nodes:          []int{1, 2, 3},
		MasteryEffects: map[int]int{10: 1},
		SocketFills:    map[int]int{},
	}
	if err := s.SaveAllocation(first); err != nil {
		t.Fatal(err)
	}

	second := &SavedAllocation{
		LoadoutID:      "loadout-a",
		Name:           "After",
		TreeVersion:    "0_3",
		Nodes:          []int{5},
		MasteryEffects: map[int]int{},
		SocketFills:    map[int]int{7: 2},
	}
	if err := s.SaveAllocation(second); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadAllocation("loadout-a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "After" || !reflect.DeepEqual(got.Nodes, []int{5}) {
		t.Errorf("stale state survived the replace: %+v", got)
	}
	if len(got.MasteryEffects) != 0 {
		t.Errorf("old mastery rows survived: %v", got.MasteryEffects)
	}
	if got.SocketFills[7] != 2 {
		t.Errorf("socket fills = %v", got.SocketFills)
	}
}

func TestStoreLoadUnknown(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LoadAllocation("missing")
	var nf *LoadoutNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want LoadoutNotFoundError", err)
	}
	if nf.ID != "missing" {
		t.Errorf("error id = %q", nf.ID)
	}
}

func TestStoreListLoadouts(t *testing.T) {
	s := openTestStore(t)

	for _, a := range []*SavedAllocation{
		{LoadoutID: "b", Name: "Zeta", TreeVersion: "0_3", Nodes: []int{1}},
		{LoadoutID: "a", Name: "Alpha"},
		{LoadoutID: "c", Name: "Alpha", TreeVersion: "0_3"},
	} {
		if err := s.SaveAllocation(a); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListLoadouts()
	if err != nil {
		t.Fatalf("ListLoadouts: %v", err)
	}
	want := []LoadoutInfo{
		{LoadoutID: "a", Name: "Alpha", HasTree: false},
		{LoadoutID: "c", Name: "Alpha", HasTree: true},
		{LoadoutID: "b", Name: "Zeta", HasTree: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListLoadouts = %v, want %v", got, want)
	}
}

func TestStoreEmptyList(t *testing.T) {
	s := openTestStore(t)
	got, err := s.ListLoadouts()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("fresh store listed %v", got)
	}
}

func TestFromLoadout(t *testing.T) {
	l := &BuildLoadout{
		ID:             "x",
		Name:           "Bosser",
		TreeVersion:    "0_3",
		ClassID:        2,
		AscendancyID:   1,
		Nodes:          []int{10, 20},
		MasteryEffects: map[int]int{30: 1},
		SocketFills:    map[int]int{40: 2},
	}
	a := FromLoadout(l)

	if a.LoadoutID != "x" || a.Name != "Bosser" || a.TreeVersion != "0_3" {
		t.Errorf("identity fields: %+v", a)
	}
	// The extract is a deep copy; mutating it must not touch the loadout.
	a.Nodes[0] = 999
	a.MasteryEffects[30] = 999
	a.SocketFills[40] = 999
	if l.Nodes[0] != 10 || l.MasteryEffects[30] != 1 || l.SocketFills[40] != 2 {
		t.Error("FromLoadout shares state with the loadout")
	}
}
