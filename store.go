package exiletree

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/mattn/go-sqlite3"
)

// SavedAllocation is the persistable slice of a loadout: the passive-tree
// allocation plus identity. Skill groups and items stay with the decoded
// build; only the tree state round-trips through storage.
type SavedAllocation struct {
	LoadoutID    string
	Name         string
	TreeVersion  string
	ClassID      int
	AscendancyID int

	Nodes          []int
	MasteryEffects map[int]int
	SocketFills    map[int]int
}

// FromLoadout extracts the persistable allocation of a loadout.
func FromLoadout(l *BuildLoadout) *SavedAllocation {
	a := &SavedAllocation{
		LoadoutID:      l.ID,
		Name:           l.Name,
		TreeVersion:    l.TreeVersion,
		ClassID:        l.ClassID,
		AscendancyID:   l.AscendancyID,
		Nodes:          append([]int(nil), l.Nodes...),
		MasteryEffects: make(map[int]int, len(l.MasteryEffects)),
		SocketFills:    make(map[int]int, len(l.SocketFills)),
	}
	for k, v := range l.MasteryEffects {
		a.MasteryEffects[k] = v
	}
	for k, v := range l.SocketFills {
		a.SocketFills[k] = v
	}
	return a
}

// LoadoutInfo is one row of the loadout listing: enough for a host
// dropdown without loading full allocations.
type LoadoutInfo struct {
	LoadoutID string
	Name      string
	HasTree   bool
}

// AllocationStore is the persistence collaborator: opaque save/load of the
// last-imported allocations plus loadout enumeration. The core never
// assumes anything about the backing encoding.
type AllocationStore interface {
	SaveAllocation(a *SavedAllocation) error
	LoadAllocation(loadoutID string) (*SavedAllocation, error)
	ListLoadouts() ([]LoadoutInfo, error)
}

// SQLiteAllocationStore is an AllocationStore backed by a SQLite file.
// Integer-keyed maps (mastery effects, socket fills) are stored as ordered
// key/value rows and rebuilt on load, since the row model is string/scalar
// only.
type SQLiteAllocationStore struct {
	db *sql.DB
}

// OpenAllocationStore opens (creating if needed) the store at path. The
// parent directory is created when absent.
func OpenAllocationStore(path string) (*SQLiteAllocationStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open allocation store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("verify allocation store: %w", err)
	}

	s := &SQLiteAllocationStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteAllocationStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close allocation store: %w", err)
	}
	return nil
}

func (s *SQLiteAllocationStore) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS allocations (
			loadout_id    TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			tree_version  TEXT NOT NULL,
			class_id      INTEGER NOT NULL,
			ascendancy_id INTEGER NOT NULL,
			has_tree      INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS allocation_nodes (
			loadout_id TEXT NOT NULL REFERENCES allocations(loadout_id) ON DELETE CASCADE,
			node_id    INTEGER NOT NULL,
			PRIMARY KEY (loadout_id, node_id)
		)`,
		`CREATE TABLE IF NOT EXISTS mastery_selections (
			loadout_id TEXT NOT NULL REFERENCES allocations(loadout_id) ON DELETE CASCADE,
			node_id    INTEGER NOT NULL,
			effect_id  INTEGER NOT NULL,
			PRIMARY KEY (loadout_id, node_id)
		)`,
		`CREATE TABLE IF NOT EXISTS socket_fills (
			loadout_id TEXT NOT NULL REFERENCES allocations(loadout_id) ON DELETE CASCADE,
			node_id    INTEGER NOT NULL,
			item_id    INTEGER NOT NULL,
			PRIMARY KEY (loadout_id, node_id)
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate allocation store: %w", err)
		}
	}
	return nil
}

// SaveAllocation stores an allocation, replacing any previous state for
// the same loadout id. The whole write is one transaction.
func (s *SQLiteAllocationStore) SaveAllocation(a *SavedAllocation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save allocation: %w", err)
	}
	defer tx.Rollback()

	hasTree := 0
	if a.TreeVersion != "" || len(a.Nodes) > 0 {
		hasTree = 1
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO allocations (loadout_id, name, tree_version, class_id, ascendancy_id, has_tree)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.LoadoutID, a.Name, a.TreeVersion, a.ClassID, a.AscendancyID, hasTree,
	); err != nil {
		return fmt.Errorf("save allocation: %w", err)
	}

	for _, table := range []string{"allocation_nodes", "mastery_selections", "socket_fills"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE loadout_id = ?", a.LoadoutID); err != nil {
			return fmt.Errorf("save allocation: %w", err)
		}
	}

	for _, id := range a.Nodes {
		if _, err := tx.Exec(
			"INSERT INTO allocation_nodes (loadout_id, node_id) VALUES (?, ?)",
			a.LoadoutID, id,
		); err != nil {
			return fmt.Errorf("save allocation nodes: %w", err)
		}
	}
	if err := insertPairs(tx, "mastery_selections", "effect_id", a.LoadoutID, a.MasteryEffects); err != nil {
		return err
	}
	if err := insertPairs(tx, "socket_fills", "item_id", a.LoadoutID, a.SocketFills); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save allocation: %w", err)
	}
	return nil
}

// insertPairs writes an integer-keyed map as key/value rows in ascending
// key order, so repeated saves produce identical row sequences.
func insertPairs(tx *sql.Tx, table, valueCol, loadoutID string, m map[int]int) error {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		if _, err := tx.Exec(
			"INSERT INTO "+table+" (loadout_id, node_id, "+valueCol+") VALUES (?, ?, ?)",
			loadoutID, k, m[k],
		); err != nil {
			return fmt.Errorf("save %s: %w", table, err)
		}
	}
	return nil
}

// LoadAllocation loads a saved allocation by loadout id. An unknown id
// yields a *LoadoutNotFoundError.
func (s *SQLiteAllocationStore) LoadAllocation(loadoutID string) (*SavedAllocation, error) {
	a := &SavedAllocation{
		LoadoutID:      loadoutID,
		MasteryEffects: map[int]int{},
		SocketFills:    map[int]int{},
	}
	var hasTree int
	err := s.db.QueryRow(
		"SELECT name, tree_version, class_id, ascendancy_id, has_tree FROM allocations WHERE loadout_id = ?",
		loadoutID,
	).Scan(&a.Name, &a.TreeVersion, &a.ClassID, &a.AscendancyID, &hasTree)
	if err == sql.ErrNoRows {
		return nil, &LoadoutNotFoundError{ID: loadoutID}
	}
	if err != nil {
		return nil, fmt.Errorf("load allocation: %w", err)
	}

	rows, err := s.db.Query(
		"SELECT node_id FROM allocation_nodes WHERE loadout_id = ? ORDER BY node_id",
		loadoutID,
	)
	if err != nil {
		return nil, fmt.Errorf("load allocation nodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("load allocation nodes: %w", err)
		}
		a.Nodes = append(a.Nodes, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load allocation nodes: %w", err)
	}

	if err := scanPairs(s.db, "mastery_selections", "effect_id", loadoutID, a.MasteryEffects); err != nil {
		return nil, err
	}
	if err := scanPairs(s.db, "socket_fills", "item_id", loadoutID, a.SocketFills); err != nil {
		return nil, err
	}
	return a, nil
}

func scanPairs(db *sql.DB, table, valueCol, loadoutID string, into map[int]int) error {
	rows, err := db.Query(
		"SELECT node_id, "+valueCol+" FROM "+table+" WHERE loadout_id = ? ORDER BY node_id",
		loadoutID,
	)
	if err != nil {
		return fmt.Errorf("load %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v int
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("load %s: %w", table, err)
		}
		into[k] = v
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load %s: %w", table, err)
	}
	return nil
}

// ListLoadouts enumerates the stored loadouts with their has-tree flags,
// ordered by name then id for a stable host dropdown.
func (s *SQLiteAllocationStore) ListLoadouts() ([]LoadoutInfo, error) {
	rows, err := s.db.Query(
		"SELECT loadout_id, name, has_tree FROM allocations ORDER BY name, loadout_id",
	)
	if err != nil {
		return nil, fmt.Errorf("list loadouts: %w", err)
	}
	defer rows.Close()

	var out []LoadoutInfo
	for rows.Next() {
		var info LoadoutInfo
		var hasTree int
		if err := rows.Scan(&info.LoadoutID, &info.Name, &hasTree); err != nil {
			return nil, fmt.Errorf("list loadouts: %w", err)
		}
		info.HasTree = hasTree != 0
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list loadouts: %w", err)
	}
	return out, nil
}
