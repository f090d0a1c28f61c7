// Package store implements the local indexed object store (spec.md §4.4):
// an objects table, a secondary multi-value index table, and a small kv
// table, all over a single embedded SQL engine.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"turtlcore/internal/turtlerr"
)

var pkgLogger = log.New()

// SetLogger overrides the package-level logger.
func SetLogger(l *log.Logger) { pkgLogger = l }

// IndexDef declares one secondary index: a name and the ordered list of
// object fields whose values (joined with "|") populate its `vals` column.
// A field whose JSON value is an array contributes every element,
// producing the Cartesian product across multi-valued fields, per
// spec.md §4.4 ("multi-valued fields produce the Cartesian product across
// components").
type IndexDef struct {
	Name   string
	Fields []string
}

// Schema maps a table name to the indexes declared over it.
type Schema map[string][]IndexDef

// Store is the local SQLite-backed object store.
type Store struct {
	db     *sql.DB
	schema Schema
	mu     sync.Mutex
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures the objects/indexes/kv tables exist.
func Open(path string, schema Schema) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, turtlerr.IO("store.Open: creating data dir: %v", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, turtlerr.IO("store.Open: %v", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, schema: schema}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS objects (
		id TEXT NOT NULL,
		tbl TEXT NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (tbl, id)
	);
	CREATE TABLE IF NOT EXISTS indexes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tbl TEXT NOT NULL,
		index_name TEXT NOT NULL,
		vals TEXT NOT NULL,
		object_id TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_indexes_lookup ON indexes(tbl, index_name, vals);
	CREATE INDEX IF NOT EXISTS idx_indexes_object ON indexes(tbl, object_id);
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB
	);
	`
	if _, err := s.db.Exec(ddl); err != nil {
		return turtlerr.IO("store.initSchema: %v", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Save upserts an object's row and rebuilds its index rows in one
// transaction, per spec.md §4.4's save() operation. data must be the
// object's full public-projection-plus-body JSON encoding.
func (s *Store) Save(ctx context.Context, table, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return turtlerr.IO("store.Save: begin: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO objects (id, tbl, data) VALUES (?, ?, ?)
		 ON CONFLICT(tbl, id) DO UPDATE SET data = excluded.data`,
		id, table, data); err != nil {
		return turtlerr.IO("store.Save: upsert object: %v", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM indexes WHERE tbl = ? AND object_id = ?`, table, id); err != nil {
		return turtlerr.IO("store.Save: clear indexes: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return turtlerr.Wrap(err, "store.Save: decoding object for indexing")
	}

	for _, def := range s.schema[table] {
		combos, err := indexCombinations(def, fields)
		if err != nil {
			return turtlerr.Wrap(err, "store.Save: computing index "+def.Name)
		}
		for _, vals := range combos {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO indexes (tbl, index_name, vals, object_id) VALUES (?, ?, ?, ?)`,
				table, def.Name, vals, id); err != nil {
				return turtlerr.IO("store.Save: insert index row: %v", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return turtlerr.IO("store.Save: commit: %v", err)
	}
	return nil
}

// Delete removes an object's row and its index rows, symmetric with Save.
func (s *Store) Delete(ctx context.Context, table, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return turtlerr.IO("store.Delete: begin: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE tbl = ? AND id = ?`, table, id); err != nil {
		return turtlerr.IO("store.Delete: %v", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM indexes WHERE tbl = ? AND object_id = ?`, table, id); err != nil {
		return turtlerr.IO("store.Delete: %v", err)
	}
	return tx.Commit()
}

// Get loads a single object's raw data by id, or (nil, false) if absent.
func (s *Store) Get(ctx context.Context, table, id string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM objects WHERE tbl = ? AND id = ?`, table, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, turtlerr.IO("store.Get: %v", err)
	}
	return data, true, nil
}

// Find implements spec.md §4.4's find(): objects whose index row's vals
// begins with the `|`-joined prefixVals, id-sorted.
func (s *Store) Find(ctx context.Context, table, indexName string, prefixVals ...string) ([][]byte, error) {
	prefix := strings.Join(prefixVals, "|")
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT object_id FROM indexes WHERE tbl = ? AND index_name = ? AND vals LIKE ? ORDER BY object_id`,
		table, indexName, prefix+"%")
	if err != nil {
		return nil, turtlerr.IO("store.Find: %v", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, turtlerr.IO("store.Find: scan: %v", err)
		}
		ids = append(ids, id)
	}
	return s.loadAll(ctx, table, ids)
}

// All implements spec.md §4.4's all(): a full id-sorted table scan.
func (s *Store) All(ctx context.Context, table string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM objects WHERE tbl = ? ORDER BY id`, table)
	if err != nil {
		return nil, turtlerr.IO("store.All: %v", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, turtlerr.IO("store.All: scan: %v", err)
		}
		out = append(out, data)
	}
	return out, nil
}

func (s *Store) loadAll(ctx context.Context, table string, ids []string) ([][]byte, error) {
	out := make([][]byte, 0, len(ids))
	for _, id := range ids {
		data, ok, err := s.Get(ctx, table, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, data)
		}
	}
	return out, nil
}

// KVGet reads an opaque value from the kv table (sync cursor, client id,
// ignore list).
func (s *Store) KVGet(ctx context.Context, key string) ([]byte, bool, error) {
	var val []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&val)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, turtlerr.IO("store.KVGet: %v", err)
	}
	return val, true, nil
}

// KVSet writes an opaque value to the kv table.
func (s *Store) KVSet(ctx context.Context, key string, val []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, val)
	if err != nil {
		return turtlerr.IO("store.KVSet: %v", err)
	}
	return nil
}

// KVDelete removes a kv entry.
func (s *Store) KVDelete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return turtlerr.IO("store.KVDelete: %v", err)
	}
	return nil
}

// indexCombinations computes the Cartesian product of an index's field
// values, each joined with "|", per spec.md §4.4.
func indexCombinations(def IndexDef, fields map[string]json.RawMessage) ([]string, error) {
	perField := make([][]string, len(def.Fields))
	for i, name := range def.Fields {
		vals, err := fieldValues(fields[name])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		perField[i] = vals
	}
	combos := [][]string{{}}
	for _, vals := range perField {
		if len(vals) == 0 {
			vals = []string{""}
		}
		var next [][]string
		for _, combo := range combos {
			for _, v := range vals {
				next = append(next, append(append([]string{}, combo...), v))
			}
		}
		combos = next
	}
	out := make([]string, len(combos))
	for i, combo := range combos {
		out[i] = strings.Join(combo, "|")
	}
	sort.Strings(out)
	return out, nil
}

// fieldValues extracts the string value(s) a field contributes to an index:
// a scalar produces one value, a JSON array produces one per element.
func fieldValues(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		vals := make([]string, 0, len(arr))
		for _, el := range arr {
			v, err := scalarString(el)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}
		return vals, nil
	}
	v, err := scalarString(raw)
	if err != nil {
		return nil, err
	}
	return []string{v}, nil
}

func scalarString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return "true", nil
		}
		return "false", nil
	}
	return string(raw), nil
}
