// Package store mirrors the normalized catalog into SQLite so it can be queried without
// rereading the JSON file.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("store.Open: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS fabrics (
  position INTEGER PRIMARY KEY,
  id TEXT NOT NULL,
  name TEXT NOT NULL,
  groupKey TEXT NOT NULL,
  material TEXT,
  texture TEXT,
  colorsJson TEXT NOT NULL,
  embellishmentsJson TEXT NOT NULL,
  degraded INTEGER NOT NULL DEFAULT 0,
  raw_json TEXT NOT NULL,
  lastSeenAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_fabrics_id ON fabrics(id);
CREATE INDEX IF NOT EXISTS idx_fabrics_groupKey ON fabrics(groupKey);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// ReplaceFabrics makes the fabrics table an exact copy of records, in order. Group keys are
// computed with suffixes so the table can be filtered by group.
func (d *DB) ReplaceFabrics(records []fabric.FabricRecord, suffixes []string) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM fabrics`); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO fabrics (
  position, id, name, groupKey, material, texture,
  colorsJson, embellishmentsJson, degraded, raw_json, lastSeenAt
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range records {
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", r.ID, err)
		}
		colorsJSON, _ := json.Marshal(nonNil(r.Colors))
		embJSON, _ := json.Marshal(nonNil(r.Embellishments))
		if _, err := stmt.Exec(
			i, r.ID, r.Name, fabric.GroupKey(r.Name, suffixes), r.Material, r.Texture,
			string(colorsJSON), string(embJSON), r.Degraded, string(raw),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListFabrics returns the mirrored records in catalog order.
func (d *DB) ListFabrics() ([]fabric.FabricRecord, error) {
	return d.queryFabrics(`SELECT raw_json FROM fabrics ORDER BY position`)
}

// ListGroup returns the records whose group key is key, in catalog order.
func (d *DB) ListGroup(key string) ([]fabric.FabricRecord, error) {
	return d.queryFabrics(`SELECT raw_json FROM fabrics WHERE groupKey = ? ORDER BY position`, key)
}

func (d *DB) queryFabrics(query string, args ...any) ([]fabric.FabricRecord, error) {
	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []fabric.FabricRecord{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var r fabric.FabricRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode fabric row: %w", err)
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updatedAt=CURRENT_TIMESTAMP
`, key, value)
	return err
}

// GetMetadata returns "" and no error for a missing key.
func (d *DB) GetMetadata(key string) (string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
