// Package modcache persists exposed-module-types artifacts in a SQLite
// database, so a compile that imports an already-checked module restores its
// exported types instead of re-solving it. The payload is the YAML artifact
// codec in this package; the database only knows module names, artifact ids,
// and blobs.
package modcache

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ternlang/tern/internal/solve"
	"github.com/ternlang/tern/internal/symbols"
)

const schema = `
CREATE TABLE IF NOT EXISTS exposed_types (
	module      TEXT PRIMARY KEY,
	artifact_id TEXT NOT NULL,
	payload     BLOB NOT NULL,
	created_at  TEXT NOT NULL DEFAULT (datetime('now'))
);`

// Cache is an open artifact database. Not safe for concurrent use by
// multiple processes beyond what SQLite itself guarantees.
type Cache struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the cache at path.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("modcache: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("modcache: init %s: %w", path, err)
	}
	return &Cache{db: db}, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Put stores a module's artifact, replacing any previous one.
func (c *Cache) Put(moduleName string, interns *symbols.Interns, exposed *solve.ExposedModuleTypes) error {
	payload, err := Encode(interns, exposed)
	if err != nil {
		return fmt.Errorf("modcache: encode %s: %w", moduleName, err)
	}
	_, err = c.db.Exec(
		`INSERT INTO exposed_types (module, artifact_id, payload) VALUES (?, ?, ?)
		 ON CONFLICT(module) DO UPDATE SET artifact_id = excluded.artifact_id, payload = excluded.payload`,
		moduleName, exposed.ArtifactID.String(), payload,
	)
	if err != nil {
		return fmt.Errorf("modcache: put %s: %w", moduleName, err)
	}
	return nil
}

// Get loads a module's artifact. The second return is false when the module
// has no cached artifact.
func (c *Cache) Get(moduleName string, interns *symbols.Interns) (*solve.ExposedModuleTypes, bool, error) {
	var payload []byte
	err := c.db.QueryRow(
		`SELECT payload FROM exposed_types WHERE module = ?`, moduleName,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("modcache: get %s: %w", moduleName, err)
	}
	artifact, err := Decode(interns, payload)
	if err != nil {
		return nil, false, fmt.Errorf("modcache: get %s: %w", moduleName, err)
	}
	return artifact, true, nil
}

// Modules lists the cached module names in lexical order.
func (c *Cache) Modules() ([]string, error) {
	rows, err := c.db.Query(`SELECT module FROM exposed_types ORDER BY module`)
	if err != nil {
		return nil, fmt.Errorf("modcache: list: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("modcache: list: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func parseArtifactID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("modcache: bad artifact id %q: %w", s, err)
	}
	return id, nil
}
