// Package metakv is the default embedded implementation of the metadata
// key-value contract: a pure-Go (no cgo) sqlite file keyed by midhash256,
// storing each MetaRecord as JSON. Grounded on the teacher's
// database/sql + modernc.org/sqlite usage in internal/plex/dvr.go, carried
// over to a single meta table instead of DVR schedules.
package metakv

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/mediacat/mediacat/internal/model"
)

// Store is the metadata KV contract the pipeline and Orchestrator depend
// on. A Redis-backed implementation can satisfy the same interface in
// production; this package only ships the embedded default.
type Store interface {
	Get(ctx context.Context, midhash string) (model.MetaRecord, bool, error)
	Put(ctx context.Context, midhash string, rec model.MetaRecord) error
	Delete(ctx context.Context, midhash string) error
	AllHashes(ctx context.Context) ([]string, error)
	Close() error
}

// SQLiteStore is the default Store, backed by a single WAL-mode sqlite
// file and one table.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite file at path in WAL mode and
// ensures the meta table exists.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("metakv: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("metakv: enabling WAL: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (
		midhash TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		payload_sha TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("metakv: creating meta table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the stored record for midhash, or (_, false, nil) if absent.
func (s *SQLiteStore) Get(ctx context.Context, midhash string) (model.MetaRecord, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM meta WHERE midhash = ?`, midhash).Scan(&payload)
	if err == sql.ErrNoRows {
		return model.MetaRecord{}, false, nil
	}
	if err != nil {
		return model.MetaRecord{}, false, fmt.Errorf("metakv: get %s: %w", midhash, err)
	}
	var rec model.MetaRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return model.MetaRecord{}, false, fmt.Errorf("metakv: decoding payload for %s: %w", midhash, err)
	}
	return rec, true, nil
}

// Put upserts rec under midhash. A write whose JSON payload is byte-equal
// to what's already stored is skipped entirely, matching the
// idempotent-write guarantee ("repeated writes of equal contents are
// no-ops") without even touching the disk.
func (s *SQLiteStore) Put(ctx context.Context, midhash string, rec model.MetaRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("metakv: encoding payload for %s: %w", midhash, err)
	}
	sum := sha256.Sum256(payload)
	digest := hex.EncodeToString(sum[:])

	var existing string
	err = s.db.QueryRowContext(ctx, `SELECT payload_sha FROM meta WHERE midhash = ?`, midhash).Scan(&existing)
	if err == nil && existing == digest {
		return nil
	}
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("metakv: checking existing payload for %s: %w", midhash, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO meta (midhash, payload, payload_sha, updated_at)
		VALUES (?, ?, ?, strftime('%s','now'))
		ON CONFLICT(midhash) DO UPDATE SET
			payload = excluded.payload,
			payload_sha = excluded.payload_sha,
			updated_at = excluded.updated_at
	`, midhash, payload, digest)
	if err != nil {
		return fmt.Errorf("metakv: put %s: %w", midhash, err)
	}
	return nil
}

// Delete removes midhash's record, if any.
func (s *SQLiteStore) Delete(ctx context.Context, midhash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM meta WHERE midhash = ?`, midhash); err != nil {
		return fmt.Errorf("metakv: delete %s: %w", midhash, err)
	}
	return nil
}

// AllHashes returns every stored midhash256, used by the Orchestrator to
// rebuild the VFS at startup without touching the transport.
func (s *SQLiteStore) AllHashes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT midhash FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("metakv: listing hashes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("metakv: scanning hash row: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
