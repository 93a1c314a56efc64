// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dedup tracks which notes of a batch run reference which attachment
// payloads, so that a payload shared by several notes is materialized once
// and linked from the first copy.
//
// The index lives in an in-memory SQLite database and is scoped to one run.
// It is advisory: losing it costs duplicate files, never correctness.
package dedup

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/enexconv/pkg/types"
)

// Index is the attachment dedup index. It is safe for concurrent use.
type Index struct {
	db *sql.DB
}

// Open creates an empty index.
func Open() (*Index, error) {
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening dedup index: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	ix := &Index{db: db}
	if err := ix.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return ix, nil
}

// Close releases the database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

func (ix *Index) createSchema() error {
	statements := []string{
		`CREATE TABLE payloads (
			hash TEXT PRIMARY KEY,
			size INTEGER NOT NULL,
			path TEXT NOT NULL
		)`,
		`CREATE TABLE refs (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			hash TEXT NOT NULL REFERENCES payloads(hash),
			note_id TEXT NOT NULL,
			UNIQUE(hash, note_id)
		)`,
		`CREATE INDEX idx_refs_note_id ON refs(note_id)`,
	}
	for _, stmt := range statements {
		if _, err := ix.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Claim records that noteID references the payload with the given hash and
// that the caller is about to write it at path. It returns the path of the
// first materialized copy; first is true when that copy is the caller's.
// Claiming the same hash twice for one note is a no-op.
func (ix *Index) Claim(ctx context.Context, hash string, size int, noteID, path string) (existing string, first bool, err error) {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO payloads (hash, size, path) VALUES (?, ?, ?)`,
		hash, size, path,
	)
	if err != nil {
		return "", false, fmt.Errorf("claiming payload %s: %w", hash, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("claiming payload %s: %w", hash, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO refs (hash, note_id) VALUES (?, ?)`, hash, noteID,
	); err != nil {
		return "", false, fmt.Errorf("recording reference %s: %w", hash, err)
	}

	if err := tx.QueryRowContext(ctx,
		`SELECT path FROM payloads WHERE hash = ?`, hash,
	).Scan(&existing); err != nil {
		return "", false, fmt.Errorf("reading payload %s: %w", hash, err)
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("committing claim: %w", err)
	}
	return existing, inserted == 1, nil
}

// Notes returns the notes referencing hash in claim order.
func (ix *Index) Notes(ctx context.Context, hash string) ([]string, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT note_id FROM refs WHERE hash = ? ORDER BY rowid`, hash)
	if err != nil {
		return nil, fmt.Errorf("querying references: %w", err)
	}
	defer rows.Close()

	var notes []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning reference: %w", err)
		}
		notes = append(notes, id)
	}
	return notes, rows.Err()
}

// Shared returns the payloads referenced by more than one note, ordered by
// hash.
func (ix *Index) Shared(ctx context.Context) ([]types.SharedAttachment, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT r.hash, p.path, r.note_id
		 FROM refs r JOIN payloads p ON p.hash = r.hash
		 WHERE r.hash IN (SELECT hash FROM refs GROUP BY hash HAVING COUNT(*) > 1)
		 ORDER BY r.hash, r.rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying shared payloads: %w", err)
	}
	defer rows.Close()

	var shared []types.SharedAttachment
	for rows.Next() {
		var hash, path, noteID string
		if err := rows.Scan(&hash, &path, &noteID); err != nil {
			return nil, fmt.Errorf("scanning shared payload: %w", err)
		}
		if n := len(shared); n == 0 || shared[n-1].Hash != hash {
			shared = append(shared, types.SharedAttachment{Hash: hash, Path: path})
		}
		last := &shared[len(shared)-1]
		last.Notes = append(last.Notes, noteID)
	}
	return shared, rows.Err()
}

// Saved returns the number of payload bytes not written thanks to sharing.
func (ix *Index) Saved(ctx context.Context) (int64, error) {
	var saved sql.NullInt64
	err := ix.db.QueryRowContext(ctx,
		`SELECT SUM(p.size * (c.n - 1))
		 FROM payloads p JOIN (SELECT hash, COUNT(*) AS n FROM refs GROUP BY hash) c ON c.hash = p.hash`,
	).Scan(&saved)
	if err != nil {
		return 0, fmt.Errorf("summing shared payloads: %w", err)
	}
	return saved.Int64, nil
}

// Release forgets the references of noteID. Payloads no other note
// references are forgotten too, so that the next claim writes a fresh copy.
func (ix *Index) Release(ctx context.Context, noteID string) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM refs WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("deleting references: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM payloads WHERE hash NOT IN (SELECT hash FROM refs)`,
	); err != nil {
		return fmt.Errorf("deleting payloads: %w", err)
	}
	return tx.Commit()
}
