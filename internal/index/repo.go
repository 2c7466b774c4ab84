package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/quill/internal/apperr"
)

// DocumentRow represents a row in the documents table. Model is empty for
// record files whose type names no registered model.
type DocumentRow struct {
	Path      string    `json:"path"`
	Model     string    `json:"model"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AssetRow represents a row in the assets table.
type AssetRow struct {
	Path      string
	Checksum  string
	Size      int64
	UpdatedAt time.Time
}

// Ref is one reference field value: Source's field at FieldPath points at Target.
type Ref struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	FieldPath string `json:"field_path"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Model   string `json:"model"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// UpsertDocument inserts or replaces a document, its FTS entry, and its
// outgoing references within a transaction.
func (db *DB) UpsertDocument(d DocumentRow, body string, refs []Ref) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO documents (path, model, title, checksum, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			model      = excluded.model,
			title      = excluded.title,
			checksum   = excluded.checksum,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, d.Path, d.Model, d.Title, d.Checksum, body, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	// FTS upsert (no-op when the FTS5 tag is absent).
	if err := ftsUpsert(tx, d.Path, d.Title, body); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM refs WHERE source = ?`, d.Path); err != nil {
		return fmt.Errorf("index: clear refs: %w", err)
	}
	if len(refs) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO refs (source, target, field_path) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare ref insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range refs {
			if _, err := stmt.Exec(d.Path, r.Target, r.FieldPath); err != nil {
				return fmt.Errorf("index: insert ref: %w", err)
			}
		}
	}

	return tx.Commit()
}

// UpsertAsset inserts or replaces an asset row.
func (db *DB) UpsertAsset(a AssetRow) error {
	_, err := db.conn.Exec(`
		INSERT INTO assets (path, checksum, size, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum   = excluded.checksum,
			size       = excluded.size,
			updated_at = excluded.updated_at
	`, a.Path, a.Checksum, a.Size, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert asset: %w", err)
	}
	return nil
}

// Delete removes a document or asset, its FTS entry, and outgoing references.
func (db *DB) Delete(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	for _, q := range []string{
		`DELETE FROM refs WHERE source = ?`,
		`DELETE FROM documents WHERE path = ?`,
		`DELETE FROM assets WHERE path = ?`,
	} {
		if _, err := tx.Exec(q, path); err != nil {
			return fmt.Errorf("index: delete %s: %w", path, err)
		}
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a path, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`
		SELECT checksum FROM documents WHERE path = ?
		UNION ALL
		SELECT checksum FROM assets WHERE path = ?
		LIMIT 1
	`, path, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// GetDocument returns one document row.
func (db *DB) GetDocument(path string) (*DocumentRow, error) {
	var d DocumentRow
	err := db.conn.QueryRow(`SELECT path, model, title, checksum, updated_at FROM documents WHERE path = ?`, path).
		Scan(&d.Path, &d.Model, &d.Title, &d.Checksum, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: document %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	return &d, nil
}

// ListDocuments returns documents with a resolved model, ordered by path.
// A non-empty model restricts the listing to that model.
func (db *DB) ListDocuments(model string) ([]DocumentRow, error) {
	rows, err := db.conn.Query(`
		SELECT path, model, title, checksum, updated_at
		FROM documents
		WHERE model != '' AND (? = '' OR model = ?)
		ORDER BY path
	`, model, model)
	if err != nil {
		return nil, fmt.Errorf("index: list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var d DocumentRow
		if err := rows.Scan(&d.Path, &d.Model, &d.Title, &d.Checksum, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AllChecksums returns the checksum of every indexed document and asset.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents UNION ALL SELECT path, checksum FROM assets`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Backlinks returns the references pointing at target, ordered by source.
func (db *DB) Backlinks(target string) ([]Ref, error) {
	rows, err := db.conn.Query(`
		SELECT source, target, field_path FROM refs
		WHERE target = ?
		ORDER BY source, field_path
	`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []Ref
	for rows.Next() {
		var r Ref
		if err := rows.Scan(&r.Source, &r.Target, &r.FieldPath); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
