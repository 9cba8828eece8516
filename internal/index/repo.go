package index

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DocumentRow represents a row in the documents table.
type DocumentRow struct {
	Path          string
	TaskType      string
	Profile       string
	Checksum      string
	TotalItems    int
	VerifiedItems int
	UpdatedAt     time.Time
}

// ItemRow represents one annotation item within a document. Labels holds
// the item's current label set; Notes the latest reviewer notes.
type ItemRow struct {
	DocPath      string
	ItemID       string
	DataSourceID string
	Status       string
	TopScore     *float64
	Labels       []string
	Notes        string
}

// SearchResult represents one search hit.
type SearchResult struct {
	DocPath string
	ItemID  string
	Snippet string
}

// UpsertDocument replaces a document row and all its item rows within a
// transaction. The item set is rewritten wholesale: the document file is
// the source of truth and the index only mirrors it.
func (db *DB) UpsertDocument(d DocumentRow, items []ItemRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO documents (path, task_type, profile, checksum, total_items, verified_items, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			task_type      = excluded.task_type,
			profile        = excluded.profile,
			checksum       = excluded.checksum,
			total_items    = excluded.total_items,
			verified_items = excluded.verified_items,
			updated_at     = excluded.updated_at
	`, d.Path, d.TaskType, d.Profile, d.Checksum, d.TotalItems, d.VerifiedItems, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	_, _ = tx.Exec(`DELETE FROM items WHERE doc_path = ?`, d.Path)
	ftsDeleteDoc(tx, d.Path)

	if len(items) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO items (doc_path, item_id, data_source_id, status, top_score, labels, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("index: prepare item insert: %w", err)
		}
		defer stmt.Close()

		for _, it := range items {
			labelsJSON, _ := json.Marshal(it.Labels)
			var score any
			if it.TopScore != nil {
				score = *it.TopScore
			}
			if _, err := stmt.Exec(d.Path, it.ItemID, it.DataSourceID, it.Status, score, string(labelsJSON), it.Notes); err != nil {
				return fmt.Errorf("index: insert item: %w", err)
			}
			if err := ftsUpsert(tx, d.Path, it.ItemID, strings.Join(it.Labels, " "), it.Notes); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document, its items, and their FTS entries.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDeleteDoc(tx, path)
	_, _ = tx.Exec(`DELETE FROM items WHERE doc_path = ?`, path)
	_, _ = tx.Exec(`DELETE FROM documents WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a document, or empty string if
// not indexed.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// GetDocument returns the indexed row for path, or nil when not indexed.
func (db *DB) GetDocument(path string) (*DocumentRow, error) {
	row := db.conn.QueryRow(`
		SELECT path, task_type, profile, checksum, total_items, verified_items, updated_at
		FROM documents WHERE path = ?
	`, path)
	var d DocumentRow
	err := row.Scan(&d.Path, &d.TaskType, &d.Profile, &d.Checksum, &d.TotalItems, &d.VerifiedItems, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	return &d, nil
}

// ListDocuments returns a page of documents plus the unfiltered total.
// taskType narrows the listing when non-empty; sort is "path" or
// "updated_at" (default, newest first).
func (db *DB) ListDocuments(limit, offset int, taskType, sort string) ([]DocumentRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	where, args := "", []any{}
	if taskType != "" {
		where = "WHERE task_type = ?"
		args = append(args, taskType)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count documents: %w", err)
	}

	order := "updated_at DESC"
	if sort == "path" {
		order = "path ASC"
	}
	args = append(args, limit, offset)
	rows, err := db.conn.Query(`
		SELECT path, task_type, profile, checksum, total_items, verified_items, updated_at
		FROM documents `+where+` ORDER BY `+order+` LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var d DocumentRow
		if err := rows.Scan(&d.Path, &d.TaskType, &d.Profile, &d.Checksum, &d.TotalItems, &d.VerifiedItems, &d.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// ListItems returns a page of a document's items plus the document's item
// total. status narrows the listing when non-empty.
func (db *DB) ListItems(docPath, status string, limit, offset int) ([]ItemRow, int, error) {
	if limit <= 0 {
		limit = 100
	}
	where, args := "WHERE doc_path = ?", []any{docPath}
	if status != "" {
		where += " AND status = ?"
		args = append(args, status)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM items `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count items: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := db.conn.Query(`
		SELECT doc_path, item_id, data_source_id, status, top_score, labels, notes
		FROM items `+where+` ORDER BY item_id ASC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list items: %w", err)
	}
	defer rows.Close()

	var out []ItemRow
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, it)
	}
	return out, total, rows.Err()
}

func scanItem(rows *sql.Rows) (ItemRow, error) {
	var it ItemRow
	var score sql.NullFloat64
	var labelsJSON string
	if err := rows.Scan(&it.DocPath, &it.ItemID, &it.DataSourceID, &it.Status, &score, &labelsJSON, &it.Notes); err != nil {
		return it, err
	}
	if score.Valid {
		it.TopScore = &score.Float64
	}
	if err := json.Unmarshal([]byte(labelsJSON), &it.Labels); err != nil {
		it.Labels = nil
	}
	return it, nil
}

// AllChecksums returns path -> checksum for every indexed document.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
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
