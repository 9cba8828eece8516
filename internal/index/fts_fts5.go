//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
			doc_path UNINDEXED,
			item_id UNINDEXED,
			labels,
			notes,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, docPath, itemID, labels, notes string) error {
	_, err := tx.Exec(`INSERT INTO items_fts (doc_path, item_id, labels, notes) VALUES (?, ?, ?, ?)`,
		docPath, itemID, labels, notes)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDeleteDoc(tx *sql.Tx, docPath string) {
	_, _ = tx.Exec(`DELETE FROM items_fts WHERE doc_path = ?`, docPath)
}

// Search performs an FTS5 full-text search over labels and reviewer notes
// and returns matching items with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT doc_path,
		       item_id,
		       snippet(items_fts, 3, '<b>', '</b>', '...', 64)
		FROM items_fts
		WHERE items_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.DocPath, &r.ItemID, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
