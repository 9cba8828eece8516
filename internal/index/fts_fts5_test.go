//go:build sqlite_fts5

package index

import (
	"testing"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM items_fts`).Scan(&count); err != nil {
		t.Fatalf("items_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	d, items := sampleRow("fts.json")
	items[0].Notes = "unmistakable downsweep train in the 20Hz band"
	if err := db.UpsertDocument(d, items); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	results, err := db.Search("unmistakable", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].DocPath != "fts.json" || results[0].ItemID != "seg_000" {
		t.Errorf("hit = %+v", results[0])
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_LabelsSearchable(t *testing.T) {
	db := testDB(t)
	d, items := sampleRow("labels.json")
	if err := db.UpsertDocument(d, items); err != nil {
		t.Fatal(err)
	}

	results, err := db.Search("whale", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ItemID != "seg_000" {
		t.Errorf("label search results = %+v", results)
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	d, items := sampleRow("gone.json")
	items[0].Notes = "vanishing content"
	_ = db.UpsertDocument(d, items)
	_ = db.DeleteDocument("gone.json")

	results, _ := db.Search("vanishing", 10)
	for _, r := range results {
		if r.DocPath == "gone.json" {
			t.Error("deleted document still in FTS index")
		}
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	d, items := sampleRow("evo.json")
	items[0].Notes = "original text"
	_ = db.UpsertDocument(d, items)

	items[0].Notes = "replacement text"
	_ = db.UpsertDocument(d, items)

	results, _ := db.Search("original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search("replacement", 10)
	if len(results) != 1 || results[0].ItemID != "seg_000" {
		t.Errorf("FTS not updated: %+v", results)
	}
}
