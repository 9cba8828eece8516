package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Spiffical/hydrolabel/internal/index"
	"github.com/Spiffical/hydrolabel/internal/review"
	"github.com/Spiffical/hydrolabel/internal/storage"
	"github.com/Spiffical/hydrolabel/internal/taxonomy"
)

const finWhale = "Biophony > Marine mammal > Cetacean > Baleen whale > Fin whale"

const predictionsJSON = `{
	"schema_version": "2.0",
	"task_type": "whale_detection",
	"created_at": "2019-07-01T00:00:00Z",
	"model": {"model_id": "sha256-abc"},
	"data_sources": [{"data_source_id": "SRC", "device_code": "ICLISTENHF1353"}],
	"items": [
		{"item_id": "seg_000", "data_source_id": "SRC",
		 "audio_start_time": "2019-06-30T00:04:58Z", "audio_end_time": "2019-06-30T00:05:38Z",
		 "model_outputs": [{"class_hierarchy": "Biophony > Marine mammal > Cetacean > Baleen whale > Fin whale", "score": 0.87}],
		 "verifications": []}
	]
}`

func testServer(t *testing.T) (*Server, *review.Service) {
	t.Helper()

	libDir := t.TempDir()
	store, err := storage.NewFS(libDir)
	if err != nil {
		t.Fatal(err)
	}

	dbFile, err := os.CreateTemp("", "hydrolabel-mcp-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	svc := review.NewService(store, db, taxonomy.Default())
	return New(svc), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so we test
	// through the tool handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_annotations":
		result, err = srv.searchAnnotations(ctx, req)
	case "read_document":
		result, err = srv.readDocument(ctx, req)
	case "list_documents":
		result, err = srv.listDocuments(ctx, req)
	case "item_labels":
		result, err = srv.itemLabels(ctx, req)
	case "record_verification":
		result, err = srv.recordVerification(ctx, req)
	case "get_taxonomy":
		result, err = srv.getTaxonomy(ctx, req)
	case "get_schema_contract":
		result, err = srv.getSchemaContract(ctx, req)
	case "import_predictions":
		result, err = srv.importPredictions(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestImportAndReadDocument(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "import_predictions", map[string]interface{}{
		"document": predictionsJSON,
		"path":     "clayo.json",
	})
	if r.IsError {
		t.Fatalf("import failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "imported: clayo.json") {
		t.Errorf("import result = %q", resultText(r))
	}

	r = callTool(t, srv, "read_document", map[string]interface{}{"path": "clayo.json"})
	if r.IsError {
		t.Fatalf("read failed: %s", resultText(r))
	}
	var detail review.DocumentDetail
	if err := json.Unmarshal([]byte(resultText(r)), &detail); err != nil {
		t.Fatalf("read result is not a document detail: %v", err)
	}
	if detail.Summary.TotalItems != 1 {
		t.Errorf("summary = %+v", detail.Summary)
	}
}

func TestImportPredictions_ArgumentErrors(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "import_predictions", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error when neither document nor url is given")
	}

	r = callTool(t, srv, "import_predictions", map[string]interface{}{
		"document": predictionsJSON,
		"url":      "https://example.com/doc.json",
	})
	if !r.IsError {
		t.Error("expected error when both document and url are given")
	}

	r = callTool(t, srv, "import_predictions", map[string]interface{}{
		"document": predictionsJSON,
		"path":     "noext",
	})
	if !r.IsError {
		t.Error("expected error for destination without .json")
	}
}

func TestImportPredictions_InvalidDocument(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "import_predictions", map[string]interface{}{
		"document": `{"schema_version": "1.0"}`,
		"path":     "bad.json",
	})
	if !r.IsError {
		t.Fatal("expected rejection for wrong schema version")
	}
	if !strings.Contains(resultText(r), "rejected") {
		t.Errorf("error text = %q", resultText(r))
	}
}

func TestReadDocumentMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_document", map[string]interface{}{"path": "nope.json"})
	if !r.IsError {
		t.Error("expected error for missing document")
	}
}

func TestListDocuments(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "import_predictions", map[string]interface{}{
		"document": predictionsJSON, "path": "a.json",
	})

	r := callTool(t, srv, "list_documents", map[string]interface{}{})
	if r.IsError {
		t.Fatalf("list failed: %s", resultText(r))
	}
	var out struct {
		Total int `json:"total"`
	}
	_ = json.Unmarshal([]byte(resultText(r)), &out)
	if out.Total != 1 {
		t.Errorf("total = %d, want 1", out.Total)
	}
}

func TestRecordVerificationAndItemLabels(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "import_predictions", map[string]interface{}{
		"document": predictionsJSON, "path": "v.json",
	})

	r := callTool(t, srv, "record_verification", map[string]interface{}{
		"document":    "v.json",
		"item_id":     "seg_000",
		"verified_by": "expert@onc.example",
		"status":      "verified",
		"decisions":   `[{"label":"` + finWhale + `","decision":"accepted","threshold_used":0.5}]`,
	})
	if r.IsError {
		t.Fatalf("record failed: %s", resultText(r))
	}

	r = callTool(t, srv, "item_labels", map[string]interface{}{
		"document": "v.json",
		"item_id":  "seg_000",
	})
	if r.IsError {
		t.Fatalf("item_labels failed: %s", resultText(r))
	}
	var out struct {
		Status        string   `json:"status"`
		CurrentLabels []string `json:"current_labels"`
		Rounds        int      `json:"rounds"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "verified" || out.Rounds != 1 {
		t.Errorf("item state = %+v", out)
	}
	if len(out.CurrentLabels) != 1 || out.CurrentLabels[0] != finWhale {
		t.Errorf("current_labels = %v", out.CurrentLabels)
	}
}

func TestRecordVerification_BadDecisions(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "import_predictions", map[string]interface{}{
		"document": predictionsJSON, "path": "v.json",
	})

	r := callTool(t, srv, "record_verification", map[string]interface{}{
		"document":    "v.json",
		"item_id":     "seg_000",
		"verified_by": "rev",
		"decisions":   "not json",
	})
	if !r.IsError {
		t.Error("expected error for malformed decisions")
	}

	r = callTool(t, srv, "record_verification", map[string]interface{}{
		"document":    "v.json",
		"item_id":     "seg_000",
		"verified_by": "rev",
		"decisions":   `[{"label":"Biophony > Space whale","decision":"added"}]`,
	})
	if !r.IsError {
		t.Error("expected rejection for unknown taxonomy path")
	}
}

func TestSearchAnnotations(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "import_predictions", map[string]interface{}{
		"document": predictionsJSON, "path": "s.json",
	})
	callTool(t, srv, "record_verification", map[string]interface{}{
		"document":    "s.json",
		"item_id":     "seg_000",
		"verified_by": "rev",
		"notes":       "textbook downsweep",
		"decisions":   `[{"label":"` + finWhale + `","decision":"accepted","threshold_used":0.5}]`,
	})

	r := callTool(t, srv, "search_annotations", map[string]interface{}{"query": "downsweep"})
	if r.IsError {
		t.Fatalf("search failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "seg_000") {
		t.Errorf("search result missing item: %q", resultText(r))
	}
}

func TestGetTaxonomy(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_taxonomy", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, finWhale) {
		t.Errorf("taxonomy missing fin whale path")
	}
	if !strings.Contains(text, "Anthropophony > Vessel") {
		t.Errorf("taxonomy missing vessel path")
	}
}

func TestGetSchemaContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_schema_contract", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "schema_version") || !strings.Contains(text, "append-only") {
		t.Errorf("contract looks wrong: %q", text[:min(len(text), 120)])
	}
}

func TestDestinationFromURL(t *testing.T) {
	if got := destinationFromURL("https://example.com/runs/clayo.json"); got != "clayo.json" {
		t.Errorf("destinationFromURL = %q", got)
	}
	if got := destinationFromURL("https://example.com/runs/"); !strings.HasSuffix(got, ".json") {
		t.Errorf("fallback should end with .json, got %q", got)
	}
	if got := destinationFromURL(""); !strings.HasSuffix(got, ".json") {
		t.Errorf("fallback should end with .json, got %q", got)
	}
}
