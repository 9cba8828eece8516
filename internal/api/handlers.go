package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Spiffical/hydrolabel/internal/apperr"
	"github.com/Spiffical/hydrolabel/internal/review"
	"github.com/Spiffical/hydrolabel/internal/schema"
	"github.com/Spiffical/hydrolabel/internal/taxonomy"
)

// Handler holds API route handlers.
type Handler struct {
	svc *review.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *review.Service) *Handler {
	return &Handler{svc: svc}
}

// docPath extracts the document path from the URL (everything after the
// wildcard). Supports encoded slashes from OpenAPI clients
// (e.g. 2019%2Fclayo.json).
func docPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeServiceError maps service-layer failures to HTTP responses.
func writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("document already exists"))
	case len(schema.AsErrors(err)) > 0:
		writeJSON(w, http.StatusUnprocessableEntity, violationBody(err))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListDocuments handles GET /api/documents.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	taskType := q.Get("task_type")
	sort := q.Get("sort")

	docs, total, err := h.svc.ListDocuments(r.Context(), limit, offset, taskType, sort)
	if err != nil {
		writeServiceError(w, err, "list documents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"total":     total,
	})
}

// ImportDocument handles POST /api/documents. The payload is converted to
// the canonical form and validated before anything touches disk.
func (h *Handler) ImportDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 50<<20)
	var req ImportDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	detail, err := h.svc.ImportDocument(r.Context(), req.Path, req.Document)
	if err != nil {
		writeServiceError(w, err, "import document")
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

// GetDocument handles GET /api/documents/*. With ?export=labels the
// response is the derived labels-only profile instead of the full document.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}

	if r.URL.Query().Get("export") == "labels" {
		out, err := h.svc.ExportLabels(r.Context(), path)
		if err != nil {
			writeServiceError(w, err, "export labels")
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
		return
	}

	detail, err := h.svc.GetDocument(r.Context(), path)
	if err != nil {
		writeServiceError(w, err, "get document")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// DeleteDocument handles DELETE /api/documents/*.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeleteDocument(r.Context(), path); err != nil {
		writeServiceError(w, err, "delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListItems handles GET /api/items?document=...&status=...
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	document := q.Get("document")
	if document == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'document' is required"))
		return
	}
	status := q.Get("status")
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListItems(r.Context(), document, status, limit, offset)
	if err != nil {
		writeServiceError(w, err, "list items")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
	})
}

// RecordVerification handles POST /api/verifications. The If-Match header,
// when present, must carry the document checksum from a prior GET; a stale
// checksum is rejected with 409.
func (h *Handler) RecordVerification(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req RecordVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	ifMatch := r.Header.Get("If-Match")
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch = strings.Trim(ifMatch, `"`)

	detail, err := h.svc.RecordVerification(r.Context(), req.Document, req.ItemID, req.toVerification(), ifMatch)
	if err != nil {
		writeServiceError(w, err, "record verification")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Search handles GET /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeServiceError(w, err, "search")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}

// Taxonomy handles GET /api/taxonomy.
func (h *Handler) Taxonomy(w http.ResponseWriter, r *http.Request) {
	tree := h.svc.Taxonomy()
	writeJSON(w, http.StatusOK, map[string]any{
		"separator": taxonomy.Separator,
		"tree":      tree,
		"paths":     tree.AllPaths(),
	})
}
