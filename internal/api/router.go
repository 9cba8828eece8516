package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Spiffical/hydrolabel/internal/review"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// libraryRoot is used to resolve media file references.
func NewRouter(svc *review.Service, authEnabled bool, token string, sseHandler http.Handler, libraryRoot string) chi.Router {
	h := NewHandler(svc)
	mh := NewMediaHandler(libraryRoot)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Annotation documents.
	r.Get("/documents", h.ListDocuments)
	r.Post("/documents", h.ImportDocument)
	r.Get("/documents/*", h.GetDocument)
	r.Delete("/documents/*", h.DeleteDocument)

	// Indexed items across a document.
	r.Get("/items", h.ListItems)

	// Verification ledger appends.
	r.Post("/verifications", h.RecordVerification)

	// Search and taxonomy.
	r.Get("/search", h.Search)
	r.Get("/taxonomy", h.Taxonomy)

	// Referenced spectrogram/audio files (read-only).
	r.Get("/media/*", mh.ServeFile)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
