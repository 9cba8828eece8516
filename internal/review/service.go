// Package review coordinates annotation documents across storage, index,
// and the verification ledger.
package review

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/Spiffical/hydrolabel/internal/apperr"
	"github.com/Spiffical/hydrolabel/internal/checksum"
	"github.com/Spiffical/hydrolabel/internal/index"
	"github.com/Spiffical/hydrolabel/internal/schema"
	"github.com/Spiffical/hydrolabel/internal/storage"
	"github.com/Spiffical/hydrolabel/internal/taxonomy"
)

// DocumentDetail is the full representation of an annotation document.
type DocumentDetail struct {
	Path     string           `json:"path"`
	Checksum string           `json:"checksum"`
	Summary  schema.Summary   `json:"summary"`
	Document *schema.Document `json:"document"`
}

// Service coordinates storage and index operations. All writes go through
// here so the on-disk file, its index rows, and the audit trail stay
// consistent.
type Service struct {
	store    storage.Provider
	db       *index.DB
	tree     taxonomy.Tree
	onVerify func(path, itemID string, round int)
}

// NewService creates a new review service. tree is the label taxonomy
// snapshot used to check every class hierarchy written through the service.
func NewService(store storage.Provider, db *index.DB, tree taxonomy.Tree) *Service {
	return &Service{store: store, db: db, tree: tree}
}

// OnVerification registers a callback fired after each successfully
// appended round. Set once during wiring, before the service handles
// requests.
func (s *Service) OnVerification(fn func(path, itemID string, round int)) {
	s.onVerify = fn
}

// Taxonomy returns the label hierarchy the service validates against.
func (s *Service) Taxonomy() taxonomy.Tree {
	return s.tree
}

// GetDocument reads a document from storage and returns it in canonical
// form. Legacy shapes still on disk are converted in memory; the file is
// not rewritten.
func (s *Service) GetDocument(_ context.Context, path string) (*DocumentDetail, error) {
	raw, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	doc, err := s.decode(raw)
	if err != nil {
		return nil, err
	}
	return s.detail(path, raw, doc), nil
}

// ImportDocument converts raw input (canonical or any supported legacy
// shape) to the canonical form, validates it, and writes it as a new
// library document. Importing over an existing path is rejected.
func (s *Service) ImportDocument(_ context.Context, path string, raw []byte) (*DocumentDetail, error) {
	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	doc, err := s.decode(raw)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc, schema.WithTaxonomy(s.tree)); err != nil {
		return nil, err
	}

	out, err := schema.Serialize(doc)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(path, out); err != nil {
		return nil, err
	}
	if err := index.IndexDocument(s.db, path, out, time.Now()); err != nil {
		return nil, err
	}
	return s.detail(path, out, doc), nil
}

// RecordVerification appends a verification round to one item under the
// document's advisory lock. ifMatch, when non-empty, must equal the current
// file checksum or the write is rejected with a conflict; the lock then
// guards the read-modify-write cycle itself.
func (s *Service) RecordVerification(_ context.Context, path, itemID string, v schema.Verification, ifMatch string) (*DocumentDetail, error) {
	var detail *DocumentDetail

	round := 0

	err := s.store.WithLock(path, func() error {
		raw, err := s.store.Read(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return apperr.ErrNotFound
			}
			return err
		}
		if ifMatch != "" && ifMatch != checksum.Sum(raw) {
			return apperr.ErrConflict
		}

		doc, err := s.decode(raw)
		if err != nil {
			return err
		}
		if err := doc.AddVerification(itemID, v); err != nil {
			if errors.Is(err, schema.ErrItemNotFound) {
				return apperr.ErrNotFound
			}
			return err
		}
		it := doc.Item(itemID)
		round = it.Verifications[len(it.Verifications)-1].VerificationRound
		if err := schema.Validate(doc, schema.WithTaxonomy(s.tree)); err != nil {
			return err
		}
		doc.Touch()

		out, err := schema.Serialize(doc)
		if err != nil {
			return err
		}
		if err := s.store.Write(path, out); err != nil {
			return err
		}
		if err := index.IndexDocument(s.db, path, out, time.Now()); err != nil {
			return err
		}
		detail = s.detail(path, out, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.onVerify != nil {
		s.onVerify(path, itemID, round)
	}
	return detail, nil
}

// DeleteDocument removes a document from storage and index.
func (s *Service) DeleteDocument(_ context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	return s.db.DeleteDocument(path)
}

// ExportLabels derives the labels-only profile of a document: item ids and
// their verification ledgers, with all model provenance stripped. This is
// the shape the archive ingestion consumes.
func (s *Service) ExportLabels(ctx context.Context, path string) ([]byte, error) {
	d, err := s.GetDocument(ctx, path)
	if err != nil {
		return nil, err
	}
	return schema.Serialize(schema.LabelsOnly(d.Document))
}

// Summarize returns review statistics for one document.
func (s *Service) Summarize(ctx context.Context, path string) (schema.Summary, error) {
	d, err := s.GetDocument(ctx, path)
	if err != nil {
		return schema.Summary{}, err
	}
	return d.Summary, nil
}

// ListDocuments returns paginated documents with optional task type filter.
func (s *Service) ListDocuments(_ context.Context, limit, offset int, taskType, sort string) ([]index.DocumentRow, int, error) {
	return s.db.ListDocuments(limit, offset, taskType, sort)
}

// ListItems returns a page of a document's indexed items.
func (s *Service) ListItems(_ context.Context, path, status string, limit, offset int) ([]index.ItemRow, int, error) {
	return s.db.ListItems(path, status, limit, offset)
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// decode converts raw bytes to a parsed canonical document. Flat legacy
// labels are rewritten to taxonomy paths so converted documents satisfy the
// same taxonomy check as canonical ones.
func (s *Service) decode(raw []byte) (*schema.Document, error) {
	canonical, err := schema.Convert(raw)
	if err != nil {
		return nil, err
	}
	doc, err := schema.Parse(canonical, schema.Strict)
	if err != nil {
		return nil, err
	}
	schema.NormalizeLabels(doc, s.tree)
	return doc, nil
}

func (s *Service) detail(path string, raw []byte, doc *schema.Document) *DocumentDetail {
	return &DocumentDetail{
		Path:     path,
		Checksum: checksum.Sum(raw),
		Summary:  doc.Summarize(),
		Document: doc,
	}
}
