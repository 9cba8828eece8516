package index

import (
	"log/slog"
	"time"

	"github.com/Spiffical/hydrolabel/internal/checksum"
	"github.com/Spiffical/hydrolabel/internal/schema"
	"github.com/Spiffical/hydrolabel/internal/storage"
)

// Sync walks the library and brings the index up to date:
//   - new/changed documents are parsed and upserted
//   - documents removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexDocument(db, m.Path, data, m.UpdatedAt); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteDocument(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexDocument parses data and upserts it into the DB. Legacy shapes are
// converted on the fly so pre-existing library files are still searchable;
// the file itself is left untouched.
func IndexDocument(db *DB, path string, data []byte, modTime time.Time) error {
	canonical, err := schema.Convert(data)
	if err != nil {
		return err
	}
	doc, err := schema.Parse(canonical, schema.Lenient)
	if err != nil {
		return err
	}

	summary := doc.Summarize()
	updatedAt := modTime
	if doc.UpdatedAt != nil {
		updatedAt = *doc.UpdatedAt
	}

	row := DocumentRow{
		Path:          path,
		TaskType:      string(doc.TaskType),
		Profile:       string(doc.Profile()),
		Checksum:      checksum.Sum(data),
		TotalItems:    summary.TotalItems,
		VerifiedItems: summary.Verified,
		UpdatedAt:     updatedAt,
	}

	items := make([]ItemRow, 0, len(doc.Items))
	for i := range doc.Items {
		it := &doc.Items[i]
		items = append(items, ItemRow{
			DocPath:      path,
			ItemID:       it.ItemID,
			DataSourceID: it.DataSourceID,
			Status:       string(schema.ItemStatus(it)),
			TopScore:     topScore(it),
			Labels:       schema.CurrentLabels(it),
			Notes:        latestNotes(it),
		})
	}
	return db.UpsertDocument(row, items)
}

func topScore(it *schema.Item) *float64 {
	var top *float64
	for i := range it.ModelOutputs {
		s := it.ModelOutputs[i].Score
		if top == nil || s > *top {
			top = &s
		}
	}
	return top
}

func latestNotes(it *schema.Item) string {
	if len(it.Verifications) == 0 {
		return ""
	}
	return it.Verifications[len(it.Verifications)-1].Notes
}
