package schema

import (
	"fmt"
	"time"
)

// Builder operations for constructing documents programmatically, plus the
// query helpers review tooling needs. All mutation is additive; nothing
// here rewrites existing entries.

// New creates an empty document for the given task.
func New(taskType TaskType) *Document {
	return &Document{
		SchemaVersion: Version,
		CreatedAt:     time.Now().UTC(),
		TaskType:      taskType,
		Items:         []Item{},
	}
}

// SetModel attaches inference-model provenance.
func (d *Document) SetModel(m Model) {
	d.Model = &m
}

// SetSpectrogramConfig attaches free-form spectrogram generation settings.
func (d *Document) SetSpectrogramConfig(cfg map[string]any) {
	d.SpectrogramConfig = cfg
}

// SetPipeline attaches inference pipeline provenance.
func (d *Document) SetPipeline(p Pipeline) {
	d.Pipeline = &p
}

// AddDataSource appends a hydrophone deployment record. Duplicate ids are
// rejected.
func (d *Document) AddDataSource(ds DataSource) error {
	if ds.DataSourceID == "" {
		return &Error{Class: ClassSchema, Kind: KindMissingRequiredField, Field: "data_source_id"}
	}
	if d.DataSource(ds.DataSourceID) != nil {
		return &Error{
			Class: ClassValidation, Kind: KindDuplicateDataSourceID,
			Field: "data_source_id", Detail: fmt.Sprintf("%q already declared", ds.DataSourceID),
		}
	}
	d.DataSources = append(d.DataSources, ds)
	return nil
}

// AddItem appends a prediction item. Duplicate ids are rejected.
func (d *Document) AddItem(it Item) error {
	if it.ItemID == "" {
		return &Error{Class: ClassSchema, Kind: KindMissingRequiredField, Field: "item_id"}
	}
	if d.Item(it.ItemID) != nil {
		return &Error{
			Class: ClassValidation, Kind: KindDuplicateItemID,
			Field: "item_id", Detail: fmt.Sprintf("%q already declared", it.ItemID),
		}
	}
	if it.Verifications == nil {
		it.Verifications = []Verification{}
	}
	d.Items = append(d.Items, it)
	return nil
}

// AddVerification appends a verification round to the named item. A zero
// VerificationRound is auto-numbered to the next round; an explicit round
// must be exactly the next one.
func (d *Document) AddVerification(itemID string, v Verification) error {
	it := d.Item(itemID)
	if it == nil {
		return fmt.Errorf("%w: %q", ErrItemNotFound, itemID)
	}
	if v.VerifiedAt.IsZero() {
		v.VerifiedAt = time.Now().UTC()
	}
	if v.VerificationRound == 0 {
		v.VerificationRound = NextRound(it)
	}
	return AppendRound(it, v)
}

// Touch bumps updated_at. Called before every save.
func (d *Document) Touch() {
	now := time.Now().UTC()
	d.UpdatedAt = &now
}

// ItemsByScore returns items whose score for the given class is at or above
// the threshold (or below it, when above is false).
func (d *Document) ItemsByScore(classHierarchy string, threshold float64, above bool) []*Item {
	var out []*Item
	for i := range d.Items {
		for j := range d.Items[i].ModelOutputs {
			mo := &d.Items[i].ModelOutputs[j]
			if mo.ClassHierarchy != classHierarchy {
				continue
			}
			if (above && mo.Score >= threshold) || (!above && mo.Score < threshold) {
				out = append(out, &d.Items[i])
			}
			break
		}
	}
	return out
}

// UnverifiedItems returns items with no verification rounds.
func (d *Document) UnverifiedItems() []*Item {
	var out []*Item
	for i := range d.Items {
		if len(d.Items[i].Verifications) == 0 {
			out = append(out, &d.Items[i])
		}
	}
	return out
}

// Summary holds per-document review statistics.
type Summary struct {
	TotalItems int      `json:"total_items"`
	Verified   int      `json:"verified"`
	Unverified int      `json:"unverified"`
	MeanScore  *float64 `json:"mean_score,omitempty"`
	MinScore   *float64 `json:"min_score,omitempty"`
	MaxScore   *float64 `json:"max_score,omitempty"`
}

// Summarize computes review statistics over all items.
func (d *Document) Summarize() Summary {
	s := Summary{TotalItems: len(d.Items)}

	var scores []float64
	for i := range d.Items {
		if len(d.Items[i].Verifications) > 0 {
			s.Verified++
		}
		for j := range d.Items[i].ModelOutputs {
			scores = append(scores, d.Items[i].ModelOutputs[j].Score)
		}
	}
	s.Unverified = s.TotalItems - s.Verified

	if len(scores) > 0 {
		sum, min, max := 0.0, scores[0], scores[0]
		for _, v := range scores {
			sum += v
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		mean := sum / float64(len(scores))
		s.MeanScore, s.MinScore, s.MaxScore = &mean, &min, &max
	}
	return s
}

// LabelsOnly derives the labels-only profile from a document: the shape the
// O3.0 ingestion target consumes. Items are reduced to their id and
// verification ledger; model, data sources, spectrogram config, and
// pipeline provenance are dropped. The source document is not modified.
func LabelsOnly(d *Document) *Document {
	out := &Document{
		SchemaVersion: Version,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		TaskType:      d.TaskType,
		Items:         make([]Item, len(d.Items)),
	}
	for i := range d.Items {
		verifications := make([]Verification, len(d.Items[i].Verifications))
		copy(verifications, d.Items[i].Verifications)
		out.Items[i] = Item{
			ItemID:        d.Items[i].ItemID,
			Verifications: verifications,
		}
	}
	return out
}
