package schema

import (
	"fmt"

	"github.com/Spiffical/hydrolabel/internal/taxonomy"
)

// ValidateOption configures a validation pass.
type ValidateOption func(*validator)

// WithTaxonomy checks every class_hierarchy and label against the given
// taxonomy snapshot. The snapshot is read-only injected configuration;
// without it taxonomy paths are accepted as-is.
func WithTaxonomy(tree taxonomy.Tree) ValidateOption {
	return func(v *validator) { v.tree = tree }
}

type validator struct {
	tree taxonomy.Tree
	errs Errors
}

// Validate enforces the semantic invariants a parsed document must hold:
// referential integrity of data_source_id, temporal ordering, verification
// round monotonicity, score and threshold bounds, decision consistency
// against model outputs, the null-threshold rule, enum membership, and
// uniqueness of item and data source ids. Every violation found is
// reported; Validate returns nil only for a fully conforming document.
func Validate(doc *Document, opts ...ValidateOption) error {
	v := &validator{}
	for _, opt := range opts {
		opt(v)
	}

	v.dataSources(doc)
	seenItems := make(map[string]int, len(doc.Items))
	for i := range doc.Items {
		it := &doc.Items[i]
		path := fmt.Sprintf("items[%d]", i)
		if prev, dup := seenItems[it.ItemID]; dup {
			v.add(ClassValidation, KindDuplicateItemID, path+".item_id",
				fmt.Sprintf("%q already used by items[%d]", it.ItemID, prev))
		} else {
			seenItems[it.ItemID] = i
		}
		v.itemReferences(doc, it, path)
		v.itemTimes(it, path)
		v.modelOutputs(it, path)
		v.verifications(it, path)
	}
	v.enums(doc)
	return v.errs.orNil()
}

func (v *validator) add(class Class, kind Kind, field, detail string) {
	v.errs = append(v.errs, &Error{Class: class, Kind: kind, Field: field, Detail: detail})
}

func (v *validator) dataSources(doc *Document) {
	seen := make(map[string]int, len(doc.DataSources))
	for i := range doc.DataSources {
		id := doc.DataSources[i].DataSourceID
		path := fmt.Sprintf("data_sources[%d].data_source_id", i)
		if id == "" {
			v.add(ClassSchema, KindMissingRequiredField, path, "")
			continue
		}
		if prev, dup := seen[id]; dup {
			v.add(ClassValidation, KindDuplicateDataSourceID, path,
				fmt.Sprintf("%q already used by data_sources[%d]", id, prev))
		} else {
			seen[id] = i
		}
	}
}

func (v *validator) itemReferences(doc *Document, it *Item, path string) {
	if it.DataSourceID != "" {
		if doc.DataSource(it.DataSourceID) == nil {
			v.add(ClassReference, KindDanglingDataSourceID, path+".data_source_id",
				fmt.Sprintf("%q is not a declared data source", it.DataSourceID))
		}
		return
	}
	// Omitting the id is only allowed when exactly one data source exists.
	if len(doc.DataSources) > 1 {
		v.add(ClassReference, KindAmbiguousDataSource, path+".data_source_id",
			fmt.Sprintf("%d data sources declared; item must name one", len(doc.DataSources)))
	}
}

func (v *validator) itemTimes(it *Item, path string) {
	if it.AudioStartTime != nil && it.AudioEndTime != nil {
		if !it.AudioEndTime.After(*it.AudioStartTime) {
			v.add(ClassValidation, KindInvalidTimeRange, path+".audio_end_time",
				"audio_end_time must be after audio_start_time")
		}
	}
	if it.SegmentIndex != nil && *it.SegmentIndex < 0 {
		v.add(ClassValidation, KindInvalidFieldType, path+".segment_index", "must be >= 0")
	}
}

func (v *validator) modelOutputs(it *Item, path string) {
	seen := make(map[string]int, len(it.ModelOutputs))
	for j := range it.ModelOutputs {
		mo := &it.ModelOutputs[j]
		moPath := fmt.Sprintf("%s.model_outputs[%d]", path, j)
		if mo.Score < 0 || mo.Score > 1 {
			v.add(ClassValidation, KindScoreOutOfRange, moPath+".score",
				fmt.Sprintf("%g is outside [0,1]", mo.Score))
		}
		if prev, dup := seen[mo.ClassHierarchy]; dup {
			v.add(ClassValidation, KindDuplicateModelOutput, moPath+".class_hierarchy",
				fmt.Sprintf("%q already scored by model_outputs[%d]", mo.ClassHierarchy, prev))
		} else {
			seen[mo.ClassHierarchy] = j
		}
		v.taxonomyPath(mo.ClassHierarchy, moPath+".class_hierarchy")
	}
}

func (v *validator) verifications(it *Item, path string) {
	scored := make(map[string]struct{}, len(it.ModelOutputs))
	for j := range it.ModelOutputs {
		scored[it.ModelOutputs[j].ClassHierarchy] = struct{}{}
	}

	for j := range it.Verifications {
		round := &it.Verifications[j]
		vPath := fmt.Sprintf("%s.verifications[%d]", path, j)

		// Rounds are 1-based and strictly contiguous.
		if round.VerificationRound != j+1 {
			v.add(ClassValidation, KindNonMonotonicRound, vPath+".verification_round",
				fmt.Sprintf("got %d, want %d", round.VerificationRound, j+1))
		}
		if len(round.LabelDecisions) == 0 {
			v.add(ClassValidation, KindEmptyLabelDecisions, vPath+".label_decisions",
				"a verification round must decide at least one label")
		}

		for k := range round.LabelDecisions {
			ld := &round.LabelDecisions[k]
			ldPath := fmt.Sprintf("%s.label_decisions[%d]", vPath, k)

			switch ld.Decision {
			case DecisionAccepted, DecisionRejected:
				// Cannot accept or reject a label the model never scored.
				if _, ok := scored[ld.Label]; !ok {
					v.add(ClassValidation, KindDecisionWithoutModelOutput, ldPath+".label",
						fmt.Sprintf("%q has no model output on this item", ld.Label))
				}
				if ld.ThresholdUsed == nil {
					v.add(ClassValidation, KindInvalidNullThreshold, ldPath+".threshold_used",
						fmt.Sprintf("null threshold is only valid for decision %q", DecisionAdded))
				}
			case DecisionAdded:
			default:
				v.add(ClassValidation, KindInvalidEnumValue, ldPath+".decision",
					fmt.Sprintf("%q is not one of accepted, rejected, added", ld.Decision))
			}

			if ld.ThresholdUsed != nil && (*ld.ThresholdUsed < 0 || *ld.ThresholdUsed > 1) {
				v.add(ClassValidation, KindScoreOutOfRange, ldPath+".threshold_used",
					fmt.Sprintf("%g is outside [0,1]", *ld.ThresholdUsed))
			}
			v.taxonomyPath(ld.Label, ldPath+".label")
		}
	}
}

func (v *validator) enums(doc *Document) {
	validTask := false
	for _, t := range TaskTypes {
		if doc.TaskType == t {
			validTask = true
			break
		}
	}
	if !validTask {
		v.add(ClassValidation, KindInvalidEnumValue, "task_type",
			fmt.Sprintf("%q is not one of whale_detection, anomaly_detection, classification", doc.TaskType))
	}

	for i := range doc.Items {
		for j := range doc.Items[i].Verifications {
			round := &doc.Items[i].Verifications[j]
			vPath := fmt.Sprintf("items[%d].verifications[%d]", i, j)
			switch round.VerificationStatus {
			case "", StatusVerified, StatusRejected, StatusUncertain:
			default:
				v.add(ClassValidation, KindInvalidEnumValue, vPath+".verification_status",
					fmt.Sprintf("%q is not one of verified, rejected, uncertain", round.VerificationStatus))
			}
			switch round.Confidence {
			case "", ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
			default:
				v.add(ClassValidation, KindInvalidEnumValue, vPath+".confidence",
					fmt.Sprintf("%q is not one of high, medium, low", round.Confidence))
			}
			switch round.LabelSource {
			case "", SourceExpert, SourceAuto, SourceConsensus:
			default:
				v.add(ClassValidation, KindInvalidEnumValue, vPath+".label_source",
					fmt.Sprintf("%q is not one of expert, auto, consensus", round.LabelSource))
			}
		}
	}
}

func (v *validator) taxonomyPath(label, field string) {
	if v.tree == nil || label == "" {
		return
	}
	if !v.tree.Contains(label) {
		v.add(ClassValidation, KindUnknownTaxonomyPath, field,
			fmt.Sprintf("%q is not in the taxonomy", label))
	}
}
