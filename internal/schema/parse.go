package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParseMode controls how unknown fields are handled.
type ParseMode int

const (
	// Strict rejects unrecognized keys at every level; the canonical schema
	// is closed.
	Strict ParseMode = iota
	// Lenient tolerates unknown keys and drops them (migration mode).
	Lenient
)

// Allowed key sets per object level. spectrogram_config and item metadata
// are deliberately open: they hold free-form tool configuration.
var (
	rootKeys = keySet("schema_version", "created_at", "updated_at", "task_type",
		"model", "data_sources", "spectrogram_config", "pipeline", "items")
	modelKeys = keySet("model_id", "model_version", "architecture",
		"checkpoint_path", "checkpoint_url", "trained_at", "wandb_run_id",
		"training_dataset_id", "training_dataset_version", "training_dataset_url",
		"training_data_time_range", "input_shape", "output_classes")
	dataSourceKeys = keySet("data_source_id", "device_code", "deployment_id",
		"location_name", "site_code", "latitude", "longitude", "depth_m",
		"channel", "sample_rate", "is_calibrated", "calibration_reference",
		"date_from", "date_to")
	pipelineKeys = keySet("pipeline_version", "pipeline_commit", "pipeline_repo")
	itemKeys     = keySet("item_id", "data_source_id", "audio_start_time",
		"audio_end_time", "segment_index", "model_outputs", "verifications",
		"paths", "metadata")
	pathsKeys       = keySet("spectrogram_mat_path", "spectrogram_png_path", "audio_path")
	modelOutputKeys = keySet("class_hierarchy", "class_id", "score")
	verificationKeys = keySet("verified_at", "verified_by", "verification_round",
		"verification_status", "reviewer_affiliation", "label_decisions",
		"confidence", "notes", "label_source", "taxonomy_version")
	labelDecisionKeys = keySet("label", "decision", "threshold_used")
)

func keySet(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

// ProfileOf infers the profile of a raw document without fully parsing it:
// predictions when both a model and scored items are present, labels
// otherwise.
func ProfileOf(raw []byte) Profile {
	var probe struct {
		Model *struct {
			ModelID string `json:"model_id"`
		} `json:"model"`
		Items []struct {
			ModelOutputs []json.RawMessage `json:"model_outputs"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ProfileLabels
	}
	if probe.Model == nil || probe.Model.ModelID == "" {
		return ProfileLabels
	}
	for _, it := range probe.Items {
		if len(it.ModelOutputs) > 0 {
			return ProfilePredictions
		}
	}
	return ProfileLabels
}

// Parse decodes raw JSON into a typed Document. In Strict mode unknown keys
// fail with an unknown_field error naming the exact path; required fields
// for the inferred profile are checked in both modes. Parse never partially
// applies: the document is either fully accepted or rejected.
func Parse(raw []byte, mode ParseMode) (*Document, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, &Error{Class: ClassSchema, Kind: KindMalformedJSON, Detail: err.Error()}
	}

	var errs Errors

	version, _ := generic["schema_version"].(string)
	switch version {
	case Version:
	case "":
		errs = append(errs, &Error{Class: ClassSchema, Kind: KindMissingRequiredField, Field: "schema_version"})
	default:
		errs = append(errs, &Error{
			Class: ClassSchema, Kind: KindUnsupportedVersion, Field: "schema_version",
			Detail: fmt.Sprintf("got %q, want %q", version, Version),
		})
	}

	if mode == Strict {
		errs = append(errs, unknownFields(generic)...)
	}
	if err := errs.orNil(); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, &Error{Class: ClassSchema, Kind: KindInvalidFieldType, Detail: err.Error()}
	}

	errs = append(errs, requiredFields(&doc, generic)...)
	if err := errs.orNil(); err != nil {
		return nil, err
	}

	// Verifications are always present on the wire, never null.
	for i := range doc.Items {
		if doc.Items[i].Verifications == nil {
			doc.Items[i].Verifications = []Verification{}
		}
	}
	return &doc, nil
}

// Serialize renders a Document back to the canonical wire shape: two-space
// indentation, unset optionals omitted (never emitted as null), item
// verifications always present as an array, threshold_used always explicit.
func Serialize(d *Document) ([]byte, error) {
	out := *d
	out.SchemaVersion = Version
	if out.Items == nil {
		out.Items = []Item{}
	} else {
		items := make([]Item, len(out.Items))
		copy(items, out.Items)
		for i := range items {
			if items[i].Verifications == nil {
				items[i].Verifications = []Verification{}
			}
		}
		out.Items = items
	}
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("schema: serialize: %w", err)
	}
	return data, nil
}

// unknownFields walks the generic document against the closed key sets and
// reports every unrecognized key with its JSON path.
func unknownFields(root map[string]any) Errors {
	var errs Errors

	report := func(path string) {
		errs = append(errs, &Error{Class: ClassSchema, Kind: KindUnknownField, Field: path})
	}

	checkObject := func(obj map[string]any, allowed map[string]struct{}, prefix string) {
		for k := range obj {
			if _, ok := allowed[k]; !ok {
				report(joinPath(prefix, k))
			}
		}
	}

	checkObject(root, rootKeys, "")

	if m, ok := root["model"].(map[string]any); ok {
		checkObject(m, modelKeys, "model")
	}
	if p, ok := root["pipeline"].(map[string]any); ok {
		checkObject(p, pipelineKeys, "pipeline")
	}
	if sources, ok := root["data_sources"].([]any); ok {
		for i, s := range sources {
			if ds, ok := s.(map[string]any); ok {
				checkObject(ds, dataSourceKeys, fmt.Sprintf("data_sources[%d]", i))
			}
		}
	}
	items, _ := root["items"].([]any)
	for i, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		itemPath := fmt.Sprintf("items[%d]", i)
		checkObject(item, itemKeys, itemPath)

		if p, ok := item["paths"].(map[string]any); ok {
			checkObject(p, pathsKeys, itemPath+".paths")
		}
		if outputs, ok := item["model_outputs"].([]any); ok {
			for j, o := range outputs {
				if mo, ok := o.(map[string]any); ok {
					checkObject(mo, modelOutputKeys, fmt.Sprintf("%s.model_outputs[%d]", itemPath, j))
				}
			}
		}
		if rounds, ok := item["verifications"].([]any); ok {
			for j, r := range rounds {
				v, ok := r.(map[string]any)
				if !ok {
					continue
				}
				vPath := fmt.Sprintf("%s.verifications[%d]", itemPath, j)
				checkObject(v, verificationKeys, vPath)
				if decisions, ok := v["label_decisions"].([]any); ok {
					for k, d := range decisions {
						if ld, ok := d.(map[string]any); ok {
							checkObject(ld, labelDecisionKeys, fmt.Sprintf("%s.label_decisions[%d]", vPath, k))
						}
					}
				}
			}
		}
	}
	return errs
}

// requiredFields checks the presence rules for the inferred profile.
// Semantic invariants (ranges, ordering, references) belong to Validate.
func requiredFields(doc *Document, generic map[string]any) Errors {
	var errs Errors
	missing := func(path string) {
		errs = append(errs, &Error{Class: ClassSchema, Kind: KindMissingRequiredField, Field: path})
	}

	if _, ok := generic["task_type"]; !ok {
		missing("task_type")
	}
	if _, ok := generic["created_at"]; !ok {
		missing("created_at")
	}
	if _, ok := generic["items"]; !ok {
		missing("items")
	}

	predictions := doc.Profile() == ProfilePredictions
	if doc.Model != nil && doc.Model.ModelID == "" {
		missing("model.model_id")
	}
	if predictions && len(doc.DataSources) == 0 {
		missing("data_sources")
	}

	for i := range doc.Items {
		it := &doc.Items[i]
		itemPath := fmt.Sprintf("items[%d]", i)
		if it.ItemID == "" {
			missing(itemPath + ".item_id")
		}
		if predictions {
			if len(it.ModelOutputs) == 0 {
				missing(itemPath + ".model_outputs")
			}
			if it.AudioStartTime == nil {
				missing(itemPath + ".audio_start_time")
			}
			if it.AudioEndTime == nil {
				missing(itemPath + ".audio_end_time")
			}
		}
		for j := range it.ModelOutputs {
			if it.ModelOutputs[j].ClassHierarchy == "" {
				missing(fmt.Sprintf("%s.model_outputs[%d].class_hierarchy", itemPath, j))
			}
		}
		for j := range it.Verifications {
			v := &it.Verifications[j]
			vPath := fmt.Sprintf("%s.verifications[%d]", itemPath, j)
			if v.VerifiedBy == "" {
				missing(vPath + ".verified_by")
			}
			if v.VerifiedAt.IsZero() {
				missing(vPath + ".verified_at")
			}
			for k := range v.LabelDecisions {
				if v.LabelDecisions[k].Label == "" {
					missing(fmt.Sprintf("%s.label_decisions[%d].label", vPath, k))
				}
			}
		}
	}
	return errs
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
