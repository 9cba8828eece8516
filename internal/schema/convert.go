package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Convert normalizes documents written against earlier or alternate shapes
// into the canonical v2.0 wire form. Supported inputs:
//
//   - canonical v2.0 (passed through unchanged)
//   - flat labeling maps: {filename: [label, ...]}
//   - hydrophone-dashboard maps: {filename: {predicted_labels, probabilities,
//     verified_labels, verified_by, verified_at, notes, t0, t1}}
//   - whale prediction files with segments[] or flat predictions[]
//   - near-canonical documents carrying a singular data_source, a legacy
//     "version" key, or item-level mat_path / spectrogram_path / audio_path /
//     audio_timestamp / duration_sec / annotations fields
//
// Conversion is lossless and idempotent. Legacy fields with no canonical
// home fail with a conversion error naming the field; derived fields
// (summary) are recomputable and dropped. The output is expected to pass
// Validate on its own.
func Convert(raw []byte) ([]byte, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, &Error{Class: ClassSchema, Kind: KindMalformedJSON, Detail: err.Error()}
	}

	switch {
	case isCanonical(generic):
		return raw, nil
	case hasArray(generic, "segments") || hasArray(generic, "predictions"):
		return convertWhale(generic)
	case hasArray(generic, "items") || generic["items"] != nil:
		return convertNearCanonical(generic)
	default:
		// A schema_version key marks a structured document, not a flat
		// label map; anything but the current version is unsupported.
		if v, ok := generic["schema_version"].(string); ok {
			if v != Version {
				return nil, &Error{
					Class: ClassSchema, Kind: KindUnsupportedVersion,
					Field: "schema_version", Detail: fmt.Sprintf("got %q, want %q", v, Version),
				}
			}
			return convertNearCanonical(generic)
		}
		return convertLabelMap(generic)
	}
}

// MediaExtensions are filename suffixes stripped when deriving item ids
// from filenames, and used to place the original filename under paths.
var MediaExtensions = []string{".mat", ".npy", ".png", ".jpg", ".jpeg", ".wav", ".flac", ".mp3"}

// NormalizeItemKey derives an item id from a filename by stripping a known
// media extension.
func NormalizeItemKey(key string) string {
	lower := strings.ToLower(key)
	for _, ext := range MediaExtensions {
		if strings.HasSuffix(lower, ext) {
			return key[:len(key)-len(ext)]
		}
	}
	return key
}

// finWhalePath is the class whale-detection pipelines score against.
const finWhalePath = "Biophony > Marine mammal > Cetacean > Baleen whale > Fin whale"

func isCanonical(root map[string]any) bool {
	if v, _ := root["schema_version"].(string); v != Version {
		return false
	}
	for _, k := range []string{"version", "data_source", "source", "summary"} {
		if _, ok := root[k]; ok {
			return false
		}
	}
	items, _ := root["items"].([]any)
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			return false
		}
		for _, k := range []string{"mat_path", "spectrogram_path", "spectrogram_png_path",
			"audio_path", "audio_file", "audio_timestamp", "duration_sec", "timestamps", "annotations"} {
			if _, ok := item[k]; ok {
				return false
			}
		}
	}
	return true
}

func hasArray(root map[string]any, key string) bool {
	_, ok := root[key].([]any)
	return ok
}

// convertNearCanonical handles v2.0-shaped documents carrying legacy root or
// item fields: the keys are rewritten in place, then the whole map must
// decode as a canonical document.
func convertNearCanonical(root map[string]any) ([]byte, error) {
	if _, ok := root["schema_version"]; !ok {
		if v, _ := root["version"].(string); v != "" {
			root["schema_version"] = v
		} else {
			root["schema_version"] = Version
		}
	}
	delete(root, "version")
	// Derived bookkeeping; recomputed on demand, not document state.
	delete(root, "summary")
	delete(root, "source")

	if _, ok := root["created_at"]; !ok {
		root["created_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	if _, ok := root["task_type"]; !ok {
		root["task_type"] = string(TaskClassification)
	}

	if err := liftSingularDataSource(root); err != nil {
		return nil, err
	}

	items, _ := root["items"].([]any)
	for i, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			return nil, &Error{
				Class: ClassConversion, Kind: KindUnmappableField,
				Field: fmt.Sprintf("items[%d]", i), Detail: "item is not an object",
			}
		}
		if err := normalizeItem(item, fmt.Sprintf("items[%d]", i)); err != nil {
			return nil, err
		}
	}

	// Every remaining key must have a canonical home.
	for _, e := range unknownFields(root) {
		return nil, &Error{Class: ClassConversion, Kind: KindUnmappableField, Field: e.Field}
	}

	return remarshal(root)
}

// normalizeItem relocates legacy item fields into their canonical homes.
func normalizeItem(item map[string]any, path string) error {
	paths, _ := item["paths"].(map[string]any)
	ensurePaths := func() map[string]any {
		if paths == nil {
			paths = map[string]any{}
		}
		return paths
	}

	if v, ok := item["mat_path"]; ok {
		if s, _ := v.(string); s != "" {
			ensurePaths()["spectrogram_mat_path"] = s
		}
		delete(item, "mat_path")
	}
	if v, ok := item["spectrogram_path"]; ok {
		if s, _ := v.(string); s != "" {
			ensurePaths()["spectrogram_png_path"] = s
		}
		delete(item, "spectrogram_path")
	}
	if v, ok := item["spectrogram_png_path"]; ok {
		if s, _ := v.(string); s != "" {
			ensurePaths()["spectrogram_png_path"] = s
		}
		delete(item, "spectrogram_png_path")
	}
	for _, key := range []string{"audio_path", "audio_file"} {
		if v, ok := item[key]; ok {
			if s, _ := v.(string); s != "" {
				ensurePaths()["audio_path"] = s
			}
			delete(item, key)
		}
	}
	if paths != nil {
		item["paths"] = paths
	}

	if v, ok := item["audio_timestamp"]; ok {
		if s, _ := v.(string); s != "" {
			if t := parseTime(s); t != nil {
				item["audio_start_time"] = t.Format(time.RFC3339)
			} else {
				return &Error{
					Class: ClassConversion, Kind: KindUnmappableField,
					Field: path + ".audio_timestamp", Detail: fmt.Sprintf("unparseable timestamp %q", s),
				}
			}
		}
		delete(item, "audio_timestamp")
	}
	if ts, ok := item["timestamps"].(map[string]any); ok {
		if s, _ := ts["start"].(string); s != "" {
			if t := parseTime(s); t != nil {
				item["audio_start_time"] = t.Format(time.RFC3339)
			}
		}
		if s, _ := ts["end"].(string); s != "" {
			if t := parseTime(s); t != nil {
				item["audio_end_time"] = t.Format(time.RFC3339)
			}
		}
		delete(item, "timestamps")
	}

	// end = start + duration_sec is a documented assumption, not a stated
	// contract; when the start is missing the end stays unset.
	if v, ok := item["duration_sec"]; ok {
		if dur, isNum := v.(float64); isNum && dur > 0 {
			if s, _ := item["audio_start_time"].(string); s != "" {
				if t := parseTime(s); t != nil {
					end := t.Add(time.Duration(dur * float64(time.Second)))
					item["audio_end_time"] = end.Format(time.RFC3339)
				}
			}
		}
		delete(item, "duration_sec")
	}

	if ann, ok := item["annotations"]; ok {
		if err := liftAnnotations(item, ann, path); err != nil {
			return err
		}
		delete(item, "annotations")
	}
	return nil
}

// liftAnnotations upgrades a legacy annotations object into a round-1
// migrated verification, unless the item already carries a ledger.
func liftAnnotations(item map[string]any, raw any, path string) error {
	if raw == nil {
		return nil
	}
	ann, ok := raw.(map[string]any)
	if !ok {
		return &Error{
			Class: ClassConversion, Kind: KindUnmappableField,
			Field: path + ".annotations", Detail: "annotations is not an object",
		}
	}
	if rounds, ok := item["verifications"].([]any); ok && len(rounds) > 0 {
		return nil
	}

	labels := stringList(ann["labels"])
	if len(labels) == 0 {
		if _, ok := item["verifications"]; !ok {
			item["verifications"] = []any{}
		}
		return nil
	}

	verifiedAt, _ := ann["annotated_at"].(string)
	if verifiedAt == "" {
		verifiedAt = time.Now().UTC().Format(time.RFC3339)
	}
	verifiedBy, _ := ann["annotated_by"].(string)
	if verifiedBy == "" {
		verifiedBy = "migrated"
	}
	notes, _ := ann["notes"].(string)

	item["verifications"] = []any{migratedRound(verifiedAt, verifiedBy, notes, labels)}
	return nil
}

func migratedRound(verifiedAt, verifiedBy, notes string, labels []string) map[string]any {
	decisions := make([]any, len(labels))
	for i, l := range labels {
		decisions[i] = map[string]any{
			"label":          l,
			"decision":       string(DecisionAdded),
			"threshold_used": nil,
		}
	}
	round := map[string]any{
		"verified_at":         verifiedAt,
		"verified_by":         verifiedBy,
		"verification_round":  1,
		"verification_status": string(StatusVerified),
		"label_decisions":     decisions,
		"label_source":        string(SourceExpert),
	}
	if notes != "" {
		round["notes"] = notes
	}
	return round
}

func liftSingularDataSource(root map[string]any) error {
	raw, ok := root["data_source"]
	if !ok {
		return nil
	}
	defer delete(root, "data_source")

	ds, ok := raw.(map[string]any)
	if !ok || len(ds) == 0 {
		return nil
	}
	if _, ok := ds["data_source_id"]; !ok {
		if code, _ := ds["device_code"].(string); code != "" {
			ds["data_source_id"] = code
		} else {
			return &Error{
				Class: ClassConversion, Kind: KindUnmappableField,
				Field: "data_source", Detail: "no data_source_id or device_code to key the source by",
			}
		}
	}
	// Legacy singular sources used "location" for the location name.
	if loc, ok := ds["location"]; ok {
		if s, _ := loc.(string); s != "" {
			ds["location_name"] = s
		}
		delete(ds, "location")
	}
	if _, exists := root["data_sources"]; !exists {
		root["data_sources"] = []any{ds}
	}
	return nil
}

// convertLabelMap handles the two filename-keyed legacy shapes: flat label
// lists and hydrophone-dashboard entries. Items come out in filename order.
func convertLabelMap(root map[string]any) ([]byte, error) {
	doc := New(TaskClassification)

	names := make([]string, 0, len(root))
	for name := range root {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		var it Item
		var err error
		switch entry := root[name].(type) {
		case []any:
			it, err = flatItem(name, stringList(entry))
		case string:
			it, err = flatItem(name, []string{entry})
		case map[string]any:
			it, err = dashboardItem(name, entry)
		default:
			err = &Error{
				Class: ClassConversion, Kind: KindUnmappableField,
				Field: name, Detail: fmt.Sprintf("unsupported entry type %T", entry),
			}
		}
		if err != nil {
			return nil, err
		}
		if addErr := doc.AddItem(it); addErr != nil {
			return nil, addErr
		}
	}
	return Serialize(doc)
}

func flatItem(filename string, labels []string) (Item, error) {
	it := Item{
		ItemID:        NormalizeItemKey(filename),
		Paths:         pathsForFilename(filename),
		Verifications: []Verification{},
	}
	if len(labels) > 0 {
		it.Verifications = append(it.Verifications, Verification{
			VerifiedAt:         time.Now().UTC(),
			VerifiedBy:         "migrated",
			VerificationRound:  1,
			VerificationStatus: StatusVerified,
			LabelSource:        SourceExpert,
			LabelDecisions:     addedDecisions(labels),
		})
	}
	return it, nil
}

// dashboardItem maps one hydrophone-dashboard entry. Probabilities become
// model outputs; verified labels become a migrated round of added decisions
// (the dashboard recorded no thresholds, so accepted/rejected verdicts
// cannot be reconstructed).
func dashboardItem(filename string, entry map[string]any) (Item, error) {
	for key := range entry {
		switch key {
		case "predicted_labels", "probabilities", "verified_labels",
			"verified_by", "verified_at", "notes", "t0", "t1":
		default:
			return Item{}, &Error{
				Class: ClassConversion, Kind: KindUnmappableField,
				Field: filename + "." + key,
			}
		}
	}

	it := Item{
		ItemID:        NormalizeItemKey(filename),
		Paths:         pathsForFilename(filename),
		Verifications: []Verification{},
	}

	if t0, _ := entry["t0"].(string); t0 != "" {
		it.AudioStartTime = parseTime(t0)
	}
	if t1, _ := entry["t1"].(string); t1 != "" {
		it.AudioEndTime = parseTime(t1)
	}

	if probs, ok := entry["probabilities"].(map[string]any); ok {
		classes := make([]string, 0, len(probs))
		for c := range probs {
			classes = append(classes, c)
		}
		sort.Strings(classes)
		for _, c := range classes {
			score, isNum := probs[c].(float64)
			if !isNum {
				return Item{}, &Error{
					Class: ClassConversion, Kind: KindUnmappableField,
					Field: filename + ".probabilities." + c, Detail: "score is not a number",
				}
			}
			it.ModelOutputs = append(it.ModelOutputs, ModelOutput{ClassHierarchy: c, Score: score})
		}
	}

	if verified := entry["verified_labels"]; verified != nil {
		labels := stringList(verified)
		verifiedAt, _ := entry["verified_at"].(string)
		at := parseTime(verifiedAt)
		if at == nil {
			now := time.Now().UTC()
			at = &now
		}
		verifiedBy, _ := entry["verified_by"].(string)
		if verifiedBy == "" {
			verifiedBy = "migrated"
		}
		notes, _ := entry["notes"].(string)
		if len(labels) > 0 {
			it.Verifications = append(it.Verifications, Verification{
				VerifiedAt:         *at,
				VerifiedBy:         verifiedBy,
				VerificationRound:  1,
				VerificationStatus: StatusVerified,
				LabelSource:        SourceExpert,
				LabelDecisions:     addedDecisions(labels),
				Notes:              notes,
			})
		}
	}
	return it, nil
}

// convertWhale handles whale prediction files: segments[] with window-level
// detail, or a flat predictions[] list.
func convertWhale(root map[string]any) ([]byte, error) {
	doc := New(TaskWhaleDetection)

	if rawModel, ok := root["model"].(map[string]any); ok && len(rawModel) > 0 {
		if err := checkKnownKeys(rawModel, modelKeys, "model"); err != nil {
			return nil, err
		}
		var m Model
		if err := decodeInto(rawModel, &m, "model"); err != nil {
			return nil, err
		}
		doc.SetModel(m)
	}
	if rawDS, ok := root["data_source"].(map[string]any); ok && len(rawDS) > 0 {
		wrapper := map[string]any{"data_source": rawDS}
		if err := liftSingularDataSource(wrapper); err != nil {
			return nil, err
		}
		list, _ := wrapper["data_sources"].([]any)
		for _, raw := range list {
			src := raw.(map[string]any)
			if err := checkKnownKeys(src, dataSourceKeys, "data_source"); err != nil {
				return nil, err
			}
			var ds DataSource
			if err := decodeInto(src, &ds, "data_source"); err != nil {
				return nil, err
			}
			if err := doc.AddDataSource(ds); err != nil {
				return nil, err
			}
		}
	}
	if cfg, ok := root["spectrogram_config"].(map[string]any); ok && len(cfg) > 0 {
		doc.SetSpectrogramConfig(cfg)
	}

	bindSource := ""
	if len(doc.DataSources) == 1 {
		bindSource = doc.DataSources[0].DataSourceID
	}

	if segments, ok := root["segments"].([]any); ok {
		for i, raw := range segments {
			seg, ok := raw.(map[string]any)
			if !ok {
				return nil, &Error{
					Class: ClassConversion, Kind: KindUnmappableField,
					Field: fmt.Sprintf("segments[%d]", i), Detail: "segment is not an object",
				}
			}
			it, err := whaleSegmentItem(seg, fmt.Sprintf("segments[%d]", i), bindSource)
			if err != nil {
				return nil, err
			}
			if addErr := doc.AddItem(it); addErr != nil {
				return nil, addErr
			}
		}
	} else if preds, ok := root["predictions"].([]any); ok {
		for i, raw := range preds {
			pred, ok := raw.(map[string]any)
			if !ok {
				return nil, &Error{
					Class: ClassConversion, Kind: KindUnmappableField,
					Field: fmt.Sprintf("predictions[%d]", i), Detail: "prediction is not an object",
				}
			}
			it, err := whalePredictionItem(pred, fmt.Sprintf("predictions[%d]", i), bindSource)
			if err != nil {
				return nil, err
			}
			if addErr := doc.AddItem(it); addErr != nil {
				return nil, addErr
			}
		}
	}
	return Serialize(doc)
}

func whaleSegmentItem(seg map[string]any, path, bindSource string) (Item, error) {
	id, _ := seg["segment_id"].(string)
	if id == "" {
		return Item{}, &Error{
			Class: ClassConversion, Kind: KindUnmappableField,
			Field: path + ".segment_id", Detail: "missing segment_id",
		}
	}
	it := Item{ItemID: id, DataSourceID: bindSource, Verifications: []Verification{}}

	if s, _ := seg["audio_timestamp"].(string); s != "" {
		it.AudioStartTime = parseTime(s)
	}
	if dur, ok := seg["duration_sec"].(float64); ok && dur > 0 && it.AudioStartTime != nil {
		end := it.AudioStartTime.Add(time.Duration(dur * float64(time.Second)))
		it.AudioEndTime = &end
	}
	if idx, ok := seg["segment_index"].(float64); ok {
		v := int(idx)
		it.SegmentIndex = &v
	}
	it.Paths = whalePaths(seg)

	score, _ := seg["max_confidence"].(float64)
	it.ModelOutputs = []ModelOutput{{ClassHierarchy: finWhalePath, Score: score}}

	metadata := map[string]any{}
	if windows, ok := seg["windows"]; ok {
		metadata["windows"] = windows
	}
	if np, ok := seg["num_positive"]; ok {
		metadata["num_positive"] = np
	}
	if len(metadata) > 0 {
		it.Metadata = metadata
	}
	return it, nil
}

func whalePredictionItem(pred map[string]any, path, bindSource string) (Item, error) {
	id, _ := pred["file_id"].(string)
	if id == "" {
		return Item{}, &Error{
			Class: ClassConversion, Kind: KindUnmappableField,
			Field: path + ".file_id", Detail: "missing file_id",
		}
	}
	it := Item{ItemID: id, DataSourceID: bindSource, Verifications: []Verification{}}

	if s, _ := pred["audio_timestamp"].(string); s != "" {
		it.AudioStartTime = parseTime(s)
	}
	if dur, ok := pred["duration_sec"].(float64); ok && dur > 0 && it.AudioStartTime != nil {
		end := it.AudioStartTime.Add(time.Duration(dur * float64(time.Second)))
		it.AudioEndTime = &end
	}
	it.Paths = whalePaths(pred)

	score, _ := pred["confidence"].(float64)
	it.ModelOutputs = []ModelOutput{{ClassHierarchy: finWhalePath, Score: score}}
	return it, nil
}

func whalePaths(entry map[string]any) *Paths {
	p := &Paths{}
	if s, _ := entry["mat_path"].(string); s != "" {
		p.SpectrogramMatPath = s
	}
	if s, _ := entry["spectrogram_path"].(string); s != "" {
		p.SpectrogramPNGPath = s
	}
	if s, _ := entry["audio_path"].(string); s != "" {
		p.AudioPath = s
	}
	if *p == (Paths{}) {
		return nil
	}
	return p
}

func pathsForFilename(filename string) *Paths {
	lower := strings.ToLower(filename)
	p := &Paths{}
	switch {
	case strings.HasSuffix(lower, ".mat"), strings.HasSuffix(lower, ".npy"):
		p.SpectrogramMatPath = filename
	case strings.HasSuffix(lower, ".png"), strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		p.SpectrogramPNGPath = filename
	case strings.HasSuffix(lower, ".wav"), strings.HasSuffix(lower, ".flac"), strings.HasSuffix(lower, ".mp3"):
		p.AudioPath = filename
	default:
		return nil
	}
	return p
}

func addedDecisions(labels []string) []LabelDecision {
	out := make([]LabelDecision, len(labels))
	for i, l := range labels {
		out[i] = LabelDecision{Label: l, Decision: DecisionAdded, ThresholdUsed: nil}
	}
	return out
}

func stringList(raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		if s, ok := raw.(string); ok && s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	for _, v := range list {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// timeLayouts accepted from legacy producers; naive timestamps are UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) *time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func checkKnownKeys(obj map[string]any, allowed map[string]struct{}, prefix string) error {
	for k := range obj {
		if _, ok := allowed[k]; !ok {
			return &Error{Class: ClassConversion, Kind: KindUnmappableField, Field: joinPath(prefix, k)}
		}
	}
	return nil
}

func decodeInto(obj map[string]any, target any, field string) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return &Error{Class: ClassConversion, Kind: KindUnmappableField, Field: field, Detail: err.Error()}
	}
	if err := json.Unmarshal(data, target); err != nil {
		return &Error{Class: ClassConversion, Kind: KindUnmappableField, Field: field, Detail: err.Error()}
	}
	return nil
}

func remarshal(root map[string]any) ([]byte, error) {
	data, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("schema: convert: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Class: ClassConversion, Kind: KindUnmappableField, Detail: err.Error()}
	}
	return Serialize(&doc)
}
