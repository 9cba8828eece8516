// Package schema implements the Oceans 3.0 Unified Schema v2.0: the typed
// document model for hydrophone model predictions and expert verifications,
// plus parsing, validation, legacy-format conversion, and the append-only
// verification ledger.
package schema

import "time"

// Version is the only schema_version this package reads or writes.
const Version = "2.0"

// TaskType describes the inference task a document belongs to.
type TaskType string

const (
	TaskWhaleDetection   TaskType = "whale_detection"
	TaskAnomalyDetection TaskType = "anomaly_detection"
	TaskClassification   TaskType = "classification"
)

// TaskTypes lists every accepted task_type value.
var TaskTypes = []TaskType{TaskWhaleDetection, TaskAnomalyDetection, TaskClassification}

// Profile identifies which optional fields a document carries.
// Predictions documents are model-driven; labels documents record manual
// annotation sessions and rely solely on verifications.
type Profile string

const (
	ProfilePredictions Profile = "predictions"
	ProfileLabels      Profile = "labels"
)

// Decision is a per-label verdict within a verification round.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
	DecisionAdded    Decision = "added"
)

// Status is the reviewer's overall verdict for a verification round.
// StatusUnreviewed and StatusReviewed are view-level states computed by
// ItemStatus; they never appear on the wire.
type Status string

const (
	StatusVerified  Status = "verified"
	StatusRejected  Status = "rejected"
	StatusUncertain Status = "uncertain"

	StatusUnreviewed Status = "unreviewed"
	StatusReviewed   Status = "reviewed"
)

// Confidence is the reviewer's self-assessed confidence.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// LabelSource records where a round's labels came from.
type LabelSource string

const (
	SourceExpert    LabelSource = "expert"
	SourceAuto      LabelSource = "auto"
	SourceConsensus LabelSource = "consensus"
)

// Document is the root container. One document is created per data batch
// (an inference run or a labeling session) and grows only by appending
// verification rounds; saves overwrite the whole file.
type Document struct {
	SchemaVersion     string         `json:"schema_version"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         *time.Time     `json:"updated_at,omitempty"`
	TaskType          TaskType       `json:"task_type"`
	Model             *Model         `json:"model,omitempty"`
	DataSources       []DataSource   `json:"data_sources,omitempty"`
	SpectrogramConfig map[string]any `json:"spectrogram_config,omitempty"`
	Pipeline          *Pipeline      `json:"pipeline,omitempty"`
	Items             []Item         `json:"items"`
}

// Model holds inference-model provenance. ModelID is a content hash of the
// model weights ("sha256-..."), giving deterministic identity across runs.
type Model struct {
	ModelID                string   `json:"model_id"`
	ModelVersion           string   `json:"model_version,omitempty"`
	Architecture           string   `json:"architecture,omitempty"`
	CheckpointPath         string   `json:"checkpoint_path,omitempty"`
	CheckpointURL          string   `json:"checkpoint_url,omitempty"`
	TrainedAt              string   `json:"trained_at,omitempty"`
	WandbRunID             string   `json:"wandb_run_id,omitempty"`
	TrainingDatasetID      string   `json:"training_dataset_id,omitempty"`
	TrainingDatasetVersion string   `json:"training_dataset_version,omitempty"`
	TrainingDatasetURL     string   `json:"training_dataset_url,omitempty"`
	TrainingDataTimeRange  string   `json:"training_data_time_range,omitempty"`
	InputShape             []int    `json:"input_shape,omitempty"`
	OutputClasses          []string `json:"output_classes,omitempty"`
}

// DataSource identifies one hydrophone deployment. Items reference it by
// data_source_id; descriptive attributes live here and are never repeated
// on items.
type DataSource struct {
	DataSourceID         string   `json:"data_source_id"`
	DeviceCode           string   `json:"device_code,omitempty"`
	DeploymentID         string   `json:"deployment_id,omitempty"`
	LocationName         string   `json:"location_name,omitempty"`
	SiteCode             string   `json:"site_code,omitempty"`
	Latitude             *float64 `json:"latitude,omitempty"`
	Longitude            *float64 `json:"longitude,omitempty"`
	DepthM               *float64 `json:"depth_m,omitempty"`
	Channel              string   `json:"channel,omitempty"`
	SampleRate           *float64 `json:"sample_rate,omitempty"`
	IsCalibrated         *bool    `json:"is_calibrated,omitempty"`
	CalibrationReference string   `json:"calibration_reference,omitempty"`
	DateFrom             string   `json:"date_from,omitempty"`
	DateTo               string   `json:"date_to,omitempty"`
}

// Pipeline records which inference pipeline produced a document.
type Pipeline struct {
	PipelineVersion string `json:"pipeline_version,omitempty"`
	PipelineCommit  string `json:"pipeline_commit,omitempty"`
	PipelineRepo    string `json:"pipeline_repo,omitempty"`
}

// Item is one reviewable display unit: a spectrogram/audio clip with the
// model's raw scores and the verification rounds recorded against it.
type Item struct {
	ItemID         string         `json:"item_id"`
	DataSourceID   string         `json:"data_source_id,omitempty"`
	AudioStartTime *time.Time     `json:"audio_start_time,omitempty"`
	AudioEndTime   *time.Time     `json:"audio_end_time,omitempty"`
	SegmentIndex   *int           `json:"segment_index,omitempty"`
	ModelOutputs   []ModelOutput  `json:"model_outputs,omitempty"`
	Verifications  []Verification `json:"verifications"`
	Paths          *Paths         `json:"paths,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Paths holds relative file references consumed by the rendering layer.
// This package never opens or interprets the referenced files.
type Paths struct {
	SpectrogramMatPath string `json:"spectrogram_mat_path,omitempty"`
	SpectrogramPNGPath string `json:"spectrogram_png_path,omitempty"`
	AudioPath          string `json:"audio_path,omitempty"`
}

// ModelOutput is one raw, unthresholded class score for an item.
type ModelOutput struct {
	ClassHierarchy string  `json:"class_hierarchy"`
	ClassID        string  `json:"class_id,omitempty"`
	Score          float64 `json:"score"`
}

// Verification is one review round. Rounds are append-only: once written
// they are never mutated or deleted, and the last element of an item's list
// is the authoritative current state.
type Verification struct {
	VerifiedAt          time.Time       `json:"verified_at"`
	VerifiedBy          string          `json:"verified_by"`
	VerificationRound   int             `json:"verification_round"`
	VerificationStatus  Status          `json:"verification_status,omitempty"`
	ReviewerAffiliation string          `json:"reviewer_affiliation,omitempty"`
	LabelDecisions      []LabelDecision `json:"label_decisions"`
	Confidence          Confidence      `json:"confidence,omitempty"`
	Notes               string          `json:"notes,omitempty"`
	LabelSource         LabelSource     `json:"label_source,omitempty"`
	TaxonomyVersion     string          `json:"taxonomy_version,omitempty"`
}

// LabelDecision is one class-level verdict. ThresholdUsed is serialized as
// an explicit null for manual additions; a nil pointer is only legal when
// Decision is DecisionAdded.
type LabelDecision struct {
	Label         string   `json:"label"`
	Decision      Decision `json:"decision"`
	ThresholdUsed *float64 `json:"threshold_used"`
}

// Profile infers the document's profile: predictions when a model and at
// least one scored item are present, labels otherwise.
func (d *Document) Profile() Profile {
	if d.Model == nil || d.Model.ModelID == "" {
		return ProfileLabels
	}
	for i := range d.Items {
		if len(d.Items[i].ModelOutputs) > 0 {
			return ProfilePredictions
		}
	}
	return ProfileLabels
}

// Item returns the item with the given id, or nil.
func (d *Document) Item(id string) *Item {
	for i := range d.Items {
		if d.Items[i].ItemID == id {
			return &d.Items[i]
		}
	}
	return nil
}

// DataSource returns the data source with the given id, or nil.
func (d *Document) DataSource(id string) *DataSource {
	for i := range d.DataSources {
		if d.DataSources[i].DataSourceID == id {
			return &d.DataSources[i]
		}
	}
	return nil
}

// Source resolves the data source an item belongs to. An item without an
// explicit data_source_id binds to the document's single data source; with
// more than one source present the binding is ambiguous and nil is returned.
func (d *Document) Source(it *Item) *DataSource {
	if it.DataSourceID != "" {
		return d.DataSource(it.DataSourceID)
	}
	if len(d.DataSources) == 1 {
		return &d.DataSources[0]
	}
	return nil
}
