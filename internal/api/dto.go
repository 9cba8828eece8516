package api

import (
	"encoding/json"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/Spiffical/hydrolabel/internal/review"
	"github.com/Spiffical/hydrolabel/internal/schema"
)

var jsonPathPattern = regexp.MustCompile(`\.json$`)

// ImportDocumentRequest is the request body for importing a document.
// Document accepts the canonical form or any supported legacy shape.
type ImportDocumentRequest struct {
	Path     string          `json:"path"`
	Document json.RawMessage `json:"document"`
}

// Validate implements ozzo validation for the import request.
func (r ImportDocumentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required,
			validation.Match(jsonPathPattern).Error("must end in .json")),
		validation.Field(&r.Document, validation.Required.Error("document payload is required")),
	)
}

// LabelDecisionRequest is one label decision in a verification request.
type LabelDecisionRequest struct {
	Label         string   `json:"label"`
	Decision      string   `json:"decision"`
	ThresholdUsed *float64 `json:"threshold_used"`
}

// Validate implements ozzo validation for a label decision.
func (d LabelDecisionRequest) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Label, validation.Required),
		validation.Field(&d.Decision, validation.Required,
			validation.In("accepted", "rejected", "added")),
		validation.Field(&d.ThresholdUsed, validation.Min(0.0), validation.Max(1.0)),
	)
}

// RecordVerificationRequest is the request body for appending a
// verification round to an item.
type RecordVerificationRequest struct {
	Document            string                 `json:"document"`
	ItemID              string                 `json:"item_id"`
	VerifiedBy          string                 `json:"verified_by"`
	VerificationRound   int                    `json:"verification_round,omitempty"`
	VerificationStatus  string                 `json:"verification_status,omitempty"`
	ReviewerAffiliation string                 `json:"reviewer_affiliation,omitempty"`
	Confidence          string                 `json:"confidence,omitempty"`
	LabelSource         string                 `json:"label_source,omitempty"`
	Notes               string                 `json:"notes,omitempty"`
	TaxonomyVersion     string                 `json:"taxonomy_version,omitempty"`
	LabelDecisions      []LabelDecisionRequest `json:"label_decisions"`
}

// Validate implements ozzo validation for the verification request.
// Decision semantics (threshold rules, round numbering, taxonomy paths)
// are checked downstream by the document validator.
func (r RecordVerificationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Document, validation.Required),
		validation.Field(&r.ItemID, validation.Required),
		validation.Field(&r.VerifiedBy, validation.Required),
		validation.Field(&r.VerificationRound, validation.Min(0)),
		validation.Field(&r.VerificationStatus,
			validation.In("verified", "rejected", "uncertain")),
		validation.Field(&r.Confidence, validation.In("high", "medium", "low")),
		validation.Field(&r.LabelSource, validation.In("auto", "expert", "consensus")),
		validation.Field(&r.LabelDecisions, validation.Required.Error("at least one label decision is required")),
	)
}

// toVerification converts the request into a ledger round.
func (r RecordVerificationRequest) toVerification() schema.Verification {
	decisions := make([]schema.LabelDecision, len(r.LabelDecisions))
	for i, d := range r.LabelDecisions {
		decisions[i] = schema.LabelDecision{
			Label:         d.Label,
			Decision:      schema.Decision(d.Decision),
			ThresholdUsed: d.ThresholdUsed,
		}
	}
	return schema.Verification{
		VerifiedBy:          r.VerifiedBy,
		VerificationRound:   r.VerificationRound,
		VerificationStatus:  schema.Status(r.VerificationStatus),
		ReviewerAffiliation: r.ReviewerAffiliation,
		Confidence:          schema.Confidence(r.Confidence),
		LabelSource:         schema.LabelSource(r.LabelSource),
		Notes:               r.Notes,
		TaxonomyVersion:     r.TaxonomyVersion,
		LabelDecisions:      decisions,
	}
}

// DocumentDetail is the full document response type (aliased from the
// domain layer).
type DocumentDetail = review.DocumentDetail

// Violation is one schema or validation failure in an error response.
type Violation struct {
	Class  string `json:"class"`
	Kind   string `json:"kind"`
	Field  string `json:"field,omitempty"`
	Detail string `json:"detail,omitempty"`
}
