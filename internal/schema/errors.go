package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Class groups violations by the component that detects them.
type Class string

const (
	ClassSchema     Class = "schema"     // shape violations: missing/unknown fields
	ClassReference  Class = "reference"  // dangling or ambiguous foreign keys
	ClassValidation Class = "validation" // semantic invariant violations
	ClassConversion Class = "conversion" // legacy shape cannot be mapped
)

// Kind identifies the specific rule that was violated.
type Kind string

const (
	KindMalformedJSON        Kind = "malformed_json"
	KindMissingRequiredField Kind = "missing_required_field"
	KindUnknownField         Kind = "unknown_field"
	KindInvalidFieldType     Kind = "invalid_field_type"
	KindUnsupportedVersion   Kind = "unsupported_version"

	KindDanglingDataSourceID Kind = "dangling_data_source_id"
	KindAmbiguousDataSource  Kind = "ambiguous_data_source"

	KindInvalidTimeRange           Kind = "invalid_time_range"
	KindNonMonotonicRound          Kind = "non_monotonic_round"
	KindScoreOutOfRange            Kind = "score_out_of_range"
	KindDecisionWithoutModelOutput Kind = "decision_without_model_output"
	KindInvalidNullThreshold       Kind = "invalid_null_threshold"
	KindInvalidEnumValue           Kind = "invalid_enum_value"
	KindDuplicateRound             Kind = "duplicate_round"
	KindUnknownRound               Kind = "unknown_round"
	KindDuplicateModelOutput       Kind = "duplicate_model_output"
	KindDuplicateItemID            Kind = "duplicate_item_id"
	KindDuplicateDataSourceID      Kind = "duplicate_data_source_id"
	KindUnknownTaxonomyPath        Kind = "unknown_taxonomy_path"
	KindEmptyLabelDecisions        Kind = "empty_label_decisions"

	KindUnmappableField Kind = "unmappable_field"
)

// ErrItemNotFound is returned by document operations that address an item
// by id that does not exist.
var ErrItemNotFound = errors.New("schema: item not found")

// Error is a single violation detected by the parser, validator, or
// converter. Field is a JSON path into the offending document, for example
// "items[3].model_outputs[0].score". Callers are expected to surface Class,
// Kind, and Field verbatim so the source document can be corrected.
type Error struct {
	Class  Class
	Kind   Kind
	Field  string
	Detail string
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s error (%s)", e.Class, e.Kind)
	if e.Field != "" {
		fmt.Fprintf(&b, " at %s", e.Field)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	return b.String()
}

// Errors aggregates every violation found in one pass over a document.
// The validator never stops at the first problem.
type Errors []*Error

func (es Errors) Error() string {
	switch len(es) {
	case 0:
		return "no violations"
	case 1:
		return es[0].Error()
	}
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d violations: %s", len(es), strings.Join(msgs, "; "))
}

// orNil returns es as an error, or nil when no violations were collected.
func (es Errors) orNil() error {
	if len(es) == 0 {
		return nil
	}
	return es
}

// AsErrors unwraps err into the individual violations it carries. A bare
// *Error becomes a one-element slice; anything else yields nil.
func AsErrors(err error) Errors {
	if err == nil {
		return nil
	}
	var es Errors
	if errors.As(err, &es) {
		return es
	}
	var e *Error
	if errors.As(err, &e) {
		return Errors{e}
	}
	return nil
}
