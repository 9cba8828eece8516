package schema

import (
	"testing"
	"time"
)

// Shared builders for the schema tests.

func ts(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return parsed
}

func tsp(t *testing.T, value string) *time.Time {
	t.Helper()
	parsed := ts(t, value)
	return &parsed
}

func fp(v float64) *float64 { return &v }

const finWhale = "Biophony > Marine mammal > Cetacean > Baleen whale > Fin whale"

// predictionsDoc builds a minimal valid predictions-profile document with
// one scored item.
func predictionsDoc(t *testing.T) *Document {
	t.Helper()
	return &Document{
		SchemaVersion: Version,
		CreatedAt:     ts(t, "2019-07-01T00:00:00Z"),
		TaskType:      TaskWhaleDetection,
		Model:         &Model{ModelID: "sha256-abc123", Architecture: "resnet18"},
		DataSources: []DataSource{
			{DataSourceID: "ICLISTENHF1353_CLAYO_2019", DeviceCode: "ICLISTENHF1353"},
		},
		Items: []Item{
			{
				ItemID:         "seg_000",
				DataSourceID:   "ICLISTENHF1353_CLAYO_2019",
				AudioStartTime: tsp(t, "2019-06-30T00:04:58Z"),
				AudioEndTime:   tsp(t, "2019-06-30T00:05:38Z"),
				ModelOutputs:   []ModelOutput{{ClassHierarchy: finWhale, Score: 0.87}},
				Verifications:  []Verification{},
			},
		},
	}
}

// labelsDoc builds a minimal valid labels-profile document with one
// manually labeled item.
func labelsDoc(t *testing.T) *Document {
	t.Helper()
	return &Document{
		SchemaVersion: Version,
		CreatedAt:     ts(t, "2024-03-01T12:00:00Z"),
		TaskType:      TaskClassification,
		Items: []Item{
			{
				ItemID: "clip_001",
				Verifications: []Verification{
					{
						VerifiedAt:        ts(t, "2024-03-01T12:05:00Z"),
						VerifiedBy:        "reviewer@onc.example",
						VerificationRound: 1,
						LabelDecisions: []LabelDecision{
							{Label: "Instrumentation", Decision: DecisionAdded, ThresholdUsed: nil},
						},
					},
				},
			},
		},
	}
}

// wantViolation asserts err carries at least one violation of the given kind.
func wantViolation(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s violation, got nil", kind)
	}
	for _, e := range AsErrors(err) {
		if e.Kind == kind {
			return e
		}
	}
	t.Fatalf("expected %s violation, got: %v", kind, err)
	return nil
}
