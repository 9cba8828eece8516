package schema

import (
	"testing"

	"github.com/Spiffical/hydrolabel/internal/taxonomy"
)

func TestValidate_CleanPredictionsDocument(t *testing.T) {
	if err := Validate(predictionsDoc(t)); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_SingleSourceShortcut(t *testing.T) {
	// One data source declared; the item may omit data_source_id.
	doc := predictionsDoc(t)
	doc.Items[0].DataSourceID = ""
	if err := Validate(doc); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if src := doc.Source(&doc.Items[0]); src == nil || src.DataSourceID != "ICLISTENHF1353_CLAYO_2019" {
		t.Errorf("Source = %+v, want the single declared source", src)
	}
}

func TestValidate_AmbiguousDataSource(t *testing.T) {
	doc := predictionsDoc(t)
	doc.DataSources = append(doc.DataSources, DataSource{DataSourceID: "OTHER_2020"})
	doc.Items[0].DataSourceID = ""
	err := Validate(doc)
	e := wantViolation(t, err, KindAmbiguousDataSource)
	if e.Class != ClassReference {
		t.Errorf("class = %s, want reference", e.Class)
	}
	if doc.Source(&doc.Items[0]) != nil {
		t.Error("Source should be nil when binding is ambiguous")
	}
}

func TestValidate_DanglingDataSourceID(t *testing.T) {
	doc := predictionsDoc(t)
	doc.Items[0].DataSourceID = "NOT_DECLARED"
	e := wantViolation(t, Validate(doc), KindDanglingDataSourceID)
	if e.Class != ClassReference {
		t.Errorf("class = %s, want reference", e.Class)
	}
	if e.Field != "items[0].data_source_id" {
		t.Errorf("field = %q", e.Field)
	}
}

func TestValidate_InvalidTimeRange(t *testing.T) {
	doc := predictionsDoc(t)
	doc.Items[0].AudioEndTime = doc.Items[0].AudioStartTime
	wantViolation(t, Validate(doc), KindInvalidTimeRange)
}

func TestValidate_ScoreOutOfRange(t *testing.T) {
	doc := predictionsDoc(t)
	doc.Items[0].ModelOutputs[0].Score = 1.2
	wantViolation(t, Validate(doc), KindScoreOutOfRange)
}

func TestValidate_ThresholdOutOfRange(t *testing.T) {
	doc := predictionsDoc(t)
	doc.Items[0].Verifications = []Verification{{
		VerifiedAt:        ts(t, "2019-07-02T00:00:00Z"),
		VerifiedBy:        "rev",
		VerificationRound: 1,
		LabelDecisions: []LabelDecision{
			{Label: finWhale, Decision: DecisionAccepted, ThresholdUsed: fp(1.5)},
		},
	}}
	wantViolation(t, Validate(doc), KindScoreOutOfRange)
}

func TestValidate_AcceptedDecisionAgainstModelOutput(t *testing.T) {
	// Spec scenario: accepted decision for a scored class validates cleanly.
	doc := predictionsDoc(t)
	doc.Items[0].Verifications = []Verification{{
		VerifiedAt:        ts(t, "2019-07-02T00:00:00Z"),
		VerifiedBy:        "rev",
		VerificationRound: 1,
		LabelDecisions: []LabelDecision{
			{Label: finWhale, Decision: DecisionAccepted, ThresholdUsed: fp(0.5)},
		},
	}}
	if err := Validate(doc); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	got := CurrentLabels(&doc.Items[0])
	if len(got) != 1 || got[0] != finWhale {
		t.Errorf("CurrentLabels = %v", got)
	}
}

func TestValidate_DecisionWithoutModelOutput(t *testing.T) {
	doc := predictionsDoc(t)
	doc.Items[0].Verifications = []Verification{{
		VerifiedAt:        ts(t, "2019-07-02T00:00:00Z"),
		VerifiedBy:        "rev",
		VerificationRound: 1,
		LabelDecisions: []LabelDecision{
			{Label: "Geophony > Weather > Wind", Decision: DecisionAccepted, ThresholdUsed: fp(0.5)},
		},
	}}
	wantViolation(t, Validate(doc), KindDecisionWithoutModelOutput)
}

func TestValidate_AddedDecisionExemptFromModelOutputs(t *testing.T) {
	// Manual-labeling profile: added label with null threshold, no model outputs.
	if err := Validate(labelsDoc(t)); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_NullThresholdOnlyForAdded(t *testing.T) {
	doc := predictionsDoc(t)
	doc.Items[0].Verifications = []Verification{{
		VerifiedAt:        ts(t, "2019-07-02T00:00:00Z"),
		VerifiedBy:        "rev",
		VerificationRound: 1,
		LabelDecisions: []LabelDecision{
			{Label: finWhale, Decision: DecisionAccepted, ThresholdUsed: nil},
		},
	}}
	wantViolation(t, Validate(doc), KindInvalidNullThreshold)
}

func TestValidate_NonMonotonicRounds(t *testing.T) {
	doc := labelsDoc(t)
	second := doc.Items[0].Verifications[0]
	second.VerificationRound = 3 // gap: rounds must be 1, 2, ...
	doc.Items[0].Verifications = append(doc.Items[0].Verifications, second)
	wantViolation(t, Validate(doc), KindNonMonotonicRound)
}

func TestValidate_RoundsMustStartAtOne(t *testing.T) {
	doc := labelsDoc(t)
	doc.Items[0].Verifications[0].VerificationRound = 2
	wantViolation(t, Validate(doc), KindNonMonotonicRound)
}

func TestValidate_EmptyLabelDecisions(t *testing.T) {
	doc := labelsDoc(t)
	doc.Items[0].Verifications[0].LabelDecisions = nil
	wantViolation(t, Validate(doc), KindEmptyLabelDecisions)
}

func TestValidate_DuplicateModelOutput(t *testing.T) {
	doc := predictionsDoc(t)
	doc.Items[0].ModelOutputs = append(doc.Items[0].ModelOutputs,
		ModelOutput{ClassHierarchy: finWhale, Score: 0.4})
	wantViolation(t, Validate(doc), KindDuplicateModelOutput)
}

func TestValidate_DuplicateItemID(t *testing.T) {
	doc := predictionsDoc(t)
	doc.Items = append(doc.Items, doc.Items[0])
	wantViolation(t, Validate(doc), KindDuplicateItemID)
}

func TestValidate_DuplicateDataSourceID(t *testing.T) {
	doc := predictionsDoc(t)
	doc.DataSources = append(doc.DataSources, doc.DataSources[0])
	wantViolation(t, Validate(doc), KindDuplicateDataSourceID)
}

func TestValidate_InvalidEnums(t *testing.T) {
	doc := labelsDoc(t)
	doc.TaskType = "sonar_mapping"
	doc.Items[0].Verifications[0].VerificationStatus = "maybe"
	doc.Items[0].Verifications[0].Confidence = "extreme"
	err := Validate(doc)
	if err == nil {
		t.Fatal("expected enum violations")
	}
	if got := len(AsErrors(err)); got != 3 {
		t.Errorf("violations = %d, want 3: %v", got, err)
	}
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	doc := predictionsDoc(t)
	doc.Items[0].ModelOutputs[0].Score = -0.1
	doc.Items[0].DataSourceID = "NOPE"
	doc.Items[0].AudioEndTime = doc.Items[0].AudioStartTime
	err := Validate(doc)
	if got := len(AsErrors(err)); got != 3 {
		t.Errorf("violations = %d, want 3: %v", got, err)
	}
}

func TestValidate_TaxonomySnapshot(t *testing.T) {
	tree := taxonomy.Default()

	doc := predictionsDoc(t)
	if err := Validate(doc, WithTaxonomy(tree)); err != nil {
		t.Fatalf("Validate with taxonomy: %v", err)
	}

	doc.Items[0].ModelOutputs[0].ClassHierarchy = "Biophony > Space whale"
	e := wantViolation(t, Validate(doc, WithTaxonomy(tree)), KindUnknownTaxonomyPath)
	if e.Field != "items[0].model_outputs[0].class_hierarchy" {
		t.Errorf("field = %q", e.Field)
	}
}
