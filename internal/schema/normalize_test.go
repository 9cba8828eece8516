package schema

import (
	"testing"

	"github.com/Spiffical/hydrolabel/internal/taxonomy"
)

func TestNormalizeLabels(t *testing.T) {
	tree := taxonomy.Default()
	doc := New(TaskClassification)
	if err := doc.AddItem(Item{
		ItemID:       "clip_001",
		ModelOutputs: []ModelOutput{{ClassHierarchy: "Vessel", Score: 0.8}},
		Verifications: []Verification{
			{
				VerifiedAt:         ts(t, "2024-03-01T12:05:00Z"),
				VerifiedBy:         "migrated",
				VerificationRound:  1,
				VerificationStatus: StatusVerified,
				LabelDecisions: []LabelDecision{
					{Label: "Rain", Decision: DecisionAdded},
					{Label: "Mystery Hum", Decision: DecisionAdded},
					{Label: finWhale, Decision: DecisionAdded},
				},
			},
		},
	}); err != nil {
		t.Fatal(err)
	}

	NormalizeLabels(doc, tree)

	if got := doc.Items[0].ModelOutputs[0].ClassHierarchy; got != "Anthropophony > Vessel" {
		t.Errorf("class_hierarchy = %q, want resolved vessel path", got)
	}
	decisions := doc.Items[0].Verifications[0].LabelDecisions
	want := []string{
		"Geophony > Weather > Precipitation > Rain",
		"Other > Unknown sound of interest",
		finWhale,
	}
	for i, w := range want {
		if decisions[i].Label != w {
			t.Errorf("decisions[%d].Label = %q, want %q", i, decisions[i].Label, w)
		}
	}
}

func TestNormalizeLabels_UnknownHierarchicalPathUntouched(t *testing.T) {
	tree := taxonomy.Default()
	doc := labelsDoc(t)
	doc.Items[0].Verifications[0].LabelDecisions[0].Label = "Biophony > Space whale"

	NormalizeLabels(doc, tree)

	if got := doc.Items[0].Verifications[0].LabelDecisions[0].Label; got != "Biophony > Space whale" {
		t.Errorf("label = %q, hierarchical paths must be left for validation", got)
	}
	if err := Validate(doc, WithTaxonomy(tree)); err == nil {
		t.Error("unknown hierarchical path must still fail validation")
	}
}
