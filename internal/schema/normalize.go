package schema

import (
	"strings"

	"github.com/Spiffical/hydrolabel/internal/taxonomy"
)

// NormalizeLabels rewrites flat legacy labels against the taxonomy so that
// documents converted from pre-taxonomy shapes validate with taxonomy
// checking on. A flat label (no separator) resolves to the full path of the
// uniquely named tree node when one exists, then falls back to the legacy
// label mapping. Hierarchical labels pass through untouched for Validate to
// judge, so an unknown full path is still rejected.
func NormalizeLabels(d *Document, tree taxonomy.Tree) {
	fix := func(label string) string {
		if label == "" || strings.Contains(label, taxonomy.Separator) {
			return label
		}
		if path, ok := tree.Resolve(label); ok {
			return path
		}
		return taxonomy.FromLegacy(label)
	}
	for i := range d.Items {
		it := &d.Items[i]
		for j := range it.ModelOutputs {
			it.ModelOutputs[j].ClassHierarchy = fix(it.ModelOutputs[j].ClassHierarchy)
		}
		for j := range it.Verifications {
			decisions := it.Verifications[j].LabelDecisions
			for k := range decisions {
				decisions[k].Label = fix(decisions[k].Label)
			}
		}
	}
}
