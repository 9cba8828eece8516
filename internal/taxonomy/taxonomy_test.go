package taxonomy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestContains(t *testing.T) {
	tree := Default()

	valid := []string{
		"Biophony",
		"Biophony > Marine mammal",
		"Biophony > Marine mammal > Cetacean > Baleen whale > Fin whale",
		"Geophony > Weather > Precipitation > Rain",
		"Instrumentation > Self-noise > Non-acoustic self noise > Tonal",
		"Other > Unknown sound of interest",
	}
	for _, p := range valid {
		if !tree.Contains(p) {
			t.Errorf("Contains(%q) = false, want true", p)
		}
	}

	invalid := []string{
		"",
		"Space whale",
		"Biophony > Space whale",
		"Fin whale", // leaf name alone is not a path
		"Biophony > Marine mammal > Fin whale", // skipped levels
		"biophony",                             // case sensitive
	}
	for _, p := range invalid {
		if tree.Contains(p) {
			t.Errorf("Contains(%q) = true, want false", p)
		}
	}
}

func TestAllPathsAndLeaves(t *testing.T) {
	tree := Tree{
		"A": {
			"B": {"C": {}},
			"D": {},
		},
		"E": {},
	}

	wantAll := []string{"A", "A > B", "A > B > C", "A > D", "E"}
	gotAll := tree.AllPaths()
	if len(gotAll) != len(wantAll) {
		t.Fatalf("AllPaths = %v, want %v", gotAll, wantAll)
	}
	for i := range wantAll {
		if gotAll[i] != wantAll[i] {
			t.Fatalf("AllPaths = %v, want %v", gotAll, wantAll)
		}
	}

	wantLeaves := []string{"A > B > C", "A > D", "E"}
	gotLeaves := tree.Leaves()
	if len(gotLeaves) != len(wantLeaves) {
		t.Fatalf("Leaves = %v, want %v", gotLeaves, wantLeaves)
	}
	for i := range wantLeaves {
		if gotLeaves[i] != wantLeaves[i] {
			t.Fatalf("Leaves = %v, want %v", gotLeaves, wantLeaves)
		}
	}
}

func TestDefaultTreeIsSelfConsistent(t *testing.T) {
	tree := Default()
	for _, p := range tree.AllPaths() {
		if !tree.Contains(p) {
			t.Errorf("AllPaths produced a path Contains rejects: %q", p)
		}
	}
	if n := len(tree.Leaves()); n < 50 {
		t.Errorf("default taxonomy has %d leaves, expected a full hierarchy", n)
	}
}

func TestResolve(t *testing.T) {
	tree := Default()

	cases := map[string]string{
		"Vessel":    "Anthropophony > Vessel",
		"Fin whale": "Biophony > Marine mammal > Cetacean > Baleen whale > Fin whale",
		"Rain":      "Geophony > Weather > Precipitation > Rain",
		"Geophony":  "Geophony",
	}
	for name, want := range cases {
		got, ok := tree.Resolve(name)
		if !ok || got != want {
			t.Errorf("Resolve(%q) = (%q, %v), want %q", name, got, ok, want)
		}
	}

	if _, ok := tree.Resolve("Space whale"); ok {
		t.Error("Resolve must fail for names outside the tree")
	}

	ambiguous := Tree{"A": {"X": {}}, "B": {"X": {}}}
	if _, ok := ambiguous.Resolve("X"); ok {
		t.Error("Resolve must fail for names carried by more than one node")
	}
}

func TestFromLegacy(t *testing.T) {
	tree := Default()
	cases := map[string]string{
		"Rain":            "Geophony > Weather > Precipitation > Rain",
		"rain":            "Geophony > Weather > Precipitation > Rain",
		"Tonal":           "Instrumentation > Self-noise > Non-acoustic self noise > Tonal",
		"Engine Noise":    "Anthropophony > Vessel",
		"Data Gap":        "Instrumentation > Malfunction > Data gap",
		"Anomaly":         "Other > Unknown sound of interest",
		"Unknown Feature": "Other > Unknown sound of interest",
		"Never Seen":      "Other > Unknown sound of interest",
	}
	for flat, want := range cases {
		got := FromLegacy(flat)
		if got != want {
			t.Errorf("FromLegacy(%q) = %q, want %q", flat, got, want)
		}
		if !tree.Contains(got) {
			t.Errorf("FromLegacy(%q) produced a path outside the taxonomy: %q", flat, got)
		}
	}

	hierarchical := "Biophony > Marine mammal > Cetacean > Baleen whale > Fin whale"
	if got := FromLegacy(hierarchical); got != hierarchical {
		t.Errorf("hierarchical labels must pass through, got %q", got)
	}
}

func TestToLegacy(t *testing.T) {
	cases := map[string]string{
		"Geophony > Weather > Precipitation > Rain":                       "Rain",
		"Instrumentation > Self-noise > Non-acoustic self noise > Tonal": "Tonal",
		"Other > Unknown sound of interest":                               "Unknown Feature",
		"Biophony > Marine mammal > Cetacean > Baleen whale > Fin whale": "Fin whale",
		"Wind": "Wind",
	}
	for path, want := range cases {
		if got := ToLegacy(path); got != want {
			t.Errorf("ToLegacy(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.yaml")
	data := []byte("Biophony:\n  Fish:\n    Fish chorus:\nGeophony:\n  Weather:\n    Wind:\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	tree, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !tree.Contains("Biophony > Fish > Fish chorus") {
		t.Errorf("loaded tree missing expected path: %v", tree.AllPaths())
	}
	if tree.Contains("Anthropophony") {
		t.Error("loaded tree must replace the default, not extend it")
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(empty); err == nil {
		t.Error("expected error for empty taxonomy")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("[1, 2, 3]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("expected error for non-map YAML")
	}
}
