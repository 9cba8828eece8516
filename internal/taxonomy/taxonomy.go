// Package taxonomy holds the marine acoustic label hierarchy used for
// annotation. The taxonomy is read-only configuration: callers take a
// snapshot and pass it where label checking is needed.
package taxonomy

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Separator joins hierarchy levels in a taxonomy path string,
// e.g. "Biophony > Marine mammal > Cetacean > Baleen whale > Fin whale".
const Separator = " > "

// Tree is a nested label hierarchy. Leaves are empty (or nil) maps.
type Tree map[string]Tree

// Default returns the built-in marine acoustic taxonomy.
func Default() Tree {
	return defaultTree
}

// Load reads a taxonomy override from a YAML file of nested maps.
func Load(path string) (Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: read %s: %w", path, err)
	}
	var t Tree
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("taxonomy: parse %s: %w", path, err)
	}
	if len(t) == 0 {
		return nil, fmt.Errorf("taxonomy: %s is empty", path)
	}
	return t, nil
}

// Contains reports whether path names a valid node at any depth.
func (t Tree) Contains(path string) bool {
	if path == "" {
		return false
	}
	node := t
	for _, part := range strings.Split(path, Separator) {
		child, ok := node[part]
		if !ok {
			return false
		}
		node = child
	}
	return true
}

// AllPaths returns every valid path at every depth, sorted.
func (t Tree) AllPaths() []string {
	var out []string
	t.walk(nil, func(path []string, _ Tree) {
		out = append(out, strings.Join(path, Separator))
	})
	sort.Strings(out)
	return out
}

// Leaves returns every leaf path, sorted.
func (t Tree) Leaves() []string {
	var out []string
	t.walk(nil, func(path []string, node Tree) {
		if len(node) == 0 {
			out = append(out, strings.Join(path, Separator))
		}
	})
	sort.Strings(out)
	return out
}

func (t Tree) walk(prefix []string, fn func(path []string, node Tree)) {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path := append(append([]string(nil), prefix...), k)
		fn(path, t[k])
		t[k].walk(path, fn)
	}
}

// Resolve finds the full path of a node referenced by bare name. It
// succeeds only when exactly one node in the tree carries that name.
func (t Tree) Resolve(name string) (string, bool) {
	var found string
	hits := 0
	t.walk(nil, func(path []string, _ Tree) {
		if path[len(path)-1] == name {
			found = strings.Join(path, Separator)
			hits++
		}
	})
	if hits != 1 {
		return "", false
	}
	return found, true
}

// legacyMapping maps pre-taxonomy flat labels to hierarchical paths.
// Canonical forms come first so reverse lookup prefers them.
var legacyMapping = []struct{ flat, path string }{
	{"Unknown Feature", "Other > Unknown sound of interest"},
	{"Anomaly", "Other > Unknown sound of interest"},
	{"Data Gap", "Instrumentation > Malfunction > Data gap"},
	{"Dropout", "Instrumentation > Malfunction > Frequency dropout"},
	{"Engine Noise", "Anthropophony > Vessel"},
	{"Rain", "Geophony > Weather > Precipitation > Rain"},
	{"Sensitivity", "Instrumentation > Malfunction > Sensitivity change"},
	{"Tonal", "Instrumentation > Self-noise > Non-acoustic self noise > Tonal"},
	{"Unknown Features", "Other > Unknown sound of interest"},
	{"Engine noise", "Anthropophony > Vessel"},
	{"rain", "Geophony > Weather > Precipitation > Rain"},
	{"tonal", "Instrumentation > Self-noise > Non-acoustic self noise > Tonal"},
}

// FromLegacy maps a flat legacy label to its hierarchical path. Labels that
// already look hierarchical pass through unchanged; unmappable flat labels
// fall back to "Other > Unknown sound of interest".
func FromLegacy(label string) string {
	if strings.Contains(label, Separator) {
		return label
	}
	for _, m := range legacyMapping {
		if m.flat == label {
			return m.path
		}
	}
	return "Other > Unknown sound of interest"
}

// ToLegacy maps a hierarchical path back to its flat legacy label when one
// exists, else the leaf name.
func ToLegacy(path string) string {
	for _, m := range legacyMapping {
		if m.path == path {
			return m.flat
		}
	}
	if i := strings.LastIndex(path, Separator); i >= 0 {
		return path[i+len(Separator):]
	}
	return path
}

var defaultTree = Tree{
	"Anthropophony": {
		"In-air source": {
			"Aircraft":   {},
			"Snowmobile": {},
		},
		"Industrial activity": {
			"Dredging":     {},
			"Mining":       {},
			"Pile driving": {},
		},
		"Sonar": {
			"Fisheries sonar": {},
			"Naval sonar":     {},
		},
		"Submersible": {
			"Human-occupied vehicle":   {},
			"Remotely operated vehicle": {},
		},
		"Surveying": {
			"Airgun":    {},
			"Explosive": {},
		},
		"Unknown anthropophony": {},
		"Vessel": {
			"Cargo ship":      {},
			"Fishing":         {},
			"Icebreaker":      {},
			"Military ship":   {},
			"Passenger ship":  {},
			"Pleasure craft":  {},
			"Research vessel": {},
			"Sailing":         {},
			"Tanker":          {},
			"Tug":             {},
		},
	},
	"Biophony": {
		"Crustacean": {
			"Crab":    {},
			"Lobster": {},
			"Shrimp": {
				"Snapping shrimp": {},
			},
		},
		"Fish": {
			"Vent fish":   {},
			"Fish chorus": {},
		},
		"Marine mammal": {
			"Cetacean": {
				"Baleen whale": {
					"Bowhead whale":               {},
					"Blue whale":                  {},
					"Fin whale":                   {},
					"Gray whale":                  {},
					"Humpback whale":              {},
					"Minke whale":                 {},
					"North Atlantic right whale":  {},
					"North Pacific right whale":   {},
					"Sei whale":                   {},
				},
				"Toothed whale": {
					"Beaked whales": {
						"Baird's beaked whale":  {},
						"Cuvier's beaked whale": {},
					},
					"Beluga": {},
					"Dolphin": {
						"Atlantic spotted dolphin":     {},
						"Common bottlenose dolphin":    {},
						"Common dolphin":               {},
						"Northern right whale dolphin": {},
						"Pacific white-sided dolphin":  {},
						"Risso's dolphin":              {},
						"Striped dolphin":              {},
					},
					"False killer whale": {},
					"Killer whale": {
						"Bigg's killer whale":             {},
						"Northern resident killer whale":  {},
						"Offshore killer whale":           {},
						"Southern resident killer whale":  {},
					},
					"Narwhal": {},
					"Porpoise": {
						"Dall's porpoise":  {},
						"Harbour porpoise": {},
					},
					"Sperm whale": {},
				},
			},
			"Pinniped": {
				"Seal":   {},
				"Walrus": {},
			},
		},
		"Unknown biophony": {
			"Bioacoustic communication signal": {},
			"Echolocation click":               {},
			"Click train":                      {},
			"Drumming":                         {},
			"Grinding":                         {},
			"Snapping":                         {},
			"Stridulation":                     {},
			"Vocalization":                     {},
		},
	},
	"Geophony": {
		"Environmental sound": {
			"Flow noise":        {},
			"Ice cracking":      {},
			"Iceberg collision": {},
			"Tsunami":           {},
		},
		"Geology": {
			"Bubbling": {
				"Methane seep": {},
			},
			"Earthquake": {},
			"Hydrothermal event": {
				"Chimney collapse": {},
				"Impulse":          {},
			},
			"Magma":             {},
			"Sedimentation":     {},
			"Turbidity current": {},
		},
		"Weather": {
			"Lightning strike": {},
			"Precipitation": {
				"Hail": {},
				"Rain": {},
				"Snow": {},
			},
			"Wind":  {},
			"Waves": {},
		},
		"Unknown geophony": {},
	},
	"Instrumentation": {
		"Hydrophone contact": {},
		"Malfunction": {
			"Clipping":           {},
			"Data gap":           {},
			"Frequency dropout":  {},
			"Sensitivity change": {},
			"Time dropout":       {},
		},
		"Other ONC equipment": {
			"ADCP":   {},
			"Camera": {},
			"Mooring noise": {
				"Chain noise": {},
			},
		},
		"Self-noise": {
			"Acoustic self-noise": {},
			"Non-acoustic self noise": {
				"Tonal": {},
			},
		},
		"Unknown instrumentation": {},
	},
	"Other": {
		"Ambient sound":             {},
		"Unknown sound of interest": {},
	},
}
