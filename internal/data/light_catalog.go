package data

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/EvilPatrick06/DnD-sub018/internal/grid"
	"github.com/EvilPatrick06/DnD-sub018/internal/lighting"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// LightEntry is one light source definition as written in light_sources.yaml.
// Duration is in seconds; omit it or write .inf for a light that never burns out.
type LightEntry struct {
	Key          string   `yaml:"key"`
	Label        string   `yaml:"label"`
	Radius       float64  `yaml:"radius"`
	BrightRadius float64  `yaml:"bright_radius"`
	Color        string   `yaml:"color"`
	Duration     *float64 `yaml:"duration"`
	IgnoresWalls bool     `yaml:"ignores_walls"`
}

// LightTable indexes light sources by key. It satisfies lighting.Catalog.
type LightTable struct {
	byKey map[string]lighting.Source
}

// Get returns the source for a key.
func (t *LightTable) Get(key string) (lighting.Source, bool) {
	s, ok := t.byKey[key]
	return s, ok
}

// Label returns the display label for a key, or the title-cased key when the
// key is unknown.
func (t *LightTable) Label(key string) string {
	if s, ok := t.byKey[key]; ok {
		return s.Label
	}
	return titleFromKey(key)
}

// Keys returns every key in order.
func (t *LightTable) Keys() []string {
	keys := make([]string, 0, len(t.byKey))
	for k := range t.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Count returns the number of sources loaded.
func (t *LightTable) Count() int {
	return len(t.byKey)
}

var titleCaser = cases.Title(language.English)

// titleFromKey turns "everburning-torch" into "Everburning Torch".
func titleFromKey(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool { return r == '-' || r == '_' })
	return titleCaser.String(strings.Join(words, " "))
}

func (e LightEntry) source() (lighting.Source, error) {
	if e.Key == "" {
		return lighting.Source{}, fmt.Errorf("entry without key")
	}
	if err := grid.ValidateRadius("light "+e.Key+" radius", e.Radius); err != nil {
		return lighting.Source{}, err
	}
	if err := grid.ValidateRadius("light "+e.Key+" bright_radius", e.BrightRadius); err != nil {
		return lighting.Source{}, err
	}
	dur := math.Inf(1)
	if e.Duration != nil {
		dur = *e.Duration
		if math.IsNaN(dur) || dur < 0 {
			return lighting.Source{}, fmt.Errorf("light %s duration %v: %w", e.Key, dur, lighting.ErrInvalidDuration)
		}
	}
	label := e.Label
	if label == "" {
		label = titleFromKey(e.Key)
	}
	return lighting.Source{
		Key:               e.Key,
		Label:             label,
		RadiusCells:       e.Radius,
		BrightRadiusCells: e.BrightRadius,
		Color:             e.Color,
		DurationSeconds:   dur,
		IgnoresWalls:      e.IgnoresWalls,
	}, nil
}

// --- YAML loading ---

type lightFile struct {
	Sources []LightEntry `yaml:"light_sources"`
}

// LoadLightTable loads light source definitions from YAML.
func LoadLightTable(path string) (*LightTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lights: read %s: %w", path, err)
	}
	return ParseLightTable(raw)
}

// ParseLightTable builds a table from YAML bytes. Duplicate keys and invalid
// radii or durations reject the whole file.
func ParseLightTable(raw []byte) (*LightTable, error) {
	var f lightFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("lights: parse: %w", err)
	}

	t := &LightTable{byKey: make(map[string]lighting.Source, len(f.Sources))}
	for i, e := range f.Sources {
		s, err := e.source()
		if err != nil {
			return nil, fmt.Errorf("lights: entry %d: %w", i, err)
		}
		if _, dup := t.byKey[s.Key]; dup {
			return nil, fmt.Errorf("lights: duplicate key %q", s.Key)
		}
		t.byKey[s.Key] = s
	}
	return t, nil
}
