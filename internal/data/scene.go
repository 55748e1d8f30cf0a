package data

import (
	"fmt"
	"os"

	"github.com/EvilPatrick06/DnD-sub018/internal/audio"
	"github.com/EvilPatrick06/DnD-sub018/internal/lighting"
	"github.com/EvilPatrick06/DnD-sub018/internal/occlusion"
	"github.com/EvilPatrick06/DnD-sub018/internal/world"
	"gopkg.in/yaml.v3"
)

// SceneLight is a light already burning when the scene loads. Duration
// defaults to the catalog duration of the source.
type SceneLight struct {
	Entity   string   `yaml:"entity"`
	Source   string   `yaml:"source"`
	Name     string   `yaml:"name"`
	Duration *float64 `yaml:"duration"`
}

// Point is a cell position.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Scene is a map fixture: the walls, tokens, emitters and lights a session
// starts from.
type Scene struct {
	Name     string           `yaml:"name"`
	CellSize float64          `yaml:"cell_size"`
	Ambient  string           `yaml:"ambient"`
	Walls    []occlusion.Wall `yaml:"walls"`
	Tokens   []world.Token    `yaml:"tokens"`
	Emitters []audio.Emitter  `yaml:"emitters"`
	Lights   []SceneLight     `yaml:"lights"`
	Listener *Point           `yaml:"listener"`
}

// AmbientLevel parses the ambient field; empty means dark.
func (s *Scene) AmbientLevel() (lighting.Level, error) {
	return lighting.ParseLevel(s.Ambient)
}

func (s *Scene) validate() error {
	if _, err := s.AmbientLevel(); err != nil {
		return err
	}
	walls := make(map[string]struct{}, len(s.Walls))
	for _, w := range s.Walls {
		if _, dup := walls[w.ID]; dup {
			return fmt.Errorf("duplicate wall %q", w.ID)
		}
		walls[w.ID] = struct{}{}
	}
	tokens := make(map[string]struct{}, len(s.Tokens))
	for _, t := range s.Tokens {
		if _, dup := tokens[t.ID]; dup {
			return fmt.Errorf("duplicate token %q", t.ID)
		}
		tokens[t.ID] = struct{}{}
	}
	emitters := make(map[string]struct{}, len(s.Emitters))
	for _, e := range s.Emitters {
		if e.ID == "" {
			return fmt.Errorf("emitter without id")
		}
		if _, dup := emitters[e.ID]; dup {
			return fmt.Errorf("duplicate emitter %q", e.ID)
		}
		emitters[e.ID] = struct{}{}
	}
	for _, l := range s.Lights {
		if l.Entity == "" || l.Source == "" {
			return fmt.Errorf("light needs entity and source")
		}
	}
	return nil
}

// LoadScene loads a scene fixture from YAML. Geometry is validated when the
// scene is applied to a session.
func LoadScene(path string) (*Scene, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scene: read %s: %w", path, err)
	}
	var s Scene
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("scene: parse %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("scene: %s: %w", path, err)
	}
	return &s, nil
}
