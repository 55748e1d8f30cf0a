package lighting

import (
	"fmt"
	"math"
	"strings"

	"github.com/EvilPatrick06/DnD-sub018/internal/grid"
)

// Level is an illumination band.
type Level int

const (
	Dark Level = iota
	Dim
	Bright
)

func (l Level) String() string {
	switch l {
	case Dark:
		return "dark"
	case Dim:
		return "dim"
	case Bright:
		return "bright"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Intensity is the canonical intensity of a band, used for ambient baselines.
func (l Level) Intensity() float64 {
	switch l {
	case Bright:
		return 1
	case Dim:
		return 0.5
	}
	return 0
}

// ParseLevel accepts "dark", "dim" or "bright".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dark", "":
		return Dark, nil
	case "dim":
		return Dim, nil
	case "bright":
		return Bright, nil
	}
	return Dark, fmt.Errorf("unknown illumination level %q", s)
}

// Bands maps intensities onto levels.
type Bands struct {
	Dim    float64 // intensity at or above which a point is dim
	Bright float64 // intensity at or above which a point is bright
}

var DefaultBands = Bands{Dim: 0.25, Bright: 0.75}

func (b Bands) Level(intensity float64) Level {
	switch {
	case intensity >= b.Bright:
		return Bright
	case intensity >= b.Dim:
		return Dim
	}
	return Dark
}

// Illumination is the effective light at a point. SourceEntity is empty when
// the ambient baseline wins.
type Illumination struct {
	Level        Level
	Intensity    float64
	Color        string
	SourceEntity string
}

// Falloff gives the intensity of one light at a distance within its radius.
type Falloff interface {
	Intensity(distance, brightRadius, radius float64) float64
}

// StepFalloff is full intensity inside the bright radius and DimIntensity in
// the ring out to the full radius.
type StepFalloff struct {
	DimIntensity float64
}

func (f StepFalloff) Intensity(distance, brightRadius, radius float64) float64 {
	switch {
	case distance <= brightRadius:
		return 1
	case distance <= radius:
		return f.DimIntensity
	}
	return 0
}

// Occluder answers wall-blocking queries between two points on a floor.
type Occluder interface {
	BlocksRay(floor int, ox, oy, tx, ty float64) bool
}

// Anchors locates the entity a light is attached to.
type Anchors interface {
	Anchor(entityID string) (x, y float64, floor int, ok bool)
}

const tieEpsilon = 1e-9

// Evaluator computes illumination from the registry's active lights and an
// ambient baseline. Light never stacks: the strongest single contribution
// wins, and its colour is reported. Equal intensities go to the nearest
// light, and ambient keeps ties against lights.
type Evaluator struct {
	registry *Registry
	catalog  Catalog
	anchors  Anchors
	occ      Occluder
	falloff  Falloff
	bands    Bands
	ambient  float64
}

type EvaluatorOptions struct {
	Falloff Falloff // nil means StepFalloff{DimIntensity: 0.5}
	Bands   Bands   // zero value means DefaultBands
	Ambient float64
}

func NewEvaluator(reg *Registry, catalog Catalog, anchors Anchors, occ Occluder, opts EvaluatorOptions) *Evaluator {
	e := &Evaluator{
		registry: reg,
		catalog:  catalog,
		anchors:  anchors,
		occ:      occ,
		falloff:  opts.Falloff,
		bands:    opts.Bands,
	}
	if e.falloff == nil {
		e.falloff = StepFalloff{DimIntensity: 0.5}
	}
	if e.bands == (Bands{}) {
		e.bands = DefaultBands
	}
	e.SetAmbient(opts.Ambient)
	return e
}

// SetAmbient changes the baseline intensity, clamped to [0, 1]. Non-finite
// values are ignored.
func (e *Evaluator) SetAmbient(intensity float64) {
	if !grid.Finite(intensity) {
		return
	}
	e.ambient = clamp01(intensity)
}

func (e *Evaluator) Ambient() Illumination {
	return Illumination{Level: e.bands.Level(e.ambient), Intensity: e.ambient}
}

// GetLightingAtPoint evaluates the illumination at (x, y) in cell space on a
// floor. A non-finite point is rejected with the ambient result.
func (e *Evaluator) GetLightingAtPoint(floor int, x, y float64) (Illumination, error) {
	best := e.Ambient()
	if !grid.Finite(x) || !grid.Finite(y) {
		return best, fmt.Errorf("lighting point (%v,%v): %w", x, y, grid.ErrInvalidGeometry)
	}
	if e.registry == nil {
		return best, nil
	}

	bestDist := math.Inf(1)
	for _, light := range e.registry.Snapshot() {
		src, ok := e.catalog.Get(light.SourceKey)
		if !ok {
			continue
		}
		ax, ay, af, ok := e.anchors.Anchor(light.EntityID)
		if !ok || af != floor {
			continue
		}
		d := grid.Distance(ax, ay, x, y)
		if d > src.RadiusCells {
			continue
		}
		if !src.IgnoresWalls && e.occ != nil && e.occ.BlocksRay(floor, ax, ay, x, y) {
			continue
		}
		in := clamp01(e.falloff.Intensity(d, src.Bright(), src.RadiusCells))
		better := in > best.Intensity+tieEpsilon
		tie := math.Abs(in-best.Intensity) <= tieEpsilon && best.SourceEntity != "" && d < bestDist
		if better || tie {
			best = Illumination{Intensity: in, Color: src.Color, SourceEntity: light.EntityID}
			bestDist = d
		}
	}
	best.Level = e.bands.Level(best.Intensity)
	return best, nil
}

// LightingAtCell evaluates at a cell centre.
func (e *Evaluator) LightingAtCell(floor int, c grid.CellCoord) Illumination {
	x, y := c.Center()
	ill, _ := e.GetLightingAtPoint(floor, x, y)
	return ill
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
