package audio

import (
	"github.com/EvilPatrick06/DnD-sub018/internal/grid"
)

// Emitter is a sound source placed on the map. X and Y are cell coordinates;
// distances are measured between cell centres.
type Emitter struct {
	ID      string  `yaml:"id"`
	Track   string  `yaml:"track"`
	X       float64 `yaml:"x"`
	Y       float64 `yaml:"y"`
	Radius  float64 `yaml:"radius"`
	Volume  float64 `yaml:"volume"`
	Spatial bool    `yaml:"spatial"`
	Playing bool    `yaml:"playing"`
}

// CalculateSpatialVolume returns the emitter's gain heard at the listener
// cell (lx, ly). Non-spatial emitters play at their base volume everywhere.
// Spatial emitters fall off linearly and are silent at or beyond Radius.
// Walls do not attenuate sound.
func CalculateSpatialVolume(e Emitter, lx, ly float64) float64 {
	base := e.Volume
	if !grid.Finite(base) || base <= 0 {
		return 0
	}
	if !e.Spatial {
		return base
	}
	if !grid.Finite(e.Radius) || e.Radius <= 0 {
		return 0
	}
	d := grid.Distance(e.X+0.5, e.Y+0.5, lx+0.5, ly+0.5)
	if !grid.Finite(d) || d >= e.Radius {
		return 0
	}
	return base * (1 - d/e.Radius)
}
