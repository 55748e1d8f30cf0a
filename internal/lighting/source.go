package lighting

// Source is a catalog entry describing a kind of light.
type Source struct {
	Key               string
	Label             string
	RadiusCells       float64
	BrightRadiusCells float64 // 0 means the whole radius is bright
	Color             string
	DurationSeconds   float64 // +Inf never expires
	IgnoresWalls      bool    // magical light that shines through walls
}

// Bright returns the radius of full intensity.
func (s Source) Bright() float64 {
	if s.BrightRadiusCells <= 0 || s.BrightRadiusCells > s.RadiusCells {
		return s.RadiusCells
	}
	return s.BrightRadiusCells
}

// Catalog resolves light keys to their definitions.
type Catalog interface {
	Get(key string) (Source, bool)
}

// StaticCatalog is an in-memory catalog keyed by source key.
type StaticCatalog map[string]Source

func (c StaticCatalog) Get(key string) (Source, bool) {
	s, ok := c[key]
	return s, ok
}
