package vision

import (
	"math"
	"sort"

	"github.com/EvilPatrick06/DnD-sub018/internal/grid"
	"github.com/EvilPatrick06/DnD-sub018/internal/world"
)

// Occluder answers ray-blocking queries between points in cell space.
type Occluder interface {
	BlocksRay(floor int, ox, oy, tx, ty float64) bool
}

// versioned occluders let the tracker notice wall edits on its own.
type versioned interface {
	Version(floor int) uint64
}

// VisionSet is the set of cells one observer perceives, plus the ids of the
// tokens standing in them. It is never mutated once built.
type VisionSet struct {
	Observer string
	Floor    int
	Origin   grid.CellCoord
	Radius   float64

	cells       map[grid.CellCoord]struct{}
	tokens      map[string]struct{}
	wallVersion uint64
}

func emptySet(observer world.Token) *VisionSet {
	return &VisionSet{
		Observer: observer.ID,
		Floor:    observer.Floor,
		Origin:   observer.Cell(),
		Radius:   observer.VisionRadius,
		cells:    make(map[grid.CellCoord]struct{}),
		tokens:   make(map[string]struct{}),
	}
}

// Contains reports whether a cell is visible. Safe on a nil set.
func (v *VisionSet) Contains(c grid.CellCoord) bool {
	if v == nil {
		return false
	}
	_, ok := v.cells[c]
	return ok
}

// Len returns the number of visible cells.
func (v *VisionSet) Len() int {
	if v == nil {
		return 0
	}
	return len(v.cells)
}

// Cells returns the visible cells ordered by row, then column.
func (v *VisionSet) Cells() []grid.CellCoord {
	if v == nil {
		return nil
	}
	out := make([]grid.CellCoord, 0, len(v.cells))
	for c := range v.cells {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// TokenVisible reports whether the token id was in view when the set was built.
func (v *VisionSet) TokenVisible(id string) bool {
	if v == nil {
		return false
	}
	_, ok := v.tokens[id]
	return ok
}

// Tokens returns the visible token ids in order.
func (v *VisionSet) Tokens() []string {
	if v == nil {
		return nil
	}
	out := make([]string, 0, len(v.tokens))
	for id := range v.tokens {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SubsetOf reports whether every visible cell of v is visible in other.
func (v *VisionSet) SubsetOf(other *VisionSet) bool {
	for c := range v.cells {
		if !other.Contains(c) {
			return false
		}
	}
	return true
}

// BuildVisionSet scans the bounding square of the observer's vision radius and
// keeps every cell whose centre is within the radius and not ray-blocked from
// the observer's centre. The observer's own cell is always visible, so a
// radius of 0 yields exactly that cell. A nil occluder means no walls.
func BuildVisionSet(observer world.Token, occ Occluder) (*VisionSet, error) {
	if err := grid.ValidateRadius("vision radius of "+observer.ID, observer.VisionRadius); err != nil {
		return emptySet(observer), err
	}

	set := emptySet(observer)
	if vo, ok := occ.(versioned); ok {
		set.wallVersion = vo.Version(observer.Floor)
	}

	origin := observer.Cell()
	ox, oy := origin.Center()
	r := observer.VisionRadius
	reach := int(math.Floor(r))

	set.cells[origin] = struct{}{}
	for dy := -reach; dy <= reach; dy++ {
		for dx := -reach; dx <= reach; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if math.Hypot(float64(dx), float64(dy)) > r {
				continue
			}
			c := grid.CellCoord{X: origin.X + dx, Y: origin.Y + dy}
			if occ != nil {
				tx, ty := c.Center()
				if occ.BlocksRay(observer.Floor, ox, oy, tx, ty) {
					continue
				}
			}
			set.cells[c] = struct{}{}
		}
	}
	return set, nil
}
