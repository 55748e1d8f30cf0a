package world

// AOIGrid buckets token ids by coarse cell so neighbourhood queries only
// touch nearby buckets. Accessed only from the session loop goroutine, no locks.

const aoiCellSize = 8

type aoiKey struct {
	floor int
	cx    int
	cy    int
}

func toAOICoord(v int) int {
	if v < 0 {
		return (v - aoiCellSize + 1) / aoiCellSize
	}
	return v / aoiCellSize
}

type AOIGrid struct {
	cells map[aoiKey]map[string]struct{} // aoiKey → set of token ids
}

func NewAOIGrid() *AOIGrid {
	return &AOIGrid{
		cells: make(map[aoiKey]map[string]struct{}),
	}
}

func (g *AOIGrid) key(x, y, floor int) aoiKey {
	return aoiKey{floor: floor, cx: toAOICoord(x), cy: toAOICoord(y)}
}

// Add places a token into the grid.
func (g *AOIGrid) Add(id string, x, y, floor int) {
	k := g.key(x, y, floor)
	cell := g.cells[k]
	if cell == nil {
		cell = make(map[string]struct{})
		g.cells[k] = cell
	}
	cell[id] = struct{}{}
}

// Remove takes a token out of the grid.
func (g *AOIGrid) Remove(id string, x, y, floor int) {
	k := g.key(x, y, floor)
	cell := g.cells[k]
	if cell != nil {
		delete(cell, id)
		if len(cell) == 0 {
			delete(g.cells, k)
		}
	}
}

// Move updates a token's bucket when its position changes.
func (g *AOIGrid) Move(id string, oldX, oldY, oldFloor, newX, newY, newFloor int) {
	if g.key(oldX, oldY, oldFloor) == g.key(newX, newY, newFloor) {
		return
	}
	g.Remove(id, oldX, oldY, oldFloor)
	g.Add(id, newX, newY, newFloor)
}

// GetNearbyInto appends to buf every id in buckets overlapping the square of
// the given Chebyshev reach around (x, y). Caller does fine-grained filtering.
func (g *AOIGrid) GetNearbyInto(x, y, floor, reach int, buf []string) []string {
	buf = buf[:0]
	if reach < 0 {
		reach = 0
	}
	minX, maxX := toAOICoord(x-reach), toAOICoord(x+reach)
	minY, maxY := toAOICoord(y-reach), toAOICoord(y+reach)
	for cx := minX; cx <= maxX; cx++ {
		for cy := minY; cy <= maxY; cy++ {
			for id := range g.cells[aoiKey{floor: floor, cx: cx, cy: cy}] {
				buf = append(buf, id)
			}
		}
	}
	return buf
}
