package occlusion

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/EvilPatrick06/DnD-sub018/internal/grid"
)

// Walls are bucketed into square chunks so a ray only tests the walls in the
// chunks it passes through. Chunks are keyed per floor.
const chunkSize = 16

// MaxCoordinate bounds wall endpoints in cells. Rays reaching beyond it fall
// back to a scan of every wall.
const MaxCoordinate = 1 << 24

// slack widens chunk walks so intersections found within the segment test's
// tolerance are never missed at a chunk border.
const slack = 1e-6

// Wall is a sight and light blocker in cell coordinates. A wall on the grid
// line x=5 separates cell column 4 from column 5.
type Wall struct {
	ID    string  `yaml:"id"`
	X1    float64 `yaml:"x1"`
	Y1    float64 `yaml:"y1"`
	X2    float64 `yaml:"x2"`
	Y2    float64 `yaml:"y2"`
	Floor int     `yaml:"floor"`
}

func (w Wall) validate() error {
	for _, v := range [...]float64{w.X1, w.Y1, w.X2, w.Y2} {
		if !grid.Finite(v) || math.Abs(v) > MaxCoordinate {
			return fmt.Errorf("wall %q endpoint %v: %w", w.ID, v, grid.ErrInvalidGeometry)
		}
	}
	if w.ID == "" {
		return fmt.Errorf("wall without id: %w", grid.ErrInvalidGeometry)
	}
	return nil
}

// ErrDuplicateWall rejects a wall set in which two walls share an id.
var ErrDuplicateWall = errors.New("duplicate wall id")

type chunkKey struct {
	floor int
	cx    int
	cy    int
}

func toChunk(v float64) int {
	return int(math.Floor(v / chunkSize))
}

func inBounds(vs ...float64) bool {
	for _, v := range vs {
		if math.Abs(v) > MaxCoordinate {
			return false
		}
	}
	return true
}

type entry struct {
	wall  Wall
	stamp uint64 // last query that tested this wall
}

// Index holds the wall segments of the active map.
// Owned by the session's loop goroutine: one writer path, no locks.
type Index struct {
	walls    map[string]*entry
	chunks   map[chunkKey]map[string]*entry
	versions map[int]uint64
	query    uint64
}

func NewIndex() *Index {
	return &Index{
		walls:    make(map[string]*entry),
		chunks:   make(map[chunkKey]map[string]*entry),
		versions: make(map[int]uint64),
	}
}

// Replace swaps the whole wall set. Nothing changes if any wall is invalid
// or two walls share an id.
func (ix *Index) Replace(walls []Wall) error {
	ids := make(map[string]struct{}, len(walls))
	for _, w := range walls {
		if err := w.validate(); err != nil {
			return err
		}
		if _, dup := ids[w.ID]; dup {
			return fmt.Errorf("duplicate wall %q: %w", w.ID, ErrDuplicateWall)
		}
		ids[w.ID] = struct{}{}
	}
	for _, e := range ix.walls {
		ix.versions[e.wall.Floor]++
	}
	ix.walls = make(map[string]*entry, len(walls))
	ix.chunks = make(map[chunkKey]map[string]*entry)
	for _, w := range walls {
		ix.insert(w)
	}
	return nil
}

// Upsert adds a wall or replaces the wall with the same id.
func (ix *Index) Upsert(w Wall) error {
	if err := w.validate(); err != nil {
		return err
	}
	ix.Remove(w.ID)
	ix.insert(w)
	return nil
}

// Remove deletes a wall by id and reports whether it existed.
func (ix *Index) Remove(id string) bool {
	e, ok := ix.walls[id]
	if !ok {
		return false
	}
	ix.eachChunk(e.wall.Floor, e.wall.X1, e.wall.Y1, e.wall.X2, e.wall.Y2, func(k chunkKey) {
		bucket := ix.chunks[k]
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(ix.chunks, k)
		}
	})
	delete(ix.walls, id)
	ix.versions[e.wall.Floor]++
	return true
}

func (ix *Index) insert(w Wall) {
	e := &entry{wall: w}
	ix.walls[w.ID] = e
	ix.eachChunk(w.Floor, w.X1, w.Y1, w.X2, w.Y2, func(k chunkKey) {
		bucket := ix.chunks[k]
		if bucket == nil {
			bucket = make(map[string]*entry)
			ix.chunks[k] = bucket
		}
		bucket[w.ID] = e
	})
	ix.versions[w.Floor]++
}

// eachChunk visits the chunks a segment passes through, column by column.
// Within a column only the rows spanned by the segment's y range there are
// visited, so long diagonals touch O(columns+rows) chunks. Any point shared
// by a wall and a ray falls in a chunk both visit.
func (ix *Index) eachChunk(floor int, x1, y1, x2, y2 float64, fn func(chunkKey)) {
	if x1 > x2 {
		x1, y1, x2, y2 = x2, y2, x1, y1
	}
	dx := x2 - x1
	yAt := func(x float64) float64 {
		if dx == 0 {
			return y1
		}
		return y1 + (x-x1)*(y2-y1)/dx
	}
	for cx := toChunk(x1 - slack); cx <= toChunk(x2+slack); cx++ {
		lo := math.Max(x1, float64(cx)*chunkSize)
		hi := math.Min(x2, float64(cx+1)*chunkSize)
		ya, yb := yAt(lo), yAt(hi)
		if dx == 0 {
			ya, yb = y1, y2
		}
		minY, maxY := toChunk(math.Min(ya, yb)-slack), toChunk(math.Max(ya, yb)+slack)
		for cy := minY; cy <= maxY; cy++ {
			fn(chunkKey{floor: floor, cx: cx, cy: cy})
		}
	}
}

// Version changes whenever a wall on the floor is added, edited or removed.
func (ix *Index) Version(floor int) uint64 {
	return ix.versions[floor]
}

// Len returns the number of walls across all floors.
func (ix *Index) Len() int {
	return len(ix.walls)
}

// Get returns a wall by id.
func (ix *Index) Get(id string) (Wall, bool) {
	e, ok := ix.walls[id]
	if !ok {
		return Wall{}, false
	}
	return e.wall, true
}

// Floors returns the floors that currently hold walls, ascending.
func (ix *Index) Floors() []int {
	seen := make(map[int]struct{})
	for _, e := range ix.walls {
		seen[e.wall.Floor] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Ints(out)
	return out
}

// Walls returns the walls on one floor ordered by id.
func (ix *Index) Walls(floor int) []Wall {
	var out []Wall
	for _, e := range ix.walls {
		if e.wall.Floor == floor {
			out = append(out, e.wall)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BlocksRay reports whether any wall on the floor intersects the segment
// between the two points. Passing exactly through a wall endpoint counts as
// blocked. Non-finite input is treated as blocked.
func (ix *Index) BlocksRay(floor int, ox, oy, tx, ty float64) bool {
	if !grid.Finite(ox) || !grid.Finite(oy) || !grid.Finite(tx) || !grid.Finite(ty) {
		return true
	}
	if len(ix.walls) == 0 {
		return false
	}
	if !inBounds(ox, oy, tx, ty) {
		for _, e := range ix.walls {
			w := e.wall
			if w.Floor == floor && segmentsIntersect(ox, oy, tx, ty, w.X1, w.Y1, w.X2, w.Y2) {
				return true
			}
		}
		return false
	}
	ix.query++
	stamp := ix.query
	blocked := false
	ix.eachChunk(floor, ox, oy, tx, ty, func(k chunkKey) {
		if blocked {
			return
		}
		for _, e := range ix.chunks[k] {
			if e.stamp == stamp {
				continue
			}
			e.stamp = stamp
			w := e.wall
			if segmentsIntersect(ox, oy, tx, ty, w.X1, w.Y1, w.X2, w.Y2) {
				blocked = true
				return
			}
		}
	})
	return blocked
}

// BlocksCells tests the ray between two cell centres.
func (ix *Index) BlocksCells(floor int, from, to grid.CellCoord) bool {
	ox, oy := from.Center()
	tx, ty := to.Center()
	return ix.BlocksRay(floor, ox, oy, tx, ty)
}
