package grid

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGeometry marks a negative or non-finite radius, size or coordinate.
// Callers get it wrapped with context; never clamp instead of returning it.
var ErrInvalidGeometry = errors.New("invalid geometry")

// CellCoord addresses one grid square in cell space.
type CellCoord struct {
	X int
	Y int
}

// Center returns the cell centre in cell space.
func (c CellCoord) Center() (float64, float64) {
	return float64(c.X) + 0.5, float64(c.Y) + 0.5
}

func (c CellCoord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Grid converts between pixel and cell coordinates.
// Everything cached by the engine lives in cell space, so changing the cell
// size (zoom) only affects rendering.
type Grid struct {
	cellSize float64
}

func New(cellSize float64) (Grid, error) {
	if !Finite(cellSize) || cellSize <= 0 {
		return Grid{}, fmt.Errorf("cell size %v: %w", cellSize, ErrInvalidGeometry)
	}
	return Grid{cellSize: cellSize}, nil
}

func (g Grid) CellSize() float64 { return g.cellSize }

// ToCell maps a pixel position to the cell that contains it.
// Non-finite input maps to the origin cell.
func (g Grid) ToCell(px, py float64) CellCoord {
	return CellCoord{X: g.axisToCell(px), Y: g.axisToCell(py)}
}

func (g Grid) axisToCell(v float64) int {
	if !Finite(v) || g.cellSize <= 0 {
		return 0
	}
	return int(math.Floor(v / g.cellSize))
}

// ToPixelCenter returns the pixel position of a cell's centre.
func (g Grid) ToPixelCenter(c CellCoord) (float64, float64) {
	cx, cy := c.Center()
	return cx * g.cellSize, cy * g.cellSize
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Distance is the Euclidean distance between two points in cell space.
func Distance(ax, ay, bx, by float64) float64 {
	return math.Hypot(bx-ax, by-ay)
}

// CellDistance is the Euclidean distance between two cell centres.
func CellDistance(a, b CellCoord) float64 {
	return math.Hypot(float64(b.X-a.X), float64(b.Y-a.Y))
}

// ValidateRadius rejects negative and non-finite radii.
func ValidateRadius(what string, r float64) error {
	if !Finite(r) || r < 0 {
		return fmt.Errorf("%s %v: %w", what, r, ErrInvalidGeometry)
	}
	return nil
}
