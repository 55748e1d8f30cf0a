package grid_test

import (
	"errors"
	"math"
	"testing"

	"github.com/EvilPatrick06/DnD-sub018/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrid(t *testing.T) {
	t.Run("rejects non-positive cell size", func(t *testing.T) {
		for _, size := range []float64{0, -1, math.NaN(), math.Inf(1)} {
			_, err := grid.New(size)
			assert.True(t, errors.Is(err, grid.ErrInvalidGeometry), "size %v", size)
		}
	})

	t.Run("pixel to cell floors toward negative infinity", func(t *testing.T) {
		g, err := grid.New(50)
		require.NoError(t, err)

		assert.Equal(t, grid.CellCoord{X: 0, Y: 0}, g.ToCell(0, 49.9))
		assert.Equal(t, grid.CellCoord{X: 2, Y: 1}, g.ToCell(100, 50))
		assert.Equal(t, grid.CellCoord{X: -1, Y: -1}, g.ToCell(-0.1, -50))
	})

	t.Run("non-finite pixels map to the origin cell", func(t *testing.T) {
		g, _ := grid.New(50)
		assert.Equal(t, grid.CellCoord{}, g.ToCell(math.NaN(), math.Inf(-1)))
	})

	t.Run("cell centre round trips", func(t *testing.T) {
		g, _ := grid.New(64)
		c := grid.CellCoord{X: 3, Y: -2}
		px, py := g.ToPixelCenter(c)
		assert.Equal(t, 224.0, px)
		assert.Equal(t, -96.0, py)
		assert.Equal(t, c, g.ToCell(px, py))
	})
}

func TestValidateRadius(t *testing.T) {
	assert.NoError(t, grid.ValidateRadius("radius", 0))
	assert.NoError(t, grid.ValidateRadius("radius", 12.5))
	assert.ErrorIs(t, grid.ValidateRadius("radius", -1), grid.ErrInvalidGeometry)
	assert.ErrorIs(t, grid.ValidateRadius("radius", math.NaN()), grid.ErrInvalidGeometry)
	assert.ErrorIs(t, grid.ValidateRadius("radius", math.Inf(1)), grid.ErrInvalidGeometry)
}

func TestCellDistance(t *testing.T) {
	assert.Equal(t, 5.0, grid.CellDistance(grid.CellCoord{X: 0, Y: 0}, grid.CellCoord{X: 3, Y: 4}))
	assert.Equal(t, 0.0, grid.CellDistance(grid.CellCoord{X: 7, Y: 7}, grid.CellCoord{X: 7, Y: 7}))
}
