package occlusion

import (
	"math"
	"testing"

	"github.com/EvilPatrick06/DnD-sub018/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlocksRay(t *testing.T) {
	t.Run("empty index never blocks", func(t *testing.T) {
		ix := NewIndex()
		assert.False(t, ix.BlocksRay(0, 0, 0, 100, 100))
	})

	t.Run("vertical wall splits the room", func(t *testing.T) {
		ix := NewIndex()
		require.NoError(t, ix.Replace([]Wall{{ID: "w1", X1: 5, Y1: 0, X2: 5, Y2: 10}}))

		assert.True(t, ix.BlocksCells(0, grid.CellCoord{X: 0, Y: 5}, grid.CellCoord{X: 10, Y: 5}))
		assert.False(t, ix.BlocksCells(0, grid.CellCoord{X: 0, Y: 5}, grid.CellCoord{X: 3, Y: 5}))
	})

	t.Run("ray through a wall endpoint is blocked", func(t *testing.T) {
		ix := NewIndex()
		require.NoError(t, ix.Upsert(Wall{ID: "corner", X1: 2, Y1: 2, X2: 2, Y2: 0}))

		// Diagonal from (0,0) to (4,4) passes exactly through (2,2).
		assert.True(t, ix.BlocksRay(0, 0, 0, 4, 4))
		// Slightly off the endpoint clears it.
		assert.False(t, ix.BlocksRay(0, 0, 0.5, 4, 4.5))
	})

	t.Run("collinear overlap blocks", func(t *testing.T) {
		ix := NewIndex()
		require.NoError(t, ix.Upsert(Wall{ID: "rail", X1: 0, Y1: 1, X2: 10, Y2: 1}))
		assert.True(t, ix.BlocksRay(0, 2, 1, 4, 1))
	})

	t.Run("walls on other floors are ignored", func(t *testing.T) {
		ix := NewIndex()
		require.NoError(t, ix.Upsert(Wall{ID: "up", X1: 5, Y1: 0, X2: 5, Y2: 10, Floor: 1}))
		assert.False(t, ix.BlocksRay(0, 0.5, 5.5, 10.5, 5.5))
		assert.True(t, ix.BlocksRay(1, 0.5, 5.5, 10.5, 5.5))
	})

	t.Run("walls spanning chunks are found from every chunk", func(t *testing.T) {
		ix := NewIndex()
		require.NoError(t, ix.Upsert(Wall{ID: "long", X1: -40, Y1: 33, X2: 70, Y2: 33}))
		assert.True(t, ix.BlocksRay(0, 50.5, 20.5, 50.5, 40.5))
		assert.True(t, ix.BlocksRay(0, -30.5, 20.5, -30.5, 40.5))
		assert.False(t, ix.BlocksRay(0, 80.5, 20.5, 80.5, 40.5))
	})

	t.Run("non-finite rays are treated as blocked", func(t *testing.T) {
		ix := NewIndex()
		assert.True(t, ix.BlocksRay(0, math.NaN(), 0, 1, 1))
	})
}

func TestIndexWrites(t *testing.T) {
	t.Run("replace rejects invalid walls atomically", func(t *testing.T) {
		ix := NewIndex()
		require.NoError(t, ix.Replace([]Wall{{ID: "a", X2: 1}}))

		err := ix.Replace([]Wall{{ID: "b", X2: 1}, {ID: "c", X1: math.Inf(1)}})
		assert.ErrorIs(t, err, grid.ErrInvalidGeometry)
		assert.Equal(t, []Wall{{ID: "a", X2: 1}}, ix.Walls(0))
	})

	t.Run("replace rejects duplicate ids", func(t *testing.T) {
		ix := NewIndex()
		require.NoError(t, ix.Replace([]Wall{{ID: "a", X2: 1}}))

		err := ix.Replace([]Wall{
			{ID: "w", X1: 5, Y1: 0, X2: 5, Y2: 10},
			{ID: "w", X1: 100, Y1: 100, X2: 100, Y2: 110},
			{ID: "z", X1: 20, X2: 20, Y2: 1},
		})
		assert.ErrorIs(t, err, ErrDuplicateWall)
		assert.Equal(t, []Wall{{ID: "a", X2: 1}}, ix.Walls(0))
		assert.False(t, ix.BlocksRay(0, 0.5, 5.5, 10.5, 5.5))
	})

	t.Run("removed walls leave no trace in any chunk", func(t *testing.T) {
		ix := NewIndex()
		require.NoError(t, ix.Replace([]Wall{
			{ID: "w", X1: 5, Y1: 0, X2: 5, Y2: 10},
			{ID: "z", X1: 100, Y1: 100, X2: 100, Y2: 110},
		}))
		require.True(t, ix.Remove("w"))
		assert.False(t, ix.BlocksRay(0, 0.5, 5.5, 10.5, 5.5))
		assert.Empty(t, ix.chunks[chunkKey{cx: 0, cy: 0}])
	})

	t.Run("endpoints beyond the coordinate bound are rejected", func(t *testing.T) {
		ix := NewIndex()
		err := ix.Upsert(Wall{ID: "long", X1: 5, Y1: -1e11, X2: 5, Y2: 1e11})
		assert.ErrorIs(t, err, grid.ErrInvalidGeometry)
		assert.Equal(t, 0, ix.Len())
	})

	t.Run("walls at the coordinate bound still block", func(t *testing.T) {
		ix := NewIndex()
		require.NoError(t, ix.Upsert(Wall{ID: "edge", X1: MaxCoordinate, Y1: 0, X2: MaxCoordinate, Y2: 10}))
		assert.True(t, ix.BlocksRay(0, MaxCoordinate-1, 5, MaxCoordinate, 5))
		assert.True(t, ix.BlocksRay(0, -1e12, 5, 1e12, 5), "rays past the bound scan every wall")
		assert.False(t, ix.BlocksRay(0, -1e12, 5, 10, 5))
	})

	t.Run("long diagonals only touch the chunks they cross", func(t *testing.T) {
		ix := NewIndex()
		require.NoError(t, ix.Upsert(Wall{ID: "diag", X1: 0, Y1: 0, X2: 1e5, Y2: 1e5}))
		assert.Less(t, len(ix.chunks), 4*int(1e5/chunkSize))
		assert.True(t, ix.BlocksRay(0, 50000.5, 49990, 50000.5, 50010))
		assert.False(t, ix.BlocksRay(0, 50000.5, 49000, 50000.5, 49990))

		require.True(t, ix.Remove("diag"))
		assert.Empty(t, ix.chunks)
	})

	t.Run("upsert moves a wall and remove deletes it", func(t *testing.T) {
		ix := NewIndex()
		require.NoError(t, ix.Upsert(Wall{ID: "door", X1: 5, Y1: 0, X2: 5, Y2: 10}))
		require.NoError(t, ix.Upsert(Wall{ID: "door", X1: 50, Y1: 0, X2: 50, Y2: 10}))
		assert.Equal(t, 1, ix.Len())
		assert.False(t, ix.BlocksRay(0, 0.5, 5.5, 10.5, 5.5))

		assert.True(t, ix.Remove("door"))
		assert.False(t, ix.Remove("door"))
		assert.Equal(t, 0, ix.Len())
	})

	t.Run("version tracks edits per floor", func(t *testing.T) {
		ix := NewIndex()
		v0, v1 := ix.Version(0), ix.Version(1)
		require.NoError(t, ix.Upsert(Wall{ID: "x", X2: 1, Floor: 1}))
		assert.Equal(t, v0, ix.Version(0))
		assert.NotEqual(t, v1, ix.Version(1))
	})
}

func TestSegmentsIntersect(t *testing.T) {
	cases := []struct {
		name string
		seg  [8]float64
		want bool
	}{
		{"crossing", [8]float64{0, 0, 2, 2, 0, 2, 2, 0}, true},
		{"parallel", [8]float64{0, 0, 2, 0, 0, 1, 2, 1}, false},
		{"touching end", [8]float64{0, 0, 1, 1, 1, 1, 2, 0}, true},
		{"disjoint collinear", [8]float64{0, 0, 1, 0, 2, 0, 3, 0}, false},
		{"short of wall", [8]float64{0, 0, 0.9, 0, 1, -1, 1, 1}, false},
		{"point wall on ray", [8]float64{0, 0, 4, 0, 2, 0, 2, 0}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.seg
			assert.Equal(t, tc.want, segmentsIntersect(s[0], s[1], s[2], s[3], s[4], s[5], s[6], s[7]))
		})
	}
}
