package world

import (
	"math"
	"testing"

	"github.com/EvilPatrick06/DnD-sub018/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(tokens []Token) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.ID)
	}
	return out
}

func TestState(t *testing.T) {
	t.Run("place validates vision radius", func(t *testing.T) {
		s := NewState()
		err := s.Place(Token{ID: "a", VisionRadius: -1})
		assert.ErrorIs(t, err, grid.ErrInvalidGeometry)
		err = s.Place(Token{ID: "a", VisionRadius: math.NaN()})
		assert.ErrorIs(t, err, grid.ErrInvalidGeometry)
		assert.Equal(t, 0, s.TokenCount())
	})

	t.Run("nearby follows moves across buckets and floors", func(t *testing.T) {
		s := NewState()
		require.NoError(t, s.Place(Token{ID: "a", X: 0, Y: 0}))
		require.NoError(t, s.Place(Token{ID: "b", X: 3, Y: 4}))
		require.NoError(t, s.Place(Token{ID: "c", X: 30, Y: 30}))
		require.NoError(t, s.Place(Token{ID: "d", X: 1, Y: 1, Floor: 2}))

		assert.Equal(t, []string{"a", "b"}, ids(s.Nearby(0, 0, 0, 5)))

		_, ok := s.Move("c", -2, 0, 0)
		require.True(t, ok)
		assert.Equal(t, []string{"a", "b", "c"}, ids(s.Nearby(0, 0, 0, 5)))

		_, ok = s.Move("b", 3, 4, 2)
		require.True(t, ok)
		assert.Equal(t, []string{"a", "c"}, ids(s.Nearby(0, 0, 0, 5)))
		assert.Equal(t, []string{"b", "d"}, ids(s.Nearby(2, 0, 0, 5)))
	})

	t.Run("negative coordinates bucket correctly", func(t *testing.T) {
		s := NewState()
		require.NoError(t, s.Place(Token{ID: "neg", X: -9, Y: -1}))
		assert.Equal(t, []string{"neg"}, ids(s.Nearby(0, -8, 0, 1.5)))
	})

	t.Run("remove and anchor", func(t *testing.T) {
		s := NewState()
		require.NoError(t, s.Place(Token{ID: "a", X: 2, Y: 3, Floor: 1}))
		x, y, floor, ok := s.Anchor("a")
		require.True(t, ok)
		assert.Equal(t, []float64{2.5, 3.5}, []float64{x, y})
		assert.Equal(t, 1, floor)

		_, ok = s.Remove("a")
		assert.True(t, ok)
		_, _, _, ok = s.Anchor("a")
		assert.False(t, ok)
		assert.Empty(t, s.Nearby(1, 2, 3, 10))
	})

	t.Run("set vision radius", func(t *testing.T) {
		s := NewState()
		require.NoError(t, s.Place(Token{ID: "a", VisionRadius: 6}))
		tok, err := s.SetVisionRadius("a", 0)
		require.NoError(t, err)
		assert.Equal(t, 0.0, tok.VisionRadius)
		_, err = s.SetVisionRadius("a", math.Inf(1))
		assert.ErrorIs(t, err, grid.ErrInvalidGeometry)
		_, err = s.SetVisionRadius("ghost", 1)
		assert.Error(t, err)
	})
}
