package perception_test

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/EvilPatrick06/DnD-sub018/internal/audio"
	"github.com/EvilPatrick06/DnD-sub018/internal/core/event"
	"github.com/EvilPatrick06/DnD-sub018/internal/data"
	"github.com/EvilPatrick06/DnD-sub018/internal/lighting"
	"github.com/EvilPatrick06/DnD-sub018/internal/occlusion"
	"github.com/EvilPatrick06/DnD-sub018/internal/perception"
	"github.com/EvilPatrick06/DnD-sub018/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 2, 21, 0, 0, 0, time.UTC)

var catalog = lighting.StaticCatalog{
	"torch":  {Key: "torch", Label: "Torch", RadiusCells: 4, Color: "#ffb347", DurationSeconds: 3600},
	"candle": {Key: "candle", Label: "Candle", RadiusCells: 1, Color: "#ffe0a0", DurationSeconds: 600},
}

func newSession(t *testing.T) (*perception.Session, *lighting.ManualClock) {
	t.Helper()
	clock := lighting.NewManualClock(t0)
	s, err := perception.NewSession(perception.Options{
		Name:      "test",
		CellSize:  70,
		Settle:    150 * time.Millisecond,
		MaxRadius: 60,
		Clock:     clock,
	}, catalog, nil)
	require.NoError(t, err)
	return s, clock
}

// drain delivers the events emitted so far.
func drain(s *perception.Session) {
	s.Bus().SwapBuffers()
	s.Bus().DispatchAll()
}

func TestNewSessionValidates(t *testing.T) {
	_, err := perception.NewSession(perception.Options{CellSize: 0}, catalog, nil)
	assert.ErrorIs(t, err, perception.ErrInvalidGeometry)
	_, err = perception.NewSession(perception.Options{CellSize: 70, Ambient: math.NaN()}, catalog, nil)
	assert.ErrorIs(t, err, perception.ErrInvalidGeometry)
}

func TestWallScenario(t *testing.T) {
	s, _ := newSession(t)
	require.NoError(t, s.SetWalls([]occlusion.Wall{{ID: "w", X1: 5, Y1: 0, X2: 5, Y2: 10}}))
	require.NoError(t, s.PlaceToken(world.Token{ID: "obs", X: 0, Y: 5, VisionRadius: 10}))
	require.NoError(t, s.PlaceToken(world.Token{ID: "far", X: 10, Y: 5}))
	require.NoError(t, s.PlaceToken(world.Token{ID: "near", X: 3, Y: 5}))

	set, ok := s.VisionSet("obs")
	require.True(t, ok)
	assert.False(t, set.Contains(s.Grid().ToCell(10*70+1, 5*70+1)))
	assert.True(t, s.CanSee("obs", "near"))
	assert.False(t, s.CanSee("obs", "far"))
	assert.True(t, s.CanSee("obs", "obs"))

	assert.True(t, s.RemoveWall("w"))
	assert.True(t, s.CanSee("obs", "far"), "vision rebuilt after the wall is removed")
	assert.False(t, s.RemoveWall("w"))

	err := s.SetWalls([]occlusion.Wall{
		{ID: "w", X1: 5, Y1: 0, X2: 5, Y2: 10},
		{ID: "w", X1: 100, Y1: 100, X2: 100, Y2: 110},
	})
	assert.ErrorIs(t, err, occlusion.ErrDuplicateWall)
	assert.True(t, s.CanSee("obs", "far"), "rejected wall set changes nothing")
}

func TestVisionEvents(t *testing.T) {
	s, _ := newSession(t)
	var revealed, concealed []string
	event.Subscribe(s.Bus(), func(e event.TokenRevealed) { revealed = append(revealed, e.Observer+">"+e.Target) })
	event.Subscribe(s.Bus(), func(e event.TokenConcealed) { concealed = append(concealed, e.Observer+">"+e.Target) })

	require.NoError(t, s.PlaceToken(world.Token{ID: "hero", X: 0, Y: 5, VisionRadius: 10}))
	require.NoError(t, s.PlaceToken(world.Token{ID: "ghoul", X: 8, Y: 5, Hidden: true}))
	drain(s)
	assert.Equal(t, []string{"hero>ghoul"}, revealed)

	require.NoError(t, s.UpsertWall(occlusion.Wall{ID: "door", X1: 5, Y1: 0, X2: 5, Y2: 10}))
	drain(s)
	assert.Equal(t, []string{"hero>ghoul"}, concealed)

	shown := s.TokensShownTo("hero")
	require.Len(t, shown, 1)
	assert.Equal(t, "hero", shown[0].ID, "hidden ghoul is gated")
}

func TestMovesAndDrags(t *testing.T) {
	s, clock := newSession(t)
	require.NoError(t, s.SetWalls([]occlusion.Wall{{ID: "w", X1: 5, Y1: 0, X2: 5, Y2: 10}}))
	require.NoError(t, s.PlaceToken(world.Token{ID: "hero", X: 0, Y: 5, VisionRadius: 10}))
	require.NoError(t, s.PlaceToken(world.Token{ID: "ghoul", X: 8, Y: 5}))
	require.False(t, s.CanSee("hero", "ghoul"))

	t.Run("drag keeps the old vision until settled", func(t *testing.T) {
		require.NoError(t, s.DragToken("hero", 6, 5, 0))
		clock.Advance(100 * time.Millisecond)
		s.Tick(clock.Now())
		assert.False(t, s.CanSee("hero", "ghoul"))

		clock.Advance(100 * time.Millisecond)
		s.Tick(clock.Now())
		assert.True(t, s.CanSee("hero", "ghoul"))
	})

	t.Run("a dragged token still sees itself", func(t *testing.T) {
		require.NoError(t, s.DragToken("hero", 9, 5, 0))
		hero, _ := s.Token("hero")
		assert.True(t, s.IsTokenInVisionSet("hero", hero))
		assert.True(t, s.CanSee("hero", "hero"))
		set, _ := s.VisionSet("hero")
		assert.True(t, set.TokenVisible("hero"))

		require.NoError(t, s.DragToken("hero", 2, 5, 1))
		assert.True(t, s.CanSee("hero", "hero"), "floor change mid-drag")
		set, _ = s.VisionSet("hero")
		assert.Equal(t, 0, set.Floor, "cells stay stale until settled")

		clock.Advance(200 * time.Millisecond)
		s.Tick(clock.Now())
		set, _ = s.VisionSet("hero")
		assert.Equal(t, 1, set.Floor)
		assert.True(t, s.CanSee("hero", "hero"))
	})

	t.Run("move commits immediately", func(t *testing.T) {
		require.NoError(t, s.MoveToken("hero", 1, 5, 0))
		assert.False(t, s.CanSee("hero", "ghoul"))
	})

	t.Run("unknown tokens are stale references", func(t *testing.T) {
		assert.ErrorIs(t, s.MoveToken("nobody", 1, 1, 0), perception.ErrUnknownToken)
		assert.ErrorIs(t, s.DragToken("nobody", 1, 1, 0), perception.ErrUnknownToken)
		assert.ErrorIs(t, s.SetVisionRadius("nobody", 3), perception.ErrUnknownToken)
		assert.False(t, s.CanSee("nobody", "hero"))
		assert.False(t, s.IsTokenInVisionSet("nobody", world.Token{ID: "hero"}))
		assert.Nil(t, s.TokensShownTo("nobody"))
	})

	t.Run("changing floors hides tokens", func(t *testing.T) {
		require.NoError(t, s.MoveToken("ghoul", 2, 5, 1))
		assert.False(t, s.CanSee("hero", "ghoul"))
		require.NoError(t, s.MoveToken("ghoul", 2, 5, 0))
		assert.True(t, s.CanSee("hero", "ghoul"))
	})

	t.Run("vision radius is validated", func(t *testing.T) {
		assert.ErrorIs(t, s.SetVisionRadius("hero", 500), perception.ErrInvalidGeometry)
		assert.ErrorIs(t, s.SetVisionRadius("hero", -1), perception.ErrInvalidGeometry)
		assert.ErrorIs(t, s.PlaceToken(world.Token{ID: "eagle", VisionRadius: 61}), perception.ErrInvalidGeometry)

		require.NoError(t, s.SetVisionRadius("hero", 0))
		set, _ := s.VisionSet("hero")
		assert.Equal(t, 1, set.Len())
	})

	t.Run("removed tokens leave every vision set", func(t *testing.T) {
		require.NoError(t, s.SetVisionRadius("hero", 10))
		assert.True(t, s.RemoveToken("ghoul"))
		assert.False(t, s.RemoveToken("ghoul"))
		set, _ := s.VisionSet("hero")
		assert.False(t, set.TokenVisible("ghoul"))
	})
}

func TestTorchScenario(t *testing.T) {
	s, clock := newSession(t)
	require.NoError(t, s.PlaceToken(world.Token{ID: "fighter", X: 0, Y: 0, VisionRadius: 8}))
	require.NoError(t, s.LightSource("fighter", "Torch", "torch", 600))

	var expired []string
	event.Subscribe(s.Bus(), func(e event.LightExpired) { expired = append(expired, e.EntityID) })

	clock.Set(t0.Add(599 * time.Second))
	s.Tick(clock.Now())
	ill := s.GetLightingAtPoint(0, 3.5, 0.5)
	assert.Equal(t, lighting.Bright, ill.Level)
	assert.Equal(t, "fighter", ill.SourceEntity)

	clock.Set(t0.Add(601 * time.Second))
	assert.Equal(t, s.Ambient(), s.GetLightingAtPoint(0, 3.5, 0.5))
	s.Tick(clock.Now())
	drain(s)
	assert.Equal(t, []string{"fighter"}, expired)
	assert.Empty(t, s.ActiveLights())
}

func TestLightingThroughSession(t *testing.T) {
	s, clock := newSession(t)
	require.NoError(t, s.PlaceToken(world.Token{ID: "cleric", X: 2, Y: 2}))

	t.Run("relight replaces", func(t *testing.T) {
		var applied []event.LightApplied
		event.Subscribe(s.Bus(), func(e event.LightApplied) { applied = append(applied, e) })

		require.NoError(t, s.LightFromCatalog("cleric", "candle"))
		require.NoError(t, s.LightFromCatalog("cleric", "torch"))
		drain(s)
		require.Len(t, applied, 2)
		assert.False(t, applied[0].Replaced)
		assert.True(t, applied[1].Replaced)
		assert.Equal(t, "Torch", applied[1].DisplayName)

		lights := s.ActiveLights()
		require.Len(t, lights, 1)
		assert.Equal(t, "torch", lights[0].SourceKey)
	})

	t.Run("relight after burn-out records the expiry first", func(t *testing.T) {
		var history []string
		event.Subscribe(s.Bus(), func(e event.LightApplied) {
			history = append(history, fmt.Sprintf("applied %s replaced=%t", e.SourceKey, e.Replaced))
		})
		event.Subscribe(s.Bus(), func(e event.LightExpired) { history = append(history, "expired "+e.SourceKey) })

		require.NoError(t, s.LightSource("cleric", "Candle", "candle", 5))
		clock.Advance(6 * time.Second)
		require.NoError(t, s.LightFromCatalog("cleric", "torch"))
		drain(s)
		assert.Equal(t, []string{
			"applied candle replaced=true",
			"expired candle",
			"applied torch replaced=false",
		}, history)
	})

	t.Run("unknown source", func(t *testing.T) {
		assert.ErrorIs(t, s.LightSource("cleric", "Sunrod", "sunrod", 60), perception.ErrUnknownSource)
		assert.ErrorIs(t, s.LightFromCatalog("cleric", "sunrod"), perception.ErrUnknownSource)
	})

	t.Run("lights of removed tokens stop contributing", func(t *testing.T) {
		assert.Equal(t, lighting.Bright, s.GetLightingAtPoint(0, 4.5, 2.5).Level)
		s.RemoveToken("cleric")
		assert.Equal(t, lighting.Dark, s.GetLightingAtPoint(0, 4.5, 2.5).Level)
	})

	t.Run("invalid points answer ambient", func(t *testing.T) {
		require.NoError(t, s.SetAmbient(0.5))
		assert.Equal(t, lighting.Dim, s.GetLightingAtPoint(0, math.Inf(1), 0).Level)
		assert.Error(t, s.SetAmbient(math.NaN()))
		for _, v := range []float64{5, -0.1, 1.0001} {
			assert.ErrorIs(t, s.SetAmbient(v), perception.ErrInvalidGeometry, "ambient %v", v)
		}
		assert.Equal(t, 0.5, s.Ambient().Intensity, "rejected values leave the ambient alone")
	})

	t.Run("extinguish", func(t *testing.T) {
		assert.True(t, s.Extinguish("cleric"))
		assert.False(t, s.Extinguish("cleric"))
	})
}

func TestListener(t *testing.T) {
	s, _ := newSession(t)
	require.NoError(t, s.PlaceToken(world.Token{ID: "bard", X: 0, Y: 0}))
	diff := s.SetEmitters([]audio.Emitter{
		{ID: "fire", X: 10, Y: 0, Radius: 10, Volume: 1, Spatial: true, Playing: true},
	})
	assert.Equal(t, []string{"fire"}, diff.Added)

	require.NoError(t, s.BindListener("bard"))
	v, _ := s.Audio().Volume("fire")
	assert.Equal(t, 0.0, v)

	require.NoError(t, s.MoveToken("bard", 5, 0, 0))
	s.SyncListener()
	v, _ = s.Audio().Volume("fire")
	assert.InDelta(t, 0.5, v, 1e-12)

	require.NoError(t, s.SetListener(10, 0))
	assert.Empty(t, s.ListenerToken())
	assert.Error(t, s.SetListener(math.NaN(), 0))
	assert.ErrorIs(t, s.BindListener("nobody"), perception.ErrUnknownToken)

	e := audio.Emitter{X: 0, Y: 0, Radius: 10, Volume: 1, Spatial: true}
	assert.InDelta(t, 0.5, s.CalculateSpatialVolume(e, 5, 0), 1e-12)
}

func TestClose(t *testing.T) {
	s, _ := newSession(t)
	require.NoError(t, s.PlaceToken(world.Token{ID: "a"}))
	require.NoError(t, s.LightSource("a", "Torch", "torch", math.Inf(1)))
	s.Close()
	s.Close()

	assert.Empty(t, s.ActiveLights())
	assert.ErrorIs(t, s.LightSource("a", "Torch", "torch", 1), perception.ErrClosed)
	assert.ErrorIs(t, s.MoveToken("a", 1, 1, 0), perception.ErrClosed)
	assert.False(t, s.RemoveToken("a"))
	assert.Nil(t, s.FlushVision(time.Now()))
}

func TestApplyScene(t *testing.T) {
	sc, err := data.LoadScene("../../data/scenes/crypt.yaml")
	require.NoError(t, err)
	lights, err := data.LoadLightTable("../../data/yaml/light_sources.yaml")
	require.NoError(t, err)

	clock := lighting.NewManualClock(t0)
	s, err := perception.NewSession(perception.Options{Name: "crypt", CellSize: sc.CellSize, Clock: clock}, lights, nil)
	require.NoError(t, err)
	require.NoError(t, s.ApplyScene(sc))

	st := s.Stats()
	assert.Equal(t, 4, st.Tokens)
	assert.Equal(t, 6, st.Walls)
	assert.Equal(t, 2, st.Lights)
	assert.Equal(t, 3, st.Emitters)
	assert.Equal(t, 4, st.Observers)

	assert.True(t, s.CanSee("fighter", "ghoul"), "line through the doorway")
	assert.False(t, s.CanSee("fighter", "sentry"), "other floor")
	assert.Equal(t, lighting.Bright, s.LightingAtCell(0, world.Token{X: 1, Y: 5}.Cell()).Level)

	v, ok := s.Audio().Volume("score")
	require.True(t, ok)
	assert.Equal(t, 0.3, v)

	clock.Advance(121 * time.Second)
	expired := s.ExpireLights()
	require.Len(t, expired, 1)
	assert.Equal(t, "ghoul", expired[0].EntityID)
}
