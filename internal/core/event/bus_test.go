package event_test

import (
	"testing"

	"github.com/EvilPatrick06/DnD-sub018/internal/core/event"
	"github.com/stretchr/testify/assert"
)

func TestBusDoubleBuffering(t *testing.T) {
	bus := event.NewBus()
	var got []string
	event.Subscribe(bus, func(e event.TokenMoved) { got = append(got, "moved:"+e.TokenID) })
	event.Subscribe(bus, func(e event.LightExpired) { got = append(got, "expired:"+e.EntityID) })

	event.Emit(bus, event.LightExpired{EntityID: "torch"})
	event.Emit(bus, event.TokenMoved{TokenID: "hero"})
	event.Emit(bus, event.TokenMoved{TokenID: "ghoul"})
	assert.Equal(t, 3, bus.Pending())

	bus.DispatchAll()
	assert.Empty(t, got, "events are not readable in the tick they were emitted")

	bus.SwapBuffers()
	assert.Equal(t, 0, bus.Pending())
	bus.DispatchAll()
	assert.Equal(t, []string{"expired:torch", "moved:hero", "moved:ghoul"}, got)

	got = nil
	bus.SwapBuffers()
	bus.DispatchAll()
	assert.Empty(t, got, "dispatched events are not replayed")
}

func TestBusKeepsEmissionOrderAcrossTypes(t *testing.T) {
	bus := event.NewBus()
	var got []string
	event.Subscribe(bus, func(e event.LightApplied) { got = append(got, "applied:"+e.SourceKey) })
	event.Subscribe(bus, func(e event.LightExpired) { got = append(got, "expired:"+e.SourceKey) })

	event.Emit(bus, event.LightApplied{SourceKey: "candle"})
	bus.SwapBuffers()
	bus.DispatchAll()

	event.Emit(bus, event.LightExpired{SourceKey: "candle"})
	event.Emit(bus, event.LightApplied{SourceKey: "torch"})
	bus.SwapBuffers()
	bus.DispatchAll()
	assert.Equal(t, []string{"applied:candle", "expired:candle", "applied:torch"}, got)
}

func TestBusUnsubscribedEventsAreDropped(t *testing.T) {
	bus := event.NewBus()
	event.Emit(bus, event.AmbientChanged{Intensity: 0.5})
	bus.SwapBuffers()
	assert.NotPanics(t, bus.DispatchAll)
}
