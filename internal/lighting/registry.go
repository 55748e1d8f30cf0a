package lighting

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	// ErrUnknownSource is returned when a light key is missing from the catalog.
	ErrUnknownSource = errors.New("unknown light source")
	// ErrInvalidDuration covers negative and NaN durations.
	ErrInvalidDuration = errors.New("invalid light duration")
)

// Clock supplies "now" for light expiry.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock. time.Now carries a monotonic reading, so
// elapsed-time comparisons are immune to wall clock jumps.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is advanced by hand; used by tests and replays.
type ManualClock struct {
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time { return c.now }

func (c *ManualClock) Set(t time.Time) { c.now = t }

func (c *ManualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// ActiveLight is a timed light attached to an entity.
type ActiveLight struct {
	EntityID        string
	DisplayName     string
	SourceKey       string
	StartedAt       time.Time
	DurationSeconds float64 // +Inf never expires
}

// Permanent reports whether the light never expires.
func (a ActiveLight) Permanent() bool {
	return math.IsInf(a.DurationSeconds, 1)
}

// Expired reports whether now - StartedAt >= DurationSeconds.
func (a ActiveLight) Expired(now time.Time) bool {
	if a.Permanent() {
		return false
	}
	return now.Sub(a.StartedAt).Seconds() >= a.DurationSeconds
}

// Remaining returns the time left before expiry; permanent lights report -1.
func (a ActiveLight) Remaining(now time.Time) time.Duration {
	if a.Permanent() {
		return -1
	}
	left := a.DurationSeconds - now.Sub(a.StartedAt).Seconds()
	if left <= 0 {
		return 0
	}
	return time.Duration(left * float64(time.Second))
}

// Registry holds the active lights of one game session, one per entity.
// It is initialised empty, written only through LightSource, Extinguish,
// Purge and Clear, and read through copies so an evaluation pass never sees a
// half-applied write. Accessed only from the session loop goroutine.
type Registry struct {
	clock   Clock
	catalog Catalog
	lights  map[string]ActiveLight
}

func NewRegistry(clock Clock, catalog Catalog) *Registry {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Registry{
		clock:   clock,
		catalog: catalog,
		lights:  make(map[string]ActiveLight),
	}
}

// Now returns the registry clock's current time.
func (r *Registry) Now() time.Time {
	return r.clock.Now()
}

// LightSource creates or replaces the light on an entity, starting now.
// The bool result reports whether a still-burning light was replaced; an
// expired entry awaiting purge does not count.
func (r *Registry) LightSource(entityID, displayName, sourceKey string, durationSeconds float64) (ActiveLight, bool, error) {
	if entityID == "" {
		return ActiveLight{}, false, fmt.Errorf("light %q: empty entity id", sourceKey)
	}
	if r.catalog != nil {
		if _, ok := r.catalog.Get(sourceKey); !ok {
			return ActiveLight{}, false, fmt.Errorf("light %q on %s: %w", sourceKey, entityID, ErrUnknownSource)
		}
	}
	if math.IsNaN(durationSeconds) || durationSeconds < 0 {
		return ActiveLight{}, false, fmt.Errorf("light %q on %s for %vs: %w", sourceKey, entityID, durationSeconds, ErrInvalidDuration)
	}

	now := r.clock.Now()
	old, had := r.lights[entityID]
	replaced := had && !old.Expired(now)
	light := ActiveLight{
		EntityID:        entityID,
		DisplayName:     displayName,
		SourceKey:       sourceKey,
		StartedAt:       now,
		DurationSeconds: durationSeconds,
	}
	r.lights[entityID] = light
	return light, replaced, nil
}

// Extinguish removes the light on an entity immediately.
func (r *Registry) Extinguish(entityID string) (ActiveLight, bool) {
	light, ok := r.lights[entityID]
	if ok {
		delete(r.lights, entityID)
	}
	return light, ok
}

// Get returns the entity's light if it has one that has not expired.
func (r *Registry) Get(entityID string) (ActiveLight, bool) {
	light, ok := r.lights[entityID]
	if !ok || light.Expired(r.clock.Now()) {
		return ActiveLight{}, false
	}
	return light, true
}

// Snapshot copies the unexpired lights, ordered by entity id.
func (r *Registry) Snapshot() []ActiveLight {
	now := r.clock.Now()
	out := make([]ActiveLight, 0, len(r.lights))
	for _, light := range r.lights {
		if !light.Expired(now) {
			out = append(out, light)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Purge removes expired lights and returns them, ordered by entity id.
func (r *Registry) Purge() []ActiveLight {
	now := r.clock.Now()
	var expired []ActiveLight
	for id, light := range r.lights {
		if light.Expired(now) {
			expired = append(expired, light)
			delete(r.lights, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].EntityID < expired[j].EntityID })
	return expired
}

// Clear drops every light; called on session teardown.
func (r *Registry) Clear() {
	r.lights = make(map[string]ActiveLight)
}

// Len counts stored lights, including expired ones not yet purged.
func (r *Registry) Len() int {
	return len(r.lights)
}
