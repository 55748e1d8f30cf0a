package event

import "time"

// TokenMoved is emitted when a token's committed position changes.
type TokenMoved struct {
	TokenID string
	X, Y    int
	Floor   int
	Drag    bool // intermediate drag frame, vision not yet rebuilt
}

// TokenRemoved is emitted when a token leaves the map.
type TokenRemoved struct {
	TokenID string
}

// WallsChanged is emitted after any wall write on a floor.
type WallsChanged struct {
	Floor   int
	Version uint64
}

// VisionChanged is emitted after an observer's set is rebuilt.
type VisionChanged struct {
	Observer string
	Cells    int
}

// TokenRevealed fires when Target enters Observer's vision.
type TokenRevealed struct {
	Observer string
	Target   string
}

// TokenConcealed fires when Target leaves Observer's vision.
type TokenConcealed struct {
	Observer string
	Target   string
}

// LightApplied is emitted for new and replacing lights.
type LightApplied struct {
	EntityID        string
	DisplayName     string
	SourceKey       string
	StartedAt       time.Time
	DurationSeconds float64
	Replaced        bool
}

// LightExtinguished is emitted when a light is put out by command.
type LightExtinguished struct {
	EntityID        string
	DisplayName     string
	SourceKey       string
	StartedAt       time.Time
	DurationSeconds float64
	At              time.Time
}

// LightExpired is emitted when the expiry sweep removes a burnt-out light.
type LightExpired struct {
	EntityID        string
	DisplayName     string
	SourceKey       string
	StartedAt       time.Time
	DurationSeconds float64
	At              time.Time
}

// AmbientChanged is emitted when the ambient baseline changes.
type AmbientChanged struct {
	Intensity float64
}

// EmittersReconciled is emitted after the audio layer applies a new emitter list.
type EmittersReconciled struct {
	Added, Updated, Removed []string
}
