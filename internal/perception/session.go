// Package perception is the per-session facade over the map engine: it owns
// the wall index, token state, vision tracker, light registry, lighting
// evaluator and audio layer of one game session and is their only writer.
package perception

import (
	"errors"
	"fmt"
	"time"

	"github.com/EvilPatrick06/DnD-sub018/internal/audio"
	"github.com/EvilPatrick06/DnD-sub018/internal/core/event"
	"github.com/EvilPatrick06/DnD-sub018/internal/grid"
	"github.com/EvilPatrick06/DnD-sub018/internal/lighting"
	"github.com/EvilPatrick06/DnD-sub018/internal/occlusion"
	"github.com/EvilPatrick06/DnD-sub018/internal/vision"
	"github.com/EvilPatrick06/DnD-sub018/internal/world"
	"go.uber.org/zap"
)

var (
	ErrInvalidGeometry = grid.ErrInvalidGeometry
	ErrUnknownSource   = lighting.ErrUnknownSource
	ErrUnknownToken    = errors.New("unknown token")
	ErrClosed          = errors.New("session closed")
)

// Options configures a session.
type Options struct {
	Name      string
	CellSize  float64
	Ambient   float64 // baseline intensity in [0, 1]
	Settle    time.Duration
	MaxRadius float64 // 0 = unlimited
	Clock     lighting.Clock
	Falloff   lighting.Falloff
	Bands     lighting.Bands
	Tracks    audio.TrackLoader
	Bus       *event.Bus // nil = private bus
}

// Session is one map's perception state. Like the rest of the engine it is
// owned by a single loop goroutine; none of its methods lock.
type Session struct {
	name      string
	grid      grid.Grid
	clock     lighting.Clock
	maxRadius float64

	walls   *occlusion.Index
	world   *world.State
	tracker *vision.Tracker
	catalog lighting.Catalog
	lights  *lighting.Registry
	eval    *lighting.Evaluator
	audio   *audio.Layer
	bus     *event.Bus
	log     *zap.Logger

	listenerToken string
	closed        bool
}

func NewSession(opts Options, catalog lighting.Catalog, log *zap.Logger) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	g, err := grid.New(opts.CellSize)
	if err != nil {
		return nil, err
	}
	if catalog == nil {
		catalog = lighting.StaticCatalog{}
	}
	if opts.Clock == nil {
		opts.Clock = lighting.SystemClock{}
	}
	if opts.Bus == nil {
		opts.Bus = event.NewBus()
	}
	if !grid.Finite(opts.Ambient) || opts.Ambient < 0 || opts.Ambient > 1 {
		return nil, fmt.Errorf("ambient %v: %w", opts.Ambient, grid.ErrInvalidGeometry)
	}
	log = log.With(zap.String("session", opts.Name))

	s := &Session{
		name:      opts.Name,
		grid:      g,
		clock:     opts.Clock,
		maxRadius: opts.MaxRadius,
		walls:     occlusion.NewIndex(),
		world:     world.NewState(),
		catalog:   catalog,
		bus:       opts.Bus,
		log:       log,
	}
	s.tracker = vision.NewTracker(s.walls, s.world, vision.TrackerOptions{
		Settle:    opts.Settle,
		MaxRadius: opts.MaxRadius,
	}, log)
	s.lights = lighting.NewRegistry(opts.Clock, catalog)
	s.eval = lighting.NewEvaluator(s.lights, catalog, s.world, s.walls, lighting.EvaluatorOptions{
		Falloff: opts.Falloff,
		Bands:   opts.Bands,
		Ambient: opts.Ambient,
	})
	s.audio = audio.NewLayer(opts.Tracks, log)
	return s, nil
}

func (s *Session) Name() string { return s.name }

func (s *Session) Grid() grid.Grid { return s.grid }

func (s *Session) Bus() *event.Bus { return s.bus }

func (s *Session) Now() time.Time { return s.clock.Now() }

// Audio exposes the emitter layer, e.g. for speaker output.
func (s *Session) Audio() *audio.Layer { return s.audio }

// Catalog returns the light source catalog the session validates against.
func (s *Session) Catalog() lighting.Catalog { return s.catalog }

func (s *Session) checkOpen() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// --- walls ---

// SetWalls replaces every wall. Observers on affected floors are rebuilt
// before the call returns.
func (s *Session) SetWalls(walls []occlusion.Wall) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	floors := make(map[int]struct{})
	for _, f := range s.walls.Floors() {
		floors[f] = struct{}{}
	}
	if err := s.walls.Replace(walls); err != nil {
		return err
	}
	for _, w := range walls {
		floors[w.Floor] = struct{}{}
	}
	for f := range floors {
		event.Emit(s.bus, event.WallsChanged{Floor: f, Version: s.walls.Version(f)})
	}
	s.publish(s.tracker.Flush(s.clock.Now()))
	return nil
}

// UpsertWall adds or replaces one wall by id.
func (s *Session) UpsertWall(w occlusion.Wall) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.walls.Upsert(w); err != nil {
		return err
	}
	event.Emit(s.bus, event.WallsChanged{Floor: w.Floor, Version: s.walls.Version(w.Floor)})
	s.publish(s.tracker.Flush(s.clock.Now()))
	return nil
}

// RemoveWall deletes a wall by id; false if it was not present.
func (s *Session) RemoveWall(id string) bool {
	if s.closed {
		return false
	}
	w, ok := s.walls.Get(id)
	if !ok || !s.walls.Remove(id) {
		return false
	}
	event.Emit(s.bus, event.WallsChanged{Floor: w.Floor, Version: s.walls.Version(w.Floor)})
	s.publish(s.tracker.Flush(s.clock.Now()))
	return true
}

// Walls lists the walls on a floor.
func (s *Session) Walls(floor int) []occlusion.Wall {
	return s.walls.Walls(floor)
}

// --- tokens ---

func (s *Session) checkRadius(id string, r float64) error {
	if s.maxRadius > 0 && r > s.maxRadius {
		return fmt.Errorf("vision radius %v of %s exceeds %v: %w", r, id, s.maxRadius, grid.ErrInvalidGeometry)
	}
	return nil
}

// PlaceToken adds or replaces a token and commits its vision.
func (s *Session) PlaceToken(t world.Token) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.checkRadius(t.ID, t.VisionRadius); err != nil {
		return err
	}
	prev, existed := s.world.Token(t.ID)
	if err := s.world.Place(t); err != nil {
		return err
	}
	if err := s.commit(t.ID); err != nil {
		return err
	}
	if existed && prev.Floor != t.Floor {
		s.publish(s.tracker.RefreshTokens(prev.Floor))
	}
	s.publish(s.tracker.RefreshTokens(t.Floor))
	event.Emit(s.bus, event.TokenMoved{TokenID: t.ID, X: t.X, Y: t.Y, Floor: t.Floor})
	return nil
}

// MoveToken commits a final token position and rebuilds its vision now.
func (s *Session) MoveToken(id string, x, y, floor int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	prev, ok := s.world.Token(id)
	if !ok {
		return fmt.Errorf("move %s: %w", id, ErrUnknownToken)
	}
	s.world.Move(id, x, y, floor)
	if err := s.commit(id); err != nil {
		return err
	}
	if prev.Floor != floor {
		s.publish(s.tracker.RefreshTokens(prev.Floor))
	}
	s.publish(s.tracker.RefreshTokens(floor))
	event.Emit(s.bus, event.TokenMoved{TokenID: id, X: x, Y: y, Floor: floor})
	return nil
}

// DragToken records an intermediate drag position. The token's own vision is
// rebuilt once it settles; until then readers see its previous set.
func (s *Session) DragToken(id string, x, y, floor int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	prev, ok := s.world.Token(id)
	if !ok {
		return fmt.Errorf("drag %s: %w", id, ErrUnknownToken)
	}
	s.world.Move(id, x, y, floor)
	s.tracker.Drag(id, s.clock.Now())
	if prev.Floor != floor {
		s.publish(s.tracker.RefreshTokens(prev.Floor))
	}
	s.publish(s.tracker.RefreshTokens(floor))
	event.Emit(s.bus, event.TokenMoved{TokenID: id, X: x, Y: y, Floor: floor, Drag: true})
	return nil
}

// SetVisionRadius changes a token's sight range and rebuilds its vision.
func (s *Session) SetVisionRadius(id string, r float64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.checkRadius(id, r); err != nil {
		return err
	}
	if _, err := s.world.SetVisionRadius(id, r); err != nil {
		if _, ok := s.world.Token(id); !ok {
			return fmt.Errorf("vision radius of %s: %w", id, ErrUnknownToken)
		}
		return err
	}
	return s.commit(id)
}

// RemoveToken takes a token off the map. Lights attached to it stay in the
// registry but no longer contribute until a token with that id returns.
func (s *Session) RemoveToken(id string) bool {
	if s.closed {
		return false
	}
	t, ok := s.world.Remove(id)
	if !ok {
		return false
	}
	if err := s.commit(id); err != nil {
		s.log.Warn("vision teardown failed", zap.String("token", id), zap.Error(err))
	}
	s.publish(s.tracker.RefreshTokens(t.Floor))
	if s.listenerToken == id {
		s.listenerToken = ""
	}
	event.Emit(s.bus, event.TokenRemoved{TokenID: id})
	return true
}

// Token returns a token snapshot.
func (s *Session) Token(id string) (world.Token, bool) {
	return s.world.Token(id)
}

// Tokens returns every token in id order.
func (s *Session) Tokens() []world.Token {
	out := make([]world.Token, 0, s.world.TokenCount())
	s.world.AllTokens(func(t world.Token) { out = append(out, t) })
	return out
}

func (s *Session) commit(id string) error {
	ch, err := s.tracker.Commit(id)
	if err != nil {
		return err
	}
	s.publish([]vision.Change{ch})
	return nil
}

func (s *Session) publish(changes []vision.Change) {
	for _, ch := range changes {
		if _, ok := s.world.Token(ch.Observer); ok {
			event.Emit(s.bus, event.VisionChanged{Observer: ch.Observer, Cells: ch.Cells})
		}
		for _, id := range ch.Revealed {
			if id != ch.Observer {
				event.Emit(s.bus, event.TokenRevealed{Observer: ch.Observer, Target: id})
			}
		}
		for _, id := range ch.Concealed {
			if id != ch.Observer {
				event.Emit(s.bus, event.TokenConcealed{Observer: ch.Observer, Target: id})
			}
		}
	}
}

// --- vision ---

// BuildVisionSet computes a vision set against the session walls without
// storing it.
func (s *Session) BuildVisionSet(observer world.Token) (*vision.VisionSet, error) {
	return vision.BuildVisionSet(observer, s.walls)
}

// VisionSet returns an observer's committed set.
func (s *Session) VisionSet(observerID string) (*vision.VisionSet, bool) {
	return s.tracker.VisionSet(observerID)
}

// IsTokenInVisionSet reports whether target stands in a cell the observer sees.
// Unknown observers see nothing.
func (s *Session) IsTokenInVisionSet(observerID string, target world.Token) bool {
	return s.tracker.IsTokenInVisionSet(observerID, target)
}

// CanSee is IsTokenInVisionSet by token id.
func (s *Session) CanSee(observerID, targetID string) bool {
	t, ok := s.world.Token(targetID)
	if !ok {
		return false
	}
	return s.tracker.IsTokenInVisionSet(observerID, t)
}

// TokensShownTo returns the tokens a renderer may draw for an observer:
// every visible token on the observer's floor, plus hidden ones only when
// they stand in the observer's vision.
func (s *Session) TokensShownTo(observerID string) []world.Token {
	obs, ok := s.world.Token(observerID)
	if !ok {
		return nil
	}
	var out []world.Token
	s.world.AllTokens(func(t world.Token) {
		if t.Floor != obs.Floor {
			return
		}
		if !t.Hidden || s.tracker.IsTokenInVisionSet(observerID, t) {
			out = append(out, t)
		}
	})
	return out
}

// FlushVision rebuilds settled drags and observers invalidated by wall edits.
func (s *Session) FlushVision(now time.Time) []vision.Change {
	if s.closed {
		return nil
	}
	changes := s.tracker.Flush(now)
	s.publish(changes)
	return changes
}

// --- lighting ---

// GetLightingAtPoint evaluates illumination at a point in cell space. Invalid
// points are logged and answered with the ambient level.
func (s *Session) GetLightingAtPoint(floor int, x, y float64) lighting.Illumination {
	ill, err := s.eval.GetLightingAtPoint(floor, x, y)
	if err != nil {
		s.log.Warn("lighting query rejected", zap.Error(err))
	}
	return ill
}

// LightingAtCell evaluates illumination at a cell centre.
func (s *Session) LightingAtCell(floor int, c grid.CellCoord) lighting.Illumination {
	return s.eval.LightingAtCell(floor, c)
}

// LightSource lights (or relights) an entity. A relight replaces the previous
// light and restarts its timer.
func (s *Session) LightSource(entityID, displayName, sourceKey string, durationSeconds float64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	// Retire lights that burnt out since the last sweep so the history reads
	// expired before applied.
	s.ExpireLights()
	light, replaced, err := s.lights.LightSource(entityID, displayName, sourceKey, durationSeconds)
	if err != nil {
		return err
	}
	event.Emit(s.bus, event.LightApplied{
		EntityID:        light.EntityID,
		DisplayName:     light.DisplayName,
		SourceKey:       light.SourceKey,
		StartedAt:       light.StartedAt,
		DurationSeconds: light.DurationSeconds,
		Replaced:        replaced,
	})
	return nil
}

// LightFromCatalog lights an entity with the catalog label and duration of
// the source.
func (s *Session) LightFromCatalog(entityID, sourceKey string) error {
	src, ok := s.catalog.Get(sourceKey)
	if !ok {
		return fmt.Errorf("light %q on %s: %w", sourceKey, entityID, ErrUnknownSource)
	}
	return s.LightSource(entityID, src.Label, sourceKey, src.DurationSeconds)
}

// Extinguish puts out an entity's light.
func (s *Session) Extinguish(entityID string) bool {
	light, ok := s.lights.Extinguish(entityID)
	if !ok {
		return false
	}
	event.Emit(s.bus, event.LightExtinguished{
		EntityID:        light.EntityID,
		DisplayName:     light.DisplayName,
		SourceKey:       light.SourceKey,
		StartedAt:       light.StartedAt,
		DurationSeconds: light.DurationSeconds,
		At:              s.clock.Now(),
	})
	return true
}

// ActiveLights returns the unexpired lights in entity order.
func (s *Session) ActiveLights() []lighting.ActiveLight {
	return s.lights.Snapshot()
}

// ExpireLights removes burnt-out lights and announces them.
func (s *Session) ExpireLights() []lighting.ActiveLight {
	expired := s.lights.Purge()
	now := s.clock.Now()
	for _, light := range expired {
		event.Emit(s.bus, event.LightExpired{
			EntityID:        light.EntityID,
			DisplayName:     light.DisplayName,
			SourceKey:       light.SourceKey,
			StartedAt:       light.StartedAt,
			DurationSeconds: light.DurationSeconds,
			At:              now,
		})
	}
	return expired
}

// SetAmbient changes the baseline intensity. Values outside [0, 1] are
// rejected, as in NewSession.
func (s *Session) SetAmbient(intensity float64) error {
	if !grid.Finite(intensity) || intensity < 0 || intensity > 1 {
		return fmt.Errorf("ambient %v: %w", intensity, grid.ErrInvalidGeometry)
	}
	s.eval.SetAmbient(intensity)
	event.Emit(s.bus, event.AmbientChanged{Intensity: s.eval.Ambient().Intensity})
	return nil
}

// Ambient returns the baseline illumination.
func (s *Session) Ambient() lighting.Illumination {
	return s.eval.Ambient()
}

// --- audio ---

// CalculateSpatialVolume is the attenuation of one emitter at a listener cell.
func (s *Session) CalculateSpatialVolume(e audio.Emitter, lx, ly float64) float64 {
	return audio.CalculateSpatialVolume(e, lx, ly)
}

// SetEmitters reconciles the audio layer against the full emitter list.
func (s *Session) SetEmitters(emitters []audio.Emitter) audio.Diff {
	diff := s.audio.Reconcile(emitters)
	if !diff.Empty() {
		event.Emit(s.bus, event.EmittersReconciled{Added: diff.Added, Updated: diff.Updated, Removed: diff.Removed})
	}
	return diff
}

// SetListener places the listener at a fixed cell and unbinds any token.
func (s *Session) SetListener(x, y float64) error {
	if !grid.Finite(x) || !grid.Finite(y) {
		return fmt.Errorf("listener (%v,%v): %w", x, y, grid.ErrInvalidGeometry)
	}
	s.listenerToken = ""
	s.audio.SetListener(x, y)
	return nil
}

// BindListener makes the listener follow a token.
func (s *Session) BindListener(tokenID string) error {
	t, ok := s.world.Token(tokenID)
	if !ok {
		return fmt.Errorf("listen %s: %w", tokenID, ErrUnknownToken)
	}
	s.listenerToken = tokenID
	s.audio.SetListener(float64(t.X), float64(t.Y))
	return nil
}

// ListenerToken returns the token the listener follows, if any.
func (s *Session) ListenerToken() string {
	return s.listenerToken
}

// SyncListener moves a bound listener onto its token's current cell.
func (s *Session) SyncListener() {
	if s.listenerToken == "" {
		return
	}
	t, ok := s.world.Token(s.listenerToken)
	if !ok {
		s.listenerToken = ""
		return
	}
	x, y := s.audio.Listener()
	if x != float64(t.X) || y != float64(t.Y) {
		s.audio.SetListener(float64(t.X), float64(t.Y))
	}
}

// --- lifecycle ---

// Tick advances time-driven state: expired lights are purged and settled
// drags committed.
func (s *Session) Tick(now time.Time) {
	if s.closed {
		return
	}
	s.ExpireLights()
	s.FlushVision(now)
}

// Close tears the session down. The light registry is cleared so nothing
// carries over to the next session.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.lights.Clear()
	s.audio.Clear()
	s.log.Info("session closed")
}

// Stats summarises session contents for logs and reports.
type Stats struct {
	Tokens    int
	Walls     int
	Lights    int
	Emitters  int
	Observers int
}

func (s *Session) Stats() Stats {
	return Stats{
		Tokens:    s.world.TokenCount(),
		Walls:     s.walls.Len(),
		Lights:    len(s.lights.Snapshot()),
		Emitters:  s.audio.Len(),
		Observers: len(s.tracker.Observers()),
	}
}
