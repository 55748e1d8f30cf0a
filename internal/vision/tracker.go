package vision

import (
	"fmt"
	"sort"
	"time"

	"github.com/EvilPatrick06/DnD-sub018/internal/grid"
	"github.com/EvilPatrick06/DnD-sub018/internal/world"
	"go.uber.org/zap"
)

// TokenSource supplies the current token snapshots.
type TokenSource interface {
	Token(id string) (world.Token, bool)
	Nearby(floor, x, y int, r float64) []world.Token
}

// Change reports the outcome of one observer rebuild. Revealed and Concealed
// diff the visible token ids against the previous set.
type Change struct {
	Observer  string
	Revealed  []string
	Concealed []string
	Cells     int
}

// Tracker keeps the committed VisionSet of every observer in a session.
// Intermediate drag positions are debounced: a dragged token is rebuilt only
// after it has stayed put for the settle window, and until then readers see
// its previous set. Accessed only from the session loop goroutine.
type Tracker struct {
	occ       Occluder
	tokens    TokenSource
	settle    time.Duration
	maxRadius float64
	log       *zap.Logger

	sets    map[string]*VisionSet
	pending map[string]time.Time // observer → time of last drag frame
	dirty   map[string]struct{}
}

type TrackerOptions struct {
	Settle    time.Duration
	MaxRadius float64 // 0 means unlimited
}

func NewTracker(occ Occluder, tokens TokenSource, opts TrackerOptions, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		occ:       occ,
		tokens:    tokens,
		settle:    opts.Settle,
		maxRadius: opts.MaxRadius,
		log:       log,
		sets:      make(map[string]*VisionSet),
		pending:   make(map[string]time.Time),
		dirty:     make(map[string]struct{}),
	}
}

// Commit rebuilds one observer from its current token snapshot. An observer
// that no longer exists loses its set and yields an empty change.
func (t *Tracker) Commit(id string) (Change, error) {
	delete(t.pending, id)
	delete(t.dirty, id)

	tok, ok := t.tokens.Token(id)
	if !ok {
		prev := t.sets[id]
		delete(t.sets, id)
		return Change{Observer: id, Concealed: prev.Tokens()}, nil
	}
	if t.maxRadius > 0 && tok.VisionRadius > t.maxRadius {
		return Change{Observer: id}, fmt.Errorf("vision radius %v of %s exceeds %v: %w",
			tok.VisionRadius, id, t.maxRadius, grid.ErrInvalidGeometry)
	}

	set, err := BuildVisionSet(tok, t.occ)
	if err != nil {
		return Change{Observer: id}, err
	}
	t.fillTokens(set)
	return t.swap(id, set), nil
}

// fillTokens derives the visible token ids of a set. The observer always
// sees itself, also while a drag has moved it off the set's origin.
func (t *Tracker) fillTokens(set *VisionSet) {
	for _, other := range t.tokens.Nearby(set.Floor, set.Origin.X, set.Origin.Y, set.Radius) {
		if set.Contains(other.Cell()) {
			set.tokens[other.ID] = struct{}{}
		}
	}
	if _, ok := t.tokens.Token(set.Observer); ok {
		set.tokens[set.Observer] = struct{}{}
	}
}

// swap stores set as the observer's committed set and diffs its tokens.
func (t *Tracker) swap(id string, set *VisionSet) Change {
	prev := t.sets[id]
	t.sets[id] = set
	ch := Change{Observer: id, Cells: set.Len()}
	for tid := range set.tokens {
		if !prev.TokenVisible(tid) {
			ch.Revealed = append(ch.Revealed, tid)
		}
	}
	if prev != nil {
		for tid := range prev.tokens {
			if !set.TokenVisible(tid) {
				ch.Concealed = append(ch.Concealed, tid)
			}
		}
	}
	sort.Strings(ch.Revealed)
	sort.Strings(ch.Concealed)
	return ch
}

// RefreshTokens recomputes which tokens each committed set on the floor
// contains, without re-casting rays. Called after tokens move; cells are
// shared with the previous set since they did not change. Only observers
// whose visible tokens changed are reported.
func (t *Tracker) RefreshTokens(floor int) []Change {
	var changes []Change
	for _, id := range t.Observers() {
		prev := t.sets[id]
		if prev.Floor != floor {
			continue
		}
		next := &VisionSet{
			Observer:    prev.Observer,
			Floor:       prev.Floor,
			Origin:      prev.Origin,
			Radius:      prev.Radius,
			cells:       prev.cells,
			tokens:      make(map[string]struct{}, len(prev.tokens)),
			wallVersion: prev.wallVersion,
		}
		t.fillTokens(next)
		ch := t.swap(id, next)
		if len(ch.Revealed) > 0 || len(ch.Concealed) > 0 {
			changes = append(changes, ch)
		}
	}
	return changes
}

// Drag records an intermediate position frame for an observer.
func (t *Tracker) Drag(id string, now time.Time) {
	t.pending[id] = now
}

// MarkDirty schedules an observer for rebuild on the next Flush.
func (t *Tracker) MarkDirty(id string) {
	t.dirty[id] = struct{}{}
}

// InvalidateFloor schedules every observer on the floor for rebuild.
func (t *Tracker) InvalidateFloor(floor int) {
	for id, set := range t.sets {
		if set.Floor == floor {
			t.dirty[id] = struct{}{}
		}
	}
}

// Pending reports whether an observer has an unsettled drag.
func (t *Tracker) Pending(id string) bool {
	_, ok := t.pending[id]
	return ok
}

// Flush rebuilds dirty observers, observers whose walls changed since their
// last build, and drags that have settled. Rebuilds run in id order.
func (t *Tracker) Flush(now time.Time) []Change {
	due := make(map[string]struct{}, len(t.dirty))
	for id := range t.dirty {
		due[id] = struct{}{}
	}
	for id, last := range t.pending {
		if now.Sub(last) >= t.settle {
			due[id] = struct{}{}
		}
	}
	if vo, ok := t.occ.(versioned); ok {
		for id, set := range t.sets {
			if _, busy := t.pending[id]; busy {
				continue
			}
			if vo.Version(set.Floor) != set.wallVersion {
				due[id] = struct{}{}
			}
		}
	}
	if len(due) == 0 {
		return nil
	}

	ids := make([]string, 0, len(due))
	for id := range due {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	changes := make([]Change, 0, len(ids))
	for _, id := range ids {
		ch, err := t.Commit(id)
		if err != nil {
			t.log.Warn("vision rebuild rejected", zap.String("observer", id), zap.Error(err))
			continue
		}
		changes = append(changes, ch)
	}
	return changes
}

// VisionSet returns the committed set of an observer.
func (t *Tracker) VisionSet(id string) (*VisionSet, bool) {
	set, ok := t.sets[id]
	return set, ok
}

// IsTokenInVisionSet reports whether the target's cell lies in the observer's
// committed set. Unknown observers and other floors see nothing. An observer
// with a set always sees itself, even mid-drag when the set is stale.
func (t *Tracker) IsTokenInVisionSet(observerID string, target world.Token) bool {
	set := t.sets[observerID]
	if set == nil {
		return false
	}
	if target.ID == observerID {
		return true
	}
	if set.Floor != target.Floor {
		return false
	}
	return set.Contains(target.Cell())
}

// Remove forgets an observer.
func (t *Tracker) Remove(id string) {
	delete(t.sets, id)
	delete(t.pending, id)
	delete(t.dirty, id)
}

// Observers returns the ids with a committed set, in order.
func (t *Tracker) Observers() []string {
	out := make([]string, 0, len(t.sets))
	for id := range t.sets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
