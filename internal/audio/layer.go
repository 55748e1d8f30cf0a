package audio

import (
	"math"
	"sort"
	"sync"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"go.uber.org/zap"
)

// Diff lists the emitter ids touched by one Reconcile call.
type Diff struct {
	Added   []string
	Updated []string
	Removed []string
}

// Empty reports whether the reconcile changed nothing.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

type voice struct {
	emitter Emitter
	ctrl    *beep.Ctrl
	vol     *effects.Volume
	gain    float64
}

// Layer mixes one looping voice per emitter and keeps each voice's gain in
// step with the listener position. The mixer is read by the speaker goroutine,
// so every mutation happens under mu.
type Layer struct {
	mu     sync.Mutex
	mixer  *beep.Mixer
	loader TrackLoader
	voices map[string]*voice
	lx, ly float64
	log    *zap.Logger
}

func NewLayer(loader TrackLoader, log *zap.Logger) *Layer {
	if loader == nil {
		loader = SilentLoader{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Layer{
		mixer:  &beep.Mixer{},
		loader: loader,
		voices: make(map[string]*voice),
		log:    log,
	}
}

// Reconcile diffs the full emitter list against the current voices: new ids
// get a voice, changed ones are updated in place, missing ones are drained.
// Changing an emitter's track replaces its voice.
func (l *Layer) Reconcile(emitters []Emitter) Diff {
	streams := l.loadTracks(emitters)

	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]struct{}, len(emitters))
	var diff Diff
	for _, e := range emitters {
		if e.ID == "" {
			l.log.Warn("emitter without id ignored", zap.String("track", e.Track))
			continue
		}
		seen[e.ID] = struct{}{}

		v, ok := l.voices[e.ID]
		switch {
		case !ok:
			l.voices[e.ID] = l.newVoice(e, streams[trackKey{e.ID, e.Track}])
			diff.Added = appendOnce(diff.Added, e.ID)
		case v.emitter == e:
			continue
		case v.emitter.Track != e.Track:
			v.ctrl.Streamer = nil
			l.voices[e.ID] = l.newVoice(e, streams[trackKey{e.ID, e.Track}])
			diff.Updated = appendOnce(diff.Updated, e.ID)
		default:
			v.emitter = e
			v.ctrl.Paused = !e.Playing
			l.applyGain(v)
			diff.Updated = appendOnce(diff.Updated, e.ID)
		}
	}

	for id, v := range l.voices {
		if _, ok := seen[id]; ok {
			continue
		}
		// A ctrl without a streamer reports exhaustion and the mixer drops it.
		v.ctrl.Streamer = nil
		delete(l.voices, id)
		diff.Removed = append(diff.Removed, id)
	}

	sort.Strings(diff.Added)
	sort.Strings(diff.Updated)
	sort.Strings(diff.Removed)
	return diff
}

type trackKey struct{ id, track string }

// loadTracks decodes the tracks Reconcile will need for new or re-tracked
// voices. Decoding happens outside mu so the speaker goroutine never waits on
// it. Reconcile runs on the loop goroutine only, so voices cannot change
// between the two passes.
func (l *Layer) loadTracks(emitters []Emitter) map[trackKey]beep.Streamer {
	l.mu.Lock()
	current := make(map[string]string, len(l.voices))
	for id, v := range l.voices {
		current[id] = v.emitter.Track
	}
	l.mu.Unlock()

	streams := make(map[trackKey]beep.Streamer)
	for _, e := range emitters {
		if e.ID == "" {
			continue
		}
		if track, ok := current[e.ID]; ok && track == e.Track {
			continue
		}
		current[e.ID] = e.Track
		k := trackKey{e.ID, e.Track}
		if _, done := streams[k]; !done {
			streams[k] = l.loader.Load(e.Track)
		}
	}
	return streams
}

func (l *Layer) newVoice(e Emitter, stream beep.Streamer) *voice {
	if stream == nil {
		stream = beep.Silence(-1)
	}
	vol := &effects.Volume{Streamer: stream, Base: 2}
	v := &voice{
		emitter: e,
		vol:     vol,
		ctrl:    &beep.Ctrl{Streamer: vol, Paused: !e.Playing},
	}
	l.applyGain(v)
	l.mixer.Add(v.ctrl)
	return v
}

func (l *Layer) applyGain(v *voice) {
	v.gain = CalculateSpatialVolume(v.emitter, l.lx, l.ly)
	if v.gain <= 0 {
		v.vol.Volume = 0
		v.vol.Silent = true
		return
	}
	v.vol.Volume = math.Log2(v.gain)
	v.vol.Silent = false
}

// SetListener moves the listener to cell (x, y) and re-attenuates every voice.
// Non-finite positions are ignored.
func (l *Layer) SetListener(x, y float64) {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lx, l.ly = x, y
	for _, v := range l.voices {
		l.applyGain(v)
	}
}

// Listener returns the current listener cell.
func (l *Layer) Listener() (x, y float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lx, l.ly
}

// Volume returns the current gain of an emitter's voice.
func (l *Layer) Volume(id string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.voices[id]
	if !ok {
		return 0, false
	}
	return v.gain, true
}

// Emitters returns the reconciled emitters ordered by id.
func (l *Layer) Emitters() []Emitter {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Emitter, 0, len(l.voices))
	for _, v := range l.voices {
		out = append(out, v.emitter)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len counts live voices.
func (l *Layer) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.voices)
}

// Stream mixes every voice into samples. Layer never ends, so it can be handed
// to speaker.Play directly.
func (l *Layer) Stream(samples [][2]float64) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mixer.Stream(samples)
}

func (l *Layer) Err() error { return nil }

// Clear drains every voice.
func (l *Layer) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, v := range l.voices {
		v.ctrl.Streamer = nil
		delete(l.voices, id)
	}
	l.mixer.Clear()
}

func appendOnce(ids []string, id string) []string {
	for _, have := range ids {
		if have == id {
			return ids
		}
	}
	return append(ids, id)
}
