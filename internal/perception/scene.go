package perception

import (
	"fmt"

	"github.com/EvilPatrick06/DnD-sub018/internal/data"
	"go.uber.org/zap"
)

// ApplyScene loads a scene fixture into the session: ambient, walls, tokens,
// burning lights, emitters and listener, in that order. The first invalid
// element aborts the load; earlier elements stay applied.
func (s *Session) ApplyScene(sc *data.Scene) error {
	lvl, err := sc.AmbientLevel()
	if err != nil {
		return fmt.Errorf("scene %q: %w", sc.Name, err)
	}
	if err := s.SetAmbient(lvl.Intensity()); err != nil {
		return fmt.Errorf("scene %q: %w", sc.Name, err)
	}
	if err := s.SetWalls(sc.Walls); err != nil {
		return fmt.Errorf("scene %q walls: %w", sc.Name, err)
	}
	for _, t := range sc.Tokens {
		if err := s.PlaceToken(t); err != nil {
			return fmt.Errorf("scene %q token %s: %w", sc.Name, t.ID, err)
		}
	}
	for _, l := range sc.Lights {
		src, ok := s.catalog.Get(l.Source)
		if !ok {
			return fmt.Errorf("scene %q light on %s: %q: %w", sc.Name, l.Entity, l.Source, ErrUnknownSource)
		}
		name := l.Name
		if name == "" {
			name = src.Label
		}
		dur := src.DurationSeconds
		if l.Duration != nil {
			dur = *l.Duration
		}
		if err := s.LightSource(l.Entity, name, l.Source, dur); err != nil {
			return fmt.Errorf("scene %q: %w", sc.Name, err)
		}
	}
	s.SetEmitters(sc.Emitters)
	if sc.Listener != nil {
		if err := s.SetListener(sc.Listener.X, sc.Listener.Y); err != nil {
			return fmt.Errorf("scene %q: %w", sc.Name, err)
		}
	}
	st := s.Stats()
	s.log.Info("scene applied",
		zap.String("scene", sc.Name),
		zap.Int("tokens", st.Tokens),
		zap.Int("walls", st.Walls),
		zap.Int("lights", st.Lights),
		zap.Int("emitters", st.Emitters),
	)
	return nil
}
