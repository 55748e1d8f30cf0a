package system

import (
	"time"

	coresys "github.com/EvilPatrick06/DnD-sub018/internal/core/system"
	"github.com/EvilPatrick06/DnD-sub018/internal/perception"
	"go.uber.org/zap"
)

// LightExpirySystem sweeps burnt-out lights from the registry. Expired lights
// already stop contributing at evaluation time; the sweep frees them and
// announces LightExpired. Phase 2 (Update).
type LightExpirySystem struct {
	sess *perception.Session
	log  *zap.Logger
}

func NewLightExpirySystem(sess *perception.Session, log *zap.Logger) *LightExpirySystem {
	return &LightExpirySystem{sess: sess, log: log}
}

func (s *LightExpirySystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *LightExpirySystem) Update(_ time.Duration) {
	for _, l := range s.sess.ExpireLights() {
		s.log.Info("light burnt out",
			zap.String("entity", l.EntityID),
			zap.String("light", l.DisplayName),
			zap.Float64("duration_s", l.DurationSeconds),
		)
	}
}

// VisionSystem commits settled drags and rebuilds observers whose walls
// changed. Phase 3 (PostUpdate).
type VisionSystem struct {
	sess *perception.Session
	log  *zap.Logger
}

func NewVisionSystem(sess *perception.Session, log *zap.Logger) *VisionSystem {
	return &VisionSystem{sess: sess, log: log}
}

func (s *VisionSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *VisionSystem) Update(_ time.Duration) {
	for _, ch := range s.sess.FlushVision(s.sess.Now()) {
		if len(ch.Revealed) == 0 && len(ch.Concealed) == 0 {
			continue
		}
		s.log.Debug("vision rebuilt",
			zap.String("observer", ch.Observer),
			zap.Int("cells", ch.Cells),
			zap.Strings("revealed", ch.Revealed),
			zap.Strings("concealed", ch.Concealed),
		)
	}
}

// AudioSystem keeps a token-bound listener on its token so emitter gains
// follow moves. Phase 4 (Output).
type AudioSystem struct {
	sess *perception.Session
}

func NewAudioSystem(sess *perception.Session) *AudioSystem {
	return &AudioSystem{sess: sess}
}

func (s *AudioSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *AudioSystem) Update(_ time.Duration) {
	s.sess.SyncListener()
}
