package system

import (
	"context"
	"time"

	"github.com/EvilPatrick06/DnD-sub018/internal/core/event"
	coresys "github.com/EvilPatrick06/DnD-sub018/internal/core/system"
	"github.com/EvilPatrick06/DnD-sub018/internal/persist"
	"go.uber.org/zap"
)

// LightLogWriter stores light history entries. Satisfied by persist.LightLogRepo.
type LightLogWriter interface {
	Append(ctx context.Context, entries []persist.LightLogEntry) error
}

// maxPendingLightLog bounds the buffer while the database is unreachable.
const maxPendingLightLog = 4096

// LightLogSystem records light transitions from the bus and writes them to
// the history log in batches. The log is append-only; sessions never read it
// back. Phase 5 (Persist).
type LightLogSystem struct {
	writer   LightLogWriter
	session  string
	now      func() time.Time
	log      *zap.Logger
	pending  []persist.LightLogEntry
	interval int // flush every N ticks
	ticks    int
}

func NewLightLogSystem(bus *event.Bus, writer LightLogWriter, session string, now func() time.Time, intervalTicks int, log *zap.Logger) *LightLogSystem {
	if intervalTicks <= 0 {
		intervalTicks = 1
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &LightLogSystem{
		writer:   writer,
		session:  session,
		now:      now,
		log:      log,
		interval: intervalTicks,
	}
	event.Subscribe(bus, func(e event.LightApplied) {
		kind := persist.LightApplied
		if e.Replaced {
			kind = persist.LightReplaced
		}
		s.record(kind, e.EntityID, e.DisplayName, e.SourceKey, e.StartedAt, e.DurationSeconds)
	})
	event.Subscribe(bus, func(e event.LightExtinguished) {
		s.record(persist.LightExtinguished, e.EntityID, e.DisplayName, e.SourceKey, e.StartedAt, e.DurationSeconds)
	})
	event.Subscribe(bus, func(e event.LightExpired) {
		s.record(persist.LightExpired, e.EntityID, e.DisplayName, e.SourceKey, e.StartedAt, e.DurationSeconds)
	})
	return s
}

func (s *LightLogSystem) record(kind persist.LightEventKind, entity, name, source string, started time.Time, dur float64) {
	s.pending = append(s.pending, persist.LightLogEntry{
		Session:         s.session,
		EntityID:        entity,
		DisplayName:     name,
		SourceKey:       source,
		Kind:            kind,
		StartedAt:       started,
		DurationSeconds: dur,
		LoggedAt:        s.now(),
	})
}

func (s *LightLogSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *LightLogSystem) Update(_ time.Duration) {
	s.ticks++
	if s.ticks < s.interval {
		return
	}
	s.ticks = 0
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.Flush(ctx)
}

// Pending counts entries not yet written.
func (s *LightLogSystem) Pending() int {
	return len(s.pending)
}

// Flush writes every buffered entry. On failure the entries stay buffered
// for the next attempt; beyond maxPendingLightLog the oldest are dropped.
// Called for graceful shutdown as well.
func (s *LightLogSystem) Flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.writer.Append(ctx, s.pending); err != nil {
		s.log.Error("light history write failed", zap.Int("pending", len(s.pending)), zap.Error(err))
		if over := len(s.pending) - maxPendingLightLog; over > 0 {
			s.log.Warn("light history entries dropped", zap.Int("dropped", over))
			s.pending = append(s.pending[:0], s.pending[over:]...)
		}
		return err
	}
	s.log.Debug("light history written", zap.Int("entries", len(s.pending)))
	s.pending = s.pending[:0]
	return nil
}
