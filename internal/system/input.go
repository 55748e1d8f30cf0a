package system

import (
	"errors"
	"fmt"
	"io"
	"time"

	coresys "github.com/EvilPatrick06/DnD-sub018/internal/core/system"
	"github.com/EvilPatrick06/DnD-sub018/internal/handler"
	"go.uber.org/zap"
)

// Command is one console line queued for the session loop. Reply receives
// the handler output and any error text; nil discards it.
type Command struct {
	Line  string
	Reply io.Writer
}

// InputSystem drains queued console commands and applies them through the
// handler. Phase 0 (Input).
type InputSystem struct {
	queue      <-chan Command
	deps       *handler.Deps
	maxPerTick int
	onQuit     func()
	log        *zap.Logger
}

func NewInputSystem(queue <-chan Command, deps *handler.Deps, maxPerTick int, onQuit func(), log *zap.Logger) *InputSystem {
	if maxPerTick <= 0 {
		maxPerTick = 1
	}
	return &InputSystem{
		queue:      queue,
		deps:       deps,
		maxPerTick: maxPerTick,
		onQuit:     onQuit,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case cmd, ok := <-s.queue:
			if !ok {
				return
			}
			s.apply(cmd)
		default:
			return
		}
	}
}

func (s *InputSystem) apply(cmd Command) {
	out := cmd.Reply
	if out == nil {
		out = io.Discard
	}
	err := handler.HandleCommand(cmd.Line, out, s.deps)
	switch {
	case err == nil:
	case errors.Is(err, handler.ErrQuit):
		if s.onQuit != nil {
			s.onQuit()
		}
	default:
		fmt.Fprintf(out, "error: %v\n", err)
		s.log.Debug("command failed", zap.String("line", cmd.Line), zap.Error(err))
	}
}
