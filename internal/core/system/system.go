package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain the command queue
	PhasePreUpdate               // 1: dispatch last tick's events
	PhaseUpdate                  // 2: light expiry sweep
	PhasePostUpdate              // 3: vision flush (settled drags, wall edits)
	PhaseOutput                  // 4: audio listener + emitter gains
	PhasePersist                 // 5: light history flush
	PhaseCleanup                 // 6: end-of-tick bookkeeping
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre-update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post-update"
	case PhaseOutput:
		return "output"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
