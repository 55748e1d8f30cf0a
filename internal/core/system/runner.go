package system

import (
	"sort"
	"time"
)

// Runner executes systems in phase order each tick. Systems sharing a phase
// run in registration order.
type Runner struct {
	systems []System
	sorted  bool
	last    time.Duration // wall time of the last full Tick
	ticks   uint64
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	start := time.Now()
	for _, s := range r.systems {
		s.Update(dt)
	}
	r.last = time.Since(start)
	r.ticks++
}

// LastTick reports how long the previous full tick took to run.
func (r *Runner) LastTick() time.Duration {
	return r.last
}

// Ticks counts completed full ticks.
func (r *Runner) Ticks() uint64 {
	return r.ticks
}

// TickPhase runs only the systems of one phase. The daemon uses it to drain
// commands between full ticks so console input is applied promptly.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() == phase {
			s.Update(dt)
		}
	}
}

// Len counts registered systems.
func (r *Runner) Len() int {
	return len(r.systems)
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
