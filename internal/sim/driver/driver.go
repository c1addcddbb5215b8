package driver

import (
	"errors"
	"fmt"
)

var (
	ErrNotAttached = errors.New("driver: no simulation attached")
	ErrRunning     = errors.New("driver: already running")
	ErrStillBusy   = errors.New("driver: simulation not idle within budget")
)

// Steppable is what a driver advances. *world.World satisfies it.
type Steppable interface {
	Now() uint64
	Step() error
	// Jump skips ticks that have nothing scheduled and runs the next due one.
	Jump() error
	NextEventTick() (uint64, bool)
	// Idle reports that no work is queued or in progress.
	Idle() bool
}

// Manual advances a simulation on demand, for tests and headless replays.
type Manual struct {
	target Steppable
	// maxJump is the longest stretch RunUntilIdle skips in one jump; zero
	// disables jumping.
	maxJump uint64
}

func NewManual(target Steppable, maxIdleJumpTicks int) *Manual {
	if maxIdleJumpTicks < 0 {
		maxIdleJumpTicks = 0
	}
	return &Manual{target: target, maxJump: uint64(maxIdleJumpTicks)}
}

// RunFor steps exactly n ticks.
func (m *Manual) RunFor(n int) error {
	if m.target == nil {
		return ErrNotAttached
	}
	for i := 0; i < n; i++ {
		if err := m.target.Step(); err != nil {
			return err
		}
	}
	return nil
}

// RunUntilIdle advances until the target reports idle, jumping over ticks
// with nothing scheduled when jumping is enabled. It gives up once maxTicks
// ticks have passed and returns the tick it stopped at.
func (m *Manual) RunUntilIdle(maxTicks int) (uint64, error) {
	if m.target == nil {
		return 0, ErrNotAttached
	}
	start := m.target.Now()
	limit := start + uint64(maxTicks)
	for !m.target.Idle() {
		if m.target.Now() >= limit {
			return m.target.Now(), fmt.Errorf("%w: %d ticks from %d", ErrStillBusy, limit-start, start)
		}
		advance := m.target.Step
		now := m.target.Now()
		if next, ok := m.target.NextEventTick(); ok && m.maxJump > 0 && next-now <= m.maxJump && next <= limit {
			advance = m.target.Jump
		}
		if err := advance(); err != nil {
			return m.target.Now(), err
		}
	}
	return m.target.Now(), nil
}
