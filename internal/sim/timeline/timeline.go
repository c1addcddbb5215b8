package timeline

import (
	"errors"
	"fmt"

	"colonysim.ai/internal/sim/reactive"
)

var (
	ErrInvalidDelay = errors.New("timeline: delay must be > 0")
	ErrInvalidJump  = errors.New("timeline: invalid jump target")
	ErrBusy         = errors.New("timeline: pending callbacks")
)

// Callback runs on the tick it was scheduled for. A returned error aborts
// the tick and is reported by Step.
type Callback func() error

// Canceller removes a scheduled callback and returns how many ticks it still
// had to wait. It returns 0 once the callback has fired or was cancelled.
type Canceller func() int

type timer struct {
	at        uint64
	cb        Callback
	cancelled bool
	fired     bool
}

// TimeLine is the integer tick clock. It owns every deferred callback in the
// simulation. Not safe for concurrent use.
type TimeLine struct {
	now uint64
	due map[uint64][]*timer

	timeChanged reactive.Event[uint64]
}

func New() *TimeLine {
	return &TimeLine{due: map[uint64][]*timer{}}
}

func (tl *TimeLine) Now() uint64 { return tl.now }

// Step advances exactly one tick, runs the callbacks due at the new tick in
// registration order, then emits the time-changed event.
func (tl *TimeLine) Step() error {
	tl.now++
	batch := tl.due[tl.now]
	delete(tl.due, tl.now)
	for _, t := range batch {
		if t.cancelled {
			continue
		}
		t.fired = true
		if err := t.cb(); err != nil {
			return fmt.Errorf("tick %d: %w", tl.now, err)
		}
	}
	if err := tl.timeChanged.Emit(tl.now); err != nil {
		return fmt.Errorf("tick %d: %w", tl.now, err)
	}
	return nil
}

// Steps calls Step n times. Each tick's effects are visible before the next runs.
func (tl *TimeLine) Steps(n int) error {
	for i := 0; i < n; i++ {
		if err := tl.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Jump fast-forwards to the next due tick. Without pending callbacks it is a plain Step.
func (tl *TimeLine) Jump() error {
	next, ok := tl.NextEventTick()
	if !ok {
		return tl.Step()
	}
	return tl.JumpTo(next)
}

// JumpTo silently moves the clock to target-1 and steps once. Skipping past
// a pending callback is refused.
func (tl *TimeLine) JumpTo(target uint64) error {
	if target <= tl.now {
		return fmt.Errorf("%w: %d (now %d)", ErrInvalidJump, target, tl.now)
	}
	if next, ok := tl.NextEventTick(); ok && target > next {
		return fmt.Errorf("%w: %d skips callback due at %d", ErrInvalidJump, target, next)
	}
	tl.now = target - 1
	return tl.Step()
}

func (tl *TimeLine) HasNextEvent() bool {
	_, ok := tl.NextEventTick()
	return ok
}

func (tl *TimeLine) NextEventTick() (uint64, bool) {
	var (
		next  uint64
		found bool
	)
	for at, list := range tl.due {
		if len(list) == 0 {
			continue
		}
		if !found || at < next {
			next, found = at, true
		}
	}
	return next, found
}

// Pending counts live callbacks.
func (tl *TimeLine) Pending() int {
	n := 0
	for _, list := range tl.due {
		n += len(list)
	}
	return n
}

func (tl *TimeLine) SetTimeout(cb Callback, delay int) (Canceller, error) {
	if delay <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDelay, delay)
	}
	t := &timer{at: tl.now + uint64(delay), cb: cb}
	tl.due[t.at] = append(tl.due[t.at], t)
	return func() int {
		if t.cancelled || t.fired {
			return 0
		}
		t.cancelled = true
		tl.drop(t)
		return int(t.at - tl.now)
	}, nil
}

func (tl *TimeLine) drop(t *timer) {
	list := tl.due[t.at]
	for i, cur := range list {
		if cur == t {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(tl.due, t.at)
		return
	}
	tl.due[t.at] = list
}

// SetInterval runs cb every delay ticks. Each run re-registers the next one
// through SetTimeout; the returned canceller always targets the latest link.
func (tl *TimeLine) SetInterval(cb Callback, delay int) (Canceller, error) {
	var (
		latest  Canceller
		stopped bool
		run     Callback
	)
	run = func() error {
		if err := cb(); err != nil {
			return err
		}
		if stopped {
			return nil
		}
		c, err := tl.SetTimeout(run, delay)
		if err != nil {
			return err
		}
		latest = c
		return nil
	}
	c, err := tl.SetTimeout(run, delay)
	if err != nil {
		return nil, err
	}
	latest = c
	return func() int {
		stopped = true
		return latest()
	}, nil
}

// Wait returns a Deferred that resolves when ticks have elapsed.
func (tl *TimeLine) Wait(ticks int) (*Deferred, error) {
	d := NewDeferred()
	if _, err := tl.SetTimeout(d.Resolve, ticks); err != nil {
		return nil, err
	}
	return d, nil
}

func (tl *TimeLine) OnTimeChanged(cb func(now uint64) error) reactive.Destroyer {
	return tl.timeChanged.On(cb)
}

// Hydrate restores the clock for a freshly loaded world. It refuses to move
// time under pending callbacks.
func (tl *TimeLine) Hydrate(now uint64) error {
	if tl.Pending() > 0 {
		return ErrBusy
	}
	tl.now = now
	return nil
}
