package driver

import (
	"context"
	"sync"
	"time"

	"colonysim.ai/internal/sim/reactive"
)

// Realtime steps an attached simulation on a wall-clock ticker. Listeners
// run on the loop goroutine and must be added before Start.
type Realtime struct {
	interval time.Duration

	mu      sync.Mutex
	target  Steppable
	running bool
	stop    chan struct{}
	done    chan struct{}
	err     error

	resumed reactive.Event[uint64]
	paused  reactive.Event[uint64]
	ended   reactive.Event[error]
}

func NewRealtime(tickRateHz int) *Realtime {
	if tickRateHz <= 0 {
		tickRateHz = 1
	}
	return &Realtime{interval: time.Second / time.Duration(tickRateHz)}
}

// OnResumed fires with the current tick when the loop starts.
func (d *Realtime) OnResumed(cb func(tick uint64) error) reactive.Destroyer { return d.resumed.On(cb) }

// OnPaused fires when Stop or context cancellation ends the loop.
func (d *Realtime) OnPaused(cb func(tick uint64) error) reactive.Destroyer { return d.paused.On(cb) }

// OnEnded fires when a step fails; the loop does not restart on its own.
func (d *Realtime) OnEnded(cb func(err error) error) reactive.Destroyer { return d.ended.On(cb) }

func (d *Realtime) Attach(s Steppable) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrRunning
	}
	d.target = s
	return nil
}

func (d *Realtime) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Start runs the loop on a new goroutine.
func (d *Realtime) Start(ctx context.Context) error {
	target, stop, done, err := d.begin()
	if err != nil {
		return err
	}
	go func() {
		_ = d.finish(done, d.run(ctx, target, stop))
	}()
	return nil
}

// StartUntilStop runs the loop on the calling goroutine and returns when it
// ends: nil after Stop, ctx.Err() after cancellation, or the step error.
func (d *Realtime) StartUntilStop(ctx context.Context) error {
	target, stop, done, err := d.begin()
	if err != nil {
		return err
	}
	return d.finish(done, d.run(ctx, target, stop))
}

// Stop ends a running loop, waits for it and returns how it ended.
func (d *Realtime) Stop() error {
	d.mu.Lock()
	if !d.running {
		err := d.err
		d.mu.Unlock()
		return err
	}
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
	done := d.done
	d.mu.Unlock()

	<-done
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Wait blocks until the current run ends.
func (d *Realtime) Wait() error {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done != nil {
		<-done
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *Realtime) begin() (Steppable, chan struct{}, chan struct{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.target == nil {
		return nil, nil, nil, ErrNotAttached
	}
	if d.running {
		return nil, nil, nil, ErrRunning
	}
	d.running = true
	d.err = nil
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	return d.target, d.stop, d.done, nil
}

func (d *Realtime) finish(done chan struct{}, err error) error {
	d.mu.Lock()
	d.running = false
	d.err = err
	d.mu.Unlock()
	close(done)
	return err
}

func (d *Realtime) run(ctx context.Context, target Steppable, stop <-chan struct{}) error {
	if err := d.resumed.Emit(target.Now()); err != nil {
		return err
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := d.paused.Emit(target.Now()); err != nil {
				return err
			}
			return ctx.Err()
		case <-stop:
			return d.paused.Emit(target.Now())
		case <-ticker.C:
			if err := target.Step(); err != nil {
				_ = d.ended.Emit(err)
				return err
			}
		}
	}
}
