package timeline

import "errors"

var ErrAlreadyResolved = errors.New("timeline: deferred resolved twice")

// Deferred is a one-shot completion signal. Callbacks registered with Then
// run in order when it resolves, or immediately if it already has.
type Deferred struct {
	done    bool
	waiters []Callback
}

func NewDeferred() *Deferred { return &Deferred{} }

func (d *Deferred) Done() bool { return d.done }

func (d *Deferred) Then(cb Callback) error {
	if d.done {
		return cb()
	}
	d.waiters = append(d.waiters, cb)
	return nil
}

// Resolve closes the signal. Closing it twice is a caller bug.
func (d *Deferred) Resolve() error {
	if d.done {
		return ErrAlreadyResolved
	}
	d.done = true
	waiters := d.waiters
	d.waiters = nil
	for _, cb := range waiters {
		if err := cb(); err != nil {
			return err
		}
	}
	return nil
}
