package agent

import (
	"fmt"

	"colonysim.ai/internal/sim/behavior"
	"colonysim.ai/internal/sim/entity"
	"colonysim.ai/internal/sim/timeline"
)

// Observer sees every finished evaluation. Used for metrics.
type Observer func(self *entity.Entity, o behavior.Outcome)

// Loop drives one entity's decision tree. At most one evaluation is in
// flight; the next one always starts on a later tick.
type Loop struct {
	env  behavior.Env
	self *entity.Entity

	tree    behavior.Node
	pending behavior.Node
	swap    bool

	running   bool
	stopped   bool
	scheduled timeline.Canceller

	observe     Observer
	evaluations uint64
}

func New(env behavior.Env, self *entity.Entity, observe Observer) *Loop {
	return &Loop{env: env, self: self, observe: observe}
}

func (l *Loop) Entity() *entity.Entity { return l.self }
func (l *Loop) Running() bool          { return l.running }
func (l *Loop) Stopped() bool          { return l.stopped }
func (l *Loop) Evaluations() uint64    { return l.evaluations }
func (l *Loop) Tree() behavior.Node    { return l.tree }

// SetTree assigns a tree. An idle loop starts evaluating right away; a loop
// that is mid-evaluation picks the new tree up when the current run ends.
func (l *Loop) SetTree(tree behavior.Node) error {
	if l.stopped {
		return nil
	}
	if l.running {
		l.pending, l.swap = tree, true
		return nil
	}
	l.cancelScheduled()
	l.tree = tree
	if tree == nil {
		return nil
	}
	return l.run()
}

// Stop ends the loop for good. An evaluation in flight finishes but is not
// followed by another.
func (l *Loop) Stop() {
	l.stopped = true
	l.cancelScheduled()
}

func (l *Loop) cancelScheduled() {
	if l.scheduled != nil {
		l.scheduled()
		l.scheduled = nil
	}
}

func (l *Loop) run() error {
	l.scheduled = nil
	if l.stopped {
		return nil
	}
	if !l.self.Alive() {
		l.Stop()
		return nil
	}
	if l.tree == nil {
		return nil
	}
	l.running = true
	l.evaluations++
	bb := behavior.NewBlackboard(l.env, l.self)
	return l.tree.Evaluate(bb, l.finish)
}

func (l *Loop) finish(o behavior.Outcome) error {
	l.running = false
	if l.observe != nil {
		l.observe(l.self, o)
	}
	if o.Status == behavior.StatusFault {
		l.Stop()
		return fmt.Errorf("agent %s: %w", l.self.ID, o.Err)
	}
	if l.swap {
		l.tree, l.pending, l.swap = l.pending, nil, false
	}
	if l.stopped || l.tree == nil {
		return nil
	}
	if !l.self.Alive() {
		l.Stop()
		return nil
	}
	c, err := l.env.Timeline().SetTimeout(l.run, 1)
	if err != nil {
		return err
	}
	l.scheduled = c
	return nil
}
