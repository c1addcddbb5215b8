package jobs

import (
	"fmt"

	"colonysim.ai/internal/sim/behavior"
)

// KeyPosting holds the posting FindJob took for the rest of the evaluation.
const KeyPosting = "jobs.posting"

// FindJob takes the best posting for the evaluating agent, or declines.
func FindJob(b *Board) behavior.Node {
	return behavior.Do("find-job", func(bb *behavior.Blackboard) error {
		p, _, ok := b.Best(bb.Agent)
		if !ok {
			return behavior.Declinef("no posting scored above zero")
		}
		if err := b.Take(p, bb.Agent); err != nil {
			return err
		}
		bb.Set(KeyPosting, p)
		return nil
	})
}

// DoJob runs the work of the posting FindJob selected and completes the
// assignment with the work's outcome. Faults are passed up unchanged after
// the assignment is closed.
func DoJob(b *Board) behavior.Node {
	return behavior.Execute("do-job", func(bb *behavior.Blackboard, done behavior.Done) error {
		p, ok := behavior.Lookup[*Posting](bb, KeyPosting)
		if !ok {
			return done(behavior.Fault(fmt.Errorf("do-job: no posting on blackboard")))
		}
		finish := func(o behavior.Outcome) error {
			clearErr := setTask(bb, "")
			bb.Delete(KeyPosting)
			if err := b.Complete(p, bb.Agent, o); err != nil {
				return done(behavior.Fault(err))
			}
			if clearErr != nil && o.Status != behavior.StatusFault {
				return done(behavior.Fault(clearErr))
			}
			return done(o)
		}
		if err := setTask(bb, p.Label); err != nil {
			return finish(behavior.Fault(err))
		}
		if p.Work == nil {
			return finish(behavior.Success())
		}
		return p.Work.Evaluate(bb, finish)
	})
}

func setTask(bb *behavior.Blackboard, label string) error {
	if bb.Agent == nil || bb.Agent.Worker == nil || bb.Agent.Worker.Task == nil {
		return nil
	}
	return bb.Agent.Worker.Task.Set(label)
}
