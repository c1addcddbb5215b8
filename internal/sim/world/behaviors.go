package world

import (
	"colonysim.ai/internal/sim/behavior"
	"colonysim.ai/internal/sim/entity"
	"colonysim.ai/internal/sim/jobs"
)

// buildWorkerTree: rest when tired, otherwise take the best job, otherwise
// loiter or stroll.
func (w *World) buildWorkerTree() behavior.Node {
	rest := behavior.Execute("rest", w.rest)
	return behavior.Selector("worker",
		behavior.Sequence("recover", behavior.Do("tired", w.tired), rest),
		behavior.Sequence("work", jobs.FindJob(w.board), jobs.DoJob(w.board), behavior.Do("spend", w.spend)),
		behavior.RandomSelector("idle", "idle",
			behavior.Do("loiter", func(*behavior.Blackboard) error { return nil }),
			behavior.Execute("stroll", w.stroll),
		),
	)
}

func (w *World) tired(bb *behavior.Blackboard) error {
	v, ok := entity.AsWorker(bb.Agent)
	if !ok {
		return behavior.Declinef("%s is not a worker", bb.Agent.ID)
	}
	if e := v.Vitals.Energy.Get(); e >= w.cfg.Worker.TiredBelow {
		return behavior.Declinef("energy %d", e)
	}
	return nil
}

func (w *World) rest(bb *behavior.Blackboard, done behavior.Done) error {
	v, ok := entity.AsWorker(bb.Agent)
	if !ok {
		return done(behavior.Decline(nil))
	}
	if err := v.Worker.Task.Set("rest"); err != nil {
		return done(behavior.Fault(err))
	}
	return behavior.WaitThen(bb, w.cfg.Worker.RestTicks, func() error {
		gain := w.cfg.Worker.RestGain
		if room := w.cfg.Worker.StartEnergy - v.Vitals.Energy.Get(); gain > room {
			gain = room
		}
		if err := v.Vitals.Energy.Add(gain); err != nil {
			return done(behavior.Fault(err))
		}
		if err := v.Worker.Task.Set(""); err != nil {
			return done(behavior.Fault(err))
		}
		return done(behavior.Success())
	})
}

func (w *World) spend(bb *behavior.Blackboard) error {
	v, ok := entity.AsWorker(bb.Agent)
	if !ok {
		return nil
	}
	cost := w.cfg.Worker.WorkEnergyCost
	if e := v.Vitals.Energy.Get(); cost > e {
		cost = e
	}
	return v.Vitals.Energy.Add(-cost)
}

var strollSteps = [4]entity.Vec2{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}}

// stroll moves one tile in a direction picked from the agent's seed, staying
// inside the world boundary.
func (w *World) stroll(bb *behavior.Blackboard, done behavior.Done) error {
	v, ok := entity.AsWorker(bb.Agent)
	if !ok {
		return done(behavior.Decline(nil))
	}
	seed := behavior.Seed(string(bb.Agent.ID), w.tl.Now(), "stroll")
	step := strollSteps[seed%uint64(len(strollSteps))]
	pos := v.Location.Pos.Get()
	next := entity.Vec2{X: pos.X + step.X, Y: pos.Y + step.Y}
	r := w.cfg.BoundaryR
	if next.X < -r || next.X > r || next.Y < -r || next.Y > r {
		next = pos
	}
	return behavior.WaitThen(bb, 1, func() error {
		if err := v.Location.Pos.Set(next); err != nil {
			return done(behavior.Fault(err))
		}
		return done(behavior.Success())
	})
}
