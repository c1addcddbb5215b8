package agent

import (
	"errors"
	"testing"

	"colonysim.ai/internal/sim/behavior"
	"colonysim.ai/internal/sim/entity"
	"colonysim.ai/internal/sim/reactive"
	"colonysim.ai/internal/sim/timeline"
)

type env struct{ tl *timeline.TimeLine }

func (e env) Now() uint64                  { return e.tl.Now() }
func (e env) Timeline() *timeline.TimeLine { return e.tl }

func newAgent() *entity.Entity {
	return &entity.Entity{
		ID:     "W1",
		Kind:   entity.KindWorker,
		Vitals: &entity.Vitals{Alive: reactive.NewValue(true), Energy: reactive.NewNumeric(100)},
	}
}

func counter(ticks *[]uint64, tl *timeline.TimeLine, err error) behavior.Node {
	return behavior.Do("count", func(*behavior.Blackboard) error {
		*ticks = append(*ticks, tl.Now())
		return err
	})
}

func TestLoopReevaluatesOnNextTick(t *testing.T) {
	tl := timeline.New()
	var ticks []uint64
	l := New(env{tl}, newAgent(), nil)
	if err := l.SetTree(counter(&ticks, tl, behavior.Declinef("idle"))); err != nil {
		t.Fatalf("SetTree: %v", err)
	}
	if len(ticks) != 1 || ticks[0] != 0 {
		t.Fatalf("idle loop should start immediately: %v", ticks)
	}
	if err := tl.Steps(3); err != nil {
		t.Fatalf("steps: %v", err)
	}
	want := []uint64{0, 1, 2, 3}
	for i, v := range want {
		if ticks[i] != v {
			t.Fatalf("evaluation ticks: got %v want %v", ticks, want)
		}
	}
	if tl.Pending() != 1 {
		t.Fatalf("exactly one evaluation should be queued, got %d", tl.Pending())
	}
}

func TestLoopSingleFlightWithAsyncTree(t *testing.T) {
	tl := timeline.New()
	starts := 0
	slow := behavior.Execute("slow", func(bb *behavior.Blackboard, done behavior.Done) error {
		starts++
		return behavior.WaitThen(bb, 5, func() error { return done(behavior.Success()) })
	})
	l := New(env{tl}, newAgent(), nil)
	_ = l.SetTree(slow)
	_ = tl.Steps(4)
	if starts != 1 || !l.Running() {
		t.Fatalf("only one evaluation may be in flight: starts=%d running=%v", starts, l.Running())
	}
	_ = tl.Steps(2)
	if starts != 2 {
		t.Fatalf("next evaluation should start the tick after completion: starts=%d", starts)
	}
}

func TestLoopDefersTreeSwapWhileRunning(t *testing.T) {
	tl := timeline.New()
	var log []string
	slow := behavior.Execute("slow", func(bb *behavior.Blackboard, done behavior.Done) error {
		log = append(log, "slow")
		return behavior.WaitThen(bb, 2, func() error { return done(behavior.Success()) })
	})
	fast := behavior.Do("fast", func(*behavior.Blackboard) error { log = append(log, "fast"); return nil })

	l := New(env{tl}, newAgent(), nil)
	_ = l.SetTree(slow)
	_ = l.SetTree(fast)
	if l.Tree() != slow {
		t.Fatalf("swap must wait for the running evaluation")
	}
	_ = tl.Steps(3)
	if len(log) != 2 || log[1] != "fast" {
		t.Fatalf("unexpected run log %v", log)
	}
}

func TestLoopFaultStopsAndSurfaces(t *testing.T) {
	tl := timeline.New()
	boom := errors.New("took a vacancy with zero slots")
	var ticks []uint64
	var seen []behavior.Status
	l := New(env{tl}, newAgent(), func(_ *entity.Entity, o behavior.Outcome) { seen = append(seen, o.Status) })

	calls := 0
	tree := behavior.Do("maybe", func(*behavior.Blackboard) error {
		calls++
		ticks = append(ticks, tl.Now())
		if calls == 2 {
			return boom
		}
		return nil
	})
	if err := l.SetTree(tree); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := tl.Step(); !errors.Is(err, boom) {
		t.Fatalf("expected fault from step, got %v", err)
	}
	if !l.Stopped() || tl.HasNextEvent() {
		t.Fatalf("faulted loop must stop: stopped=%v pending=%d", l.Stopped(), tl.Pending())
	}
	if len(seen) != 2 || seen[1] != behavior.StatusFault {
		t.Fatalf("observer saw %v", seen)
	}
}

func TestLoopStopsWhenAgentDies(t *testing.T) {
	tl := timeline.New()
	a := newAgent()
	var ticks []uint64
	l := New(env{tl}, a, nil)
	_ = l.SetTree(counter(&ticks, tl, nil))
	_ = tl.Steps(2)
	_ = a.Vitals.Alive.Set(false)
	_ = tl.Steps(3)
	if len(ticks) != 3 {
		t.Fatalf("dead agent kept deciding: %v", ticks)
	}
	if !l.Stopped() {
		t.Fatalf("loop should be stopped")
	}
	_ = l.SetTree(counter(&ticks, tl, nil))
	if len(ticks) != 3 {
		t.Fatalf("stopped loop restarted")
	}
}
