package behavior

import (
	"errors"
	"reflect"
	"testing"

	"colonysim.ai/internal/sim/entity"
	"colonysim.ai/internal/sim/timeline"
)

type testEnv struct{ tl *timeline.TimeLine }

func (e testEnv) Now() uint64                  { return e.tl.Now() }
func (e testEnv) Timeline() *timeline.TimeLine { return e.tl }

func newBB() *Blackboard {
	return NewBlackboard(testEnv{tl: timeline.New()}, &entity.Entity{ID: "W1"})
}

func leaf(name string, log *[]string, err error) Node {
	return Do(name, func(*Blackboard) error {
		*log = append(*log, name)
		return err
	})
}

func run(t *testing.T, n Node, bb *Blackboard) Outcome {
	t.Helper()
	var got Outcome
	if err := n.Evaluate(bb, func(o Outcome) error { got = o; return nil }); err != nil {
		t.Fatalf("evaluate %s: %v", n.Name(), err)
	}
	return got
}

func TestSequenceStopsAtFirstDecline(t *testing.T) {
	var log []string
	seq := Sequence("seq",
		leaf("a", &log, nil),
		leaf("b", &log, Declinef("nothing to do")),
		leaf("c", &log, nil),
	)
	o := run(t, seq, newBB())
	if o.Status != StatusDecline {
		t.Fatalf("expected decline, got %s", o.Status)
	}
	if !reflect.DeepEqual(log, []string{"a", "b"}) {
		t.Fatalf("third child must not run: %v", log)
	}
}

func TestSelectorStopsAtFirstSuccess(t *testing.T) {
	var log []string
	sel := Selector("sel", leaf("a", &log, nil), leaf("b", &log, nil), leaf("c", &log, nil))
	if o := run(t, sel, newBB()); !o.Ok() {
		t.Fatalf("expected success, got %s", o.Status)
	}
	if !reflect.DeepEqual(log, []string{"a"}) {
		t.Fatalf("later children must not run: %v", log)
	}

	log = nil
	all := Selector("sel", leaf("a", &log, Declinef("x")), leaf("b", &log, Declinef("y")))
	if o := run(t, all, newBB()); o.Status != StatusDecline || !IsDecline(o.Err) {
		t.Fatalf("expected decline when every child declines, got %+v", o)
	}
}

func TestFaultPassesThroughComposites(t *testing.T) {
	var log []string
	boom := errors.New("reservation underflow")
	tree := Selector("root",
		Sequence("branch", leaf("a", &log, boom), leaf("b", &log, nil)),
		leaf("fallback", &log, nil),
	)
	o := run(t, tree, newBB())
	if o.Status != StatusFault || !errors.Is(o.Err, boom) {
		t.Fatalf("expected fault, got %+v", o)
	}
	if !reflect.DeepEqual(log, []string{"a"}) {
		t.Fatalf("selector must not try siblings after a fault: %v", log)
	}
	if o := run(t, Inverter("inv", leaf("x", &log, boom)), newBB()); o.Status != StatusFault {
		t.Fatalf("inverter must keep faults, got %s", o.Status)
	}
}

func TestInverter(t *testing.T) {
	var log []string
	if o := run(t, Inverter("inv", leaf("a", &log, nil)), newBB()); o.Status != StatusDecline {
		t.Fatalf("success should invert to decline, got %s", o.Status)
	}
	if o := run(t, Inverter("inv", leaf("a", &log, Declinef("no"))), newBB()); !o.Ok() {
		t.Fatalf("decline should invert to success, got %s", o.Status)
	}
}

func TestRandomSelectorIsReproducible(t *testing.T) {
	var children []Node
	var log []string
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		children = append(children, leaf(n, &log, Declinef("no")))
	}
	rs := RandomSelector("rand", "wander", children...)

	order := func(bb *Blackboard) []string {
		log = nil
		run(t, rs, bb)
		return append([]string(nil), log...)
	}
	first := order(newBB())
	second := order(newBB())
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same seed inputs gave different orders: %v vs %v", first, second)
	}
	if len(first) != 5 {
		t.Fatalf("every child should be drawn once: %v", first)
	}
	seen := map[string]bool{}
	for _, n := range first {
		if seen[n] {
			t.Fatalf("child drawn twice: %v", first)
		}
		seen[n] = true
	}

	differs := false
	for tick := 0; tick < 20 && !differs; tick++ {
		bb := newBB()
		_ = bb.Env.Timeline().Steps(tick + 1)
		if !reflect.DeepEqual(order(bb), first) {
			differs = true
		}
	}
	if !differs {
		t.Fatalf("tick should influence the draw")
	}
}

func TestAsyncLeafResumesFromTimeline(t *testing.T) {
	bb := newBB()
	var log []string
	walk := Execute("walk", func(bb *Blackboard, done Done) error {
		return WaitThen(bb, 3, func() error {
			log = append(log, "arrived")
			return done(Success())
		})
	})
	var got *Outcome
	err := Sequence("job", walk, leaf("unload", &log, nil)).Evaluate(bb, func(o Outcome) error {
		got = &o
		return nil
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got != nil {
		t.Fatalf("sequence finished before the walk")
	}
	tl := bb.Env.Timeline()
	_ = tl.Steps(2)
	if got != nil {
		t.Fatalf("resumed early at tick %d", tl.Now())
	}
	if err := tl.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if got == nil || !got.Ok() || !reflect.DeepEqual(log, []string{"arrived", "unload"}) {
		t.Fatalf("unexpected result %+v log=%v", got, log)
	}
}

func TestAsyncFaultSurfacesFromStep(t *testing.T) {
	bb := newBB()
	boom := errors.New("double spend")
	n := Sequence("s", Execute("late", func(bb *Blackboard, done Done) error {
		return WaitThen(bb, 1, func() error { return done(Fault(boom)) })
	}))
	_ = n.Evaluate(bb, func(o Outcome) error {
		if o.Status == StatusFault {
			return o.Err
		}
		return nil
	})
	if err := bb.Env.Timeline().Step(); !errors.Is(err, boom) {
		t.Fatalf("expected fault from Step, got %v", err)
	}
}

func TestContinuationResumedTwice(t *testing.T) {
	n := Execute("twice", func(bb *Blackboard, done Done) error {
		if err := done(Success()); err != nil {
			return err
		}
		return done(Success())
	})
	err := n.Evaluate(newBB(), func(Outcome) error { return nil })
	if !errors.Is(err, ErrResumedTwice) {
		t.Fatalf("expected ErrResumedTwice, got %v", err)
	}
}

func TestRegistryDedupesSharedNodes(t *testing.T) {
	var log []string
	shared := leaf("rest", &log, nil)
	a := Sequence("a", leaf("x", &log, nil), shared)
	b := Selector("b", shared, leaf("y", &log, nil))
	root := Selector("root", a, b, shared)

	r := NewRegistry(root)
	if r.Len() != 6 {
		t.Fatalf("expected 6 distinct nodes, got %d", r.Len())
	}
	if got := r.Parents()[shared]; got != 3 {
		t.Fatalf("shared node parents: got %d want 3", got)
	}
	if i, ok := r.Index(root); !ok || i != 0 {
		t.Fatalf("root should be first, got %d %v", i, ok)
	}
}

func TestBlackboardLookup(t *testing.T) {
	bb := newBB()
	bb.Set("deal", 42)
	if v, ok := Lookup[int](bb, "deal"); !ok || v != 42 {
		t.Fatalf("lookup: %v %v", v, ok)
	}
	if _, ok := Lookup[string](bb, "deal"); ok {
		t.Fatalf("wrong type must not match")
	}
}
