package behavior

import (
	"fmt"
	"hash/fnv"
)

type Kind string

const (
	KindSequence       Kind = "SEQUENCE"
	KindSelector       Kind = "SELECTOR"
	KindInverter       Kind = "INVERTER"
	KindRandomSelector Kind = "RANDOM_SELECTOR"
	KindExecution      Kind = "EXECUTION"
)

// Node is an immutable decision node. The same node may sit under several
// parents, so nodes hold no per-evaluation state; that lives on the Blackboard.
type Node interface {
	Kind() Kind
	Name() string
	Children() []Node
	// Evaluate runs the node and eventually calls done exactly once. The
	// returned error is whatever done (or a faulting descendant) returned.
	Evaluate(bb *Blackboard, done Done) error
}

type composite struct {
	name     string
	children []Node
}

func (c *composite) Name() string { return c.name }

func (c *composite) Children() []Node {
	out := make([]Node, len(c.children))
	copy(out, c.children)
	return out
}

func newComposite(name string, children []Node) composite {
	cs := make([]Node, len(children))
	copy(cs, children)
	return composite{name: name, children: cs}
}

type sequence struct{ composite }

// Sequence succeeds when every child succeeds. The first non-success stops it.
func Sequence(name string, children ...Node) Node {
	return &sequence{newComposite(name, children)}
}

func (s *sequence) Kind() Kind { return KindSequence }

func (s *sequence) Evaluate(bb *Blackboard, done Done) error {
	return s.from(bb, 0, once(done))
}

func (s *sequence) from(bb *Blackboard, i int, done Done) error {
	if i == len(s.children) {
		return done(Success())
	}
	return s.children[i].Evaluate(bb, func(o Outcome) error {
		if o.Status != StatusSuccess {
			return done(o)
		}
		return s.from(bb, i+1, done)
	})
}

type selector struct{ composite }

// Selector succeeds with the first child that succeeds and declines only when
// every child declined. A fault stops it immediately.
func Selector(name string, children ...Node) Node {
	return &selector{newComposite(name, children)}
}

func (s *selector) Kind() Kind { return KindSelector }

func (s *selector) Evaluate(bb *Blackboard, done Done) error {
	return selectFrom(bb, s.children, 0, once(done))
}

func selectFrom(bb *Blackboard, children []Node, i int, done Done) error {
	if i == len(children) {
		return done(Decline(Declinef("no option left")))
	}
	return children[i].Evaluate(bb, func(o Outcome) error {
		if o.Status != StatusDecline {
			return done(o)
		}
		return selectFrom(bb, children, i+1, done)
	})
}

type inverter struct{ composite }

func Inverter(name string, child Node) Node {
	return &inverter{newComposite(name, []Node{child})}
}

func (n *inverter) Kind() Kind { return KindInverter }

func (n *inverter) Evaluate(bb *Blackboard, done Done) error {
	done = once(done)
	return n.children[0].Evaluate(bb, func(o Outcome) error {
		switch o.Status {
		case StatusSuccess:
			return done(Decline(Declinef("%s: inverted success", n.name)))
		case StatusDecline:
			return done(Success())
		default:
			return done(o)
		}
	})
}

type randomSelector struct {
	composite
	salt string
}

// RandomSelector behaves like Selector but tries children in an order drawn
// without replacement from a generator seeded by agent id, tick and salt.
// The same inputs always give the same order.
func RandomSelector(name, salt string, children ...Node) Node {
	return &randomSelector{composite: newComposite(name, children), salt: salt}
}

func (n *randomSelector) Kind() Kind { return KindRandomSelector }

func (n *randomSelector) Evaluate(bb *Blackboard, done Done) error {
	var agentID string
	if bb.Agent != nil {
		agentID = string(bb.Agent.ID)
	}
	var tick uint64
	if bb.Env != nil {
		tick = bb.Env.Now()
	}
	order := Shuffle(n.children, Seed(agentID, tick, n.salt))
	return selectFrom(bb, order, 0, once(done))
}

// Seed mixes the inputs of a random draw.
func Seed(agentID string, tick uint64, salt string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(agentID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(salt))
	return mix64(h.Sum64() ^ mix64(tick))
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Shuffle returns a permuted copy (Fisher-Yates over a splitmix stream).
func Shuffle(nodes []Node, seed uint64) []Node {
	out := make([]Node, len(nodes))
	copy(out, nodes)
	state := seed
	for i := len(out) - 1; i > 0; i-- {
		state = mix64(state)
		j := int(state % uint64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Action is the body of an execution leaf. It must call done exactly once,
// now or from a later timeline callback.
type Action func(bb *Blackboard, done Done) error

type execution struct {
	name string
	act  Action
}

func Execute(name string, act Action) Node {
	return &execution{name: name, act: act}
}

// Do wraps a synchronous action; its error is classified with OutcomeOf.
func Do(name string, fn func(bb *Blackboard) error) Node {
	return Execute(name, func(bb *Blackboard, done Done) error {
		return done(OutcomeOf(fn(bb)))
	})
}

func (n *execution) Kind() Kind       { return KindExecution }
func (n *execution) Name() string     { return n.name }
func (n *execution) Children() []Node { return nil }

func (n *execution) Evaluate(bb *Blackboard, done Done) error {
	return n.act(bb, once(done))
}

func once(done Done) Done {
	called := false
	return func(o Outcome) error {
		if called {
			return ErrResumedTwice
		}
		called = true
		return done(o)
	}
}

// WaitThen resumes fn after ticks on the evaluation's timeline.
func WaitThen(bb *Blackboard, ticks int, fn func() error) error {
	if bb.Env == nil {
		return fmt.Errorf("behavior: wait without env")
	}
	d, err := bb.Env.Timeline().Wait(ticks)
	if err != nil {
		return err
	}
	return d.Then(fn)
}
