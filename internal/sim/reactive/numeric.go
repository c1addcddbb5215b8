package reactive

type Number interface {
	~int | ~int32 | ~int64 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// Bounds selects which ends of a watched range are inclusive.
type Bounds struct {
	Min bool
	Max bool
}

var (
	Inclusive = Bounds{Min: true, Max: true}
	Exclusive = Bounds{}
)

type rangeWatch[T Number] struct {
	min, max     T
	noMin, noMax bool
	bounds       Bounds
	event        Event[T]
}

func (r *rangeWatch[T]) contains(v T) bool {
	if !r.noMin {
		if r.bounds.Min && v < r.min || !r.bounds.Min && v <= r.min {
			return false
		}
	}
	if !r.noMax {
		if r.bounds.Max && v > r.max || !r.bounds.Max && v >= r.max {
			return false
		}
	}
	return true
}

// Numeric is a Value that can fire callbacks when it enters a range.
// A range fires only on the transition from outside to inside; moves that
// stay inside, or stay outside, are silent.
type Numeric[T Number] struct {
	Value[T]
	ranges []*rangeWatch[T]
}

func NewNumeric[T Number](v T) *Numeric[T] {
	return &Numeric[T]{Value: Value[T]{v: v}}
}

func (n *Numeric[T]) Set(v T) error {
	old := n.v
	if err := n.Value.Set(v); err != nil {
		return err
	}
	if old == v || len(n.ranges) == 0 {
		return nil
	}
	watches := make([]*rangeWatch[T], len(n.ranges))
	copy(watches, n.ranges)
	for _, r := range watches {
		if r.contains(old) || !r.contains(v) {
			continue
		}
		if err := r.event.Emit(v); err != nil {
			return err
		}
	}
	return nil
}

// Add is shorthand for Set(Get()+d).
func (n *Numeric[T]) Add(d T) error { return n.Set(n.v + d) }

func (n *Numeric[T]) OnBetween(min, max T, cb func(T) error, b Bounds) Destroyer {
	return n.watch(&rangeWatch[T]{min: min, max: max, bounds: b}, cb, false)
}

func (n *Numeric[T]) OnceBetween(min, max T, cb func(T) error, b Bounds) Destroyer {
	return n.watch(&rangeWatch[T]{min: min, max: max, bounds: b}, cb, true)
}

// OnAbove fires when the value rises above min (or reaches it, if inclusive).
func (n *Numeric[T]) OnAbove(min T, cb func(T) error, inclusive bool) Destroyer {
	return n.watch(&rangeWatch[T]{min: min, noMax: true, bounds: Bounds{Min: inclusive}}, cb, false)
}

// OnBelow fires when the value drops below max (or reaches it, if inclusive).
func (n *Numeric[T]) OnBelow(max T, cb func(T) error, inclusive bool) Destroyer {
	return n.watch(&rangeWatch[T]{max: max, noMin: true, bounds: Bounds{Max: inclusive}}, cb, false)
}

func (n *Numeric[T]) OnceAbove(min T, cb func(T) error, inclusive bool) Destroyer {
	return n.watch(&rangeWatch[T]{min: min, noMax: true, bounds: Bounds{Min: inclusive}}, cb, true)
}

func (n *Numeric[T]) OnceBelow(max T, cb func(T) error, inclusive bool) Destroyer {
	return n.watch(&rangeWatch[T]{max: max, noMin: true, bounds: Bounds{Max: inclusive}}, cb, true)
}

func (n *Numeric[T]) watch(r *rangeWatch[T], cb func(T) error, once bool) Destroyer {
	n.ranges = append(n.ranges, r)
	var inner Destroyer
	if once {
		inner = r.event.Once(func(v T) error {
			n.dropRange(r)
			return cb(v)
		})
	} else {
		inner = r.event.On(cb)
	}
	return func() error {
		if err := inner(); err != nil {
			return err
		}
		n.dropRange(r)
		return nil
	}
}

func (n *Numeric[T]) dropRange(r *rangeWatch[T]) {
	for i, cur := range n.ranges {
		if cur == r {
			n.ranges = append(n.ranges[:i:i], n.ranges[i+1:]...)
			return
		}
	}
}

// Watched reports how many range trackers are live.
func (n *Numeric[T]) Watched() int { return len(n.ranges) }
