package reactive

// Delta is one logical mutation of a Collection.
type Delta[T any] struct {
	Added   []T
	Removed []T
}

func (d Delta[T]) Empty() bool { return len(d.Added) == 0 && len(d.Removed) == 0 }

// Collection is a reactive ordered list. Every mutation is a Delta; a delta
// that changes nothing emits nothing.
type Collection[T comparable] struct {
	items []T

	added   Event[[]T]
	removed Event[[]T]
	changed Event[Delta[T]]
}

func NewCollection[T comparable](items ...T) *Collection[T] {
	c := &Collection[T]{}
	c.items = append(c.items, items...)
	return c
}

func (c *Collection[T]) Add(items ...T) error { return c.Change(Delta[T]{Added: items}) }

func (c *Collection[T]) Remove(items ...T) error { return c.Change(Delta[T]{Removed: items}) }

// Change removes d.Removed (first occurrence each, missing items ignored)
// then appends d.Added, and emits added, removed and changed once.
func (c *Collection[T]) Change(d Delta[T]) error {
	var eff Delta[T]
	for _, it := range d.Removed {
		if i := c.indexOf(it); i >= 0 {
			c.items = append(c.items[:i:i], c.items[i+1:]...)
			eff.Removed = append(eff.Removed, it)
		}
	}
	if len(d.Added) > 0 {
		c.items = append(c.items, d.Added...)
		eff.Added = append(eff.Added, d.Added...)
	}
	if eff.Empty() {
		return nil
	}
	if len(eff.Added) > 0 {
		if err := c.added.Emit(eff.Added); err != nil {
			return err
		}
	}
	if len(eff.Removed) > 0 {
		if err := c.removed.Emit(eff.Removed); err != nil {
			return err
		}
	}
	return c.changed.Emit(eff)
}

func (c *Collection[T]) indexOf(it T) int {
	for i, cur := range c.items {
		if cur == it {
			return i
		}
	}
	return -1
}

func (c *Collection[T]) Contains(it T) bool { return c.indexOf(it) >= 0 }

func (c *Collection[T]) Len() int { return len(c.items) }

// Items returns a copy in insertion order.
func (c *Collection[T]) Items() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Collection[T]) OnAdded(cb func([]T) error) Destroyer       { return c.added.On(cb) }
func (c *Collection[T]) OnRemoved(cb func([]T) error) Destroyer     { return c.removed.On(cb) }
func (c *Collection[T]) OnChanged(cb func(Delta[T]) error) Destroyer { return c.changed.On(cb) }
