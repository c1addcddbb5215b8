package reactive

// Change is the payload of a Value's change event.
type Change[T any] struct {
	Old T
	New T
}

// Value is a single reactive cell.
type Value[T comparable] struct {
	v       T
	changed Event[Change[T]]
}

func NewValue[T comparable](v T) *Value[T] {
	return &Value[T]{v: v}
}

func (c *Value[T]) Get() T { return c.v }

// Set stores v and emits a change. Setting an equal value does nothing.
func (c *Value[T]) Set(v T) error {
	if v == c.v {
		return nil
	}
	old := c.v
	c.v = v
	return c.changed.Emit(Change[T]{Old: old, New: v})
}

func (c *Value[T]) OnChange(cb func(Change[T]) error) Destroyer { return c.changed.On(cb) }

func (c *Value[T]) OnceChange(cb func(Change[T]) error) Destroyer { return c.changed.Once(cb) }

func (c *Value[T]) Changed() *Event[Change[T]] { return &c.changed }

// Serialize returns the value for an external save layer.
func (c *Value[T]) Serialize() T { return c.v }

// Hydrate restores a saved value without notifying subscribers.
func (c *Value[T]) Hydrate(v T) { c.v = v }
