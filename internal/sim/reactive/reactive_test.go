package reactive

import (
	"errors"
	"reflect"
	"testing"
)

func TestEventEmitOrderAndOnce(t *testing.T) {
	var e Event[int]
	var got []string
	e.On(func(v int) error { got = append(got, "a"); return nil })
	e.Once(func(v int) error { got = append(got, "once"); return nil })
	e.On(func(v int) error { got = append(got, "b"); return nil })

	if err := e.Emit(1); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := e.Emit(2); err != nil {
		t.Fatalf("emit: %v", err)
	}
	want := []string{"a", "once", "b", "a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order mismatch: got %v want %v", got, want)
	}
}

func TestEventDestroyTwiceIsError(t *testing.T) {
	var e Event[struct{}]
	d := e.On(func(struct{}) error { return nil })
	if err := d(); err != nil {
		t.Fatalf("first destroy: %v", err)
	}
	if err := d(); !errors.Is(err, ErrAlreadyDestroyed) {
		t.Fatalf("expected ErrAlreadyDestroyed, got %v", err)
	}
	if e.Len() != 0 {
		t.Fatalf("expected no subscribers, got %d", e.Len())
	}
}

func TestEventEmitStopsOnError(t *testing.T) {
	var e Event[int]
	boom := errors.New("boom")
	ran := false
	e.On(func(int) error { return boom })
	e.On(func(int) error { ran = true; return nil })
	if err := e.Emit(0); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if ran {
		t.Fatalf("second subscriber must not run after a failure")
	}
}

func TestEventRemoveDuringEmit(t *testing.T) {
	var e Event[int]
	calls := 0
	var second Destroyer
	e.On(func(int) error { return second() })
	second = e.On(func(int) error { calls++; return nil })
	if err := e.Emit(0); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if calls != 0 {
		t.Fatalf("subscriber removed mid-emit still ran")
	}
}

func TestValueSetNoopOnEqual(t *testing.T) {
	v := NewValue("idle")
	n := 0
	v.OnChange(func(c Change[string]) error { n++; return nil })
	_ = v.Set("idle")
	_ = v.Set("walking")
	_ = v.Set("walking")
	if n != 1 {
		t.Fatalf("expected 1 change, got %d", n)
	}
	v.Hydrate("resting")
	if v.Get() != "resting" || n != 1 {
		t.Fatalf("hydrate must restore quietly: value=%q changes=%d", v.Get(), n)
	}
}

func TestNumericOnBetweenFiresOnEntryOnly(t *testing.T) {
	n := NewNumeric(0)
	var fired []int
	n.OnBetween(2, 5, func(v int) error { fired = append(fired, v); return nil }, Exclusive)
	for _, v := range []int{1, 2, 3, 4, 5, 6, 4} {
		if err := n.Set(v); err != nil {
			t.Fatalf("set %d: %v", v, err)
		}
	}
	if !reflect.DeepEqual(fired, []int{3, 4}) {
		t.Fatalf("expected entries at 3 and 4, got %v", fired)
	}
}

func TestNumericInclusiveBounds(t *testing.T) {
	n := NewNumeric(0.0)
	hits := 0
	n.OnBetween(2, 5, func(float64) error { hits++; return nil }, Inclusive)
	_ = n.Set(2)
	_ = n.Set(5)
	_ = n.Set(5.5)
	_ = n.Set(5)
	if hits != 2 {
		t.Fatalf("expected 2 hits, got %d", hits)
	}
}

func TestNumericAboveBelowAndOnce(t *testing.T) {
	n := NewNumeric(10)
	var above, below, once int
	n.OnAbove(20, func(int) error { above++; return nil }, false)
	n.OnBelow(0, func(int) error { below++; return nil }, true)
	n.OnceBelow(5, func(int) error { once++; return nil }, false)
	for _, v := range []int{25, 30, 0, -3, 21, 4, 1} {
		_ = n.Set(v)
	}
	if above != 2 {
		t.Fatalf("above: got %d want 2", above)
	}
	if below != 1 {
		t.Fatalf("below: got %d want 1", below)
	}
	if once != 1 {
		t.Fatalf("once: got %d want 1", once)
	}
	if n.Watched() != 2 {
		t.Fatalf("once tracker should be dropped, watched=%d", n.Watched())
	}
}

func TestNumericDestroyDropsTracker(t *testing.T) {
	n := NewNumeric(0)
	d := n.OnAbove(1, func(int) error { t.Fatalf("destroyed watcher fired"); return nil }, false)
	if err := d(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	_ = n.Set(3)
	if n.Watched() != 0 {
		t.Fatalf("expected no trackers, got %d", n.Watched())
	}
	if err := d(); !errors.Is(err, ErrAlreadyDestroyed) {
		t.Fatalf("expected ErrAlreadyDestroyed, got %v", err)
	}
}

func TestCollectionChangeEmitsOncePerMutation(t *testing.T) {
	c := NewCollection("a", "b")
	var added, removed [][]string
	changes := 0
	c.OnAdded(func(v []string) error { added = append(added, v); return nil })
	c.OnRemoved(func(v []string) error { removed = append(removed, v); return nil })
	c.OnChanged(func(Delta[string]) error { changes++; return nil })

	if err := c.Change(Delta[string]{Added: []string{"c"}, Removed: []string{"a", "zz"}}); err != nil {
		t.Fatalf("change: %v", err)
	}
	if changes != 1 {
		t.Fatalf("expected one changed event, got %d", changes)
	}
	if !reflect.DeepEqual(removed, [][]string{{"a"}}) || !reflect.DeepEqual(added, [][]string{{"c"}}) {
		t.Fatalf("unexpected deltas added=%v removed=%v", added, removed)
	}
	if !reflect.DeepEqual(c.Items(), []string{"b", "c"}) {
		t.Fatalf("unexpected items %v", c.Items())
	}

	_ = c.Remove("missing")
	_ = c.Change(Delta[string]{})
	if changes != 1 {
		t.Fatalf("empty delta must not emit, got %d changes", changes)
	}
}
