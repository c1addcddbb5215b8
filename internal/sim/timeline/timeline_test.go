package timeline

import (
	"errors"
	"reflect"
	"testing"
)

func TestSetTimeoutFiresExactlyOnceAtDelay(t *testing.T) {
	for _, delay := range []int{1, 2, 7} {
		tl := New()
		_ = tl.Steps(3)
		fired := []uint64{}
		if _, err := tl.SetTimeout(func() error { fired = append(fired, tl.Now()); return nil }, delay); err != nil {
			t.Fatalf("SetTimeout: %v", err)
		}
		for i := 0; i < delay-1; i++ {
			_ = tl.Step()
		}
		if len(fired) != 0 {
			t.Fatalf("delay=%d fired early at %v", delay, fired)
		}
		_ = tl.Step()
		_ = tl.Steps(5)
		if !reflect.DeepEqual(fired, []uint64{uint64(3 + delay)}) {
			t.Fatalf("delay=%d: got %v", delay, fired)
		}
	}
}

func TestSetTimeoutRejectsNonPositiveDelay(t *testing.T) {
	tl := New()
	for _, d := range []int{0, -1} {
		if _, err := tl.SetTimeout(func() error { return nil }, d); !errors.Is(err, ErrInvalidDelay) {
			t.Fatalf("delay %d: expected ErrInvalidDelay, got %v", d, err)
		}
	}
}

func TestSameTickFIFOAndChaining(t *testing.T) {
	tl := New()
	var order []string
	_, _ = tl.SetTimeout(func() error {
		order = append(order, "a")
		_, err := tl.SetTimeout(func() error { order = append(order, "c@2"); return nil }, 1)
		return err
	}, 1)
	_, _ = tl.SetTimeout(func() error { order = append(order, "b"); return nil }, 1)
	_ = tl.Step()
	if !reflect.DeepEqual(order, []string{"a", "b"}) {
		t.Fatalf("tick 1 order: %v", order)
	}
	_ = tl.Step()
	if order[len(order)-1] != "c@2" {
		t.Fatalf("chained callback did not run on next tick: %v", order)
	}
}

func TestCancelReportsRemaining(t *testing.T) {
	tl := New()
	cancel, _ := tl.SetTimeout(func() error { t.Fatalf("cancelled callback ran"); return nil }, 5)
	_ = tl.Steps(2)
	if got := cancel(); got != 3 {
		t.Fatalf("remaining: got %d want 3", got)
	}
	if got := cancel(); got != 0 {
		t.Fatalf("second cancel: got %d want 0", got)
	}
	if tl.HasNextEvent() {
		t.Fatalf("expected idle timeline")
	}
	_ = tl.Steps(5)
}

func TestIntervalChainAndCancel(t *testing.T) {
	tl := New()
	var ticks []uint64
	cancel, err := tl.SetInterval(func() error { ticks = append(ticks, tl.Now()); return nil }, 3)
	if err != nil {
		t.Fatalf("SetInterval: %v", err)
	}
	_ = tl.Steps(10)
	if !reflect.DeepEqual(ticks, []uint64{3, 6, 9}) {
		t.Fatalf("interval ticks: %v", ticks)
	}
	if got := cancel(); got != 2 {
		t.Fatalf("remaining on latest link: got %d want 2", got)
	}
	_ = tl.Steps(10)
	if len(ticks) != 3 || tl.HasNextEvent() {
		t.Fatalf("interval kept running after cancel: %v", ticks)
	}
}

func TestJumpSkipsDeadTimeSilently(t *testing.T) {
	tl := New()
	var seen []uint64
	tl.OnTimeChanged(func(now uint64) error { seen = append(seen, now); return nil })
	fired := false
	_, _ = tl.SetTimeout(func() error { fired = true; return nil }, 40)

	next, ok := tl.NextEventTick()
	if !ok || next != 40 {
		t.Fatalf("next event: %d %v", next, ok)
	}
	if err := tl.Jump(); err != nil {
		t.Fatalf("jump: %v", err)
	}
	if !fired || tl.Now() != 40 {
		t.Fatalf("jump did not land on due tick: now=%d fired=%v", tl.Now(), fired)
	}
	if !reflect.DeepEqual(seen, []uint64{40}) {
		t.Fatalf("jump must notify only for the landing tick, got %v", seen)
	}
}

func TestJumpToRefusesSkippingCallbacks(t *testing.T) {
	tl := New()
	_, _ = tl.SetTimeout(func() error { return nil }, 4)
	if err := tl.JumpTo(10); !errors.Is(err, ErrInvalidJump) {
		t.Fatalf("expected ErrInvalidJump, got %v", err)
	}
	if err := tl.JumpTo(0); !errors.Is(err, ErrInvalidJump) {
		t.Fatalf("expected ErrInvalidJump for past target, got %v", err)
	}
}

func TestStepReportsCallbackFault(t *testing.T) {
	tl := New()
	boom := errors.New("negative stock")
	_, _ = tl.SetTimeout(func() error { return boom }, 1)
	if err := tl.Step(); !errors.Is(err, boom) {
		t.Fatalf("expected fault from step, got %v", err)
	}
}

func TestWaitResolvesOnce(t *testing.T) {
	tl := New()
	d, err := tl.Wait(2)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	resolvedAt := uint64(0)
	_ = d.Then(func() error { resolvedAt = tl.Now(); return nil })
	_ = tl.Steps(2)
	if resolvedAt != 2 || !d.Done() {
		t.Fatalf("resolved at %d done=%v", resolvedAt, d.Done())
	}
	if err := d.Resolve(); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
	late := false
	_ = d.Then(func() error { late = true; return nil })
	if !late {
		t.Fatalf("Then on a resolved deferred must run immediately")
	}
}
