package simtest

import (
	"testing"

	"colonysim.ai/internal/sim/catalogs"
	"colonysim.ai/internal/sim/entity"
	"colonysim.ai/internal/sim/world"
)

// Harness is a small black-box helper for driving a world through its
// exported API:
// - Spawn* wrap the world spawners and fail the test on error
// - Step/StepFor/RunUntil advance the clock and fail on a faulted tick
// - Total/Stock/Reservations read state for conservation checks
type Harness struct {
	T    *testing.T
	Cats *catalogs.Catalogs
	W    *world.World
}

func LoadCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func NewHarness(t *testing.T, cfg world.WorldConfig) *Harness {
	t.Helper()
	cats := LoadCatalogs(t)
	w, err := world.New(cfg, cats)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return &Harness{T: t, Cats: cats, W: w}
}

// NewHarnessWithWorld wraps an already constructed world, e.g. one that
// just imported a snapshot.
func NewHarnessWithWorld(t *testing.T, w *world.World, cats *catalogs.Catalogs) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}
	return &Harness{T: t, Cats: cats, W: w}
}

func (h *Harness) SpawnWorker(pos entity.Vec2) *entity.Entity {
	h.T.Helper()
	e, err := h.W.SpawnWorker(pos)
	if err != nil {
		h.T.Fatalf("spawn worker: %v", err)
	}
	return e
}

func (h *Harness) SpawnStorage(spec world.StorageSpec) *entity.Entity {
	h.T.Helper()
	e, err := h.W.SpawnStorage(spec)
	if err != nil {
		h.T.Fatalf("spawn storage: %v", err)
	}
	return e
}

func (h *Harness) SpawnWorkshop(pos entity.Vec2, blueprint string) *entity.Entity {
	h.T.Helper()
	e, err := h.W.SpawnWorkshop(pos, blueprint)
	if err != nil {
		h.T.Fatalf("spawn workshop %s: %v", blueprint, err)
	}
	return e
}

func (h *Harness) Step() {
	h.T.Helper()
	if err := h.W.Step(); err != nil {
		h.T.Fatalf("step: %v", err)
	}
}

func (h *Harness) StepFor(n int) {
	h.T.Helper()
	for i := 0; i < n; i++ {
		h.Step()
	}
}

// RunUntil steps until cond holds and returns the tick it held at. It fails
// the test after max ticks.
func (h *Harness) RunUntil(max int, cond func() bool) uint64 {
	h.T.Helper()
	for i := 0; i < max; i++ {
		if cond() {
			return h.W.Now()
		}
		h.Step()
	}
	if !cond() {
		h.T.Fatalf("condition not met after %d ticks (now %d)", max, h.W.Now())
	}
	return h.W.Now()
}

// Stock is what entity id holds of material, zero for unknown ids.
func (h *Harness) Stock(id entity.ID, material string) int {
	e, ok := h.W.Entity(id)
	if !ok || e.Storage == nil {
		return 0
	}
	return e.Storage.Inventory.StockOf(material)
}

// Total sums material over every live entity, carried goods included.
func (h *Harness) Total(material string) int {
	n := 0
	for _, e := range h.W.Entities() {
		if e.Storage != nil {
			n += e.Storage.Inventory.StockOf(material)
		}
	}
	return n
}

func (h *Harness) Reservations() int {
	n := 0
	for _, e := range h.W.Entities() {
		if e.Storage != nil {
			n += len(e.Storage.Inventory.ReservationKeys())
		}
	}
	return n
}
