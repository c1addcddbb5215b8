package world

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"colonysim.ai/internal/observerproto"
	"colonysim.ai/internal/sim/behavior"
	"colonysim.ai/internal/sim/catalogs"
	"colonysim.ai/internal/sim/entity"
	"colonysim.ai/internal/sim/jobs"
)

func testConfig() WorldConfig {
	return WorldConfig{
		ID:                 "test",
		Seed:               7,
		MatchIntervalTicks: 5,
		Worker:             WorkerConfig{CarryStacks: 20, TiredBelow: 20, WorkEnergyCost: 5},
	}
}

func newTestWorld(t *testing.T) *World {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	w, err := New(testConfig(), cats)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

// supplyAndDemand spawns S1 offering 100 LOG at the origin and S2 wanting
// 100 LOG ten tiles east.
func supplyAndDemand(t *testing.T, w *World) (*entity.Entity, *entity.Entity) {
	t.Helper()
	s1, err := w.SpawnStorage(StorageSpec{Stock: map[string]int{"LOG": 100}, Keep: map[string]int{"LOG": 0}})
	if err != nil {
		t.Fatalf("spawn S1: %v", err)
	}
	s2, err := w.SpawnStorage(StorageSpec{Pos: entity.Vec2{X: 10}, Want: map[string]int{"LOG": 100}})
	if err != nil {
		t.Fatalf("spawn S2: %v", err)
	}
	return s1, s2
}

func steps(t *testing.T, w *World, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := w.Step(); err != nil {
			t.Fatalf("step %d: %v", w.Now(), err)
		}
	}
}

type memTickLog struct{ entries []TickLogEntry }

func (m *memTickLog) WriteTick(e TickLogEntry) error { m.entries = append(m.entries, e); return nil }

type memAuditLog struct{ entries []AuditEntry }

func (m *memAuditLog) WriteAudit(e AuditEntry) error { m.entries = append(m.entries, e); return nil }

func TestNewRejectsTiredAboveStartEnergy(t *testing.T) {
	cfg := testConfig()
	cfg.Worker.StartEnergy = 10
	cfg.Worker.TiredBelow = 10
	if _, err := New(cfg, nil); err == nil {
		t.Fatalf("expected config error")
	}
}

func TestSpawnIDsAndUnknownBlueprint(t *testing.T) {
	w := newTestWorld(t)
	a, _ := w.SpawnWorker(entity.Vec2{})
	b, _ := w.SpawnWorker(entity.Vec2{})
	s, _ := w.SpawnStorage(StorageSpec{})
	k, err := w.SpawnWorkshop(entity.Vec2{X: 3}, "sawmill_planks")
	if err != nil {
		t.Fatalf("workshop: %v", err)
	}
	got := []entity.ID{a.ID, b.ID, s.ID, k.ID}
	want := []entity.ID{"W1", "W2", "S1", "K1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
	if _, err := w.SpawnWorkshop(entity.Vec2{}, "nope"); !errors.Is(err, ErrUnknownBlueprint) {
		t.Fatalf("unknown blueprint err = %v", err)
	}
	if s.Party != nil {
		t.Fatalf("storage without thresholds should not be a party")
	}
	if k.Party.Want["LOG"] != 4 || k.Party.Keep["PLANK"] != 0 {
		t.Fatalf("workshop thresholds = %+v", k.Party)
	}
	if !w.Board().Contains(w.workshops[k.ID].posting) {
		t.Fatalf("workshop posting missing from board")
	}
}

func TestTickLogRecordsSpawnsAndDeals(t *testing.T) {
	w := newTestWorld(t)
	tl, al := &memTickLog{}, &memAuditLog{}
	w.SetTickLogger(tl)
	w.SetAuditLogger(al)
	supplyAndDemand(t, w)
	steps(t, w, 5)

	if len(tl.entries) != 5 {
		t.Fatalf("entries = %d", len(tl.entries))
	}
	if len(tl.entries[0].Spawns) != 2 || tl.entries[0].Digest == "" {
		t.Fatalf("first entry = %+v", tl.entries[0])
	}
	last := tl.entries[4]
	if last.Tick != 5 || len(last.Deals) != 1 {
		t.Fatalf("tick 5 entry = %+v", last)
	}
	if d := last.Deals[0]; d.Supplier != "S1" || d.Destination != "S2" || d.Quantity != 100 {
		t.Fatalf("deal = %+v", d)
	}
	var actions []string
	for _, e := range al.entries {
		actions = append(actions, e.Action)
	}
	if !reflect.DeepEqual(actions, []string{"SPAWN", "SPAWN", "DEAL"}) {
		t.Fatalf("audit actions = %v", actions)
	}
	if st := w.Status(); st.Tick != 5 || st.DealsTotal != 1 || st.OpenJobs != 1 || st.Reservations != 2 {
		t.Fatalf("status = %+v", st)
	}
	if got := testutil.ToFloat64(w.Metrics().DealQuantity.WithLabelValues("LOG")); got != 100 {
		t.Fatalf("deal quantity metric = %v", got)
	}
}

func TestRemovePartyWithdrawsTransport(t *testing.T) {
	w := newTestWorld(t)
	s1, s2 := supplyAndDemand(t, w)
	steps(t, w, 5)
	if w.Board().Len() != 1 {
		t.Fatalf("expected one transport posting, got %d", w.Board().Len())
	}
	if err := w.Remove(s2.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if w.Board().Len() != 0 {
		t.Fatalf("transport still posted")
	}
	if keys := s1.Storage.Inventory.ReservationKeys(); len(keys) != 0 {
		t.Fatalf("supplier still holds %v", keys)
	}
	if _, ok := w.Entity(s2.ID); ok {
		t.Fatalf("S2 still present")
	}
	if err := w.Remove(s2.ID); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("second remove err = %v", err)
	}
}

func TestRemoveWorkerStopsLoop(t *testing.T) {
	w := newTestWorld(t)
	wk, _ := w.SpawnWorker(entity.Vec2{})
	l, ok := w.Loop(wk.ID)
	if !ok {
		t.Fatalf("no loop for worker")
	}
	if err := w.Remove(wk.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !l.Stopped() || wk.Alive() {
		t.Fatalf("loop stopped=%v alive=%v", l.Stopped(), wk.Alive())
	}
	before := l.Evaluations()
	steps(t, w, 4)
	if l.Evaluations() != before {
		t.Fatalf("removed worker kept evaluating")
	}
	if st := w.Status(); st.Workers != 0 || st.Entities != 0 {
		t.Fatalf("status = %+v", st)
	}
}

func TestFaultInWorkStopsStep(t *testing.T) {
	w := newTestWorld(t)
	wk, _ := w.SpawnWorker(entity.Vec2{})
	errBoom := errors.New("boom")
	p := jobs.NewPosting("explode", "explode", 1,
		behavior.Do("explode", func(*behavior.Blackboard) error { return errBoom }),
		func(*entity.Entity) float64 { return 1 })
	if err := w.Board().Post(p); err != nil {
		t.Fatalf("post: %v", err)
	}
	var err error
	for i := 0; i < 5 && err == nil; i++ {
		err = w.Step()
	}
	if !errors.Is(err, errBoom) {
		t.Fatalf("step err = %v, want boom", err)
	}
	l, _ := w.Loop(wk.ID)
	if !l.Stopped() {
		t.Fatalf("faulted loop should stop")
	}
	if got := testutil.ToFloat64(w.Metrics().Evaluations.WithLabelValues("fault")); got != 1 {
		t.Fatalf("fault evaluations = %v", got)
	}
}

func TestObserverReceivesTick(t *testing.T) {
	w := newTestWorld(t)
	supplyAndDemand(t, w)
	out := make(chan []byte, 1)
	w.ObserverJoin() <- ObserverJoinRequest{SessionID: "o1", TickOut: out, IncludeEntities: true, MaxEntities: 1}
	steps(t, w, 2)

	var msg observerproto.TickMsg
	if err := json.Unmarshal(<-out, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// The buffer holds one message; the older tick was dropped.
	if msg.Type != "TICK" || msg.Tick != 2 || msg.EntityCount != 2 {
		t.Fatalf("tick msg = %+v", msg)
	}
	if len(msg.Entities) != 1 || msg.Entities[0].ID != "S1" || msg.Entities[0].Stock["LOG"] != 100 {
		t.Fatalf("entities = %+v", msg.Entities)
	}

	w.ObserverLeave() <- "o1"
	steps(t, w, 1)
	select {
	case b := <-out:
		t.Fatalf("message after leave: %s", b)
	default:
	}
	if st := w.Status(); st.Observers != 0 {
		t.Fatalf("observers = %d", st.Observers)
	}
}

func TestBootstrap(t *testing.T) {
	w := newTestWorld(t)
	steps(t, w, 3)
	b := w.Bootstrap()
	if b.WorldID != "test" || b.Tick != 3 || b.WorldParams.MatchIntervalTicks != 5 {
		t.Fatalf("bootstrap = %+v", b)
	}
	if len(b.Materials) != 8 || len(b.Blueprints) != 4 {
		t.Fatalf("catalog lists = %v %v", b.Materials, b.Blueprints)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	w := newTestWorld(t)
	supplyAndDemand(t, w)
	if _, err := w.SpawnWorker(entity.Vec2{X: 2, Y: 1}); err != nil {
		t.Fatalf("worker: %v", err)
	}
	if _, err := w.SpawnWorkshop(entity.Vec2{X: -3}, "sawmill_planks"); err != nil {
		t.Fatalf("workshop: %v", err)
	}
	steps(t, w, 3)
	snap := w.ExportSnapshot()

	w2 := newTestWorld(t)
	if err := w2.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	got := w2.ExportSnapshot()
	if got.Header != snap.Header || got.Counters != snap.Counters {
		t.Fatalf("header/counters: %+v %+v vs %+v %+v", got.Header, got.Counters, snap.Header, snap.Counters)
	}
	if !reflect.DeepEqual(got.Entities, snap.Entities) {
		t.Fatalf("entities differ:\n%+v\n%+v", got.Entities, snap.Entities)
	}
	next, err := w2.SpawnWorker(entity.Vec2{})
	if err != nil || next.ID != "W2" {
		t.Fatalf("next worker = %v, %v", next, err)
	}

	if err := w2.ImportSnapshot(snap); !errors.Is(err, ErrNotEmpty) {
		t.Fatalf("second import err = %v", err)
	}
	bad := snap
	bad.MaterialsDigest = "other"
	if err := newTestWorld(t).ImportSnapshot(bad); !errors.Is(err, ErrCatalogMismatch) {
		t.Fatalf("mismatch err = %v", err)
	}
}

func TestImportedCarrierLoadIsDelivered(t *testing.T) {
	w := newTestWorld(t)
	s2, err := w.SpawnStorage(StorageSpec{Pos: entity.Vec2{X: 10}, Want: map[string]int{"LOG": 100}})
	if err != nil {
		t.Fatalf("spawn S2: %v", err)
	}
	wk, _ := w.SpawnWorker(entity.Vec2{X: 3})
	snap := w.ExportSnapshot()
	for i := range snap.Entities {
		if snap.Entities[i].ID == string(wk.ID) {
			snap.Entities[i].Stock = map[string]int{"LOG": 100}
		}
	}

	w2 := newTestWorld(t)
	if err := w2.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if !w2.Exchange().Registered(wk.ID) {
		t.Fatalf("restored load is not offered")
	}
	dst, _ := w2.Entity(s2.ID)
	carrier, _ := w2.Entity(wk.ID)
	for i := 0; i < 100 && dst.Storage.Inventory.StockOf("LOG") < 100; i++ {
		steps(t, w2, 1)
	}
	if dst.Storage.Inventory.StockOf("LOG") != 100 || carrier.Storage.Inventory.StockOf("LOG") != 0 {
		t.Fatalf("requester=%d carrier=%d", dst.Storage.Inventory.StockOf("LOG"), carrier.Storage.Inventory.StockOf("LOG"))
	}
	if w2.Exchange().Registered(wk.ID) {
		t.Fatalf("drained carrier still offered")
	}

	w3 := newTestWorld(t)
	if err := w3.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if err := w3.Remove(wk.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if w3.Exchange().Registered(wk.ID) {
		t.Fatalf("removed carrier still offered")
	}
}
