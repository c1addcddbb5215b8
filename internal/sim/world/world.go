package world

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"colonysim.ai/internal/persistence/snapshot"
	"colonysim.ai/internal/sim/agent"
	"colonysim.ai/internal/sim/behavior"
	"colonysim.ai/internal/sim/catalogs"
	"colonysim.ai/internal/sim/entity"
	"colonysim.ai/internal/sim/jobs"
	"colonysim.ai/internal/sim/logistics"
	"colonysim.ai/internal/sim/metrics"
	"colonysim.ai/internal/sim/reactive"
	"colonysim.ai/internal/sim/timeline"
)

var (
	ErrUnknownEntity    = errors.New("world: unknown entity")
	ErrDuplicateEntity  = errors.New("world: entity id already in use")
	ErrUnknownBlueprint = errors.New("world: unknown blueprint")
)

// World owns every piece of simulation state. All methods except Status,
// Bootstrap and the observer channels must be called from the goroutine that
// steps the world.
type World struct {
	cfg  WorldConfig
	cats *catalogs.Catalogs
	tl   *timeline.TimeLine

	entities  *reactive.Collection[*entity.Entity]
	byID      map[entity.ID]*entity.Entity
	loops     map[entity.ID]*agent.Loop
	unsubs    map[entity.ID][]reactive.Destroyer
	workshops map[entity.ID]*workshop

	board    *jobs.Board
	exchange *logistics.Exchange

	// Trees are built once and shared by every worker and workshop.
	workerTree behavior.Node
	craftWork  behavior.Node

	counters snapshot.CountersV1

	metrics      *metrics.Metrics
	logger       *log.Logger
	tickLogger   TickLogger
	auditLogger  AuditLogger
	snapshotSink chan<- snapshot.SnapshotV1

	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	observers     map[string]*observerClient

	activity  TickLogEntry
	stepStart time.Time

	dealsTotal      uint64
	deliveriesTotal uint64
	craftsTotal     uint64

	status atomic.Value // Status
}

func New(cfg WorldConfig, cats *catalogs.Catalogs) (*World, error) {
	cfg.normalize()
	if cfg.Worker.TiredBelow >= cfg.Worker.StartEnergy {
		return nil, fmt.Errorf("world: tired_below %d must be below start_energy %d", cfg.Worker.TiredBelow, cfg.Worker.StartEnergy)
	}
	w := &World{
		cfg:           cfg,
		cats:          cats,
		tl:            timeline.New(),
		entities:      reactive.NewCollection[*entity.Entity](),
		byID:          map[entity.ID]*entity.Entity{},
		loops:         map[entity.ID]*agent.Loop{},
		unsubs:        map[entity.ID][]reactive.Destroyer{},
		workshops:     map[entity.ID]*workshop{},
		board:         jobs.NewBoard(),
		metrics:       metrics.New(),
		observerJoin:  make(chan ObserverJoinRequest, 64),
		observerSub:   make(chan ObserverSubscribeRequest, 64),
		observerLeave: make(chan string, 64),
		observers:     map[string]*observerClient{},
	}
	w.exchange = logistics.NewExchange(w, w.board, logistics.Config{
		Interval:  cfg.MatchIntervalTicks,
		MaxLoad:   cfg.MaxLoad,
		LoadLimit: w.loadLimit,
	})
	w.exchange.OnDeal(w.onDeal)
	w.exchange.OnDelivered(w.onDelivered)
	w.entities.OnChanged(w.onEntitiesChanged)
	w.workerTree = w.buildWorkerTree()
	w.craftWork = w.buildCraftWork()
	w.tl.OnTimeChanged(w.afterTick)
	w.status.Store(Status{})
	return w, nil
}

func (w *World) Now() uint64                  { return w.tl.Now() }
func (w *World) Timeline() *timeline.TimeLine { return w.tl }

func (w *World) ID() string                    { return w.cfg.ID }
func (w *World) Config() WorldConfig           { return w.cfg }
func (w *World) Catalogs() *catalogs.Catalogs  { return w.cats }
func (w *World) Metrics() *metrics.Metrics     { return w.metrics }
func (w *World) Board() *jobs.Board            { return w.board }
func (w *World) Exchange() *logistics.Exchange { return w.exchange }

func (w *World) SetLogger(l *log.Logger)                       { w.logger = l }
func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger)                  { w.auditLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Entity(id entity.ID) (*entity.Entity, bool) {
	e, ok := w.byID[id]
	return e, ok
}

func (w *World) Loop(id entity.ID) (*agent.Loop, bool) {
	l, ok := w.loops[id]
	return l, ok
}

// Entities lists live entities by id.
func (w *World) Entities() []*entity.Entity {
	out := w.entities.Items()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Step advances one tick. A fault raised by any agent aborts the tick and
// is returned; the world should not be stepped again after that.
func (w *World) Step() error {
	return w.advance(w.tl.Step)
}

// StepOnce advances a single tick and returns the new tick with its digest.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce() (tick uint64, digest string, err error) {
	if err := w.Step(); err != nil {
		return w.tl.Now(), "", err
	}
	return w.tl.Now(), w.Digest(), nil
}

// Jump skips ticks without scheduled callbacks and runs the next due one.
func (w *World) Jump() error {
	return w.advance(w.tl.Jump)
}

func (w *World) NextEventTick() (uint64, bool) { return w.tl.NextEventTick() }

func (w *World) advance(fn func() error) error {
	w.drainObservers()
	w.stepStart = time.Now()
	err := fn()
	w.metrics.StepSeconds.Observe(time.Since(w.stepStart).Seconds())
	w.stepStart = time.Time{}
	return err
}

// Idle reports that nothing is moving: no match pass queued, no transport
// in flight and no workshop batch in progress.
func (w *World) Idle() bool {
	if w.exchange.MatchPending() || len(w.exchange.Transports()) > 0 {
		return false
	}
	for _, ws := range w.workshops {
		if ws.active > 0 {
			return false
		}
	}
	return true
}

func (w *World) loadLimit(material string) int {
	return w.cfg.Worker.CarryStacks * w.cats.StackSize(material)
}

func (w *World) afterTick(now uint64) error {
	entry := w.activity
	entry.Tick = now
	w.activity = TickLogEntry{}

	w.metrics.Ticks.Inc()
	if w.tickLogger != nil {
		entry.Digest = w.Digest()
		_ = w.tickLogger.WriteTick(entry)
	}
	w.stepObservers(now, entry)

	if w.snapshotSink != nil && w.cfg.SnapshotEveryTicks > 0 && now%uint64(w.cfg.SnapshotEveryTicks) == 0 {
		select {
		case w.snapshotSink <- w.ExportSnapshot():
		default:
			// Drop snapshot if sink is backed up.
		}
	}

	var stepMS float64
	if !w.stepStart.IsZero() {
		stepMS = float64(time.Since(w.stepStart).Microseconds()) / 1000.0
	}
	reservations := 0
	for _, e := range w.entities.Items() {
		if e.Storage != nil && e.Storage.Inventory != nil {
			reservations += len(e.Storage.Inventory.ReservationKeys())
		}
	}
	openJobs := w.board.OpenVacancies()
	inFlight := len(w.exchange.Transports())
	w.metrics.OpenJobs.Set(float64(openJobs))
	w.metrics.Reservations.Set(float64(reservations))

	w.status.Store(Status{
		Tick:         now,
		Entities:     w.entities.Len(),
		Workers:      len(w.loops),
		OpenJobs:     openJobs,
		InFlight:     inFlight,
		Reservations: reservations,
		Observers:    len(w.observers),
		DealsTotal:   w.dealsTotal,
		Deliveries:   w.deliveriesTotal,
		CraftsTotal:  w.craftsTotal,
		StepMS:       stepMS,
	})
	return nil
}

// Status is the last published tick summary. Safe for concurrent use.
func (w *World) Status() Status {
	return w.status.Load().(Status)
}

func (w *World) onEntitiesChanged(reactive.Delta[*entity.Entity]) error {
	counts := map[entity.Kind]int{entity.KindWorker: 0, entity.KindStorage: 0, entity.KindWorkshop: 0}
	for _, e := range w.entities.Items() {
		counts[e.Kind]++
	}
	for k, n := range counts {
		w.metrics.Entities.WithLabelValues(string(k)).Set(float64(n))
	}
	return nil
}

func (w *World) observeEvaluation(_ *entity.Entity, o behavior.Outcome) {
	w.metrics.Evaluations.WithLabelValues(o.Status.String()).Inc()
}

func recordDeal(d logistics.Deal) RecordedDeal {
	return RecordedDeal{
		Material:    d.Material,
		Supplier:    string(d.Supplier),
		Destination: string(d.Destination),
		Quantity:    d.Quantity,
	}
}

func (w *World) onDeal(d logistics.Deal) error {
	w.dealsTotal++
	w.metrics.Deals.Inc()
	w.metrics.DealQuantity.WithLabelValues(d.Material).Add(float64(d.Quantity))
	w.activity.Deals = append(w.activity.Deals, recordDeal(d))
	w.audit(AuditEntry{
		Actor:    string(d.Supplier),
		Action:   "DEAL",
		Material: d.Material,
		Quantity: d.Quantity,
		Details:  map[string]any{"destination": string(d.Destination)},
	})
	w.logf("deal %s x%d %s -> %s", d.Material, d.Quantity, d.Supplier, d.Destination)
	return nil
}

func (w *World) onDelivered(d logistics.Deal) error {
	w.deliveriesTotal++
	w.metrics.Deliveries.Inc()
	w.activity.Deliveries = append(w.activity.Deliveries, recordDeal(d))
	w.audit(AuditEntry{
		Actor:    string(d.Destination),
		Action:   "DELIVER",
		Material: d.Material,
		Quantity: d.Quantity,
		Details:  map[string]any{"supplier": string(d.Supplier)},
	})
	return nil
}

func (w *World) audit(e AuditEntry) {
	if w.auditLogger == nil {
		return
	}
	e.Tick = w.tl.Now()
	_ = w.auditLogger.WriteAudit(e)
}

func (w *World) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
	}
}
