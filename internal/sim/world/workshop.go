package world

import (
	"errors"
	"fmt"
	"strings"

	"colonysim.ai/internal/sim/behavior"
	"colonysim.ai/internal/sim/catalogs"
	"colonysim.ai/internal/sim/entity"
	"colonysim.ai/internal/sim/inventory"
	"colonysim.ai/internal/sim/jobs"
	"colonysim.ai/internal/sim/logistics"
)

// Workshops ask the exchange for this many batches worth of inputs.
const craftBatches = 2

const craftPostingPrefix = "craft/"

type workshop struct {
	entity  *entity.Entity
	view    entity.PartyView
	bp      catalogs.BlueprintDef
	posting *jobs.Posting

	active int
	seq    uint64
}

// ready reports whether one more batch can start from stock nobody has
// claimed yet.
func (ws *workshop) ready() bool {
	for _, in := range ws.bp.Inputs {
		if ws.view.Inventory.AvailableOf(in.Material) < in.Count {
			return false
		}
	}
	return true
}

func workshopParty(bp catalogs.BlueprintDef) *entity.Party {
	p := &entity.Party{Keep: map[string]int{}, Want: map[string]int{}}
	for _, in := range bp.Inputs {
		p.Want[in.Material] += in.Count * craftBatches
	}
	for _, out := range bp.Outputs {
		p.Keep[out.Material] = 0
	}
	return p
}

func (w *World) buildCraftWork() behavior.Node {
	return behavior.Sequence("craft",
		behavior.Execute("walk-to-workshop", w.walkToWorkshop),
		behavior.Execute("produce", w.produce),
	)
}

func (w *World) craftDesirability(ws *workshop) jobs.Desirability {
	return func(a *entity.Entity) float64 {
		if _, ok := entity.AsWorker(a); !ok || !a.Alive() {
			return 0
		}
		if !ws.ready() {
			return 0
		}
		d := entity.Manhattan(a.Pos(), ws.entity.Pos())
		return 1 / float64(2+d)
	}
}

func (w *World) currentWorkshop(bb *behavior.Blackboard) (*workshop, error) {
	p, ok := behavior.Lookup[*jobs.Posting](bb, jobs.KeyPosting)
	if !ok {
		return nil, fmt.Errorf("craft: no posting on blackboard")
	}
	id := entity.ID(strings.TrimPrefix(p.ID, craftPostingPrefix))
	ws, ok := w.workshops[id]
	if !ok {
		return nil, behavior.Declinef("workshop %s is gone", id)
	}
	return ws, nil
}

func (w *World) walkToWorkshop(bb *behavior.Blackboard, done behavior.Done) error {
	ws, err := w.currentWorkshop(bb)
	if err != nil {
		return done(behavior.OutcomeOf(err))
	}
	v, ok := entity.AsWorker(bb.Agent)
	if !ok {
		return done(behavior.Fault(fmt.Errorf("craft: %s cannot work", bb.Agent.ID)))
	}
	dest := ws.entity.Pos()
	arrive := func() error {
		if !bb.Agent.Alive() {
			return done(behavior.Decline(behavior.Declinef("%s died on the way", bb.Agent.ID)))
		}
		if err := v.Location.Pos.Set(dest); err != nil {
			return done(behavior.Fault(err))
		}
		return done(behavior.Success())
	}
	ticks := logistics.TravelTicks(v.Location.Pos.Get(), dest, v.Worker.Speed)
	if ticks == 0 {
		return arrive()
	}
	return behavior.WaitThen(bb, ticks, arrive)
}

// produce claims one batch of inputs and room for the outputs, works for the
// blueprint's ticks, then swaps them in a single inventory change.
func (w *World) produce(bb *behavior.Blackboard, done behavior.Done) error {
	ws, err := w.currentWorkshop(bb)
	if err != nil {
		return done(behavior.OutcomeOf(err))
	}
	if !ws.ready() {
		return done(behavior.Decline(behavior.Declinef("%s is short of inputs", ws.entity.ID)))
	}
	deltas := make([]inventory.Delta, 0, len(ws.bp.Inputs)+len(ws.bp.Outputs))
	for _, in := range ws.bp.Inputs {
		deltas = append(deltas, inventory.Delta{Material: in.Material, Quantity: -in.Count})
	}
	for _, out := range ws.bp.Outputs {
		deltas = append(deltas, inventory.Delta{Material: out.Material, Quantity: out.Count})
	}
	inv := ws.view.Inventory
	ws.seq++
	key := fmt.Sprintf("%s%s/%d", craftPostingPrefix, ws.entity.ID, ws.seq)
	if err := inv.MakeReservation(key, deltas...); err != nil {
		if errors.Is(err, inventory.ErrInsufficientCapacity) {
			return done(behavior.Decline(behavior.Declinef("%s has no room for %s", ws.entity.ID, ws.bp.ID)))
		}
		return done(behavior.Fault(err))
	}
	ws.active++
	ticks := ws.bp.WorkTicks
	if ticks < 1 {
		ticks = 1
	}
	return behavior.WaitThen(bb, ticks, func() error {
		ws.active--
		if _, ok := w.workshops[ws.entity.ID]; !ok || !bb.Agent.Alive() {
			if err := inv.CancelReservation(key); err != nil {
				return done(behavior.Fault(err))
			}
			return done(behavior.Decline(behavior.Declinef("craft %s interrupted", key)))
		}
		if err := inv.FulfillReservation(key); err != nil {
			return done(behavior.Fault(err))
		}
		w.onCraft(ws, bb.Agent)
		return done(behavior.Success())
	})
}

func (w *World) onCraft(ws *workshop, worker *entity.Entity) {
	w.craftsTotal++
	w.metrics.Crafts.Inc()
	w.activity.Crafts = append(w.activity.Crafts, RecordedCraft{
		Workshop:  string(ws.entity.ID),
		Blueprint: ws.bp.ID,
		Worker:    string(worker.ID),
	})
	w.audit(AuditEntry{
		Actor:   string(worker.ID),
		Action:  "CRAFT",
		Details: map[string]any{"workshop": string(ws.entity.ID), "blueprint": ws.bp.ID},
	})
}
