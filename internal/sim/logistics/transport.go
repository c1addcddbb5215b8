package logistics

import (
	"fmt"

	"colonysim.ai/internal/sim/behavior"
	"colonysim.ai/internal/sim/entity"
	"colonysim.ai/internal/sim/inventory"
	"colonysim.ai/internal/sim/jobs"
)

// transportTree is shared by every transport posting of the exchange. The
// transport itself is found through the posting on the blackboard.
func (x *Exchange) transportTree() behavior.Node {
	return behavior.Sequence("transport",
		x.walkTo("supplier", func(t *Transport) entity.ID { return t.Deal.Supplier }),
		behavior.Do("pickup", x.pickup),
		x.walkTo("destination", func(t *Transport) entity.ID { return t.Deal.Destination }),
		behavior.Do("deliver", x.deliver),
	)
}

func (x *Exchange) current(bb *behavior.Blackboard) (*Transport, entity.WorkerView, error) {
	p, ok := behavior.Lookup[*jobs.Posting](bb, jobs.KeyPosting)
	if !ok {
		return nil, entity.WorkerView{}, fmt.Errorf("transport: no posting on blackboard")
	}
	t, ok := x.transports[p.ID]
	if !ok {
		return nil, entity.WorkerView{}, fmt.Errorf("transport: unknown deal %s", p.ID)
	}
	w, ok := entity.AsWorker(bb.Agent)
	if !ok {
		return nil, entity.WorkerView{}, fmt.Errorf("transport: %s cannot carry", bb.Agent.ID)
	}
	return t, w, nil
}

// TravelTicks is how long a walk of the Manhattan distance takes at speed
// tiles per tick, rounded up.
func TravelTicks(from, to entity.Vec2, speed int) int {
	if speed < 1 {
		speed = 1
	}
	d := entity.Manhattan(from, to)
	return (d + speed - 1) / speed
}

func (x *Exchange) walkTo(role string, target func(*Transport) entity.ID) behavior.Node {
	return behavior.Execute("walk-to-"+role, func(bb *behavior.Blackboard, done behavior.Done) error {
		t, w, err := x.current(bb)
		if err != nil {
			return done(behavior.Fault(err))
		}
		id := target(t)
		p, ok := x.parties[id]
		if !ok {
			return done(behavior.Decline(behavior.Declinef("%s %s left the exchange", role, id)))
		}
		dest := p.view.Location.Pos.Get()
		arrive := func() error {
			if !bb.Agent.Alive() {
				return done(behavior.Decline(behavior.Declinef("carrier %s died on the way", bb.Agent.ID)))
			}
			if err := w.Location.Pos.Set(dest); err != nil {
				return done(behavior.Fault(err))
			}
			return done(behavior.Success())
		}
		ticks := TravelTicks(w.Location.Pos.Get(), dest, w.Worker.Speed)
		if ticks == 0 {
			return arrive()
		}
		return behavior.WaitThen(bb, ticks, arrive)
	})
}

func (x *Exchange) pickup(bb *behavior.Blackboard) error {
	t, w, err := x.current(bb)
	if err != nil {
		return err
	}
	if _, ok := x.parties[t.Deal.Supplier]; !ok {
		return behavior.Declinef("supplier %s left the exchange", t.Deal.Supplier)
	}
	if t.from == w.Inventory {
		// Stranded cargo carried on by its holder: nothing moves.
		if err := t.from.CancelReservation(t.Key); err != nil {
			return fmt.Errorf("pickup %s: %w", t.Key, err)
		}
	} else {
		if err := t.from.FulfillReservation(t.Key); err != nil {
			return fmt.Errorf("pickup %s: %w", t.Key, err)
		}
		if err := w.Inventory.FulfillReservation(t.Key); err != nil {
			return fmt.Errorf("load %s: %w", t.Key, err)
		}
	}
	t.Loaded = true
	return x.drain(t.Deal.Supplier, t.Deal.Material, t.Deal.Quantity)
}

func (x *Exchange) deliver(bb *behavior.Blackboard) error {
	t, w, err := x.current(bb)
	if err != nil {
		return err
	}
	if _, ok := x.parties[t.Deal.Destination]; !ok {
		return behavior.Declinef("destination %s left the exchange", t.Deal.Destination)
	}
	if err := w.Inventory.ChangeMultiple(inventory.Delta{Material: t.Deal.Material, Quantity: -t.Deal.Quantity}); err != nil {
		return fmt.Errorf("unload %s: %w", t.Key, err)
	}
	if err := t.to.FulfillReservation(t.Key); err != nil {
		return fmt.Errorf("deliver %s: %w", t.Key, err)
	}
	return nil
}
