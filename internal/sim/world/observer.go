package world

import (
	"encoding/json"

	"colonysim.ai/internal/observerproto"
	"colonysim.ai/internal/sim/entity"
)

// ObserverJoinRequest registers a read-only session that receives one TICK
// message per tick on TickOut. All observer state lives on the world loop.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte

	IncludeEntities bool
	MaxEntities     int
}

// ObserverSubscribeRequest updates an existing session.
type ObserverSubscribeRequest struct {
	SessionID string

	IncludeEntities bool
	MaxEntities     int
}

type observerClient struct {
	id      string
	tickOut chan []byte

	includeEntities bool
	maxEntities     int
}

func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeave() chan<- string                       { return w.observerLeave }

// drainObservers applies queued session changes before the tick runs.
func (w *World) drainObservers() {
	for {
		select {
		case req := <-w.observerJoin:
			if req.SessionID == "" || req.TickOut == nil {
				continue
			}
			w.observers[req.SessionID] = &observerClient{
				id:              req.SessionID,
				tickOut:         req.TickOut,
				includeEntities: req.IncludeEntities,
				maxEntities:     req.MaxEntities,
			}
		case req := <-w.observerSub:
			if c := w.observers[req.SessionID]; c != nil {
				c.includeEntities = req.IncludeEntities
				c.maxEntities = req.MaxEntities
			}
		case id := <-w.observerLeave:
			delete(w.observers, id)
		default:
			return
		}
	}
}

func (w *World) stepObservers(now uint64, entry TickLogEntry) {
	if len(w.observers) == 0 {
		return
	}
	base := observerproto.TickMsg{
		Type:            "TICK",
		ProtocolVersion: observerproto.Version,
		Tick:            now,
		EntityCount:     w.entities.Len(),
		OpenJobs:        w.board.OpenVacancies(),
		InFlight:        len(w.exchange.Transports()),
		Deals:           protoDeals(entry.Deals),
		Deliveries:      protoDeals(entry.Deliveries),
	}
	for _, c := range entry.Crafts {
		base.Crafts = append(base.Crafts, observerproto.Craft{Workshop: c.Workshop, Blueprint: c.Blueprint, Worker: c.Worker})
	}

	var states []observerproto.EntityState
	for _, c := range w.observers {
		if c.includeEntities && states == nil {
			states = w.entityStates()
		}
	}

	for _, c := range w.observers {
		msg := base
		if c.includeEntities {
			msg.Entities = states
			if c.maxEntities > 0 && len(msg.Entities) > c.maxEntities {
				msg.Entities = msg.Entities[:c.maxEntities]
			}
		}
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		sendLatest(c.tickOut, b)
	}
}

func protoDeals(in []RecordedDeal) []observerproto.Deal {
	if len(in) == 0 {
		return nil
	}
	out := make([]observerproto.Deal, 0, len(in))
	for _, d := range in {
		out = append(out, observerproto.Deal{Material: d.Material, Supplier: d.Supplier, Destination: d.Destination, Quantity: d.Quantity})
	}
	return out
}

func (w *World) entityStates() []observerproto.EntityState {
	ents := w.Entities()
	out := make([]observerproto.EntityState, 0, len(ents))
	for _, e := range ents {
		p := e.Pos()
		st := observerproto.EntityState{ID: string(e.ID), Kind: string(e.Kind), Pos: [2]int{p.X, p.Y}}
		if v, ok := entity.AsWorker(e); ok {
			st.Task = v.Worker.Task.Get()
			st.Energy = v.Vitals.Energy.Get()
		}
		if e.Storage != nil && e.Storage.Inventory != nil {
			if s := e.Storage.Inventory.Stock(); len(s) > 0 {
				st.Stock = s
			}
		}
		out = append(out, st)
	}
	return out
}

// Bootstrap answers GET /v1/bootstrap. Config and catalogs never change
// after New, so only the tick is read through Status.
func (w *World) Bootstrap() observerproto.BootstrapResponse {
	resp := observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		WorldID:         w.cfg.ID,
		Tick:            w.Status().Tick,
		WorldParams: observerproto.WorldParams{
			TickRateHz:         w.cfg.TickRateHz,
			Seed:               w.cfg.Seed,
			MatchIntervalTicks: w.cfg.MatchIntervalTicks,
			BoundaryR:          w.cfg.BoundaryR,
		},
		Materials:  []string{},
		Blueprints: []string{},
	}
	if w.cats != nil {
		resp.Materials = append(resp.Materials, w.cats.Materials.Palette...)
		resp.Blueprints = w.cats.BlueprintIDs()
	}
	return resp
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
