package world

import (
	"fmt"

	"colonysim.ai/internal/sim/agent"
	"colonysim.ai/internal/sim/catalogs"
	"colonysim.ai/internal/sim/entity"
	"colonysim.ai/internal/sim/inventory"
	"colonysim.ai/internal/sim/jobs"
	"colonysim.ai/internal/sim/reactive"
)

// StorageSpec describes a stockpile. Keep and Want make it a logistics
// party; a storage with neither only holds goods.
type StorageSpec struct {
	Pos    entity.Vec2
	Stacks int
	Stock  map[string]int
	Keep   map[string]int
	Want   map[string]int
}

func (w *World) SpawnWorker(pos entity.Vec2) (*entity.Entity, error) {
	w.counters.NextWorker++
	id := entity.ID(fmt.Sprintf("W%d", w.counters.NextWorker))
	return w.spawnWorker(id, pos, w.cfg.Worker.Speed, w.cfg.Worker.StartEnergy, nil)
}

func (w *World) SpawnStorage(spec StorageSpec) (*entity.Entity, error) {
	w.counters.NextStorage++
	id := entity.ID(fmt.Sprintf("S%d", w.counters.NextStorage))
	return w.spawnStorage(id, spec)
}

func (w *World) SpawnWorkshop(pos entity.Vec2, blueprintID string) (*entity.Entity, error) {
	w.counters.NextWorkshop++
	id := entity.ID(fmt.Sprintf("K%d", w.counters.NextWorkshop))
	return w.spawnWorkshop(id, pos, blueprintID, nil)
}

func (w *World) checkID(id entity.ID) error {
	if _, ok := w.byID[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntity, id)
	}
	return nil
}

func (w *World) newInventory(stacks int, stock map[string]int) (*inventory.Inventory, error) {
	inv := inventory.New(stacks, w.cats)
	if len(stock) > 0 {
		if err := inv.Hydrate(stock); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

func location(pos entity.Vec2) *entity.Location {
	return &entity.Location{Pos: reactive.NewValue(pos)}
}

func (w *World) spawnWorker(id entity.ID, pos entity.Vec2, speed, energy int, carried map[string]int) (*entity.Entity, error) {
	if err := w.checkID(id); err != nil {
		return nil, err
	}
	inv, err := w.newInventory(w.cfg.Worker.CarryStacks, carried)
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", id, err)
	}
	e := &entity.Entity{
		ID:       id,
		Kind:     entity.KindWorker,
		Location: location(pos),
		Storage:  &entity.Storage{Inventory: inv},
		Worker:   &entity.Worker{Speed: speed, Task: reactive.NewValue("")},
		Vitals:   &entity.Vitals{Alive: reactive.NewValue(true), Energy: reactive.NewNumeric(energy)},
	}
	if err := w.add(e); err != nil {
		return nil, err
	}
	l := agent.New(w, e, w.observeEvaluation)
	w.loops[id] = l
	w.unsubs[id] = append(w.unsubs[id], e.Vitals.Alive.OnChange(func(c reactive.Change[bool]) error {
		if !c.New {
			l.Stop()
		}
		return nil
	}))
	if err := l.SetTree(w.workerTree); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", id, err)
	}
	return e, nil
}

func (w *World) spawnStorage(id entity.ID, spec StorageSpec) (*entity.Entity, error) {
	if err := w.checkID(id); err != nil {
		return nil, err
	}
	stacks := spec.Stacks
	if stacks <= 0 {
		stacks = w.cfg.StorageStacks
	}
	inv, err := w.newInventory(stacks, spec.Stock)
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", id, err)
	}
	e := &entity.Entity{
		ID:       id,
		Kind:     entity.KindStorage,
		Location: location(spec.Pos),
		Storage:  &entity.Storage{Inventory: inv},
	}
	if len(spec.Keep) > 0 || len(spec.Want) > 0 {
		e.Party = &entity.Party{Keep: copyCounts(spec.Keep), Want: copyCounts(spec.Want)}
	}
	if err := w.add(e); err != nil {
		return nil, err
	}
	if e.Party != nil {
		if err := w.exchange.Register(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (w *World) spawnWorkshop(id entity.ID, pos entity.Vec2, blueprintID string, stock map[string]int) (*entity.Entity, error) {
	if err := w.checkID(id); err != nil {
		return nil, err
	}
	var (
		bp catalogs.BlueprintDef
		ok bool
	)
	if w.cats != nil {
		bp, ok = w.cats.Blueprint(blueprintID)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlueprint, blueprintID)
	}
	inv, err := w.newInventory(w.cfg.StorageStacks, stock)
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", id, err)
	}
	e := &entity.Entity{
		ID:       id,
		Kind:     entity.KindWorkshop,
		Location: location(pos),
		Storage:  &entity.Storage{Inventory: inv},
		Party:    workshopParty(bp),
	}
	view, _ := entity.AsParty(e)
	ws := &workshop{entity: e, view: view, bp: bp}
	ws.posting = jobs.NewPosting(craftPostingPrefix+string(id), "craft "+bp.ID, bp.Vacancies, w.craftWork, w.craftDesirability(ws))
	ws.posting.RestoreOnCompletion = true

	if err := w.add(e); err != nil {
		return nil, err
	}
	w.workshops[id] = ws
	if err := w.board.Post(ws.posting); err != nil {
		return nil, err
	}
	if err := w.exchange.Register(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (w *World) add(e *entity.Entity) error {
	w.byID[e.ID] = e
	if err := w.entities.Add(e); err != nil {
		return err
	}
	w.activity.Spawns = append(w.activity.Spawns, RecordedSpawn{ID: string(e.ID), Kind: string(e.Kind)})
	w.audit(AuditEntry{Actor: string(e.ID), Action: "SPAWN", Reason: string(e.Kind)})
	return nil
}

// Remove takes an entity out of the world. Its decision loop stops, its
// workshop posting leaves the board and, as a party, transports no worker
// has taken yet are withdrawn. Cargo a removed worker carries leaves with it.
func (w *World) Remove(id entity.ID) error {
	e, ok := w.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	if l := w.loops[id]; l != nil {
		l.Stop()
		delete(w.loops, id)
	}
	if e.Vitals != nil {
		if err := e.Vitals.Alive.Set(false); err != nil {
			return err
		}
	}
	if ws := w.workshops[id]; ws != nil {
		delete(w.workshops, id)
		if err := w.board.Remove(ws.posting); err != nil {
			return err
		}
	}
	if e.Party != nil || w.exchange.Registered(id) {
		if err := w.exchange.Unregister(id); err != nil {
			return err
		}
	}
	for _, d := range w.unsubs[id] {
		if err := d(); err != nil {
			return err
		}
	}
	delete(w.unsubs, id)
	delete(w.byID, id)
	if err := w.entities.Remove(e); err != nil {
		return err
	}
	w.activity.Removals = append(w.activity.Removals, string(id))
	w.audit(AuditEntry{Actor: string(id), Action: "REMOVE", Reason: string(e.Kind)})
	return nil
}

func copyCounts(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
