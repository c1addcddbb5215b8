package world

import (
	"errors"
	"fmt"

	"colonysim.ai/internal/persistence/snapshot"
	"colonysim.ai/internal/sim/entity"
)

var (
	ErrNotEmpty        = errors.New("world: import into a populated world")
	ErrCatalogMismatch = errors.New("world: snapshot catalogs differ from loaded catalogs")
)

// ExportSnapshot captures stock, positions, thresholds and vitals.
// Reservations and jobs in flight are left out.
func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header:             snapshot.Header{Version: snapshot.Version, WorldID: w.cfg.ID, Tick: w.tl.Now()},
		Seed:               w.cfg.Seed,
		TickRate:           w.cfg.TickRateHz,
		MatchIntervalTicks: w.cfg.MatchIntervalTicks,
		MaxLoad:            w.cfg.MaxLoad,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		Counters:           w.counters,
	}
	if w.cats != nil {
		s.MaterialsDigest = w.cats.Materials.Digest
		s.BlueprintsDigest = w.cats.Blueprints.Digest
	}
	for _, e := range w.Entities() {
		if !e.Alive() {
			continue
		}
		p := e.Pos()
		ev := snapshot.EntityV1{
			ID:    string(e.ID),
			Kind:  string(e.Kind),
			Pos:   [2]int{p.X, p.Y},
			Alive: true,
		}
		if e.Storage != nil && e.Storage.Inventory != nil {
			ev.Stacks = e.Storage.Inventory.Capacity()
			ev.Stock = e.Storage.Inventory.Stock()
		}
		if e.Party != nil {
			ev.Keep = copyCounts(e.Party.Keep)
			ev.Want = copyCounts(e.Party.Want)
		}
		if e.Worker != nil {
			ev.Speed = e.Worker.Speed
		}
		if e.Vitals != nil {
			ev.Energy = e.Vitals.Energy.Get()
		}
		if ws := w.workshops[e.ID]; ws != nil {
			ev.Blueprint = ws.bp.ID
		}
		s.Entities = append(s.Entities, ev)
	}
	return s
}

// strandCarried offers what a restored worker carries. Transports are not
// saved, so its load belongs to no deal.
func (w *World) strandCarried(e *entity.Entity) error {
	inv := e.Storage.Inventory
	for _, m := range inv.Materials() {
		if err := w.exchange.Strand(e, m, inv.StockOf(m)); err != nil {
			return err
		}
	}
	return nil
}

// ImportSnapshot rebuilds a freshly created world from s. The clock is
// restored first so every loop and match pass is scheduled relative to the
// snapshot tick.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if len(w.byID) > 0 {
		return ErrNotEmpty
	}
	if w.cats != nil {
		if s.MaterialsDigest != "" && s.MaterialsDigest != w.cats.Materials.Digest {
			return fmt.Errorf("%w: materials", ErrCatalogMismatch)
		}
		if s.BlueprintsDigest != "" && s.BlueprintsDigest != w.cats.Blueprints.Digest {
			return fmt.Errorf("%w: blueprints", ErrCatalogMismatch)
		}
	}
	if err := w.tl.Hydrate(s.Header.Tick); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	w.cfg.Seed = s.Seed
	if s.Header.WorldID != "" {
		w.cfg.ID = s.Header.WorldID
	}
	for _, ev := range s.Entities {
		if !ev.Alive {
			continue
		}
		id := entity.ID(ev.ID)
		pos := entity.Vec2{X: ev.Pos[0], Y: ev.Pos[1]}
		var err error
		switch entity.Kind(ev.Kind) {
		case entity.KindWorker:
			speed := ev.Speed
			if speed <= 0 {
				speed = w.cfg.Worker.Speed
			}
			var e *entity.Entity
			if e, err = w.spawnWorker(id, pos, speed, ev.Energy, ev.Stock); err == nil {
				err = w.strandCarried(e)
			}
		case entity.KindStorage:
			_, err = w.spawnStorage(id, StorageSpec{Pos: pos, Stacks: ev.Stacks, Stock: ev.Stock, Keep: ev.Keep, Want: ev.Want})
		case entity.KindWorkshop:
			_, err = w.spawnWorkshop(id, pos, ev.Blueprint, ev.Stock)
		default:
			err = fmt.Errorf("unknown kind %q", ev.Kind)
		}
		if err != nil {
			return fmt.Errorf("import %s: %w", ev.ID, err)
		}
	}
	w.counters = s.Counters
	// Restored entities are not spawns of the next tick.
	w.activity = TickLogEntry{}
	return nil
}
