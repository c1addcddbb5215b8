package entity

import "colonysim.ai/internal/sim/inventory"

type StorageView struct {
	Entity    *Entity
	Location  *Location
	Inventory *inventory.Inventory
}

func AsStorage(e *Entity) (StorageView, bool) {
	if !e.Has(CapLocation | CapStorage) {
		return StorageView{}, false
	}
	return StorageView{Entity: e, Location: e.Location, Inventory: e.Storage.Inventory}, true
}

type WorkerView struct {
	Entity    *Entity
	Location  *Location
	Worker    *Worker
	Vitals    *Vitals
	Inventory *inventory.Inventory
}

// AsWorker needs location, worker, vitals and a carrying inventory.
func AsWorker(e *Entity) (WorkerView, bool) {
	if !e.Has(CapLocation | CapWorker | CapVitals | CapStorage) {
		return WorkerView{}, false
	}
	return WorkerView{
		Entity:    e,
		Location:  e.Location,
		Worker:    e.Worker,
		Vitals:    e.Vitals,
		Inventory: e.Storage.Inventory,
	}, true
}

type PartyView struct {
	Entity    *Entity
	Location  *Location
	Party     *Party
	Inventory *inventory.Inventory
}

func AsParty(e *Entity) (PartyView, bool) {
	if !e.Has(CapLocation | CapStorage | CapParty) {
		return PartyView{}, false
	}
	return PartyView{Entity: e, Location: e.Location, Party: e.Party, Inventory: e.Storage.Inventory}, true
}

// Offer is how much of material the party can give away right now.
func (p PartyView) Offer(material string) int {
	keep, ok := p.Party.Keep[material]
	if !ok {
		return 0
	}
	n := p.Inventory.AvailableOf(material) - keep
	if n < 0 {
		return 0
	}
	return n
}

// Need is how much of material the party still asks for, bounded by the
// capacity it can actually receive.
func (p PartyView) Need(material string) int {
	want, ok := p.Party.Want[material]
	if !ok {
		return 0
	}
	n := want - p.Inventory.Incoming(material) - p.Inventory.StockOf(material)
	if n <= 0 {
		return 0
	}
	if free := p.Inventory.AllocatableTo(material); n > free {
		n = free
	}
	return n
}
