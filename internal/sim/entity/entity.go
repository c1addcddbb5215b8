package entity

import (
	"colonysim.ai/internal/sim/inventory"
	"colonysim.ai/internal/sim/reactive"
)

type ID string

type Kind string

const (
	KindWorker   Kind = "WORKER"
	KindStorage  Kind = "STORAGE"
	KindWorkshop Kind = "WORKSHOP"
)

// Capability is one structurally checkable bundle an entity may carry.
type Capability uint8

const (
	CapLocation Capability = 1 << iota
	CapStorage
	CapWorker
	CapParty
	CapVitals
)

type Vec2 struct{ X, Y int }

func Manhattan(a, b Vec2) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

type Location struct {
	Pos *reactive.Value[Vec2]
}

type Storage struct {
	Inventory *inventory.Inventory
}

// Worker marks an entity that takes jobs. Speed is tiles per tick.
type Worker struct {
	Speed int
	Task  *reactive.Value[string]
}

// Party is a logistics participant. Stock above Keep is offered; stock
// below Want is requested.
type Party struct {
	Keep map[string]int
	Want map[string]int
}

type Vitals struct {
	Alive  *reactive.Value[bool]
	Energy *reactive.Numeric[int]
}

// Entity is a record of optional capabilities. Code asks for a capability
// view (AsWorker, AsParty, ...) rather than switching on Kind.
type Entity struct {
	ID   ID
	Kind Kind

	Location *Location
	Storage  *Storage
	Worker   *Worker
	Party    *Party
	Vitals   *Vitals
}

func (e *Entity) Caps() Capability {
	var c Capability
	if e.Location != nil {
		c |= CapLocation
	}
	if e.Storage != nil && e.Storage.Inventory != nil {
		c |= CapStorage
	}
	if e.Worker != nil {
		c |= CapWorker
	}
	if e.Party != nil {
		c |= CapParty
	}
	if e.Vitals != nil {
		c |= CapVitals
	}
	return c
}

func (e *Entity) Has(c Capability) bool { return e != nil && e.Caps()&c == c }

// Alive reports false only for entities with vitals that were marked dead.
func (e *Entity) Alive() bool {
	if e.Vitals == nil || e.Vitals.Alive == nil {
		return true
	}
	return e.Vitals.Alive.Get()
}

func (e *Entity) Pos() Vec2 {
	if e.Location == nil {
		return Vec2{}
	}
	return e.Location.Pos.Get()
}
