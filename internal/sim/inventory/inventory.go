package inventory

import (
	"errors"
	"fmt"
	"sort"

	"colonysim.ai/internal/sim/reactive"
)

var (
	ErrReservationExists    = errors.New("inventory: reservation already exists")
	ErrUnknownReservation   = errors.New("inventory: unknown reservation")
	ErrEmptyReservation     = errors.New("inventory: reservation has no deltas")
	ErrInsufficientStock    = errors.New("inventory: insufficient available stock")
	ErrInsufficientCapacity = errors.New("inventory: insufficient free capacity")
)

// Delta is a signed quantity of one material. Positive adds, negative removes.
type Delta struct {
	Material string
	Quantity int
}

// Sizer reports how many units of a material fit in one stack.
type Sizer interface {
	StackSize(material string) int
}

// FixedStack uses the same stack size for every material.
type FixedStack int

func (f FixedStack) StackSize(string) int { return int(f) }

// Change describes one notification. Reservation is set for reservation
// bookkeeping; Deltas is set when stock moved.
type Change struct {
	Reservation string
	Deltas      []Delta
}

// Inventory is stock plus a reservation ledger. A reservation pre-claims
// capacity (positive deltas) or available stock (negative deltas) under an
// opaque key until it is cancelled or fulfilled.
//
// Invariants kept by every exported method: AvailableOf(m) >= 0 for all m,
// and UsedStacks() <= Capacity().
type Inventory struct {
	stacks int
	sizer  Sizer

	stock        map[string]int
	reservations map[string][]Delta

	changed    reactive.Event[Change]
	quantities map[string]*reactive.Numeric[int]
}

func New(stacks int, sizer Sizer) *Inventory {
	if sizer == nil {
		sizer = FixedStack(1)
	}
	return &Inventory{
		stacks:       stacks,
		sizer:        sizer,
		stock:        map[string]int{},
		reservations: map[string][]Delta{},
		quantities:   map[string]*reactive.Numeric[int]{},
	}
}

func (inv *Inventory) Capacity() int { return inv.stacks }

func (inv *Inventory) StockOf(material string) int { return inv.stock[material] }

// Incoming sums positive reserved deltas for material.
func (inv *Inventory) Incoming(material string) int {
	n := 0
	for _, ds := range inv.reservations {
		for _, d := range ds {
			if d.Material == material && d.Quantity > 0 {
				n += d.Quantity
			}
		}
	}
	return n
}

// Outgoing sums negative reserved deltas for material, as a positive number.
func (inv *Inventory) Outgoing(material string) int {
	n := 0
	for _, ds := range inv.reservations {
		for _, d := range ds {
			if d.Material == material && d.Quantity < 0 {
				n -= d.Quantity
			}
		}
	}
	return n
}

func (inv *Inventory) AvailableOf(material string) int {
	return inv.stock[material] - inv.Outgoing(material)
}

func (inv *Inventory) stackSize(material string) int {
	s := inv.sizer.StackSize(material)
	if s <= 0 {
		return 1
	}
	return s
}

func (inv *Inventory) footprint(extra map[string]int) int {
	held := map[string]int{}
	for m, n := range inv.stock {
		held[m] += n
	}
	for _, ds := range inv.reservations {
		for _, d := range ds {
			if d.Quantity > 0 {
				held[d.Material] += d.Quantity
			}
		}
	}
	for m, n := range extra {
		held[m] += n
	}
	used := 0
	for m, n := range held {
		if n <= 0 {
			continue
		}
		size := inv.stackSize(m)
		used += (n + size - 1) / size
	}
	return used
}

// UsedStacks counts stacks taken by stock and by incoming reservations.
func (inv *Inventory) UsedStacks() int { return inv.footprint(nil) }

// AllocatableTo is how many more units of material fit, counting the partial
// stack the material already occupies.
func (inv *Inventory) AllocatableTo(material string) int {
	size := inv.stackSize(material)
	mine := inv.stock[material] + inv.Incoming(material)
	mineStacks := (mine + size - 1) / size
	free := inv.stacks - (inv.footprint(nil) - mineStacks)
	n := free*size - mine
	if n < 0 {
		return 0
	}
	return n
}

func aggregate(deltas []Delta) map[string]int {
	out := map[string]int{}
	for _, d := range deltas {
		if d.Material == "" || d.Quantity == 0 {
			continue
		}
		out[d.Material] += d.Quantity
	}
	return out
}

func (inv *Inventory) HasReservation(key string) bool {
	_, ok := inv.reservations[key]
	return ok
}

// Reservation returns a copy of the deltas held under key.
func (inv *Inventory) Reservation(key string) ([]Delta, bool) {
	ds, ok := inv.reservations[key]
	if !ok {
		return nil, false
	}
	out := make([]Delta, len(ds))
	copy(out, ds)
	return out, true
}

func (inv *Inventory) ReservationKeys() []string {
	keys := make([]string, 0, len(inv.reservations))
	for k := range inv.reservations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MakeReservation records deltas under key. It fails without side effects if
// key is taken, if an outgoing delta exceeds available stock, or if incoming
// deltas do not fit.
func (inv *Inventory) MakeReservation(key string, deltas ...Delta) error {
	if _, ok := inv.reservations[key]; ok {
		return fmt.Errorf("%w: %q", ErrReservationExists, key)
	}
	agg := aggregate(deltas)
	if len(agg) == 0 {
		return fmt.Errorf("%w: %q", ErrEmptyReservation, key)
	}
	incoming := map[string]int{}
	for _, m := range sortedKeys(agg) {
		q := agg[m]
		if q < 0 && -q > inv.AvailableOf(m) {
			return fmt.Errorf("%w: %s wants %d, available %d", ErrInsufficientStock, m, -q, inv.AvailableOf(m))
		}
		if q > 0 {
			incoming[m] = q
		}
	}
	// Reserved removals keep their stacks until fulfilled.
	if len(incoming) > 0 && inv.footprint(incoming) > inv.stacks {
		return fmt.Errorf("%w: reservation %q", ErrInsufficientCapacity, key)
	}
	kept := make([]Delta, 0, len(agg))
	for _, m := range sortedKeys(agg) {
		kept = append(kept, Delta{Material: m, Quantity: agg[m]})
	}
	inv.reservations[key] = kept
	return inv.changed.Emit(Change{Reservation: key})
}

// CancelReservation drops the ledger entry without moving stock.
func (inv *Inventory) CancelReservation(key string) error {
	if _, ok := inv.reservations[key]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownReservation, key)
	}
	delete(inv.reservations, key)
	return inv.changed.Emit(Change{Reservation: key})
}

// FulfillReservation drops the entry and applies its deltas to stock in one
// notification.
func (inv *Inventory) FulfillReservation(key string) error {
	ds, ok := inv.reservations[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownReservation, key)
	}
	delete(inv.reservations, key)
	for _, d := range ds {
		inv.stock[d.Material] += d.Quantity
		if inv.stock[d.Material] <= 0 {
			delete(inv.stock, d.Material)
		}
	}
	if err := inv.syncQuantities(ds); err != nil {
		return err
	}
	return inv.changed.Emit(Change{Reservation: key, Deltas: ds})
}

// ChangeMultiple applies confirmed deltas to stock. Removals may not touch
// reserved stock and additions must fit; on violation nothing changes.
func (inv *Inventory) ChangeMultiple(deltas ...Delta) error {
	agg := aggregate(deltas)
	if len(agg) == 0 {
		return nil
	}
	incoming := map[string]int{}
	for _, m := range sortedKeys(agg) {
		q := agg[m]
		if q < 0 && -q > inv.AvailableOf(m) {
			return fmt.Errorf("%w: %s remove %d, available %d", ErrInsufficientStock, m, -q, inv.AvailableOf(m))
		}
		if q > 0 {
			incoming[m] = q
		}
	}
	// Removals in the same batch free their stacks first.
	if len(incoming) > 0 && inv.footprint(agg) > inv.stacks {
		return fmt.Errorf("%w: change %v", ErrInsufficientCapacity, incoming)
	}
	applied := make([]Delta, 0, len(agg))
	for _, m := range sortedKeys(agg) {
		inv.stock[m] += agg[m]
		if inv.stock[m] <= 0 {
			delete(inv.stock, m)
		}
		applied = append(applied, Delta{Material: m, Quantity: agg[m]})
	}
	if err := inv.syncQuantities(applied); err != nil {
		return err
	}
	return inv.changed.Emit(Change{Deltas: applied})
}

func (inv *Inventory) syncQuantities(ds []Delta) error {
	for _, d := range ds {
		if q := inv.quantities[d.Material]; q != nil {
			if err := q.Set(inv.stock[d.Material]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Quantity is a reactive view of the stock of one material.
func (inv *Inventory) Quantity(material string) *reactive.Numeric[int] {
	q := inv.quantities[material]
	if q == nil {
		q = reactive.NewNumeric(inv.stock[material])
		inv.quantities[material] = q
	}
	return q
}

func (inv *Inventory) OnChange(cb func(Change) error) reactive.Destroyer {
	return inv.changed.On(cb)
}

// Stock returns a copy of positive stock.
func (inv *Inventory) Stock() map[string]int {
	out := make(map[string]int, len(inv.stock))
	for m, n := range inv.stock {
		if n > 0 {
			out[m] = n
		}
	}
	return out
}

func (inv *Inventory) Materials() []string { return sortedKeys(inv.stock) }

// Hydrate replaces stock from a save without notifying. It refuses to run
// under live reservations or to exceed capacity.
func (inv *Inventory) Hydrate(stock map[string]int) error {
	if len(inv.reservations) > 0 {
		return fmt.Errorf("inventory: hydrate with %d live reservations", len(inv.reservations))
	}
	prev := inv.stock
	inv.stock = map[string]int{}
	for m, n := range stock {
		if n > 0 {
			inv.stock[m] = n
		}
	}
	if inv.footprint(nil) > inv.stacks {
		inv.stock = prev
		return fmt.Errorf("%w: hydrate", ErrInsufficientCapacity)
	}
	for m, q := range inv.quantities {
		q.Hydrate(inv.stock[m])
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
