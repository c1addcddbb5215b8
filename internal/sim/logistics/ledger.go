package logistics

import (
	"sort"

	"colonysim.ai/internal/sim/entity"
)

// Deal moves Quantity of Material from Supplier to Destination.
type Deal struct {
	Material    string
	Supplier    entity.ID
	Destination entity.ID
	Quantity    int
}

// Ledger holds, per material, each party's signed position: positive is
// surplus on offer, negative is demand. Parties keep the order in which they
// first appeared, which decides ties.
type Ledger struct {
	entries map[string]map[entity.ID]int
	order   []entity.ID
	known   map[entity.ID]bool
}

func NewLedger() *Ledger {
	return &Ledger{entries: map[string]map[entity.ID]int{}, known: map[entity.ID]bool{}}
}

// Set records a position. Zero clears it.
func (l *Ledger) Set(material string, party entity.ID, qty int) {
	if !l.known[party] {
		l.known[party] = true
		l.order = append(l.order, party)
	}
	m := l.entries[material]
	if qty == 0 {
		if m != nil {
			delete(m, party)
			if len(m) == 0 {
				delete(l.entries, material)
			}
		}
		return
	}
	if m == nil {
		m = map[entity.ID]int{}
		l.entries[material] = m
	}
	m[party] = qty
}

func (l *Ledger) Get(material string, party entity.ID) int {
	return l.entries[material][party]
}

func (l *Ledger) Materials() []string {
	out := make([]string, 0, len(l.entries))
	for m := range l.entries {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// LargestTransferDeal pairs the largest supplier with the largest demand for
// material. The quantity is the smaller of the two magnitudes.
func (l *Ledger) LargestTransferDeal(material string) (Deal, bool) {
	m := l.entries[material]
	var supplier, destination entity.ID
	maxQty, minQty := 0, 0
	for _, id := range l.order {
		q, ok := m[id]
		if !ok {
			continue
		}
		if q > maxQty {
			supplier, maxQty = id, q
		}
		if q < minQty {
			destination, minQty = id, q
		}
	}
	if maxQty == 0 || minQty == 0 {
		return Deal{}, false
	}
	qty := maxQty
	if -minQty < qty {
		qty = -minQty
	}
	return Deal{Material: material, Supplier: supplier, Destination: destination, Quantity: qty}, true
}

// ExcludeDealFromRecords takes a committed deal off both positions, leaving
// any remainder in play for further deals.
func (l *Ledger) ExcludeDealFromRecords(d Deal) {
	l.Set(d.Material, d.Supplier, l.Get(d.Material, d.Supplier)-d.Quantity)
	l.Set(d.Material, d.Destination, l.Get(d.Material, d.Destination)+d.Quantity)
}
