package logistics

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"colonysim.ai/internal/sim/behavior"
	"colonysim.ai/internal/sim/entity"
	"colonysim.ai/internal/sim/inventory"
	"colonysim.ai/internal/sim/jobs"
	"colonysim.ai/internal/sim/reactive"
	"colonysim.ai/internal/sim/timeline"
)

var (
	ErrNotParty          = errors.New("logistics: entity lacks location, storage or party")
	ErrAlreadyRegistered = errors.New("logistics: party already registered")
	ErrUnknownParty      = errors.New("logistics: unknown party")
)

var dealNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("colonysim.ai/logistics/deal"))

type Config struct {
	// Interval is the debounce window, in ticks, between an inventory change
	// and the match pass it triggers.
	Interval int
	// MaxLoad caps a single deal. Zero means no cap.
	MaxLoad int
	// LoadLimit, when set, caps a deal per material, usually by what one
	// worker can carry.
	LoadLimit func(material string) int
}

// Transport is a committed deal waiting for or being carried by a worker.
type Transport struct {
	Key     string
	Deal    Deal
	Posting *jobs.Posting
	Carrier entity.ID
	Loaded  bool

	from, to *inventory.Inventory
	carrier  *inventory.Inventory
}

type party struct {
	view        entity.PartyView
	unsubscribe reactive.Destroyer
	// cargo is set for a carrier left holding goods after a failed
	// delivery. It offers exactly this much and leaves once drained.
	cargo map[string]int
}

// offer is what the party can give away of material now.
func (p *party) offer(material string) int {
	if p.cargo == nil {
		return p.view.Offer(material)
	}
	n := p.cargo[material] - p.view.Inventory.Outgoing(material)
	if avail := p.view.Inventory.AvailableOf(material); n > avail {
		n = avail
	}
	if n < 0 {
		return 0
	}
	return n
}

// Exchange matches surplus against demand across registered parties and
// turns each deal into a reserved, one-shot transport posting.
type Exchange struct {
	env   behavior.Env
	board *jobs.Board
	cfg   Config

	parties map[entity.ID]*party
	order   []entity.ID

	pending    timeline.Canceller
	seq        uint64
	transports map[string]*Transport

	work      behavior.Node
	deals     reactive.Event[Deal]
	delivered reactive.Event[Deal]
}

func NewExchange(env behavior.Env, board *jobs.Board, cfg Config) *Exchange {
	if cfg.Interval < 1 {
		cfg.Interval = 1
	}
	x := &Exchange{
		env:        env,
		board:      board,
		cfg:        cfg,
		parties:    map[entity.ID]*party{},
		transports: map[string]*Transport{},
	}
	x.work = x.transportTree()
	return x
}

func (x *Exchange) OnDeal(cb func(Deal) error) reactive.Destroyer      { return x.deals.On(cb) }
func (x *Exchange) OnDelivered(cb func(Deal) error) reactive.Destroyer { return x.delivered.On(cb) }

func (x *Exchange) Parties() []entity.ID { return append([]entity.ID(nil), x.order...) }

// MatchPending reports whether a match pass is already scheduled.
func (x *Exchange) MatchPending() bool { return x.pending != nil }

// Transports lists in-flight transports by key.
func (x *Exchange) Transports() []*Transport {
	keys := make([]string, 0, len(x.transports))
	for k := range x.transports {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Transport, 0, len(keys))
	for _, k := range keys {
		out = append(out, x.transports[k])
	}
	return out
}

// Register adds a party and watches its inventory for changes.
func (x *Exchange) Register(e *entity.Entity) error {
	view, ok := entity.AsParty(e)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotParty, e.ID)
	}
	if _, ok := x.parties[e.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, e.ID)
	}
	p := &party{view: view}
	p.unsubscribe = view.Inventory.OnChange(func(inventory.Change) error { return x.schedule() })
	x.parties[e.ID] = p
	x.order = append(x.order, e.ID)
	return x.schedule()
}

// Registered reports whether id takes part in matching, as a party or as a
// carrier holding stranded cargo.
func (x *Exchange) Registered(id entity.ID) bool {
	_, ok := x.parties[id]
	return ok
}

// Strand offers goods a carrier holds outside any transport. The carrier
// joins the exchange as a supplier of exactly that quantity and leaves again
// once it has all been picked up.
func (x *Exchange) Strand(e *entity.Entity, material string, qty int) error {
	if qty <= 0 {
		return nil
	}
	if p, ok := x.parties[e.ID]; ok {
		if p.cargo == nil {
			return fmt.Errorf("%w: %s", ErrAlreadyRegistered, e.ID)
		}
		p.cargo[material] += qty
		return x.schedule()
	}
	w, ok := entity.AsWorker(e)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotParty, e.ID)
	}
	x.parties[e.ID] = &party{
		view:  entity.PartyView{Entity: e, Location: w.Location, Party: &entity.Party{}, Inventory: w.Inventory},
		cargo: map[string]int{material: qty},
	}
	x.order = append(x.order, e.ID)
	return x.schedule()
}

// drain books qty of cargo as picked up from a stranded carrier.
func (x *Exchange) drain(id entity.ID, material string, qty int) error {
	p, ok := x.parties[id]
	if !ok || p.cargo == nil {
		return nil
	}
	p.cargo[material] -= qty
	if p.cargo[material] <= 0 {
		delete(p.cargo, material)
	}
	if len(p.cargo) > 0 {
		return nil
	}
	return x.Unregister(id)
}

// Unregister drops a party. Transports touching it that no worker has taken
// are withdrawn; taken ones decline at their next stage.
func (x *Exchange) Unregister(id entity.ID) error {
	p, ok := x.parties[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParty, id)
	}
	delete(x.parties, id)
	for i, o := range x.order {
		if o == id {
			x.order = append(x.order[:i], x.order[i+1:]...)
			break
		}
	}
	if p.unsubscribe != nil {
		if err := p.unsubscribe(); err != nil {
			return err
		}
	}
	for _, t := range x.Transports() {
		if t.Carrier != "" || (t.Deal.Supplier != id && t.Deal.Destination != id) {
			continue
		}
		if err := x.withdraw(t); err != nil {
			return err
		}
	}
	return nil
}

func (x *Exchange) schedule() error {
	if x.pending != nil {
		return nil
	}
	c, err := x.env.Timeline().SetTimeout(func() error {
		x.pending = nil
		_, err := x.Match()
		return err
	}, x.cfg.Interval)
	if err != nil {
		return err
	}
	x.pending = c
	return nil
}

// Ledger builds the current positions from each party's thresholds.
func (x *Exchange) Ledger() *Ledger {
	l := NewLedger()
	for _, id := range x.order {
		p := x.parties[id]
		if p.cargo != nil {
			for _, m := range cargoMaterials(p.cargo) {
				if n := p.offer(m); n > 0 {
					l.Set(m, id, n)
				}
			}
			continue
		}
		for _, m := range thresholdMaterials(p.view.Party) {
			l.Set(m, id, p.offer(m)-p.view.Need(m))
		}
	}
	return l
}

func thresholdMaterials(p *entity.Party) []string {
	seen := map[string]bool{}
	var out []string
	for m := range p.Keep {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	for m := range p.Want {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

func cargoMaterials(cargo map[string]int) []string {
	out := make([]string, 0, len(cargo))
	for m := range cargo {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Match runs one pass: per material, repeatedly commit the largest deal and
// exclude it from the ledger until no supplier or no destination is left.
func (x *Exchange) Match() ([]Deal, error) {
	ledger := x.Ledger()
	var out []Deal
	for _, m := range ledger.Materials() {
		for {
			d, ok := ledger.LargestTransferDeal(m)
			if !ok {
				break
			}
			if x.cfg.MaxLoad > 0 && d.Quantity > x.cfg.MaxLoad {
				d.Quantity = x.cfg.MaxLoad
			}
			if x.cfg.LoadLimit != nil {
				if limit := x.cfg.LoadLimit(m); limit > 0 && d.Quantity > limit {
					d.Quantity = limit
				}
			}
			sup := x.parties[d.Supplier]
			from := sup.view.Inventory
			to := x.parties[d.Destination].view.Inventory
			// Positions are computed per material; stacks are shared, so
			// an earlier deal may have used the room this one counted on.
			if free := to.AllocatableTo(m); d.Quantity > free {
				d.Quantity = free
			}
			if avail := sup.offer(m); d.Quantity > avail {
				d.Quantity = avail
			}
			if d.Quantity <= 0 {
				if sup.offer(m) <= 0 {
					ledger.Set(m, d.Supplier, 0)
				} else {
					ledger.Set(m, d.Destination, 0)
				}
				continue
			}
			if err := x.commit(d, from, to); err != nil {
				return out, err
			}
			ledger.ExcludeDealFromRecords(d)
			out = append(out, d)
		}
	}
	return out, nil
}

// DealKey names the reservations of one deal. It is stable for the same
// tick, sequence number and deal.
func DealKey(d Deal, tick, seq uint64) string {
	name := fmt.Sprintf("%d/%d/%s/%s/%s/%d", tick, seq, d.Material, d.Supplier, d.Destination, d.Quantity)
	return uuid.NewSHA1(dealNamespace, []byte(name)).String()
}

func (x *Exchange) commit(d Deal, from, to *inventory.Inventory) error {
	x.seq++
	key := DealKey(d, x.env.Now(), x.seq)
	if err := from.MakeReservation(key, inventory.Delta{Material: d.Material, Quantity: -d.Quantity}); err != nil {
		return fmt.Errorf("reserve supply for %s: %w", key, err)
	}
	if err := to.MakeReservation(key, inventory.Delta{Material: d.Material, Quantity: d.Quantity}); err != nil {
		_ = from.CancelReservation(key)
		return fmt.Errorf("reserve capacity for %s: %w", key, err)
	}
	t := &Transport{Key: key, Deal: d, from: from, to: to}
	p := jobs.NewPosting(key, "transport "+d.Material, 1, x.work, x.desirability(t))
	p.OnAssign = func(a *entity.Entity) error { return x.assign(t, a) }
	p.OnFinish = func(a *entity.Entity, o behavior.Outcome) error { return x.finish(t, a, o) }
	t.Posting = p
	x.transports[key] = t
	if err := x.board.Post(p); err != nil {
		return err
	}
	return x.deals.Emit(d)
}

// desirability prefers nearby workers that can carry the whole load.
func (x *Exchange) desirability(t *Transport) jobs.Desirability {
	return func(a *entity.Entity) float64 {
		w, ok := entity.AsWorker(a)
		if !ok || !a.Alive() {
			return 0
		}
		// A stranded carrier already holds the load.
		if a.ID == t.Deal.Supplier {
			return 1
		}
		if w.Inventory.AllocatableTo(t.Deal.Material) < t.Deal.Quantity {
			return 0
		}
		sup, ok := x.parties[t.Deal.Supplier]
		if !ok {
			return 0
		}
		d := entity.Manhattan(a.Pos(), sup.view.Location.Pos.Get())
		return 1 / float64(1+d)
	}
}

func (x *Exchange) assign(t *Transport, a *entity.Entity) error {
	w, ok := entity.AsWorker(a)
	if !ok {
		return fmt.Errorf("transport %s: %s cannot carry", t.Key, a.ID)
	}
	if a.ID != t.Deal.Supplier {
		if err := w.Inventory.MakeReservation(t.Key, inventory.Delta{Material: t.Deal.Material, Quantity: t.Deal.Quantity}); err != nil {
			return err
		}
	}
	t.Carrier = a.ID
	t.carrier = w.Inventory
	return nil
}

// finish closes a transport. Cargo a live carrier is left holding is
// stranded so a later pass can move it on.
func (x *Exchange) finish(t *Transport, carrier *entity.Entity, o behavior.Outcome) error {
	delete(x.transports, t.Key)
	if o.Ok() {
		return x.delivered.Emit(t.Deal)
	}
	if err := t.release(); err != nil {
		return err
	}
	if !t.Loaded || o.Status == behavior.StatusFault || carrier == nil || !carrier.Alive() {
		return nil
	}
	t.Loaded = false
	return x.Strand(carrier, t.Deal.Material, t.Deal.Quantity)
}

// withdraw pulls an untaken transport off the board and frees its
// reservations.
func (x *Exchange) withdraw(t *Transport) error {
	delete(x.transports, t.Key)
	if err := x.board.Remove(t.Posting); err != nil {
		return err
	}
	return t.release()
}

func (t *Transport) release() error {
	for _, inv := range []*inventory.Inventory{t.from, t.to, t.carrier} {
		if inv == nil || !inv.HasReservation(t.Key) {
			continue
		}
		if err := inv.CancelReservation(t.Key); err != nil {
			return err
		}
	}
	return nil
}
