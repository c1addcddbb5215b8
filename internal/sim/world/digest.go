package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"colonysim.ai/internal/sim/jobs"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// Digest hashes the observable state: clock, entities in id order with
// stock, reservations and vitals, and the job board. Two worlds fed the
// same inputs produce the same digest on every tick.
func (w *World) Digest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, w.tl.Now())
	digestWriteI64(h, &tmp, w.cfg.Seed)

	for _, e := range w.Entities() {
		digestWriteString(h, &tmp, string(e.ID))
		digestWriteString(h, &tmp, string(e.Kind))
		p := e.Pos()
		digestWriteI64(h, &tmp, int64(p.X))
		digestWriteI64(h, &tmp, int64(p.Y))
		if e.Storage != nil && e.Storage.Inventory != nil {
			inv := e.Storage.Inventory
			writeItemMap(h, &tmp, inv.Stock())
			keys := inv.ReservationKeys()
			digestWriteU64(h, &tmp, uint64(len(keys)))
			for _, k := range keys {
				digestWriteString(h, &tmp, k)
			}
		}
		if e.Vitals != nil {
			h.Write([]byte{boolByte(e.Alive())})
			digestWriteI64(h, &tmp, int64(e.Vitals.Energy.Get()))
		}
		if e.Worker != nil {
			digestWriteString(h, &tmp, e.Worker.Task.Get())
		}
	}

	postings := w.board.Postings()
	sort.Slice(postings, func(i, j int) bool { return postings[i].ID < postings[j].ID })
	digestWriteU64(h, &tmp, uint64(len(postings)))
	for _, p := range postings {
		writePosting(h, &tmp, p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writePosting(h hashWriter, tmp *[8]byte, p *jobs.Posting) {
	digestWriteString(h, tmp, p.ID)
	digestWriteI64(h, tmp, int64(p.Vacancies()))
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// writeItemMap hashes non-zero counts in key order.
func writeItemMap(h hashWriter, tmp *[8]byte, m map[string]int) {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	digestWriteU64(h, tmp, uint64(len(keys)))
	for _, k := range keys {
		digestWriteString(h, tmp, k)
		digestWriteI64(h, tmp, int64(m[k]))
	}
}
