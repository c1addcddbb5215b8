package world

type TickLogEntry struct {
	Tick       uint64          `json:"tick"`
	Spawns     []RecordedSpawn `json:"spawns,omitempty"`
	Removals   []string        `json:"removals,omitempty"`
	Deals      []RecordedDeal  `json:"deals,omitempty"`
	Deliveries []RecordedDeal  `json:"deliveries,omitempty"`
	Crafts     []RecordedCraft `json:"crafts,omitempty"`
	Digest     string          `json:"digest"`
}

type RecordedSpawn struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type RecordedDeal struct {
	Material    string `json:"material"`
	Supplier    string `json:"supplier"`
	Destination string `json:"destination"`
	Quantity    int    `json:"quantity"`
}

type RecordedCraft struct {
	Workshop  string `json:"workshop"`
	Blueprint string `json:"blueprint"`
	Worker    string `json:"worker"`
}

type AuditEntry struct {
	Tick     uint64         `json:"tick"`
	Actor    string         `json:"actor"`
	Action   string         `json:"action"` // "DEAL","DELIVER","CRAFT","SPAWN","REMOVE"
	Material string         `json:"material,omitempty"`
	Quantity int            `json:"quantity,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// Status is a copy of headline numbers published after every tick, safe to
// read from other goroutines.
type Status struct {
	Tick         uint64  `json:"tick"`
	Entities     int     `json:"entities"`
	Workers      int     `json:"workers"`
	OpenJobs     int     `json:"open_jobs"`
	InFlight     int     `json:"in_flight"`
	Reservations int     `json:"reservations"`
	Observers    int     `json:"observers"`
	DealsTotal   uint64  `json:"deals_total"`
	Deliveries   uint64  `json:"deliveries_total"`
	CraftsTotal  uint64  `json:"crafts_total"`
	StepMS       float64 `json:"step_ms"`
}

type TickLogger interface {
	WriteTick(TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(AuditEntry) error
}
