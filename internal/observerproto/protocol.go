package observerproto

// Version is the observer protocol version.
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// IncludeEntities asks for per-entity state in every TICK.
	IncludeEntities bool `json:"include_entities,omitempty"`
	MaxEntities     int  `json:"max_entities,omitempty"`
}

// HTTP response for GET /v1/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	Materials       []string    `json:"materials"`
	Blueprints      []string    `json:"blueprints"`
}

type WorldParams struct {
	TickRateHz         int   `json:"tick_rate_hz"`
	Seed               int64 `json:"seed"`
	MatchIntervalTicks int   `json:"match_interval_ticks"`
	BoundaryR          int   `json:"boundary_r"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	EntityCount int `json:"entity_count"`
	OpenJobs    int `json:"open_jobs"`
	InFlight    int `json:"in_flight"`

	Deals      []Deal        `json:"deals,omitempty"`
	Deliveries []Deal        `json:"deliveries,omitempty"`
	Crafts     []Craft       `json:"crafts,omitempty"`
	Entities   []EntityState `json:"entities,omitempty"`
}

type Deal struct {
	Material    string `json:"material"`
	Supplier    string `json:"supplier"`
	Destination string `json:"destination"`
	Quantity    int    `json:"quantity"`
}

type Craft struct {
	Workshop  string `json:"workshop"`
	Blueprint string `json:"blueprint"`
	Worker    string `json:"worker"`
}

type EntityState struct {
	ID     string         `json:"id"`
	Kind   string         `json:"kind"`
	Pos    [2]int         `json:"pos"`
	Task   string         `json:"task,omitempty"`
	Energy int            `json:"energy,omitempty"`
	Stock  map[string]int `json:"stock,omitempty"`
}
