package indexdb

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"colonysim.ai/internal/sim/catalogs"
	"colonysim.ai/internal/sim/tuning"
)

type catalogRow struct {
	name   string
	digest string
	data   []byte
}

// catalogRows lists the catalog documents worth indexing: the raw config
// files, a canonical blueprint list and the tuning actually applied.
func catalogRows(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) []catalogRow {
	var rows []catalogRow
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "materials.json")); err == nil && len(b) > 0 {
			rows = append(rows, catalogRow{name: "materials_defs", digest: cats.Materials.Digest, data: b})
		}
	}
	if b, err := json.Marshal(cats.Materials.Palette); err == nil && len(b) > 0 {
		rows = append(rows, catalogRow{name: "materials_palette", digest: cats.Materials.Digest, data: b})
	}
	// Canonicalize blueprints to stable JSON for easier querying.
	bps := make([]catalogs.BlueprintDef, 0, len(cats.Blueprints.ByID))
	for _, bp := range cats.Blueprints.ByID {
		bps = append(bps, bp)
	}
	sort.Slice(bps, func(i, j int) bool { return bps[i].ID < bps[j].ID })
	if b, err := json.Marshal(bps); err == nil && len(b) > 0 {
		rows = append(rows, catalogRow{name: "blueprints", digest: cats.Blueprints.Digest, data: b})
	}
	if b, err := json.Marshal(tune); err == nil && len(b) > 0 {
		sum := sha256.Sum256(b)
		rows = append(rows, catalogRow{name: "tuning", digest: hex.EncodeToString(sum[:]), data: b})
	}

	out := rows[:0]
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.data) == 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}

// QueueStats reports backlog and drops of an asynchronous index writer.
type QueueStats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}
