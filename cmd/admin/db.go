package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "colony id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	material := fs.String("material", "", "material filter (transfers)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "colony.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}
	rows, err := runQuery(db, q, *material, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

// runQuery answers one of the canned index queries as generic rows.
func runQuery(db *sql.DB, q, material string, limit int) ([]map[string]any, error) {
	var (
		query string
		args  []any
	)
	switch q {
	case "snapshots":
		query = `SELECT tick,path,seed,entities,workers,storages,workshops FROM snapshots ORDER BY tick DESC LIMIT ?`
		args = []any{limit}
	case "transfers":
		query = `SELECT tick,stage,material,supplier,destination,quantity FROM transfers WHERE (? = '' OR material = ?) ORDER BY tick DESC, seq DESC LIMIT ?`
		args = []any{material, material, limit}
	case "throughput":
		query = `SELECT material, stage, COUNT(*) AS transfers, SUM(quantity) AS quantity FROM transfers GROUP BY material, stage ORDER BY material, stage`
	case "crafts":
		query = `SELECT blueprint, workshop, COUNT(*) AS batches FROM crafts GROUP BY blueprint, workshop ORDER BY blueprint, workshop`
	case "ticks":
		query = `SELECT tick,digest,spawns,removals,deals,deliveries,crafts FROM ticks ORDER BY tick DESC LIMIT ?`
		args = []any{limit}
	case "catalogs":
		query = `SELECT name,digest,updated_at FROM catalogs ORDER BY name`
	default:
		return nil, fmt.Errorf("unknown query %q (snapshots, transfers, throughput, crafts, ticks, catalogs)", q)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				rec[c] = string(b)
			} else {
				rec[c] = vals[i]
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
