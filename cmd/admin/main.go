package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	persistlog "colonysim.ai/internal/persistence/log"
	"colonysim.ai/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "colony id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID, "snapshots")
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

type auditFilter struct {
	Actor    string
	Action   string
	Material string
	From, To uint64
}

func (f auditFilter) match(e world.AuditEntry) bool {
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.Action != "" && !strings.EqualFold(e.Action, f.Action) {
		return false
	}
	if f.Material != "" && e.Material != f.Material {
		return false
	}
	if e.Tick < f.From {
		return false
	}
	return f.To == 0 || e.Tick <= f.To
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "colony_1", "colony id")
	var f auditFilter
	fs.StringVar(&f.Actor, "actor", "", "entity id filter")
	fs.StringVar(&f.Action, "action", "", "DEAL, DELIVER, CRAFT, SPAWN or REMOVE")
	fs.StringVar(&f.Material, "material", "", "material filter")
	fs.Uint64Var(&f.From, "since_tick", 0, "first tick (inclusive)")
	fs.Uint64Var(&f.To, "to_tick", 0, "last tick (inclusive, optional)")
	_ = fs.Parse(args)

	recs, err := readAudit(filepath.Join(*dataDir, "worlds", *worldID, "audit"), f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "audit:", err)
		os.Exit(1)
	}
	for _, r := range recs {
		printJSON(r)
	}
}

func readAudit(dir string, f auditFilter) ([]world.AuditEntry, error) {
	recs, err := persistlog.ReadStream[world.AuditEntry](dir, persistlog.AuditPrefix)
	out := recs[:0]
	for _, r := range recs {
		if f.match(r) {
			out = append(out, r)
		}
	}
	return out, err
}
