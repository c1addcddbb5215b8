package main

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"colonysim.ai/internal/persistence/indexdb"
	persistlog "colonysim.ai/internal/persistence/log"
	"colonysim.ai/internal/sim/world"
)

func TestReadAuditFilters(t *testing.T) {
	dir := t.TempDir()
	l := persistlog.NewAuditLogger(dir)
	for _, e := range []world.AuditEntry{
		{Tick: 1, Actor: "S1", Action: "SPAWN"},
		{Tick: 5, Actor: "S1", Action: "DEAL", Material: "LOG", Quantity: 100},
		{Tick: 9, Actor: "S2", Action: "DELIVER", Material: "LOG", Quantity: 100},
		{Tick: 12, Actor: "S1", Action: "DEAL", Material: "STONE", Quantity: 40},
	} {
		if err := l.WriteAudit(e); err != nil {
			t.Fatal(err)
		}
	}
	_ = l.Close()

	got, err := readAudit(filepath.Join(dir, "audit"), auditFilter{Actor: "S1", Action: "deal"})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0].Tick != 5 || got[1].Material != "STONE" {
		t.Fatalf("got %+v", got)
	}
	got, _ = readAudit(filepath.Join(dir, "audit"), auditFilter{Material: "LOG", From: 6, To: 10})
	if len(got) != 1 || got[0].Action != "DELIVER" {
		t.Fatalf("window got %+v", got)
	}
}

func TestRunQueryThroughput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colony.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	deal := world.RecordedDeal{Material: "LOG", Supplier: "S1", Destination: "S2", Quantity: 100}
	_ = idx.WriteTick(world.TickLogEntry{Tick: 5, Digest: "a", Deals: []world.RecordedDeal{deal}})
	_ = idx.WriteTick(world.TickLogEntry{Tick: 9, Digest: "b", Deliveries: []world.RecordedDeal{deal}})
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	rows, err := runQuery(db, "throughput", "", 20)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 || rows[0]["stage"] != "dealt" || rows[1]["stage"] != "delivered" {
		t.Fatalf("rows = %v", rows)
	}
	rows, err = runQuery(db, "transfers", "STONE", 20)
	if err != nil || len(rows) != 0 {
		t.Fatalf("stone transfers = %v err=%v", rows, err)
	}
	if _, err := runQuery(db, "orgs", "", 1); err == nil {
		t.Fatalf("unknown query accepted")
	}
}

func TestFetchJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/status":
			_, _ = w.Write([]byte(`{"tick":7}`))
		default:
			http.Error(w, "forbidden", http.StatusForbidden)
		}
	}))
	defer srv.Close()

	out, err := fetchJSON(srv.Client(), srv.URL+"/", "/v1/status")
	if err != nil || out != "{\n  \"tick\": 7\n}" {
		t.Fatalf("status out=%q err=%v", out, err)
	}
	out, err = fetchJSON(srv.Client(), srv.URL, "/admin/v1/state")
	if err == nil || out != "forbidden" {
		t.Fatalf("admin out=%q err=%v", out, err)
	}
}
