package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"colonysim.ai/internal/sim/catalogs"
	"colonysim.ai/internal/sim/colony"
	"colonysim.ai/internal/sim/tuning"
	"colonysim.ai/internal/sim/world"
	"colonysim.ai/internal/transport/observer"
)

func newTestWorld(t *testing.T) *world.World {
	t.Helper()
	cats, err := catalogs.Load(filepath.Join("..", "..", "configs"))
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	w, err := world.New(world.ConfigFromTuning("srv", tuning.Defaults()), cats)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	if _, err := colony.Defaults().Apply(w, 2); err != nil {
		t.Fatalf("colony: %v", err)
	}
	return w
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestMuxServesStatusAndMetrics(t *testing.T) {
	w := newTestWorld(t)
	for i := 0; i < 12; i++ {
		if err := w.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	srv := httptest.NewServer(newMux(w, observer.NewServer(w, nil), nil))
	defer srv.Close()

	if code, body := get(t, srv, "/healthz"); code != 200 || body != "ok" {
		t.Fatalf("healthz = %d %q", code, body)
	}

	code, body := get(t, srv, "/v1/status")
	if code != 200 {
		t.Fatalf("status code = %d", code)
	}
	var st world.Status
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Tick != 12 || st.Workers != 2 || st.Entities != 5 {
		t.Fatalf("status = %+v", st)
	}

	code, body = get(t, srv, "/metrics")
	if code != 200 || !strings.Contains(body, "colonysim_ticks_total 12") || !strings.Contains(body, "go_goroutines") {
		t.Fatalf("metrics = %d\n%s", code, body)
	}

	code, body = get(t, srv, "/admin/v1/state")
	if code != 200 || !strings.Contains(body, `"world_id":"srv"`) {
		t.Fatalf("admin state = %d %s", code, body)
	}
}

func TestLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	if latestSnapshot(dir) != "" {
		t.Fatalf("expected none")
	}
	snaps := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snaps, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"90.snap.zst", "3000.snap.zst", "600.snap.zst", "notes.txt", "x.snap.zst"} {
		if err := os.WriteFile(filepath.Join(snaps, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got := latestSnapshot(dir); filepath.Base(got) != "3000.snap.zst" {
		t.Fatalf("latest = %s", got)
	}
}

type countingLog struct{ ticks, audits int }

func (c *countingLog) WriteTick(world.TickLogEntry) error { c.ticks++; return nil }
func (c *countingLog) WriteAudit(world.AuditEntry) error  { c.audits++; return nil }

func TestMultiLoggersFanOut(t *testing.T) {
	a, b := &countingLog{}, &countingLog{}
	_ = multiTickLogger{a: a, b: b}.WriteTick(world.TickLogEntry{Tick: 1})
	_ = multiTickLogger{a: a}.WriteTick(world.TickLogEntry{Tick: 2})
	_ = multiAuditLogger{a: a, b: b}.WriteAudit(world.AuditEntry{Tick: 1})
	if a.ticks != 2 || b.ticks != 1 || a.audits != 1 || b.audits != 1 {
		t.Fatalf("a=%+v b=%+v", a, b)
	}
}
