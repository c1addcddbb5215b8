package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	raw := "tick_rate_hz: 20\nlogistics:\n  match_interval_ticks: 3\nworkers:\n  count: 9\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	tu, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.TickRateHz != 20 || tu.Logistics.MatchIntervalTicks != 3 || tu.Workers.Count != 9 {
		t.Fatalf("overrides not applied: %+v", tu)
	}
	if tu.Workers.Speed != Defaults().Workers.Speed {
		t.Fatalf("unset field lost its default: %d", tu.Workers.Speed)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(path, []byte("logistics:\n  match_interval_ticks: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "match_interval_ticks") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoadRepoConfig(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("configs/tuning.yaml: %v", err)
	}
	if tu.Workers.Count <= 0 {
		t.Fatalf("repo config should spawn workers")
	}
}
