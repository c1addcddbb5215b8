package colony

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"colonysim.ai/internal/sim/entity"
	"colonysim.ai/internal/sim/world"
)

// Layout is the starting arrangement of a fresh colony.
type Layout struct {
	Workers   WorkerSpec     `yaml:"workers"`
	Storages  []StorageSpec  `yaml:"storages"`
	Workshops []WorkshopSpec `yaml:"workshops"`
}

type WorkerSpec struct {
	// Count < 0 takes workers.count from tuning.
	Count int    `yaml:"count"`
	At    [2]int `yaml:"at"`
}

type StorageSpec struct {
	Name   string         `yaml:"name"`
	At     [2]int         `yaml:"at"`
	Stacks int            `yaml:"stacks"`
	Stock  map[string]int `yaml:"stock"`
	Keep   map[string]int `yaml:"keep"`
	Want   map[string]int `yaml:"want"`
}

type WorkshopSpec struct {
	Blueprint string `yaml:"blueprint"`
	At        [2]int `yaml:"at"`
}

// Load reads colony.yaml. An empty path yields the default layout.
func Load(path string) (Layout, error) {
	if strings.TrimSpace(path) == "" {
		return Defaults(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, err
	}
	var l Layout
	if err := yaml.Unmarshal(b, &l); err != nil {
		return Layout{}, fmt.Errorf("colony.yaml: %w", err)
	}
	if err := l.Validate(); err != nil {
		return Layout{}, fmt.Errorf("colony.yaml: %w", err)
	}
	return l, nil
}

// Defaults is a small sawmill economy: one raw stockpile, one sawmill and a
// plank warehouse.
func Defaults() Layout {
	return Layout{
		Workers: WorkerSpec{Count: -1},
		Storages: []StorageSpec{
			{Name: "stockpile", Stock: map[string]int{"LOG": 400}, Keep: map[string]int{"LOG": 0}},
			{Name: "warehouse", At: [2]int{12, 4}, Want: map[string]int{"PLANK": 1600}},
		},
		Workshops: []WorkshopSpec{{Blueprint: "sawmill_planks", At: [2]int{6, 0}}},
	}
}

func (l Layout) Validate() error {
	var errs []error
	for i, s := range l.Storages {
		if s.Stacks < 0 {
			errs = append(errs, fmt.Errorf("storages[%d]: stacks must be >= 0", i))
		}
		for _, m := range []map[string]int{s.Stock, s.Keep, s.Want} {
			for mat, n := range m {
				if n < 0 {
					errs = append(errs, fmt.Errorf("storages[%d]: %s must be >= 0", i, mat))
				}
			}
		}
	}
	for i, ws := range l.Workshops {
		if strings.TrimSpace(ws.Blueprint) == "" {
			errs = append(errs, fmt.Errorf("workshops[%d]: blueprint is required", i))
		}
	}
	return errors.Join(errs...)
}

// Apply spawns the layout into w. Storages come first so their ids do not
// depend on the number of workers.
func (l Layout) Apply(w *world.World, defaultWorkers int) ([]*entity.Entity, error) {
	var out []*entity.Entity
	for _, s := range l.Storages {
		e, err := w.SpawnStorage(world.StorageSpec{
			Pos:    entity.Vec2{X: s.At[0], Y: s.At[1]},
			Stacks: s.Stacks,
			Stock:  s.Stock,
			Keep:   s.Keep,
			Want:   s.Want,
		})
		if err != nil {
			return out, fmt.Errorf("storage %q: %w", s.Name, err)
		}
		out = append(out, e)
	}
	for _, ws := range l.Workshops {
		e, err := w.SpawnWorkshop(entity.Vec2{X: ws.At[0], Y: ws.At[1]}, ws.Blueprint)
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	n := l.Workers.Count
	if n < 0 {
		n = defaultWorkers
	}
	for i := 0; i < n; i++ {
		e, err := w.SpawnWorker(entity.Vec2{X: l.Workers.At[0], Y: l.Workers.At[1]})
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Materials lists every material the layout mentions.
func (l Layout) Materials() []string {
	seen := map[string]bool{}
	for _, s := range l.Storages {
		for _, m := range []map[string]int{s.Stock, s.Keep, s.Want} {
			for mat := range m {
				seen[mat] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
