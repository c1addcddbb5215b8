package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	persistlog "colonysim.ai/internal/persistence/log"
	"colonysim.ai/internal/persistence/snapshot"
	"colonysim.ai/internal/sim/catalogs"
	"colonysim.ai/internal/sim/driver"
	"colonysim.ai/internal/sim/tuning"
	"colonysim.ai/internal/sim/world"
)

var errExternalInput = errors.New("tick log records spawns or removals")

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst")
		ticksDir   = flag.String("ticks", "", "dir containing ticks-*.jsonl.zst to verify digests against (optional)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		runTicks   = flag.Int("run", 0, "run exactly this many ticks headless (0: run until idle)")
		maxTicks   = flag.Int("max_ticks", 100000, "give up running until idle after this many ticks")
		recordDir  = flag.String("record", "", "write the headless run's tick log under this dir (optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop verifying at tick (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	describe(os.Stdout, snap)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}

	w, err := restore(snap, cats, tune)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *ticksDir != "" {
		checked, err := verify(w, *ticksDir, *toTick)
		if errors.Is(err, errExternalInput) {
			fmt.Printf("replay stopped: %v\n", err)
		} else if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
		fmt.Printf("replay ok: checked=%d ticks (from snapshot tick=%d)\n", checked, snap.Header.Tick)
		return
	}

	if *recordDir != "" {
		tl := persistlog.NewTickLogger(*recordDir)
		defer tl.Close()
		w.SetTickLogger(tl)
	}
	if err := runHeadless(w, *runTicks, *maxTicks, tune.MaxIdleJumpTicks); err != nil {
		fmt.Fprintln(os.Stderr, "run:", err)
		os.Exit(1)
	}
	summarize(os.Stdout, w)
}

func restore(snap snapshot.SnapshotV1, cats *catalogs.Catalogs, tune tuning.Tuning) (*world.World, error) {
	w, err := world.New(world.ConfigFromSnapshot(world.ConfigFromTuning(snap.Header.WorldID, tune), snap), cats)
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	if err := w.ImportSnapshot(snap); err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}
	return w, nil
}

func runHeadless(w *world.World, runTicks, maxTicks int, maxJump uint64) error {
	if maxJump > uint64(maxTicks) {
		maxJump = uint64(maxTicks)
	}
	m := driver.NewManual(w, int(maxJump))
	if runTicks > 0 {
		return m.RunFor(runTicks)
	}
	_, err := m.RunUntilIdle(maxTicks)
	return err
}

func describe(out io.Writer, snap snapshot.SnapshotV1) {
	kinds := map[string]int{}
	for _, e := range snap.Entities {
		kinds[e.Kind]++
	}
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", strings.ToLower(k), kinds[k]))
	}
	fmt.Fprintf(out, "snapshot v%d world=%s tick=%d seed=%d entities=%d %s\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.Seed, len(snap.Entities), strings.Join(parts, " "))
}

func summarize(out io.Writer, w *world.World) {
	totals := map[string]int{}
	for _, e := range w.Entities() {
		if e.Storage == nil || e.Storage.Inventory == nil {
			continue
		}
		for m, n := range e.Storage.Inventory.Stock() {
			totals[m] += n
		}
	}
	mats := make([]string, 0, len(totals))
	for m := range totals {
		mats = append(mats, m)
	}
	sort.Strings(mats)
	st := w.Status()
	fmt.Fprintf(out, "tick=%d digest=%s deals=%d deliveries=%d crafts=%d idle=%v\n",
		w.Now(), w.Digest(), st.DealsTotal, st.Deliveries, st.CraftsTotal, w.Idle())
	for _, m := range mats {
		fmt.Fprintf(out, "  %s %d\n", m, totals[m])
	}
}

// verify steps w through every logged tick after its current one and
// compares digests. Ticks missing from the log were jumped over and are
// stepped through silently.
func verify(w *world.World, dir string, toTick uint64) (uint64, error) {
	files, err := persistlog.Segments(dir, persistlog.TickPrefix)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no tick files found in %s", dir)
	}
	start := w.Now()
	var checked uint64
	for _, path := range files {
		entries, err := persistlog.ReadSegment[world.TickLogEntry](path)
		if err != nil {
			return checked, err
		}
		for _, entry := range entries {
			if entry.Tick <= start {
				continue
			}
			if toTick != 0 && entry.Tick > toTick {
				return checked, nil
			}
			if len(entry.Spawns) > 0 || len(entry.Removals) > 0 {
				return checked, fmt.Errorf("%w at tick %d", errExternalInput, entry.Tick)
			}
			if entry.Tick <= w.Now() {
				return checked, fmt.Errorf("tick %d out of order (world at %d, file=%s)", entry.Tick, w.Now(), filepath.Base(path))
			}
			for w.Now() < entry.Tick {
				if err := w.Step(); err != nil {
					return checked, err
				}
			}
			checked++
			if got := w.Digest(); got != entry.Digest {
				return checked, fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", entry.Tick, got, entry.Digest)
			}
		}
	}
	return checked, nil
}
