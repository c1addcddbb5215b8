package world

import (
	"colonysim.ai/internal/persistence/snapshot"
	"colonysim.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID         string
	TickRateHz int
	Seed       int64
	BoundaryR  int

	MatchIntervalTicks int
	MaxLoad            int
	StorageStacks      int
	SnapshotEveryTicks int

	Worker WorkerConfig
}

type WorkerConfig struct {
	Speed          int
	CarryStacks    int
	StartEnergy    int
	TiredBelow     int
	RestTicks      int
	RestGain       int
	WorkEnergyCost int
}

func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		Seed:               t.Seed,
		BoundaryR:          64,
		MatchIntervalTicks: t.Logistics.MatchIntervalTicks,
		MaxLoad:            t.Logistics.MaxLoad,
		StorageStacks:      t.Storage.Stacks,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		Worker: WorkerConfig{
			Speed:          t.Workers.Speed,
			CarryStacks:    t.Workers.CarryStacks,
			StartEnergy:    t.Workers.StartEnergy,
			TiredBelow:     t.Workers.TiredBelow,
			RestTicks:      t.Workers.RestTicks,
			RestGain:       t.Workers.RestGain,
			WorkEnergyCost: t.Workers.WorkEnergyCost,
		},
	}
}

// ConfigFromSnapshot overlays the parameters a snapshot pins onto base.
// Worker tuning is not part of a snapshot and stays as configured.
func ConfigFromSnapshot(base WorldConfig, snap snapshot.SnapshotV1) WorldConfig {
	cfg := base
	if snap.Header.WorldID != "" {
		cfg.ID = snap.Header.WorldID
	}
	cfg.Seed = snap.Seed
	if snap.TickRate > 0 {
		cfg.TickRateHz = snap.TickRate
	}
	if snap.MatchIntervalTicks > 0 {
		cfg.MatchIntervalTicks = snap.MatchIntervalTicks
	}
	cfg.MaxLoad = snap.MaxLoad
	if snap.SnapshotEveryTicks > 0 {
		cfg.SnapshotEveryTicks = snap.SnapshotEveryTicks
	}
	return cfg
}

func (c *WorldConfig) normalize() {
	d := ConfigFromTuning(c.ID, tuning.Defaults())
	if c.ID == "" {
		c.ID = "colony_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = d.TickRateHz
	}
	if c.BoundaryR <= 0 {
		c.BoundaryR = d.BoundaryR
	}
	if c.MatchIntervalTicks <= 0 {
		c.MatchIntervalTicks = d.MatchIntervalTicks
	}
	if c.StorageStacks <= 0 {
		c.StorageStacks = d.StorageStacks
	}
	w := &c.Worker
	if w.Speed <= 0 {
		w.Speed = d.Worker.Speed
	}
	if w.CarryStacks <= 0 {
		w.CarryStacks = d.Worker.CarryStacks
	}
	if w.StartEnergy <= 0 {
		w.StartEnergy = d.Worker.StartEnergy
	}
	if w.RestTicks <= 0 {
		w.RestTicks = d.Worker.RestTicks
	}
	if w.RestGain <= 0 {
		w.RestGain = d.Worker.RestGain
	}
}
