package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz         int    `yaml:"tick_rate_hz"`
	Seed               int64  `yaml:"seed"`
	SnapshotEveryTicks int    `yaml:"snapshot_every_ticks"`
	MaxIdleJumpTicks   uint64 `yaml:"max_idle_jump_ticks"`

	Logistics Logistics `yaml:"logistics"`
	Workers   Workers   `yaml:"workers"`
	Storage   Storage   `yaml:"storage"`
}

type Logistics struct {
	MatchIntervalTicks int `yaml:"match_interval_ticks"`
	MaxLoad            int `yaml:"max_load"`
}

type Workers struct {
	Count          int `yaml:"count"`
	Speed          int `yaml:"speed"`
	CarryStacks    int `yaml:"carry_stacks"`
	StartEnergy    int `yaml:"start_energy"`
	TiredBelow     int `yaml:"tired_below"`
	RestTicks      int `yaml:"rest_ticks"`
	RestGain       int `yaml:"rest_gain"`
	WorkEnergyCost int `yaml:"work_energy_cost"`
}

type Storage struct {
	Stacks int `yaml:"stacks"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:         5,
		Seed:               1337,
		SnapshotEveryTicks: 3000,
		MaxIdleJumpTicks:   10000,
		Logistics: Logistics{
			MatchIntervalTicks: 10,
		},
		Workers: Workers{
			Count:          4,
			Speed:          2,
			CarryStacks:    10,
			StartEnergy:    100,
			TiredBelow:     20,
			RestTicks:      10,
			RestGain:       40,
			WorkEnergyCost: 5,
		},
		Storage: Storage{Stacks: 40},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.TickRateHz <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate_hz must be > 0"))
	}
	if t.Logistics.MatchIntervalTicks <= 0 {
		errs = append(errs, fmt.Errorf("logistics.match_interval_ticks must be > 0"))
	}
	if t.Logistics.MaxLoad < 0 {
		errs = append(errs, fmt.Errorf("logistics.max_load must be >= 0"))
	}
	if t.Workers.Count < 0 {
		errs = append(errs, fmt.Errorf("workers.count must be >= 0"))
	}
	if t.Workers.Speed <= 0 {
		errs = append(errs, fmt.Errorf("workers.speed must be > 0"))
	}
	if t.Workers.CarryStacks <= 0 || t.Storage.Stacks <= 0 {
		errs = append(errs, fmt.Errorf("stack counts must be > 0"))
	}
	if t.Workers.RestTicks <= 0 {
		errs = append(errs, fmt.Errorf("workers.rest_ticks must be > 0"))
	}
	return errors.Join(errs...)
}
