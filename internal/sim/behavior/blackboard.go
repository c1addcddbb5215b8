package behavior

import (
	"colonysim.ai/internal/sim/entity"
	"colonysim.ai/internal/sim/timeline"
)

// Env is the slice of the world a tree evaluation can see.
type Env interface {
	Now() uint64
	Timeline() *timeline.TimeLine
}

// Blackboard is the scratch record for one evaluation. Nodes may leave values
// for later siblings of the same evaluation; nothing survives into the next one.
type Blackboard struct {
	Env   Env
	Agent *entity.Entity

	scratch map[string]any
}

func NewBlackboard(env Env, agent *entity.Entity) *Blackboard {
	return &Blackboard{Env: env, Agent: agent, scratch: map[string]any{}}
}

func (bb *Blackboard) Set(key string, v any) { bb.scratch[key] = v }

func (bb *Blackboard) Get(key string) (any, bool) {
	v, ok := bb.scratch[key]
	return v, ok
}

func (bb *Blackboard) Delete(key string) { delete(bb.scratch, key) }

// Lookup fetches a typed scratch value.
func Lookup[T any](bb *Blackboard, key string) (T, bool) {
	var zero T
	v, ok := bb.scratch[key]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
