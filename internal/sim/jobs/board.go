package jobs

import (
	"errors"
	"fmt"
	"math"

	"colonysim.ai/internal/sim/behavior"
	"colonysim.ai/internal/sim/entity"
	"colonysim.ai/internal/sim/reactive"
)

var (
	ErrNoVacancy     = errors.New("jobs: no vacancy left")
	ErrNotPosted     = errors.New("jobs: posting is not on the board")
	ErrAlreadyPosted = errors.New("jobs: posting already on the board")
	ErrOverRestored  = errors.New("jobs: vacancies above initial count")
)

// Desirability rates a posting for one agent in [0,1]. Zero means the agent
// is never eligible.
type Desirability func(agent *entity.Entity) float64

// Posting is an offer of work with a bounded number of slots.
type Posting struct {
	ID    string
	Label string

	Desirability Desirability
	// RestoreOnCompletion gives the slot back once the work finishes.
	// Postings without it leave the board when their last slot is taken.
	RestoreOnCompletion bool
	OnAssign            func(agent *entity.Entity) error
	OnFinish            func(agent *entity.Entity, o behavior.Outcome) error
	Work                behavior.Node

	initial   int
	vacancies int
}

func NewPosting(id, label string, vacancies int, work behavior.Node, desirability Desirability) *Posting {
	if vacancies < 0 {
		vacancies = 0
	}
	return &Posting{
		ID:           id,
		Label:        label,
		Desirability: desirability,
		Work:         work,
		initial:      vacancies,
		vacancies:    vacancies,
	}
}

func (p *Posting) Vacancies() int { return p.vacancies }
func (p *Posting) Initial() int   { return p.initial }

// Score clamps the desirability to [0,1]; NaN counts as zero.
func (p *Posting) Score(agent *entity.Entity) float64 {
	if p.Desirability == nil {
		return 0
	}
	s := p.Desirability(agent)
	if math.IsNaN(s) || s <= 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Board is the ordered set of open postings. Iteration order is posting
// order, which also breaks score ties.
type Board struct {
	postings *reactive.Collection[*Posting]
}

func NewBoard() *Board {
	return &Board{postings: reactive.NewCollection[*Posting]()}
}

func (b *Board) Post(p *Posting) error {
	if b.postings.Contains(p) {
		return fmt.Errorf("%w: %s", ErrAlreadyPosted, p.ID)
	}
	return b.postings.Add(p)
}

// Remove takes p off the board. Agents already working on it keep going;
// Complete still accepts it.
func (b *Board) Remove(p *Posting) error {
	if !b.postings.Contains(p) {
		return nil
	}
	return b.postings.Remove(p)
}

func (b *Board) Contains(p *Posting) bool { return b.postings.Contains(p) }
func (b *Board) Len() int                 { return b.postings.Len() }
func (b *Board) Postings() []*Posting     { return b.postings.Items() }

func (b *Board) OnChanged(cb func(reactive.Delta[*Posting]) error) reactive.Destroyer {
	return b.postings.OnChanged(cb)
}

// OpenVacancies sums the free slots of every posting on the board.
func (b *Board) OpenVacancies() int {
	n := 0
	for _, p := range b.postings.Items() {
		n += p.vacancies
	}
	return n
}

// Best returns the highest scoring posting with a free slot. The first seen
// wins a tie; postings scoring zero are skipped.
func (b *Board) Best(agent *entity.Entity) (*Posting, float64, bool) {
	var best *Posting
	var bestScore float64
	for _, p := range b.postings.Items() {
		if p.vacancies <= 0 {
			continue
		}
		s := p.Score(agent)
		if s <= 0 {
			continue
		}
		if best == nil || s > bestScore {
			best, bestScore = p, s
		}
	}
	return best, bestScore, best != nil
}

// Take assigns one slot of p to agent. OnAssign runs before the slot is
// used; when it fails the posting is left as it was.
func (b *Board) Take(p *Posting, agent *entity.Entity) error {
	if !b.postings.Contains(p) {
		return fmt.Errorf("%w: %s", ErrNotPosted, p.ID)
	}
	if p.vacancies <= 0 {
		return fmt.Errorf("%w: %s", ErrNoVacancy, p.ID)
	}
	if p.OnAssign != nil {
		if err := p.OnAssign(agent); err != nil {
			return fmt.Errorf("assign %s: %w", p.ID, err)
		}
	}
	p.vacancies--
	if p.vacancies == 0 && !p.RestoreOnCompletion {
		return b.postings.Remove(p)
	}
	return nil
}

// Complete ends one assignment. The slot comes back only for restoring
// postings.
func (b *Board) Complete(p *Posting, agent *entity.Entity, o behavior.Outcome) error {
	if p.RestoreOnCompletion {
		if p.vacancies >= p.initial {
			return fmt.Errorf("%w: %s", ErrOverRestored, p.ID)
		}
		p.vacancies++
	}
	if p.OnFinish != nil {
		return p.OnFinish(agent, o)
	}
	return nil
}
