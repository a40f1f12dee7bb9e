// Package draw owns the number draw of a running game: the shuffled pool of
// undrawn values and the periodic scheduler that announces them.
package draw

import (
	"github.com/cory-johannsen/tambola/internal/game/rules"
	"github.com/cory-johannsen/tambola/internal/random"
)

// Pool is the draw order of one game, fixed once at creation.
// It is not safe for concurrent use; the owning room serialises access.
//
// Invariant: Drawn() followed by the undrawn values is a permutation of the
// rules' value range; no value is ever returned twice by Pop.
type Pool struct {
	undrawn []int
	drawn   []int
}

// NewPool shuffles the full value range of r once.
//
// Precondition: r.Validate() == nil.
// Postcondition: Remaining() == r.Span().
func NewPool(src random.Source, r rules.Rules) *Pool {
	values := make([]int, 0, r.Span())
	for v := r.MinValue; v <= r.MaxValue; v++ {
		values = append(values, v)
	}
	random.Shuffle(src, values)
	return &Pool{undrawn: values, drawn: make([]int, 0, len(values))}
}

// Pop removes and returns the next value from the end of the pool.
//
// Postcondition: Returns false once the pool is exhausted.
func (p *Pool) Pop() (int, bool) {
	n := len(p.undrawn)
	if n == 0 {
		return 0, false
	}
	v := p.undrawn[n-1]
	p.undrawn = p.undrawn[:n-1]
	p.drawn = append(p.drawn, v)
	return v, true
}

// Remaining returns the number of undrawn values.
func (p *Pool) Remaining() int { return len(p.undrawn) }

// Total returns the size of the value range.
func (p *Pool) Total() int { return len(p.undrawn) + len(p.drawn) }

// Drawn returns the values announced so far, in draw order.
func (p *Pool) Drawn() []int { return append([]int(nil), p.drawn...) }
