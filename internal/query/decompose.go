package query

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/mohammed-shakir/poi-cache/internal/core/model"
)

// MaxSubQueries bounds the disjunctive expansion of one expression.
const MaxSubQueries = 32

// Decomposer turns an expression into sub-queries ordered by the popularity
// prior. With an empty prior every category is accepted with weight 0.
type Decomposer struct {
	Prior Popularity
}

func NewDecomposer(prior Popularity) *Decomposer {
	return &Decomposer{Prior: prior}
}

type literal struct {
	name string
	neg  bool
}

type conjunct struct {
	pos map[string]struct{}
	neg map[string]struct{}
}

// Decompose rewrites expr into disjunctive normal form. Each conjunct becomes
// one sub-query; conjuncts are ordered rarest first and each later sub-query
// excludes the types already included by earlier ones.
//
// The positive categories of a conjunct become one Included list, and the
// places API matches any type in that list. "a AND b" therefore fetches places
// typed a or b, not only places typed both.
func (d *Decomposer) Decompose(expr string) ([]model.SubQuery, error) {
	root, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	dnf, err := toDNF(root, false)
	if err != nil {
		return nil, err
	}

	conj := make([]conjunct, 0, len(dnf))
	seen := make(map[string]struct{}, len(dnf))
	for _, lits := range dnf {
		c, ok := buildConjunct(lits)
		if !ok {
			continue
		}
		if len(c.pos) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoPositiveTerm, c.subQuery().String())
		}
		for name := range c.pos {
			if err := d.check(name); err != nil {
				return nil, err
			}
		}
		for name := range c.neg {
			if err := d.check(name); err != nil {
				return nil, err
			}
		}
		sig := c.subQuery().String()
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}
		conj = append(conj, c)
	}

	slices.SortStableFunc(conj, func(a, b conjunct) int {
		if r := cmp.Compare(d.rarest(a), d.rarest(b)); r != 0 {
			return r
		}
		return cmp.Compare(a.subQuery().String(), b.subQuery().String())
	})

	out := make([]model.SubQuery, 0, len(conj))
	covered := make(map[string]struct{})
	for _, c := range conj {
		for name := range covered {
			if _, own := c.pos[name]; !own {
				c.neg[name] = struct{}{}
			}
		}
		for name := range c.pos {
			covered[name] = struct{}{}
		}
		out = append(out, c.subQuery())
	}
	return out, nil
}

func (d *Decomposer) check(name string) error {
	if len(d.Prior) == 0 {
		return nil
	}
	if _, ok := d.Prior[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, name)
	}
	return nil
}

func (d *Decomposer) rarest(c conjunct) float64 {
	minW := math.Inf(1)
	for name := range c.pos {
		w, _ := d.Prior.Weight(name)
		minW = min(minW, w)
	}
	return minW
}

// buildConjunct returns false for a contradictory conjunct (x AND NOT x).
func buildConjunct(lits []literal) (conjunct, bool) {
	c := conjunct{pos: map[string]struct{}{}, neg: map[string]struct{}{}}
	for _, l := range lits {
		if l.neg {
			c.neg[l.name] = struct{}{}
		} else {
			c.pos[l.name] = struct{}{}
		}
	}
	for name := range c.pos {
		if _, ok := c.neg[name]; ok {
			return c, false
		}
	}
	return c, true
}

func (c conjunct) subQuery() model.SubQuery {
	sq := model.SubQuery{}
	for name := range c.pos {
		sq.Included = append(sq.Included, name)
	}
	for name := range c.neg {
		sq.Excluded = append(sq.Excluded, name)
	}
	return sq.Normalized()
}

// toDNF pushes negation to the leaves and distributes AND over OR.
func toDNF(n Node, negated bool) ([][]literal, error) {
	switch v := n.(type) {
	case Category:
		return [][]literal{{{name: v.Name, neg: negated}}}, nil
	case Not:
		return toDNF(v.X, !negated)
	case And:
		if negated {
			return toDNF(Or{Terms: negateAll(v.Terms)}, false)
		}
		return product(v.Terms)
	case Or:
		if negated {
			return toDNF(And{Terms: negateAll(v.Terms)}, false)
		}
		var out [][]literal
		for _, t := range v.Terms {
			sub, err := toDNF(t, false)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			if len(out) > MaxSubQueries {
				return nil, ErrTooComplex
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported node %T", ErrSyntax, n)
	}
}

func negateAll(terms []Node) []Node {
	out := make([]Node, len(terms))
	for i, t := range terms {
		out[i] = Not{X: t}
	}
	return out
}

func product(terms []Node) ([][]literal, error) {
	acc := [][]literal{{}}
	for _, t := range terms {
		sub, err := toDNF(t, false)
		if err != nil {
			return nil, err
		}
		next := make([][]literal, 0, len(acc)*len(sub))
		for _, a := range acc {
			for _, b := range sub {
				merged := make([]literal, 0, len(a)+len(b))
				merged = append(merged, a...)
				merged = append(merged, b...)
				next = append(next, merged)
			}
		}
		if len(next) > MaxSubQueries {
			return nil, ErrTooComplex
		}
		acc = next
	}
	return acc, nil
}
