package model

import (
	"github.com/pkg/errors"
)

// Topology is the view of a graph that layering and crawling need. Graph
// implements it.
type Topology interface {
	Len() int
	ExtendedParents(id int) NodeSet
	ExtendedChildren(id int) NodeSet
	CanDrawPrior(id int) bool
}

// Generations is an ordered partition of a set of stochastics: every node's
// extended parents (inside the set) live in strictly earlier generations.
type Generations []NodeSet

// Index maps each node ID to the generation holding it
func (gens Generations) Index() map[int]int {
	idx := make(map[int]int)
	for i, gen := range gens {
		gen.Each(func(id int) bool {
			idx[id] = i
			return false
		})
	}
	return idx
}

// Reversed returns the generations in the opposite order
func (gens Generations) Reversed() Generations {
	rev := make(Generations, len(gens))
	for i, gen := range gens {
		rev[len(gens)-1-i] = gen
	}
	return rev
}

// FindGenerations layers s by dependency depth. Generation 0 holds the
// members that are not an extended child of any other member; generation k
// holds the extended children of generation k-1 whose extended parents in s
// have all been placed already. An empty s gives a single empty generation.
func FindGenerations(top Topology, s NodeSet) (Generations, error) {
	if s == nil {
		s = NewNodeSet()
	}

	within := func(ids NodeSet) NodeSet {
		return ids.Intersect(s)
	}

	// Find root generation
	allChildren := NewNodeSet()
	s.Each(func(id int) bool {
		allChildren = allChildren.Union(within(top.ExtendedChildren(id)))
		return false
	})

	gens := Generations{s.Difference(allChildren)}
	placed := gens[0].Clone()

	// Every productive pass places at least one node, so |s| passes is the
	// most an acyclic set can need.
	for pass := 0; ; pass++ {
		if pass > s.Cardinality() {
			return nil, errors.Wrapf(ErrCycle, "no fixed point after %d generations", pass)
		}

		// Children of the last generation
		candidates := NewNodeSet()
		gens[len(gens)-1].Each(func(id int) bool {
			candidates = candidates.Union(within(top.ExtendedChildren(id)))
			return false
		})

		// Defer anything that still has an unplaced parent: that includes a
		// parent sitting in this same candidate set
		next := NewNodeSet()
		candidates.Each(func(id int) bool {
			if !placed.Contains(id) && within(top.ExtendedParents(id)).IsSubset(placed) {
				next.Add(id)
			}
			return false
		})

		if next.Cardinality() == 0 {
			break
		}

		placed = placed.Union(next)
		gens = append(gens, next)
	}

	if placed.Cardinality() != s.Cardinality() {
		stuck := Sorted(s.Difference(placed))
		return nil, errors.Wrapf(ErrCycle, "nodes %v were never placed", stuck)
	}

	return gens, nil
}

// CrawlDataless grows sofar outward from the newest generation: an extended
// parent p joins when it can be drawn from its prior and all of its extended
// children are already in sofar. Each pass that adds nodes appends a new
// generation; the crawl stops on the first pass that adds nothing. The
// inputs are not modified.
func CrawlDataless(top Topology, sofar NodeSet, gens Generations) (NodeSet, Generations, error) {
	if sofar == nil {
		sofar = NewNodeSet()
	}
	sofar = sofar.Clone()
	gens = append(Generations(nil), gens...)
	if len(gens) < 1 {
		return sofar, gens, nil
	}

	for pass := 0; ; pass++ {
		if pass > top.Len() {
			return nil, nil, errors.Errorf("dataless crawl did not finish within %d passes", top.Len())
		}

		newGen := NewNodeSet()
		gens[len(gens)-1].Each(func(id int) bool {
			top.ExtendedParents(id).Each(func(p int) bool {
				if sofar.Contains(p) || newGen.Contains(p) {
					return false
				}
				if top.CanDrawPrior(p) && top.ExtendedChildren(p).IsSubset(sofar) {
					newGen.Add(p)
				}
				return false
			})
			return false
		})

		if newGen.Cardinality() == 0 {
			return sofar, gens, nil
		}

		sofar = sofar.Union(newGen)
		gens = append(gens, newGen)
	}
}

// unclaimed hides nodes that already belong to a step method from the crawl
type unclaimed struct {
	*Graph
}

func (u unclaimed) CanDrawPrior(id int) bool {
	return u.Graph.CanDrawPrior(id) && u.Graph.nodes[id].owner == ""
}

// DatalessSubmodel finds the largest set of unclaimed free stochastics with
// no data below them: the crawl is seeded with the drawable stochastics that
// have no extended children. Generations come back ancestors first, ready
// for ancestral sampling.
func DatalessSubmodel(g *Graph) (NodeSet, Generations, error) {
	top := unclaimed{g}

	leaves := NewNodeSet()
	for _, n := range g.nodes {
		if top.CanDrawPrior(n.ID) && n.extChildren.Cardinality() == 0 {
			leaves.Add(n.ID)
		}
	}
	if leaves.Cardinality() < 1 {
		return leaves, Generations{}, nil
	}

	sofar, gens, err := CrawlDataless(top, leaves, Generations{leaves})
	if err != nil {
		return nil, nil, err
	}

	return sofar, gens.Reversed(), nil
}
