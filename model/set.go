package model

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// NodeSet is a set of node IDs. Sets are only touched from the goroutine
// that owns the graph, so the thread-unsafe implementation is used
// everywhere (mixing implementations in set operations is not allowed).
type NodeSet = mapset.Set[int]

// NewNodeSet returns a set holding the given IDs
func NewNodeSet(ids ...int) NodeSet {
	return mapset.NewThreadUnsafeSet[int](ids...)
}

// Sorted returns the members of s in ascending ID order
func Sorted(s NodeSet) []int {
	if s == nil {
		return []int{}
	}
	ids := s.ToSlice()
	sort.Ints(ids)
	return ids
}
