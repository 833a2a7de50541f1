package model

import (
	"fmt"
	"sort"
)

// Parents gives evaluators read access to a node's parent values by
// parameter name. Returned slices must not be modified.
type Parents struct {
	g   *Graph
	ids map[string]int
}

// Value returns the current value of the named parent. Asking for a parent
// that was never declared is a programming error and panics.
func (p Parents) Value(name string) []float64 {
	id, ok := p.ids[name]
	if !ok {
		panic(fmt.Sprintf("no parent named %q", name))
	}
	return p.g.value(id)
}

// Scalar returns the first element of the named parent's value
func (p Parents) Scalar(name string) float64 {
	return p.Value(name)[0]
}

// Names lists the parameter names in sorted order
func (p Parents) Names() []string {
	names := make([]string, 0, len(p.ids))
	for k := range p.ids {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
