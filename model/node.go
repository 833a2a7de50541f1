package model

import (
	"github.com/pkg/errors"
)

// Node represents a single entry in the graph arena: a stochastic (random
// variable) or a deterministic function of its parents. Nodes reference each
// other only by ID; the edge sets are precomputed when the node is added.
type Node struct {
	ID       int         // Stable index into the owning Graph
	Name     string      // Unique name within the Graph
	Role     Role        // Stochastic or Deterministic
	Kind     NumericKind // Value kind, fixed for the node lifetime
	Shape    []int       // Value shape: nil/empty means scalar
	Observed bool        // Observed (data) stochastics have a fixed value

	value     []float64 // current value, flattened row-major
	lastValue []float64 // value immediately before the last SetValue

	logDensity LogDensity
	random     RandomFunc
	compute    Compute

	parents     map[string]int // parameter name => parent ID
	children    NodeSet        // direct children
	extParents  NodeSet        // nearest stochastic ancestors through deterministics
	extChildren NodeSet        // nearest stochastic descendants through deterministics

	owner string // step method that updates this node
}

// Size is the flattened length of the node's value
func (n *Node) Size() int {
	return shapeSize(n.Shape)
}

// HasPrior is true for free stochastics that can be drawn from their prior:
// they have a Random function and are not observed.
func (n *Node) HasPrior() bool {
	return n.Role == Stochastic && !n.Observed && n.random != nil
}

// Owner is the name of the step method that claimed this node, or "".
func (n *Node) Owner() string {
	return n.owner
}

// LastValue returns a copy of the value before the most recent update
func (n *Node) LastValue() []float64 {
	return cloneValue(n.lastValue)
}

// ParentIDs returns the direct parent IDs keyed by parameter name
func (n *Node) ParentIDs() map[string]int {
	cp := make(map[string]int, len(n.parents))
	for k, v := range n.parents {
		cp[k] = v
	}
	return cp
}

// Children returns the IDs of direct children
func (n *Node) Children() NodeSet {
	return n.children.Clone()
}

// ExtendedParents returns the nearest stochastic ancestors, reached by
// crossing only deterministic nodes.
func (n *Node) ExtendedParents() NodeSet {
	return n.extParents.Clone()
}

// ExtendedChildren returns the nearest stochastic descendants, reached by
// crossing only deterministic nodes. Observed stochastics are included.
func (n *Node) ExtendedChildren() NodeSet {
	return n.extChildren.Clone()
}

// Check returns an error if any problem is found
func (n *Node) Check() error {
	if len(n.Name) < 1 {
		return errors.Errorf("Node %d has no name", n.ID)
	}
	for _, d := range n.Shape {
		if d < 1 {
			return errors.Errorf("Node %s has invalid shape %v", n.Name, n.Shape)
		}
	}

	if n.Role == Deterministic {
		if n.compute == nil {
			return errors.Errorf("Deterministic %s has no compute function", n.Name)
		}
		return nil
	}

	if n.logDensity == nil {
		return errors.Errorf("Stochastic %s has no log-density", n.Name)
	}
	if len(n.value) != n.Size() {
		return errors.Errorf("Stochastic %s value len %d != shape size %d", n.Name, len(n.value), n.Size())
	}
	if len(n.lastValue) != len(n.value) {
		return errors.Errorf("Stochastic %s last value len %d != value len %d", n.Name, len(n.lastValue), len(n.value))
	}
	if err := n.Kind.checkValue(n.value); err != nil {
		return errors.Wrapf(err, "Stochastic %s has an invalid %v value", n.Name, n.Kind)
	}

	return nil
}

func shapeSize(shape []int) int {
	size := 1
	for _, d := range shape {
		size *= d
	}
	return size
}

func cloneValue(v []float64) []float64 {
	cp := make([]float64, len(v))
	copy(cp, v)
	return cp
}
