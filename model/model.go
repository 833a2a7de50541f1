package model

import (
	"github.com/pkg/errors"
)

// StochasticSpec describes a random variable to add to a Graph
type StochasticSpec struct {
	Name       string           // Unique node name
	Kind       NumericKind      // Value kind
	Shape      []int            // nil for scalars
	Value      []float64        // Initial value, flattened row-major
	Observed   bool             // Data node: value never changes
	Parents    map[string]*Node // Parameter name => parent node
	LogDensity LogDensity       // Required
	Random     RandomFunc       // Optional prior draw
}

// DeterministicSpec describes a deterministic function of parent values
type DeterministicSpec struct {
	Name    string
	Shape   []int
	Parents map[string]*Node
	Compute Compute
}

// Graph is the arena holding every node of a model. Nodes are added parents
// first, so the graph is acyclic by construction. A Graph is not safe for
// concurrent use: one chain owns one graph.
type Graph struct {
	Name  string
	nodes []*Node
	names map[string]int
}

// NewGraph returns an empty graph
func NewGraph(name string) *Graph {
	return &Graph{
		Name:  name,
		nodes: make([]*Node, 0, 16),
		names: make(map[string]int),
	}
}

// AddStochastic validates spec and adds a new stochastic to the graph
func (g *Graph) AddStochastic(spec StochasticSpec) (*Node, error) {
	n := &Node{
		Name:       spec.Name,
		Role:       Stochastic,
		Kind:       spec.Kind,
		Shape:      append([]int(nil), spec.Shape...),
		Observed:   spec.Observed,
		value:      cloneValue(spec.Value),
		lastValue:  cloneValue(spec.Value),
		logDensity: spec.LogDensity,
		random:     spec.Random,
	}
	if err := g.add(n, spec.Parents); err != nil {
		return nil, err
	}
	return n, nil
}

// AddDeterministic validates spec and adds a new deterministic to the graph
func (g *Graph) AddDeterministic(spec DeterministicSpec) (*Node, error) {
	n := &Node{
		Name:    spec.Name,
		Role:    Deterministic,
		Kind:    Real,
		Shape:   append([]int(nil), spec.Shape...),
		compute: spec.Compute,
	}
	if err := g.add(n, spec.Parents); err != nil {
		return nil, err
	}
	return n, nil
}

func (g *Graph) add(n *Node, parents map[string]*Node) error {
	if _, dup := g.names[n.Name]; dup {
		return ConfigErrorf("Duplicate node name %s", n.Name)
	}

	n.ID = len(g.nodes)
	n.parents = make(map[string]int, len(parents))
	n.children = NewNodeSet()
	n.extParents = NewNodeSet()
	n.extChildren = NewNodeSet()

	for param, p := range parents {
		if p == nil || p.ID < 0 || p.ID >= len(g.nodes) || g.nodes[p.ID] != p {
			return ConfigErrorf("Parent %s of %s is not a node of graph %s", param, n.Name, g.Name)
		}
		n.parents[param] = p.ID
	}

	if err := n.Check(); err != nil {
		return errors.Wrapf(ErrConfiguration, "Invalid node: %v", err)
	}

	// Extended parents stop at the first stochastic on every path upward.
	// Deterministic parents already hold their own frontier.
	for _, pid := range n.parents {
		p := g.nodes[pid]
		if p.Role == Stochastic {
			n.extParents.Add(pid)
		} else {
			n.extParents = n.extParents.Union(p.extParents)
		}
	}

	// Only now that the node is valid do we link it in
	g.nodes = append(g.nodes, n)
	g.names[n.Name] = n.ID
	for _, pid := range n.parents {
		g.nodes[pid].children.Add(n.ID)
	}
	if n.Role == Stochastic {
		n.extParents.Each(func(pid int) bool {
			g.nodes[pid].extChildren.Add(n.ID)
			return false
		})
	}

	return nil
}

// Len is the number of nodes in the graph
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node with the given ID (nil when out of range)
func (g *Graph) Node(id int) *Node {
	if id < 0 || id >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// Lookup finds a node by name
func (g *Graph) Lookup(name string) (*Node, bool) {
	id, ok := g.names[name]
	if !ok {
		return nil, false
	}
	return g.nodes[id], true
}

// Nodes returns all nodes in ID order
func (g *Graph) Nodes() []*Node {
	return append([]*Node(nil), g.nodes...)
}

// Stochastics returns the free (unobserved) stochastics
func (g *Graph) Stochastics() NodeSet {
	s := NewNodeSet()
	for _, n := range g.nodes {
		if n.Role == Stochastic && !n.Observed {
			s.Add(n.ID)
		}
	}
	return s
}

// ObservedStochastics returns the data nodes
func (g *Graph) ObservedStochastics() NodeSet {
	s := NewNodeSet()
	for _, n := range g.nodes {
		if n.Role == Stochastic && n.Observed {
			s.Add(n.ID)
		}
	}
	return s
}

// Value returns a copy of the node's current value. Deterministic values are
// computed from their parents on every call.
func (g *Graph) Value(id int) []float64 {
	return cloneValue(g.value(id))
}

// value is the no-copy version of Value for evaluators
func (g *Graph) value(id int) []float64 {
	n := g.nodes[id]
	if n.Role == Deterministic {
		return n.compute(Parents{g: g, ids: n.parents})
	}
	return n.value
}

// SetValue replaces the value of a free stochastic, keeping the old value for
// Revert.
func (g *Graph) SetValue(id int, v []float64) error {
	n := g.Node(id)
	if n == nil {
		return errors.Errorf("No node with ID %d", id)
	}
	if n.Role != Stochastic || n.Observed {
		return errors.Errorf("Node %s is not a free stochastic", n.Name)
	}
	if len(v) != len(n.value) {
		return errors.Errorf("Node %s value len %d != %d", n.Name, len(v), len(n.value))
	}

	copy(n.lastValue, n.value)
	copy(n.value, v)
	return nil
}

// Revert restores the value saved by the last SetValue
func (g *Graph) Revert(id int) {
	n := g.nodes[id]
	copy(n.value, n.lastValue)
}

// LogP evaluates the log-density of a stochastic at its current value. A
// zero-probability outcome is a normal return; NaN or +Inf is ErrNumericFault.
func (g *Graph) LogP(id int) (LogP, error) {
	n := g.Node(id)
	if n == nil || n.Role != Stochastic {
		return Infeasible, errors.Errorf("No stochastic with ID %d", id)
	}

	lp := n.logDensity(n.value, Parents{g: g, ids: n.parents})
	if lp.Faulty() {
		return lp, errors.Wrapf(ErrNumericFault, "log-density of %s is %v", n.Name, lp.Value)
	}
	return lp, nil
}

// DrawPrior replaces the value of a node with a draw from its prior
func (g *Graph) DrawPrior(id int, r Rand) error {
	n := g.Node(id)
	if n == nil || !n.HasPrior() {
		return errors.Errorf("Node %d can not be drawn from its prior", id)
	}

	v := n.random(r, Parents{g: g, ids: n.parents})
	if err := n.Kind.checkValue(v); err != nil {
		return errors.Wrapf(err, "Prior draw for %s", n.Name)
	}
	return g.SetValue(id, v)
}

// Claim gives owner exclusive update rights over the given stochastics. It
// is all or nothing: if any node is already owned by someone else, nothing
// is claimed.
func (g *Graph) Claim(owner string, ids ...int) error {
	if len(owner) < 1 {
		return ConfigErrorf("Claim requires an owner name")
	}

	for _, id := range ids {
		n := g.Node(id)
		if n == nil {
			return ConfigErrorf("No node with ID %d", id)
		}
		if n.Role != Stochastic || n.Observed {
			return ConfigErrorf("Node %s is not a free stochastic", n.Name)
		}
		if n.owner != "" && n.owner != owner {
			return ConfigErrorf("Node %s is already owned by %s", n.Name, n.owner)
		}
	}

	for _, id := range ids {
		g.nodes[id].owner = owner
	}
	return nil
}

// ExtendedParents implements Topology
func (g *Graph) ExtendedParents(id int) NodeSet {
	return g.nodes[id].extParents
}

// ExtendedChildren implements Topology
func (g *Graph) ExtendedChildren(id int) NodeSet {
	return g.nodes[id].extChildren
}

// CanDrawPrior implements Topology
func (g *Graph) CanDrawPrior(id int) bool {
	return g.nodes[id].HasPrior()
}

// Check returns an error if there is a problem with the graph
func (g *Graph) Check() error {
	if len(g.nodes) < 1 {
		return errors.Errorf("Graph %s has no nodes", g.Name)
	}

	for i, n := range g.nodes {
		if n.ID != i {
			return errors.Errorf("Node %s has ID %d at index %d", n.Name, n.ID, i)
		}
		if err := n.Check(); err != nil {
			return errors.Wrapf(err, "Graph %s has an invalid node %s", g.Name, n.Name)
		}
	}

	if g.Stochastics().Cardinality() < 1 {
		return errors.Errorf("Graph %s has no free stochastics", g.Name)
	}

	return nil
}
