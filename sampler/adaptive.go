package sampler

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/CraigKelly/adaptmc/model"
	"github.com/CraigKelly/adaptmc/trace"
)

// Phase is the adaptation state of an AdaptiveMetropolis step method
type Phase int

// Phases: the change from warm-up to adaptive happens once, at the delay
const (
	PhaseGreedyWarmup Phase = iota
	PhaseAdaptive
)

func (p Phase) String() string {
	if p == PhaseAdaptive {
		return "adaptive"
	}
	return "greedy-warmup"
}

// Where the initial covariance came from
const (
	InitCovariance = "covariance"
	InitScales     = "scales"
	InitTrace      = "trace"
	InitValues     = "values"
)

// member is one stochastic's slice of the proposal vector
type member struct {
	id     int
	name   string
	kind   model.NumericKind
	lo, hi int
}

// AdaptiveMetropolis block-updates a set of stochastics with a multivariate
// normal random walk. The proposal covariance starts at C0 and, once the
// delay has passed, is re-estimated every interval steps from the states
// the chain visited.
//
// Not safe for concurrent use: the step method is the only writer of its
// member nodes and Step runs to completion before the next call.
type AdaptiveMetropolis struct {
	cfg     AdaptiveConfig
	g       *model.Graph
	src     Source
	log     *zap.Logger
	backend trace.Backend
	metrics *Metrics

	name       string
	members    []member
	likelihood []int // extended children outside the member set
	dim        int

	c0         *mat.SymDense
	initSource string
	factor     *ProposalFactor
	moments    *Moments
	z          []float64

	internalTrace [][]float64
	greedy        bool
	currentIter   int

	accepted   int
	rejected   int
	retunes    int
	degenerate int
}

// NewAdaptiveMetropolis builds a step method over the given free
// stochastics and claims them. Every problem found here wraps
// model.ErrConfiguration.
func NewAdaptiveMetropolis(src Source, g *model.Graph, ids []int, cfg AdaptiveConfig, opts ...Option) (*AdaptiveMetropolis, error) {
	if src == nil || g == nil {
		return nil, model.ConfigErrorf("AdaptiveMetropolis requires a random source and a graph")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(ids) < 1 {
		return nil, model.ConfigErrorf("AdaptiveMetropolis requires at least one stochastic")
	}

	o := buildOptions(opts)
	am := &AdaptiveMetropolis{
		cfg:     cfg,
		g:       g,
		src:     src,
		backend: o.backend,
		metrics: o.metrics,
		greedy:  cfg.Greedy,
	}

	if err := am.dimension(ids); err != nil {
		return nil, err
	}
	am.log = o.log.With(zap.String("step_method", am.name))

	// Likelihood: stochastics whose density depends on a member but which
	// are not members themselves
	memberSet := model.NewNodeSet()
	for _, m := range am.members {
		memberSet.Add(m.id)
	}
	children := model.NewNodeSet()
	for _, m := range am.members {
		children = children.Union(g.ExtendedChildren(m.id))
	}
	am.likelihood = model.Sorted(children.Difference(memberSet))

	c0, source, err := am.initializeCov()
	if err != nil {
		return nil, err
	}
	am.c0 = c0
	am.initSource = source

	factor, err := NewProposalFactor(c0)
	if err != nil {
		return nil, fmt.Errorf("%w: initial proposal from %s: %w", model.ErrConfiguration, source, err)
	}
	am.factor = factor
	am.moments = NewMoments(c0, OptimalScaling(am.dim), cfg.Epsilon)
	am.z = make([]float64, am.dim)

	if err := g.Claim(am.name, am.Stochastics()...); err != nil {
		return nil, err
	}

	am.metrics.phase(am.name, am.Phase())
	am.log.Info("Created step method",
		zap.Int("dim", am.dim),
		zap.String("initial_covariance", source),
		zap.Int("likelihood_nodes", len(am.likelihood)),
		zap.Int("delay", cfg.Delay),
		zap.Int("interval", cfg.Interval),
	)

	return am, nil
}

// dimension validates members and lays out their slices in ID order
func (am *AdaptiveMetropolis) dimension(ids []int) error {
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)

	names := make([]string, 0, len(sorted))
	for i, id := range sorted {
		if i > 0 && sorted[i-1] == id {
			return model.ConfigErrorf("Stochastic %d listed twice", id)
		}
		n := am.g.Node(id)
		if n == nil {
			return model.ConfigErrorf("No node with ID %d", id)
		}
		if n.Role != model.Stochastic || n.Observed {
			return model.ConfigErrorf("%s is not a free stochastic", n.Name)
		}
		if n.Kind == model.Boolean {
			return model.ConfigErrorf("Boolean stochastic %s is not supported by AdaptiveMetropolis", n.Name)
		}

		am.members = append(am.members, member{
			id:   id,
			name: n.Name,
			kind: n.Kind,
			lo:   am.dim,
			hi:   am.dim + n.Size(),
		})
		am.dim += n.Size()
		names = append(names, n.Name)
	}

	am.name = "AdaptiveMetropolis_" + strings.Join(names, "_")
	return nil
}

// initializeCov picks C0: explicit covariance, then scales, then the
// empirical covariance of earlier draws, then current values.
func (am *AdaptiveMetropolis) initializeCov() (*mat.SymDense, string, error) {
	if am.cfg.Covariance != nil {
		if am.cfg.Covariance.SymmetricDim() != am.dim {
			return nil, "", model.ConfigErrorf("Covariance dim %d does not match dim %d",
				am.cfg.Covariance.SymmetricDim(), am.dim)
		}
		c0 := mat.NewSymDense(am.dim, nil)
		c0.CopySym(am.cfg.Covariance)
		return c0, InitCovariance, nil
	}

	diag, err := am.orderScales()
	if err != nil {
		return nil, "", err
	}
	if diag != nil {
		return diagonal(diag), InitScales, nil
	}

	if c0, ok := am.empiricalCov(); ok {
		return c0, InitTrace, nil
	}

	diag = make([]float64, 0, am.dim)
	for _, m := range am.members {
		for _, x := range am.g.Value(m.id) {
			diag = append(diag, math.Abs(x)/am.cfg.ValueScaling)
		}
	}
	return diagonal(diag), InitValues, nil
}

// orderScales lays out the configured scales in member order. A nil result
// with no error means none of the members has a scale.
func (am *AdaptiveMetropolis) orderScales() ([]float64, error) {
	found := 0
	for _, m := range am.members {
		if _, ok := am.cfg.Scales[m.name]; ok {
			found++
		}
	}
	if found == 0 {
		return nil, nil
	}
	if found != len(am.members) {
		return nil, model.ConfigErrorf("Scales given for %d of %d members", found, len(am.members))
	}

	ordered := make([]float64, 0, am.dim)
	for _, m := range am.members {
		sc := am.cfg.Scales[m.name]
		if len(sc) != m.hi-m.lo {
			return nil, model.ConfigErrorf("Improper initial scales for %s: len %d, node size %d", m.name, len(sc), m.hi-m.lo)
		}
		ordered = append(ordered, sc...)
	}
	if len(ordered) != am.dim {
		return nil, model.ConfigErrorf("Improper initial scales: dimension %d != %d", len(ordered), am.dim)
	}

	return ordered, nil
}

// empiricalCov estimates C0 from the newest draws in the trace backend. It
// is only used when every member has the same number of rows, there are
// more rows than dimensions and the estimate factorizes.
func (am *AdaptiveMetropolis) empiricalCov() (*mat.SymDense, bool) {
	if am.backend == nil || am.cfg.TraceWindow < 1 {
		return nil, false
	}

	var data *mat.Dense
	rows := -1
	for _, m := range am.members {
		draws, err := am.backend.Slice(m.name, -am.cfg.TraceWindow, trace.End)
		if err != nil {
			am.log.Debug("No trace for covariance bootstrap", zap.String("node", m.name), zap.Error(err))
			return nil, false
		}
		if rows < 0 {
			rows = len(draws)
			if rows <= am.dim {
				am.log.Debug("Too few draws for covariance bootstrap", zap.Int("rows", rows))
				return nil, false
			}
			data = mat.NewDense(rows, am.dim, nil)
		}
		if len(draws) != rows {
			am.log.Debug("Ragged trace, skipping covariance bootstrap", zap.String("node", m.name))
			return nil, false
		}
		for r, row := range draws {
			if len(row) != m.hi-m.lo {
				return nil, false
			}
			for j, x := range row {
				data.Set(r, m.lo+j, x)
			}
		}
	}

	c0 := mat.NewSymDense(am.dim, nil)
	stat.CovarianceMatrix(c0, data, nil)
	if _, err := Factorize(c0); err != nil {
		am.log.Debug("Empirical covariance is degenerate", zap.Int("rows", rows))
		return nil, false
	}
	return c0, true
}

func diagonal(d []float64) *mat.SymDense {
	c := mat.NewSymDense(len(d), nil)
	for i, x := range d {
		c.SetSym(i, i, x)
	}
	return c
}

// Step performs one Metropolis update of all members
func (am *AdaptiveMetropolis) Step() error {
	defer func() { am.currentIter++ }()

	current, err := am.score()
	if err != nil {
		return errors.Wrapf(err, "%s: scoring current state", am.name)
	}
	if !current.Feasible {
		return errors.Errorf("%s: current state has zero probability", am.name)
	}

	if err := am.propose(); err != nil {
		return err
	}

	accept := false
	proposed, err := am.score()
	if err != nil {
		am.revert()
		return errors.Wrapf(err, "%s: scoring proposal", am.name)
	}
	if proposed.Feasible && math.Log(am.src.Float64()) < proposed.Value-current.Value {
		accept = true
		am.accepted++
		am.metrics.accept(am.name)
	} else {
		am.rejected++
		am.metrics.reject(am.name)
	}

	if am.currentIter == am.cfg.Delay {
		am.greedy = false
		am.metrics.phase(am.name, PhaseAdaptive)
		am.log.Debug("Warm-up finished", zap.Int("iter", am.currentIter), zap.Int("accepted", am.accepted))
	}

	if !accept {
		am.revert()
	}

	if accept || !am.greedy {
		am.tally()
	}

	if am.currentIter > am.cfg.Delay && am.currentIter%am.cfg.Interval == 0 {
		am.retune()
	}

	return nil
}

// score is the members' joint log-density plus the likelihood of their
// extended children
func (am *AdaptiveMetropolis) score() (model.LogP, error) {
	total := 0.0
	add := func(id int) (bool, error) {
		lp, err := am.g.LogP(id)
		if err != nil {
			return false, err
		}
		if !lp.Feasible {
			return false, nil
		}
		total += lp.Value
		return true, nil
	}

	for _, m := range am.members {
		if ok, err := add(m.id); !ok {
			return model.Infeasible, err
		}
	}
	for _, id := range am.likelihood {
		if ok, err := add(id); !ok {
			return model.Infeasible, err
		}
	}

	// Individually finite terms can still overflow
	lp := model.Ok(total)
	if lp.Faulty() {
		return lp, errors.Wrapf(model.ErrNumericFault, "score is %v", total)
	}
	return lp, nil
}

// propose adds a correlated normal jump to every member
func (am *AdaptiveMetropolis) propose() error {
	jump := am.factor.Jump(am.src.NormVector(am.z))

	for _, m := range am.members {
		v := am.g.Value(m.id)
		for j := range v {
			d := jump[m.lo+j]
			if m.kind == model.Integer {
				d = math.RoundToEven(d)
			}
			v[j] += d
		}
		if err := am.g.SetValue(m.id, v); err != nil {
			return errors.Wrapf(err, "%s: proposal", am.name)
		}
	}
	return nil
}

// revert restores every member to its value before the proposal
func (am *AdaptiveMetropolis) revert() {
	for _, m := range am.members {
		am.g.Revert(m.id)
	}
}

// tally appends the current joint state to the internal trace
func (am *AdaptiveMetropolis) tally() {
	row := make([]float64, 0, am.dim)
	for _, m := range am.members {
		row = append(row, am.g.Value(m.id)...)
	}
	am.internalTrace = append(am.internalTrace, row)
}

// retune folds the internal trace into the covariance estimate and tries to
// install a new proposal factor
func (am *AdaptiveMetropolis) retune() {
	chain := am.internalTrace
	am.internalTrace = nil

	if err := am.moments.Fold(chain); err != nil {
		am.log.Warn("Skipping covariance update", zap.Int("iter", am.currentIter), zap.Error(err))
		return
	}
	am.retunes++

	degenerate := false
	if err := am.factor.Retune(am.moments.Cov); err != nil {
		degenerate = true
		am.degenerate++
		am.log.Warn("Covariance was not positive definite, keeping previous proposal",
			zap.Int("iter", am.currentIter),
			zap.Int("trace_count", am.moments.Count),
			zap.Error(err),
		)
	} else {
		am.log.Debug("Updated proposal covariance",
			zap.Int("iter", am.currentIter),
			zap.Int("trace_count", am.moments.Count),
			zap.Float64s("mean", am.moments.Mean),
		)
	}
	am.metrics.retune(am.name, degenerate)
}

// Name is the step method name (also the owner name of its members)
func (am *AdaptiveMetropolis) Name() string {
	return am.name
}

// Stochastics returns the member IDs in proposal order
func (am *AdaptiveMetropolis) Stochastics() []int {
	ids := make([]int, len(am.members))
	for i, m := range am.members {
		ids[i] = m.id
	}
	return ids
}

// Dim is the length of the joint proposal vector
func (am *AdaptiveMetropolis) Dim() int { return am.dim }

// Accepted is the number of accepted proposals
func (am *AdaptiveMetropolis) Accepted() int { return am.accepted }

// Rejected is the number of rejected proposals
func (am *AdaptiveMetropolis) Rejected() int { return am.rejected }

// AcceptanceRate is accepted / (accepted + rejected), 0 before any step
func (am *AdaptiveMetropolis) AcceptanceRate() float64 {
	total := am.accepted + am.rejected
	if total == 0 {
		return 0
	}
	return float64(am.accepted) / float64(total)
}

// Retunes counts covariance updates (including degenerate ones)
func (am *AdaptiveMetropolis) Retunes() int { return am.retunes }

// DegenerateRetunes counts updates whose covariance did not factorize
func (am *AdaptiveMetropolis) DegenerateRetunes() int { return am.degenerate }

// CurrentIter is the number of completed Step calls
func (am *AdaptiveMetropolis) CurrentIter() int { return am.currentIter }

// TraceCount is the number of samples folded into the covariance estimate
func (am *AdaptiveMetropolis) TraceCount() int { return am.moments.Count }

// InternalTraceLen is the number of samples waiting for the next retune
func (am *AdaptiveMetropolis) InternalTraceLen() int { return len(am.internalTrace) }

// InitSource reports which rule produced the initial covariance
func (am *AdaptiveMetropolis) InitSource() string { return am.initSource }

// Phase is the state the next Step call runs in
func (am *AdaptiveMetropolis) Phase() Phase {
	if am.currentIter < am.cfg.Delay {
		return PhaseGreedyWarmup
	}
	return PhaseAdaptive
}

// InitialCovariance returns a copy of C0
func (am *AdaptiveMetropolis) InitialCovariance() *mat.SymDense {
	return copySym(am.c0)
}

// Covariance returns a copy of the current covariance estimate
func (am *AdaptiveMetropolis) Covariance() *mat.SymDense {
	return copySym(am.moments.Cov)
}

// ChainMean returns a copy of the running mean of folded samples
func (am *AdaptiveMetropolis) ChainMean() []float64 {
	return append([]float64(nil), am.moments.Mean...)
}

// Factor returns a copy of the proposal factor in use
func (am *AdaptiveMetropolis) Factor() *mat.TriDense {
	return am.factor.L()
}

func copySym(s *mat.SymDense) *mat.SymDense {
	cp := mat.NewSymDense(s.SymmetricDim(), nil)
	cp.CopySym(s)
	return cp
}
