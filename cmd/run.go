package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/CraigKelly/adaptmc/model"
	"github.com/CraigKelly/adaptmc/rand"
	"github.com/CraigKelly/adaptmc/sampler"
	"github.com/CraigKelly/adaptmc/trace"
)

var runOpts runFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sample a built-in model",
	Long: `Build the model once per chain, give every free stochastic a step method
and run the chains in parallel. Prints acceptance rates, the final proposal
covariance of every adaptive step method and posterior means.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig(sp.cfgFile)
		if err != nil {
			return err
		}
		runOpts.apply(cmd.Flags(), &cfg)
		if cmd.Flags().Changed("seed") {
			cfg.Seed = sp.randomSeed
		}
		return runModel(cmd.Context(), sp, cfg)
	},
}

func init() {
	runOpts.register(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}

// runModel is the body of the run command
func runModel(ctx context.Context, sp *startupParams, cfg RunConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	demo, err := findModel(cfg.Model)
	if err != nil {
		return err
	}

	adaptive := cfg.Adaptive
	adaptive.Scales = mergeScales(demo.scales, cfg.Adaptive.Scales)

	mon := newMonitor(sp.log)
	if len(cfg.MetricsAddr) > 0 {
		if err := mon.Start(cfg.MetricsAddr); err != nil {
			return err
		}
		defer mon.Stop()
	}
	metrics := sampler.NewMetrics(mon.registry)
	mon.Chains.Set(float64(cfg.Chains))
	mon.Iterations.Set(float64(cfg.Iter))

	sp.log.Info("Starting run",
		zap.String("model", cfg.Model),
		zap.Int("chains", cfg.Chains),
		zap.Int("iter", cfg.Iter),
		zap.Int("burn", cfg.Burn),
		zap.Int("thin", cfg.Thin),
		zap.String("trace", cfg.Trace),
		zap.Int64("seed", cfg.Seed),
	)

	build := func(i int) (*sampler.Chain, error) {
		return buildChain(sp.log, cfg, demo, adaptive, metrics, i)
	}

	start := time.Now()
	chains, err := sampler.RunChains(ctx, cfg.Chains, build, cfg.Iter, cfg.Burn, cfg.Thin)
	defer func() {
		for _, ch := range chains {
			if ch != nil {
				if cerr := ch.Backend.Close(); cerr != nil {
					sp.log.Warn("Could not close trace", zap.Error(cerr))
				}
			}
		}
	}()
	if err != nil {
		return err
	}

	mon.Finished.Add(float64(len(chains)))
	mon.RunTime.Set(time.Since(start).Seconds())
	sp.log.Info("Run complete", zap.Duration("elapsed", time.Since(start)))

	return report(sp.out, chains)
}

// mergeScales layers configured proposal variances over the model defaults
func mergeScales(defaults, configured map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(defaults)+len(configured))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range configured {
		out[k] = v
	}
	return out
}

// newBackend creates the trace for one chain. SQLite chains share the file
// and are told apart by run ID.
func newBackend(cfg RunConfig) (trace.Backend, error) {
	switch cfg.Trace {
	case "sqlite":
		return trace.NewSQLite(cfg.TraceFile)
	case "ram":
		return trace.NewRAM(cfg.Iter)
	}
	return nil, model.ConfigErrorf("Unknown trace backend %q", cfg.Trace)
}

// buildChain creates chain i: its own graph, random stream and trace
func buildChain(log *zap.Logger, cfg RunConfig, demo demoModel, adaptive sampler.AdaptiveConfig, metrics *sampler.Metrics, i int) (ch *sampler.Chain, err error) {
	g, err := demo.build()
	if err != nil {
		return nil, err
	}

	gen, err := rand.NewGeneratorSlice([]uint64{uint64(cfg.Seed), uint64(i)})
	if err != nil {
		return nil, err
	}

	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = backend.Close()
		}
	}()

	log = log.With(zap.Int("chain", i))
	if s, ok := backend.(*trace.SQLite); ok {
		log = log.With(zap.String("run_id", s.RunID))
	}
	opts := []sampler.Option{
		sampler.WithLogger(log),
		sampler.WithBackend(backend),
		sampler.WithMetrics(metrics),
	}

	var methods []sampler.StepMethod
	for _, block := range demo.blocks {
		ids := make([]int, 0, len(block))
		for _, name := range block {
			n, ok := g.Lookup(name)
			if !ok {
				return nil, model.ConfigErrorf("Block node %s is not in model %s", name, g.Name)
			}
			ids = append(ids, n.ID)
		}
		am, err := sampler.NewAdaptiveMetropolis(gen, g, ids, adaptive, opts...)
		if err != nil {
			return nil, err
		}
		methods = append(methods, am)
	}

	rest, err := sampler.AssignStepMethods(gen, g, adaptive, opts...)
	if err != nil {
		return nil, err
	}
	methods = append(methods, rest...)

	return sampler.NewChain(g, methods, backend, log)
}

// report prints per-chain step method summaries and pooled posterior means
func report(out io.Writer, chains []*sampler.Chain) error {
	for i, ch := range chains {
		fmt.Fprintf(out, "Chain %d: %d iterations, %d kept\n", i, ch.Iterations, ch.Tallied)
		if s, ok := ch.Backend.(*trace.SQLite); ok {
			fmt.Fprintf(out, "  run id %s\n", s.RunID)
		}

		for _, m := range ch.Methods {
			am, ok := m.(*sampler.AdaptiveMetropolis)
			if !ok {
				fmt.Fprintf(out, "  %s\n", m.Name())
				continue
			}
			fmt.Fprintf(out, "  %s: acceptance %.3f, %d retunes (%d degenerate), %v, initial covariance from %s\n",
				am.Name(), am.AcceptanceRate(), am.Retunes(), am.DegenerateRetunes(), am.Phase(), am.InitSource())
			fmt.Fprintf(out, "    covariance\n%v\n", mat.Formatted(am.Covariance(), mat.Prefix("    "), mat.Squeeze()))
		}
	}

	g := chains[0].Graph
	fmt.Fprintf(out, "Posterior means over %d chains\n", len(chains))
	for _, id := range model.Sorted(g.Stochastics()) {
		name := g.Node(id).Name
		rows, err := sampler.MergeChains(chains, name)
		if err != nil {
			return errors.Wrapf(err, "Merging %s", name)
		}
		means := columnMeans(rows)
		if len(means) > 4 {
			fmt.Fprintf(out, "  %-12s %8.4f ... (%d values)\n", name, means[:4], len(means))
		} else {
			fmt.Fprintf(out, "  %-12s %8.4f\n", name, means)
		}
	}
	return nil
}

func columnMeans(rows [][]float64) []float64 {
	if len(rows) < 1 {
		return nil
	}
	data := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, r := range rows {
		data.SetRow(i, r)
	}
	means := make([]float64, len(rows[0]))
	for j := range means {
		means[j] = stat.Mean(mat.Col(nil, j, data), nil)
	}
	return means
}
