package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CraigKelly/adaptmc/model"
)

var genModel string
var genDot bool

var generationsCmd = &cobra.Command{
	Use:   "generations",
	Short: "Show the generations and dataless submodel of a built-in model",
	RunE: func(cmd *cobra.Command, args []string) error {
		demo, err := findModel(genModel)
		if err != nil {
			return err
		}
		g, err := demo.build()
		if err != nil {
			return err
		}
		if genDot {
			return DotOutput(sp.out, g)
		}
		return GenerationsOutput(sp.out, g)
	},
}

func init() {
	generationsCmd.Flags().StringVarP(&genModel, "model", "m", "bivariate", "Built-in model to describe")
	generationsCmd.Flags().BoolVar(&genDot, "dot", false, "Write a graphviz digraph with one rank per generation")
	rootCmd.AddCommand(generationsCmd)
}

func nodeNames(g *model.Graph, s model.NodeSet) string {
	names := make([]string, 0, s.Cardinality())
	for _, id := range model.Sorted(s) {
		names = append(names, g.Node(id).Name)
	}
	return strings.Join(names, " ")
}

// GenerationsOutput prints the generations of the free stochastics and the
// part of the model that will be drawn from its prior
func GenerationsOutput(out io.Writer, g *model.Graph) error {
	free := g.Stochastics()
	gens, err := model.FindGenerations(g, free)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Model %s: %d nodes, %d free stochastics, %d observed\n",
		g.Name, g.Len(), free.Cardinality(), g.ObservedStochastics().Cardinality())
	for i, gen := range gens {
		fmt.Fprintf(out, "Generation %d: %s\n", i, nodeNames(g, gen))
	}

	dataless, order, err := model.DatalessSubmodel(g)
	if err != nil {
		return err
	}
	if dataless.Cardinality() < 1 {
		fmt.Fprintf(out, "Dataless submodel: (none)\n")
		return nil
	}
	fmt.Fprintf(out, "Dataless submodel: %s\n", nodeNames(g, dataless))
	for i, gen := range order {
		fmt.Fprintf(out, "  Draw %d: %s\n", i, nodeNames(g, gen))
	}
	return nil
}

// DotOutput writes a graphviz description of g. Free stochastics in the
// same generation share a rank; observed nodes are boxes, deterministics are
// diamonds and dataless nodes are dashed.
func DotOutput(out io.Writer, g *model.Graph) error {
	gens, err := model.FindGenerations(g, g.Stochastics())
	if err != nil {
		return err
	}
	dataless, _, err := model.DatalessSubmodel(g)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "digraph %q {\n", g.Name)

	for _, n := range g.Nodes() {
		var attrs []string
		switch {
		case n.Role == model.Deterministic:
			attrs = append(attrs, "shape=diamond")
		case n.Observed:
			attrs = append(attrs, "shape=box", "style=filled")
		default:
			attrs = append(attrs, "shape=ellipse")
		}
		if dataless.Contains(n.ID) {
			attrs = append(attrs, "style=dashed")
		}
		fmt.Fprintf(out, "    %q [%s];\n", n.Name, strings.Join(attrs, ","))
	}

	for i, gen := range gens {
		fmt.Fprintf(out, "    subgraph gen%d {\n        rank=same;\n", i)
		for _, id := range model.Sorted(gen) {
			fmt.Fprintf(out, "        %q;\n", g.Node(id).Name)
		}
		fmt.Fprintf(out, "    }\n")
	}

	for _, n := range g.Nodes() {
		parents := n.ParentIDs()
		params := make([]string, 0, len(parents))
		for p := range parents {
			params = append(params, p)
		}
		sort.Strings(params)
		for _, p := range params {
			fmt.Fprintf(out, "    %q -> %q [label=%q];\n", g.Node(parents[p]).Name, n.Name, p)
		}
	}

	fmt.Fprintf(out, "}\n")
	return nil
}
