package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// startupParams is the state shared by every sub-command once the root
// command's persistent flags are parsed.
type startupParams struct {
	cfgFile    string
	verbose    bool
	randomSeed int64

	log *zap.Logger
	out io.Writer
}

var sp = &startupParams{out: os.Stdout}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "adaptmc",
	Short: "Adaptive Metropolis sampling for Bayesian graphical models",
	Long: `adaptmc samples the posterior of small Bayesian models.
Among other features:

  - Adaptive block Metropolis step methods that learn their proposal covariance
  - Prior draws for the parts of a model with no data below them
  - Parallel chains with RAM or SQLite traces
  - Prometheus metrics for acceptance and covariance retunes
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger(sp.verbose)
		if err != nil {
			return err
		}
		sp.log = log
		sp.out = cmd.OutOrStdout()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if sp.log != nil {
			_ = sp.log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&sp.cfgFile, "config", "c", "", "YAML run config file")
	rootCmd.PersistentFlags().BoolVarP(&sp.verbose, "verbose", "v", false, "Verbose logging (default is much more parsimonious)")
	rootCmd.PersistentFlags().Int64VarP(&sp.randomSeed, "seed", "r", 1, "Random seed to use")
}

// newLogger builds a production zap logger writing to stderr
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
