package cmd

import (
	"context"
	"io"
	"log/slog"

	"github.com/encodeous/trustmesh/harness"
	"github.com/encodeous/trustmesh/state"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type loggerFactory func(cfg *state.SimCfg) (*slog.Logger, io.Closer, error)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the reference scenarios concurrently",
	Long: `Runs three variants of the configured scenario side by side: no malicious node,
an out of range blackhole entry, and a blackhole on the sender to receiver path.
Each variant writes its own output files, suffixed with the variant name.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := applyScenarioFlags(cmd, cfg); err != nil {
			return err
		}
		parallel, _ := cmd.Flags().GetInt("parallel")
		level := logLevel(cmd)
		return runSweep(cmd.Context(), *cfg, parallel, func(cfg *state.SimCfg) (*slog.Logger, io.Closer, error) {
			return harness.NewLogger(cfg, level)
		}, cmd.OutOrStdout())
	},
	GroupID: "sim",
}

// runSweep runs every reference scenario and writes the reports in scenario order.
func runSweep(ctx context.Context, base state.SimCfg, parallel int, newLog loggerFactory, out io.Writer) error {
	scenarios := harness.Scenarios(base)
	reports := make([]*harness.Report, len(scenarios))

	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, cfg := range scenarios {
		g.Go(func() error {
			log, closer, err := newLog(&cfg)
			if err != nil {
				return err
			}
			defer closer.Close()
			s, err := harness.New(cfg, log)
			if err != nil {
				return err
			}
			reports[i], err = s.Run(ctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, r := range reports {
		if _, err := io.WriteString(out, "\n== "+scenarios[i].Name+" =="); err != nil {
			return err
		}
		if err := r.WriteReport(out); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	addScenarioFlags(sweepCmd)
	sweepCmd.Flags().IntP("parallel", "p", 0, "maximum scenarios running at once, 0 for no limit")
}
