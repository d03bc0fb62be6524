package cmd

import (
	"net/http"

	"github.com/encodeous/trustmesh/harness"
	_ "github.com/encodeous/trustmesh/perf" // registers /debug/metrics
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one scenario and print the report",
	Long: `Runs the scenario from --config, or the reference scenario when no config file exists.
Flags override the values from the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := applyScenarioFlags(cmd, cfg); err != nil {
			return err
		}

		log, closer, err := harness.NewLogger(cfg, logLevel(cmd))
		if err != nil {
			return err
		}
		defer closer.Close()

		if addr, _ := cmd.Flags().GetString("debug"); addr != "" {
			go func() {
				log.Warn("debug server stopped", "err", http.ListenAndServe(addr, nil))
			}()
		}

		s, err := harness.New(*cfg, log)
		if err != nil {
			return err
		}
		if ok, _ := cmd.Flags().GetBool("routes"); ok {
			if err := s.PrintRoutingTables(cmd.OutOrStdout()); err != nil {
				return err
			}
		}
		report, err := s.Run(cmd.Context())
		if err != nil {
			return err
		}
		return report.WriteReport(cmd.OutOrStdout())
	},
	GroupID: "sim",
}

func init() {
	rootCmd.AddCommand(runCmd)
	addScenarioFlags(runCmd)
	runCmd.Flags().String("debug", "", "serve /debug/metrics on this address, e.g. 127.0.0.1:6060")
	runCmd.Flags().BoolP("routes", "r", false, "Print the routing table of every node before running")
}
