package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

const DefaultConfigPath = "sim.yaml"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "trustmesh",
	Short: "Trust-based blackhole mitigation for simulated ad-hoc networks",
	Long: `trustmesh simulates a wireless ad-hoc grid where nodes keep a trust table about the traffic they forward.
Nodes whose trust falls below a threshold are blacklisted, and packets towards them are dropped with a configurable probability.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "cfg",
		Title: "Configuration",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "sim",
		Title: "Simulation Commands",
	})
	rootCmd.PersistentFlags().StringP("config", "c", DefaultConfigPath, "scenario config, defaults are used when the file does not exist")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
}
