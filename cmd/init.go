package cmd

import (
	"fmt"
	"os"

	"github.com/encodeous/trustmesh/state"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the reference scenario to the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
		cfg := state.DefaultSimCfg()
		if err := applyScenarioFlags(cmd, &cfg); err != nil {
			return err
		}
		if err := state.WriteSimConfig(path, &cfg); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Wrote scenario %s to %s\n", cfg.Name, path)
		return err
	},
	GroupID: "cfg",
}

func init() {
	rootCmd.AddCommand(initCmd)
	addScenarioFlags(initCmd)
	initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing config")
}
