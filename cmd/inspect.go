package cmd

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/encodeous/trustmesh/core"
	"github.com/encodeous/trustmesh/state"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect [trust log]",
	Aliases: []string{"i"},
	Short:   "Summarizes a trust score csv",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := state.TrustLogPath
		if len(args) == 1 {
			path = args[0]
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		sum, err := core.ReadTrustLog(f)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return writeSummary(cmd.OutOrStdout(), path, sum)
	},
	GroupID: "sim",
}

func writeSummary(w io.Writer, path string, sum *core.TrustLogSummary) error {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("%s: %d rows, %d snapshots\n", path, sum.Rows, len(sum.Times)))
	sb.WriteString("Node\tLast Trust Score\n")
	for _, id := range slices.Sorted(maps.Keys(sum.Last)) {
		sb.WriteString(fmt.Sprintf("%d\t%s\n", id, state.FormatScore(sum.Last[id])))
	}
	for _, at := range sum.Times {
		bl := sum.Blacklisted[at]
		if len(bl) == 0 {
			continue
		}
		ids := make([]string, 0, len(bl))
		for _, id := range bl {
			ids = append(ids, fmt.Sprint(id))
		}
		sb.WriteString(fmt.Sprintf("Blacklisted at %ss: %s\n", state.FormatSeconds(at.Seconds()), strings.Join(ids, ", ")))
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
