package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/encodeous/trustmesh/state"
	"github.com/spf13/cobra"
)

// loadConfig reads the scenario file named by --config. A missing file falls back to the defaults
// unless the flag was given explicitly.
func loadConfig(cmd *cobra.Command) (*state.SimCfg, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := state.ReadSimConfig(path)
	if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		def := state.DefaultSimCfg()
		return &def, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func logLevel(cmd *cobra.Command) slog.Level {
	if ok, _ := cmd.Flags().GetBool("verbose"); ok {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func addScenarioFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Uint32("nodes", 0, "number of nodes")
	f.Duration("time", 0, "simulated time, e.g. 50s")
	f.Uint32("rate", 0, "CBR rate in packets per second")
	f.String("blackholes", "", "comma separated malicious node ids, empty for none")
	f.Float64("drop-prob", 0, "drop probability of malicious nodes")
	f.Float64("mitigation-prob", 0, "drop probability for blacklisted destinations on honest nodes")
	f.Bool("mitigation", true, "install trust routing on honest nodes")
	f.String("attribution", "", "trust attribution, destination or next-hop")
	f.Uint64("seed", 0, "policy rng seed")
	f.Float64("frame-loss", 0, "independent per-frame loss probability")
	f.String("trust-log", "", "trust score csv, \"-\" disables")
	f.String("flowmon", "", "flow monitor xml, \"-\" disables")
	f.String("pcap", "", "write every frame to this pcap file")
	f.String("metrics", "", "write prometheus metrics to this file")
	f.String("redis", "", "mirror the global trust view to this redis address")
	f.String("log", "", "also write logs to this file")
}

func outputPath(v string) string {
	if v == "-" {
		return ""
	}
	return v
}

// applyScenarioFlags overrides cfg with every flag set on the command line.
func applyScenarioFlags(cmd *cobra.Command, cfg *state.SimCfg) error {
	f := cmd.Flags()
	if f.Changed("nodes") {
		cfg.Nodes, _ = f.GetUint32("nodes")
	}
	if f.Changed("time") {
		cfg.SimTime, _ = f.GetDuration("time")
	}
	if f.Changed("rate") {
		cfg.TrafficRate, _ = f.GetUint32("rate")
	}
	if f.Changed("blackholes") {
		s, _ := f.GetString("blackholes")
		ids, err := state.ParseNodeList(s)
		if err != nil {
			return fmt.Errorf("--blackholes: %w", err)
		}
		cfg.BlackholeNodes = ids
	}
	if f.Changed("drop-prob") {
		cfg.MaliciousDropProbability, _ = f.GetFloat64("drop-prob")
	}
	if f.Changed("mitigation-prob") {
		cfg.MitigationDropProbability, _ = f.GetFloat64("mitigation-prob")
	}
	if f.Changed("mitigation") {
		cfg.Mitigation, _ = f.GetBool("mitigation")
	}
	if f.Changed("attribution") {
		s, _ := f.GetString("attribution")
		cfg.Attribution = state.Attribution(s)
	}
	if f.Changed("seed") {
		cfg.Seed, _ = f.GetUint64("seed")
	}
	if f.Changed("frame-loss") {
		cfg.FrameLoss, _ = f.GetFloat64("frame-loss")
	}
	for flag, dst := range map[string]*string{
		"trust-log": &cfg.TrustLog,
		"flowmon":   &cfg.FlowmonOut,
		"pcap":      &cfg.PcapOut,
		"metrics":   &cfg.MetricsOut,
		"redis":     &cfg.RedisAddr,
		"log":       &cfg.LogPath,
	} {
		if f.Changed(flag) {
			v, _ := f.GetString(flag)
			*dst = outputPath(v)
		}
	}
	return state.SimConfigValidator(cfg)
}
