package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/encodeous/trustmesh/core"
	"github.com/encodeous/trustmesh/state"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func quietLogger(cfg *state.SimCfg) (*slog.Logger, io.Closer, error) {
	return slog.New(slog.NewTextHandler(io.Discard, nil)), nopCloser{}, nil
}

func shortScenario() state.SimCfg {
	cfg := state.DefaultSimCfg()
	cfg.SimTime = 2 * time.Second
	cfg.TrafficRate = 32
	cfg.TrustLog = ""
	cfg.FlowmonOut = ""
	return cfg
}

func TestSweep_NoLeaks(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var out bytes.Buffer
	require.NoError(t, runSweep(context.Background(), shortScenario(), 0, quietLogger, &out))

	report := out.String()
	assert.Equal(t, 3, strings.Count(report, "-------- Simulation Results --------"))
	s1 := strings.Index(report, "== s1-honest ==")
	s2 := strings.Index(report, "== s2-out-of-range ==")
	s3 := strings.Index(report, "== s3-on-path ==")
	assert.True(t, s1 >= 0 && s1 < s2 && s2 < s3, "scenarios out of order")
	assert.Contains(t, report[s1:s2], "Packet Delivery Ratio: 100%")
	assert.NotContains(t, report[s3:], "Packet Delivery Ratio: 100%")
}

func TestSweep_LoggerFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fail := errors.New("no log file")
	err := runSweep(context.Background(), shortScenario(), 1, func(cfg *state.SimCfg) (*slog.Logger, io.Closer, error) {
		return nil, nil, fail
	}, io.Discard)
	assert.ErrorIs(t, err, fail)
}

func newFlagCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	addScenarioFlags(c)
	require.NoError(t, c.ParseFlags(args))
	return c
}

func TestApplyScenarioFlags(t *testing.T) {
	c := newFlagCmd(t, "--nodes", "20", "--time", "12s", "--blackholes", "5, 3", "--mitigation=false",
		"--drop-prob", "1", "--attribution", "next-hop", "--trust-log", "-", "--metrics", "m.prom")
	cfg := state.DefaultSimCfg()
	require.NoError(t, applyScenarioFlags(c, &cfg))

	assert.Equal(t, uint32(20), cfg.Nodes)
	assert.Equal(t, 12*time.Second, cfg.SimTime)
	assert.Equal(t, []state.NodeId{3, 5}, cfg.BlackholeNodes)
	assert.False(t, cfg.Mitigation)
	assert.Equal(t, 1.0, cfg.MaliciousDropProbability)
	assert.Equal(t, state.AttributeNextHop, cfg.Attribution)
	assert.Empty(t, cfg.TrustLog)
	assert.Equal(t, "m.prom", cfg.MetricsOut)
	// untouched
	assert.Equal(t, uint32(128), cfg.TrafficRate)
	assert.Equal(t, state.FlowmonPath, cfg.FlowmonOut)
}

func TestApplyScenarioFlags_Invalid(t *testing.T) {
	cfg := state.DefaultSimCfg()
	assert.ErrorContains(t, applyScenarioFlags(newFlagCmd(t, "--blackholes", "a"), &cfg), "--blackholes")

	cfg = state.DefaultSimCfg()
	assert.ErrorIs(t, applyScenarioFlags(newFlagCmd(t, "--drop-prob", "1.5"), &cfg), state.ErrInvalidProbability)
}

func TestWriteSummary(t *testing.T) {
	sum := &core.TrustLogSummary{
		Times: []time.Duration{5 * time.Second, 10 * time.Second},
		Last:  map[state.NodeId]float64{9: 0, 0: 1},
		Blacklisted: map[time.Duration][]state.NodeId{
			10 * time.Second: {3, 9},
		},
		Rows: 24,
	}
	var out bytes.Buffer
	require.NoError(t, writeSummary(&out, "trust_scores.csv", sum))
	assert.Equal(t, "trust_scores.csv: 24 rows, 2 snapshots\n"+
		"Node\tLast Trust Score\n0\t1\n9\t0\n"+
		"Blacklisted at 10s: 3, 9\n", out.String())
}

func TestInitThenRun(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sim.yaml")
	trustLog := filepath.Join(dir, "trust.csv")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"init", "-c", cfgPath, "--nodes", "6", "--time", "6s", "--blackholes", "3",
		"--trust-log", trustLog, "--flowmon", "-"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Wrote scenario blackhole to "+cfgPath)

	cfg, err := state.ReadSimConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), cfg.Nodes)
	assert.Equal(t, []state.NodeId{3}, cfg.BlackholeNodes)

	// a second init refuses to overwrite
	rootCmd.SetArgs([]string{"init", "-c", cfgPath})
	assert.ErrorContains(t, rootCmd.Execute(), "already exists")

	out.Reset()
	rootCmd.SetArgs([]string{"run", "-c", cfgPath, "--flowmon", "-"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Total Nodes: 6")
	assert.Contains(t, out.String(), "Simulation Time: 6 seconds")
	assert.Contains(t, out.String(), "-------- Global Trust Scores --------")

	out.Reset()
	rootCmd.SetArgs([]string{"inspect", trustLog})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Node\tLast Trust Score\n")
	assert.Contains(t, out.String(), "Blacklisted at 5s: 5\n")
}
