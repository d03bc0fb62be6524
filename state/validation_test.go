package state

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProbabilityValidator(t *testing.T) {
	assert.NoError(t, ProbabilityValidator(0))
	assert.NoError(t, ProbabilityValidator(0.05))
	assert.NoError(t, ProbabilityValidator(1))
	assert.ErrorIs(t, ProbabilityValidator(-0.1), ErrInvalidProbability)
	assert.ErrorIs(t, ProbabilityValidator(1.01), ErrInvalidProbability)
	assert.ErrorIs(t, ProbabilityValidator(math.NaN()), ErrInvalidProbability)
}

func TestThresholdValidator(t *testing.T) {
	assert.NoError(t, ThresholdValidator(0.3, 0.6))
	assert.ErrorContains(t, ThresholdValidator(0.6, 0.6), "strictly below")
	assert.ErrorContains(t, ThresholdValidator(0.7, 0.6), "strictly below")
	assert.Error(t, ThresholdValidator(-0.1, 0.6))
	assert.Error(t, ThresholdValidator(0.3, 1.5))
}

func TestSimConfigValidator_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *SimCfg)
		errMsg string
	}{
		{"single node", func(cfg *SimCfg) { cfg.Nodes = 1 }, "at least a sender"},
		{"no room for sender", func(cfg *SimCfg) { cfg.Nodes = 2 }, "no room for sender"},
		{"too many nodes", func(cfg *SimCfg) { cfg.Nodes = 300 }, "does not fit"},
		{"zero time", func(cfg *SimCfg) { cfg.SimTime = 0 }, "sim_time"},
		{"zero rate", func(cfg *SimCfg) { cfg.TrafficRate = 0 }, "traffic_rate"},
		{"huge packet", func(cfg *SimCfg) { cfg.PacketSize = 70000 }, "packet_size"},
		{"malicious prob", func(cfg *SimCfg) { cfg.MaliciousDropProbability = 2 }, "malicious_drop_probability"},
		{"mitigation prob", func(cfg *SimCfg) { cfg.MitigationDropProbability = -1 }, "mitigation_drop_probability"},
		{"frame loss", func(cfg *SimCfg) { cfg.FrameLoss = 1.5 }, "frame_loss"},
		{"attribution", func(cfg *SimCfg) { cfg.Attribution = "source" }, "attribution"},
		{"grid", func(cfg *SimCfg) { cfg.RadioRange = 0 }, "radio_range"},
		{"interval", func(cfg *SimCfg) { cfg.LogInterval = -time.Second }, "log_interval"},
		{"output dir", func(cfg *SimCfg) { cfg.TrustLog = filepath.Join("/nonexistent-dir", "x.csv") }, "output path"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := DefaultSimCfg()
			test.mutate(&cfg)
			assert.ErrorContains(t, SimConfigValidator(&cfg), test.errMsg)
		})
	}
}

func TestSimConfigValidator_LargeScenario(t *testing.T) {
	cfg := DefaultSimCfg()
	cfg.Nodes = 200
	cfg.SimTime = 10 * time.Second
	cfg.TrafficRate = 1024
	cfg.BlackholeNodes = []NodeId{10, 15, 25, 35, 40, 55}
	assert.NoError(t, SimConfigValidator(&cfg))
}
