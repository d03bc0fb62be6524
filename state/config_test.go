package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSimCfg_IsValid(t *testing.T) {
	cfg := DefaultSimCfg()
	assert.NoError(t, SimConfigValidator(&cfg))
	assert.Equal(t, 6400, cfg.PacketCount())
	assert.Equal(t, NodeId(9), cfg.Receiver())
	assert.True(t, cfg.IsBlackhole(10))
	assert.False(t, cfg.IsBlackhole(5))
}

func TestReadSimConfig_Overrides(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "sim.yaml")
	input := `name: on-path
nodes: 10
sim_time: 20s
traffic_rate: 256
blackhole_nodes: [5]
malicious_drop_probability: 1
mitigation: false
seed: 7
`
	require.NoError(t, os.WriteFile(p, []byte(input), 0600))

	cfg, err := ReadSimConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "on-path", cfg.Name)
	assert.Equal(t, 20*time.Second, cfg.SimTime)
	assert.Equal(t, uint32(256), cfg.TrafficRate)
	assert.Equal(t, []NodeId{5}, cfg.BlackholeNodes)
	assert.Equal(t, 1.0, cfg.MaliciousDropProbability)
	assert.False(t, cfg.Mitigation)
	assert.Equal(t, uint64(7), cfg.Seed)
	// untouched fields keep their defaults
	assert.Equal(t, MitigationDropProbability, cfg.MitigationDropProbability)
	assert.Equal(t, AttributeDestination, cfg.Attribution)
	assert.Equal(t, GridSpacing, cfg.GridSpacing)
	assert.Equal(t, LogInterval, cfg.LogInterval)
	assert.NoError(t, SimConfigValidator(cfg))
}

func TestReadSimConfig_Missing(t *testing.T) {
	_, err := ReadSimConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteSimConfig_RoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sim.yaml")
	cfg := DefaultSimCfg()
	cfg.BlackholeNodes = []NodeId{10, 15, 25}
	require.NoError(t, WriteSimConfig(p, &cfg))

	back, err := ReadSimConfig(p)
	require.NoError(t, err)
	assert.Equal(t, cfg, *back)
}

func TestExpandSimConfig(t *testing.T) {
	var cfg SimCfg
	require.NoError(t, yaml.Unmarshal([]byte("nodes: 4\nsim_time: 1s\ntraffic_rate: 10\n"), &cfg))
	ExpandSimConfig(&cfg)
	assert.Equal(t, PacketSize, cfg.PacketSize)
	assert.Equal(t, GridWidth, cfg.GridWidth)
	assert.Equal(t, DataRate, cfg.DataRate)
	assert.Equal(t, AttributeDestination, cfg.Attribution)
	assert.Equal(t, 10, cfg.PacketCount())
}

func TestParseNodeList(t *testing.T) {
	ids, err := ParseNodeList("55, 10,15,,10 ")
	require.NoError(t, err)
	assert.Equal(t, []NodeId{10, 15, 55}, ids)

	ids, err = ParseNodeList("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = ParseNodeList("4,x")
	assert.ErrorContains(t, err, `"x" is not a valid node id`)
}
