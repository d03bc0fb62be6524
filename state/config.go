package state

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// SimCfg describes one simulation run.
type SimCfg struct {
	Name           string        `yaml:"name,omitempty"`
	Nodes          uint32        `yaml:"nodes"`
	SimTime        time.Duration `yaml:"sim_time"`
	TrafficRate    uint32        `yaml:"traffic_rate"`          // packets per second
	PacketSize     int           `yaml:"packet_size,omitempty"` // udp payload bytes
	BlackholeNodes []NodeId      `yaml:"blackhole_nodes,flow"`

	MaliciousDropProbability  float64     `yaml:"malicious_drop_probability"`
	Mitigation                bool        `yaml:"mitigation"` // install mitigating routing on honest nodes
	MitigationDropProbability float64     `yaml:"mitigation_drop_probability"`
	Attribution               Attribution `yaml:"attribution,omitempty"`
	Seed                      uint64      `yaml:"seed"`

	GridWidth   uint32  `yaml:"grid_width,omitempty"`
	GridSpacing float64 `yaml:"grid_spacing,omitempty"` // meters
	RadioRange  float64 `yaml:"radio_range,omitempty"`  // meters
	DataRate    uint64  `yaml:"data_rate,omitempty"`    // bits per second
	FrameLoss   float64 `yaml:"frame_loss,omitempty"`   // independent per-frame loss probability

	LogInterval time.Duration `yaml:"log_interval,omitempty"`
	TrustLog    string        `yaml:"trust_log,omitempty"`   // csv sink, empty disables
	FlowmonOut  string        `yaml:"flowmon_out,omitempty"` // xml sink, empty disables
	PcapOut     string        `yaml:"pcap_out,omitempty"`    // frame trace, empty disables
	MetricsOut  string        `yaml:"metrics_out,omitempty"` // prometheus text file, empty disables
	RedisAddr   string        `yaml:"redis_addr,omitempty"`  // mirror of the global trust view, empty disables
	LogPath     string        `yaml:"log_path,omitempty"`    // if not empty, logs are also written to this file
}

// DefaultSimCfg is the reference scenario: a 10 node row, one out-of-range blackhole entry.
func DefaultSimCfg() SimCfg {
	return SimCfg{
		Name:                      "blackhole",
		Nodes:                     10,
		SimTime:                   50 * time.Second,
		TrafficRate:               128,
		PacketSize:                PacketSize,
		BlackholeNodes:            []NodeId{10},
		MaliciousDropProbability:  MaliciousDropProbability,
		Mitigation:                true,
		MitigationDropProbability: MitigationDropProbability,
		Attribution:               AttributeDestination,
		Seed:                      1,
		GridWidth:                 GridWidth,
		GridSpacing:               GridSpacing,
		RadioRange:                RadioRange,
		DataRate:                  DataRate,
		LogInterval:               LogInterval,
		TrustLog:                  TrustLogPath,
		FlowmonOut:                FlowmonPath,
	}
}

// ExpandSimConfig fills zero-valued optional fields with their defaults.
func ExpandSimConfig(cfg *SimCfg) {
	def := DefaultSimCfg()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.PacketSize == 0 {
		cfg.PacketSize = def.PacketSize
	}
	if cfg.Attribution == "" {
		cfg.Attribution = def.Attribution
	}
	if cfg.GridWidth == 0 {
		cfg.GridWidth = def.GridWidth
	}
	if cfg.GridSpacing == 0 {
		cfg.GridSpacing = def.GridSpacing
	}
	if cfg.RadioRange == 0 {
		cfg.RadioRange = def.RadioRange
	}
	if cfg.DataRate == 0 {
		cfg.DataRate = def.DataRate
	}
	if cfg.LogInterval == 0 {
		cfg.LogInterval = def.LogInterval
	}
}

// PacketCount is the number of packets the CBR source schedules: rate x duration.
func (c *SimCfg) PacketCount() int {
	return int(float64(c.TrafficRate) * c.SimTime.Seconds())
}

// Receiver is the last node of the grid.
func (c *SimCfg) Receiver() NodeId {
	return NodeId(c.Nodes - 1)
}

func (c *SimCfg) IsBlackhole(id NodeId) bool {
	return slices.Contains(c.BlackholeNodes, id)
}

func ReadSimConfig(path string) (*SimCfg, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultSimCfg()
	err = yaml.Unmarshal(file, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	ExpandSimConfig(&cfg)
	return &cfg, nil
}

func WriteSimConfig(path string, cfg *SimCfg) error {
	bytes, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, bytes, 0600)
}

// ParseNodeList parses a comma separated node id list such as "10, 15,25".
func ParseNodeList(s string) ([]NodeId, error) {
	out := make([]NodeId, 0)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid node id: %w", part, err)
		}
		out = append(out, NodeId(v))
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
