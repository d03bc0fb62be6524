package state

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path"
)

var ErrInvalidProbability = errors.New("probability must be within [0, 1]")

func ProbabilityValidator(p float64) error {
	if math.IsNaN(p) || p < 0.0 || p > 1.0 {
		return fmt.Errorf("%v: %w", p, ErrInvalidProbability)
	}
	return nil
}

// ThresholdValidator checks the hysteresis band is well formed.
func ThresholdValidator(trust, recovery float64) error {
	if trust < 0 || recovery > 1 {
		return fmt.Errorf("thresholds must be within [0, 1], got %v and %v", trust, recovery)
	}
	if trust >= recovery {
		return fmt.Errorf("trust threshold %v must be strictly below recovery threshold %v", trust, recovery)
	}
	return nil
}

func PathValidator(s string) error {
	if s == "" {
		return nil
	}
	_, err := os.Stat(path.Dir(s))
	return err
}

func SimConfigValidator(cfg *SimCfg) error {
	if cfg.Nodes < 2 {
		return fmt.Errorf("nodes = %d, need at least a sender and a receiver", cfg.Nodes)
	}
	if hosts := uint64(1)<<(SubnetBase.Addr().BitLen()-SubnetBase.Bits()) - 2; uint64(cfg.Nodes) > hosts {
		return fmt.Errorf("nodes = %d does not fit in %s", cfg.Nodes, SubnetBase)
	}
	if uint32(SenderNode) >= cfg.Nodes-1 {
		return fmt.Errorf("nodes = %d leaves no room for sender %d", cfg.Nodes, SenderNode)
	}
	if cfg.SimTime <= 0 {
		return fmt.Errorf("sim_time must be positive, got %s", cfg.SimTime)
	}
	if cfg.TrafficRate == 0 {
		return fmt.Errorf("traffic_rate must be positive")
	}
	if cfg.PacketSize <= 0 || cfg.PacketSize > 65507 {
		return fmt.Errorf("packet_size = %d is not a valid udp payload size", cfg.PacketSize)
	}
	if err := ProbabilityValidator(cfg.MaliciousDropProbability); err != nil {
		return fmt.Errorf("malicious_drop_probability: %w", err)
	}
	if err := ProbabilityValidator(cfg.MitigationDropProbability); err != nil {
		return fmt.Errorf("mitigation_drop_probability: %w", err)
	}
	if err := ProbabilityValidator(cfg.FrameLoss); err != nil {
		return fmt.Errorf("frame_loss: %w", err)
	}
	if cfg.Attribution != AttributeDestination && cfg.Attribution != AttributeNextHop {
		return fmt.Errorf("attribution %q must be %q or %q", cfg.Attribution, AttributeDestination, AttributeNextHop)
	}
	if cfg.GridWidth == 0 || cfg.GridSpacing <= 0 || cfg.RadioRange <= 0 || cfg.DataRate == 0 {
		return fmt.Errorf("grid_width, grid_spacing, radio_range and data_rate must be positive")
	}
	if cfg.LogInterval <= 0 {
		return fmt.Errorf("log_interval must be positive, got %s", cfg.LogInterval)
	}
	if err := ThresholdValidator(TrustThreshold, RecoveryThreshold); err != nil {
		return err
	}
	for _, p := range []string{cfg.TrustLog, cfg.FlowmonOut, cfg.PcapOut, cfg.MetricsOut, cfg.LogPath} {
		if err := PathValidator(p); err != nil {
			return fmt.Errorf("output path %s: %w", p, err)
		}
	}
	return nil
}
