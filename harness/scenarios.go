package harness

import (
	"path/filepath"
	"strings"

	"github.com/encodeous/trustmesh/state"
)

// Scenarios derives the three reference runs from base: no malicious node, an out of range
// blackhole entry, and a blackhole on the sender to receiver path. Output paths get the scenario
// name as a suffix so concurrent runs do not share files.
func Scenarios(base state.SimCfg) []state.SimCfg {
	variants := []struct {
		name       string
		blackholes []state.NodeId
	}{
		{"s1-honest", nil},
		{"s2-out-of-range", []state.NodeId{state.NodeId(base.Nodes)}},
		{"s3-on-path", []state.NodeId{5}},
	}
	out := make([]state.SimCfg, 0, len(variants))
	for _, v := range variants {
		cfg := base
		cfg.Name = v.name
		cfg.BlackholeNodes = v.blackholes
		cfg.TrustLog = WithSuffix(base.TrustLog, v.name)
		cfg.FlowmonOut = WithSuffix(base.FlowmonOut, v.name)
		cfg.PcapOut = WithSuffix(base.PcapOut, v.name)
		cfg.MetricsOut = WithSuffix(base.MetricsOut, v.name)
		cfg.LogPath = WithSuffix(base.LogPath, v.name)
		out = append(out, cfg)
	}
	return out
}

// WithSuffix inserts -suffix before the extension of p. Empty paths stay empty.
func WithSuffix(p, suffix string) string {
	if p == "" {
		return ""
	}
	ext := filepath.Ext(p)
	return strings.TrimSuffix(p, ext) + "-" + suffix + ext
}
