package state

import (
	"net/netip"
	"time"
)

var (
	// TrustThreshold is the score below which a node enters the blacklist.
	TrustThreshold = 0.3
	// RecoveryThreshold is the score a blacklisted node must reach to leave it. Must exceed TrustThreshold.
	RecoveryThreshold = 0.6
	DropPenalty       = 0.2
	ForwardReward     = 0.1
	InitialTrust      = 1.0
	TrustScale        = 1e9

	MaliciousDropProbability  = 0.9
	MitigationDropProbability = 0.05

	LogInterval           = 5 * time.Second
	SlowDispatchThreshold = 4 * time.Millisecond

	// traffic
	UdpPort     = uint16(9)
	PacketSize  = 1024
	DefaultTTL  = uint8(64)
	SenderNode  = NodeId(1)
	SubnetBase  = netip.MustParsePrefix("10.1.1.0/24")
	GridWidth   = uint32(10)
	GridSpacing = 50.0  // meters
	RadioRange  = 110.0 // meters
	DataRate    = uint64(6_000_000)

	// MAC timing, 802.11a OFDM at 6 Mb/s
	SlotTime      = 9 * time.Microsecond
	Difs          = 34 * time.Microsecond
	MaxBackoff    = 15
	FrameOverhead = 36 // MAC header, FCS and PLCP, in bytes

	RouteCacheCapacity = uint64(4096)

	// sinks
	TrustLogPath   = "trust_scores.csv"
	FlowmonPath    = "flowmon-results.xml"
	RedisViewKey   = "trustmesh:global"
	RedisOpTimeout = time.Second
)
