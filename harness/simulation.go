package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"

	"github.com/encodeous/trustmesh/core"
	"github.com/encodeous/trustmesh/sim"
	"github.com/encodeous/trustmesh/stack"
	"github.com/encodeous/trustmesh/state"
)

var (
	ErrNodeOutOfRange = errors.New("node index out of range")
	ErrNoIpv4         = errors.New("node has no ipv4 binding")
)

// Node is one simulated host.
type Node struct {
	Id     state.NodeId
	Device *stack.NetDevice
	Ipv4   *stack.Ipv4L3
	// Trust is nil on nodes running the plain substrate routing
	Trust *core.TrustRouting
	Log   *slog.Logger
}

// Simulation wires a scenario together: grid, channel, addressing, routing, traffic and sinks.
type Simulation struct {
	Cfg         state.SimCfg
	Sim         *sim.Simulator
	Channel     *stack.Channel
	Addrs       *stack.AddressTable
	Aodv        *stack.Aodv
	Nodes       []*Node
	Metrics     *Metrics
	Aggregator  *core.Aggregator
	TrustLog    *core.TrustLogger
	FlowMonitor *stack.FlowMonitor
	Log         *slog.Logger

	ctx    context.Context
	pcap   *stack.PcapTracer
	redis  *core.RedisViewSink
	sender *stack.UdpSocket
	recv   *stack.UdpSocket
}

// New builds the network described by cfg. Faulty blackhole entries are logged and skipped.
func New(cfg state.SimCfg, log *slog.Logger) (*Simulation, error) {
	state.ExpandSimConfig(&cfg)
	if err := state.SimConfigValidator(&cfg); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", cfg.Name, err)
	}
	s := &Simulation{
		Cfg:         cfg,
		Sim:         sim.New(log),
		Addrs:       stack.NewAddressTable(state.SubnetBase),
		Metrics:     NewMetrics(cfg.Name),
		FlowMonitor: stack.NewFlowMonitor(),
		Log:         log,
		ctx:         context.Background(),
	}
	s.Channel = stack.NewChannel(s.Sim, log, cfg.RadioRange, cfg.DataRate, cfg.FrameLoss)
	s.Aodv = stack.NewAodv(s.Channel, s.Addrs, log, state.RouteCacheCapacity)

	for i := range cfg.Nodes {
		id := state.NodeId(i)
		dev := s.Channel.Attach(id, stack.GridPosition(id, cfg.GridWidth, cfg.GridSpacing))
		addr, err := s.Addrs.Assign(id)
		if err != nil {
			return nil, fmt.Errorf("failed to assign address to node %d: %w", id, err)
		}
		nlog := log.With("node", id)
		l3 := stack.NewIpv4L3(s.Sim, dev, addr, state.SubnetBase, s.Aodv, nlog)
		l3.SetRoutingProtocol(stack.NewAodvRouting(id, s.Aodv, nlog))
		s.FlowMonitor.Install(l3)
		s.Nodes = append(s.Nodes, &Node{Id: id, Device: dev, Ipv4: l3, Log: nlog})
	}

	if cfg.Mitigation {
		for _, n := range s.Nodes {
			if cfg.IsBlackhole(n.Id) {
				continue
			}
			s.installTrust(n, state.Mitigating, cfg.MitigationDropProbability)
		}
	}
	for _, id := range cfg.BlackholeNodes {
		if err := s.InstallBlackhole(id); err != nil {
			log.Error("Blackhole node not installed", "id", id, "err", err)
		}
	}

	s.Aggregator = core.NewAggregator(log, core.LogViewSink{Log: log})
	if cfg.RedisAddr != "" {
		s.redis = core.NewRedisViewSink(cfg.RedisAddr, state.RedisViewKey+":"+cfg.Name)
		s.Aggregator.AddSink(s.redis)
	}
	if cfg.TrustLog != "" {
		s.TrustLog = core.NewTrustLogger(cfg.TrustLog, log)
	}
	if cfg.PcapOut != "" {
		tracer, err := stack.CreatePcapTracer(cfg.PcapOut, log)
		if err != nil {
			log.Error("failed to open pcap trace", "path", cfg.PcapOut, "err", err)
		} else {
			s.pcap = tracer
			s.Channel.AddTracer(tracer)
		}
	}
	return s, nil
}

func (s *Simulation) Node(id state.NodeId) (*Node, bool) {
	if uint64(id) >= uint64(len(s.Nodes)) {
		return nil, false
	}
	return s.Nodes[id], true
}

// InstallBlackhole attaches a malicious trust routing instance to node id.
func (s *Simulation) InstallBlackhole(id state.NodeId) error {
	n, ok := s.Node(id)
	if !ok {
		return fmt.Errorf("blackhole %d of %d nodes: %w", id, len(s.Nodes), ErrNodeOutOfRange)
	}
	if n.Ipv4 == nil {
		return fmt.Errorf("blackhole %d: %w", id, ErrNoIpv4)
	}
	s.installTrust(n, state.Malicious, s.Cfg.MaliciousDropProbability)
	n.Log.Info("blackhole installed", "drop_probability", n.Trust.DropProbability())
	return nil
}

func (s *Simulation) installTrust(n *Node, role state.Role, p float64) {
	r := core.NewTrustRouting(n.Id, core.TrustRoutingCfg{
		Role:            role,
		DropProbability: &p,
		Attribution:     s.Cfg.Attribution,
		Subnet:          state.SubnetBase,
		NextHop:         n.Ipv4,
		Rng:             sim.NewUniform(s.Cfg.Seed, uint64(n.Id)),
	}, n.Log)
	r.InitializeTrustScores(s.Cfg.Nodes)
	r.AddObserver(s.Metrics)
	n.Ipv4.SetRoutingProtocol(r)
	n.Trust = r
}

// TrustTables returns the tables of every node running trust routing, in node order.
func (s *Simulation) TrustTables() []core.TrustTable {
	tables := make([]core.TrustTable, 0)
	for _, n := range s.Nodes {
		if n.Trust != nil {
			tables = append(tables, n.Trust)
		}
	}
	return tables
}

// Run drives the CBR stream until the configured simulation time and returns the report.
func (s *Simulation) Run(ctx context.Context) (*Report, error) {
	if s.Sim.Stopped() {
		return nil, fmt.Errorf("simulation %s already ran", s.Cfg.Name)
	}
	s.ctx = ctx
	if err := s.setupTraffic(); err != nil {
		return nil, err
	}
	s.Sim.ScheduleRepeating(s.Cfg.LogInterval, s.Cfg.LogInterval, s.periodic)
	s.Sim.Stop(s.Cfg.SimTime)

	s.Log.Info("Starting simulation...", "nodes", s.Cfg.Nodes, "packets", s.Cfg.PacketCount())
	s.Sim.Run()
	s.Log.Info("Simulation finished.", "events", s.Sim.Dispatched)

	s.Aggregator.Update(ctx, s.Cfg.SimTime, s.TrustTables()...)
	s.finish()
	return s.report(), nil
}

func (s *Simulation) setupTraffic() error {
	src, ok := s.Node(state.SenderNode)
	if !ok || src.Ipv4 == nil {
		return fmt.Errorf("sender %d: %w", state.SenderNode, ErrNoIpv4)
	}
	dst, ok := s.Node(s.Cfg.Receiver())
	if !ok || dst.Ipv4 == nil {
		return fmt.Errorf("receiver %d: %w", s.Cfg.Receiver(), ErrNoIpv4)
	}
	s.recv = dst.Ipv4.NewUdpSocket()
	if err := s.recv.Bind(state.UdpPort); err != nil {
		return err
	}
	s.recv.SetRecvCallback(s.receive)

	s.sender = src.Ipv4.NewUdpSocket()
	if err := s.sender.Connect(netip.AddrPortFrom(dst.Ipv4.GetAddress(0), state.UdpPort)); err != nil {
		return err
	}
	interval := 1.0 / float64(s.Cfg.TrafficRate)
	for i := range s.Cfg.PacketCount() {
		s.Sim.ScheduleAt(sim.SecondsToDuration(float64(i)*interval), s.send)
	}
	return nil
}

func (s *Simulation) send() {
	pkt := sim.NewPacket(s.Cfg.PacketSize)
	if err := pkt.AddPacketTag(&sim.TimestampTag{Timestamp: s.Sim.Now()}); err != nil {
		s.Log.Error("failed to tag packet", "err", err)
		return
	}
	if _, err := s.sender.Send(pkt); err != nil {
		s.Log.Debug("send failed", "uid", pkt.Uid(), "err", err)
		return
	}
	s.Metrics.PacketSent()
}

func (s *Simulation) receive(sock *stack.UdpSocket, pkt *sim.Packet, from netip.AddrPort) {
	var ts sim.TimestampTag
	stamped := pkt.PeekPacketTag(&ts)
	s.Metrics.PacketReceived(s.Sim.Now()-ts.Timestamp, stamped)
	s.Log.Debug("Packet received", "from", from, "uid", pkt.Uid())
}

func (s *Simulation) periodic() {
	tables := s.TrustTables()
	if s.TrustLog != nil {
		s.TrustLog.LogTrustScores(s.Sim.Now(), tables...)
	}
	s.Aggregator.Update(s.ctx, s.Sim.Now(), tables...)
}

func (s *Simulation) finish() {
	s.FlowMonitor.CheckForLostPackets(s.Cfg.SimTime)
	if s.Cfg.FlowmonOut != "" {
		if err := s.FlowMonitor.SerializeToXmlFile(s.Cfg.FlowmonOut); err != nil {
			s.Log.Error("Failed to serialize FlowMonitor results", "path", s.Cfg.FlowmonOut, "err", err)
		} else {
			s.Log.Info("FlowMonitor results serialized", "path", s.Cfg.FlowmonOut, "flows", s.FlowMonitor.FlowCount())
		}
	}
	if s.Cfg.MetricsOut != "" {
		if err := s.Metrics.WriteTextfile(s.Cfg.MetricsOut); err != nil {
			s.Log.Error("failed to write metrics", "path", s.Cfg.MetricsOut, "err", err)
		}
	}
	if s.pcap != nil {
		if err := s.pcap.Close(); err != nil {
			s.Log.Error("failed to close pcap trace", "err", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.Log.Error("failed to close redis view sink", "err", err)
		}
	}
	s.sender.Close()
	s.recv.Close()
}

func (s *Simulation) report() *Report {
	r := &Report{
		Name:        s.Cfg.Name,
		Nodes:       s.Cfg.Nodes,
		SimTime:     s.Cfg.SimTime,
		PacketSize:  s.Cfg.PacketSize,
		Sent:        s.Metrics.Sent,
		Received:    s.Metrics.Received,
		TotalDelay:  s.Metrics.TotalDelay,
		GlobalTrust: s.Aggregator.View(),
		Blacklists:  make(map[state.NodeId][]state.NodeId),
	}
	for _, n := range s.Nodes {
		if n.Trust != nil {
			r.Blacklists[n.Id] = n.Trust.GetBlacklistedNodes()
		}
	}
	return r
}

// PrintRoutingTables writes the table of every node's routing protocol.
func (s *Simulation) PrintRoutingTables(w io.Writer) error {
	for _, n := range s.Nodes {
		if n.Ipv4 == nil {
			continue
		}
		if err := n.Ipv4.RoutingProtocol().PrintRoutingTable(w); err != nil {
			return err
		}
	}
	return nil
}
