package core

import (
	"fmt"
	"io"
	"log/slog"
	"net/netip"

	"github.com/encodeous/trustmesh/perf"
	"github.com/encodeous/trustmesh/sim"
	"github.com/encodeous/trustmesh/stack"
	"github.com/encodeous/trustmesh/state"
)

// NextHopResolver finds the neighbor traffic towards dst leaves through.
type NextHopResolver interface {
	NextHop(dst netip.Addr) (state.NodeId, error)
}

// Observer is notified of trust and routing events of a TrustRouting instance.
type Observer interface {
	OnTrustEvent(owner state.NodeId, event TrustEvent, id state.NodeId, score float64)
	OnRouteEvent(owner state.NodeId, event RouteEvent)
}

type TrustRoutingCfg struct {
	Role state.Role
	// DropProbability overrides the role default when set
	DropProbability *float64
	Attribution     state.Attribution
	Subnet          netip.Prefix
	// NextHop is required for next-hop attribution
	NextHop NextHopResolver
	// Rng defaults to a stream seeded by the owner id
	Rng sim.Uniform
}

// TrustRouting is a reactive routing protocol that only observes the traffic it is asked to forward,
// keeping a trust table and blacklist about the nodes it forwards for.
type TrustRouting struct {
	ts          *state.TrustState
	role        state.Role
	dropProb    float64
	attribution state.Attribution
	subnet      netip.Prefix
	nextHop     NextHopResolver
	rng         sim.Uniform
	ipv4        stack.Ipv4
	observers   []Observer
	log         *slog.Logger
}

func NewTrustRouting(owner state.NodeId, cfg TrustRoutingCfg, log *slog.Logger) *TrustRouting {
	r := &TrustRouting{
		ts:          state.NewTrustState(owner),
		role:        cfg.Role,
		attribution: cfg.Attribution,
		subnet:      cfg.Subnet,
		nextHop:     cfg.NextHop,
		rng:         cfg.Rng,
		log:         log,
	}
	if !r.subnet.IsValid() {
		r.subnet = state.SubnetBase
	}
	if r.attribution == "" {
		r.attribution = state.AttributeDestination
	}
	if r.attribution == state.AttributeNextHop && r.nextHop == nil {
		log.Warn("next-hop attribution without a resolver, falling back to destination")
		r.attribution = state.AttributeDestination
	}
	if r.rng == nil {
		r.rng = sim.NewUniform(1, uint64(owner))
	}
	r.dropProb = state.MitigationDropProbability
	if r.role == state.Malicious {
		r.dropProb = state.MaliciousDropProbability
	}
	if cfg.DropProbability != nil {
		_ = r.SetDropProbability(*cfg.DropProbability)
	}
	return r
}

func (r *TrustRouting) Id() state.NodeId {
	return r.ts.Id
}

func (r *TrustRouting) AddObserver(o Observer) {
	r.observers = append(r.observers, o)
}

// SetDropProbability changes the drop probability. Values outside [0, 1] are ignored.
func (r *TrustRouting) SetDropProbability(p float64) error {
	if err := state.ProbabilityValidator(p); err != nil {
		r.TrustChanged(InvalidParameter, r.ts.Id, r.dropProb, p)
		return err
	}
	r.dropProb = p
	return nil
}

func (r *TrustRouting) InitializeTrustScores(n uint32) {
	InitializeTrustScores(r.ts, n)
}

func (r *TrustRouting) GetTrustScore(id state.NodeId) float64 {
	return r.ts.GetTrustScore(id)
}

func (r *TrustRouting) UpdateTrustScore(id state.NodeId, dropped bool) float64 {
	return UpdateTrustScore(r.ts, r, id, dropped)
}

func (r *TrustRouting) SetTrustScore(id state.NodeId, score float64) {
	SetTrustScore(r.ts, r, id, score)
}

func (r *TrustRouting) GetTrustScores() []state.Pair[state.NodeId, float64] {
	return r.ts.GetTrustScores()
}

func (r *TrustRouting) GetBlacklistedNodes() []state.NodeId {
	return r.ts.GetBlacklistedNodes()
}

func (r *TrustRouting) IsBlacklisted(id state.NodeId) bool {
	return r.ts.IsBlacklisted(id)
}

func (r *TrustRouting) Dropped() uint64 {
	return r.ts.Dropped
}

func (r *TrustRouting) Forwarded() uint64 {
	return r.ts.Forwarded
}

// routing protocol contract

func (r *TrustRouting) RouteOutput(pkt *sim.Packet, hdr stack.Ipv4Header, oif *stack.NetDevice) (*stack.Route, error) {
	r.log.Debug("route output is not supported", "dst", hdr.Destination)
	return nil, stack.ErrNoRouteToHost
}

func (r *TrustRouting) RouteInput(pkt *sim.Packet, hdr stack.Ipv4Header, idev *stack.NetDevice, cbs stack.Callbacks) bool {
	return HandleRouteInput(r.ts, r, pkt, hdr, idev, cbs)
}

func (r *TrustRouting) NotifyInterfaceUp(iif int) {
	r.log.Debug("interface up", "iif", iif)
}

func (r *TrustRouting) NotifyInterfaceDown(iif int) {
	r.log.Debug("interface down", "iif", iif)
}

func (r *TrustRouting) NotifyAddAddress(iif int, addr netip.Prefix) {
	r.log.Debug("address added", "iif", iif, "addr", addr)
}

func (r *TrustRouting) NotifyRemoveAddress(iif int, addr netip.Prefix) {
	r.log.Debug("address removed", "iif", iif, "addr", addr)
}

func (r *TrustRouting) SetIpv4(ipv4 stack.Ipv4) {
	r.ipv4 = ipv4
}

func (r *TrustRouting) PrintRoutingTable(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Node: %d, TrustRouting (%s)\nRouting table not maintained.\n", r.ts.Id, r.role)
	return err
}

// policy

func (r *TrustRouting) Ipv4() stack.Ipv4 {
	return r.ipv4
}

func (r *TrustRouting) Role() state.Role {
	return r.role
}

func (r *TrustRouting) DropProbability() float64 {
	return r.dropProb
}

func (r *TrustRouting) Draw() float64 {
	return r.rng.RandU01()
}

func (r *TrustRouting) Subject(hdr stack.Ipv4Header) (state.NodeId, bool) {
	if r.attribution == state.AttributeNextHop {
		nh, err := r.nextHop.NextHop(hdr.Destination)
		if err != nil {
			return 0, false
		}
		return nh, true
	}
	return stack.NodeIdOf(r.subnet, hdr.Destination)
}

func (r *TrustRouting) RouteLog(event RouteEvent, hdr stack.Ipv4Header, args ...any) {
	args = append([]any{"event", event, "src", hdr.Source, "dst", hdr.Destination}, args...)
	if event >= 1000 {
		r.log.Error("cannot route packet", args...)
	} else {
		r.log.Debug("route decision", args...)
	}
	if event == PacketDropped {
		perf.PolicyDropsPerSecond.Add(1)
	}
	for _, o := range r.observers {
		o.OnRouteEvent(r.ts.Id, event)
	}
}

func (r *TrustRouting) TrustChanged(event TrustEvent, id state.NodeId, prev, cur float64) {
	switch event {
	case BlacklistAdded:
		r.log.Info(fmt.Sprintf("Node %d added to blacklist.", id), "event", event, "score", state.FormatScore(cur))
	case BlacklistRemoved:
		r.log.Info(fmt.Sprintf("Node %d removed from blacklist.", id), "event", event, "score", state.FormatScore(cur))
	case InvalidParameter:
		r.log.Warn("invalid drop probability, keeping previous value", "event", event, "value", cur, "kept", prev)
		return
	default:
		perf.TrustUpdatesPerSec.Add(1)
		r.log.Debug("trust updated", "event", event, "id", id, "old", state.FormatScore(prev), "new", state.FormatScore(cur))
	}
	for _, o := range r.observers {
		o.OnTrustEvent(r.ts.Id, event, id, cur)
	}
}
