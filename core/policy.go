package core

import (
	"fmt"

	"github.com/encodeous/trustmesh/sim"
	"github.com/encodeous/trustmesh/stack"
	"github.com/encodeous/trustmesh/state"
)

type RouteEvent int

// trace events

const (
	PacketDropped RouteEvent = iota
	PacketDelivered
	PacketForwarded
	BlacklistedServed
)

// error events

const (
	MissingBinding RouteEvent = iota + 1000
	UnknownInterface
	MissingCallback
)

func (e RouteEvent) String() string {
	switch e {
	case PacketDropped:
		return "PacketDropped"
	case PacketDelivered:
		return "PacketDelivered"
	case PacketForwarded:
		return "PacketForwarded"
	case BlacklistedServed:
		return "BlacklistedServed"
	case MissingBinding:
		return "MissingBinding"
	case UnknownInterface:
		return "UnknownInterface"
	case MissingCallback:
		return "MissingCallback"
	default:
		return fmt.Sprintf("RouteEvent(%d)", int(e))
	}
}

// Policy is what the packet policy engine needs from the routing instance it runs in
type Policy interface {
	Trust
	Ipv4() stack.Ipv4
	Role() state.Role
	DropProbability() float64
	// Draw returns the next sample of U[0, 1)
	Draw() float64
	// Subject returns the node a forwarding outcome for hdr is attributed to
	Subject(hdr stack.Ipv4Header) (state.NodeId, bool)
	RouteLog(event RouteEvent, hdr stack.Ipv4Header, args ...any)
}

// HandleRouteInput decides whether an inbound packet is dropped, delivered locally or forwarded.
// It returns false when the packet was not handled, leaving the caller to discard it.
func HandleRouteInput(s *state.TrustState, p Policy, pkt *sim.Packet, hdr stack.Ipv4Header, idev *stack.NetDevice, cbs stack.Callbacks) bool {
	ipv4 := p.Ipv4()
	if ipv4 == nil {
		p.RouteLog(MissingBinding, hdr)
		return false
	}
	iif := ipv4.GetInterfaceForDevice(idev)
	if iif < 0 {
		p.RouteLog(UnknownInterface, hdr, "err", stack.ErrUnknownInterface)
		return false
	}
	local := ipv4.IsDestinationAddress(hdr.Destination, iif)
	subject, known := p.Subject(hdr)

	if !local && known {
		if shouldDrop(s, p, subject) {
			s.Dropped++
			UpdateTrustScore(s, p, subject, true)
			p.RouteLog(PacketDropped, hdr, "subject", subject)
			return false
		}
		if s.IsBlacklisted(subject) {
			p.RouteLog(BlacklistedServed, hdr, "subject", subject)
		}
	}

	if local {
		if cbs.Local == nil {
			p.RouteLog(MissingCallback, hdr, "callback", "local", "err", stack.ErrMissingCallback)
			return false
		}
		cbs.Local(pkt, hdr, iif)
		p.RouteLog(PacketDelivered, hdr)
		return true
	}

	if cbs.Unicast == nil {
		p.RouteLog(MissingCallback, hdr, "callback", "unicast", "err", stack.ErrMissingCallback)
		return false
	}
	route := &stack.Route{
		Destination:  hdr.Destination,
		Source:       ipv4.GetAddress(iif),
		OutputDevice: ipv4.GetNetDevice(iif),
	}
	cbs.Unicast(route, pkt, hdr)
	s.Forwarded++
	if !known {
		p.RouteLog(PacketForwarded, hdr)
		return true
	}
	UpdateTrustScore(s, p, subject, false)
	p.RouteLog(PacketForwarded, hdr, "subject", subject)
	return true
}

// shouldDrop draws only when the role calls for a drop decision.
func shouldDrop(s *state.TrustState, p Policy, subject state.NodeId) bool {
	switch p.Role() {
	case state.Malicious:
		return p.Draw() < p.DropProbability()
	default:
		return s.IsBlacklisted(subject) && p.Draw() < p.DropProbability()
	}
}
