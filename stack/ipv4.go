package stack

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/encodeous/trustmesh/sim"
	"github.com/encodeous/trustmesh/state"
)

// DropReason classifies why the IPv4 layer discarded a datagram.
type DropReason int

const (
	DropNoRoute DropReason = iota
	DropTtlExpired
	DropMalformed
	DropRouteInput
	DropNoSocket
	DropSendFailed
)

func (d DropReason) String() string {
	switch d {
	case DropNoRoute:
		return "NoRoute"
	case DropTtlExpired:
		return "TtlExpired"
	case DropMalformed:
		return "Malformed"
	case DropRouteInput:
		return "RouteInput"
	case DropNoSocket:
		return "NoSocket"
	case DropSendFailed:
		return "SendFailed"
	default:
		return fmt.Sprintf("DropReason(%d)", int(d))
	}
}

// PacketObserver is notified of datagram lifecycle events on a node. pkt holds the full datagram.
type PacketObserver interface {
	OnSend(at time.Duration, node state.NodeId, pkt *sim.Packet, hdr Ipv4Header)
	OnForward(at time.Duration, node state.NodeId, pkt *sim.Packet, hdr Ipv4Header)
	OnDeliver(at time.Duration, node state.NodeId, pkt *sim.Packet, hdr Ipv4Header)
	OnDrop(at time.Duration, node state.NodeId, pkt *sim.Packet, hdr Ipv4Header, reason DropReason)
}

// Ipv4L3 is a node's IPv4 layer with a single wireless interface (index 0).
type Ipv4L3 struct {
	node      state.NodeId
	sim       *sim.Simulator
	dev       *NetDevice
	addr      netip.Addr
	prefix    netip.Prefix
	aodv      *Aodv
	routing   RoutingProtocol
	sockets   map[uint16]*UdpSocket
	ephemeral uint16
	nextId    uint16
	observers []PacketObserver
	log       *slog.Logger

	Delivered uint64
	Forwarded uint64
	Dropped   uint64
}

func NewIpv4L3(s *sim.Simulator, dev *NetDevice, addr netip.Addr, prefix netip.Prefix, aodv *Aodv, log *slog.Logger) *Ipv4L3 {
	l3 := &Ipv4L3{
		node:      dev.Node(),
		sim:       s,
		dev:       dev,
		addr:      addr,
		prefix:    prefix,
		aodv:      aodv,
		sockets:   make(map[uint16]*UdpSocket),
		ephemeral: 49153,
		log:       log,
	}
	dev.SetReceiveCallback(l3.receive)
	return l3
}

func (l3 *Ipv4L3) Node() state.NodeId {
	return l3.node
}

// SetRoutingProtocol binds rp to this layer and announces the interface and its address.
func (l3 *Ipv4L3) SetRoutingProtocol(rp RoutingProtocol) {
	if l3.routing != nil {
		l3.routing.NotifyRemoveAddress(0, l3.prefix)
		l3.routing.NotifyInterfaceDown(0)
	}
	l3.routing = rp
	rp.SetIpv4(l3)
	rp.NotifyInterfaceUp(0)
	rp.NotifyAddAddress(0, netip.PrefixFrom(l3.addr, l3.prefix.Bits()))
}

func (l3 *Ipv4L3) RoutingProtocol() RoutingProtocol {
	return l3.routing
}

func (l3 *Ipv4L3) AddObserver(o PacketObserver) {
	l3.observers = append(l3.observers, o)
}

func (l3 *Ipv4L3) GetInterfaceForDevice(dev *NetDevice) int {
	if dev != nil && dev == l3.dev {
		return 0
	}
	return -1
}

func (l3 *Ipv4L3) IsDestinationAddress(addr netip.Addr, iif int) bool {
	return iif == 0 && addr == l3.addr
}

func (l3 *Ipv4L3) GetAddress(iif int) netip.Addr {
	if iif != 0 {
		return netip.Addr{}
	}
	return l3.addr
}

func (l3 *Ipv4L3) GetNetDevice(iif int) *NetDevice {
	if iif != 0 {
		return nil
	}
	return l3.dev
}

// NextHop resolves the neighbor this node would use towards dst.
func (l3 *Ipv4L3) NextHop(dst netip.Addr) (state.NodeId, error) {
	return l3.aodv.NextHop(l3.node, dst)
}

// Send originates a datagram carrying payload. Next hop selection goes straight to the substrate.
func (l3 *Ipv4L3) Send(payload *sim.Packet, dst netip.Addr, protocol uint8) error {
	l3.nextId++
	hdr := Ipv4Header{
		Source:         l3.addr,
		Destination:    dst,
		Protocol:       protocol,
		TTL:            state.DefaultTTL,
		Identification: l3.nextId,
		PayloadSize:    payload.Size(),
	}
	pkt := payload.Copy()
	pkt.AddHeader(EncodeIpv4Header(hdr))

	if dst == l3.addr {
		l3.notify(func(o PacketObserver) { o.OnSend(l3.sim.Now(), l3.node, pkt, hdr) })
		l3.sim.Schedule(0, func() { l3.localDeliver(pkt, hdr, 0) })
		return nil
	}
	nh, err := l3.NextHop(dst)
	if err != nil {
		return err
	}
	if err := l3.dev.Send(pkt, nh); err != nil {
		return err
	}
	l3.notify(func(o PacketObserver) { o.OnSend(l3.sim.Now(), l3.node, pkt, hdr) })
	return nil
}

func (l3 *Ipv4L3) receive(dev *NetDevice, pkt *sim.Packet, from state.NodeId) {
	hdr, err := DecodeIpv4Header(pkt.Bytes())
	if err != nil {
		l3.log.Debug("dropping malformed datagram", "from", from, "err", err)
		l3.drop(pkt, hdr, DropMalformed)
		return
	}
	if l3.routing == nil {
		l3.log.Error("no routing protocol installed", "uid", pkt.Uid())
		l3.drop(pkt, hdr, DropRouteInput)
		return
	}
	cbs := Callbacks{
		Unicast:   l3.forward,
		Multicast: l3.multicast,
		Local:     l3.localDeliver,
		Error:     l3.routeError,
	}
	if !l3.routing.RouteInput(pkt, hdr, dev, cbs) {
		l3.drop(pkt, hdr, DropRouteInput)
	}
}

func (l3 *Ipv4L3) forward(route *Route, pkt *sim.Packet, hdr Ipv4Header) {
	if hdr.TTL <= 1 {
		l3.log.Debug("dropping packet", "hdr", hdr, "err", ErrTtlExpired)
		l3.drop(pkt, hdr, DropTtlExpired)
		return
	}
	var nh state.NodeId
	var err error
	if route.Gateway.IsValid() {
		var ok bool
		if nh, ok = l3.aodv.addrs.Owner(route.Gateway); !ok {
			err = fmt.Errorf("gateway %s: %w", route.Gateway, ErrNoRouteToHost)
		}
	} else {
		nh, err = l3.NextHop(hdr.Destination)
	}
	if err != nil {
		l3.log.Debug("no next hop", "hdr", hdr, "err", err)
		l3.drop(pkt, hdr, DropNoRoute)
		return
	}
	dev := route.OutputDevice
	if dev == nil {
		dev = l3.dev
	}
	fwd := pkt.Copy()
	hdr.TTL = decrementTTL(fwd.Bytes())
	if err := dev.Send(fwd, nh); err != nil {
		l3.log.Debug("forward failed", "hdr", hdr, "err", err)
		l3.drop(fwd, hdr, DropSendFailed)
		return
	}
	l3.Forwarded++
	l3.notify(func(o PacketObserver) { o.OnForward(l3.sim.Now(), l3.node, fwd, hdr) })
}

func (l3 *Ipv4L3) multicast(pkt *sim.Packet, hdr Ipv4Header) {
	l3.log.Debug("multicast forwarding is not supported", "hdr", hdr)
	l3.drop(pkt, hdr, DropNoRoute)
}

func (l3 *Ipv4L3) routeError(pkt *sim.Packet, hdr Ipv4Header, err error) {
	reason := DropRouteInput
	if errors.Is(err, ErrNoRouteToHost) {
		reason = DropNoRoute
	}
	l3.log.Debug("route error", "hdr", hdr, "err", err)
	l3.drop(pkt, hdr, reason)
}

func (l3 *Ipv4L3) localDeliver(pkt *sim.Packet, hdr Ipv4Header, iif int) {
	if hdr.Protocol != ProtocolUdp {
		l3.drop(pkt, hdr, DropNoSocket)
		return
	}
	l3.notify(func(o PacketObserver) { o.OnDeliver(l3.sim.Now(), l3.node, pkt, hdr) })
	dgram := pkt.Copy()
	if _, err := dgram.RemoveHeader(Ipv4HeaderSize); err != nil {
		l3.drop(pkt, hdr, DropMalformed)
		return
	}
	raw, err := dgram.RemoveHeader(UdpHeaderSize)
	if err != nil {
		l3.drop(pkt, hdr, DropMalformed)
		return
	}
	udp, _ := DecodeUdpHeader(raw)
	sock, ok := l3.sockets[udp.DestinationPort]
	if !ok {
		l3.log.Debug("no socket", "port", udp.DestinationPort, "err", ErrNoSocketListening)
		l3.drop(pkt, hdr, DropNoSocket)
		return
	}
	l3.Delivered++
	sock.deliver(dgram, netip.AddrPortFrom(hdr.Source, udp.SourcePort))
}

func (l3 *Ipv4L3) drop(pkt *sim.Packet, hdr Ipv4Header, reason DropReason) {
	l3.Dropped++
	l3.notify(func(o PacketObserver) { o.OnDrop(l3.sim.Now(), l3.node, pkt, hdr, reason) })
}

func (l3 *Ipv4L3) notify(fn func(o PacketObserver)) {
	for _, o := range l3.observers {
		fn(o)
	}
}
