package stack

import (
	"errors"
	"io"
	"net/netip"

	"github.com/encodeous/trustmesh/sim"
)

var (
	ErrNoRouteToHost     = errors.New("no route to host")
	ErrUnknownInterface  = errors.New("no interface for device")
	ErrMissingCallback   = errors.New("routing callback not set")
	ErrIpv4NotBound      = errors.New("routing protocol has no ipv4 binding")
	ErrTtlExpired        = errors.New("ttl expired in transit")
	ErrNoSocketListening = errors.New("no socket bound to port")
)

// Route is the outcome of a routing decision. An invalid Gateway means the layer resolves the next hop.
type Route struct {
	Destination  netip.Addr
	Source       netip.Addr
	Gateway      netip.Addr
	OutputDevice *NetDevice
}

type (
	UnicastForwardCallback   func(route *Route, pkt *sim.Packet, hdr Ipv4Header)
	MulticastForwardCallback func(pkt *sim.Packet, hdr Ipv4Header)
	LocalDeliverCallback     func(pkt *sim.Packet, hdr Ipv4Header, iif int)
	ErrorCallback            func(pkt *sim.Packet, hdr Ipv4Header, err error)
)

// Callbacks are handed to RouteInput. Exactly one of them is invoked when the packet is handled.
type Callbacks struct {
	Unicast   UnicastForwardCallback
	Multicast MulticastForwardCallback
	Local     LocalDeliverCallback
	Error     ErrorCallback
}

// Ipv4 is the view of the IPv4 layer a routing protocol is bound to.
type Ipv4 interface {
	// GetInterfaceForDevice returns -1 if dev is not attached to this layer.
	GetInterfaceForDevice(dev *NetDevice) int
	IsDestinationAddress(addr netip.Addr, iif int) bool
	GetAddress(iif int) netip.Addr
	GetNetDevice(iif int) *NetDevice
}

// RoutingProtocol is the pluggable routing contract of an Ipv4L3.
type RoutingProtocol interface {
	RouteOutput(pkt *sim.Packet, hdr Ipv4Header, oif *NetDevice) (*Route, error)
	// RouteInput returns false if the packet was not handled, in which case the caller drops it.
	RouteInput(pkt *sim.Packet, hdr Ipv4Header, idev *NetDevice, cbs Callbacks) bool
	NotifyInterfaceUp(iif int)
	NotifyInterfaceDown(iif int)
	NotifyAddAddress(iif int, addr netip.Prefix)
	NotifyRemoveAddress(iif int, addr netip.Prefix)
	SetIpv4(ipv4 Ipv4)
	PrintRoutingTable(w io.Writer) error
}
