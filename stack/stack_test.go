package stack

import (
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"testing"

	"github.com/encodeous/trustmesh/sim"
	"github.com/encodeous/trustmesh/state"
	"github.com/stretchr/testify/require"
)

type testNet struct {
	sim     *sim.Simulator
	channel *Channel
	addrs   *AddressTable
	aodv    *Aodv
	nodes   []*Ipv4L3
	log     *slog.Logger
}

// newTestNet builds n nodes on the default grid, each running AodvRouting.
func newTestNet(t *testing.T, n int) *testNet {
	t.Helper()
	return newLoggedTestNet(t, n, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newLoggedTestNet(t *testing.T, n int, log *slog.Logger) *testNet {
	t.Helper()
	s := sim.New(log)
	ch := NewChannel(s, log, state.RadioRange, state.DataRate, 0)
	addrs := NewAddressTable(state.SubnetBase)
	aodv := NewAodv(ch, addrs, log, state.RouteCacheCapacity)
	tn := &testNet{sim: s, channel: ch, addrs: addrs, aodv: aodv, log: log}
	for i := range n {
		id := state.NodeId(i)
		dev := ch.Attach(id, GridPosition(id, state.GridWidth, state.GridSpacing))
		addr, err := addrs.Assign(id)
		require.NoError(t, err)
		l3 := NewIpv4L3(s, dev, addr, state.SubnetBase, aodv, log)
		l3.SetRoutingProtocol(NewAodvRouting(id, aodv, log))
		tn.nodes = append(tn.nodes, l3)
	}
	return tn
}

func (tn *testNet) addr(id state.NodeId) netip.Addr {
	a, _ := tn.addrs.Address(id)
	return a
}

// RecordingRouting records every routing contract call and delegates RouteInput to Decide.
type RecordingRouting struct {
	Calls  []string
	Ipv4   Ipv4
	Decide func(pkt *sim.Packet, hdr Ipv4Header, idev *NetDevice, cbs Callbacks) bool
}

func (r *RecordingRouting) RouteOutput(pkt *sim.Packet, hdr Ipv4Header, oif *NetDevice) (*Route, error) {
	r.Calls = append(r.Calls, "RouteOutput")
	return nil, ErrNoRouteToHost
}

func (r *RecordingRouting) RouteInput(pkt *sim.Packet, hdr Ipv4Header, idev *NetDevice, cbs Callbacks) bool {
	r.Calls = append(r.Calls, fmt.Sprintf("RouteInput %s", hdr.Destination))
	if r.Decide == nil {
		return false
	}
	return r.Decide(pkt, hdr, idev, cbs)
}

func (r *RecordingRouting) NotifyInterfaceUp(iif int) {
	r.Calls = append(r.Calls, fmt.Sprintf("NotifyInterfaceUp %d", iif))
}

func (r *RecordingRouting) NotifyInterfaceDown(iif int) {
	r.Calls = append(r.Calls, fmt.Sprintf("NotifyInterfaceDown %d", iif))
}

func (r *RecordingRouting) NotifyAddAddress(iif int, addr netip.Prefix) {
	r.Calls = append(r.Calls, fmt.Sprintf("NotifyAddAddress %d %s", iif, addr))
}

func (r *RecordingRouting) NotifyRemoveAddress(iif int, addr netip.Prefix) {
	r.Calls = append(r.Calls, fmt.Sprintf("NotifyRemoveAddress %d %s", iif, addr))
}

func (r *RecordingRouting) SetIpv4(ipv4 Ipv4) {
	r.Calls = append(r.Calls, "SetIpv4")
	r.Ipv4 = ipv4
}

func (r *RecordingRouting) PrintRoutingTable(w io.Writer) error {
	r.Calls = append(r.Calls, "PrintRoutingTable")
	return nil
}
