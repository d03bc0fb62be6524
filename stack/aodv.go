package stack

import (
	"fmt"
	"io"
	"log/slog"
	"net/netip"

	"github.com/encodeous/trustmesh/sim"
	"github.com/encodeous/trustmesh/state"
	"github.com/jellydator/ttlcache/v3"
)

type routeKey = state.Pair[state.NodeId, state.NodeId]

// Aodv is the on-demand next hop substrate shared by every node of a simulation. The first lookup
// towards a destination floods the radio graph and caches the minimum hop next hop of every node.
type Aodv struct {
	channel *Channel
	addrs   *AddressTable
	log     *slog.Logger
	routes  *ttlcache.Cache[routeKey, state.NodeId]
	// Discoveries counts route discoveries
	Discoveries uint64
}

func NewAodv(ch *Channel, addrs *AddressTable, log *slog.Logger, capacity uint64) *Aodv {
	return &Aodv{
		channel: ch,
		addrs:   addrs,
		log:     log,
		routes: ttlcache.New[routeKey, state.NodeId](
			ttlcache.WithCapacity[routeKey, state.NodeId](capacity),
			ttlcache.WithDisableTouchOnHit[routeKey, state.NodeId](),
		),
	}
}

// NextHop returns the neighbor of from that lies on a shortest path to the node owning dst.
func (a *Aodv) NextHop(from state.NodeId, dst netip.Addr) (state.NodeId, error) {
	to, ok := a.addrs.Owner(dst)
	if !ok {
		return 0, fmt.Errorf("%s: %w", dst, ErrNoRouteToHost)
	}
	return a.NextHopTo(from, to)
}

func (a *Aodv) NextHopTo(from, to state.NodeId) (state.NodeId, error) {
	if from == to {
		return to, nil
	}
	key := routeKey{V1: from, V2: to}
	if item := a.routes.Get(key); item != nil {
		return item.Value(), nil
	}
	a.discover(to)
	if item := a.routes.Get(key); item != nil {
		return item.Value(), nil
	}
	return 0, fmt.Errorf("%d -> %d: %w", from, to, ErrNoRouteToHost)
}

// discover computes hop counts towards to and records, for every reachable node, the
// lowest id neighbor one hop closer.
func (a *Aodv) discover(to state.NodeId) {
	a.Discoveries++
	dist := map[state.NodeId]int{to: 0}
	queue := []state.NodeId{to}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range a.channel.Neighbors(cur) {
			if _, seen := dist[n]; !seen {
				dist[n] = dist[cur] + 1
				queue = append(queue, n)
			}
		}
	}
	for node, d := range dist {
		if node == to {
			continue
		}
		for _, n := range a.channel.Neighbors(node) {
			if nd, ok := dist[n]; ok && nd == d-1 {
				a.routes.Set(routeKey{V1: node, V2: to}, n, ttlcache.DefaultTTL)
				break
			}
		}
	}
	a.log.Debug("route discovery", "dst", to, "reachable", len(dist))
}

// AodvRouting is the default routing protocol of nodes that do not run trust mitigation.
type AodvRouting struct {
	id   state.NodeId
	aodv *Aodv
	ipv4 Ipv4
	log  *slog.Logger
}

func NewAodvRouting(id state.NodeId, aodv *Aodv, log *slog.Logger) *AodvRouting {
	return &AodvRouting{id: id, aodv: aodv, log: log}
}

func (r *AodvRouting) RouteOutput(pkt *sim.Packet, hdr Ipv4Header, oif *NetDevice) (*Route, error) {
	if r.ipv4 == nil {
		return nil, ErrIpv4NotBound
	}
	nh, err := r.aodv.NextHop(r.id, hdr.Destination)
	if err != nil {
		return nil, err
	}
	gw, _ := r.aodv.addrs.Address(nh)
	return &Route{
		Destination:  hdr.Destination,
		Source:       r.ipv4.GetAddress(0),
		Gateway:      gw,
		OutputDevice: r.ipv4.GetNetDevice(0),
	}, nil
}

func (r *AodvRouting) RouteInput(pkt *sim.Packet, hdr Ipv4Header, idev *NetDevice, cbs Callbacks) bool {
	if r.ipv4 == nil {
		r.log.Error("route input without ipv4 binding", "uid", pkt.Uid())
		return false
	}
	iif := r.ipv4.GetInterfaceForDevice(idev)
	if iif < 0 {
		r.log.Error("route input on unknown interface", "uid", pkt.Uid())
		return false
	}
	if r.ipv4.IsDestinationAddress(hdr.Destination, iif) {
		if cbs.Local == nil {
			return false
		}
		cbs.Local(pkt, hdr, iif)
		return true
	}
	route, err := r.RouteOutput(pkt, hdr, idev)
	if err != nil {
		if cbs.Error != nil {
			cbs.Error(pkt, hdr, err)
		}
		return false
	}
	if cbs.Unicast == nil {
		return false
	}
	cbs.Unicast(route, pkt, hdr)
	return true
}

func (r *AodvRouting) NotifyInterfaceUp(iif int)   {}
func (r *AodvRouting) NotifyInterfaceDown(iif int) {}

func (r *AodvRouting) NotifyAddAddress(iif int, addr netip.Prefix)    {}
func (r *AodvRouting) NotifyRemoveAddress(iif int, addr netip.Prefix) {}

func (r *AodvRouting) SetIpv4(ipv4 Ipv4) {
	r.ipv4 = ipv4
}

// PrintRoutingTable writes the cached next hops owned by this node.
func (r *AodvRouting) PrintRoutingTable(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Node: %d, AODV next hops\nDestination\tNextHop\n", r.id); err != nil {
		return err
	}
	hops := make([]state.Pair[state.NodeId, state.NodeId], 0)
	for key, item := range r.aodv.routes.Items() {
		if key.V1 == r.id {
			hops = append(hops, state.Pair[state.NodeId, state.NodeId]{V1: key.V2, V2: item.Value()})
		}
	}
	state.SortById(hops)
	for _, hop := range hops {
		if _, err := fmt.Fprintf(w, "%d\t%d\n", hop.V1, hop.V2); err != nil {
			return err
		}
	}
	return nil
}
