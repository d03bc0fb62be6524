package stack

import (
	"fmt"
	"net/netip"

	"github.com/encodeous/trustmesh/state"
	"github.com/gaissmai/bart"
)

// AddressOf returns the address assigned to node id: the (id+1)th host of the subnet.
func AddressOf(subnet netip.Prefix, id state.NodeId) netip.Addr {
	a := subnet.Masked().Addr().As4()
	v := uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
	v += uint32(id) + 1
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

// NodeIdOf derives a node id from the host part of addr, the inverse of AddressOf.
func NodeIdOf(subnet netip.Prefix, addr netip.Addr) (state.NodeId, bool) {
	if !addr.Is4() || !subnet.Contains(addr) {
		return 0, false
	}
	a := addr.As4()
	b := subnet.Masked().Addr().As4()
	off := (uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])) -
		(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
	if off == 0 {
		return 0, false
	}
	return state.NodeId(off - 1), true
}

// AddressTable records which node owns each assigned address.
type AddressTable struct {
	subnet netip.Prefix
	owners bart.Table[state.NodeId]
	addrs  map[state.NodeId]netip.Addr
}

func NewAddressTable(subnet netip.Prefix) *AddressTable {
	return &AddressTable{
		subnet: subnet.Masked(),
		addrs:  make(map[state.NodeId]netip.Addr),
	}
}

// Assign gives node id its address from the subnet, like an address helper walking the pool.
func (t *AddressTable) Assign(id state.NodeId) (netip.Addr, error) {
	addr := AddressOf(t.subnet, id)
	if !t.subnet.Contains(addr) || addr == lastAddr(t.subnet) {
		return netip.Addr{}, fmt.Errorf("node %d: subnet %s exhausted", id, t.subnet)
	}
	t.owners.Insert(netip.PrefixFrom(addr, addr.BitLen()), id)
	t.addrs[id] = addr
	return addr, nil
}

// Owner returns the node that owns addr.
func (t *AddressTable) Owner(addr netip.Addr) (state.NodeId, bool) {
	return t.owners.Lookup(addr)
}

// Address returns the address assigned to id, if any.
func (t *AddressTable) Address(id state.NodeId) (netip.Addr, bool) {
	a, ok := t.addrs[id]
	return a, ok
}

func (t *AddressTable) Subnet() netip.Prefix {
	return t.subnet
}

func lastAddr(p netip.Prefix) netip.Addr {
	a := p.Masked().Addr().As4()
	hostBits := 32 - p.Bits()
	v := uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
	v |= uint32(1)<<hostBits - 1
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
