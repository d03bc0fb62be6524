package stack

import (
	"net/netip"
	"testing"

	"github.com/encodeous/trustmesh/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressOf(t *testing.T) {
	subnet := netip.MustParsePrefix("10.1.1.0/24")
	assert.Equal(t, netip.MustParseAddr("10.1.1.1"), AddressOf(subnet, 0))
	assert.Equal(t, netip.MustParseAddr("10.1.1.10"), AddressOf(subnet, 9))

	id, ok := NodeIdOf(subnet, netip.MustParseAddr("10.1.1.6"))
	assert.True(t, ok)
	assert.Equal(t, state.NodeId(5), id)

	_, ok = NodeIdOf(subnet, netip.MustParseAddr("10.1.1.0"))
	assert.False(t, ok)
	_, ok = NodeIdOf(subnet, netip.MustParseAddr("10.1.2.6"))
	assert.False(t, ok)
}

func TestAddressOf_CrossesOctet(t *testing.T) {
	subnet := netip.MustParsePrefix("10.1.0.0/16")
	a := AddressOf(subnet, 299)
	assert.Equal(t, netip.MustParseAddr("10.1.1.44"), a)
	id, ok := NodeIdOf(subnet, a)
	assert.True(t, ok)
	assert.Equal(t, state.NodeId(299), id)
}

func TestAddressTable(t *testing.T) {
	table := NewAddressTable(netip.MustParsePrefix("10.1.1.0/24"))
	a, err := table.Assign(4)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("10.1.1.5"), a)

	owner, ok := table.Owner(a)
	assert.True(t, ok)
	assert.Equal(t, state.NodeId(4), owner)

	_, ok = table.Owner(netip.MustParseAddr("10.1.1.6"))
	assert.False(t, ok)

	back, ok := table.Address(4)
	assert.True(t, ok)
	assert.Equal(t, a, back)

	_, err = table.Assign(254)
	assert.ErrorContains(t, err, "exhausted")
}

func TestGridPosition(t *testing.T) {
	assert.Equal(t, Vector{0, 0}, GridPosition(0, 10, 50))
	assert.Equal(t, Vector{450, 0}, GridPosition(9, 10, 50))
	assert.Equal(t, Vector{50, 100}, GridPosition(21, 10, 50))
	assert.InDelta(t, 70.71, GridPosition(0, 10, 50).Distance(GridPosition(11, 10, 50)), 0.01)
}
