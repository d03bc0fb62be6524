package core

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"testing"

	"github.com/encodeous/trustmesh/sim"
	"github.com/encodeous/trustmesh/stack"
	"github.com/encodeous/trustmesh/state"
	"github.com/google/go-cmp/cmp"
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

// TrustHarness is a Policy that records every side effect instead of acting on it.
type TrustHarness struct {
	actions  []HarnessEvent
	ipv4     stack.Ipv4
	role     state.Role
	dropProb float64
	draws    []float64
}

func NewTrustHarness(ipv4 stack.Ipv4, role state.Role, dropProb float64, draws ...float64) *TrustHarness {
	return &TrustHarness{ipv4: ipv4, role: role, dropProb: dropProb, draws: draws}
}

func (h *TrustHarness) TrustChanged(event TrustEvent, id state.NodeId, prev, cur float64) {
	h.actions = append(h.actions, MakeEvent("TRUST", event, id, cur))
}

func (h *TrustHarness) Ipv4() stack.Ipv4 {
	return h.ipv4
}

func (h *TrustHarness) Role() state.Role {
	return h.role
}

func (h *TrustHarness) DropProbability() float64 {
	return h.dropProb
}

// Draw replays the queued samples, then always returns 0.5.
func (h *TrustHarness) Draw() float64 {
	h.actions = append(h.actions, MakeEvent("DRAW"))
	if len(h.draws) == 0 {
		return 0.5
	}
	d := h.draws[0]
	h.draws = h.draws[1:]
	return d
}

func (h *TrustHarness) Subject(hdr stack.Ipv4Header) (state.NodeId, bool) {
	return stack.NodeIdOf(state.SubnetBase, hdr.Destination)
}

func (h *TrustHarness) RouteLog(event RouteEvent, hdr stack.Ipv4Header, args ...any) {
	h.actions = append(h.actions, MakeEvent("ROUTE", append([]any{event}, args...)...))
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	return strings.Join(out, "\n")
}

func (h *TrustHarness) GetActions() HarnessEvents {
	x := slices.Clone(h.actions)
	h.actions = make([]HarnessEvent, 0)
	return x
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message != msg || len(event.Args) < len(args) {
			continue
		}
		match := true
		for i, arg := range args {
			if !cmp.Equal(event.Args[i], arg) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Find returns the first event with msg whose first argument is arg.
func (e HarnessEvents) Find(msg string, arg any) (HarnessEvent, bool) {
	for _, event := range e {
		if event.Message == msg && len(event.Args) > 0 && cmp.Equal(event.Args[0], arg) {
			return event, true
		}
	}
	return HarnessEvent{}, false
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in\n", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in\n", e)
	}
}

// fakeIpv4 is a single interface binding owning addr.
type fakeIpv4 struct {
	dev  *stack.NetDevice
	addr netip.Addr
}

func newFakeIpv4(owner state.NodeId) *fakeIpv4 {
	return &fakeIpv4{dev: &stack.NetDevice{}, addr: stack.AddressOf(state.SubnetBase, owner)}
}

func (f *fakeIpv4) GetInterfaceForDevice(dev *stack.NetDevice) int {
	if dev == f.dev {
		return 0
	}
	return -1
}

func (f *fakeIpv4) IsDestinationAddress(addr netip.Addr, iif int) bool {
	return iif == 0 && addr == f.addr
}

func (f *fakeIpv4) GetAddress(iif int) netip.Addr {
	return f.addr
}

func (f *fakeIpv4) GetNetDevice(iif int) *stack.NetDevice {
	return f.dev
}

func headerTo(dst state.NodeId) stack.Ipv4Header {
	return stack.Ipv4Header{
		Source:      stack.AddressOf(state.SubnetBase, state.SenderNode),
		Destination: stack.AddressOf(state.SubnetBase, dst),
		Protocol:    stack.ProtocolUdp,
		TTL:         64,
	}
}

// callbackRecorder counts the callback RouteInput chose.
type callbackRecorder struct {
	unicast []*stack.Route
	local   int
}

func (c *callbackRecorder) callbacks() stack.Callbacks {
	return stack.Callbacks{
		Unicast: func(route *stack.Route, pkt *sim.Packet, hdr stack.Ipv4Header) {
			c.unicast = append(c.unicast, route)
		},
		Local: func(pkt *sim.Packet, hdr stack.Ipv4Header, iif int) {
			c.local++
		},
	}
}
