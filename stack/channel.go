package stack

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/encodeous/trustmesh/perf"
	"github.com/encodeous/trustmesh/sim"
	"github.com/encodeous/trustmesh/state"
	"github.com/iti/rngstream"
)

var ErrNotInRange = errors.New("receiver is out of radio range")

// FrameTracer observes every frame put on the channel.
type FrameTracer interface {
	TraceFrame(at time.Duration, from, to state.NodeId, frame []byte)
}

// Channel is a shared wireless medium: every device within range of the sender can receive.
type Channel struct {
	sim      *sim.Simulator
	log      *slog.Logger
	devices  map[state.NodeId]*NetDevice
	rangeM   float64
	dataRate uint64
	loss     float64
	lossRng  sim.Uniform
	tracers  []FrameTracer
	// Lost counts frames dropped by the medium
	Lost uint64
}

func NewChannel(s *sim.Simulator, log *slog.Logger, rangeM float64, dataRate uint64, loss float64) *Channel {
	return &Channel{
		sim:      s,
		log:      log,
		devices:  make(map[state.NodeId]*NetDevice),
		rangeM:   rangeM,
		dataRate: dataRate,
		loss:     loss,
		lossRng:  sim.NewStream("channel-loss"),
	}
}

func (c *Channel) AddTracer(t FrameTracer) {
	c.tracers = append(c.tracers, t)
}

// Attach creates a device for node id at pos.
func (c *Channel) Attach(id state.NodeId, pos Vector) *NetDevice {
	dev := &NetDevice{
		node:    id,
		pos:     pos,
		channel: c,
		rng:     sim.NewStream(fmt.Sprintf("dev-%d", id)),
	}
	c.devices[id] = dev
	return dev
}

func (c *Channel) Device(id state.NodeId) (*NetDevice, bool) {
	d, ok := c.devices[id]
	return d, ok
}

func (c *Channel) InRange(a, b state.NodeId) bool {
	da, ok1 := c.devices[a]
	db, ok2 := c.devices[b]
	return ok1 && ok2 && a != b && da.pos.Distance(db.pos) <= c.rangeM
}

// Neighbors lists the nodes that can hear id, ordered by id.
func (c *Channel) Neighbors(id state.NodeId) []state.NodeId {
	out := make([]state.NodeId, 0)
	for other := range c.devices {
		if c.InRange(id, other) {
			out = append(out, other)
		}
	}
	slices.Sort(out)
	return out
}

// Airtime is how long a frame carrying size bytes of IP datagram occupies the medium.
func (c *Channel) Airtime(size int) time.Duration {
	bits := uint64(size+state.FrameOverhead) * 8
	return time.Duration(bits * uint64(time.Second) / c.dataRate)
}

func (c *Channel) transmit(from *NetDevice, to state.NodeId, pkt *sim.Packet) error {
	if !c.InRange(from.node, to) {
		return fmt.Errorf("%d -> %d: %w", from.node, to, ErrNotInRange)
	}
	now := c.sim.Now()
	backoff := time.Duration(from.rng.RandInt(0, state.MaxBackoff)) * state.SlotTime
	start := max(now, from.busyUntil) + state.Difs + backoff
	end := start + c.Airtime(pkt.Size())
	from.busyUntil = end
	from.TxFrames++
	perf.FramesPerSecond.Add(1)
	perf.FrameBytesPerSecond.Add(float64(pkt.Size()))

	frame := pkt.Copy()
	c.sim.ScheduleAt(start, func() {
		for _, t := range c.tracers {
			t.TraceFrame(c.sim.Now(), from.node, to, frame.Bytes())
		}
	})
	c.sim.ScheduleAt(end, func() {
		if c.loss > 0 && c.lossRng.RandU01() < c.loss {
			c.Lost++
			perf.FramesLostPerSecond.Add(1)
			c.log.Debug("frame lost", "from", from.node, "to", to, "uid", frame.Uid())
			return
		}
		c.devices[to].receive(frame, from.node)
	})
	return nil
}

// ReceiveCallback is invoked when a frame addressed to the device arrives.
type ReceiveCallback func(dev *NetDevice, pkt *sim.Packet, from state.NodeId)

// NetDevice is a node's radio. It serializes its own transmissions and contends with a random backoff.
type NetDevice struct {
	node      state.NodeId
	pos       Vector
	channel   *Channel
	rng       *rngstream.RngStream
	busyUntil time.Duration
	rx        ReceiveCallback
	TxFrames  uint64
	RxFrames  uint64
}

func (d *NetDevice) Node() state.NodeId {
	return d.node
}

func (d *NetDevice) Position() Vector {
	return d.pos
}

func (d *NetDevice) SetReceiveCallback(cb ReceiveCallback) {
	d.rx = cb
}

// Send transmits pkt to the neighbor to. The frame is delivered after contention and airtime.
func (d *NetDevice) Send(pkt *sim.Packet, to state.NodeId) error {
	return d.channel.transmit(d, to, pkt)
}

func (d *NetDevice) receive(pkt *sim.Packet, from state.NodeId) {
	d.RxFrames++
	if d.rx != nil {
		d.rx(d, pkt, from)
	}
}
