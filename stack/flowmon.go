package stack

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/netip"
	"os"
	"slices"
	"time"

	"github.com/encodeous/trustmesh/sim"
	"github.com/encodeous/trustmesh/state"
)

// FlowTuple identifies a flow by its IPv4/UDP five tuple.
type FlowTuple struct {
	Source          netip.Addr
	Destination     netip.Addr
	Protocol        uint8
	SourcePort      uint16
	DestinationPort uint16
}

type FlowStats struct {
	TimeFirstTx    time.Duration
	TimeFirstRx    time.Duration
	TimeLastTx     time.Duration
	TimeLastRx     time.Duration
	DelaySum       time.Duration
	JitterSum      time.Duration
	LastDelay      time.Duration
	TxBytes        uint64
	TxPackets      uint64
	RxBytes        uint64
	RxPackets      uint64
	LostPackets    uint64
	TimesForwarded uint64
	Drops          map[DropReason]uint64
}

type inflight struct {
	flow uint32
	sent time.Duration
}

// FlowMonitor tracks per flow statistics by observing every node's IPv4 layer.
type FlowMonitor struct {
	flows    map[FlowTuple]uint32
	tuples   []FlowTuple
	stats    map[uint32]*FlowStats
	inflight map[uint64]inflight
	// MaxPerHopDelay bounds how long a packet may be in flight before it counts as lost
	MaxPerHopDelay time.Duration
}

func NewFlowMonitor() *FlowMonitor {
	return &FlowMonitor{
		flows:          make(map[FlowTuple]uint32),
		stats:          make(map[uint32]*FlowStats),
		inflight:       make(map[uint64]inflight),
		MaxPerHopDelay: 10 * time.Second,
	}
}

// Install observes l3.
func (m *FlowMonitor) Install(l3 *Ipv4L3) {
	l3.AddObserver(m)
}

func classify(pkt *sim.Packet, hdr Ipv4Header) (FlowTuple, bool) {
	if hdr.Protocol != ProtocolUdp || pkt.Size() < Ipv4HeaderSize+UdpHeaderSize {
		return FlowTuple{}, false
	}
	udp, err := DecodeUdpHeader(pkt.Bytes()[Ipv4HeaderSize:])
	if err != nil {
		return FlowTuple{}, false
	}
	return FlowTuple{hdr.Source, hdr.Destination, hdr.Protocol, udp.SourcePort, udp.DestinationPort}, true
}

func (m *FlowMonitor) flowOf(t FlowTuple) (uint32, *FlowStats) {
	id, ok := m.flows[t]
	if !ok {
		m.tuples = append(m.tuples, t)
		id = uint32(len(m.tuples))
		m.flows[t] = id
		m.stats[id] = &FlowStats{Drops: make(map[DropReason]uint64)}
	}
	return id, m.stats[id]
}

func (m *FlowMonitor) OnSend(at time.Duration, node state.NodeId, pkt *sim.Packet, hdr Ipv4Header) {
	t, ok := classify(pkt, hdr)
	if !ok {
		return
	}
	id, st := m.flowOf(t)
	if st.TxPackets == 0 {
		st.TimeFirstTx = at
	}
	st.TimeLastTx = at
	st.TxPackets++
	st.TxBytes += uint64(pkt.Size())
	m.inflight[pkt.Uid()] = inflight{flow: id, sent: at}
}

func (m *FlowMonitor) OnForward(at time.Duration, node state.NodeId, pkt *sim.Packet, hdr Ipv4Header) {
	if f, ok := m.inflight[pkt.Uid()]; ok {
		m.stats[f.flow].TimesForwarded++
	}
}

func (m *FlowMonitor) OnDeliver(at time.Duration, node state.NodeId, pkt *sim.Packet, hdr Ipv4Header) {
	f, ok := m.inflight[pkt.Uid()]
	if !ok {
		return
	}
	delete(m.inflight, pkt.Uid())
	st := m.stats[f.flow]
	delay := at - f.sent
	if st.RxPackets == 0 {
		st.TimeFirstRx = at
	} else {
		st.JitterSum += (delay - st.LastDelay).Abs()
	}
	st.TimeLastRx = at
	st.LastDelay = delay
	st.DelaySum += delay
	st.RxPackets++
	st.RxBytes += uint64(pkt.Size())
}

func (m *FlowMonitor) OnDrop(at time.Duration, node state.NodeId, pkt *sim.Packet, hdr Ipv4Header, reason DropReason) {
	f, ok := m.inflight[pkt.Uid()]
	if !ok {
		return
	}
	delete(m.inflight, pkt.Uid())
	st := m.stats[f.flow]
	st.LostPackets++
	st.Drops[reason]++
}

// CheckForLostPackets counts packets in flight for longer than MaxPerHopDelay as lost.
func (m *FlowMonitor) CheckForLostPackets(now time.Duration) {
	for uid, f := range m.inflight {
		if now-f.sent > m.MaxPerHopDelay {
			m.stats[f.flow].LostPackets++
			delete(m.inflight, uid)
		}
	}
}

// Stats returns the statistics of a flow, ids start at 1.
func (m *FlowMonitor) Stats(id uint32) (FlowTuple, *FlowStats, bool) {
	st, ok := m.stats[id]
	if !ok {
		return FlowTuple{}, nil, false
	}
	return m.tuples[id-1], st, true
}

func (m *FlowMonitor) FlowCount() int {
	return len(m.tuples)
}

type xmlDrop struct {
	ReasonCode int    `xml:"reasonCode,attr"`
	Number     uint64 `xml:"number,attr"`
}

type xmlFlowStats struct {
	FlowId         uint32    `xml:"flowId,attr"`
	TimeFirstTx    string    `xml:"timeFirstTxPacket,attr"`
	TimeFirstRx    string    `xml:"timeFirstRxPacket,attr"`
	TimeLastTx     string    `xml:"timeLastTxPacket,attr"`
	TimeLastRx     string    `xml:"timeLastRxPacket,attr"`
	DelaySum       string    `xml:"delaySum,attr"`
	JitterSum      string    `xml:"jitterSum,attr"`
	LastDelay      string    `xml:"lastDelay,attr"`
	TxBytes        uint64    `xml:"txBytes,attr"`
	TxPackets      uint64    `xml:"txPackets,attr"`
	RxBytes        uint64    `xml:"rxBytes,attr"`
	RxPackets      uint64    `xml:"rxPackets,attr"`
	LostPackets    uint64    `xml:"lostPackets,attr"`
	TimesForwarded uint64    `xml:"timesForwarded,attr"`
	Drops          []xmlDrop `xml:"packetsDropped"`
}

type xmlClassifierFlow struct {
	FlowId          uint32 `xml:"flowId,attr"`
	SourceAddress   string `xml:"sourceAddress,attr"`
	DestAddress     string `xml:"destinationAddress,attr"`
	Protocol        uint8  `xml:"protocol,attr"`
	SourcePort      uint16 `xml:"sourcePort,attr"`
	DestinationPort uint16 `xml:"destinationPort,attr"`
}

type xmlFlowMonitor struct {
	XMLName    xml.Name            `xml:"FlowMonitor"`
	FlowStats  []xmlFlowStats      `xml:"FlowStats>Flow"`
	Classifier []xmlClassifierFlow `xml:"Ipv4FlowClassifier>Flow"`
}

func nsString(d time.Duration) string {
	return fmt.Sprintf("%+dns", d.Nanoseconds())
}

// WriteXml serializes every flow in the FlowMonitor layout.
func (m *FlowMonitor) WriteXml(w io.Writer) error {
	doc := xmlFlowMonitor{}
	for i, t := range m.tuples {
		id := uint32(i + 1)
		st := m.stats[id]
		fs := xmlFlowStats{
			FlowId:         id,
			TimeFirstTx:    nsString(st.TimeFirstTx),
			TimeFirstRx:    nsString(st.TimeFirstRx),
			TimeLastTx:     nsString(st.TimeLastTx),
			TimeLastRx:     nsString(st.TimeLastRx),
			DelaySum:       nsString(st.DelaySum),
			JitterSum:      nsString(st.JitterSum),
			LastDelay:      nsString(st.LastDelay),
			TxBytes:        st.TxBytes,
			TxPackets:      st.TxPackets,
			RxBytes:        st.RxBytes,
			RxPackets:      st.RxPackets,
			LostPackets:    st.LostPackets,
			TimesForwarded: st.TimesForwarded,
		}
		reasons := make([]DropReason, 0, len(st.Drops))
		for r := range st.Drops {
			reasons = append(reasons, r)
		}
		slices.Sort(reasons)
		for _, r := range reasons {
			fs.Drops = append(fs.Drops, xmlDrop{ReasonCode: int(r), Number: st.Drops[r]})
		}
		doc.FlowStats = append(doc.FlowStats, fs)
		doc.Classifier = append(doc.Classifier, xmlClassifierFlow{
			FlowId:          id,
			SourceAddress:   t.Source.String(),
			DestAddress:     t.Destination.String(),
			Protocol:        t.Protocol,
			SourcePort:      t.SourcePort,
			DestinationPort: t.DestinationPort,
		})
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func (m *FlowMonitor) SerializeToXmlFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = m.WriteXml(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
