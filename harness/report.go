package harness

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/encodeous/trustmesh/state"
)

// Report is the outcome of one simulation run.
type Report struct {
	Name        string
	Nodes       uint32
	SimTime     time.Duration
	PacketSize  int
	Sent        uint64
	Received    uint64
	TotalDelay  time.Duration
	GlobalTrust []state.Pair[state.NodeId, float64]
	// Blacklists holds the blacklist of every node running trust routing, by node id
	Blacklists map[state.NodeId][]state.NodeId
}

func (r *Report) Lost() uint64 {
	if r.Received > r.Sent {
		return 0
	}
	return r.Sent - r.Received
}

// LossRatio is in percent. A run that sent nothing reports 0.
func (r *Report) LossRatio() float64 {
	if r.Sent == 0 {
		return 0
	}
	return float64(r.Lost()) / float64(r.Sent) * 100
}

func (r *Report) DeliveryRatio() float64 {
	if r.Sent == 0 {
		return 0
	}
	return float64(r.Received) / float64(r.Sent) * 100
}

// Throughput in Kbps of udp payload.
func (r *Report) Throughput() float64 {
	secs := r.SimTime.Seconds()
	if secs <= 0 {
		return 0
	}
	size := r.PacketSize
	if size == 0 {
		size = state.PacketSize
	}
	return float64(r.Received) * float64(size) * 8 / (secs * 1000)
}

// AverageDelay is in seconds, or -1 when nothing was received.
func (r *Report) AverageDelay() float64 {
	if r.Received == 0 {
		return -1
	}
	return r.TotalDelay.Seconds() / float64(r.Received)
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func (r *Report) WriteReport(w io.Writer) error {
	lines := []string{
		"",
		"-------- Simulation Results --------",
		fmt.Sprintf("Total Nodes: %d", r.Nodes),
		fmt.Sprintf("Simulation Time: %s seconds", state.FormatSeconds(r.SimTime.Seconds())),
		fmt.Sprintf("Sent Packets: %d", r.Sent),
		fmt.Sprintf("Received Packets: %d", r.Received),
		fmt.Sprintf("Lost Packets: %d", r.Lost()),
		fmt.Sprintf("Packet Loss Ratio: %s%%", formatMetric(r.LossRatio())),
		fmt.Sprintf("Packet Delivery Ratio: %s%%", formatMetric(r.DeliveryRatio())),
		fmt.Sprintf("Average Throughput: %s Kbps", formatMetric(r.Throughput())),
		fmt.Sprintf("Average End-to-End Delay: %s seconds", formatMetric(r.AverageDelay())),
		"-------- Global Trust Scores --------",
	}
	for _, e := range r.GlobalTrust {
		lines = append(lines, fmt.Sprintf("Node %d: Trust Score = %s", e.V1, state.FormatScore(e.V2)))
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
