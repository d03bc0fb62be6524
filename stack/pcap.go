package stack

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/encodeous/trustmesh/state"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// PcapTracer writes every frame on the channel as a raw IPv4 record. Timestamps are simulation time from the epoch.
type PcapTracer struct {
	w      *pcapgo.Writer
	closer io.Closer
	log    *slog.Logger
	// Frames counts records written
	Frames uint64
}

func NewPcapTracer(w io.Writer, log *slog.Logger) (*PcapTracer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65535, layers.LinkTypeRaw); err != nil {
		return nil, err
	}
	return &PcapTracer{w: pw, log: log}, nil
}

func CreatePcapTracer(path string, log *slog.Logger) (*PcapTracer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	t, err := NewPcapTracer(f, log)
	if err != nil {
		f.Close()
		return nil, err
	}
	t.closer = f
	return t, nil
}

func (t *PcapTracer) TraceFrame(at time.Duration, from, to state.NodeId, frame []byte) {
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Unix(0, 0).Add(at),
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	if err := t.w.WritePacket(ci, frame); err != nil {
		t.log.Error("failed to write pcap record", "from", from, "to", to, "err", err)
		return
	}
	t.Frames++
}

func (t *PcapTracer) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}
