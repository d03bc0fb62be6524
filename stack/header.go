package stack

import (
	"errors"
	"fmt"
	"net/netip"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

const (
	Ipv4HeaderSize = header.IPv4MinimumSize
	UdpHeaderSize  = header.UDPMinimumSize
	ProtocolUdp    = uint8(header.UDPProtocolNumber)
)

var ErrMalformedHeader = errors.New("malformed ipv4 header")

// Ipv4Header is the decoded view of an IPv4 header.
type Ipv4Header struct {
	Source         netip.Addr
	Destination    netip.Addr
	Protocol       uint8
	TTL            uint8
	Identification uint16
	PayloadSize    int
}

func (h Ipv4Header) String() string {
	return fmt.Sprintf("%s > %s proto %d ttl %d id %d len %d", h.Source, h.Destination, h.Protocol, h.TTL, h.Identification, h.PayloadSize)
}

func toTcpip(a netip.Addr) tcpip.Address {
	return tcpip.AddrFrom4(a.As4())
}

func fromTcpip(a tcpip.Address) netip.Addr {
	return netip.AddrFrom4(a.As4())
}

// EncodeIpv4Header serializes h with a valid checksum.
func EncodeIpv4Header(h Ipv4Header) []byte {
	b := make([]byte, Ipv4HeaderSize)
	ip := header.IPv4(b)
	ip.Encode(&header.IPv4Fields{
		TotalLength: uint16(Ipv4HeaderSize + h.PayloadSize),
		ID:          h.Identification,
		TTL:         h.TTL,
		Protocol:    h.Protocol,
		SrcAddr:     toTcpip(h.Source),
		DstAddr:     toTcpip(h.Destination),
	})
	ip.SetChecksum(^ip.CalculateChecksum())
	return b
}

// DecodeIpv4Header parses the header at the front of b, which must hold the whole datagram.
func DecodeIpv4Header(b []byte) (Ipv4Header, error) {
	ip := header.IPv4(b)
	if !ip.IsValid(len(b)) {
		return Ipv4Header{}, fmt.Errorf("%w: %d bytes", ErrMalformedHeader, len(b))
	}
	if !ip.IsChecksumValid() {
		return Ipv4Header{}, fmt.Errorf("%w: bad checksum", ErrMalformedHeader)
	}
	return Ipv4Header{
		Source:         fromTcpip(ip.SourceAddress()),
		Destination:    fromTcpip(ip.DestinationAddress()),
		Protocol:       ip.Protocol(),
		TTL:            ip.TTL(),
		Identification: ip.ID(),
		PayloadSize:    int(ip.TotalLength()) - int(ip.HeaderLength()),
	}, nil
}

// decrementTTL rewrites the TTL of the datagram in place and fixes the checksum.
func decrementTTL(b []byte) uint8 {
	ip := header.IPv4(b)
	ttl := ip.TTL() - 1
	ip.SetTTL(ttl)
	ip.SetChecksum(0)
	ip.SetChecksum(^ip.CalculateChecksum())
	return ttl
}

// UdpHeader is the decoded view of a UDP header.
type UdpHeader struct {
	SourcePort      uint16
	DestinationPort uint16
	Length          uint16
}

// EncodeUdpHeader serializes a UDP header for a payload of the given size. The checksum is left zero.
func EncodeUdpHeader(src, dst uint16, payloadSize int) []byte {
	b := make([]byte, UdpHeaderSize)
	header.UDP(b).Encode(&header.UDPFields{
		SrcPort: src,
		DstPort: dst,
		Length:  uint16(UdpHeaderSize + payloadSize),
	})
	return b
}

func DecodeUdpHeader(b []byte) (UdpHeader, error) {
	if len(b) < UdpHeaderSize {
		return UdpHeader{}, fmt.Errorf("udp header needs %d bytes, got %d", UdpHeaderSize, len(b))
	}
	u := header.UDP(b)
	return UdpHeader{
		SourcePort:      u.SourcePort(),
		DestinationPort: u.DestinationPort(),
		Length:          u.Length(),
	}, nil
}
