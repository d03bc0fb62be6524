package stack

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/encodeous/trustmesh/sim"
)

var (
	ErrPortInUse    = errors.New("port already bound")
	ErrNotConnected = errors.New("socket is not connected")
	ErrClosed       = errors.New("socket is closed")
)

type RecvCallback func(sock *UdpSocket, pkt *sim.Packet, from netip.AddrPort)

// UdpSocket is a datagram socket on a node's IPv4 layer.
type UdpSocket struct {
	l3     *Ipv4L3
	port   uint16
	remote netip.AddrPort
	closed bool
	recv   RecvCallback
}

func (l3 *Ipv4L3) NewUdpSocket() *UdpSocket {
	return &UdpSocket{l3: l3}
}

func (s *UdpSocket) Bind(port uint16) error {
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.l3.sockets[port]; ok {
		return fmt.Errorf("%d: %w", port, ErrPortInUse)
	}
	if s.port != 0 {
		delete(s.l3.sockets, s.port)
	}
	s.port = port
	s.l3.sockets[port] = s
	return nil
}

// Connect sets the default destination, binding an ephemeral port if needed.
func (s *UdpSocket) Connect(remote netip.AddrPort) error {
	if s.closed {
		return ErrClosed
	}
	if s.port == 0 {
		for {
			p := s.l3.ephemeral
			s.l3.ephemeral++
			if _, ok := s.l3.sockets[p]; !ok {
				if err := s.Bind(p); err != nil {
					return err
				}
				break
			}
		}
	}
	s.remote = remote
	return nil
}

func (s *UdpSocket) LocalPort() uint16 {
	return s.port
}

// Send transmits pkt to the connected peer and returns the number of payload bytes accepted.
func (s *UdpSocket) Send(pkt *sim.Packet) (int, error) {
	if s.closed {
		return -1, ErrClosed
	}
	if !s.remote.IsValid() {
		return -1, ErrNotConnected
	}
	dgram := pkt.Copy()
	dgram.AddHeader(EncodeUdpHeader(s.port, s.remote.Port(), pkt.Size()))
	if err := s.l3.Send(dgram, s.remote.Addr(), ProtocolUdp); err != nil {
		return -1, err
	}
	return pkt.Size(), nil
}

func (s *UdpSocket) SetRecvCallback(cb RecvCallback) {
	s.recv = cb
}

func (s *UdpSocket) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.port != 0 && s.l3.sockets[s.port] == s {
		delete(s.l3.sockets, s.port)
	}
}

func (s *UdpSocket) deliver(pkt *sim.Packet, from netip.AddrPort) {
	if s.recv != nil {
		s.recv(s, pkt, from)
	}
}
