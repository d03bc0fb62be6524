package sim

import (
	"errors"
	"fmt"
	"maps"
	"sync/atomic"
)

var ErrDuplicateTag = errors.New("packet already carries this tag")

var nextUid atomic.Uint64

// Tag is metadata that travels with a packet without being part of its bytes.
type Tag interface {
	TagName() string
	MarshalTag() ([]byte, error)
	UnmarshalTag([]byte) error
}

// Packet is a byte buffer with headers prepended in front of the payload, plus out of band tags.
type Packet struct {
	uid  uint64
	data []byte
	tags map[string][]byte
}

// NewPacket creates a zero filled payload of the given size.
func NewPacket(size int) *Packet {
	return NewPacketFromBytes(make([]byte, size))
}

func NewPacketFromBytes(b []byte) *Packet {
	return &Packet{
		uid:  nextUid.Add(1),
		data: b,
		tags: make(map[string][]byte),
	}
}

func (p *Packet) Uid() uint64 {
	return p.uid
}

func (p *Packet) Size() int {
	return len(p.data)
}

// Bytes returns the serialized packet. The slice aliases the packet.
func (p *Packet) Bytes() []byte {
	return p.data
}

// AddHeader prepends a serialized header.
func (p *Packet) AddHeader(h []byte) {
	buf := make([]byte, len(h)+len(p.data))
	copy(buf, h)
	copy(buf[len(h):], p.data)
	p.data = buf
}

// RemoveHeader strips n bytes from the front and returns them.
func (p *Packet) RemoveHeader(n int) ([]byte, error) {
	if n > len(p.data) {
		return nil, fmt.Errorf("cannot remove %d byte header from %d byte packet", n, len(p.data))
	}
	h := p.data[:n]
	p.data = p.data[n:]
	return h, nil
}

// Copy returns an independent packet with the same uid, bytes and tags.
func (p *Packet) Copy() *Packet {
	return &Packet{
		uid:  p.uid,
		data: append([]byte(nil), p.data...),
		tags: maps.Clone(p.tags),
	}
}

func (p *Packet) AddPacketTag(tag Tag) error {
	if _, ok := p.tags[tag.TagName()]; ok {
		return fmt.Errorf("%s: %w", tag.TagName(), ErrDuplicateTag)
	}
	b, err := tag.MarshalTag()
	if err != nil {
		return err
	}
	p.tags[tag.TagName()] = b
	return nil
}

// PeekPacketTag fills tag if the packet carries a well formed tag of the same kind.
func (p *Packet) PeekPacketTag(tag Tag) bool {
	b, ok := p.tags[tag.TagName()]
	if !ok {
		return false
	}
	return tag.UnmarshalTag(b) == nil
}

func (p *Packet) RemovePacketTag(tag Tag) bool {
	found := p.PeekPacketTag(tag)
	delete(p.tags, tag.TagName())
	return found
}
