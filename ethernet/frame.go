// Package ethernet implements a minimal 14-byte Ethernet II frame codec,
// enough to carry IPv4/ARP payloads over the loopback and dummy test
// interfaces in package stack. VLAN tagging and other link-layer
// concerns are out of scope.
package ethernet

import (
	"encoding/binary"
	"errors"

	"github.com/vnet-go/tcpstack/netstack"
)

const sizeHeader = 14

var errShortFrame = errors.New("ethernet: frame shorter than header")

// Addr is a 6-byte hardware (MAC) address.
type Addr [6]byte

// Broadcast is the all-ones Ethernet broadcast address.
var Broadcast = Addr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Frame is a thin view over an Ethernet II header plus payload.
type Frame struct {
	buf []byte
}

// NewFrame wraps buf as an Ethernet frame. Returns an error if buf is
// shorter than the 14-byte fixed header.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{}, errShortFrame
	}
	return Frame{buf: buf}, nil
}

func (f Frame) RawData() []byte { return f.buf }

func (f Frame) Destination() Addr { return Addr(f.buf[0:6]) }
func (f Frame) Source() Addr      { return Addr(f.buf[6:12]) }

func (f Frame) SetDestination(a Addr) { copy(f.buf[0:6], a[:]) }
func (f Frame) SetSource(a Addr)      { copy(f.buf[6:12], a[:]) }

func (f Frame) EtherType() netstack.EtherType {
	return netstack.EtherType(binary.BigEndian.Uint16(f.buf[12:14]))
}

func (f Frame) SetEtherType(et netstack.EtherType) {
	binary.BigEndian.PutUint16(f.buf[12:14], uint16(et))
}

// Payload returns the frame's payload, i.e. everything after the header.
func (f Frame) Payload() []byte { return f.buf[sizeHeader:] }
