// Package arp implements the Address Resolution Protocol (RFC 826) for
// Ethernet/IPv4, and the resolver contract that the IP output path uses
// to map a next-hop IPv4 address to a link-layer address before a
// segment can be handed to the interface.
package arp

import (
	"encoding/binary"
	"errors"

	"github.com/vnet-go/tcpstack/ethernet"
	"github.com/vnet-go/tcpstack/netstack"
)

const sizeHeader = 28 // fixed ARP header for Ethernet/IPv4: 8 + 2*(6+4)

var errShortFrame = errors.New("arp: frame shorter than header")

// Operation is the ARP opcode.
type Operation uint16

const (
	OpRequest Operation = 1
	OpReply   Operation = 2
)

// Frame is a view over an ARP packet specialized to 6-byte hardware
// addresses and 4-byte protocol (IPv4) addresses, which covers every
// case this stack cares about.
type Frame struct {
	buf []byte
}

// NewFrame wraps buf as an ARP frame. Returns an error if buf is
// shorter than the fixed 28-byte Ethernet/IPv4 ARP header.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{}, errShortFrame
	}
	return Frame{buf: buf[:sizeHeader]}, nil
}

func (f Frame) RawData() []byte { return f.buf }

func (f Frame) HType() uint16 { return binary.BigEndian.Uint16(f.buf[0:2]) }
func (f Frame) PType() netstack.EtherType {
	return netstack.EtherType(binary.BigEndian.Uint16(f.buf[2:4]))
}
func (f Frame) HLen() uint8 { return f.buf[4] }
func (f Frame) PLen() uint8 { return f.buf[5] }

func (f Frame) Operation() Operation { return Operation(binary.BigEndian.Uint16(f.buf[6:8])) }
func (f Frame) SetOperation(op Operation) {
	binary.BigEndian.PutUint16(f.buf[6:8], uint16(op))
}

// SetHeader fills in the fixed hardware/protocol type and length fields
// for an Ethernet/IPv4 ARP packet.
func (f Frame) SetHeader() {
	binary.BigEndian.PutUint16(f.buf[0:2], 1) // Ethernet
	binary.BigEndian.PutUint16(f.buf[2:4], uint16(netstack.EtherTypeIPv4))
	f.buf[4] = 6
	f.buf[5] = 4
}

func (f Frame) SenderHW() ethernet.Addr     { return ethernet.Addr(f.buf[8:14]) }
func (f Frame) SenderProto() [4]byte        { return [4]byte(f.buf[14:18]) }
func (f Frame) TargetHW() ethernet.Addr     { return ethernet.Addr(f.buf[18:24]) }
func (f Frame) TargetProto() [4]byte        { return [4]byte(f.buf[24:28]) }

func (f Frame) SetSenderHW(a ethernet.Addr)  { copy(f.buf[8:14], a[:]) }
func (f Frame) SetSenderProto(ip [4]byte)    { copy(f.buf[14:18], ip[:]) }
func (f Frame) SetTargetHW(a ethernet.Addr)  { copy(f.buf[18:24], a[:]) }
func (f Frame) SetTargetProto(ip [4]byte)    { copy(f.buf[24:28], ip[:]) }
