// Package ipv4 implements the IPv4 header codec (RFC 791) and the
// longest-prefix-match route table used to pick an egress interface and
// next hop for a datagram.
package ipv4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"github.com/vnet-go/tcpstack/netstack"
)

const sizeHeader = netstack.SizeHeaderIPv4Min

var (
	errShortFrame  = errors.New("ipv4: buffer shorter than header")
	errBadTotalLen = errors.New("ipv4: total length field inconsistent with buffer")
	errBadIHL      = errors.New("ipv4: IHL field smaller than minimum header")
	errBadVersion  = errors.New("ipv4: version field is not 4")
)

// Frame is a view over an IPv4 header plus payload.
type Frame struct {
	buf []byte
}

// NewFrame wraps buf as an IPv4 frame. buf must be at least the 20-byte
// minimum header length; callers should still call Validate before
// trusting length-derived fields such as Payload.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{}, errShortFrame
	}
	return Frame{buf: buf}, nil
}

func (f Frame) RawData() []byte { return f.buf }

func (f Frame) ihl() uint8     { return f.buf[0] & 0xf }
func (f Frame) version() uint8 { return f.buf[0] >> 4 }

// SetVersionAndIHL sets the header's version (always 4) and Internet
// Header Length in 32-bit words.
func (f Frame) SetVersionAndIHL(version, ihl uint8) {
	f.buf[0] = version<<4 | ihl&0xf
}

// HeaderLength returns the header length in bytes, including options.
func (f Frame) HeaderLength() int { return int(f.ihl()) * 4 }

func (f Frame) TOS() uint8     { return f.buf[1] }
func (f Frame) SetTOS(v uint8) { f.buf[1] = v }

func (f Frame) TotalLength() uint16 { return binary.BigEndian.Uint16(f.buf[2:4]) }
func (f Frame) SetTotalLength(v uint16) {
	binary.BigEndian.PutUint16(f.buf[2:4], v)
}

func (f Frame) ID() uint16     { return binary.BigEndian.Uint16(f.buf[4:6]) }
func (f Frame) SetID(v uint16) { binary.BigEndian.PutUint16(f.buf[4:6], v) }

// FlagsAndFragOffset returns the combined flags+fragment-offset field.
// Fragmentation is not reassembled by this stack; packets with the MF
// flag set or a nonzero offset are rejected upstream.
func (f Frame) FlagsAndFragOffset() uint16 { return binary.BigEndian.Uint16(f.buf[6:8]) }
func (f Frame) SetFlagsAndFragOffset(v uint16) {
	binary.BigEndian.PutUint16(f.buf[6:8], v)
}

func (f Frame) TTL() uint8     { return f.buf[8] }
func (f Frame) SetTTL(v uint8) { f.buf[8] = v }

func (f Frame) Protocol() netstack.IPProto     { return netstack.IPProto(f.buf[9]) }
func (f Frame) SetProtocol(p netstack.IPProto) { f.buf[9] = uint8(p) }

func (f Frame) Checksum() uint16     { return binary.BigEndian.Uint16(f.buf[10:12]) }
func (f Frame) SetChecksum(v uint16) { binary.BigEndian.PutUint16(f.buf[10:12], v) }

func (f Frame) SourceAddr() [4]byte      { return [4]byte(f.buf[12:16]) }
func (f Frame) DestinationAddr() [4]byte { return [4]byte(f.buf[16:20]) }

func (f Frame) SetSourceAddr(a [4]byte)      { copy(f.buf[12:16], a[:]) }
func (f Frame) SetDestinationAddr(a [4]byte) { copy(f.buf[16:20], a[:]) }

// Payload returns the frame's payload, bounded by TotalLength. Call
// Validate first to ensure TotalLength and HeaderLength are sane.
func (f Frame) Payload() []byte {
	return f.buf[f.HeaderLength():f.TotalLength()]
}

// Options returns the header's variable-length options region, which
// may be zero-length.
func (f Frame) Options() []byte {
	return f.buf[sizeHeader:f.HeaderLength()]
}

// CalculateHeaderChecksum computes the standard IPv4 header checksum
// over the header excluding the checksum field itself.
func (f Frame) CalculateHeaderChecksum() uint16 {
	var c netstack.Checksum
	hl := f.HeaderLength()
	c.Write(f.buf[0:10])
	c.Write(f.buf[12:hl])
	return c.Sum16()
}

// WritePseudoHeader feeds the IPv4 pseudo-header (source, destination,
// zero, protocol, upper-layer length) into c, as required to compute a
// TCP or UDP checksum over a segment carried by this IP frame.
func (f Frame) WritePseudoHeader(c *netstack.Checksum, upperLen uint16) {
	src := f.SourceAddr()
	dst := f.DestinationAddr()
	c.Write(src[:])
	c.Write(dst[:])
	c.Add16(uint16(f.Protocol()))
	c.Add16(upperLen)
}

// Validate checks the header's internal size fields against the
// backing buffer and against RFC 791 minimums.
func (f Frame) Validate() error {
	if f.version() != 4 {
		return errBadVersion
	}
	if f.ihl() < 5 {
		return errBadIHL
	}
	tl := f.TotalLength()
	if int(tl) < f.HeaderLength() || int(tl) > len(f.buf) {
		return errBadTotalLen
	}
	return nil
}

func (f Frame) String() string {
	src := netip.AddrFrom4(f.SourceAddr())
	dst := netip.AddrFrom4(f.DestinationAddr())
	return fmt.Sprintf("IP %s src=%s dst=%s len=%d ttl=%d id=%d",
		f.Protocol(), src, dst, f.TotalLength(), f.TTL(), f.ID())
}
