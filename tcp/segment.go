package tcp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/vnet-go/tcpstack/netstack"
)

const sizeHeader = netstack.SizeHeaderTCPMin

var errShortFrame = errors.New("tcp: buffer shorter than 20-byte header")

// Segment represents an incoming or outgoing TCP segment in the
// sequence-number space, decoupled from its wire encoding.
type Segment struct {
	SEQ     Value // sequence number of the first octet; if SYN is set, the ISN
	ACK     Value // acknowledgment number, meaningful when ACK flag is set
	DATALEN Size  // payload length, not counting SYN/FIN
	WND     Size  // advertised window
	Flags   Flags
}

// LEN returns the sequence-number-consuming length of the segment:
// payload length plus one for each of SYN and FIN present.
func (seg Segment) LEN() Size {
	l := seg.DATALEN
	if seg.Flags.HasAny(FlagSYN) {
		l++
	}
	if seg.Flags.HasAny(FlagFIN) {
		l++
	}
	return l
}

// Last returns the sequence number of the segment's final octet.
func (seg Segment) Last() Value {
	l := seg.LEN()
	if l == 0 {
		return seg.SEQ
	}
	return Add(seg.SEQ, l) - 1
}

func (seg Segment) isFirstSYN() bool {
	return seg.Flags == FlagSYN && seg.ACK == 0 && seg.DATALEN == 0
}

func (seg Segment) String() string {
	return fmt.Sprintf("<SEQ=%d><ACK=%d><WND=%d>%s DATA=%d", seg.SEQ, seg.ACK, seg.WND, seg.Flags, seg.DATALEN)
}

// Frame is a view over a TCP header plus payload.
type Frame struct {
	buf []byte
}

// NewFrame wraps buf as a TCP frame. buf must be at least the 20-byte
// minimum header length.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{}, errShortFrame
	}
	return Frame{buf: buf}, nil
}

func (f Frame) RawData() []byte { return f.buf }

func (f Frame) SourcePort() uint16      { return binary.BigEndian.Uint16(f.buf[0:2]) }
func (f Frame) SetSourcePort(v uint16)  { binary.BigEndian.PutUint16(f.buf[0:2], v) }
func (f Frame) DestPort() uint16        { return binary.BigEndian.Uint16(f.buf[2:4]) }
func (f Frame) SetDestPort(v uint16)    { binary.BigEndian.PutUint16(f.buf[2:4], v) }

func (f Frame) Seq() Value     { return Value(binary.BigEndian.Uint32(f.buf[4:8])) }
func (f Frame) SetSeq(v Value) { binary.BigEndian.PutUint32(f.buf[4:8], uint32(v)) }
func (f Frame) Ack() Value     { return Value(binary.BigEndian.Uint32(f.buf[8:12])) }
func (f Frame) SetAck(v Value) { binary.BigEndian.PutUint32(f.buf[8:12], uint32(v)) }

// OffsetAndFlags decodes the data-offset (in 32-bit words) and flags
// packed into the 13th/14th header bytes.
func (f Frame) OffsetAndFlags() (offset uint8, flags Flags) {
	v := binary.BigEndian.Uint16(f.buf[12:14])
	return uint8(v >> 12), Flags(v).Mask()
}

// SetOffsetAndFlags is only used when emitting segments, always with
// offset==5 (no options); the offset nibble is honoured on receive to
// locate the payload but never produced above 5 on send.
func (f Frame) SetOffsetAndFlags(offset uint8, flags Flags) {
	v := uint16(offset)<<12 | uint16(flags.Mask())
	binary.BigEndian.PutUint16(f.buf[12:14], v)
}

// HeaderLength returns the header length in bytes as derived from the
// data-offset field, including any options.
func (f Frame) HeaderLength() int {
	offset, _ := f.OffsetAndFlags()
	return 4 * int(offset)
}

func (f Frame) Window() uint16     { return binary.BigEndian.Uint16(f.buf[14:16]) }
func (f Frame) SetWindow(v uint16) { binary.BigEndian.PutUint16(f.buf[14:16], v) }

func (f Frame) Checksum() uint16     { return binary.BigEndian.Uint16(f.buf[16:18]) }
func (f Frame) SetChecksum(v uint16) { binary.BigEndian.PutUint16(f.buf[16:18], v) }

func (f Frame) UrgentPtr() uint16     { return binary.BigEndian.Uint16(f.buf[18:20]) }
func (f Frame) SetUrgentPtr(v uint16) { binary.BigEndian.PutUint16(f.buf[18:20], v) }

// Payload returns everything after the header, using the data-offset
// field (HeaderLength) to skip any options.
func (f Frame) Payload() []byte {
	return f.buf[f.HeaderLength():]
}

// Options returns the header's variable-length options region.
func (f Frame) Options() []byte {
	return f.buf[sizeHeader:f.HeaderLength()]
}

// ToSegment converts the frame's fixed fields plus a caller-supplied
// payload length into a Segment.
func (f Frame) ToSegment(payloadLen int) Segment {
	_, flags := f.OffsetAndFlags()
	return Segment{
		SEQ:     f.Seq(),
		ACK:     f.Ack(),
		WND:     Size(f.Window()),
		DATALEN: Size(payloadLen),
		Flags:   flags,
	}
}

// SetHeader writes the sequence, ack, offset/flags and window fields of
// seg into the frame. offset is in 32-bit words; this stack always
// writes offset==5 since it never emits options.
func (f Frame) SetHeader(seg Segment, offset uint8) {
	if seg.WND > math.MaxUint16 {
		panic("tcp: window overflow")
	}
	f.SetSeq(seg.SEQ)
	f.SetAck(seg.ACK)
	f.SetOffsetAndFlags(offset, seg.Flags)
	f.SetWindow(uint16(seg.WND))
}

// ClearHeader zeroes the fixed (non-option) portion of the header.
func (f Frame) ClearHeader() {
	for i := range f.buf[:sizeHeader] {
		f.buf[i] = 0
	}
}

// CalculateChecksum computes the TCP checksum over the pseudo-header
// (already accumulated into c by the caller via ipv4.Frame.WritePseudoHeader)
// plus this frame's header and payload, up to totalLen bytes.
func (f Frame) CalculateChecksum(c netstack.Checksum, totalLen int) uint16 {
	c.Write(f.buf[0:16])
	// Skip the checksum field itself (bytes 16:18), include the rest.
	c.Write(f.buf[18:totalLen])
	return c.Sum16()
}

func (f Frame) String() string {
	seg := f.ToSegment(len(f.Payload()))
	return fmt.Sprintf("TCP :%d -> :%d %s", f.SourcePort(), f.DestPort(), seg)
}
