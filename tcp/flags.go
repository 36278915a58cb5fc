package tcp

import "math/bits"

// Flags is the set of control bits carried in a TCP header, bit-masked
// exactly as they appear on the wire (RFC 793 §3.1).
type Flags uint16

const (
	FlagFIN Flags = 1 << iota // no more data from sender
	FlagSYN                   // synchronize sequence numbers
	FlagRST                   // reset the connection
	FlagPSH                   // push function
	FlagACK                   // acknowledgment field significant
	FlagURG                   // urgent pointer field significant
)

const flagMask = 0x3f

// Common flag unions referenced throughout the state machine.
const (
	flagSynAck = FlagSYN | FlagACK
	flagFinAck = FlagFIN | FlagACK
)

// HasAll reports whether every bit in mask is set.
func (f Flags) HasAll(mask Flags) bool { return f&mask == mask }

// HasAny reports whether at least one bit in mask is set.
func (f Flags) HasAny(mask Flags) bool { return f&mask != 0 }

// Mask clears any bits outside the defined flag range.
func (f Flags) Mask() Flags { return f & flagMask }

func (f Flags) String() string {
	switch f {
	case 0:
		return "[]"
	case flagSynAck:
		return "[SYN,ACK]"
	case flagFinAck:
		return "[FIN,ACK]"
	case FlagACK:
		return "[ACK]"
	case FlagSYN:
		return "[SYN]"
	case FlagFIN:
		return "[FIN]"
	case FlagRST:
		return "[RST]"
	}
	buf := make([]byte, 0, 2+4*bits.OnesCount16(uint16(f)))
	buf = append(buf, '[')
	buf = f.AppendFormat(buf)
	buf = append(buf, ']')
	return string(buf)
}

// AppendFormat appends a human-readable, comma-separated flag list to b.
func (f Flags) AppendFormat(b []byte) []byte {
	const names = "FINSYNRSTPSHACKURG"
	const width = 3
	first := true
	for f != 0 {
		i := bits.TrailingZeros16(uint16(f))
		if !first {
			b = append(b, ',')
		}
		first = false
		b = append(b, names[i*width:i*width+width]...)
		f &= ^(1 << i)
	}
	return b
}
