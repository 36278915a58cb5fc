package netstack

import "encoding/binary"

// Checksum accumulates the Internet checksum (RFC 1071) one's-complement
// sum. Zero value is ready to use.
type Checksum struct {
	sum uint32
}

// Write adds b to the running sum. Written bytes are interpreted as a
// sequence of big-endian 16-bit words; an odd trailing byte is padded
// with a zero low byte, matching the pseudo-header + header + payload
// padding rule used by both IPv4 and TCP checksums.
func (c *Checksum) Write(b []byte) (int, error) {
	n := len(b)
	for len(b) >= 2 {
		c.sum += uint32(binary.BigEndian.Uint16(b))
		b = b[2:]
	}
	if len(b) == 1 {
		c.sum += uint32(b[0]) << 8
	}
	return n, nil
}

// Add16 adds a single big-endian 16-bit word to the running sum.
// Useful for pseudo-header fields that are not stored contiguously.
func (c *Checksum) Add16(v uint16) {
	c.sum += uint32(v)
}

// Sum16 folds the accumulated 32-bit sum into its final 16-bit
// one's-complement checksum.
func (c *Checksum) Sum16() uint16 {
	sum := c.sum
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// Reset zeroes the accumulator for reuse.
func (c *Checksum) Reset() { c.sum = 0 }
