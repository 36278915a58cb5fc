package netstack

import "errors"

// Generic errors shared across the protocol packages.
var (
	// ErrPacketDrop signals that a malformed or unroutable packet was
	// silently dropped. Callers should log and continue, never fail a
	// socket on account of a single malformed datagram.
	ErrPacketDrop = errors.New("netstack: packet dropped")
	// ErrBadChecksum signals a checksum mismatch on a received frame.
	ErrBadChecksum = errors.New("netstack: bad checksum")
	// ErrShortBuffer signals a buffer too small to hold a fixed header.
	ErrShortBuffer = errors.New("netstack: short buffer")
)
