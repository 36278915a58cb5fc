package tcp

import "errors"

// Error kinds surfaced to callers of the user command surface. Internal
// admission-control rejections (out-of-window segments, duplicate ACKs)
// are not part of this list: they never escape the state machine, they
// only ever cause a segment to be dropped or answered with a bare ACK.
var (
	// ErrNoPCB is returned when an id is out of range or its slot is FREE.
	ErrNoPCB = errors.New("tcp: no such connection")
	// ErrResourceExhausted is returned by Open when the PCB table is full.
	ErrResourceExhausted = errors.New("tcp: pcb table full")
	// ErrInvalidState is returned when an operation is not legal in the
	// connection's current state, e.g. Close on a LISTEN socket.
	ErrInvalidState = errors.New("tcp: invalid state for operation")
	// ErrInterrupted is returned when a blocking call was unblocked by a
	// process-wide cancellation rather than completing normally. Send may
	// report partial progress alongside this error.
	ErrInterrupted = errors.New("tcp: interrupted")
	// ErrConnectionReset is returned when the peer sent RST in a
	// synchronized state, or RST arrived in SYN-SENT and was acceptable.
	ErrConnectionReset = errors.New("tcp: connection reset by peer")
	// ErrConnectionRefused is returned when RST arrived in SYN-RECEIVED
	// for an actively opened connection.
	ErrConnectionRefused = errors.New("tcp: connection refused")
	// ErrUserTimeout is returned when the user-timeout timer abandoned the
	// connection because UserTimeout elapsed since its PCB was allocated.
	ErrUserTimeout = errors.New("tcp: user timeout")
	// ErrRetransmitDeadline is returned when a segment went unacknowledged
	// for the full retransmit deadline.
	ErrRetransmitDeadline = errors.New("tcp: retransmit deadline exceeded")
	// ErrPeerClosed is returned by Receive alongside a zero count once a
	// CLOSE-WAIT connection's buffered data has fully drained.
	ErrPeerClosed = errors.New("tcp: peer closed connection")
)
