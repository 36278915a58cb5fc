package tcp

import (
	"time"

	"github.com/vnet-go/tcpstack/internal"
)

// Endpoint is an (IPv4 address, port) pair in host byte order. A zero
// Addr on the local side is the wildcard ANY.
type Endpoint struct {
	Addr [4]byte
	Port uint16
}

func (e Endpoint) isAny() bool { return e.Addr == [4]byte{} && e.Port == 0 }

func (e Endpoint) matchesLocal(other Endpoint) bool {
	return e.Port == other.Port && (e.Addr == [4]byte{} || e.Addr == other.Addr)
}

// sendSpace holds the Send Sequence Space variables (RFC 793 §3.2).
type sendSpace struct {
	ISS Value
	UNA Value
	NXT Value
	WND Size
	UP  Value
	WL1 Value // seq of the segment used for the last window update
	WL2 Value // ack of the segment used for the last window update
}

// recvSpace holds the Receive Sequence Space variables.
type recvSpace struct {
	IRS Value
	NXT Value
	WND Size
	UP  Value
}

// PCB is a Protocol Control Block: all state for one TCP connection.
// A PCB's zero value represents a FREE table slot.
type PCB struct {
	id     int
	active bool
	state  State

	local   Endpoint
	foreign Endpoint

	snd sendSpace
	rcv recvSpace

	mtu, mss int

	startTime time.Time
	timeWait  time.Time

	buf   *internal.Ring
	queue retransmitQueue

	// closeErr records why the connection left a synchronized state when
	// that reason is more specific than "invalid state for this call":
	// set by the RST and timer paths so a caller blocked in Send/Receive
	// sees ErrConnectionReset/ErrUserTimeout/ErrRetransmitDeadline instead
	// of a generic rejection once it wakes.
	closeErr error

	ctx *waitCtx
	log internal.Logger

	// connEpoch increments every time this slot is reused for a new
	// connection, so a stale id captured before a release/reuse can be
	// detected by table lookups instead of silently addressing the
	// wrong connection.
	connEpoch uint32
}

// ID returns the stable table index used as this connection's handle
// for the lifetime of the PCB (until release).
func (pcb *PCB) ID() int { return pcb.id }

// State returns the connection's current state.
func (pcb *PCB) State() State { return pcb.state }

// Local returns the connection's local endpoint.
func (pcb *PCB) Local() Endpoint { return pcb.local }

// Foreign returns the connection's foreign endpoint, which may still be
// the wildcard if the PCB is a LISTEN socket awaiting its first peer.
func (pcb *PCB) Foreign() Endpoint { return pcb.foreign }

func (pcb *PCB) resetSnd(iss Value, wnd Size) {
	pcb.snd = sendSpace{ISS: iss, UNA: iss, NXT: iss, WND: wnd}
}

func (pcb *PCB) resetRcv(wnd Size, irs Value) {
	pcb.rcv = recvSpace{IRS: irs, NXT: irs, WND: wnd}
}

// maxSend returns how many payload octets remain sendable under the
// current send window.
func (pcb *PCB) maxSend() Size {
	inFlight := Sizeof(pcb.snd.UNA, pcb.snd.NXT)
	if inFlight >= pcb.snd.WND {
		return 0
	}
	return pcb.snd.WND - inFlight
}

// reset clears a PCB back to its just-allocated shape, without touching
// its wait context or table identity.
func (pcb *PCB) reset() {
	id, ctx, buf, epoch, log := pcb.id, pcb.ctx, pcb.buf, pcb.connEpoch, pcb.log
	*pcb = PCB{id: id, ctx: ctx, buf: buf, connEpoch: epoch, log: log}
	pcb.buf.Reset()
	pcb.queue.discard()
}
