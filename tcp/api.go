package tcp

import "github.com/vnet-go/tcpstack/netstack"

// Handle identifies a live connection: a table index plus the epoch it
// was allocated under, so a handle captured before the slot is released
// and reused never silently addresses a different connection.
type Handle struct {
	id    int
	epoch uint32
}

// Open allocates a PCB and begins either an active or passive open.
// Active open assigns both endpoints, emits a SYN, and blocks the
// caller until the connection reaches ESTABLISHED, is refused, or a
// cancellation interrupts the wait. Passive open assigns the local
// endpoint (and, if foreign is non-wildcard, restricts the listener to
// that specific peer) and blocks the same way. mtu is the egress
// interface's MTU, used to derive the connection's MSS; 0 is accepted
// for a LISTEN PCB that has not yet selected a route.
func (t *Table) Open(local, foreign Endpoint, active bool, mtu int, out OutputFunc) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pcb, err := t.alloc()
	if err != nil {
		return Handle{}, err
	}
	pcb.active = active
	pcb.local = local
	pcb.mtu = mtu
	if mtu > 0 {
		pcb.mss = mtu - (netstack.SizeHeaderIPv4Min + netstack.SizeHeaderTCPMin)
	}

	if active {
		pcb.foreign = foreign
		iss := t.iss.New(local.Addr, foreign.Addr, local.Port, foreign.Port)
		pcb.resetSnd(iss, 0) // snd.wnd stays zero until the SYN-ACK's window arrives.
		pcb.resetRcv(Size(pcb.buf.Size()), 0)
		pcb.state = StateSynSent
		pcb.tcpOutput(now(), FlagSYN, nil, out)
	} else {
		pcb.foreign = foreign
		pcb.resetRcv(Size(pcb.buf.Size()), 0)
		pcb.state = StateListen
	}

	handle := Handle{id: pcb.id, epoch: pcb.connEpoch}
	for {
		state0 := pcb.state
		for pcb.state == state0 {
			if pcb.ctx.sleep() {
				err := pcb.closeErr
				if err == nil {
					err = ErrInterrupted
				}
				pcb.state = StateClosed
				t.release(pcb)
				return Handle{}, err
			}
		}
		switch pcb.state {
		case StateEstablished:
			return handle, nil
		case StateSynRcvd:
			continue // simultaneous-open edge case: keep waiting.
		default:
			err := pcb.closeErr
			if err == nil {
				err = ErrConnectionRefused
			}
			t.release(pcb)
			return Handle{}, err
		}
	}
}

// Close initiates active or passive closing of the connection named by
// h. It does not block; the caller observes the remaining teardown
// through Send/Receive errors or a subsequent Close call once LAST-ACK
// completes.
func (t *Table) Close(h Handle, out OutputFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pcb, err := t.byID(h.id, h.epoch)
	if err != nil {
		return err
	}
	switch pcb.state {
	case StateEstablished:
		pcb.tcpOutput(now(), FlagACK|FlagFIN, nil, out)
		pcb.state = StateFinWait1
		pcb.ctx.wake()
	case StateCloseWait:
		pcb.tcpOutput(now(), FlagACK|FlagFIN, nil, out)
		pcb.state = StateLastAck
		pcb.ctx.wake()
	default:
		return t.terminalOrInvalid(pcb)
	}
	return nil
}

// Send queues data for transmission on an ESTABLISHED or CLOSE-WAIT
// connection, blocking while the send window is full and returning the
// number of bytes actually transferred (which may be less than
// len(data) if a cancellation interrupts the wait mid-transfer).
func (t *Table) Send(h Handle, data []byte, out OutputFunc) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pcb, err := t.byID(h.id, h.epoch)
	if err != nil {
		return 0, err
	}
	if !pcb.state.CanSendData() {
		return 0, t.terminalOrInvalid(pcb)
	}

	sent := 0
	for sent < len(data) {
		window := pcb.maxSend()
		if window == 0 {
			if pcb.ctx.sleep() {
				err := pcb.closeErr
				if err == nil {
					return sent, ErrInterrupted
				}
				t.release(pcb)
				return sent, err
			}
			if !pcb.state.CanSendData() {
				return sent, t.terminalOrInvalid(pcb)
			}
			continue
		}
		n := len(data) - sent
		if n > pcb.mss && pcb.mss > 0 {
			n = pcb.mss
		}
		if Size(n) > window {
			n = int(window)
		}
		pcb.tcpOutput(now(), FlagACK|FlagPSH, data[sent:sent+n], out)
		sent += n
	}
	return sent, nil
}

// Receive copies buffered data into buf, blocking while the connection
// is ESTABLISHED and no data is available. On a CLOSE-WAIT connection it
// drains whatever data remains and then reports ErrPeerClosed with a
// zero count once the buffer is empty, signalling end-of-stream.
func (t *Table) Receive(h Handle, buf []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pcb, err := t.byID(h.id, h.epoch)
	if err != nil {
		return 0, err
	}
	for {
		remain := pcb.buf.Buffered()
		if remain > 0 {
			n, _ := pcb.buf.Read(buf)
			pcb.rcv.WND = Size(pcb.buf.Free())
			return n, nil
		}
		if pcb.state == StateCloseWait {
			return 0, ErrPeerClosed
		}
		if pcb.state != StateEstablished && !pcb.state.CanReceiveData() {
			return 0, t.terminalOrInvalid(pcb)
		}
		if pcb.ctx.sleep() {
			err := pcb.closeErr
			if err == nil {
				return 0, ErrInterrupted
			}
			t.release(pcb)
			return 0, err
		}
	}
}

// terminalOrInvalid reports why a connection left a synchronized state
// while this call was blocked on it, releasing the slot now that the
// call is no longer a registered waiter. States CanSendData/CanReceiveData
// rejected for reasons other than CLOSED are just invalid for the
// operation and carry no slot to release.
func (t *Table) terminalOrInvalid(pcb *PCB) error {
	if pcb.state != StateClosed {
		return ErrInvalidState
	}
	err := pcb.closeErr
	if err == nil {
		err = ErrInvalidState
	}
	t.release(pcb)
	return err
}

// InterruptAll broadcasts process-wide cancellation to every live PCB,
// causing blocked Open/Send/Receive callers to unwind and return
// ErrInterrupted.
func (t *Table) InterruptAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forEach(func(pcb *PCB) {
		pcb.ctx.interrupt()
	})
}
