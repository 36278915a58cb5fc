package tcp

import "time"

const (
	// RetransmitTick is how often the retransmit timer scans the table.
	RetransmitTick = 100 * time.Millisecond
	// UserTimeoutTick is how often the user-timeout timer scans the table.
	UserTimeoutTick = time.Second
	// TimeWaitTick is how often the time-wait timer scans the table.
	TimeWaitTick = time.Second

	// UserTimeout bounds how long a connection may exist, counted from PCB
	// allocation, before it is abandoned; it applies in every state except
	// TIME-WAIT, ESTABLISHED included. Long-lived
	// connections must raise or disable this; it is a design parameter,
	// not a protocol requirement.
	UserTimeout = 30 * time.Second
	// MSL is the assumed maximum segment lifetime; TIME-WAIT lasts 2*MSL.
	MSL = 120 * time.Second
)

// RunRetransmitTimer walks every live PCB once and re-emits any segment
// whose backoff has elapsed, abandoning connections that exceeded the
// retransmit deadline.
func (t *Table) RunRetransmitTimer(out OutputFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	nowT := now()
	t.forEach(func(pcb *PCB) {
		result := pcb.queue.emitAll(nowT, func(seq Value, flags Flags, data []byte) {
			out(pcb.local, pcb.foreign, Segment{
				SEQ: seq, ACK: pcb.rcv.NXT, WND: pcb.rcv.WND,
				Flags: flags, DATALEN: Size(len(data)),
			}, data)
		})
		if result.abandoned {
			pcb.queue.discard()
			pcb.closeErr = ErrRetransmitDeadline
			pcb.state = StateClosed
			pcb.ctx.interrupt()
			t.release(pcb)
		}
	})
}

// RunUserTimeoutTimer abandons any non-TIME-WAIT connection allocated at
// least UserTimeout ago, whatever progress it has made since.
func (t *Table) RunUserTimeoutTimer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	nowT := now()
	t.forEach(func(pcb *PCB) {
		if pcb.state == StateTimeWait {
			return
		}
		if nowT.Sub(pcb.startTime) >= UserTimeout {
			pcb.log.Debug("tcp: user timeout")
			pcb.queue.discard()
			pcb.closeErr = ErrUserTimeout
			pcb.state = StateClosed
			pcb.ctx.interrupt()
			t.release(pcb)
		}
	})
}

// RunTimeWaitTimer releases any TIME-WAIT connection that has sat for
// 2*MSL since entering that state.
func (t *Table) RunTimeWaitTimer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	nowT := now()
	t.forEach(func(pcb *PCB) {
		if pcb.state != StateTimeWait {
			return
		}
		if nowT.Sub(pcb.timeWait) >= 2*MSL {
			pcb.state = StateClosed
			t.release(pcb)
		}
	})
}
