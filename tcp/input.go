package tcp

import (
	"log/slog"
	"time"
)

// Input executes one full SEGMENT-ARRIVES event (RFC 793 §3.10.7): it
// locks the table, selects the PCB addressed by (local, foreign),
// drives the state machine, emits any resulting segments through out,
// and unlocks. This is the entry point IP input calls once a segment
// has passed checksum and length validation.
func (t *Table) Input(local, foreign Endpoint, seg Segment, payload []byte, out OutputFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pcb := t.selectPCB(local, foreign)
	if pcb == nil {
		sendRST(local, foreign, seg, out)
		return
	}

	nowT := now()
	switch pcb.state {
	case StateListen:
		t.stepListen(pcb, local, foreign, seg, nowT, out)
	case StateSynSent:
		t.stepSynSent(pcb, seg, nowT, out)
	default:
		t.stepSynchronized(pcb, seg, payload, nowT, out)
	}
}

func (t *Table) stepListen(pcb *PCB, local, foreign Endpoint, seg Segment, nowT time.Time, out OutputFunc) {
	switch {
	case seg.Flags.HasAny(FlagRST):
		return
	case seg.Flags.HasAny(FlagACK):
		out(local, foreign, Segment{SEQ: seg.ACK, Flags: FlagRST}, nil)
		return
	case !seg.Flags.HasAny(FlagSYN):
		return
	}
	pcb.foreign = foreign
	pcb.local = local
	pcb.resetRcv(Size(pcb.buf.Size()), seg.SEQ)
	pcb.rcv.NXT = Add(seg.SEQ, 1)
	iss := t.iss.New(local.Addr, foreign.Addr, local.Port, foreign.Port)
	pcb.resetSnd(iss, seg.WND)
	pcb.state = StateSynRcvd
	pcb.tcpOutput(nowT, flagSynAck, nil, out)
}

func (t *Table) stepSynSent(pcb *PCB, seg Segment, nowT time.Time, out OutputFunc) {
	hasAck := seg.Flags.HasAny(FlagACK)
	if hasAck && (LessThanEq(seg.ACK, pcb.snd.ISS) || LessThan(pcb.snd.NXT, seg.ACK)) {
		out(pcb.local, pcb.foreign, Segment{SEQ: seg.ACK, Flags: FlagRST}, nil)
		return
	}
	acceptable := hasAck && !LessThan(seg.ACK, pcb.snd.UNA) && LessThanEq(seg.ACK, pcb.snd.NXT)

	if seg.Flags.HasAny(FlagRST) {
		if acceptable {
			pcb.log.Debug("tcp: connection reset in SYN-SENT", slog.Int("id", pcb.id))
			pcb.closeErr = ErrConnectionReset
			pcb.state = StateClosed
			pcb.ctx.wake()
			t.release(pcb)
		}
		return
	}
	if !seg.Flags.HasAny(FlagSYN) {
		return
	}

	pcb.rcv.NXT = Add(seg.SEQ, 1)
	pcb.rcv.IRS = seg.SEQ
	if acceptable {
		pcb.snd.UNA = seg.ACK
		pcb.queue.cleanup(pcb.snd.UNA)
	}
	if LessThan(pcb.snd.ISS, pcb.snd.UNA) {
		pcb.state = StateEstablished
		pcb.snd.WND = seg.WND
		pcb.snd.WL1 = seg.SEQ
		pcb.snd.WL2 = seg.ACK
		pcb.tcpOutput(nowT, FlagACK, nil, out)
		pcb.ctx.wake()
	} else {
		// Simultaneous open.
		pcb.state = StateSynRcvd
		pcb.snd.WND = seg.WND
		pcb.tcpOutput(nowT, flagSynAck, nil, out)
	}
}

// stepSynchronized implements the shared processing for every state
// from SYN-RECEIVED through LAST-ACK.
func (t *Table) stepSynchronized(pcb *PCB, seg Segment, payload []byte, nowT time.Time, out OutputFunc) {
	if !t.acceptable(pcb, seg) {
		if !seg.Flags.HasAny(FlagRST) {
			pcb.tcpOutput(nowT, FlagACK, nil, out)
		}
		return
	}

	if seg.Flags.HasAny(FlagRST) {
		t.handleRST(pcb, out)
		return
	}

	if seg.Flags.HasAny(FlagSYN) {
		// Protocol violation: SYN in a synchronized state.
		pcb.queue.discard()
		pcb.state = StateClosed
		t.release(pcb)
		return
	}

	if !seg.Flags.HasAny(FlagACK) {
		return
	}
	if !t.processACK(pcb, seg, nowT, out) {
		return
	}

	if len(payload) > 0 && pcb.state.CanReceiveData() {
		t.deliverData(pcb, seg, payload, nowT, out)
	}
	// CLOSE-WAIT and LAST-ACK silently discard any residual data segment.

	if seg.Flags.HasAny(FlagFIN) {
		t.handleFIN(pcb, seg, nowT, out)
	}
}

// acceptable performs the RFC 793 §3.3 window/sequence test.
func (t *Table) acceptable(pcb *PCB, seg Segment) bool {
	if seg.LEN() == 0 {
		if pcb.rcv.WND == 0 {
			return seg.SEQ == pcb.rcv.NXT
		}
		return InWindow(seg.SEQ, pcb.rcv.NXT, pcb.rcv.WND)
	}
	if pcb.rcv.WND == 0 {
		return false
	}
	return InWindow(seg.SEQ, pcb.rcv.NXT, pcb.rcv.WND) || InWindow(seg.Last(), pcb.rcv.NXT, pcb.rcv.WND)
}

func (t *Table) handleRST(pcb *PCB, out OutputFunc) {
	switch pcb.state {
	case StateSynRcvd:
		if pcb.active {
			pcb.log.Debug("tcp: connection refused", slog.Int("id", pcb.id))
			pcb.state = StateClosed
		} else {
			pcb.state = StateListen
			pcb.foreign = Endpoint{}
		}
		pcb.queue.discard()
		if pcb.state == StateClosed {
			t.release(pcb)
		} else {
			pcb.ctx.wake()
		}
	case StateEstablished, StateFinWait1, StateFinWait2, StateCloseWait:
		pcb.log.Debug("tcp: connection reset", slog.Int("id", pcb.id))
		pcb.queue.discard()
		pcb.closeErr = ErrConnectionReset
		pcb.state = StateClosed
		t.release(pcb)
	case StateClosing, StateLastAck, StateTimeWait:
		pcb.queue.discard()
		pcb.closeErr = ErrConnectionReset
		pcb.state = StateClosed
		t.release(pcb)
	}
}

// processACK returns false when the caller must stop processing this
// segment (invalid ACK answered with RST, an ACK of unsent data answered
// with a bare ACK, or the final ACK in LAST-ACK that released the PCB).
// A duplicate ACK returns true: the ACK itself is ignored and the
// segment's data and FIN are still processed.
func (t *Table) processACK(pcb *PCB, seg Segment, nowT time.Time, out OutputFunc) bool {
	if pcb.state == StateSynRcvd {
		if !(LessThanEq(pcb.snd.UNA, seg.ACK) && LessThanEq(seg.ACK, pcb.snd.NXT)) {
			out(pcb.local, pcb.foreign, Segment{SEQ: seg.ACK, Flags: FlagRST}, nil)
			return false
		}
		pcb.state = StateEstablished
		pcb.ctx.wake()
	}

	switch pcb.state {
	case StateEstablished, StateFinWait1, StateFinWait2, StateCloseWait:
		if LessThan(pcb.snd.UNA, seg.ACK) && LessThanEq(seg.ACK, pcb.snd.NXT) {
			pcb.snd.UNA = seg.ACK
			pcb.queue.cleanup(pcb.snd.UNA)
		}
		if LessThan(pcb.snd.WL1, seg.SEQ) || (pcb.snd.WL1 == seg.SEQ && LessThanEq(pcb.snd.WL2, seg.ACK)) {
			pcb.snd.WND = seg.WND
			pcb.snd.WL1 = seg.SEQ
			pcb.snd.WL2 = seg.ACK
		}
		if LessThan(seg.ACK, pcb.snd.UNA) {
			return true // duplicate ACK, ignore beyond window update already applied
		}
		if LessThan(pcb.snd.NXT, seg.ACK) {
			pcb.tcpOutput(nowT, FlagACK, nil, out)
			return false
		}
		if pcb.state == StateFinWait1 && seg.ACK == pcb.snd.NXT {
			pcb.state = StateFinWait2
		}
	case StateLastAck:
		if seg.ACK == pcb.snd.NXT {
			pcb.state = StateClosed
			t.release(pcb)
			return false
		}
	case StateClosing:
		if seg.ACK == pcb.snd.NXT {
			pcb.state = StateTimeWait
			pcb.timeWait = nowT
		}
	}
	return true
}

func (t *Table) deliverData(pcb *PCB, seg Segment, payload []byte, nowT time.Time, out OutputFunc) {
	n, err := pcb.buf.Write(payload)
	if err != nil {
		n = 0
	}
	pcb.rcv.NXT = Add(seg.SEQ, Size(n))
	pcb.rcv.WND = Size(pcb.buf.Free())
	pcb.tcpOutput(nowT, FlagACK, nil, out)
	pcb.ctx.wake()
}

func (t *Table) handleFIN(pcb *PCB, seg Segment, nowT time.Time, out OutputFunc) {
	switch pcb.state {
	case StateClosed, StateListen, StateSynSent:
		return
	}
	pcb.rcv.NXT = Add(seg.SEQ, 1)
	pcb.tcpOutput(nowT, FlagACK, nil, out)

	switch pcb.state {
	case StateSynRcvd, StateEstablished:
		pcb.state = StateCloseWait
		pcb.ctx.wake()
	case StateFinWait1:
		if seg.ACK == pcb.snd.NXT {
			pcb.state = StateTimeWait
			pcb.timeWait = nowT
		} else {
			pcb.state = StateClosing
		}
	case StateFinWait2:
		pcb.state = StateTimeWait
		pcb.timeWait = nowT
	case StateCloseWait, StateLastAck:
		// Already closing on this side; no state change.
	}
}
