package tcp

import "time"

// OutputFunc hands a segment down to the IP layer for transmission. The
// TCP core never blocks on it: ARP-pending or link-layer backpressure is
// not propagated back up here, since retransmission covers loss (see
// spec §6, downward interface).
type OutputFunc func(local, foreign Endpoint, seg Segment, payload []byte)

// tcpOutput builds and transmits a segment on behalf of pcb, choosing
// seq per RFC 793: iss if SYN is set, otherwise snd.nxt. If the segment
// consumes sequence space it is appended to the retransmit queue before
// transmission and snd.nxt is advanced.
func (pcb *PCB) tcpOutput(nowT time.Time, flags Flags, payload []byte, out OutputFunc) {
	seq := pcb.snd.NXT
	if flags.HasAny(FlagSYN) {
		seq = pcb.snd.ISS
	}
	seg := Segment{
		SEQ:     seq,
		ACK:     pcb.rcv.NXT,
		WND:     pcb.rcv.WND,
		Flags:   flags,
		DATALEN: Size(len(payload)),
	}
	if consumesSeq := seg.LEN() > 0; consumesSeq {
		pcb.queue.add(nowT, seq, flags, payload)
		pcb.snd.NXT.UpdateForward(seg.LEN())
	}
	out(pcb.local, pcb.foreign, seg, payload)
}

// sendRST replies to an unacceptable or unmatched segment without any
// PCB context, per the no-matching-PCB and LISTEN/SYN-SENT rules of the
// SEGMENT-ARRIVES event (spec §4.4).
func sendRST(local, foreign Endpoint, seg Segment, out OutputFunc) {
	switch {
	case seg.Flags.HasAny(FlagRST):
		return // never respond to a RST with a RST
	case seg.Flags.HasAny(FlagACK):
		out(local, foreign, Segment{SEQ: seg.ACK, Flags: FlagRST}, nil)
	default:
		out(local, foreign, Segment{
			SEQ:   0,
			ACK:   Add(seg.SEQ, seg.LEN()),
			Flags: FlagRST | FlagACK,
		}, nil)
	}
}
