package tcp

import (
	"testing"
	"time"
)

// recorder captures every segment tcpOutput/sendRST hand to it, acting
// as the OutputFunc for tests that only need to inspect what was sent.
type recorder struct {
	segs []Segment
}

func (r *recorder) output(local, foreign Endpoint, seg Segment, payload []byte) {
	r.segs = append(r.segs, seg)
}

func (r *recorder) last() Segment { return r.segs[len(r.segs)-1] }

func withFixedClock(tb testing.TB, at time.Time) {
	saved := now
	now = func() time.Time { return at }
	tb.Cleanup(func() { now = saved })
}

var (
	localEP   = Endpoint{Addr: [4]byte{10, 0, 0, 1}, Port: 80}
	foreignEP = Endpoint{Addr: [4]byte{10, 0, 0, 2}, Port: 4000}
)

func TestThreeWayHandshakeServerSide(t *testing.T) {
	table := testTable()
	base := time.Unix(1000, 0)
	withFixedClock(t, base)

	listener, err := table.alloc()
	if err != nil {
		t.Fatal(err)
	}
	listener.local = localEP
	listener.state = StateListen
	listener.resetRcv(Size(listener.buf.Size()), 0)

	var rec recorder
	clientISS := Value(500)
	syn := Segment{SEQ: clientISS, Flags: FlagSYN, WND: 4096}
	table.Input(localEP, foreignEP, syn, nil, rec.output)

	if listener.state != StateSynRcvd {
		t.Fatalf("after SYN, state = %v, want SYN-RECEIVED", listener.state)
	}
	synack := rec.last()
	if !synack.Flags.HasAll(flagSynAck) {
		t.Fatalf("expected SYN|ACK reply, got %s", synack.Flags)
	}
	if synack.ACK != Add(clientISS, 1) {
		t.Fatalf("synack.ACK = %d, want %d", synack.ACK, clientISS+1)
	}

	serverISS := synack.SEQ
	ack := Segment{SEQ: Add(clientISS, 1), ACK: Add(serverISS, 1), Flags: FlagACK, WND: 4096}
	table.Input(localEP, foreignEP, ack, nil, rec.output)

	if listener.state != StateEstablished {
		t.Fatalf("after final ACK, state = %v, want ESTABLISHED", listener.state)
	}
	if listener.snd.WL1 != ack.SEQ || listener.snd.WL2 != ack.ACK {
		t.Fatalf("wl1/wl2 not updated: wl1=%d wl2=%d", listener.snd.WL1, listener.snd.WL2)
	}
}

func TestSimultaneousOpen(t *testing.T) {
	table := testTable()
	withFixedClock(t, time.Unix(2000, 0))

	pcb, err := table.alloc()
	if err != nil {
		t.Fatal(err)
	}
	pcb.local = localEP
	pcb.foreign = foreignEP
	iss := Value(100)
	pcb.resetSnd(iss, 0)
	pcb.resetRcv(Size(pcb.buf.Size()), 0)
	pcb.state = StateSynSent

	var rec recorder
	peerISS := Value(9000)
	synOnly := Segment{SEQ: peerISS, Flags: FlagSYN, WND: 4096} // no ACK: simultaneous open
	table.stepSynSent(pcb, synOnly, now(), rec.output)

	if pcb.state != StateSynRcvd {
		t.Fatalf("state = %v, want SYN-RECEIVED after simultaneous SYN", pcb.state)
	}
	if rec.last().Flags != flagSynAck {
		t.Fatalf("expected a SYN|ACK reply, got %s", rec.last().Flags)
	}
}

func TestUnsolicitedSegmentGetsRST(t *testing.T) {
	table := testTable()
	withFixedClock(t, time.Unix(3000, 0))

	var rec recorder
	seg := Segment{SEQ: 42, Flags: FlagACK, ACK: 7}
	table.Input(localEP, foreignEP, seg, nil, rec.output)

	if len(rec.segs) != 1 {
		t.Fatalf("expected exactly one reply, got %d", len(rec.segs))
	}
	if !rec.segs[0].Flags.HasAll(FlagRST) {
		t.Fatalf("expected RST reply to unsolicited segment, got %s", rec.segs[0].Flags)
	}
	if rec.segs[0].SEQ != seg.ACK {
		t.Fatalf("RST seq = %d, want seg.ack = %d", rec.segs[0].SEQ, seg.ACK)
	}
}

func TestRSTNeverAnswersRST(t *testing.T) {
	table := testTable()
	withFixedClock(t, time.Unix(3100, 0))

	var rec recorder
	seg := Segment{SEQ: 1, Flags: FlagRST}
	table.Input(localEP, foreignEP, seg, nil, rec.output)
	if len(rec.segs) != 0 {
		t.Fatalf("must never reply to a RST, got %d replies", len(rec.segs))
	}
}

func TestDataDeliveryAdvancesRcvNxtAndAcks(t *testing.T) {
	table := testTable()
	withFixedClock(t, time.Unix(4000, 0))

	pcb, _ := table.alloc()
	pcb.local = localEP
	pcb.foreign = foreignEP
	pcb.state = StateEstablished
	pcb.resetSnd(100, 4096)
	pcb.resetRcv(Size(pcb.buf.Size()), 200)
	pcb.rcv.NXT = 200

	var rec recorder
	payload := []byte("hello")
	seg := Segment{SEQ: 200, ACK: 100, Flags: FlagACK, WND: 4096, DATALEN: Size(len(payload))}
	table.Input(localEP, foreignEP, seg, payload, rec.output)

	if pcb.rcv.NXT != Add(200, Size(len(payload))) {
		t.Fatalf("rcv.nxt = %d, want %d", pcb.rcv.NXT, 200+Value(len(payload)))
	}
	buf := make([]byte, 16)
	n, err := pcb.buf.Read(buf)
	if err != nil || string(buf[:n]) != "hello" {
		t.Fatalf("buffered data = %q, err=%v", buf[:n], err)
	}
	if rec.last().Flags != FlagACK {
		t.Fatalf("expected pure ACK after data delivery, got %s", rec.last().Flags)
	}
}

func TestRSTInEstablishedDiscardsQueueAndCloses(t *testing.T) {
	table := testTable()
	withFixedClock(t, time.Unix(5000, 0))

	pcb, _ := table.alloc()
	pcb.local = localEP
	pcb.foreign = foreignEP
	pcb.state = StateEstablished
	pcb.resetSnd(100, 4096)
	pcb.resetRcv(Size(pcb.buf.Size()), 200)
	pcb.rcv.NXT = 200
	pcb.queue.add(now(), 100, FlagACK, []byte("unacked"))

	var rec recorder
	seg := Segment{SEQ: 200, Flags: FlagRST}
	table.Input(localEP, foreignEP, seg, nil, rec.output)

	if len(pcb.queue.entries) != 0 {
		t.Fatalf("RST must discard the retransmit queue, got %d entries", len(pcb.queue.entries))
	}
	if pcb.state != StateFree {
		t.Fatalf("expected slot released back to FREE, got %v", pcb.state)
	}
}

func TestPassiveCloseSequence(t *testing.T) {
	table := testTable()
	withFixedClock(t, time.Unix(6000, 0))

	pcb, _ := table.alloc()
	pcb.local = localEP
	pcb.foreign = foreignEP
	pcb.state = StateEstablished
	pcb.resetSnd(100, 4096)
	pcb.resetRcv(Size(pcb.buf.Size()), 200)
	pcb.rcv.NXT = 200

	var rec recorder
	fin := Segment{SEQ: 200, ACK: 100, Flags: FlagFIN | FlagACK, WND: 4096}
	table.Input(localEP, foreignEP, fin, nil, rec.output)

	if pcb.state != StateCloseWait {
		t.Fatalf("state after peer FIN = %v, want CLOSE-WAIT", pcb.state)
	}
	if pcb.rcv.NXT != 201 {
		t.Fatalf("rcv.nxt = %d, want 201 (FIN consumes one)", pcb.rcv.NXT)
	}

	if err := table.Close(Handle{id: pcb.id, epoch: pcb.connEpoch}, rec.output); err != nil {
		t.Fatalf("Close from CLOSE-WAIT: %v", err)
	}
	if pcb.state != StateLastAck {
		t.Fatalf("state after local Close = %v, want LAST-ACK", pcb.state)
	}

	lastAck := Segment{SEQ: 201, ACK: pcb.snd.NXT, Flags: FlagACK}
	table.Input(localEP, foreignEP, lastAck, nil, rec.output)
	if pcb.state != StateFree {
		t.Fatalf("state after final ACK = %v, want released (FREE)", pcb.state)
	}
}
