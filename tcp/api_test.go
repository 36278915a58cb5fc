package tcp

import (
	"testing"
	"time"
)

func TestActiveOpenSendReceiveClose(t *testing.T) {
	table := testTable()
	withFixedClock(t, time.Unix(9000, 0))

	sent := make(chan Segment, 16)
	out := func(local, foreign Endpoint, seg Segment, payload []byte) {
		sent <- seg
	}

	type openResult struct {
		h   Handle
		err error
	}
	resultCh := make(chan openResult, 1)
	go func() {
		h, err := table.Open(localEP, foreignEP, true, 1500, out)
		resultCh <- openResult{h, err}
	}()

	syn := <-sent
	if syn.Flags != FlagSYN {
		t.Fatalf("expected SYN, got %s", syn.Flags)
	}

	serverISS := Value(5000)
	synack := Segment{SEQ: serverISS, ACK: Add(syn.SEQ, 1), Flags: flagSynAck, WND: 4096}
	table.Input(localEP, foreignEP, synack, nil, out)

	finalAck := <-sent
	if finalAck.Flags != FlagACK {
		t.Fatalf("expected final handshake ACK, got %s", finalAck.Flags)
	}

	res := <-resultCh
	if res.err != nil {
		t.Fatalf("Open: %v", res.err)
	}

	table.Lock()
	pcb, err := table.byID(res.h.id, res.h.epoch)
	table.Unlock()
	if err != nil {
		t.Fatalf("byID after Open: %v", err)
	}
	if pcb.state != StateEstablished {
		t.Fatalf("state after handshake = %v, want ESTABLISHED", pcb.state)
	}

	// Server sends us 5 bytes of data.
	payload := []byte("hello")
	dataSeg := Segment{SEQ: serverISS + 1, ACK: finalAck.SEQ, Flags: FlagACK, WND: 4096, DATALEN: Size(len(payload))}
	table.Input(localEP, foreignEP, dataSeg, payload, out)
	<-sent // drain the ACK produced by data delivery

	buf := make([]byte, 16)
	n, err := table.Receive(res.h, buf)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("Receive = %q, want %q", buf[:n], "hello")
	}

	// We send 3 bytes back.
	n, err = table.Send(res.h, []byte("bye"), out)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n != 3 {
		t.Fatalf("Send = %d, want 3", n)
	}
	dataOut := <-sent
	if !dataOut.Flags.HasAll(FlagPSH | FlagACK) {
		t.Fatalf("expected PSH|ACK, got %s", dataOut.Flags)
	}

	// Active close.
	if err := table.Close(res.h, out); err != nil {
		t.Fatalf("Close: %v", err)
	}
	finSeg := <-sent
	if !finSeg.Flags.HasAll(FlagFIN) {
		t.Fatalf("expected FIN on close, got %s", finSeg.Flags)
	}
	if pcb.state != StateFinWait1 {
		t.Fatalf("state after Close = %v, want FIN-WAIT-1", pcb.state)
	}
}

func TestOpenInterruptedReturnsErrInterrupted(t *testing.T) {
	table := testTable()
	withFixedClock(t, time.Unix(9100, 0))

	out := func(local, foreign Endpoint, seg Segment, payload []byte) {}

	type openResult struct {
		h   Handle
		err error
	}
	resultCh := make(chan openResult, 1)
	go func() {
		h, err := table.Open(Endpoint{Port: 22}, Endpoint{}, false, 0, out)
		resultCh <- openResult{h, err}
	}()

	// Give the Open goroutine a chance to reach its sleep before interrupting.
	time.Sleep(10 * time.Millisecond)
	table.InterruptAll()

	res := <-resultCh
	if res.err != ErrInterrupted {
		t.Fatalf("err = %v, want ErrInterrupted", res.err)
	}
}

func TestSendBlocksUntilWindowOpensThenCompletes(t *testing.T) {
	table := testTable()
	withFixedClock(t, time.Unix(9200, 0))

	pcb, _ := table.alloc()
	pcb.local = localEP
	pcb.foreign = foreignEP
	pcb.state = StateEstablished
	pcb.resetSnd(100, 0) // zero window: Send must block
	pcb.resetRcv(Size(pcb.buf.Size()), 200)
	h := Handle{id: pcb.id, epoch: pcb.connEpoch}

	var got Segment
	gotCh := make(chan Segment, 1)
	out := func(local, foreign Endpoint, seg Segment, payload []byte) { gotCh <- seg }

	doneCh := make(chan struct{})
	go func() {
		n, err := table.Send(h, []byte("hi"), out)
		if err != nil || n != 2 {
			t.Errorf("Send: n=%d err=%v", n, err)
		}
		close(doneCh)
	}()

	time.Sleep(10 * time.Millisecond) // let Send observe the zero window and sleep

	table.Lock()
	pcb.snd.WND = 4096
	pcb.ctx.wake()
	table.Unlock()

	select {
	case got = <-gotCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Send to transmit once the window opened")
	}
	if !got.Flags.HasAll(FlagPSH | FlagACK) {
		t.Fatalf("expected PSH|ACK, got %s", got.Flags)
	}
	<-doneCh
}

// TestSendWokenByRSTReturnsConnectionResetAndFreesSlot pins down the
// release-retry contract: a Send blocked on a full window whose PCB is
// RST'd out from under it must surface ErrConnectionReset, not the
// generic ErrInvalidState, and must leave the table slot free rather
// than stuck in CLOSED forever.
func TestSendWokenByRSTReturnsConnectionResetAndFreesSlot(t *testing.T) {
	table := testTable()
	withFixedClock(t, time.Unix(9300, 0))

	pcb, _ := table.alloc()
	pcb.local = localEP
	pcb.foreign = foreignEP
	pcb.state = StateEstablished
	pcb.resetSnd(100, 0) // zero window: Send must block
	pcb.resetRcv(Size(pcb.buf.Size()), 200)
	id, epoch := pcb.id, pcb.connEpoch
	h := Handle{id: id, epoch: epoch}

	out := func(local, foreign Endpoint, seg Segment, payload []byte) {}

	errCh := make(chan error, 1)
	go func() {
		_, err := table.Send(h, []byte("hi"), out)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond) // let Send observe the zero window and sleep

	rst := Segment{SEQ: pcb.rcv.NXT, Flags: FlagRST}
	table.Input(localEP, foreignEP, rst, nil, out)

	select {
	case err := <-errCh:
		if err != ErrConnectionReset {
			t.Fatalf("Send err = %v, want ErrConnectionReset", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Send to wake on RST")
	}

	table.Lock()
	_, err := table.byID(id, epoch)
	table.Unlock()
	if err != ErrNoPCB {
		t.Fatalf("expected slot freed after woken Send releases it, byID returned %v", err)
	}
}

// TestReceiveWokenByUserTimeoutReturnsErrUserTimeoutAndFreesSlot covers
// the interrupt-driven abandonment path (as opposed to handleRST's
// ordinary wake): the user-timeout timer sets closeErr and calls
// ctx.interrupt, and the blocked Receive must distinguish that from a
// plain InterruptAll cancellation.
func TestReceiveWokenByUserTimeoutReturnsErrUserTimeoutAndFreesSlot(t *testing.T) {
	table := testTable()
	base := time.Unix(9400, 0)
	withFixedClock(t, base)

	pcb, _ := table.alloc()
	pcb.local = localEP
	pcb.foreign = foreignEP
	pcb.state = StateEstablished
	pcb.resetSnd(100, 4096)
	pcb.resetRcv(Size(pcb.buf.Size()), 200)
	pcb.startTime = base
	id, epoch := pcb.id, pcb.connEpoch
	h := Handle{id: id, epoch: epoch}

	errCh := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		_, err := table.Receive(h, buf)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond) // let Receive observe the empty buffer and sleep

	withFixedClock(t, base.Add(UserTimeout+time.Millisecond))
	table.RunUserTimeoutTimer()

	select {
	case err := <-errCh:
		if err != ErrUserTimeout {
			t.Fatalf("Receive err = %v, want ErrUserTimeout", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Receive to wake on user timeout")
	}

	table.Lock()
	_, err := table.byID(id, epoch)
	table.Unlock()
	if err != ErrNoPCB {
		t.Fatalf("expected slot freed after woken Receive releases it, byID returned %v", err)
	}
}
