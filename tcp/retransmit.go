package tcp

import "time"

const (
	// DefaultRTO is the retransmission timeout applied to a freshly
	// queued segment.
	DefaultRTO = 200 * time.Millisecond
	// RetransmitDeadline is the total time a segment may go
	// unacknowledged before the connection is abandoned.
	RetransmitDeadline = 12 * time.Second
)

// retransmitEntry is one unacknowledged outgoing segment awaiting ACK.
type retransmitEntry struct {
	first time.Time
	last  time.Time
	rto   time.Duration
	seq   Value
	flags Flags
	data  []byte
}

// retransmitQueue is a per-PCB FIFO of unacknowledged segments that
// consumed sequence space (SYN, FIN, or non-empty data). Pure ACKs and
// RSTs are never queued: they carry no sequence-space obligation to
// retransmit.
type retransmitQueue struct {
	entries []retransmitEntry
}

// add appends a copy of the segment to the queue with a fresh RTO.
func (q *retransmitQueue) add(now time.Time, seq Value, flags Flags, data []byte) {
	buf := append([]byte(nil), data...)
	q.entries = append(q.entries, retransmitEntry{
		first: now, last: now, rto: DefaultRTO, seq: seq, flags: flags, data: buf,
	})
}

// cleanup pops consecutive head entries fully acknowledged by una
// (wrap-aware): an entry is done once una has advanced past its final
// sequence number.
func (q *retransmitQueue) cleanup(una Value) {
	i := 0
	for i < len(q.entries) {
		e := &q.entries[i]
		length := Size(len(e.data))
		if e.flags.HasAny(FlagSYN | FlagFIN) {
			length++
		}
		last := Add(e.seq, length) - 1
		if length == 0 {
			last = e.seq
		}
		if LessThan(last, una) {
			i++
			continue
		}
		break
	}
	q.entries = q.entries[i:]
}

// discard drops every queued entry without transmitting it. Used on RST
// per this stack's resolution of the spec's retransmit-on-RST question:
// the queue is discarded, not flushed.
func (q *retransmitQueue) discard() {
	q.entries = nil
}

// emitFunc transmits the segment described by an entry, using the
// connection's current rcv.nxt/rcv.wnd for the piggy-backed ACK fields
// rather than the values captured at original send time.
type emitFunc func(seq Value, flags Flags, data []byte)

// emitResult reports what emitAll observed across the queue.
type emitResult struct {
	abandoned bool // a segment exceeded RetransmitDeadline
}

// emitAll walks the queue, re-emitting any entry whose backoff timer
// has elapsed and abandoning the connection if any entry has been
// outstanding longer than RetransmitDeadline.
func (q *retransmitQueue) emitAll(now time.Time, emit emitFunc) emitResult {
	for i := range q.entries {
		e := &q.entries[i]
		if now.Sub(e.first) >= RetransmitDeadline {
			return emitResult{abandoned: true}
		}
		if now.After(e.last.Add(e.rto)) {
			emit(e.seq, e.flags, e.data)
			e.last = now
			e.rto *= 2
		}
	}
	return emitResult{}
}
