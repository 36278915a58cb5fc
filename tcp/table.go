package tcp

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vnet-go/tcpstack/internal"
)

// TablePCBCapacity is the fixed number of connections the table can
// hold simultaneously.
const TablePCBCapacity = 16

// RecvBufferSize is the per-connection receive buffer capacity; it
// bounds the advertised receive window.
const RecvBufferSize = 4096

// Table is the fixed-capacity array of PCBs and the single global
// mutex that serializes the input path, user calls, and timers against
// it, as described by the concurrency model this package implements:
// no finer-grained locking exists here.
type Table struct {
	mu   sync.Mutex
	pcbs [TablePCBCapacity]PCB
	iss  ISSGenerator
	log  *slog.Logger
}

// NewTable constructs an empty Table ready to serve connections.
func NewTable(log *slog.Logger) *Table {
	if log == nil {
		log = slog.Default()
	}
	t := &Table{log: log}
	for i := range t.pcbs {
		t.pcbs[i].id = i
		t.pcbs[i].ctx = newWaitCtx(&t.mu)
		t.pcbs[i].buf = internal.NewRing(RecvBufferSize)
		t.pcbs[i].log = internal.Logger{Log: log}
	}
	return t
}

// Lock/Unlock expose the table's global mutex to the input path, user
// command surface, and timers so they can compose multiple table
// operations under one critical section.
func (t *Table) Lock()   { t.mu.Lock() }
func (t *Table) Unlock() { t.mu.Unlock() }

// alloc returns the first FREE slot, initialised to CLOSED. Caller
// must hold the lock.
func (t *Table) alloc() (*PCB, error) {
	for i := range t.pcbs {
		if t.pcbs[i].state == StateFree {
			pcb := &t.pcbs[i]
			pcb.reset()
			pcb.state = StateClosed
			pcb.startTime = now()
			pcb.connEpoch++
			return pcb, nil
		}
	}
	return nil, ErrResourceExhausted
}

// byID returns the PCB at id if it is live and its epoch still matches,
// guarding against a stale handle addressing a slot that has since been
// reused for a different connection. Caller must hold the lock.
func (t *Table) byID(id int, epoch uint32) (*PCB, error) {
	if id < 0 || id >= len(t.pcbs) {
		return nil, ErrNoPCB
	}
	pcb := &t.pcbs[id]
	if pcb.state == StateFree || pcb.connEpoch != epoch {
		return nil, ErrNoPCB
	}
	return pcb, nil
}

// selectPCB implements the socket lookup precedence: an exact match on
// both endpoints wins; otherwise a LISTEN PCB whose local endpoint
// matches (address exact-or-ANY, port exact) and whose foreign is still
// the wildcard matches any peer. Caller must hold the lock.
func (t *Table) selectPCB(local, foreign Endpoint) *PCB {
	var listenMatch *PCB
	for i := range t.pcbs {
		pcb := &t.pcbs[i]
		if pcb.state == StateFree {
			continue
		}
		if pcb.local == local && pcb.foreign == foreign {
			return pcb
		}
		if pcb.state == StateListen && pcb.local.matchesLocal(local) && pcb.foreign.isAny() {
			listenMatch = pcb
		}
	}
	return listenMatch
}

// selectByLocal returns any PCB whose local endpoint matches, ignoring
// the foreign side entirely; used for bind checks. Caller must hold the
// lock.
func (t *Table) selectByLocal(local Endpoint) *PCB {
	for i := range t.pcbs {
		pcb := &t.pcbs[i]
		if pcb.state != StateFree && pcb.local.matchesLocal(local) {
			return pcb
		}
	}
	return nil
}

// release tries to destroy pcb's wait context. If waiters remain it
// broadcasts an ordinary wake and returns without freeing the slot,
// leaving the woken waiter to retry release on its unwind path.
// Caller must hold the lock.
func (t *Table) release(pcb *PCB) {
	if !pcb.ctx.destroy() {
		pcb.ctx.wake()
		return
	}
	pcb.reset()
}

// forEach calls fn for every non-FREE PCB. Caller must hold the lock;
// fn must not release or reallocate the table's slots via any means
// other than the pcb passed to it.
func (t *Table) forEach(fn func(pcb *PCB)) {
	for i := range t.pcbs {
		if t.pcbs[i].state != StateFree {
			fn(&t.pcbs[i])
		}
	}
}

// now is overridable in tests that need deterministic timers; the
// production default is wall-clock time.
var now = time.Now
