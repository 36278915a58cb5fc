// Package stack ties the link, ARP, and IP layers into something TCP
// can be driven against end-to-end: a virtual network interface
// abstraction, a pluggable IP protocol demultiplexer, and the IP output
// path that chains routing, ARP resolution, and Ethernet framing.
package stack

import (
	"errors"
	"sync"

	"github.com/vnet-go/tcpstack/ethernet"
)

// ErrWouldBlock is returned by Interface.Send implementations (notably
// LoopbackInterface) whose outbound queue is full; callers retry rather
// than treat it as a transmission failure.
var ErrWouldBlock = errors.New("stack: interface send queue full")

// Interface is a virtual network interface: a name, an MTU, a hardware
// address, and a frame-level send/receive surface. Real link drivers
// (tap, raw socket) and test doubles alike implement it; the IP output
// path and ARP resolver only ever see this contract.
type Interface interface {
	Name() string
	MTU() int
	HardwareAddr() ethernet.Addr
	// Send transmits a fully framed Ethernet frame.
	Send(frame []byte) error
	// Recv returns the channel inbound frames arrive on. Closed when
	// the interface is shut down.
	Recv() <-chan []byte
}

// LoopbackInterface is an in-memory interface whose sent frames are
// immediately made available for receive, useful for exercising the
// full stack (TCP down through Ethernet framing and back up) without
// any real link. Modeled on the teacher's link-driver abstraction,
// simplified to a buffered channel in place of a platform file
// descriptor.
type LoopbackInterface struct {
	name string
	mtu  int
	hw   ethernet.Addr
	ch   chan []byte
}

// NewLoopbackInterface constructs a LoopbackInterface with the given
// queue depth for in-flight frames.
func NewLoopbackInterface(name string, mtu int, hw ethernet.Addr, queueDepth int) *LoopbackInterface {
	if queueDepth <= 0 {
		queueDepth = 16
	}
	return &LoopbackInterface{name: name, mtu: mtu, hw: hw, ch: make(chan []byte, queueDepth)}
}

func (lo *LoopbackInterface) Name() string               { return lo.name }
func (lo *LoopbackInterface) MTU() int                    { return lo.mtu }
func (lo *LoopbackInterface) HardwareAddr() ethernet.Addr { return lo.hw }
func (lo *LoopbackInterface) Recv() <-chan []byte         { return lo.ch }

func (lo *LoopbackInterface) Send(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	select {
	case lo.ch <- cp:
		return nil
	default:
		return ErrWouldBlock
	}
}

// DummyInterface records every frame handed to Send without looping it
// back, for tests that only need to assert what was transmitted.
type DummyInterface struct {
	name string
	mtu  int
	hw   ethernet.Addr

	mu   sync.Mutex
	sent [][]byte
	ch   chan []byte
}

// NewDummyInterface constructs a DummyInterface.
func NewDummyInterface(name string, mtu int, hw ethernet.Addr) *DummyInterface {
	return &DummyInterface{name: name, mtu: mtu, hw: hw, ch: make(chan []byte)}
}

func (d *DummyInterface) Name() string               { return d.name }
func (d *DummyInterface) MTU() int                    { return d.mtu }
func (d *DummyInterface) HardwareAddr() ethernet.Addr { return d.hw }
func (d *DummyInterface) Recv() <-chan []byte         { return d.ch }

func (d *DummyInterface) Send(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.mu.Lock()
	d.sent = append(d.sent, cp)
	d.mu.Unlock()
	return nil
}

// Sent returns every frame previously passed to Send, in order.
func (d *DummyInterface) Sent() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.sent))
	copy(out, d.sent)
	return out
}

// Deliver injects frame as though it had arrived on the wire, for tests
// driving the inbound path.
func (d *DummyInterface) Deliver(frame []byte) {
	d.ch <- frame
}
