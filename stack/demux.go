package stack

import (
	"errors"

	"github.com/vnet-go/tcpstack/netstack"
)

// ErrProtoRegistered is returned by Demux.Register when a handler is
// already installed for the given protocol number.
var ErrProtoRegistered = errors.New("stack: protocol already registered")

// Handler processes one inbound IP payload addressed to proto. src/dst
// are the IPv4 header's addresses; iface is the interface the packet
// arrived on, passed through so a handler can learn the egress MTU or
// answer on the same link.
type Handler interface {
	Handle(payload []byte, src, dst [4]byte, iface Interface) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(payload []byte, src, dst [4]byte, iface Interface) error

func (f HandlerFunc) Handle(payload []byte, src, dst [4]byte, iface Interface) error {
	return f(payload, src, dst, iface)
}

// Demux is the pluggable IP protocol demultiplexer: a small registry
// mapping an IP protocol number (spec.md's "pluggable IP-demux
// interface") to the handler that consumes it. TCP registers itself
// under netstack.IPProtoTCP; a UDP or ICMP handler could register
// alongside it without either package knowing about the other.
type Demux struct {
	handlers map[netstack.IPProto]Handler
}

// NewDemux constructs an empty Demux.
func NewDemux() *Demux {
	return &Demux{handlers: make(map[netstack.IPProto]Handler)}
}

// Register installs h as the handler for proto.
func (d *Demux) Register(proto netstack.IPProto, h Handler) error {
	if _, exists := d.handlers[proto]; exists {
		return ErrProtoRegistered
	}
	d.handlers[proto] = h
	return nil
}

// Dispatch routes payload to the handler registered for proto, if any.
// Packets for unregistered protocols are silently dropped, matching the
// "drop unknown protocol" behavior of the teacher's link dispatch loop.
func (d *Demux) Dispatch(proto netstack.IPProto, payload []byte, src, dst [4]byte, iface Interface) error {
	h, ok := d.handlers[proto]
	if !ok {
		return nil
	}
	return h.Handle(payload, src, dst, iface)
}
