package stack

import (
	"log/slog"
	"net/netip"

	"github.com/vnet-go/tcpstack/arp"
	"github.com/vnet-go/tcpstack/ethernet"
	"github.com/vnet-go/tcpstack/internal"
	"github.com/vnet-go/tcpstack/ipv4"
	"github.com/vnet-go/tcpstack/netstack"
	"github.com/vnet-go/tcpstack/tcp"
)

// DefaultTTL is the IPv4 TTL this stack stamps on every datagram it
// originates.
const DefaultTTL = 64

// Stack chains routing, ARP resolution, and Ethernet/IPv4 framing on
// top of a single Interface, giving TCP a concrete OutputFunc and
// giving the interface's inbound frames somewhere to land. Grounded on
// the teacher's StackEthernet node-registry/demux pattern, generalized
// to a routed, ARP-resolving egress path the teacher (single-homed,
// no routing) never needed.
type Stack struct {
	iface  Interface
	routes *ipv4.RouteTable
	resolv *arp.Resolver
	demux  *Demux
	ourIP  [4]byte
	ttl    uint8
	log    internal.Logger
	ipID   uint16
}

// Config configures a new Stack.
type Config struct {
	Interface Interface
	Routes    *ipv4.RouteTable
	Resolver  *arp.Resolver
	OurIP     [4]byte
	TTL       uint8
	Logger    *slog.Logger
}

// New constructs a Stack bound to one interface.
func New(cfg Config) *Stack {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Stack{
		iface:  cfg.Interface,
		routes: cfg.Routes,
		resolv: cfg.Resolver,
		demux:  NewDemux(),
		ourIP:  cfg.OurIP,
		ttl:    cfg.TTL,
		log:    internal.Logger{Log: cfg.Logger},
	}
}

// RegisterTCP installs table as the handler for TCP segments, decoding
// each inbound IPv4 payload into a tcp.Segment and driving table.Input.
func (s *Stack) RegisterTCP(table *tcp.Table) error {
	return s.demux.Register(netstack.IPProtoTCP, HandlerFunc(func(payload []byte, src, dst [4]byte, iface Interface) error {
		frm, err := tcp.NewFrame(payload)
		if err != nil {
			return err
		}
		hl := frm.HeaderLength()
		if hl > len(payload) {
			return nil // malformed header-length nibble, drop
		}
		var csum netstack.Checksum
		csum.Write(src[:])
		csum.Write(dst[:])
		csum.Add16(uint16(netstack.IPProtoTCP))
		csum.Add16(uint16(len(payload)))
		csum.Write(payload)
		if csum.Sum16() != 0 {
			return nil // bad checksum, drop
		}
		seg := frm.ToSegment(len(payload) - hl)
		local := tcp.Endpoint{Addr: dst, Port: frm.DestPort()}
		foreign := tcp.Endpoint{Addr: src, Port: frm.SourcePort()}
		table.Input(local, foreign, seg, frm.Payload(), s.TCPOutput)
		return nil
	}))
}

// TCPOutput implements tcp.OutputFunc: it resolves the egress route and
// next-hop hardware address and transmits seg as a framed IPv4/Ethernet
// packet. Per the OutputFunc contract, failures (no route, ARP still
// pending) are logged and the segment is simply dropped — TCP's own
// retransmission timer covers the loss.
func (s *Stack) TCPOutput(local, foreign tcp.Endpoint, seg tcp.Segment, payload []byte) {
	dst := netip.AddrFrom4(foreign.Addr)
	nextHop, ifaceName, err := s.routes.NextHop(dst)
	if err != nil {
		s.log.Debug("stack: no route", slog.String("dst", dst.String()))
		return
	}
	_ = ifaceName // single-interface Stack; multi-interface selection is future work.

	hw, err := s.resolv.Resolve(nextHop.As4())
	if err == arp.ErrIncomplete {
		s.log.Debug("stack: arp pending, dropping segment", slog.String("nexthop", nextHop.String()))
		return
	}
	if err != nil {
		s.log.Error("stack: arp resolve", slog.String("err", err.Error()))
		return
	}

	const tcpHeaderLen = 20
	ipTotalLen := netstack.SizeHeaderIPv4Min + tcpHeaderLen + len(payload)
	mtu := s.iface.MTU()
	if ipTotalLen > mtu {
		s.log.Error("stack: segment exceeds MTU", slog.Int("mtu", mtu), slog.Int("need", ipTotalLen))
		return
	}
	buf := make([]byte, netstack.SizeHeaderEthernet+ipTotalLen)

	efrm, _ := ethernet.NewFrame(buf)
	efrm.SetDestination(hw)
	efrm.SetSource(s.iface.HardwareAddr())
	efrm.SetEtherType(netstack.EtherTypeIPv4)

	ipfrm, _ := ipv4.NewFrame(efrm.Payload())
	ipfrm.SetVersionAndIHL(4, 5)
	ipfrm.SetTOS(0)
	ipfrm.SetTotalLength(uint16(ipTotalLen))
	s.ipID++
	ipfrm.SetID(s.ipID)
	ipfrm.SetFlagsAndFragOffset(0)
	ipfrm.SetTTL(s.ttl)
	ipfrm.SetProtocol(netstack.IPProtoTCP)
	ipfrm.SetSourceAddr(local.Addr)
	ipfrm.SetDestinationAddr(foreign.Addr)
	ipfrm.SetChecksum(0)
	ipfrm.SetChecksum(ipfrm.CalculateHeaderChecksum())

	tfrm, _ := tcp.NewFrame(ipfrm.Payload())
	tfrm.ClearHeader()
	tfrm.SetSourcePort(local.Port)
	tfrm.SetDestPort(foreign.Port)
	tfrm.SetHeader(seg, 5)
	copy(tfrm.Payload(), payload)

	var csum netstack.Checksum
	ipfrm.WritePseudoHeader(&csum, uint16(tcpHeaderLen+len(payload)))
	tfrm.SetChecksum(tfrm.CalculateChecksum(csum, tcpHeaderLen+len(payload)))

	if err := s.iface.Send(efrm.RawData()); err != nil {
		s.log.Error("stack: send", slog.String("err", err.Error()))
	}
}

// HandleFrame processes one inbound Ethernet frame: answering or
// completing ARP exchanges and dispatching IPv4 payloads through the
// protocol demux. Intended to be called in a loop reading from
// Interface.Recv().
func (s *Stack) HandleFrame(frame []byte) error {
	efrm, err := ethernet.NewFrame(frame)
	if err != nil {
		return err
	}
	dst := efrm.Destination()
	if dst != ethernet.Broadcast && dst != s.iface.HardwareAddr() {
		return nil // not addressed to us
	}

	switch efrm.EtherType() {
	case netstack.EtherTypeARP:
		return s.handleARP(efrm)
	case netstack.EtherTypeIPv4:
		return s.handleIPv4(efrm)
	default:
		return nil
	}
}

func (s *Stack) handleARP(efrm ethernet.Frame) error {
	replyBuf := make([]byte, 28)
	n, err := s.resolv.Demux(efrm.Payload(), replyBuf)
	if err != nil || n == 0 {
		return err
	}
	out := make([]byte, netstack.SizeHeaderEthernet+n)
	reply, _ := ethernet.NewFrame(out)
	reply.SetSource(s.iface.HardwareAddr())
	reply.SetEtherType(netstack.EtherTypeARP)
	copy(reply.Payload(), replyBuf[:n])
	replyARP, err := arp.NewFrame(reply.Payload())
	if err != nil {
		return err
	}
	reply.SetDestination(replyARP.TargetHW())
	return s.iface.Send(out)
}

func (s *Stack) handleIPv4(efrm ethernet.Frame) error {
	ipfrm, err := ipv4.NewFrame(efrm.Payload())
	if err != nil {
		return err
	}
	if err := ipfrm.Validate(); err != nil {
		return err
	}
	if ipfrm.FlagsAndFragOffset()&0x3fff != 0 {
		return nil // fragment (MF set or nonzero offset): not reassembled, drop
	}
	return s.demux.Dispatch(ipfrm.Protocol(), ipfrm.Payload(), ipfrm.SourceAddr(), ipfrm.DestinationAddr(), s.iface)
}

// SendPendingARP drains one outstanding ARP query (if any) and
// transmits the corresponding request frame on the interface. Intended
// to be polled periodically by whatever drives the interface's send
// loop, alongside the TCP retransmit timer.
func (s *Stack) SendPendingARP() error {
	proto, ok := s.resolv.PendingRequest()
	if !ok {
		return nil
	}
	buf := make([]byte, netstack.SizeHeaderEthernet+28)
	efrm, _ := ethernet.NewFrame(buf)
	efrm.SetSource(s.iface.HardwareAddr())
	efrm.SetDestination(ethernet.Broadcast)
	efrm.SetEtherType(netstack.EtherTypeARP)
	if _, err := s.resolv.EncodeRequest(efrm.Payload(), proto); err != nil {
		return err
	}
	return s.iface.Send(buf)
}
