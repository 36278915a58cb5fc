package arp

import (
	"errors"
	"log/slog"

	"github.com/vnet-go/tcpstack/ethernet"
	"github.com/vnet-go/tcpstack/netstack"
)

// ErrIncomplete is returned by Resolver.Resolve while a query for the
// requested address is outstanding: a request has been (or is about to
// be) sent and no reply has arrived yet. Callers should retry later
// rather than treat this as a failure.
var ErrIncomplete = errors.New("arp: resolution pending")

type pendingQuery struct {
	proto [4]byte
	hw    ethernet.Addr
	valid bool // hw has been filled in by a reply
	sent  bool // request frame has been emitted at least once
}

// Resolver maintains the cache of resolved IPv4-to-Ethernet mappings
// and the set of outstanding queries. It does not own a socket or an
// interface; Resolve/Demux are driven by the IP output path and the
// interface's inbound dispatch loop respectively.
type Resolver struct {
	ourHW    ethernet.Addr
	ourProto [4]byte
	queries  []pendingQuery
	log      *slog.Logger
}

// ResolverConfig configures a new Resolver.
type ResolverConfig struct {
	HardwareAddr ethernet.Addr
	ProtocolAddr [4]byte
	MaxQueries   int
	Logger       *slog.Logger
}

// NewResolver constructs a Resolver ready to query and answer ARP
// requests on behalf of the given local address pair.
func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.MaxQueries <= 0 {
		cfg.MaxQueries = 8
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{
		ourHW:    cfg.HardwareAddr,
		ourProto: cfg.ProtocolAddr,
		queries:  make([]pendingQuery, 0, cfg.MaxQueries),
		log:      cfg.Logger,
	}
}

// Resolve looks up the hardware address for a protocol (IPv4) address.
// If no query is outstanding for addr, one is started as a side effect
// and ErrIncomplete is returned; the caller is expected to poll again
// after giving the interface a chance to send the request and receive
// a reply.
func (r *Resolver) Resolve(proto [4]byte) (ethernet.Addr, error) {
	for i := range r.queries {
		if r.queries[i].proto == proto {
			if r.queries[i].valid {
				return r.queries[i].hw, nil
			}
			return ethernet.Addr{}, ErrIncomplete
		}
	}
	if err := r.startQuery(proto); err != nil {
		return ethernet.Addr{}, err
	}
	return ethernet.Addr{}, ErrIncomplete
}

func (r *Resolver) startQuery(proto [4]byte) error {
	if len(r.queries) == cap(r.queries) {
		// Evict the oldest entry, resolved or not, to make room; a full table
		// of stale queries should not wedge new resolution attempts.
		copy(r.queries, r.queries[1:])
		r.queries = r.queries[:len(r.queries)-1]
	}
	r.queries = append(r.queries, pendingQuery{proto: proto})
	return nil
}

// PendingRequest returns the next outstanding query that still needs a
// request frame sent, and reports whether one was found. Called by the
// interface's transmit path to drain queued ARP work.
func (r *Resolver) PendingRequest() (proto [4]byte, ok bool) {
	for i := range r.queries {
		if !r.queries[i].sent {
			r.queries[i].sent = true
			return r.queries[i].proto, true
		}
	}
	return [4]byte{}, false
}

// EncodeRequest writes an ARP request for proto into buf, which must be
// at least sizeHeader bytes. Returns the number of bytes written.
func (r *Resolver) EncodeRequest(buf []byte, proto [4]byte) (int, error) {
	frm, err := NewFrame(buf)
	if err != nil {
		return 0, err
	}
	frm.SetHeader()
	frm.SetOperation(OpRequest)
	frm.SetSenderHW(r.ourHW)
	frm.SetSenderProto(r.ourProto)
	frm.SetTargetHW(ethernet.Addr{})
	frm.SetTargetProto(proto)
	return sizeHeader, nil
}

// Demux processes an inbound ARP frame: answering requests addressed to
// our protocol address and completing outstanding queries on replies.
// encodeReply, if the frame demands a reply, is filled with the reply
// frame and replyLen is its length; the caller is responsible for
// wrapping it in an Ethernet frame addressed back to the requester.
func (r *Resolver) Demux(buf []byte, encodeReply []byte) (replyLen int, err error) {
	frm, err := NewFrame(buf)
	if err != nil {
		return 0, err
	}
	if frm.HType() != 1 || frm.HLen() != 6 || frm.PType() != netstack.EtherTypeIPv4 || frm.PLen() != 4 {
		return 0, errors.New("arp: unsupported hardware/protocol combination")
	}
	switch frm.Operation() {
	case OpRequest:
		target := frm.TargetProto()
		if target != r.ourProto {
			return 0, nil // not for us
		}
		if len(encodeReply) < sizeHeader {
			return 0, errors.New("arp: reply buffer too small")
		}
		reply, _ := NewFrame(encodeReply)
		reply.SetHeader()
		reply.SetOperation(OpReply)
		reply.SetSenderHW(r.ourHW)
		reply.SetSenderProto(r.ourProto)
		reply.SetTargetHW(frm.SenderHW())
		reply.SetTargetProto(frm.SenderProto())
		return sizeHeader, nil

	case OpReply:
		sender := frm.SenderProto()
		senderHW := frm.SenderHW()
		for i := range r.queries {
			if r.queries[i].proto == sender && !r.queries[i].valid {
				r.queries[i].hw = senderHW
				r.queries[i].valid = true
				r.log.Debug("arp resolved", "proto", sender, "hw", senderHW)
				return 0, nil
			}
		}
		return 0, nil

	default:
		return 0, errors.New("arp: unsupported operation")
	}
}
