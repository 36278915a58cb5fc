package tcp

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ISSGenerator produces initial send sequence numbers as RFC 9293 §3.4.1
// recommends: a slowly-ticking clock component combined with a keyed
// hash of the connection's four-tuple, so that ISS values for distinct
// connections cannot be predicted from one another even though they
// also increase over time. The keying technique mirrors the connection-tuple
// hash used for SYN-cookie generation in link-layer TCP implementations,
// applied here to every new connection rather than only under load.
type ISSGenerator struct {
	mu     sync.Mutex
	secret [32]byte
	ready  bool
}

// Seed installs a random secret key; if never called, the first call to
// New lazily seeds from crypto/rand.
func (g *ISSGenerator) Seed() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := rand.Read(g.secret[:])
	if err != nil {
		return err
	}
	g.ready = true
	return nil
}

// New returns a fresh ISS for a connection identified by the given
// four-tuple (addresses and ports in host order).
func (g *ISSGenerator) New(localAddr, foreignAddr [4]byte, localPort, foreignPort uint16) Value {
	g.mu.Lock()
	if !g.ready {
		rand.Read(g.secret[:])
		g.ready = true
	}
	secret := g.secret
	g.mu.Unlock()

	h, _ := blake2b.New(4, secret[:])
	var tuple [12]byte
	copy(tuple[0:4], localAddr[:])
	copy(tuple[4:8], foreignAddr[:])
	binary.BigEndian.PutUint16(tuple[8:10], localPort)
	binary.BigEndian.PutUint16(tuple[10:12], foreignPort)
	h.Write(tuple[:])
	sum := h.Sum(nil)

	// RFC 9293's 4-microsecond clock component (~4.8 hour wraparound)
	// keeps ISS increasing across successive connections to the same peer.
	clock := uint32(time.Now().UnixMicro() / 4)
	return Value(clock) + Value(binary.BigEndian.Uint32(sum))
}
