package ipv4

import (
	"errors"
	"net/netip"

	"github.com/gaissmai/bart"
)

// ErrNoRoute is returned by RouteTable.Lookup when no route, including
// the default, covers the destination.
var ErrNoRoute = errors.New("ipv4: no route to host")

// Route describes how to reach a destination network: which local
// interface to transmit on and, for anything off the local subnet,
// which next-hop address to resolve via ARP instead of the
// destination itself.
type Route struct {
	Iface   string
	Gateway netip.Addr // zero Addr means the destination is on-link
}

// RouteTable is a longest-prefix-match routing table. The zero value is
// an empty table ready to use; NewRouteTable returns a pointer to one.
type RouteTable struct {
	t bart.Table[Route]
}

// NewRouteTable returns an empty RouteTable.
func NewRouteTable() *RouteTable {
	return &RouteTable{}
}

// Add installs or replaces the route for prefix.
func (rt *RouteTable) Add(prefix netip.Prefix, r Route) {
	rt.t.Insert(prefix, r)
}

// Remove deletes the route for prefix, if present.
func (rt *RouteTable) Remove(prefix netip.Prefix) {
	rt.t.Delete(prefix)
}

// Lookup returns the most specific route covering dst.
func (rt *RouteTable) Lookup(dst netip.Addr) (Route, error) {
	r, ok := rt.t.Lookup(dst)
	if !ok {
		return Route{}, ErrNoRoute
	}
	return r, nil
}

// NextHop returns the address that ARP must resolve in order to
// transmit a packet bound for dst: the gateway of the matching route,
// or dst itself when the route says the destination is on-link.
func (rt *RouteTable) NextHop(dst netip.Addr) (netip.Addr, string, error) {
	r, err := rt.Lookup(dst)
	if err != nil {
		return netip.Addr{}, "", err
	}
	if r.Gateway.IsValid() {
		return r.Gateway, r.Iface, nil
	}
	return dst, r.Iface, nil
}
