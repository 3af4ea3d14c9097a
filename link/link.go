// Package link defines the external collaborators spec.md §6 lists as
// supplied by the host simulator: opaque flit/credit links and the
// pre-built routing/weight tables. The router core only ever calls these
// interfaces — it never owns link transport latency or table population,
// mirroring how the teacher's switches/switches.Comp only ever calls
// sim.Port.Send/PeekIncoming and never owns the wire between two ports.
package link

import (
	"github.com/sarchlab/vcrouter/clock"
	"github.com/sarchlab/vcrouter/flit"
)

// NetworkLink carries flits downstream between two routers (or a router and
// a network interface).
type NetworkLink interface {
	// IsReady reports whether a flit is available to consume at tick t.
	IsReady(t clock.Tick) bool

	// ConsumeLink removes and returns the ready flit. Callers must check
	// IsReady first.
	ConsumeLink() *flit.Flit

	// SendFlit enqueues f onto the link for eventual delivery. It returns
	// false if the link cannot currently accept f (a TransientRejection,
	// per spec.md §7 — never an error value).
	SendFlit(f *flit.Flit) bool

	// ScheduleEventAbsolute asks the link to make its next flit ready no
	// earlier than tick t.
	ScheduleEventAbsolute(t clock.Tick)

	// BitWidth returns the link's configured bit width, asserted against
	// the router's own bit width on every data flit.
	BitWidth() int
}

// CreditLink is the dual of NetworkLink, carrying Credit messages upstream.
type CreditLink interface {
	IsReady(t clock.Tick) bool
	ConsumeCredit() *flit.Credit
	SendCredit(c *flit.Credit) bool
	ScheduleEventAbsolute(t clock.Tick)
}

// Candidate is one weighted routing-table entry for a given vnet: taking
// outport reaches every destination in the entry's original destination
// set, at the given weight (lower is preferred).
type Candidate struct {
	Outport int
	Weight  int
}

// RoutingTable is the pre-built, per-vnet weighted routing table the host
// topology-construction phase populates. spec.md §6: "routing_table[vnet]
// [link] : NetDest; weight_table[link] : int". Candidates performs only the
// "destination-set intersects route.net_dest" filter; it returns every
// matching entry at every weight, not just the minimum — UGAL-L's
// non-minimal first-hop candidate needs the next-best tier above the
// minimum, so weight-filtering is left to the caller (routing.Unit).
type RoutingTable interface {
	// Candidates returns every outport for vnet whose destination set
	// intersects netDest, each tagged with its configured weight.
	Candidates(vnet int, netDest map[int]bool) []Candidate
}

// EulerChild describes one child of a router in the escape spanning tree:
// taking Outport reaches every destination whose Euler-tour label lies in
// [Tin, Tout).
type EulerChild struct {
	Outport int
	Tin     int
	Tout    int
}

// EscapeTree is the pre-built spanning-tree labeling escape_route_compute
// consumes (spec.md §4.5). ParentOutport is -1 at the root.
type EscapeTree struct {
	ParentOutport int
	Children      []EulerChild
}
