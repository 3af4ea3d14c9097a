// Package allocator implements the two-stage separable switch allocator:
// SA-I picks at most one requesting VC per input port, SA-II grants at most
// one winning request per output port (and, for data flits, allocates the
// downstream VC and decrements its credit). Escape-VC requests are given
// strict priority in both stages, per spec.md §4.6. The teacher's own
// arbiter implementation is absent from the retrieval pack (only its call
// shape survives in switches/switch.go's AddBuffer/Arbitrate), so this
// follows that call shape — register candidates, then arbitrate to a
// single winner — re-derived for SA-I/SA-II's two-stage, escape-priority
// semantics spec.md §4.6 specifies.
package allocator

import (
	"sort"

	"github.com/sarchlab/vcrouter/clock"
	"github.com/sarchlab/vcrouter/config"
	"github.com/sarchlab/vcrouter/flit"
	"github.com/sarchlab/vcrouter/outputunit"
	"github.com/sarchlab/vcrouter/vc"
)

// Request is one VC's bid to send its head-of-line flit this cycle.
type Request struct {
	Inport  int
	VC      int // global VC index
	Vnet    int
	Outport int
	IsEscape bool
	Flit    *flit.Flit
	// BoundOutVC is the downstream VC this input VC already committed to at
	// HEAD admission, or -1 if this request's flit is itself the HEAD still
	// awaiting allocation.
	BoundOutVC int
}

// Grant is the result of SA-II: inport/vc won outport, and (for a
// newly-admitted HEAD) was allocated downstream VC OutVC.
type Grant struct {
	Inport  int
	VC      int
	Outport int
	OutVC   int
}

// Allocator runs SA-I then SA-II over one cycle's requests.
type Allocator struct {
	cfg config.Config

	rrSAI  map[int]int // per-inport round-robin pointer over VCs
	rrSAII map[int]int // per-outport round-robin pointer over inports
}

// New creates an Allocator for the given configuration.
func New(cfg config.Config) *Allocator {
	return &Allocator{
		cfg:    cfg,
		rrSAI:  make(map[int]int),
		rrSAII: make(map[int]int),
	}
}

// InputPort is the minimal view SA-I/SA-II need of an input port's VCs,
// satisfied by *inputunit.InputUnit without allocator importing it (which
// would cycle back through RouteComputer).
type InputPort interface {
	NumVCs() int
	VC(v int) *vc.VirtualChannel
}

// OutputPort is the minimal OutputUnit view SA-II needs.
type OutputPort interface {
	HasFreeVC(vnet int) bool
	HasFreeEscapeVC(vnet int) bool
	SelectFreeVC(vnet int, at clock.Tick) int
	SetEscapeVC(vnet int) int
	DecrementCredit(v int)
	GetCreditCount(v int) int
}

var _ OutputPort = (*outputunit.OutputUnit)(nil)

// SAI runs stage one: for each input port, pick at most one requesting VC
// (the head-of-line flit must be eligible for SA, vc.IsReady), preferring
// an escape-VC request over any non-escape request, round-robining among
// ties. Ordered vnets additionally require that no VC of the same ordered
// vnet on this input with an earlier EnqueueTick still holds an unsent flit
// destined for the same outport — spec.md §4.6/§5(a)'s inject-order
// constraint — enforced by the caller's sendAllowed admitting only the
// oldest occupied VC per (inport, ordered vnet, outport).
func (a *Allocator) SAI(ports map[int]InputPort, at clock.Tick, sendAllowed func(inport, globalVC int) bool) []Request {
	var requests []Request

	inports := sortedKeys(ports)
	for _, inport := range inports {
		iu := ports[inport]
		req, ok := a.arbitrateInport(inport, iu, at, sendAllowed)
		if ok {
			requests = append(requests, req)
		}
	}
	return requests
}

func (a *Allocator) arbitrateInport(inport int, iu InputPort, at clock.Tick, sendAllowed func(inport, gv int) bool) (Request, bool) {
	var escapeCands, normalCands []int
	for gv := 0; gv < iu.NumVCs(); gv++ {
		channel := iu.VC(gv)
		if channel.IsFrozen() || !channel.IsReady(at) {
			continue
		}
		if sendAllowed != nil && !sendAllowed(inport, gv) {
			continue
		}
		if a.cfg.IsEscapeVC(gv) {
			escapeCands = append(escapeCands, gv)
		} else {
			normalCands = append(normalCands, gv)
		}
	}

	pool := escapeCands
	isEscape := true
	if len(pool) == 0 {
		pool = normalCands
		isEscape = false
	}
	if len(pool) == 0 {
		return Request{}, false
	}

	sort.Ints(pool)
	ptr := a.rrSAI[inport] % len(pool)
	chosen := pool[ptr]
	a.rrSAI[inport] = (ptr + 1) % len(pool)

	channel := iu.VC(chosen)
	f := channel.PeekTop()
	return Request{
		Inport:     inport,
		VC:         chosen,
		Vnet:       a.cfg.VnetOf(chosen),
		Outport:    channel.Outport(),
		IsEscape:   isEscape,
		Flit:       f,
		BoundOutVC: channel.OutVC(),
	}, true
}

// SAII runs stage two: group SA-I's winners by outport, pick at most one
// per outport (escape requests win over non-escape, round-robin among
// ties), and for data flits allocate the downstream VC and decrement its
// credit.
func (a *Allocator) SAII(requests []Request, outs map[int]OutputPort, at clock.Tick) []Grant {
	byOutport := make(map[int][]Request)
	for _, r := range requests {
		byOutport[r.Outport] = append(byOutport[r.Outport], r)
	}

	var grants []Grant
	for outport, group := range byOutport {
		grant, ok := a.arbitrateOutport(outport, group, outs[outport], at)
		if ok {
			grants = append(grants, grant)
		}
	}

	sort.Slice(grants, func(i, j int) bool { return grants[i].Inport < grants[j].Inport })
	return grants
}

func (a *Allocator) arbitrateOutport(outport int, group []Request, ou OutputPort, at clock.Tick) (Grant, bool) {
	escape, normal := splitByEscape(group)

	pool := escape
	if len(pool) == 0 {
		pool = normal
	}
	if len(pool) == 0 {
		return Grant{}, false
	}

	sort.Slice(pool, func(i, j int) bool { return pool[i].Inport < pool[j].Inport })
	ptr := a.rrSAII[outport] % len(pool)

	for tries := 0; tries < len(pool); tries++ {
		idx := (ptr + tries) % len(pool)
		r := pool[idx]

		outVC, ok := a.allocateDownstreamVC(r, ou, at)
		if !ok {
			continue
		}

		a.rrSAII[outport] = (idx + 1) % len(pool)
		return Grant{Inport: r.Inport, VC: r.VC, Outport: outport, OutVC: outVC}, true
	}
	return Grant{}, false
}

// allocateDownstreamVC returns the downstream VC this grant should use: for
// a non-HEAD flit continuing a packet it reuses the outVC SA-I copied from
// channel.OutVC into Request.BoundOutVC, provided that VC still has a
// credit; a HEAD (Flit.Type.IsHead()) is given a fresh downstream VC.
func (a *Allocator) allocateDownstreamVC(r Request, ou OutputPort, at clock.Tick) (int, bool) {
	if r.Flit == nil {
		return -1, false
	}

	if !r.Flit.Type.IsHead() {
		if r.BoundOutVC == -1 || ou.GetCreditCount(r.BoundOutVC) == 0 {
			return -1, false
		}
		ou.DecrementCredit(r.BoundOutVC)
		return r.BoundOutVC, true
	}

	if r.IsEscape {
		outVC := ou.SetEscapeVC(r.Vnet)
		if outVC == -1 {
			return -1, false
		}
		ou.DecrementCredit(outVC)
		return outVC, true
	}

	outVC := ou.SelectFreeVC(r.Vnet, at)
	if outVC == -1 {
		return -1, false
	}
	ou.DecrementCredit(outVC)
	return outVC, true
}

func splitByEscape(group []Request) (escape, normal []Request) {
	for _, r := range group {
		if r.IsEscape {
			escape = append(escape, r)
		} else {
			normal = append(normal, r)
		}
	}
	return
}

func sortedKeys(m map[int]InputPort) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
