// Package outputunit tracks, per output port, the lifecycle and credit
// count of each downstream virtual channel. Grounded on the credit
// bookkeeping spec.md §4.4 describes; the teacher has no direct analog
// (akita's switches forward flits without VC/credit state), so the shape
// follows the teacher's vc/OutputUnit-adjacent bookkeeping style used
// throughout noc/networking (small state-vector-plus-query-methods types
// like mesh's meshRoutingTable) generalized to per-VC state.
package outputunit

import (
	"fmt"

	"github.com/sarchlab/vcrouter/clock"
	"github.com/sarchlab/vcrouter/config"
	"github.com/sarchlab/vcrouter/vc"
)

type downstreamVC struct {
	state       vc.State
	creditCount int
	idleAt      clock.Tick
}

// OutputUnit is one per output port of a router.
type OutputUnit struct {
	cfg     config.Config
	vcs     []downstreamVC
}

// New creates an OutputUnit whose downstream VCs all start IDLE with a full
// credit count (buffer_depth), matching a freshly reset downstream input
// buffer.
func New(cfg config.Config) *OutputUnit {
	ou := &OutputUnit{cfg: cfg}
	ou.vcs = make([]downstreamVC, cfg.NumVCs())
	for i := range ou.vcs {
		ou.vcs[i] = downstreamVC{state: vc.IDLE, creditCount: cfg.BufferDepth}
	}
	return ou
}

func (o *OutputUnit) checkVC(v int) {
	if v < 0 || v >= len(o.vcs) {
		panic(fmt.Sprintf("outputunit: vc %d out of range [0,%d)", v, len(o.vcs)))
	}
}

// HasFreeVC reports whether some non-escape VC of vnet is IDLE.
func (o *OutputUnit) HasFreeVC(vnet int) bool {
	for i := 0; i < o.cfg.VCsPerVnet; i++ {
		if o.cfg.EscapeVCEnabled && i == 0 {
			continue
		}
		gv := o.cfg.GlobalVC(vnet, i)
		if o.vcs[gv].state == vc.IDLE {
			return true
		}
	}
	return false
}

// HasFreeEscapeVC reports whether the designated escape VC of vnet (offset
// 0) is IDLE and has at least one credit.
func (o *OutputUnit) HasFreeEscapeVC(vnet int) bool {
	if !o.cfg.EscapeVCEnabled {
		return false
	}
	gv := o.cfg.EscapeVCOf(vnet)
	return o.vcs[gv].state == vc.IDLE && o.vcs[gv].creditCount > 0
}

// HasCredit reports whether downstream VC v currently has at least one free
// buffer slot.
func (o *OutputUnit) HasCredit(v int) bool {
	o.checkVC(v)
	return o.vcs[v].creditCount > 0
}

// SelectFreeVC returns and marks ACTIVE a free non-escape VC of vnet, or -1
// if none is free.
func (o *OutputUnit) SelectFreeVC(vnet int, at clock.Tick) int {
	for i := 0; i < o.cfg.VCsPerVnet; i++ {
		if o.cfg.EscapeVCEnabled && i == 0 {
			continue
		}
		gv := o.cfg.GlobalVC(vnet, i)
		if o.vcs[gv].state == vc.IDLE {
			o.vcs[gv].state = vc.ACTIVE
			return gv
		}
	}
	return -1
}

// SetEscapeVC returns and marks ACTIVE the escape VC of vnet if it is IDLE
// and has credit, else -1. The escape VC of a vnet is exclusively owned
// while ACTIVE — no chaining is permitted onto an already-ACTIVE escape VC.
func (o *OutputUnit) SetEscapeVC(vnet int) int {
	gv := o.cfg.EscapeVCOf(vnet)
	if o.vcs[gv].state != vc.IDLE || o.vcs[gv].creditCount == 0 {
		return -1
	}
	o.vcs[gv].state = vc.ACTIVE
	return gv
}

// DecrementCredit consumes one credit of downstream VC v (a flit was sent
// on it). Credits never go negative.
func (o *OutputUnit) DecrementCredit(v int) {
	o.checkVC(v)
	if o.vcs[v].creditCount <= 0 {
		panic(fmt.Sprintf("outputunit: credit underflow on vc %d", v))
	}
	o.vcs[v].creditCount--
}

// IncrementCredit is called on upstream Credit arrival: it returns one
// buffer slot to VC v, and if isFree, marks the VC IDLE (the credit
// accompanied a TAIL/HEAD_TAIL departure upstream).
func (o *OutputUnit) IncrementCredit(v int, isFree bool, at clock.Tick) {
	o.checkVC(v)
	if o.vcs[v].creditCount >= o.cfg.BufferDepth {
		panic(fmt.Sprintf("outputunit: credit overflow on vc %d", v))
	}
	o.vcs[v].creditCount++
	if isFree {
		o.vcs[v].state = vc.IDLE
		o.vcs[v].idleAt = at
	}
}

// FreeCreditsForVnet sums the credit count across vnet's VCs, optionally
// excluding the escape VC. It implements routing.CreditSource's per-outport
// congestion query — ADAPTIVE/CAR3D/UGAL-L read this through a thin
// per-outport adapter in the router package.
func (o *OutputUnit) FreeCreditsForVnet(vnet int, excludeEscape bool) int {
	total := 0
	for i := 0; i < o.cfg.VCsPerVnet; i++ {
		if excludeEscape && o.cfg.EscapeVCEnabled && i == 0 {
			continue
		}
		gv := o.cfg.GlobalVC(vnet, i)
		total += o.vcs[gv].creditCount
	}
	return total
}

// IsVCIdle reports whether downstream VC v is IDLE at time t.
func (o *OutputUnit) IsVCIdle(v int, t clock.Tick) bool {
	o.checkVC(v)
	return o.vcs[v].state == vc.IDLE
}

// GetCreditCount returns the current free-slot count of downstream VC v.
func (o *OutputUnit) GetCreditCount(v int) int {
	o.checkVC(v)
	return o.vcs[v].creditCount
}

// NumVCs returns the total number of downstream VCs tracked.
func (o *OutputUnit) NumVCs() int {
	return len(o.vcs)
}
