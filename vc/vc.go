// Package vc implements per-input-port, per-virtual-channel state: the FIFO
// of buffered flits, lifecycle, chosen outport/downstream-VC, and the SPIN
// frozen bit. Grounded on the teacher's sim.Buffer (push/pop/peek FIFO with
// a Named/Hookable-style exclusive owner) generalized with the VC lifecycle
// state machine spec.md §3 requires.
package vc

import (
	"fmt"

	"github.com/sarchlab/vcrouter/clock"
	"github.com/sarchlab/vcrouter/flit"
)

// State is the VC lifecycle: IDLE (no packet owns it), VCAB (a HEAD has been
// admitted and its outport is being computed), ACTIVE (outport fixed and,
// once SA-II grants, an output VC is bound).
type State int

// VC lifecycle states.
const (
	IDLE State = iota
	VCAB
	ACTIVE
)

func (s State) String() string {
	switch s {
	case IDLE:
		return "IDLE"
	case VCAB:
		return "VC_AB"
	case ACTIVE:
		return "ACTIVE"
	default:
		return "INVALID"
	}
}

// VirtualChannel is one buffered logical channel of an input port.
type VirtualChannel struct {
	index int

	state      State
	buffer     []*flit.Flit
	outport    int
	outVC      int
	enqueueAt  clock.Tick
	frozen     bool
	stallCount int
}

// New creates an IDLE virtual channel at the given per-port index.
func New(index int) *VirtualChannel {
	return &VirtualChannel{
		index:   index,
		state:   IDLE,
		outport: -1,
		outVC:   -1,
	}
}

// Index returns the VC's index within its input port.
func (v *VirtualChannel) Index() int {
	return v.index
}

// InsertFlit appends f to the VC's FIFO. Ownership of f transfers to the VC.
func (v *VirtualChannel) InsertFlit(f *flit.Flit) {
	v.buffer = append(v.buffer, f)
}

// PeekTop returns the head-of-line flit, or nil if the VC is empty.
func (v *VirtualChannel) PeekTop() *flit.Flit {
	if len(v.buffer) == 0 {
		return nil
	}
	return v.buffer[0]
}

// PopTop removes and returns the head-of-line flit.
func (v *VirtualChannel) PopTop() *flit.Flit {
	f := v.PeekTop()
	if f == nil {
		return nil
	}
	v.buffer = v.buffer[1:]
	return f
}

// Size returns the number of flits currently buffered.
func (v *VirtualChannel) Size() int {
	return len(v.buffer)
}

// GetState returns the VC's current lifecycle state.
func (v *VirtualChannel) GetState() State {
	return v.state
}

// SetState transitions the VC to s at time. Transitioning to IDLE clears
// the outport/outVC and enqueue time, matching spec.md §3's invariant that
// an IDLE VC has no fixed route.
func (v *VirtualChannel) SetState(s State, at clock.Tick) {
	if s == IDLE {
		if len(v.buffer) != 0 {
			panic(fmt.Sprintf("vc %d: cannot go IDLE with %d flits buffered",
				v.index, len(v.buffer)))
		}
		v.outport = -1
		v.outVC = -1
		v.enqueueAt = 0
		v.state = IDLE
		return
	}

	if s == VCAB || (s == ACTIVE && v.state == IDLE) {
		v.enqueueAt = at
	}

	v.state = s
}

// GrantOutport fixes the VC's chosen outport for the lifetime of the
// packet currently occupying it.
func (v *VirtualChannel) GrantOutport(outport int) {
	v.outport = outport
}

// Outport returns the VC's fixed outport, or -1 if none is set.
func (v *VirtualChannel) Outport() int {
	return v.outport
}

// GrantOutVC records the downstream VC index this VC has been allocated by
// SA-II.
func (v *VirtualChannel) GrantOutVC(outVC int) {
	v.outVC = outVC
}

// OutVC returns the granted downstream VC index, or -1 if unallocated.
func (v *VirtualChannel) OutVC() int {
	return v.outVC
}

// EnqueueTick returns the tick at which the VC most recently transitioned
// out of IDLE.
func (v *VirtualChannel) EnqueueTick() clock.Tick {
	return v.enqueueAt
}

// IsReady reports whether the head-of-line flit is eligible for SA at time
// t: it must be buffered and sitting in the SA pipeline stage.
func (v *VirtualChannel) IsReady(t clock.Tick) bool {
	head := v.PeekTop()
	if head == nil {
		return false
	}
	return head.IsStage(flit.StageSA, t)
}

// ContainsHeadAndTail reports whether the VC currently buffers both the
// HEAD and the TAIL of the same packet (or a single HEAD_TAIL) — the
// precondition SPIN requires before a MOVE can relocate the whole packet.
func (v *VirtualChannel) ContainsHeadAndTail() bool {
	hasHead, hasTail := false, false
	for _, f := range v.buffer {
		if f.Type.IsHead() {
			hasHead = true
		}
		if f.Type.IsTail() {
			hasTail = true
		}
	}
	return hasHead && hasTail
}

// Freeze marks the VC as bypassed by the switch allocator (SPIN deadlock
// recovery).
func (v *VirtualChannel) Freeze() {
	v.frozen = true
}

// Thaw un-freezes the VC and clears its stall counter. Thawing an
// already-thawed VC is a no-op.
func (v *VirtualChannel) Thaw() {
	if v.frozen {
		v.stallCount = 0
	}
	v.frozen = false
}

// IsFrozen reports whether the VC is currently bypassed by SA.
func (v *VirtualChannel) IsFrozen() bool {
	return v.frozen
}

// IncrementStall bumps the VC's consecutive-SA-failure counter and returns
// the new count.
func (v *VirtualChannel) IncrementStall() int {
	v.stallCount++
	return v.stallCount
}

// ResetStall clears the stall counter. A no-op if already zero.
func (v *VirtualChannel) ResetStall() {
	v.stallCount = 0
}

// StallCount returns the current consecutive-SA-failure count.
func (v *VirtualChannel) StallCount() int {
	return v.stallCount
}
