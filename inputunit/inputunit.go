// Package inputunit implements the per-input-port ingest logic: pulling
// ready flits off a link.NetworkLink into the owning VC's FIFO, advancing
// new HEAD/HEAD_TAIL flits through route computation, and emitting
// upstream credits. Grounded on the teacher's switches.portPushBack /
// Comp.handleFlit ingest loop (switches/switch.go), generalized to
// spec.md §4.2-4.3's VC-lifecycle-aware admission rules.
package inputunit

import (
	"fmt"

	"github.com/sarchlab/vcrouter/clock"
	"github.com/sarchlab/vcrouter/config"
	"github.com/sarchlab/vcrouter/errkind"
	"github.com/sarchlab/vcrouter/flit"
	"github.com/sarchlab/vcrouter/link"
	"github.com/sarchlab/vcrouter/vc"
)

// RouteComputer is the collaborator InputUnit calls on a newly admitted
// HEAD/HEAD_TAIL flit to fix its outport before it becomes eligible for SA.
// router.Router supplies this (it owns the routing.Unit and the escape-VC
// decision of whether to route on the main algorithm or escape_route_compute).
type RouteComputer interface {
	ComputeOutport(f *flit.Flit, inport int, onEscapeVC bool) int
}

// ControlHandler receives a SPIN control flit (PROBE/MOVE/CHECK_PROBE/
// KILL_MOVE) that arrived on this input port, instead of it being admitted
// into a VC's data FIFO. router.Router supplies this (it owns the SPIN
// Machine).
type ControlHandler interface {
	HandleControl(f *flit.Flit, inport int, now clock.Tick)
}

// InputUnit owns one input port's virtual channels and its ingest from the
// upstream flit/credit links.
type InputUnit struct {
	cfg     config.Config
	index   int
	vcs     []*vc.VirtualChannel
	netLink link.NetworkLink
	crLink  link.CreditLink
}

// New creates an InputUnit at the given router-local port index, with every
// VC starting IDLE.
func New(cfg config.Config, index int, netLink link.NetworkLink, crLink link.CreditLink) *InputUnit {
	iu := &InputUnit{cfg: cfg, index: index, netLink: netLink, crLink: crLink}
	iu.vcs = make([]*vc.VirtualChannel, cfg.NumVCs())
	for i := range iu.vcs {
		iu.vcs[i] = vc.New(i)
	}
	return iu
}

// Index returns this input port's router-local index.
func (iu *InputUnit) Index() int {
	return iu.index
}

// VC returns the virtual channel at global index v.
func (iu *InputUnit) VC(v int) *vc.VirtualChannel {
	if v < 0 || v >= len(iu.vcs) {
		panic(fmt.Sprintf("inputunit %d: vc %d out of range", iu.index, v))
	}
	return iu.vcs[v]
}

// NumVCs returns the number of VCs on this port.
func (iu *InputUnit) NumVCs() int {
	return len(iu.vcs)
}

// Wakeup drains one ready flit off the network link, if any. A control
// flit is handed to ctrl and never touches a VC's data FIFO. A data flit is
// admitted into its VC and advanced to the SA pipeline stage once its
// pipe_stages latency has elapsed; route is consulted only for HEAD/
// HEAD_TAIL flits. clk is used to schedule the coalesced SA wakeup (spec.md
// §9's already_scheduled guidance, mirroring the teacher's
// engine.Event de-duplication for simultaneous per-cycle handlers).
func (iu *InputUnit) Wakeup(clk clock.Clock, route RouteComputer, ctrl ControlHandler) {
	now := clk.CurTick()
	if !iu.netLink.IsReady(now) {
		return
	}

	f := iu.netLink.ConsumeLink()
	if f == nil {
		return
	}

	if f.Type.IsControl() {
		if ctrl != nil {
			ctrl.HandleControl(f, iu.index, now)
		}
		return
	}

	if f.BitWidth != iu.cfg.BitWidth {
		panic(fmt.Sprintf("inputunit %d: flit bit width %d does not match router bit width %d",
			iu.index, f.BitWidth, iu.cfg.BitWidth))
	}

	f.CurrentTick = now
	f.Route.HopsTraversed++

	gv := f.VC
	channel := iu.VC(gv)

	switch {
	case f.Type.IsHead():
		if channel.GetState() != vc.IDLE {
			panic(fmt.Sprintf("inputunit %d: HEAD arrived on non-IDLE vc %d (state %s)",
				iu.index, gv, channel.GetState()))
		}
		channel.SetState(vc.VCAB, now)
		channel.InsertFlit(f)
		onEscape := iu.cfg.IsEscapeVC(gv)
		outport := route.ComputeOutport(f, iu.index, onEscape)
		f.Outport = outport
		channel.GrantOutport(outport)
		channel.SetState(vc.ACTIVE, now)
	default:
		if channel.GetState() != vc.ACTIVE {
			panic(fmt.Sprintf("inputunit %d: %s arrived on vc %d in state %s, expected ACTIVE",
				iu.index, f.Type, gv, channel.GetState()))
		}
		channel.InsertFlit(f)
	}

	saEligible := clk.ClockEdge(clock.Cycles(iu.cfg.PipeStages))
	f.AdvanceStage(flit.StageSA, saEligible)
	if !clk.AlreadyScheduled(saEligible) {
		clk.ScheduleWakeup(clock.Cycles(iu.cfg.PipeStages))
	}

	if iu.netLink.IsReady(now) {
		followUp := clk.ClockEdge(clock.Cycles(1))
		if !clk.AlreadyScheduled(followUp) {
			clk.ScheduleWakeup(clock.Cycles(1))
		}
	}
}

// SendCredit emits a Credit for globalVC, reflecting free on whether the VC
// just went IDLE (its TAIL/HEAD_TAIL was consumed by SA/ST). A rejected send
// is a DroppedControl, not a panic — per spec.md §7 it is counted and the
// deadlock-detection timer re-arms on its own; the caller (router) decides
// how to surface it.
func (iu *InputUnit) SendCredit(globalVC int, free bool, now clock.Tick) error {
	c := flit.NewCredit(globalVC, free, now)
	if !iu.crLink.SendCredit(c) {
		return &errkind.DroppedControl{RouterID: iu.cfg.RouterID, Kind: "CREDIT", Reason: "credit link rejected send"}
	}
	return nil
}

// FreeVCAfterDeparture transitions globalVC back to IDLE once its
// head-of-line flit (a TAIL or HEAD_TAIL) has been granted by SA-II and
// handed to the crossbar, issuing the matching upstream credit.
func (iu *InputUnit) FreeVCAfterDeparture(globalVC int, now clock.Tick) error {
	channel := iu.VC(globalVC)
	channel.SetState(vc.IDLE, now)
	return iu.SendCredit(globalVC, true, now)
}
