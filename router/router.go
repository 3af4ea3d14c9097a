// Package router composes one router core out of InputUnits, OutputUnits,
// a RoutingUnit, a SwitchAllocator, a Crossbar, and (when enabled) the SPIN
// deadlock-recovery Machine, orchestrating them through one Wakeup per
// cycle in the strict order spec.md §5 mandates: ingest, credit ingest,
// SPIN bookkeeping, SA-I, SA-II, switch traversal. Grounded on the
// teacher's top-level Comp.handleTickEvent orchestration (switches/
// switch.go) and its Builder pattern (endpoint.Builder,
// noc.MakeSwitchPortAdder).
package router

import (
	"sort"

	"github.com/sarchlab/vcrouter/allocator"
	"github.com/sarchlab/vcrouter/clock"
	"github.com/sarchlab/vcrouter/config"
	"github.com/sarchlab/vcrouter/crossbar"
	"github.com/sarchlab/vcrouter/errkind"
	"github.com/sarchlab/vcrouter/flit"
	"github.com/sarchlab/vcrouter/inputunit"
	"github.com/sarchlab/vcrouter/link"
	"github.com/sarchlab/vcrouter/outputunit"
	"github.com/sarchlab/vcrouter/routing"
	"github.com/sarchlab/vcrouter/spin"
	"github.com/sarchlab/vcrouter/vc"
)

// Router is one cycle-accurate VC wormhole router core.
type Router struct {
	cfg  config.Config
	id   int
	clk  clock.Clock

	inputs    map[int]*inputunit.InputUnit
	outputs   map[int]*outputunit.OutputUnit
	outLink   map[int]link.NetworkLink
	outCredit map[int]link.CreditLink

	routingUnit *routing.Unit
	alloc       *allocator.Allocator
	xbar        *crossbar.Crossbar
	spinMachine *spin.Machine

	tinOf func(routerID int) int

	droppedControls []error
}

// Builder builds a Router with fluent With* setters, following the
// teacher's endpoint.Builder/switch-adder idiom.
type Builder struct {
	r Router
}

// MakeBuilder creates a Builder for router id under cfg.
func MakeBuilder(cfg config.Config, id int, clk clock.Clock) Builder {
	b := Builder{}
	b.r.cfg = cfg
	b.r.id = id
	b.r.clk = clk
	b.r.inputs = make(map[int]*inputunit.InputUnit)
	b.r.outputs = make(map[int]*outputunit.OutputUnit)
	b.r.outLink = make(map[int]link.NetworkLink)
	b.r.outCredit = make(map[int]link.CreditLink)
	return b
}

// WithRoutingUnit attaches the routing advisor.
func (b Builder) WithRoutingUnit(u *routing.Unit) Builder {
	b.r.routingUnit = u
	return b
}

// WithSpinMachine attaches the SPIN deadlock-recovery state machine. Leave
// unset when config.SpinSchemeEnabled is false.
func (b Builder) WithSpinMachine(m *spin.Machine) Builder {
	b.r.spinMachine = m
	return b
}

// WithEscapeTinLookup supplies the Euler-tour tin() lookup escape_route_
// compute needs for any destination.
func (b Builder) WithEscapeTinLookup(f func(routerID int) int) Builder {
	b.r.tinOf = f
	return b
}

// AddPort wires one input port (with its upstream flit/credit links) and
// the matching output port (with its downstream flit link and the credit
// link the downstream neighbor returns credits on), sharing the port index
// between the two, as every router port in this design is bidirectional.
// outCredit is the receive side of the credit link that the downstream
// neighbor's InputUnit sends upstream on (its own inCredit for the port
// facing this one) — leave it nil for a port with no wired downstream
// output traffic.
func (b Builder) AddPort(port int, inLink link.NetworkLink, inCredit link.CreditLink, outLink link.NetworkLink, outCredit link.CreditLink) Builder {
	b.r.inputs[port] = inputunit.New(b.r.cfg, port, inLink, inCredit)
	b.r.outputs[port] = outputunit.New(b.r.cfg)
	b.r.outLink[port] = outLink
	b.r.outCredit[port] = outCredit
	return b
}

// Build finalizes the Router, validating its configuration first.
func (b Builder) Build() (*Router, error) {
	if err := b.r.cfg.Validate(b.r.id); err != nil {
		return nil, err
	}
	if b.r.routingUnit == nil {
		return nil, &errkind.ConfigInvalid{RouterID: b.r.id, Reason: "routing unit not attached"}
	}

	r := b.r
	r.alloc = allocator.New(r.cfg)
	r.xbar = crossbar.New(r.outLink)
	router := r
	return &router, nil
}

// ID returns this router's numeric identity.
func (r *Router) ID() int { return r.id }

// ComputeOutport implements inputunit.RouteComputer, dispatching to the
// escape-tree lookup for escape-VC admissions and to the configured
// algorithm otherwise.
func (r *Router) ComputeOutport(f *flit.Flit, inport int, onEscapeVC bool) int {
	if onEscapeVC && r.cfg.EscapeVCEnabled {
		if r.tinOf == nil {
			panic("router: escape VC enabled but no Euler-tour tin() lookup was attached")
		}
		return r.routingUnit.EscapeRouteCompute(f.Route, f.Vnet, r.tinOf)
	}

	dir := routing.DirOther
	credits := r.creditView()
	return r.routingUnit.OutportCompute(f.Route, inport, dir, f.Vnet, credits)
}

type creditView struct {
	outputs map[int]*outputunit.OutputUnit
}

func (c creditView) FreeCredits(outport, vnet int, excludeEscape bool) int {
	ou, ok := c.outputs[outport]
	if !ok {
		return 0
	}
	return ou.FreeCreditsForVnet(vnet, excludeEscape)
}

func (r *Router) creditView() routing.CreditSource {
	return creditView{outputs: r.outputs}
}

// HandleControl implements inputunit.ControlHandler, dispatching an
// arrived SPIN control flit to the Machine and forwarding/emitting whatever
// it produces. A nil spinMachine (SPIN disabled) silently drops control
// flits — they cannot arrive in that configuration since no router ever
// emits one.
func (r *Router) HandleControl(f *flit.Flit, inport int, now clock.Tick) {
	if r.spinMachine == nil {
		return
	}

	switch f.Type {
	case flit.Probe:
		vnetVCs := r.vnetVCSnapshot(r.cfg.VnetOf(f.SourceVC))
		forwards, mv, err := r.spinMachine.HandleProbe(f, vnetVCs, now)
		if err != nil {
			r.droppedControls = append(r.droppedControls, err)
			return
		}
		for _, fk := range forwards {
			r.sendControl(fk.Probe, fk.Outport, now)
		}
		if mv != nil {
			blockedOutport, _ := r.localStallOn(inport)
			r.sendControl(mv, blockedOutport, now)
		}
	case flit.Move:
		fwd, done := r.spinMachine.HandleMove(f, now)
		if done {
			return
		}
		if fwd != nil {
			r.sendControl(fwd, fwd.CurInport, now)
		}
	case flit.CheckProbe, flit.KillMove:
		// Liveness/abort replies are terminal at the router that receives
		// them in this design: the deadlock-detection timer re-arms on its
		// own rather than requiring an explicit reply round-trip.
	}
}

// localStallOn reports the outport (and whether one exists) that this
// router's own escape-VC counter on inport is currently blocked waiting
// for, the information a forwarded PROBE needs to extend the cycle.
func (r *Router) localStallOn(inport int) (outport int, blocked bool) {
	iu, ok := r.inputs[inport]
	if !ok {
		return 0, false
	}
	gv := r.cfg.EscapeVCOf(0)
	if !r.cfg.EscapeVCEnabled || gv >= iu.NumVCs() {
		return 0, false
	}
	channel := iu.VC(gv)
	if r.spinMachine.CounterState(inport, gv) != spin.DeadlockDetection || channel.Size() == 0 {
		return 0, false
	}
	return channel.Outport(), true
}

// vnetVCSnapshot builds the per-vnet VC view a forwarded PROBE's fork
// decision needs (spec.md §4.8): one entry per occupied VC of vnet across
// every input port of this router, reporting the outport its head-of-line
// flit is bound for and whether that outport is this router's own local NI.
func (r *Router) vnetVCSnapshot(vnet int) []spin.VCSnapshot {
	var snaps []spin.VCSnapshot
	local := r.routingUnit.LocalOutport()
	for _, port := range sortedInPorts(r.inputs) {
		iu := r.inputs[port]
		for gv := 0; gv < iu.NumVCs(); gv++ {
			if r.cfg.VnetOf(gv) != vnet {
				continue
			}
			channel := iu.VC(gv)
			if channel.Size() == 0 {
				continue
			}
			snaps = append(snaps, spin.VCSnapshot{
				Outport: channel.Outport(),
				Active:  channel.GetState() == vc.ACTIVE,
				IsLocal: channel.Outport() == local,
			})
		}
	}
	return snaps
}

func (r *Router) sendControl(f *flit.Flit, outport int, now clock.Tick) {
	l, ok := r.outLink[outport]
	if !ok {
		r.droppedControls = append(r.droppedControls, &errkind.DroppedControl{
			RouterID: r.id, Kind: f.Type.String(), Reason: "no link wired for outport",
		})
		return
	}
	f.CurrentTick = now
	if !l.SendFlit(f) {
		r.droppedControls = append(r.droppedControls, &errkind.DroppedControl{
			RouterID: r.id, Kind: f.Type.String(), Reason: "link rejected control-flit send",
		})
	}
}

// tickSpin increments the deadlock-detection counter of vnet 0's escape VC
// on every input port where that VC is non-empty and ACTIVE, emitting a
// PROBE the moment one escalates to DeadlockDetection (spec.md §4.8). The
// escape VCs of other vnets are not tracked.
func (r *Router) tickSpin(now clock.Tick) {
	if r.spinMachine == nil {
		return
	}
	for port, iu := range r.inputs {
		gv := r.cfg.EscapeVCOf(0)
		if gv >= iu.NumVCs() {
			continue
		}
		channel := iu.VC(gv)
		if channel.Size() == 0 || channel.GetState() != vc.ACTIVE {
			continue
		}
		escalated := r.spinMachine.IncrementCounterPtr(port, gv, now)
		if escalated {
			probe := r.spinMachine.StartProbe(port, gv, channel.Outport(), now)
			r.sendControl(probe, channel.Outport(), now)
		}
	}
}

// syncFreezeState mirrors the SPIN Machine's per-VC MoveState into the frozen
// bit of vnet 0's escape VC on each input port, which SA-I consults
// directly — the Machine
// is the source of truth, the VC's bit is its projection visible to the
// allocator without importing spin.
func (r *Router) syncFreezeState() {
	if r.spinMachine == nil {
		return
	}
	for port, iu := range r.inputs {
		gv := r.cfg.EscapeVCOf(0)
		if gv >= iu.NumVCs() {
			continue
		}
		channel := iu.VC(gv)
		if r.spinMachine.IsFrozen(port, gv) {
			channel.Freeze()
		} else {
			channel.Thaw()
		}
	}
}

// ingestOutputCredits drains one ready credit per output port off its
// outCredit link, if wired, crediting the matching downstream VC back
// (spec.md §2: "then each OutputUnit.wakeup (ingest credits)"). A port with
// no outCredit wired (no downstream output traffic) is skipped.
func (r *Router) ingestOutputCredits(now clock.Tick) {
	for port, ou := range r.outputs {
		cl, ok := r.outCredit[port]
		if !ok || cl == nil {
			continue
		}
		if !cl.IsReady(now) {
			continue
		}
		c := cl.ConsumeCredit()
		if c == nil {
			continue
		}
		ou.IncrementCredit(c.VC, c.IsFree, now)
	}
}

// Wakeup runs exactly one cycle of this router's pipeline: input ingest,
// output credit ingest, SPIN bookkeeping, SA-I, SA-II, and switch
// traversal, in that fixed order (spec.md §2).
func (r *Router) Wakeup() {
	now := r.clk.CurTick()

	for _, port := range sortedInPorts(r.inputs) {
		r.inputs[port].Wakeup(r.clk, r, r)
	}

	r.ingestOutputCredits(now)

	r.tickSpin(now)
	r.syncFreezeState()

	sendAllowed := r.orderedVnetGate()

	inPorts := make(map[int]allocator.InputPort, len(r.inputs))
	for port, iu := range r.inputs {
		inPorts[port] = iu
	}
	requests := r.alloc.SAI(inPorts, now, sendAllowed)

	outPorts := make(map[int]allocator.OutputPort, len(r.outputs))
	for port, ou := range r.outputs {
		outPorts[port] = ou
	}
	grants := r.alloc.SAII(requests, outPorts, now)

	for _, g := range grants {
		r.applyGrant(g, now)
	}
}

func (r *Router) applyGrant(g allocator.Grant, now clock.Tick) {
	channel := r.inputs[g.Inport].VC(g.VC)
	f := channel.PopTop()
	if f == nil {
		return
	}

	if r.spinMachine != nil && r.cfg.IsEscapeVC(g.VC) {
		r.spinMachine.ResetCounter(g.Inport, g.VC)
	}

	if f.Type.IsHead() {
		channel.GrantOutVC(g.OutVC)
	}

	f.VC = g.OutVC
	f.CurrentTick = now
	r.xbar.Traverse(f, g.Outport, now)
	vnet := r.cfg.VnetOf(g.VC)
	r.routingUnit.ObserveCredit(g.Outport, vnet, r.outputs[g.Outport].FreeCreditsForVnet(vnet, r.cfg.EscapeVCEnabled))

	if f.Type.IsTail() {
		if err := r.inputs[g.Inport].FreeVCAfterDeparture(g.VC, now); err != nil {
			r.droppedControls = append(r.droppedControls, err)
		}
	} else {
		if err := r.inputs[g.Inport].SendCredit(g.VC, false, now); err != nil {
			r.droppedControls = append(r.droppedControls, err)
		}
	}
}

// orderedVnetGate enforces spec.md §4.6/§5(a): within an ordered vnet,
// only the oldest (lowest EnqueueTick) occupied VC on a given input port
// bound for a given outport may request SA this cycle, so packets to the
// same outport depart in inject order.
func (r *Router) orderedVnetGate() func(inport, globalVC int) bool {
	oldest := make(map[[3]int]int) // (inport, vnet, outport) -> globalVC

	for port, iu := range r.inputs {
		for gv := 0; gv < iu.NumVCs(); gv++ {
			vnet := r.cfg.VnetOf(gv)
			if !r.cfg.IsVnetOrdered(vnet) {
				continue
			}
			channel := iu.VC(gv)
			if channel.Size() == 0 {
				continue
			}
			key := [3]int{port, vnet, channel.Outport()}
			cur, ok := oldest[key]
			if !ok || channel.EnqueueTick() < iu.VC(cur).EnqueueTick() {
				oldest[key] = gv
			}
		}
	}

	return func(inport, globalVC int) bool {
		vnet := r.cfg.VnetOf(globalVC)
		if !r.cfg.IsVnetOrdered(vnet) {
			return true
		}
		outport := r.inputs[inport].VC(globalVC).Outport()
		return oldest[[3]int{inport, vnet, outport}] == globalVC
	}
}

// SpinCounterState reports the current SPIN deadlock-detection state of
// (inport, vc), or spin.Off if SPIN is disabled. Exposed for diagnostics and
// tests; never consulted by the router itself for correctness.
func (r *Router) SpinCounterState(inport, globalVC int) spin.CounterState {
	if r.spinMachine == nil {
		return spin.Off
	}
	return r.spinMachine.CounterState(inport, globalVC)
}

// DroppedControls returns the errors accumulated so far: credit sends the
// link model rejected, PROBEs the SPIN Machine dropped, and control flits
// that had no wired link or that the link rejected. Callers may drain it for
// diagnostics; it is never consulted for correctness.
func (r *Router) DroppedControls() []error {
	return r.droppedControls
}

func sortedInPorts(m map[int]*inputunit.InputUnit) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
