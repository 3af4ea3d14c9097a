// Package spin implements the SPIN deadlock-recovery subsystem: per-VC
// stall counters that escalate to probing a suspected dependency cycle,
// and — once a cycle is confirmed — relocating the blocked packets onto
// their escape VCs via MOVE control flits. Grounded on spec.md §4.8's
// counter/PROBE/MOVE/CHECK_PROBE/KILL_MOVE state machine; no teacher file
// implements anything resembling deadlock recovery, so the state-machine
// shape follows the teacher's other tick-driven state machines (the
// pipelining.Comp pipeline-stage scoreboard) while the protocol itself
// comes from original_source/'s Garnet SPIN module.
package spin

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/sarchlab/vcrouter/clock"
	"github.com/sarchlab/vcrouter/config"
	"github.com/sarchlab/vcrouter/errkind"
	"github.com/sarchlab/vcrouter/flit"
)

// CounterState is the per-(inport,vc) deadlock-detection state.
type CounterState int

// Recognized counter states.
const (
	Off CounterState = iota
	DeadlockDetection
	MoveState
	Frozen
	ForwardProgress
	CheckProbeState
)

func (s CounterState) String() string {
	switch s {
	case Off:
		return "OFF"
	case DeadlockDetection:
		return "DEADLOCK_DETECTION"
	case MoveState:
		return "MOVE"
	case Frozen:
		return "FROZEN"
	case ForwardProgress:
		return "FORWARD_PROGRESS"
	case CheckProbeState:
		return "CHECK_PROBE"
	default:
		return "INVALID"
	}
}

type counterKey struct {
	inport, vc int
}

// Counter is the per-VC deadlock-detection stall timer.
type Counter struct {
	Inport, VC     int
	Count          int
	ThresholdCycle clock.Tick
	State          CounterState
}

// MoveRecord tracks one in-flight relocation of a blocked packet onto its
// escape VC.
type MoveRecord struct {
	ID                string
	Inport, VC        int
	Outport           int
	OutVCAtDownstream int
	TailMoved         bool
	CurMoveCount      int
}

// Sender describes a collaborator that emits control flits on a given
// outport — the router's per-outport NetworkLink, reached the same way
// crossbar.Crossbar reaches it. Machine does not call a Sender: it returns
// the control flits it produces to its caller, which sends them.
type Sender interface {
	SendControl(outport int, f *flit.Flit) bool
}

// Machine is the per-router SPIN state machine.
type Machine struct {
	cfg        config.Config
	routerID   int
	counters   map[counterKey]*Counter
	moves      map[string]*MoveRecord
	sourceID   map[string]int // probeID/moveID -> source router id, for CHECK_PROBE/KILL_MOVE replies
}

// New creates a Machine for the given router.
func New(cfg config.Config, routerID int) *Machine {
	return &Machine{
		cfg:      cfg,
		routerID: routerID,
		counters: make(map[counterKey]*Counter),
		moves:    make(map[string]*MoveRecord),
		sourceID: make(map[string]int),
	}
}

func (m *Machine) counter(inport, vc int) *Counter {
	key := counterKey{inport, vc}
	c, ok := m.counters[key]
	if !ok {
		c = &Counter{Inport: inport, VC: vc, State: Off}
		m.counters[key] = c
	}
	return c
}

// IncrementCounterPtr bumps the stall counter for (inport, vc), escalating
// to DeadlockDetection once it reaches the configured threshold. It returns
// true when escalation just occurred, signalling the caller (router) to
// emit a PROBE.
func (m *Machine) IncrementCounterPtr(inport, vc int, at clock.Tick) bool {
	c := m.counter(inport, vc)
	if c.State == Frozen || c.State == MoveState {
		return false
	}
	c.Count++
	if c.Count >= m.cfg.DDThreshold && c.State == Off {
		c.State = DeadlockDetection
		c.ThresholdCycle = at
		return true
	}
	return false
}

// ResetCounter clears (inport, vc)'s stall counter — called whenever that
// VC makes forward progress (its head-of-line flit is granted by SA).
func (m *Machine) ResetCounter(inport, vc int) {
	c := m.counter(inport, vc)
	c.Count = 0
	c.State = Off
}

// CounterState reports the current state of (inport, vc)'s counter.
func (m *Machine) CounterState(inport, vc int) CounterState {
	return m.counter(inport, vc).State
}

// StartProbe builds the initial PROBE control flit for a VC whose counter
// just escalated, seeding its path with the single outport the blocked
// packet is waiting to take.
func (m *Machine) StartProbe(inport, vc, blockedOutport int, now clock.Tick) *flit.Flit {
	f := flit.NewControlFlit(flit.Probe, m.routerID, inport, vc, nil, now)
	f.PushPath(blockedOutport)
	return f
}

// VCSnapshot describes one VC belonging to the probe's vnet at this router,
// for the fork-probe construction HandleProbe performs. Outport is the
// outport its head-of-line flit was granted; Active reports whether it is
// currently occupied (non-empty, state ACTIVE); IsLocal reports whether
// Outport is this router's own local NI (the VC terminates here rather than
// forwarding the dependency further).
type VCSnapshot struct {
	Outport int
	Active  bool
	IsLocal bool
}

// ProbeFork is one forked PROBE copy together with the outport it must be
// sent on.
type ProbeFork struct {
	Outport int
	Probe   *flit.Flit
}

// HandleProbe processes an incoming PROBE at this router. If it closes a
// cycle back to its own source (SourceRouterID == this router), the
// dependency is confirmed: it returns a MOVE to originate back along the
// recorded path.
//
// Otherwise, the probe is extended by forking: every entry of vnetVCs must
// be ACTIVE and non-Local before any fork is emitted — a single non-ACTIVE
// or Local entry drops the whole probe (DroppedControl, not fatal). The
// router's vnetVCSnapshot lists only occupied VCs, so an empty IDLE VC never
// causes a drop. This check is stricter than the published SPIN
// scheme but preserved here as spec.md's Open Questions instruct. When the
// check passes, one forked probe copy is emitted per distinct outport across
// those VCs, each with that outport appended to its own copy of the path.
func (m *Machine) HandleProbe(f *flit.Flit, vnetVCs []VCSnapshot, now clock.Tick) (forwards []ProbeFork, move *flit.Flit, dropped error) {
	if f.SourceRouterID == m.routerID {
		mv := flit.NewControlFlit(flit.Move, f.SourceRouterID, f.SourceInport, f.SourceVC, f.GetPathCopy(), now)
		id := uuid.New().String()
		mv.FlitID = id
		m.sourceID[id] = m.routerID
		m.moves[id] = &MoveRecord{ID: id, Inport: f.SourceInport, VC: f.SourceVC}
		return nil, mv, nil
	}

	if f.NumTurns() >= m.cfg.SpinMaxTurnCapacity {
		return nil, nil, &errkind.DroppedControl{RouterID: m.routerID, Kind: "PROBE", Reason: "path length exceeded spin_max_turn_capacity"}
	}

	if len(vnetVCs) == 0 {
		return nil, nil, &errkind.DroppedControl{RouterID: m.routerID, Kind: "PROBE", Reason: "no VCs of this vnet at this router to extend the cycle through"}
	}

	outports := make([]int, 0, len(vnetVCs))
	seen := make(map[int]bool, len(vnetVCs))
	for _, snap := range vnetVCs {
		if !snap.Active || snap.IsLocal {
			return nil, nil, &errkind.DroppedControl{RouterID: m.routerID, Kind: "PROBE", Reason: "a VC of this vnet is idle or terminates locally"}
		}
		if !seen[snap.Outport] {
			seen[snap.Outport] = true
			outports = append(outports, snap.Outport)
		}
	}

	forwards = make([]ProbeFork, 0, len(outports))
	for _, outport := range outports {
		fwd := flit.NewControlFlit(flit.Probe, f.SourceRouterID, f.SourceInport, f.SourceVC, f.GetPathCopy(), now)
		fwd.PushPath(outport)
		forwards = append(forwards, ProbeFork{Outport: outport, Probe: fwd})
	}
	return forwards, nil, nil
}

// HandleMove processes an incoming MOVE. At the source router (where the
// relocation originated) it completes the relocation bookkeeping. At an
// intermediate router it advances the move one hop along the recorded
// path and marks the corresponding counter MoveState so SA skips it while
// the relocation is in flight.
func (m *Machine) HandleMove(f *flit.Flit, now clock.Tick) (forward *flit.Flit, done bool) {
	if rec, ok := m.moves[f.FlitID]; ok {
		rec.TailMoved = true
		rec.CurMoveCount++
		c := m.counter(rec.Inport, rec.VC)
		c.State = ForwardProgress
		return nil, true
	}

	outport, ok := f.PopTop()
	if !ok {
		return nil, true
	}

	c := m.counter(f.CurInport, f.SourceVC)
	c.State = MoveState

	fwd := flit.NewControlFlit(flit.Move, f.SourceRouterID, f.SourceInport, f.SourceVC, f.GetPathCopy(), now)
	fwd.FlitID = f.FlitID
	fwd.CurInport = outport
	return fwd, false
}

// MoveComplete releases a VC's counter back to Off once the MOVE has fully
// relocated its packet onto the escape VC.
func (m *Machine) MoveComplete(inport, vc int) {
	m.ResetCounter(inport, vc)
}

// HandleCheckProbe answers a liveness check of an outstanding PROBE: alive
// reports whether this router still recognizes the probe's source as
// actively waiting (i.e. has not since made forward progress).
func (m *Machine) HandleCheckProbe(f *flit.Flit) (alive bool) {
	c := m.counter(f.SourceInport, f.SourceVC)
	return c.State == DeadlockDetection || c.State == CheckProbeState
}

// HandleKillMove aborts an in-flight MOVE identified by moveID, returning
// the affected counter to Off so normal SA can resume considering it.
func (m *Machine) HandleKillMove(moveID string) error {
	rec, ok := m.moves[moveID]
	if !ok {
		return &errkind.DroppedControl{RouterID: m.routerID, Kind: "KILL_MOVE", Reason: fmt.Sprintf("no move record %s at this router", moveID)}
	}
	delete(m.moves, moveID)
	m.ResetCounter(rec.Inport, rec.VC)
	return nil
}

// IsFrozen reports whether (inport, vc) is currently bypassed by SA because
// a MOVE is relocating it.
func (m *Machine) IsFrozen(inport, vc int) bool {
	return m.counter(inport, vc).State == MoveState
}
