// Package flit implements the smallest flow-control unit transported
// between routers (data and SPIN control flits) and the one-shot upstream
// Credit message, following the teacher's single tagged-struct convention
// (noc/messaging.Flit) generalized with distinct data/control variant
// fields instead of the teacher's opaque sim.Msg payload.
package flit

import (
	"fmt"

	"github.com/sarchlab/vcrouter/clock"
)

// Type tags what a Flit is carrying. Data flits are HEAD/BODY/TAIL/
// HEAD_TAIL; SPIN control flits are PROBE/MOVE/CHECK_PROBE/KILL_MOVE.
// Credits are not a Flit type: they travel as the separate Credit struct.
type Type int

// Flit type tags.
const (
	Head Type = iota
	Body
	Tail
	HeadTail
	Probe
	Move
	CheckProbe
	KillMove
)

// String implements fmt.Stringer for readable diagnostics and panics.
func (t Type) String() string {
	switch t {
	case Head:
		return "HEAD"
	case Body:
		return "BODY"
	case Tail:
		return "TAIL"
	case HeadTail:
		return "HEAD_TAIL"
	case Probe:
		return "PROBE"
	case Move:
		return "MOVE"
	case CheckProbe:
		return "CHECK_PROBE"
	case KillMove:
		return "KILL_MOVE"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// IsHead reports whether the flit opens a packet (HEAD or HEAD_TAIL).
func (t Type) IsHead() bool {
	return t == Head || t == HeadTail
}

// IsTail reports whether the flit closes a packet (TAIL or HEAD_TAIL).
func (t Type) IsTail() bool {
	return t == Tail || t == HeadTail
}

// IsControl reports whether the flit is a SPIN control flit rather than a
// data flit.
func (t Type) IsControl() bool {
	switch t {
	case Probe, Move, CheckProbe, KillMove:
		return true
	default:
		return false
	}
}

// Stage is a pipeline stage a flit progresses through monotonically:
// I -> VA -> SA -> ST -> LT.
type Stage int

// Pipeline stages, in the order a flit must progress through them.
const (
	StageInvalid Stage = iota
	StageI
	StageVA
	StageSA
	StageST
	StageLT
)

func (s Stage) String() string {
	switch s {
	case StageI:
		return "I"
	case StageVA:
		return "VA"
	case StageSA:
		return "SA"
	case StageST:
		return "ST"
	case StageLT:
		return "LT"
	default:
		return "INVALID"
	}
}

// RouteInfo carries the routing-relevant fields of the packet a flit
// belongs to. It is shared by every flit of a packet.
type RouteInfo struct {
	SrcRouterID  int
	SrcNI        int
	DestRouterID int
	DestNI       int
	// NetDest is the destination set the route must intersect (multicast
	// / broadcast capable routing tables key on this).
	NetDest      map[int]bool
	Vnet         int
	HopsTraversed int
}

// Clone returns a deep-enough copy of the RouteInfo (NetDest is copied,
// scalars are copied by value).
func (r RouteInfo) Clone() RouteInfo {
	c := r
	if r.NetDest != nil {
		c.NetDest = make(map[int]bool, len(r.NetDest))
		for k, v := range r.NetDest {
			c.NetDest[k] = v
		}
	}
	return c
}

// stageEntry pairs a pipeline stage with the tick at which the flit
// becomes eligible to be processed at that stage.
type stageEntry struct {
	stage     Stage
	entryTick clock.Tick
}

// Flit is the minimum flow-control unit of the NoC. A single struct backs
// both data flits and SPIN control flits; control-only fields are left
// zero-valued on data flits, per the teacher's tagged-union texture applied
// to a language without sum types.
type Flit struct {
	PacketID string
	FlitID   string
	Vnet     int
	VC       int
	Route    RouteInfo
	Size     int
	Type     Type

	Outport  int
	BitWidth int

	EnqueueTick clock.Tick
	DequeueTick clock.Tick
	CurrentTick clock.Tick
	SourceDelay clock.Cycles

	stage stageEntry

	// SPIN control-flit fields. Unused (zero-valued) on data flits.
	SourceRouterID   int
	SourceInport     int
	SourceVC         int
	CurInport        int
	Path             []int
	AccumulatedDelay clock.Cycles
	MustSend         bool
	PartOfMove       bool
}

// NewDataFlit constructs a data flit (HEAD/BODY/TAIL/HEAD_TAIL) belonging
// to packet id, at the given position in the pipelined injection.
func NewDataFlit(t Type, packetID string, vnet, vc int, route RouteInfo, size, bitWidth int, now clock.Tick) *Flit {
	if t.IsControl() {
		panic(fmt.Sprintf("flit: %s is not a data flit type", t))
	}

	return &Flit{
		PacketID:    packetID,
		FlitID:      GetIDGenerator().Generate(),
		Vnet:        vnet,
		VC:          vc,
		Route:       route,
		Size:        size,
		Type:        t,
		Outport:     -1,
		BitWidth:    bitWidth,
		EnqueueTick: now,
		CurrentTick: now,
	}
}

// NewControlFlit constructs a SPIN control flit carrying path as the
// currently-known dependency cycle.
func NewControlFlit(t Type, sourceRouterID, sourceInport, sourceVC int, path []int, now clock.Tick) *Flit {
	if !t.IsControl() {
		panic(fmt.Sprintf("flit: %s is not a control flit type", t))
	}

	pathCopy := make([]int, len(path))
	copy(pathCopy, path)

	return &Flit{
		FlitID:         GetIDGenerator().Generate(),
		Type:           t,
		Outport:        -1,
		SourceRouterID: sourceRouterID,
		SourceInport:   sourceInport,
		SourceVC:       sourceVC,
		CurInport:      sourceInport,
		Path:           pathCopy,
		EnqueueTick:    now,
		CurrentTick:    now,
	}
}

// AdvanceStage moves the flit to stage, effective at time. Within one router
// hop callers are responsible for only calling this in the monotonic order
// I -> VA -> SA -> ST -> LT; a regression there is an implementation bug. A
// flit already at ST or LT has left its router, so the next router's
// InputUnit may place it at an earlier stage to start its new hop.
func (f *Flit) AdvanceStage(stage Stage, at clock.Tick) {
	if f.stage.stage != StageInvalid && f.stage.stage < StageST && stage < f.stage.stage {
		panic(fmt.Sprintf("flit %s: stage regression %s -> %s",
			f.FlitID, f.stage.stage, stage))
	}

	f.stage = stageEntry{stage: stage, entryTick: at}
}

// IsStage reports whether the flit currently sits in stage and is eligible
// for processing at time (time >= the tick it entered that stage).
func (f *Flit) IsStage(stage Stage, at clock.Tick) bool {
	return f.stage.stage == stage && at >= f.stage.entryTick
}

// CurrentStage returns the flit's current pipeline stage.
func (f *Flit) CurrentStage() Stage {
	return f.stage.stage
}

// StageEntryTick returns the tick the flit became eligible at its current
// stage.
func (f *Flit) StageEntryTick() clock.Tick {
	return f.stage.entryTick
}

// Less orders flits by (time, id) ascending for deterministic scheduling,
// ties broken by FlitID.
func Less(a, b *Flit, atA, atB clock.Tick) bool {
	if atA != atB {
		return atA < atB
	}
	return a.FlitID < b.FlitID
}

// PushPath appends outport to the end of the SPIN path — the path is built
// front-to-back as a PROBE travels forward along the dependency cycle, then
// consumed front-to-back as the resulting MOVE retraces the same hops
// (spec.md describes the same buffer as "LIFO/FIFO" because construction
// and consumption both happen at opposite ends of a single traversal).
func (f *Flit) PushPath(outport int) {
	f.Path = append(f.Path, outport)
}

// PeekTop returns the next outport to take (the front of the path) and
// whether the path is non-empty.
func (f *Flit) PeekTop() (int, bool) {
	if len(f.Path) == 0 {
		return 0, false
	}
	return f.Path[0], true
}

// PopTop removes and returns the next outport to take from the front of the
// path.
func (f *Flit) PopTop() (int, bool) {
	out, ok := f.PeekTop()
	if !ok {
		return 0, false
	}
	f.Path = f.Path[1:]
	return out, true
}

// NumTurns returns the number of outports recorded in the path so far.
func (f *Flit) NumTurns() int {
	return len(f.Path)
}

// GetPathCopy returns a defensive copy of the path stack.
func (f *Flit) GetPathCopy() []int {
	c := make([]int, len(f.Path))
	copy(c, f.Path)
	return c
}
