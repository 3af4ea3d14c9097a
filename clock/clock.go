// Package clock defines the timekeeping primitives the router core consumes
// from its host discrete-event simulator. The core never advances time
// itself; it only asks a Clock what time it is and when to be woken up
// again, mirroring how akita components depend on sim.Engine/sim.Freq
// without owning the event queue.
package clock

// Tick is an absolute point in simulated time, expressed in whatever unit
// the host simulator uses for its event queue.
type Tick int64

// Cycles is a relative duration expressed in router clock cycles.
type Cycles int64

// Clock is the external collaborator that lets the router core read time
// and schedule its own re-entry without owning the event queue.
type Clock interface {
	// CurTick returns the current absolute simulated time.
	CurTick() Tick

	// CurCycle returns the current cycle count of the router clock domain.
	CurCycle() Cycles

	// ClockEdge returns the tick of the dt-th clock edge from now.
	ClockEdge(dt Cycles) Tick

	// ScheduleWakeup asks the host simulator to re-enter the router's
	// wakeup dt cycles from now.
	ScheduleWakeup(dt Cycles)

	// AlreadyScheduled reports whether a wakeup at the given tick has
	// already been requested, so callers can avoid scheduling duplicates
	// within the same cycle.
	AlreadyScheduled(t Tick) bool
}
