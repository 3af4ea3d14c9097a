// Package simlink provides in-memory implementations of clock.Clock and
// link.NetworkLink/CreditLink for tests and the demo CLI. It is ambient
// test tooling, not part of the router core's contract — grounded on the
// teacher's own hand-rolled test doubles (noc/wiring/wire_test.go's
// testComponent, noc/acceptance/agent.go) that stand in for a real
// discrete-event kernel and topology.
package simlink

import (
	"sort"
	"sync"

	"github.com/sarchlab/vcrouter/clock"
	"github.com/sarchlab/vcrouter/flit"
	"github.com/sarchlab/vcrouter/link"
)

// ManualClock is a hand-advanced clock: the test/demo driver calls Advance
// to move time forward and drains ScheduleWakeup requests itself.
type ManualClock struct {
	mu       sync.Mutex
	now      clock.Tick
	cycle    clock.Cycles
	period   clock.Cycles
	wakeups  map[clock.Tick]bool
}

// NewManualClock creates a clock ticking once per period ticks (period=1
// gives a 1:1 tick/cycle correspondence, the common case in tests).
func NewManualClock(period clock.Cycles) *ManualClock {
	if period < 1 {
		period = 1
	}
	return &ManualClock{period: period, wakeups: make(map[clock.Tick]bool)}
}

// CurTick implements clock.Clock.
func (c *ManualClock) CurTick() clock.Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// CurCycle implements clock.Clock.
func (c *ManualClock) CurCycle() clock.Cycles {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycle
}

// ClockEdge implements clock.Clock.
func (c *ManualClock) ClockEdge(dt clock.Cycles) clock.Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now + clock.Tick(dt)*clock.Tick(c.period)
}

// ScheduleWakeup implements clock.Clock.
func (c *ManualClock) ScheduleWakeup(dt clock.Cycles) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at := c.now + clock.Tick(dt)*clock.Tick(c.period)
	c.wakeups[at] = true
}

// AlreadyScheduled implements clock.Clock.
func (c *ManualClock) AlreadyScheduled(t clock.Tick) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wakeups[t]
}

// Advance moves the clock forward by one cycle and returns the new tick.
func (c *ManualClock) Advance() clock.Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += clock.Tick(c.period)
	c.cycle++
	delete(c.wakeups, c.now)
	return c.now
}

// HasWakeupAt reports whether a wakeup is pending at tick t.
func (c *ManualClock) HasWakeupAt(t clock.Tick) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wakeups[t]
}

type queuedFlit struct {
	f      *flit.Flit
	readyAt clock.Tick
}

// FlitLink is a fixed-latency, unbounded-capacity in-memory NetworkLink.
type FlitLink struct {
	mu       sync.Mutex
	latency  clock.Cycles
	width    int
	queue    []queuedFlit
}

// NewFlitLink creates a FlitLink with the given per-flit latency (in
// cycles) and bit width.
func NewFlitLink(latency clock.Cycles, bitWidth int) *FlitLink {
	return &FlitLink{latency: latency, width: bitWidth}
}

// IsReady implements link.NetworkLink.
func (l *FlitLink) IsReady(t clock.Tick) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue) > 0 && l.queue[0].readyAt <= t
}

// ConsumeLink implements link.NetworkLink.
func (l *FlitLink) ConsumeLink() *flit.Flit {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	f := l.queue[0].f
	l.queue = l.queue[1:]
	return f
}

// SendFlit implements link.NetworkLink. This in-memory link never rejects a
// send (unbounded capacity), matching the teacher's test doubles that model
// only latency, not link-level backpressure — backpressure in this system
// lives entirely in the credit-based VC scheme.
func (l *FlitLink) SendFlit(f *flit.Flit) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, queuedFlit{f: f, readyAt: f.CurrentTick + clock.Tick(l.latency)})
	sort.SliceStable(l.queue, func(i, j int) bool {
		return l.queue[i].readyAt < l.queue[j].readyAt
	})
	return true
}

// ScheduleEventAbsolute is a no-op for this in-memory link: readiness is
// derived purely from readyAt on each queued flit.
func (l *FlitLink) ScheduleEventAbsolute(t clock.Tick) {}

// BitWidth implements link.NetworkLink.
func (l *FlitLink) BitWidth() int { return l.width }

type queuedCredit struct {
	c       *flit.Credit
	readyAt clock.Tick
}

// CreditLink is a fixed-latency, unbounded-capacity in-memory CreditLink.
type CreditLink struct {
	mu      sync.Mutex
	latency clock.Cycles
	queue   []queuedCredit
}

// NewCreditLink creates a CreditLink with the given per-credit latency.
func NewCreditLink(latency clock.Cycles) *CreditLink {
	return &CreditLink{latency: latency}
}

// IsReady implements link.CreditLink.
func (l *CreditLink) IsReady(t clock.Tick) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue) > 0 && l.queue[0].readyAt <= t
}

// ConsumeCredit implements link.CreditLink.
func (l *CreditLink) ConsumeCredit() *flit.Credit {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	c := l.queue[0].c
	l.queue = l.queue[1:]
	return c
}

// SendCredit implements link.CreditLink.
func (l *CreditLink) SendCredit(c *flit.Credit) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, queuedCredit{c: c, readyAt: c.EnqueueTick + clock.Tick(l.latency)})
	sort.SliceStable(l.queue, func(i, j int) bool {
		return l.queue[i].readyAt < l.queue[j].readyAt
	})
	return true
}

// ScheduleEventAbsolute is a no-op; see FlitLink.ScheduleEventAbsolute.
func (l *CreditLink) ScheduleEventAbsolute(t clock.Tick) {}

// RoutingTable is a simple map-backed link.RoutingTable, built with the
// teacher's DefineRoute-style incremental population (noc/networking/
// routing.Table) generalized to weighted, multi-destination-set entries
// keyed per vnet.
type RoutingTable struct {
	entries map[int][]entry
}

type entry struct {
	outport int
	weight  int
	dest    map[int]bool
}

// NewRoutingTable creates an empty RoutingTable.
func NewRoutingTable() *RoutingTable {
	return &RoutingTable{entries: make(map[int][]entry)}
}

// AddRoute registers that, for vnet, taking outport (at the given weight)
// reaches every router id in dest.
func (t *RoutingTable) AddRoute(vnet, outport, weight int, dest map[int]bool) {
	t.entries[vnet] = append(t.entries[vnet], entry{outport: outport, weight: weight, dest: dest})
}

// Candidates implements link.RoutingTable: every entry whose destination
// set intersects netDest, at every weight it was registered with. Weight
// filtering (minimum-only, or the next tier above minimum for UGAL-L) is
// the routing package's job, not the table's.
func (t *RoutingTable) Candidates(vnet int, netDest map[int]bool) []link.Candidate {
	entries := t.entries[vnet]
	out := make([]link.Candidate, 0, len(entries))
	for _, e := range entries {
		if !intersects(e.dest, netDest) {
			continue
		}
		out = append(out, link.Candidate{Outport: e.outport, Weight: e.weight})
	}
	return out
}

func intersects(a, b map[int]bool) bool {
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for k := range small {
		if big[k] {
			return true
		}
	}
	return false
}
