package router_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarchlab/vcrouter/clock"
	"github.com/sarchlab/vcrouter/config"
	"github.com/sarchlab/vcrouter/flit"
	"github.com/sarchlab/vcrouter/link"
	"github.com/sarchlab/vcrouter/link/simlink"
	"github.com/sarchlab/vcrouter/router"
	"github.com/sarchlab/vcrouter/routing"
	"github.com/sarchlab/vcrouter/spin"
)

func destSet(ids ...int) map[int]bool {
	m := make(map[int]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func TestRouterAdmitsAndForwardsAHeadTailFlit(t *testing.T) {
	cfg := config.MakeBuilder().WithVnets(1, 4).WithRouterID(0).Build()
	clk := simlink.NewManualClock(1)

	table := simlink.NewRoutingTable()
	table.AddRoute(0, 9, 1, destSet(5))
	routingUnit := routing.MakeBuilder().
		WithConfig(cfg).
		WithRoutingTable(table).
		WithMeshPorts(routing.MeshPorts{North: -1, South: -1, East: -1, West: -1, Local: -1}).
		Build()

	inLink := simlink.NewFlitLink(1, cfg.BitWidth)
	inCredit := simlink.NewCreditLink(1)
	outLink := simlink.NewFlitLink(1, cfg.BitWidth)

	r, err := router.MakeBuilder(cfg, 0, clk).
		WithRoutingUnit(routingUnit).
		AddPort(0, inLink, inCredit, nil, nil).
		AddPort(9, simlink.NewFlitLink(1, cfg.BitWidth), simlink.NewCreditLink(1), outLink, nil).
		Build()
	require.NoError(t, err)

	route := flit.RouteInfo{DestRouterID: 5, NetDest: destSet(5), Vnet: 0}
	f := flit.NewDataFlit(flit.HeadTail, "p0", 0, 0, route, 1, cfg.BitWidth, clk.CurTick())
	inLink.SendFlit(f)

	for i := 0; i < 4; i++ {
		clk.Advance()
		r.Wakeup()
	}

	require.True(t, outLink.IsReady(clk.CurTick()+100), "the flit must eventually reach the output link")
	sent := outLink.ConsumeLink()
	require.NotNil(t, sent)
	assert.Equal(t, "p0", sent.PacketID)
	assert.Equal(t, flit.StageST, sent.CurrentStage())
}

func TestRouterLocalDestination(t *testing.T) {
	cfg := config.MakeBuilder().WithVnets(1, 4).WithRouterID(5).Build()
	clk := simlink.NewManualClock(1)

	routingUnit := routing.MakeBuilder().
		WithConfig(cfg).
		WithRoutingTable(simlink.NewRoutingTable()).
		WithMeshPorts(routing.MeshPorts{North: -1, South: -1, East: -1, West: -1, Local: 99}).
		Build()

	inLink := simlink.NewFlitLink(1, cfg.BitWidth)
	inCredit := simlink.NewCreditLink(1)
	localOut := simlink.NewFlitLink(1, cfg.BitWidth)

	r, err := router.MakeBuilder(cfg, 5, clk).
		WithRoutingUnit(routingUnit).
		AddPort(0, inLink, inCredit, nil, nil).
		AddPort(99, simlink.NewFlitLink(1, cfg.BitWidth), simlink.NewCreditLink(1), localOut, nil).
		Build()
	require.NoError(t, err)

	route := flit.RouteInfo{DestRouterID: 5, Vnet: 0}
	f := flit.NewDataFlit(flit.HeadTail, "p1", 0, 0, route, 1, cfg.BitWidth, clk.CurTick())
	inLink.SendFlit(f)

	for i := 0; i < 4; i++ {
		clk.Advance()
		r.Wakeup()
	}

	require.True(t, localOut.IsReady(clk.CurTick()+100))
	sent := localOut.ConsumeLink()
	require.NotNil(t, sent)
	assert.Equal(t, "p1", sent.PacketID)
}

// TestRouterRoundRobinFairness exercises scenario 2: two input ports
// perpetually backlogged toward the same outport must split SA-II grants
// roughly 50/50 rather than starving one side.
func TestRouterRoundRobinFairness(t *testing.T) {
	cfg := config.MakeBuilder().WithVnets(1, 2).WithRouterID(0).WithBufferDepth(500).Build()
	clk := simlink.NewManualClock(1)

	table := simlink.NewRoutingTable()
	table.AddRoute(0, 9, 1, destSet(5))
	routingUnit := routing.MakeBuilder().
		WithConfig(cfg).
		WithRoutingTable(table).
		WithMeshPorts(routing.MeshPorts{North: -1, South: -1, East: -1, West: -1, Local: -1}).
		Build()

	in0 := simlink.NewFlitLink(1, cfg.BitWidth)
	in1 := simlink.NewFlitLink(1, cfg.BitWidth)
	outLink := simlink.NewFlitLink(1, cfg.BitWidth)

	r, err := router.MakeBuilder(cfg, 0, clk).
		WithRoutingUnit(routingUnit).
		AddPort(0, in0, simlink.NewCreditLink(1), nil, nil).
		AddPort(1, in1, simlink.NewCreditLink(1), nil, nil).
		AddPort(9, simlink.NewFlitLink(1, cfg.BitWidth), simlink.NewCreditLink(1), outLink, nil).
		Build()
	require.NoError(t, err)

	route := flit.RouteInfo{DestRouterID: 5, NetDest: destSet(5), Vnet: 0}

	const backlog = 120
	injectLongPacket(in0, "portA", route, cfg, clk.CurTick(), backlog)
	injectLongPacket(in1, "portB", route, cfg, clk.CurTick(), backlog)

	countA, countB := 0, 0
	for i := 0; i < 300 && countA+countB < 2*backlog; i++ {
		clk.Advance()
		r.Wakeup()
		for outLink.IsReady(clk.CurTick()) {
			sent := outLink.ConsumeLink()
			if sent.PacketID == "portA" {
				countA++
			} else {
				countB++
			}
		}
	}

	require.Equal(t, 2*backlog, countA+countB, "every injected flit must eventually depart")
	diff := countA - countB
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, 1, "round-robin arbitration must split grants within one flit of 50/50")
}

func injectLongPacket(l *simlink.FlitLink, packetID string, route flit.RouteInfo, cfg config.Config, now clock.Tick, n int) {
	for i := 0; i < n; i++ {
		typ := flit.Body
		if i == 0 {
			typ = flit.Head
		}
		if i == n-1 {
			if i == 0 {
				typ = flit.HeadTail
			} else {
				typ = flit.Tail
			}
		}
		f := flit.NewDataFlit(typ, packetID, 0, 0, route, 1, cfg.BitWidth, now)
		l.SendFlit(f)
	}
}

// TestRouterEscapeVCPriority exercises scenario 3: when an escape-VC
// request and a non-escape request contend for the same outport in one
// SA-I/SA-II pass, the escape VC must win.
func TestRouterEscapeVCPriority(t *testing.T) {
	cfg := config.MakeBuilder().WithVnets(1, 2).WithRouterID(0).WithEscapeVC(true).WithBufferDepth(8).Build()
	clk := simlink.NewManualClock(1)

	table := simlink.NewRoutingTable()
	table.AddRoute(0, 9, 1, destSet(5))
	routingUnit := routing.MakeBuilder().
		WithConfig(cfg).
		WithRoutingTable(table).
		WithMeshPorts(routing.MeshPorts{North: -1, South: -1, East: -1, West: -1, Local: -1}).
		WithEscapeTree(link.EscapeTree{ParentOutport: 9, Children: nil}).
		Build()

	escapeIn := simlink.NewFlitLink(1, cfg.BitWidth)
	normalIn := simlink.NewFlitLink(1, cfg.BitWidth)
	outLink := simlink.NewFlitLink(1, cfg.BitWidth)

	r, err := router.MakeBuilder(cfg, 0, clk).
		WithRoutingUnit(routingUnit).
		WithEscapeTinLookup(func(id int) int { return id }).
		AddPort(0, escapeIn, simlink.NewCreditLink(1), nil, nil).
		AddPort(1, normalIn, simlink.NewCreditLink(1), nil, nil).
		AddPort(9, simlink.NewFlitLink(1, cfg.BitWidth), simlink.NewCreditLink(1), outLink, nil).
		Build()
	require.NoError(t, err)

	route := flit.RouteInfo{DestRouterID: 5, NetDest: destSet(5), Vnet: 0}
	escapeFlit := flit.NewDataFlit(flit.HeadTail, "escape-packet", 0, cfg.EscapeVCOf(0), route, 1, cfg.BitWidth, clk.CurTick())
	normalFlit := flit.NewDataFlit(flit.HeadTail, "normal-packet", 0, cfg.GlobalVC(0, 1), route, 1, cfg.BitWidth, clk.CurTick())
	escapeIn.SendFlit(escapeFlit)
	normalIn.SendFlit(normalFlit)

	var order []string
	for i := 0; i < 6; i++ {
		clk.Advance()
		r.Wakeup()
		for outLink.IsReady(clk.CurTick()) {
			sent := outLink.ConsumeLink()
			order = append(order, sent.PacketID)
		}
	}

	require.Equal(t, []string{"escape-packet", "normal-packet"}, order,
		"the escape VC must depart before the contending non-escape VC")
}

// TestRouterCreditExhaustion exercises scenario 4: a producer that injects
// buffer_depth+1 back-to-back flits into a VC whose sole downstream credit
// is never returned can only advance buffer_depth of them; the final flit
// is unblocked only once a credit actually comes back.
func TestRouterCreditExhaustion(t *testing.T) {
	const bufferDepth = 3

	cfg := config.MakeBuilder().WithVnets(1, 1).WithRouterID(0).WithBufferDepth(bufferDepth).Build()
	clk := simlink.NewManualClock(1)

	table := simlink.NewRoutingTable()
	table.AddRoute(0, 9, 1, destSet(5))
	routingUnit := routing.MakeBuilder().
		WithConfig(cfg).
		WithRoutingTable(table).
		WithMeshPorts(routing.MeshPorts{North: -1, South: -1, East: -1, West: -1, Local: -1}).
		Build()

	inLink := simlink.NewFlitLink(1, cfg.BitWidth)
	outLink := simlink.NewFlitLink(1, cfg.BitWidth)
	outCredit := simlink.NewCreditLink(1)

	r, err := router.MakeBuilder(cfg, 0, clk).
		WithRoutingUnit(routingUnit).
		AddPort(0, inLink, simlink.NewCreditLink(1), nil, nil).
		AddPort(9, simlink.NewFlitLink(1, cfg.BitWidth), simlink.NewCreditLink(1), outLink, outCredit).
		Build()
	require.NoError(t, err)

	route := flit.RouteInfo{DestRouterID: 5, NetDest: destSet(5), Vnet: 0}
	injectLongPacket(inLink, "p", route, cfg, clk.CurTick(), bufferDepth+1)

	departed := 0
	for i := 0; i < 10; i++ {
		clk.Advance()
		r.Wakeup()
		for outLink.IsReady(clk.CurTick()) {
			outLink.ConsumeLink()
			departed++
		}
	}
	require.Equal(t, bufferDepth, departed,
		"only buffer_depth flits may depart while the sole downstream credit is never returned")

	outCredit.SendCredit(flit.NewCredit(0, false, clk.CurTick()))
	for i := 0; i < 5 && departed < bufferDepth+1; i++ {
		clk.Advance()
		r.Wakeup()
		for outLink.IsReady(clk.CurTick()) {
			outLink.ConsumeLink()
			departed++
		}
	}
	assert.Equal(t, bufferDepth+1, departed, "the final flit must depart once a credit is returned")
}

// TestRouterSpinRecoveryBreaksTwoRouterCycle exercises scenario 6 at the
// smallest scale a VC dependency cycle can occur at: two routers, each
// holding a packet on its escape VC whose sole downstream credit toward the
// other router is permanently exhausted. Each router's own deadlock timer
// escalates, emits a PROBE that the other router forks back around the
// cycle, and the resulting MOVE closes the loop, driving both stalled
// counters out of DEADLOCK_DETECTION.
func TestRouterSpinRecoveryBreaksTwoRouterCycle(t *testing.T) {
	cfg0 := config.MakeBuilder().WithVnets(1, 2).WithRouterID(0).
		WithEscapeVC(true).WithSpinScheme(true, 16, 8).WithBufferDepth(1).Build()
	cfg1 := config.MakeBuilder().WithVnets(1, 2).WithRouterID(1).
		WithEscapeVC(true).WithSpinScheme(true, 16, 8).WithBufferDepth(1).Build()

	clk := simlink.NewManualClock(1)

	escapeTree := link.EscapeTree{ParentOutport: 1, Children: nil}
	tinOf := func(id int) int { return id }

	routingUnit0 := routing.MakeBuilder().
		WithConfig(cfg0).
		WithRoutingTable(simlink.NewRoutingTable()).
		WithMeshPorts(routing.MeshPorts{North: -1, South: -1, East: -1, West: -1, Local: -1}).
		WithEscapeTree(escapeTree).
		Build()
	routingUnit1 := routing.MakeBuilder().
		WithConfig(cfg1).
		WithRoutingTable(simlink.NewRoutingTable()).
		WithMeshPorts(routing.MeshPorts{North: -1, South: -1, East: -1, West: -1, Local: -1}).
		WithEscapeTree(escapeTree).
		Build()

	r0ToR1 := simlink.NewFlitLink(1, cfg0.BitWidth)
	r1ToR0 := simlink.NewFlitLink(1, cfg1.BitWidth)

	r0InPort0 := simlink.NewFlitLink(1, cfg0.BitWidth)
	r1InPort0 := simlink.NewFlitLink(1, cfg1.BitWidth)

	r0, err := router.MakeBuilder(cfg0, 0, clk).
		WithRoutingUnit(routingUnit0).
		WithSpinMachine(spin.New(cfg0, 0)).
		WithEscapeTinLookup(tinOf).
		AddPort(0, r0InPort0, simlink.NewCreditLink(1), nil, nil).
		AddPort(1, r1ToR0, simlink.NewCreditLink(1), r0ToR1, nil).
		Build()
	require.NoError(t, err)

	r1, err := router.MakeBuilder(cfg1, 1, clk).
		WithRoutingUnit(routingUnit1).
		WithSpinMachine(spin.New(cfg1, 1)).
		WithEscapeTinLookup(tinOf).
		AddPort(0, r1InPort0, simlink.NewCreditLink(1), nil, nil).
		AddPort(1, r0ToR1, simlink.NewCreditLink(1), r1ToR0, nil).
		Build()
	require.NoError(t, err)

	route := flit.RouteInfo{DestRouterID: 5, NetDest: destSet(5), Vnet: 0}

	// Each router's escape route always points at outport 1 (the port
	// facing the other router), and buffer_depth is 1, so a single escape-
	// VC packet injected at a router's own port 0 departs immediately,
	// consuming that router's sole port-1 downstream credit. With both
	// routers doing this at once, each packet hops across to the other
	// side and tries to continue on the escape VC's outport (again port 1,
	// now pointing back), only to find that router's own port-1 credit
	// already spent by its own packet's departure. It sticks there for
	// good: ACTIVE, non-local, waiting on an outport it can never be
	// granted again. That leaves each router holding one permanently
	// stalled escape-VC VC on port 1, closing a two-router dependency
	// cycle for SPIN to detect and break.
	pioneer0 := flit.NewDataFlit(flit.HeadTail, "pioneer-0", 0, cfg0.EscapeVCOf(0), route, 1, cfg0.BitWidth, clk.CurTick())
	pioneer1 := flit.NewDataFlit(flit.HeadTail, "pioneer-1", 0, cfg1.EscapeVCOf(0), route, 1, cfg1.BitWidth, clk.CurTick())
	r0InPort0.SendFlit(pioneer0)
	r1InPort0.SendFlit(pioneer1)

	const escapeGV = 0 // GlobalVC(0, 0)
	ok := false
	for i := 0; i < 200; i++ {
		clk.Advance()
		r0.Wakeup()
		r1.Wakeup()

		if r0.SpinCounterState(1, escapeGV) == spin.ForwardProgress &&
			r1.SpinCounterState(1, escapeGV) == spin.ForwardProgress {
			ok = true
			break
		}
	}

	assert.True(t, ok, "both routers' stalled escape VCs must reach FORWARD_PROGRESS once SPIN closes the cycle")
	for _, err := range append(r0.DroppedControls(), r1.DroppedControls()...) {
		t.Logf("dropped control (non-fatal): %v", err)
	}
}
