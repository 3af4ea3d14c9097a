// Command vcrouter-demo drives two router cores wired back to back as a
// 1x2 mesh: it injects one HEAD_TAIL packet at router 0 bound for router
// 1's local NI, runs the chosen routing algorithm for a fixed number of
// cycles, and prints any dropped control messages. It runs no other
// scenario. Grounded on the teacher's noc/acceptance/*/main.go scripted
// drivers (flag + math/rand + atexit).
package main

import (
	"flag"
	"fmt"
	"math/rand"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/vcrouter/config"
	"github.com/sarchlab/vcrouter/flit"
	"github.com/sarchlab/vcrouter/link/simlink"
	"github.com/sarchlab/vcrouter/router"
	"github.com/sarchlab/vcrouter/routing"
)

var (
	algorithmFlag = flag.String("algorithm", "XY", "routing algorithm: TABLE, XY, ADAPTIVE, CAR3D, UGAL")
	cyclesFlag    = flag.Int("cycles", 50, "number of cycles to simulate")
	seedFlag      = flag.Int64("seed", 1, "RNG seed")
)

func main() {
	flag.Parse()
	rand.Seed(*seedFlag)

	algo, ok := map[string]config.Algorithm{
		"TABLE":    config.Table,
		"XY":       config.XY,
		"ADAPTIVE": config.Adaptive,
		"CAR3D":    config.CAR3D,
		"UGAL":     config.UGAL,
	}[*algorithmFlag]
	if !ok {
		panic(fmt.Sprintf("vcrouter-demo: unknown algorithm %q", *algorithmFlag))
	}

	clk := simlink.NewManualClock(1)
	r0, r1, net := buildTwoRouterMesh(algo, clk)

	route := flit.RouteInfo{DestRouterID: 1, NetDest: destSet(1), Vnet: 0}
	head := flit.NewDataFlit(flit.HeadTail, "demo-packet", 0, 0, route, 1, net.bitWidth, clk.CurTick())
	fmt.Printf("injecting packet %s destined for router 1\n", head.PacketID)

	net.inject.SendFlit(head)

	for i := 0; i < *cyclesFlag; i++ {
		clk.Advance()
		r0.Wakeup()
		r1.Wakeup()
	}

	fmt.Printf("simulation complete after %d cycles\n", *cyclesFlag)
	for _, err := range append(r0.DroppedControls(), r1.DroppedControls()...) {
		fmt.Println("dropped:", err)
	}

	atexit.Exit(0)
}

type wiring struct {
	inject   *simlink.FlitLink
	bitWidth int
}

func destSet(ids ...int) map[int]bool {
	m := make(map[int]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// buildTwoRouterMesh wires router 0 and router 1 back to back: router 0's
// injection port (port 0) feeds its own logic, and outport 1 carries flits
// to router 1's inport 0, whose outport 9 is the local NI (the packet's
// final destination).
func buildTwoRouterMesh(algo config.Algorithm, clk *simlink.ManualClock) (*router.Router, *router.Router, wiring) {
	cfg0 := config.MakeBuilder().WithVnets(1, 4).WithRouterID(0).WithAlgorithm(algo).WithMeshDimensions(1, 2).Build()
	cfg1 := config.MakeBuilder().WithVnets(1, 4).WithRouterID(1).WithAlgorithm(algo).WithMeshDimensions(1, 2).Build()

	table0 := simlink.NewRoutingTable()
	table0.AddRoute(0, 1, 1, destSet(1))
	routingUnit0 := routing.MakeBuilder().
		WithConfig(cfg0).
		WithRoutingTable(table0).
		WithMeshPorts(routing.MeshPorts{North: -1, South: -1, East: 1, West: -1, Local: -1}).
		Build()

	routingUnit1 := routing.MakeBuilder().
		WithConfig(cfg1).
		WithRoutingTable(simlink.NewRoutingTable()).
		WithMeshPorts(routing.MeshPorts{North: -1, South: -1, East: -1, West: -1, Local: 9}).
		Build()

	injectLink := simlink.NewFlitLink(1, cfg0.BitWidth)
	injectCredit := simlink.NewCreditLink(1)

	r0toR1 := simlink.NewFlitLink(1, cfg0.BitWidth)
	r0toR1Credit := simlink.NewCreditLink(1)

	r0, err := router.MakeBuilder(cfg0, 0, clk).
		WithRoutingUnit(routingUnit0).
		AddPort(0, injectLink, injectCredit, nil, nil).
		AddPort(1, simlink.NewFlitLink(1, cfg0.BitWidth), simlink.NewCreditLink(1), r0toR1, r0toR1Credit).
		Build()
	if err != nil {
		panic(err)
	}

	localOut := simlink.NewFlitLink(1, cfg1.BitWidth)

	r1, err := router.MakeBuilder(cfg1, 1, clk).
		WithRoutingUnit(routingUnit1).
		AddPort(0, r0toR1, r0toR1Credit, nil, nil).
		AddPort(9, simlink.NewFlitLink(1, cfg1.BitWidth), simlink.NewCreditLink(1), localOut, nil).
		Build()
	if err != nil {
		panic(err)
	}

	return r0, r1, wiring{inject: injectLink, bitWidth: cfg0.BitWidth}
}
