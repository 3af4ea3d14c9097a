package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/vcrouter/config"
	"github.com/sarchlab/vcrouter/flit"
	"github.com/sarchlab/vcrouter/link/simlink"
	"github.com/sarchlab/vcrouter/routing"
)

var (
	routeAlgorithm string
	routeRouterID  int
	routeDest      int
	routeVnet      int
	routeNumCols   int
	routeMesh      string
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Dry-run a single outport-computation decision without a live router",
	Long: `route builds a standalone routing.Unit from the given flags and reports ` +
		`which outport it would pick for one HEAD flit bound for --dest. It never ` +
		`touches credits or VC state, so ADAPTIVE/CAR3D/UGAL decisions are ` +
		`reported against zero congestion (every outport equally free).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		algo, ok := algorithmByFlagName[strings.ToUpper(routeAlgorithm)]
		if !ok {
			return fmt.Errorf("vcrouterctl route: unrecognized algorithm %q", routeAlgorithm)
		}

		cfg := config.MakeBuilder().
			WithRouterID(routeRouterID).
			WithAlgorithm(algo).
			WithMeshDimensions(0, routeNumCols).
			Build()

		mesh, err := parseMeshPorts(routeMesh)
		if err != nil {
			return err
		}

		table := simlink.NewRoutingTable()
		unit := routing.MakeBuilder().
			WithConfig(cfg).
			WithRoutingTable(table).
			WithMeshPorts(mesh).
			Build()

		route := flit.RouteInfo{
			SrcRouterID:  routeRouterID,
			DestRouterID: routeDest,
			NetDest:      map[int]bool{routeDest: true},
			Vnet:         routeVnet,
		}

		outport := unit.OutportCompute(route, -1, routing.DirOther, routeVnet, zeroCongestion{})
		fmt.Printf("router %d -> dest %d via %s: outport %d\n", routeRouterID, routeDest, algo, outport)
		return nil
	},
}

// algorithmByFlagName mirrors config/load.go's YAML algorithm-name mapping
// without its CUSTOM entry, kept local so this CLI never needs a config file
// on disk to do a dry run.
var algorithmByFlagName = map[string]config.Algorithm{
	"TABLE":    config.Table,
	"XY":       config.XY,
	"ADAPTIVE": config.Adaptive,
	"CAR3D":    config.CAR3D,
	"UGAL":     config.UGAL,
}

// zeroCongestion reports every outport as fully free, the only honest answer
// a standalone dry run (with no live OutputUnits) can give.
type zeroCongestion struct{}

func (zeroCongestion) FreeCredits(outport, vnet int, excludeEscape bool) int {
	return 1 << 30
}

// parseMeshPorts parses a "north=1,south=2,east=3,west=4,local=0" flag value
// into a routing.MeshPorts, defaulting any unmentioned direction to -1.
func parseMeshPorts(s string) (routing.MeshPorts, error) {
	mesh := routing.MeshPorts{North: -1, South: -1, East: -1, West: -1, Local: -1}
	if s == "" {
		return mesh, nil
	}

	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return mesh, fmt.Errorf("vcrouterctl route: malformed --mesh entry %q", pair)
		}
		n, err := strconv.Atoi(kv[1])
		if err != nil {
			return mesh, fmt.Errorf("vcrouterctl route: %q is not an integer port", kv[1])
		}
		switch strings.ToLower(kv[0]) {
		case "north", "n":
			mesh.North = n
		case "south", "s":
			mesh.South = n
		case "east", "e":
			mesh.East = n
		case "west", "w":
			mesh.West = n
		case "local", "l":
			mesh.Local = n
		default:
			return mesh, fmt.Errorf("vcrouterctl route: unrecognized --mesh direction %q", kv[0])
		}
	}
	return mesh, nil
}

func init() {
	routeCmd.Flags().StringVar(&routeAlgorithm, "algorithm", "XY", "routing algorithm: TABLE, XY, ADAPTIVE, CAR3D, UGAL")
	routeCmd.Flags().IntVar(&routeRouterID, "router-id", 0, "the router making the decision")
	routeCmd.Flags().IntVar(&routeDest, "dest", 0, "destination router id")
	routeCmd.Flags().IntVar(&routeVnet, "vnet", 0, "virtual network of the packet")
	routeCmd.Flags().IntVar(&routeNumCols, "num-cols", 1, "mesh column count, required by XY to derive coordinates")
	routeCmd.Flags().StringVar(&routeMesh, "mesh", "", "direction=outport pairs, e.g. north=1,south=2,east=3,west=4,local=0")
	rootCmd.AddCommand(routeCmd)
}
