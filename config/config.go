// Package config holds the network configuration recognized by the router
// core (spec.md §6). It follows the teacher's fluent option-builder idiom
// (pipelining.Builder, messaging.FlitBuilder, endpoint.Builder) rather than
// a struct literal, so call sites read like the rest of the corpus.
package config

import "github.com/sarchlab/vcrouter/errkind"

// Algorithm selects the routing dispatcher RoutingUnit uses for
// non-local, non-escape route computation.
type Algorithm int

// Recognized routing algorithms.
const (
	Table Algorithm = iota
	XY
	Custom
	Adaptive
	CAR3D
	UGAL
)

func (a Algorithm) String() string {
	switch a {
	case Table:
		return "TABLE"
	case XY:
		return "XY"
	case Custom:
		return "CUSTOM"
	case Adaptive:
		return "ADAPTIVE"
	case CAR3D:
		return "CAR3D"
	case UGAL:
		return "UGAL"
	default:
		return "UNKNOWN"
	}
}

// Config is the full set of options a router core reads. All are read-only
// after Build; there is no runtime reconfiguration (spec.md §1 Non-goals).
type Config struct {
	RouterID int

	PipeStages   int
	NumVnets     int
	VCsPerVnet   int
	BitWidth     int
	Algorithm    Algorithm
	VnetOrdered  []bool

	EscapeVCEnabled bool

	SpinSchemeEnabled    bool
	DDThreshold          int
	SpinMaxTurnCapacity  int
	SpinFrozenThreshold  int

	BufferDepth int

	NumRows int
	NumCols int
}

// Builder builds a Config with fluent With* setters.
type Builder struct {
	cfg Config
}

// MakeBuilder returns a Builder pre-populated with the teacher-standard
// defaults for a small mesh: 1 pipeline stage, 2 vnets, 4 VCs/vnet, 128-bit
// links, TABLE routing, escape-VC and SPIN both disabled.
func MakeBuilder() Builder {
	return Builder{cfg: Config{
		PipeStages:          1,
		NumVnets:            2,
		VCsPerVnet:          4,
		BitWidth:            128,
		Algorithm:           Table,
		BufferDepth:         4,
		DDThreshold:         16,
		SpinMaxTurnCapacity: 8,
		SpinFrozenThreshold: 1,
	}}
}

// WithRouterID sets the numeric identity of the router this config
// instantiates, used by XY to derive its own mesh coordinates and by
// OutportCompute to recognize local destinations.
func (b Builder) WithRouterID(id int) Builder {
	b.cfg.RouterID = id
	return b
}

// WithPipeStages sets the number of cycles a flit waits in the input buffer
// before becoming eligible for SA.
func (b Builder) WithPipeStages(n int) Builder {
	b.cfg.PipeStages = n
	return b
}

// WithVnets sets the number of virtual networks and VCs per vnet.
func (b Builder) WithVnets(numVnets, vcsPerVnet int) Builder {
	b.cfg.NumVnets = numVnets
	b.cfg.VCsPerVnet = vcsPerVnet
	return b
}

// WithBitWidth sets the bit width asserted against every attached link.
func (b Builder) WithBitWidth(n int) Builder {
	b.cfg.BitWidth = n
	return b
}

// WithAlgorithm selects the routing algorithm.
func (b Builder) WithAlgorithm(a Algorithm) Builder {
	b.cfg.Algorithm = a
	return b
}

// WithVnetOrdered marks which vnets must preserve inject order across a
// shared outport (spec.md §4.6, §5(a)). Unset entries default to
// unordered.
func (b Builder) WithVnetOrdered(ordered ...bool) Builder {
	b.cfg.VnetOrdered = append([]bool(nil), ordered...)
	return b
}

// WithEscapeVC enables reserving VC offset 0 of every vnet as the escape
// VC, routed by escape_route_compute and prioritized by the allocator.
func (b Builder) WithEscapeVC(enabled bool) Builder {
	b.cfg.EscapeVCEnabled = enabled
	return b
}

// WithSpinScheme enables the SPIN deadlock-recovery subsystem with the
// given stall threshold and maximum forwarded-probe path length.
func (b Builder) WithSpinScheme(enabled bool, ddThreshold, maxTurnCapacity int) Builder {
	b.cfg.SpinSchemeEnabled = enabled
	b.cfg.DDThreshold = ddThreshold
	b.cfg.SpinMaxTurnCapacity = maxTurnCapacity
	return b
}

// WithBufferDepth sets the per-VC credit buffer depth.
func (b Builder) WithBufferDepth(n int) Builder {
	b.cfg.BufferDepth = n
	return b
}

// WithMeshDimensions sets the topology metadata used by XY routing
// direction asserts.
func (b Builder) WithMeshDimensions(rows, cols int) Builder {
	b.cfg.NumRows = rows
	b.cfg.NumCols = cols
	return b
}

// Build finalizes the Config, filling any unset VnetOrdered entries as
// unordered (false).
func (b Builder) Build() Config {
	cfg := b.cfg
	if len(cfg.VnetOrdered) < cfg.NumVnets {
		ordered := make([]bool, cfg.NumVnets)
		copy(ordered, cfg.VnetOrdered)
		cfg.VnetOrdered = ordered
	}
	return cfg
}

// Validate checks internal consistency and returns a ConfigInvalid error
// (never panics itself — callers at router-construction time decide
// whether to panic, per spec.md §7's fatal ConfigInvalid propagation
// policy).
func (c Config) Validate(routerID int) error {
	if c.NumVnets <= 0 {
		return &errkind.ConfigInvalid{RouterID: routerID, Reason: "num_vnets must be positive"}
	}
	if c.VCsPerVnet <= 0 {
		return &errkind.ConfigInvalid{RouterID: routerID, Reason: "vcs_per_vnet must be positive"}
	}
	if c.EscapeVCEnabled && c.VCsPerVnet < 2 {
		return &errkind.ConfigInvalid{
			RouterID: routerID,
			Reason:   "escape_vc_enabled requires at least 2 VCs per vnet to leave a non-escape VC",
		}
	}
	if c.PipeStages < 1 {
		return &errkind.ConfigInvalid{RouterID: routerID, Reason: "pipe_stages must be at least 1"}
	}
	if c.BufferDepth < 1 {
		return &errkind.ConfigInvalid{RouterID: routerID, Reason: "buffer_depth must be at least 1"}
	}
	if c.SpinSchemeEnabled && !c.EscapeVCEnabled {
		return &errkind.ConfigInvalid{
			RouterID: routerID,
			Reason:   "spin_scheme_enabled requires escape_vc_enabled (stall freezing needs a non-escape VC to bypass)",
		}
	}
	return nil
}

// GlobalVC maps a (vnet, vcInVnet) pair to a flat VC index within a port's
// VC vector.
func (c Config) GlobalVC(vnet, vcInVnet int) int {
	return vnet*c.VCsPerVnet + vcInVnet
}

// VnetOf returns the vnet a flat VC index belongs to.
func (c Config) VnetOf(globalVC int) int {
	return globalVC / c.VCsPerVnet
}

// VCInVnet returns the offset of a flat VC index within its vnet.
func (c Config) VCInVnet(globalVC int) int {
	return globalVC % c.VCsPerVnet
}

// NumVCs returns the total number of VCs per port (NumVnets * VCsPerVnet).
func (c Config) NumVCs() int {
	return c.NumVnets * c.VCsPerVnet
}

// EscapeVCOf returns the global VC index of the escape VC for vnet.
func (c Config) EscapeVCOf(vnet int) int {
	return c.GlobalVC(vnet, 0)
}

// IsEscapeVC reports whether globalVC is the escape VC (offset 0) of its
// vnet.
func (c Config) IsEscapeVC(globalVC int) bool {
	return c.EscapeVCEnabled && c.VCInVnet(globalVC) == 0
}

// IsVnetOrdered reports whether vnet must preserve inject order.
func (c Config) IsVnetOrdered(vnet int) bool {
	if vnet < 0 || vnet >= len(c.VnetOrdered) {
		return false
	}
	return c.VnetOrdered[vnet]
}
