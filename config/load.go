package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config's fields in their YAML-friendly snake_case
// form. It exists separately from Config so the wire format can evolve
// without disturbing the builder-constructed in-memory type, matching the
// teacher's habit of keeping a dedicated *Config DTO next to its domain
// struct (akita/sim's JSON-tagged trace-recording structs follow the same
// split).
type fileConfig struct {
	RouterID    int    `yaml:"router_id"`
	PipeStages  int    `yaml:"pipe_stages"`
	NumVnets    int    `yaml:"num_vnets"`
	VCsPerVnet  int    `yaml:"vcs_per_vnet"`
	BitWidth    int    `yaml:"bit_width"`
	Algorithm   string `yaml:"algorithm"`
	VnetOrdered []bool `yaml:"vnet_ordered"`

	EscapeVCEnabled bool `yaml:"escape_vc_enabled"`

	SpinSchemeEnabled   bool `yaml:"spin_scheme_enabled"`
	DDThreshold         int  `yaml:"dd_threshold"`
	SpinMaxTurnCapacity int  `yaml:"spin_max_turn_capacity"`
	SpinFrozenThreshold int  `yaml:"spin_frozen_threshold"`

	BufferDepth int `yaml:"buffer_depth"`

	NumRows int `yaml:"num_rows"`
	NumCols int `yaml:"num_cols"`
}

var algorithmByName = map[string]Algorithm{
	"TABLE":    Table,
	"XY":       XY,
	"CUSTOM":   Custom,
	"ADAPTIVE": Adaptive,
	"CAR3D":    CAR3D,
	"UGAL":     UGAL,
}

// Load reads a YAML config file at path, applying environment-variable
// overrides loaded from a .env file in the working directory via godotenv
// (a no-op, not an error, when no .env file is present — mirroring how the
// teacher's cmd/ binaries treat a missing .env as "use process environment
// as-is"). The variables VCROUTER_ROUTER_ID, VCROUTER_ALGORITHM,
// VCROUTER_ESCAPE_VC_ENABLED, VCROUTER_SPIN_SCHEME_ENABLED and
// VCROUTER_BUFFER_DEPTH override their YAML counterparts, letting the demo
// CLI and CI override those knobs without editing the checked-in file; no
// other field has an environment override.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(&fc)

	algo, ok := algorithmByName[fc.Algorithm]
	if !ok && fc.Algorithm != "" {
		return Config{}, fmt.Errorf("config: unrecognized algorithm %q", fc.Algorithm)
	}

	b := MakeBuilder().
		WithRouterID(fc.RouterID).
		WithPipeStages(orDefault(fc.PipeStages, 1)).
		WithVnets(orDefault(fc.NumVnets, 2), orDefault(fc.VCsPerVnet, 4)).
		WithBitWidth(orDefault(fc.BitWidth, 128)).
		WithAlgorithm(algo).
		WithEscapeVC(fc.EscapeVCEnabled).
		WithSpinScheme(fc.SpinSchemeEnabled, orDefault(fc.DDThreshold, 16), orDefault(fc.SpinMaxTurnCapacity, 8)).
		WithBufferDepth(orDefault(fc.BufferDepth, 4)).
		WithMeshDimensions(fc.NumRows, fc.NumCols)

	if len(fc.VnetOrdered) > 0 {
		b = b.WithVnetOrdered(fc.VnetOrdered...)
	}

	cfg := b.Build()
	cfg.SpinFrozenThreshold = orDefault(fc.SpinFrozenThreshold, 1)
	if err := cfg.Validate(cfg.RouterID); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func applyEnvOverrides(fc *fileConfig) {
	if v, ok := os.LookupEnv("VCROUTER_ROUTER_ID"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			fc.RouterID = n
		}
	}
	if v, ok := os.LookupEnv("VCROUTER_ALGORITHM"); ok {
		fc.Algorithm = v
	}
	if v, ok := os.LookupEnv("VCROUTER_ESCAPE_VC_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			fc.EscapeVCEnabled = b
		}
	}
	if v, ok := os.LookupEnv("VCROUTER_SPIN_SCHEME_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			fc.SpinSchemeEnabled = b
		}
	}
	if v, ok := os.LookupEnv("VCROUTER_BUFFER_DEPTH"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			fc.BufferDepth = n
		}
	}
}
