package crossbar_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarchlab/vcrouter/crossbar"
	"github.com/sarchlab/vcrouter/flit"
	"github.com/sarchlab/vcrouter/link"
	"github.com/sarchlab/vcrouter/link/simlink"
)

func TestTraverseSendsOnWiredLink(t *testing.T) {
	l := simlink.NewFlitLink(1, 128)
	cb := crossbar.New(map[int]link.NetworkLink{3: l})

	f := flit.NewDataFlit(flit.HeadTail, "p0", 0, 0, flit.RouteInfo{}, 1, 128, 0)
	f.AdvanceStage(flit.StageSA, 0)

	ok := cb.Traverse(f, 3, 0)
	require.True(t, ok)
	assert.Equal(t, 1, cb.ActiveCount())
	assert.Equal(t, flit.StageST, f.CurrentStage())
}

func TestTraversePanicsOnUnwiredOutport(t *testing.T) {
	cb := crossbar.New(map[int]link.NetworkLink{})
	f := flit.NewDataFlit(flit.HeadTail, "p0", 0, 0, flit.RouteInfo{}, 1, 128, 0)
	f.AdvanceStage(flit.StageSA, 0)

	assert.Panics(t, func() { cb.Traverse(f, 9, 0) })
}
