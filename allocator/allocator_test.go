package allocator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarchlab/vcrouter/allocator"
	"github.com/sarchlab/vcrouter/clock"
	"github.com/sarchlab/vcrouter/config"
	"github.com/sarchlab/vcrouter/flit"
	"github.com/sarchlab/vcrouter/outputunit"
	"github.com/sarchlab/vcrouter/vc"
)

type fakeInUnit struct {
	vcs []*vc.VirtualChannel
}

func (f *fakeInUnit) NumVCs() int               { return len(f.vcs) }
func (f *fakeInUnit) VC(v int) *vc.VirtualChannel { return f.vcs[v] }

func newFakeInUnit(cfg config.Config) *fakeInUnit {
	f := &fakeInUnit{}
	for i := 0; i < cfg.NumVCs(); i++ {
		f.vcs = append(f.vcs, vc.New(i))
	}
	return f
}

func readyHead(cfg config.Config, gv, outport int, at clock.Tick) *flit.Flit {
	route := flit.RouteInfo{}
	f := flit.NewDataFlit(flit.HeadTail, "p", cfg.VnetOf(gv), gv, route, 1, cfg.BitWidth, at)
	f.AdvanceStage(flit.StageSA, at)
	f.Outport = outport
	return f
}

func TestSAIPicksEscapeOverNormal(t *testing.T) {
	cfg := config.MakeBuilder().WithVnets(1, 4).WithEscapeVC(true).Build()
	iu := newFakeInUnit(cfg)

	escapeGV := cfg.EscapeVCOf(0)
	normalGV := cfg.GlobalVC(0, 1)

	at := clock.Tick(0)
	iu.VC(escapeGV).SetState(vc.ACTIVE, at)
	iu.VC(escapeGV).InsertFlit(readyHead(cfg, escapeGV, 5, at))
	iu.VC(escapeGV).GrantOutport(5)

	iu.VC(normalGV).SetState(vc.ACTIVE, at)
	iu.VC(normalGV).InsertFlit(readyHead(cfg, normalGV, 5, at))
	iu.VC(normalGV).GrantOutport(5)

	a := allocator.New(cfg)
	reqs := a.SAI(map[int]allocator.InputPort{0: iu}, at, nil)

	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].IsEscape)
	assert.Equal(t, escapeGV, reqs[0].VC)
}

func TestSAIISingleWinnerPerOutportAllocatesVC(t *testing.T) {
	cfg := config.MakeBuilder().WithVnets(1, 4).Build()
	iu0 := newFakeInUnit(cfg)
	iu1 := newFakeInUnit(cfg)

	at := clock.Tick(0)
	gv0 := cfg.GlobalVC(0, 0)
	gv1 := cfg.GlobalVC(0, 1)

	iu0.VC(gv0).SetState(vc.ACTIVE, at)
	iu0.VC(gv0).InsertFlit(readyHead(cfg, gv0, 9, at))
	iu0.VC(gv0).GrantOutport(9)

	iu1.VC(gv1).SetState(vc.ACTIVE, at)
	iu1.VC(gv1).InsertFlit(readyHead(cfg, gv1, 9, at))
	iu1.VC(gv1).GrantOutport(9)

	a := allocator.New(cfg)
	reqs := a.SAI(map[int]allocator.InputPort{0: iu0, 1: iu1}, at, nil)
	require.Len(t, reqs, 2)

	ou := outputunit.New(cfg)
	grants := a.SAII(reqs, map[int]allocator.OutputPort{9: ou}, at)

	require.Len(t, grants, 1, "only one request per outport may win a single cycle")
	assert.Equal(t, 9, grants[0].Outport)
	assert.GreaterOrEqual(t, grants[0].OutVC, 0)
}
