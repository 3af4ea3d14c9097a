package flit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sarchlab/vcrouter/clock"
	"github.com/sarchlab/vcrouter/flit"
)

func TestNewDataFlitRejectsControlType(t *testing.T) {
	assert.Panics(t, func() {
		flit.NewDataFlit(flit.Probe, "p0", 0, 0, flit.RouteInfo{}, 1, 32, 0)
	})
}

func TestNewControlFlitRejectsDataType(t *testing.T) {
	assert.Panics(t, func() {
		flit.NewControlFlit(flit.Head, 0, 0, 0, nil, 0)
	})
}

func TestAdvanceStageMonotonic(t *testing.T) {
	f := flit.NewDataFlit(flit.HeadTail, "p0", 0, 0, flit.RouteInfo{}, 1, 32, 0)

	f.AdvanceStage(flit.StageI, 0)
	f.AdvanceStage(flit.StageVA, 1)
	f.AdvanceStage(flit.StageSA, 2)

	assert.Panics(t, func() {
		f.AdvanceStage(flit.StageVA, 3)
	})
}

func TestIsStageRequiresTimeAtOrAfterEntry(t *testing.T) {
	f := flit.NewDataFlit(flit.Head, "p0", 0, 0, flit.RouteInfo{}, 1, 32, 0)

	f.AdvanceStage(flit.StageSA, clock.Tick(5))

	assert.False(t, f.IsStage(flit.StageSA, clock.Tick(4)))
	assert.True(t, f.IsStage(flit.StageSA, clock.Tick(5)))
	assert.True(t, f.IsStage(flit.StageSA, clock.Tick(6)))
	assert.False(t, f.IsStage(flit.StageVA, clock.Tick(6)))
}

func TestPathStackIsFIFO(t *testing.T) {
	f := flit.NewControlFlit(flit.Probe, 1, 2, 3, nil, 0)

	f.PushPath(4)
	f.PushPath(5)
	f.PushPath(6)

	assert.Equal(t, 3, f.NumTurns())

	top, ok := f.PeekTop()
	assert.True(t, ok)
	assert.Equal(t, 4, top)

	popped, ok := f.PopTop()
	assert.True(t, ok)
	assert.Equal(t, 4, popped)
	assert.Equal(t, []int{5, 6}, f.GetPathCopy())
}

func TestPopEmptyPath(t *testing.T) {
	f := flit.NewControlFlit(flit.Move, 1, 2, 3, nil, 0)

	_, ok := f.PopTop()
	assert.False(t, ok)
}

func TestTypePredicates(t *testing.T) {
	assert.True(t, flit.HeadTail.IsHead())
	assert.True(t, flit.HeadTail.IsTail())
	assert.True(t, flit.Head.IsHead())
	assert.False(t, flit.Head.IsTail())
	assert.True(t, flit.Probe.IsControl())
	assert.False(t, flit.Body.IsControl())
}
