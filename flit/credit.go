package flit

import "github.com/sarchlab/vcrouter/clock"

// Credit is a one-shot upstream message signalling that one buffer slot at
// downstream VC VC has been freed. IsFree additionally signals that the VC
// itself has returned to IDLE (it accompanied a TAIL/HEAD_TAIL departure).
type Credit struct {
	ID          string
	VC          int
	IsFree      bool
	EnqueueTick clock.Tick
}

// NewCredit constructs a Credit for the given downstream VC.
func NewCredit(vc int, isFree bool, now clock.Tick) *Credit {
	return &Credit{
		ID:          GetIDGenerator().Generate(),
		VC:          vc,
		IsFree:      isFree,
		EnqueueTick: now,
	}
}
