package flit

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator generates unique string ids for flits and credits.
type IDGenerator interface {
	Generate() string
}

var idGeneratorMutex sync.Mutex
var idGenerator IDGenerator

// UseSequentialIDGenerator switches to a deterministic, sequential
// generator. Useful for reproducible tests.
func UseSequentialIDGenerator() {
	idGeneratorMutex.Lock()
	defer idGeneratorMutex.Unlock()

	idGenerator = &sequentialIDGenerator{}
}

// UseRandomIDGenerator switches to a xid-backed generator producing
// globally unique, non-deterministic ids.
func UseRandomIDGenerator() {
	idGeneratorMutex.Lock()
	defer idGeneratorMutex.Unlock()

	idGenerator = randomIDGenerator{}
}

// GetIDGenerator returns the process-wide id generator, defaulting to the
// sequential generator on first use.
func GetIDGenerator() IDGenerator {
	idGeneratorMutex.Lock()
	defer idGeneratorMutex.Unlock()

	if idGenerator == nil {
		idGenerator = &sequentialIDGenerator{}
	}

	return idGenerator
}

type sequentialIDGenerator struct {
	next uint64
}

func (g *sequentialIDGenerator) Generate() string {
	n := atomic.AddUint64(&g.next, 1)
	return strconv.FormatUint(n, 10)
}

type randomIDGenerator struct{}

func (randomIDGenerator) Generate() string {
	return xid.New().String()
}
