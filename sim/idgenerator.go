package sim

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

var idGeneratorMutex sync.Mutex
var idGeneratorInstantiated bool
var idGenerator IDGenerator

// IDGenerator can generate IDs
type IDGenerator interface {
	// Generate an ID
	Generate() string
}

// UseSequentialIDGenerator configures the ID generator to generate IDs in
// sequential. Sequential IDs make repeated runs produce identical records.
func UseSequentialIDGenerator() error {
	return useIDGenerator(&sequentialIDGenerator{})
}

// UseUniqueIDGenerator configures the ID generator to generate globally unique
// IDs. This is the default.
func UseUniqueIDGenerator() error {
	return useIDGenerator(uniqueIDGenerator{})
}

// useIDGenerator installs g. Selecting the type already in use is a no-op.
func useIDGenerator(g IDGenerator) error {
	idGeneratorMutex.Lock()
	defer idGeneratorMutex.Unlock()

	if idGeneratorInstantiated {
		if fmt.Sprintf("%T", idGenerator) == fmt.Sprintf("%T", g) {
			return nil
		}

		return fmt.Errorf("%w: cannot switch from %T to %T",
			ErrIDGeneratorInUse, idGenerator, g)
	}

	idGenerator = g
	idGeneratorInstantiated = true

	return nil
}

// GetIDGenerator returns the ID generator used in the current process.
func GetIDGenerator() IDGenerator {
	idGeneratorMutex.Lock()
	defer idGeneratorMutex.Unlock()

	if !idGeneratorInstantiated {
		idGenerator = uniqueIDGenerator{}
		idGeneratorInstantiated = true
	}

	return idGenerator
}

type sequentialIDGenerator struct {
	nextID uint64
}

func (g *sequentialIDGenerator) Generate() string {
	idNumber := atomic.AddUint64(&g.nextID, 1)
	id := strconv.FormatUint(idNumber, 10)

	return id
}

type uniqueIDGenerator struct {
}

func (g uniqueIDGenerator) Generate() string {
	return xid.New().String()
}
