package ledgerd

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator mints the ULIDs used for event and aggregate identifiers.
// Exposed as an interface so callers that already hold a generator (e.g.
// a seeded, deterministic one for tests) can supply their own.
type IDGenerator interface {
	NewID() string
}

// ulidGenerator wraps oklog/ulid's monotonic entropy source behind a
// single mutex-guarded helper, mirroring the teacher's habit
// (typeid_helpers.go) of hiding a third-party k-sortable id library behind
// one small file.
type ulidGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewIDGenerator creates the default, production ULID generator: monotonic
// within the same millisecond, seeded from crypto/rand.
func NewIDGenerator() IDGenerator {
	return &ulidGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (g *ulidGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}
