package record

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// KeyGenerator produces submission keys.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type KeyGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 submission keys.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns deterministic keys for tests: the given keys in
// order, then "<prefix>-N" once they run out.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	keys   []string
	prefix string
	n      int
}

// NewFixedGenerator creates a generator that yields keys in order and then
// falls back to "key-N" numbering.
func NewFixedGenerator(keys ...string) *FixedGenerator {
	return &FixedGenerator{keys: keys, prefix: "key"}
}

// Generate returns the next deterministic key.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.n++
	if g.n <= len(g.keys) {
		return g.keys[g.n-1]
	}
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
