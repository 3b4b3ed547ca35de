// Package id provides centralized ID generation for the trace engine.
//
// ULIDs are lexicographically sortable, so connection and batch IDs can
// be ordered by creation time without a separate timestamp. Prefixes make
// logs readable (conn_*, batch_*, trace_*, sess_*).
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefixes for type identification in logs and wire messages
const (
	ConnPrefix    = "conn"
	BatchPrefix   = "batch"
	TracePrefix   = "trace"
	SessionPrefix = "sess"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // ulid entropy readers are not concurrency-safe
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand entropy
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with custom entropy,
// useful for deterministic tests
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new bare ULID string
func (g *Generator) Generate() string {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

// GenerateWithPrefix creates a prefixed ULID (e.g. "conn_01J...")
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate())
}

// HasPrefix reports whether id carries the given type prefix
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+"_")
}

// Connection generates a connection ID
func Connection() string {
	return Default().GenerateWithPrefix(ConnPrefix)
}

// Batch generates a batch ID
func Batch() string {
	return Default().GenerateWithPrefix(BatchPrefix)
}

// Trace generates a trace ID
func Trace() string {
	return Default().GenerateWithPrefix(TracePrefix)
}

// Session generates a session ID
func Session() string {
	return Default().GenerateWithPrefix(SessionPrefix)
}
