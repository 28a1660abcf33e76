// Package id provides centralized ULID generation for the daemon: trace
// and span identifiers for internal/tracing, and request/connection
// identifiers for the control API's HTTP and WebSocket handlers.
//
// ULIDs are lexicographically sortable by creation time, which keeps
// request logs and trace timelines orderable without a separate
// timestamp column.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// TraceID identifies an entire reconciliation or request flow.
type TraceID string

// SpanID identifies a single traced operation within a trace.
type SpanID string

// RequestID identifies one control-API HTTP request.
type RequestID string

// ConnectionID identifies one control-API WebSocket connection.
type ConnectionID string

const (
	TracePrefix      = "trace"
	SpanPrefix       = "span"
	RequestPrefix    = "req"
	ConnectionPrefix = "conn"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator backed by a cryptographically
// secure entropy source.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source,
// useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string.
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewTraceID generates a new trace ID.
func NewTraceID() TraceID { return TraceID(Default().GenerateWithPrefix(TracePrefix)) }

// NewSpanID generates a new span ID.
func NewSpanID() SpanID { return SpanID(Default().GenerateWithPrefix(SpanPrefix)) }

// NewRequestID generates a new request ID.
func NewRequestID() RequestID { return RequestID(Default().GenerateWithPrefix(RequestPrefix)) }

// NewConnectionID generates a new WebSocket connection ID.
func NewConnectionID() ConnectionID {
	return ConnectionID(Default().GenerateWithPrefix(ConnectionPrefix))
}

func (id TraceID) String() string      { return string(id) }
func (id SpanID) String() string       { return string(id) }
func (id RequestID) String() string    { return string(id) }
func (id ConnectionID) String() string { return string(id) }

// IsValid checks if an id string is a valid bare ULID; a prefixed id does
// not parse and is reported invalid.
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}
