package entity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock supplies creation timestamps. Tests replace it for reproducible
// output.
var Clock = time.Now

// IDGenerator produces entity identities. Identities must sort
// lexicographically in creation order because repositories use them as the
// default ordering.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator produces time-ordered UUIDv7 identities.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator produces predictable identities for tests:
// "<prefix>-000001", "<prefix>-000002", ...
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a SequenceGenerator.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next identity in the sequence.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%06d", g.prefix, g.n)
}

type idGeneratorKey struct{}

// WithIDGenerator returns a context whose entity creations draw identities
// from g.
func WithIDGenerator(ctx context.Context, g IDGenerator) context.Context {
	return context.WithValue(ctx, idGeneratorKey{}, g)
}

func idGeneratorFrom(ctx context.Context) IDGenerator {
	if g, ok := ctx.Value(idGeneratorKey{}).(IDGenerator); ok {
		return g
	}
	return UUIDv7Generator{}
}
