package content

import (
	"math/rand"
	"strings"
)

// RandomIDGenerator produces random 6-char lowercase-alphanumeric
// checkpoint ids. The checkpoint alphabet is deliberately narrower than
// ksuid's (used elsewhere in this module for message/block ids) because
// checkpoint ids are embedded directly in transcript text and must match
// the fixed <checkpoint:[a-z0-9]{6}> wire format exactly.
type RandomIDGenerator struct {
	rng *rand.Rand
}

// NewRandomIDGenerator returns a generator seeded from the given source.
// Production call sites should seed from crypto/rand-derived entropy once
// at process start; tests can pass a fixed seed for determinism.
func NewRandomIDGenerator(seed int64) *RandomIDGenerator {
	return &RandomIDGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *RandomIDGenerator) NextID() string {
	var sb strings.Builder
	sb.Grow(checkpointLength)
	for i := 0; i < checkpointLength; i++ {
		sb.WriteByte(checkpointAlphabet[g.rng.Intn(len(checkpointAlphabet))])
	}
	return sb.String()
}

// SequentialIDGenerator returns deterministic ids ("baaaaa", "caaaaa", ...:
// a counter starting at 1, written in the checkpoint alphabet least
// significant digit first) for tests that need to assert on
// exact checkpoint ids rather than tolerate randomness.
type SequentialIDGenerator struct {
	next int
}

func NewSequentialIDGenerator() *SequentialIDGenerator {
	return &SequentialIDGenerator{}
}

func (g *SequentialIDGenerator) NextID() string {
	g.next++
	n := g.next
	var sb strings.Builder
	sb.Grow(checkpointLength)
	for i := 0; i < checkpointLength; i++ {
		sb.WriteByte(checkpointAlphabet[n%len(checkpointAlphabet)])
		n /= len(checkpointAlphabet)
	}
	return sb.String()
}
