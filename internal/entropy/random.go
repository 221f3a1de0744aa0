// Package entropy provides the random streams that drive market dynamics and
// Npc decisions. Every entity receives its own Source at construction so a
// run is reproducible from a single seed.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mathrand "math/rand"
)

// Source yields uniform floats in [0, 1). *math/rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// Salts separating the per-purpose streams derived from one run seed.
const (
	SaltIDs        int64 = 100
	SaltCatalog    int64 = 200
	SaltNpcs       int64 = 300
	SaltBusinesses int64 = 400
)

// NewSeeded returns a deterministic stream for seed.
func NewSeeded(seed int64) *mathrand.Rand {
	return mathrand.New(mathrand.NewSource(seed))
}

// Derive returns the stream for one entity: the run seed offset by a
// purpose salt and the entity ordinal, so adding an entity never shifts
// the streams of the ones created before it.
func Derive(seed, salt int64, ordinal uint64) *mathrand.Rand {
	return NewSeeded(seed + salt*1_000_003 + int64(ordinal))
}

// NewSeed returns a fresh non-zero seed from crypto/rand, used when a run
// is configured with seed 0.
func NewSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 42
	}
	seed := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if seed == 0 {
		seed = 1
	}
	return seed
}

// Crypto is a Source backed by crypto/rand. It cannot be replayed.
type Crypto struct{}

// Float64 implements Source.
func (Crypto) Float64() float64 {
	return cryptoRandFloat()
}

// cryptoRandFloat generates a random float64 using crypto/rand.
func cryptoRandFloat() float64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		// This should never happen but return 0.5 as a safe default.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// Script replays a fixed sequence of draws, wrapping around at the end.
// An empty script always yields 0.
type Script struct {
	values []float64
	next   int
}

// NewScript creates a Script over values.
func NewScript(values ...float64) *Script {
	return &Script{values: values}
}

// Float64 implements Source.
func (s *Script) Float64() float64 {
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

// Drawn reports how many values have been consumed.
func (s *Script) Drawn() int {
	return s.next
}
