// Package random provides the randomness abstraction used for room codes,
// tickets, and draw order.
package random

import (
	"crypto/rand"
	"fmt"
	"math/big"
	mathrand "math/rand/v2"
	"sync"
)

// Source is the randomness provider.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// cryptoSource draws room codes, tickets, and draw order from crypto/rand.
type cryptoSource struct{}

// NewCryptoSource returns the Source used by the running server.
func NewCryptoSource() Source {
	return &cryptoSource{}
}

// Intn returns a value in [0, n).
//
// Precondition: n > 0.
// Postcondition: Panics if n <= 0 or the system entropy source fails.
func (c *cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("random: Intn(%d)", n))
	}
	val, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Errorf("random: reading entropy: %w", err))
	}
	return int(val.Int64())
}

// seededSource is a deterministic Source for reproducible tests.
type seededSource struct {
	mu  sync.Mutex
	rng *mathrand.Rand
}

// NewSeededSource returns a deterministic Source. Two sources built from the
// same seed produce the same sequence.
func NewSeededSource(seed uint64) Source {
	return &seededSource{rng: mathrand.New(mathrand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *seededSource) Intn(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("random: Intn(%d)", n))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// Shuffle permutes values in place with a Fisher–Yates pass driven by src.
//
// Postcondition: values holds a permutation of its original contents.
func Shuffle[T any](src Source, values []T) {
	for i := len(values) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		values[i], values[j] = values[j], values[i]
	}
}

// Pick returns k distinct values chosen uniformly from values, in random order.
// values is not modified.
//
// Precondition: 0 <= k <= len(values).
func Pick[T any](src Source, values []T, k int) []T {
	if k < 0 || k > len(values) {
		panic("random: Pick called with k out of range")
	}
	pool := append([]T(nil), values...)
	for i := 0; i < k; i++ {
		j := i + src.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}
