// Package codegen produces candidate share codes.
//
// Codes are drawn uniformly with replacement from [a-zA-Z0-9]. The source is
// not cryptographic; codes only need to be spread over the code space.
package codegen

import (
	"math/rand/v2"
	"strings"
	"sync"
)

// Alphabet is the set of characters a code is drawn from
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultLength is the length of a share code on the screenshot host
const DefaultLength = 11

// Generate returns a code of exactly length characters using the global
// random source. It is safe for concurrent use.
func Generate(length int) string {
	return build(length, rand.IntN)
}

// Generator produces codes from its own seeded source, which makes runs
// reproducible in tests.
type Generator struct {
	length int
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewGenerator creates a generator for codes of the given length
func NewGenerator(length int, seed uint64) *Generator {
	return &Generator{
		length: length,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Next returns the next code
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return build(g.length, g.rng.IntN)
}

// Valid reports whether code has the given length and only alphabet characters
func Valid(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

func build(length int, intn func(int) int) string {
	if length <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(Alphabet[intn(len(Alphabet))])
	}
	return b.String()
}
