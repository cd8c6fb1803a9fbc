package zmachine

import (
	"crypto/rand"
	"encoding/binary"
	mathrand "math/rand/v2"
)

// rng implements the two generator modes: a seeded ChaCha8 generator for
// normal play, and the predictable mode entered by random with an operand
// in -1..-999, which cycles 1..range forever.
type rng struct {
	random *mathrand.Rand

	predictable      bool
	predictableRange uint16
	predictableNext  uint16
}

func newRNG() rng {
	r := rng{}
	r.SeedFromEntropy()
	return r
}

func chacha8Source(seed uint64) *mathrand.Rand {
	var key [32]uint8
	binary.LittleEndian.PutUint64(key[:8], seed)
	binary.LittleEndian.PutUint64(key[8:16], ^seed)
	return mathrand.New(mathrand.NewChaCha8(key))
}

// Seed enters seeded mode with a reproducible sequence.
func (r *rng) Seed(seed uint64) {
	r.predictable = false
	r.random = chacha8Source(seed)
}

// SeedFromEntropy enters seeded mode from OS entropy (random 0).
func (r *rng) SeedFromEntropy() {
	var raw [8]uint8
	if _, err := rand.Read(raw[:]); err != nil {
		// Entropy failure leaves a fixed but valid generator
		r.Seed(0x5eed)
		return
	}
	r.Seed(binary.LittleEndian.Uint64(raw[:]))
}

// SeedPredictable enters the cycling mode: successive calls to Next yield
// 1, 2, ... rangeSeed, 1, 2, ...
func (r *rng) SeedPredictable(rangeSeed uint16) {
	r.predictable = true
	r.predictableRange = rangeSeed
	r.predictableNext = 1
}

// Next returns a value in 1..=bound.
func (r *rng) Next(bound uint16) uint16 {
	if bound == 0 {
		return 0
	}

	if r.predictable {
		v := r.predictableNext
		r.predictableNext++
		if r.predictableNext > r.predictableRange {
			r.predictableNext = 1
		}
		if v > bound {
			// Cycle values past the requested bound clamp to it
			v = bound
		}
		return v
	}

	return uint16(r.random.IntN(int(bound))) + 1
}
