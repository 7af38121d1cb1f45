package gateway

import (
	"math/rand/v2"
	"time"
)

// uniformBackOff выдаёт паузу, равномерно распределённую на [min, max].
type uniformBackOff struct {
	min time.Duration
	max time.Duration
}

func newUniformBackOff(min, max time.Duration) *uniformBackOff {
	if max < min {
		max = min
	}
	return &uniformBackOff{min: min, max: max}
}

// NextBackOff реализует backoff.BackOff.
func (b *uniformBackOff) NextBackOff() time.Duration {
	span := b.max - b.min
	if span <= 0 {
		return b.min
	}
	return b.min + rand.N(span+1)
}

// Reset реализует backoff.BackOff; состояние не хранится.
func (b *uniformBackOff) Reset() {}
