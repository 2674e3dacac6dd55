package montecarlo

import (
	"math/rand/v2"
	"time"
)

// RandomSource supplies uniform draws in [0, 1).
type RandomSource interface {
	Float64() float64
}

// SourceFactory returns the random source for one run. Each run gets its own
// source so results do not depend on which worker executes it.
type SourceFactory func(run int) RandomSource

// SeededSources derives an independent PCG stream per run from seed.
func SeededSources(seed int64) SourceFactory {
	base := splitmix64(uint64(seed))
	return func(run int) RandomSource {
		return rand.New(rand.NewPCG(base, splitmix64(base^uint64(run))))
	}
}

// timeSeed picks a non-zero seed when none was configured.
func timeSeed() int64 {
	seed := time.Now().UnixNano()
	if seed == 0 {
		seed = 1
	}
	return seed
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
