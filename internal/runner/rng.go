package runner

import (
	"hash/fnv"
	"math/rand"
	"strconv"
)

// clientRNG derives an independent random source for client i.
// The same seed always yields the same sequence per client.
func clientRNG(seed int64, i int) *rand.Rand {
	return rand.New(rand.NewSource(seed ^ fnv1a64("client_"+strconv.Itoa(i))))
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
