// Package jitter adds randomized spread to a retry delay, the same
// package-level rand.Source pattern the teacher uses for its own
// randInt63n helper.
package jitter

import (
	"math/rand"
	"sync"
	"time"
)

var (
	mu  sync.Mutex
	rng = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Delay returns base plus up to +/-25% of base, so repeated retries by
// many peers don't all land on the same instant. A non-positive base is
// returned unchanged.
func Delay(base time.Duration) time.Duration {
	if base <= 0 {
		return base
	}
	spread := int64(base) / 4
	if spread <= 0 {
		return base
	}
	mu.Lock()
	offset := rng.Int63n(2*spread+1) - spread
	mu.Unlock()
	return base + time.Duration(offset)
}
