package simulator

import (
	"math/rand"
	"time"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads wall time.
func SystemClock() Clock { return systemClock{} }

// NewRand returns a time-seeded source for production use.
func NewRand() Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
