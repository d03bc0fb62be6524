package sim

import (
	"math/rand/v2"
	"sync"

	"github.com/iti/rngstream"
)

// Uniform draws from U[0, 1).
type Uniform interface {
	RandU01() float64
}

var streamMu sync.Mutex

// NewStream creates an independent MRG32k3a substream. Stream creation advances a
// package wide seed, so it is serialized across concurrently built simulations.
func NewStream(name string) *rngstream.RngStream {
	streamMu.Lock()
	defer streamMu.Unlock()
	return rngstream.New(name)
}

type pcgUniform struct {
	r *rand.Rand
}

func (u pcgUniform) RandU01() float64 {
	return u.r.Float64()
}

// NewUniform returns a reproducible stream keyed by (seed, stream).
func NewUniform(seed, stream uint64) Uniform {
	return pcgUniform{r: rand.New(rand.NewPCG(seed, stream))}
}

// FixedUniform always returns the same value.
type FixedUniform float64

func (f FixedUniform) RandU01() float64 {
	return float64(f)
}
