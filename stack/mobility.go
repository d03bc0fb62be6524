package stack

import (
	"math"

	"github.com/encodeous/trustmesh/state"
)

type Vector struct {
	X, Y float64
}

func (v Vector) Distance(o Vector) float64 {
	return math.Hypot(v.X-o.X, v.Y-o.Y)
}

// GridPosition places nodes row first on a grid of the given width, starting at the origin.
func GridPosition(id state.NodeId, width uint32, spacing float64) Vector {
	return Vector{
		X: float64(uint32(id)%width) * spacing,
		Y: float64(uint32(id)/width) * spacing,
	}
}
