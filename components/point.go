package components

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/diffgrowth/geom"
)

// GrowthPoint is a point mass on the growth ring.
type GrowthPoint struct {
	Position     r2.Vec
	Velocity     r2.Vec
	Acceleration r2.Vec
	Mass         float64

	// Dirty is set when Position has left the bounds of Leaf.
	Dirty bool
	Leaf  LeafRef
}

// NewGrowthPoint returns a point at rest with the given mass. A mass of
// zero or less falls back to 1.
func NewGrowthPoint(position r2.Vec, mass float64) GrowthPoint {
	if mass <= 0 {
		mass = 1
	}
	return GrowthPoint{
		Position: position,
		Mass:     mass,
		Leaf:     NoLeaf,
	}
}

// ApplyForces integrates one step with semi-implicit Euler:
// velocity is updated first and the new velocity moves the point.
func (p *GrowthPoint) ApplyForces(force r2.Vec, dt float64) {
	p.Acceleration = r2.Scale(1/p.Mass, force)
	p.Velocity = r2.Add(p.Velocity, r2.Scale(dt, p.Acceleration))
	p.Position = r2.Add(p.Position, r2.Scale(dt, p.Velocity))
}

// CheckDirty recomputes Dirty against the bounds of the owning leaf.
func (p *GrowthPoint) CheckDirty(leafBounds geom.Box) bool {
	p.Dirty = !leafBounds.Contains(p.Position)
	return p.Dirty
}

func (p GrowthPoint) String() string {
	return fmt.Sprintf("GrowthPoint (%g, %g)", p.Position.X, p.Position.Y)
}
