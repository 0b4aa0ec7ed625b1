package geom

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// ErrDegenerateBox is returned when a box is built with a non-positive size.
var ErrDegenerateBox = errors.New("box size must be positive")

// Box is an axis-aligned rectangle that contains points in
// [Origin, Origin+Size) on both axes. Boxes are values and never change
// after construction.
type Box struct {
	Origin r2.Vec
	Size   r2.Vec
}

// NewBox creates a box at origin with the given size.
func NewBox(origin, size r2.Vec) (Box, error) {
	if !(size.X > 0) || !(size.Y > 0) {
		return Box{}, fmt.Errorf("%w: got %vx%v", ErrDegenerateBox, size.X, size.Y)
	}
	return Box{Origin: origin, Size: size}, nil
}

// MustBox is like NewBox but panics on a degenerate size.
func MustBox(origin, size r2.Vec) Box {
	b, err := NewBox(origin, size)
	if err != nil {
		panic(err)
	}
	return b
}

// Max returns the exclusive far corner of the box.
func (b Box) Max() r2.Vec {
	return r2.Add(b.Origin, b.Size)
}

// Midpoint returns the center of the box.
func (b Box) Midpoint() r2.Vec {
	return r2.Add(b.Origin, r2.Scale(0.5, b.Size))
}

// Contains reports whether p lies in the half-open box. Points on the
// origin edges are inside, points on the far edges are not.
func (b Box) Contains(p r2.Vec) bool {
	far := b.Max()
	return p.X >= b.Origin.X && p.X < far.X &&
		p.Y >= b.Origin.Y && p.Y < far.Y
}

// Intersects reports whether the two boxes overlap. Boxes that only share
// an edge count as intersecting; they are disjoint only when one lies
// strictly beyond the other's far edge on some axis.
func (b Box) Intersects(other Box) bool {
	far := b.Max()
	otherFar := other.Max()
	if b.Origin.X > otherFar.X || other.Origin.X > far.X {
		return false
	}
	if b.Origin.Y > otherFar.Y || other.Origin.Y > far.Y {
		return false
	}
	return true
}

// Quadrant returns the 2-bit child code of p: bit 1 is set when p is right
// of the midpoint, bit 0 when it is below it. The code indexes the slice
// returned by Subdivide.
func (b Box) Quadrant(p r2.Vec) int {
	mid := b.Midpoint()
	q := 0
	if p.X >= mid.X {
		q |= 2
	}
	if p.Y >= mid.Y {
		q |= 1
	}
	return q
}

// Subdivide splits the box into four half-size boxes ordered by quadrant code.
func (b Box) Subdivide() [4]Box {
	half := r2.Scale(0.5, b.Size)
	mid := b.Midpoint()
	return [4]Box{
		{Origin: b.Origin, Size: half},
		{Origin: r2.Vec{X: b.Origin.X, Y: mid.Y}, Size: half},
		{Origin: r2.Vec{X: mid.X, Y: b.Origin.Y}, Size: half},
		{Origin: mid, Size: half},
	}
}

// Clamp returns the point of the box closest to p. Far edges are excluded,
// so the result always satisfies Contains.
func (b Box) Clamp(p r2.Vec) r2.Vec {
	far := b.Max()
	return r2.Vec{
		X: clampOpen(p.X, b.Origin.X, far.X),
		Y: clampOpen(p.Y, b.Origin.Y, far.Y),
	}
}

// clampOpen clamps v into [lo, hi).
func clampOpen(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v >= hi {
		return math.Nextafter(hi, lo)
	}
	return v
}

func (b Box) String() string {
	return fmt.Sprintf("Box(%g, %g, %g, %g)", b.Origin.X, b.Origin.Y, b.Size.X, b.Size.Y)
}
