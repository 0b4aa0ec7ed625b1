package geom

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"
)

// ErrNonPositiveRadius is returned when a circle is built with radius <= 0.
var ErrNonPositiveRadius = errors.New("circle radius must be positive")

// Circle is a circular query region.
type Circle struct {
	Center r2.Vec
	Radius float64
}

// NewCircle creates a circle, rejecting non-positive radii.
func NewCircle(center r2.Vec, radius float64) (Circle, error) {
	if !(radius > 0) {
		return Circle{}, fmt.Errorf("%w: got %v", ErrNonPositiveRadius, radius)
	}
	return Circle{Center: center, Radius: radius}, nil
}

// RadiusSquared returns Radius*Radius.
func (c Circle) RadiusSquared() float64 {
	return c.Radius * c.Radius
}

// BoundingSquare returns the axis-aligned square of side 2*Radius centered
// on the circle. Range queries use it to prune before the exact test.
func (c Circle) BoundingSquare() Box {
	r := r2.Vec{X: c.Radius, Y: c.Radius}
	return Box{
		Origin: r2.Sub(c.Center, r),
		Size:   r2.Scale(2, r),
	}
}

// Contains reports whether p lies strictly inside the circle.
func (c Circle) Contains(p r2.Vec) bool {
	return DistanceSq(c.Center, p) < c.RadiusSquared()
}
