// Package geom provides the planar primitives used by the growth engine:
// half-open boxes, circular query regions and a few vector helpers on r2.Vec.
package geom

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// Limit returns v scaled down so its length is at most maximum.
// Vectors already within the limit are returned unchanged.
func Limit(v r2.Vec, maximum float64) r2.Vec {
	length := r2.Norm(v)
	if length <= maximum || length == 0 {
		return v
	}
	return r2.Scale(maximum/length, v)
}

// Normalize returns the unit vector in the direction of v, or the zero
// vector when v has no length.
func Normalize(v r2.Vec) r2.Vec {
	length := r2.Norm(v)
	if length == 0 {
		return r2.Vec{}
	}
	return r2.Scale(1/length, v)
}

// SetMagnitude returns v rescaled to the given length.
func SetMagnitude(v r2.Vec, magnitude float64) r2.Vec {
	return r2.Scale(magnitude, Normalize(v))
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b r2.Vec) r2.Vec {
	return r2.Scale(0.5, r2.Add(a, b))
}

// DistanceSq returns the squared distance between a and b.
func DistanceSq(a, b r2.Vec) float64 {
	return r2.Norm2(r2.Sub(b, a))
}
