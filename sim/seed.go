package sim

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/diffgrowth/config"
)

// RegularPolygon returns n points evenly spaced on a circle, starting on the
// positive x axis and winding with increasing angle.
func RegularPolygon(center r2.Vec, radius float64, n int) []r2.Vec {
	points := make([]r2.Vec, n)
	for i := range points {
		angle := 2 * math.Pi * float64(i) / float64(n)
		points[i] = r2.Vec{
			X: center.X + radius*math.Cos(angle),
			Y: center.Y + radius*math.Sin(angle),
		}
	}
	return points
}

// SeedPolygon builds the initial ring described by the seed section.
func SeedPolygon(cfg config.SeedConfig) []r2.Vec {
	return RegularPolygon(r2.Vec{X: cfg.CenterX, Y: cfg.CenterY}, cfg.Radius, cfg.Count)
}
