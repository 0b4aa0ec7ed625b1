package main

import (
	"math"

	"github.com/pthm-cable/diffgrowth/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of optimizable parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			// Topology edit rates (steps)
			{Name: "growth_period", Path: "growth.growth_period", Min: 20, Max: 400, Default: 200},
			{Name: "stretch_period", Path: "growth.stretch_period", Min: 2, Max: 50, Default: 10},
			{Name: "pinch_period", Path: "growth.pinch_period", Min: 10, Max: 300, Default: 100},
			// Edit thresholds
			{Name: "max_edge_length", Path: "growth.max_edge_length", Min: 20, Max: 300, Default: 150},
			{Name: "pinch_angle_deg", Path: "growth.pinch_angle_deg", Min: 10, Max: 80, Default: 45},
			// Force limits
			{Name: "attraction_min_dist", Path: "growth.attraction_min_dist", Min: 5, Max: 60, Default: 20},
			{Name: "max_speed", Path: "growth.max_speed", Min: 2, Max: 30, Default: 10},
			{Name: "max_force", Path: "growth.max_force", Min: 5, Max: 60, Default: 20},
			{Name: "nearby_radius", Path: "growth.nearby_radius", Min: 5, Max: 60, Default: 20},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = math.Min(math.Max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig applies parameter values to a Config struct and refreshes
// its derived thresholds.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)

	// Order must match Specs order
	g := &cfg.Growth
	g.GrowthPeriod = int(math.Round(clamped[0]))
	g.StretchPeriod = int(math.Round(clamped[1]))
	g.PinchPeriod = int(math.Round(clamped[2]))
	g.MaxEdgeLength = clamped[3]
	g.PinchAngleDeg = clamped[4]
	g.AttractionMinDist = clamped[5]
	g.MaxSpeed = clamped[6]
	g.MaxForce = clamped[7]
	g.NearbyRadius = clamped[8]

	cfg.ComputeDerived()
}

// ExtractFromConfig extracts current parameter values from a Config struct.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	g := cfg.Growth
	return []float64{
		float64(g.GrowthPeriod),
		float64(g.StretchPeriod),
		float64(g.PinchPeriod),
		g.MaxEdgeLength,
		g.PinchAngleDeg,
		g.AttractionMinDist,
		g.MaxSpeed,
		g.MaxForce,
		g.NearbyRadius,
	}
}
