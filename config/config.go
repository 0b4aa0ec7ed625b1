// Package config provides configuration loading for the growth simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Escape policies for points that leave the world bounds.
const (
	EscapeClamp = "clamp" // pull back inside the world and reinsert
	EscapeFail  = "fail"  // stop the simulation with an error
)

// Config holds all simulation configuration parameters.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Growth    GrowthConfig    `yaml:"growth"`
	Parallel  ParallelConfig  `yaml:"parallel"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Seed      SeedConfig      `yaml:"seed"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// WorldConfig holds the bounded plane the ring grows in.
// The world spans [0, width) x [0, height).
type WorldConfig struct {
	Width        float64 `yaml:"width"`
	Height       float64 `yaml:"height"`
	LeafCapacity int     `yaml:"leaf_capacity"` // points per quadtree leaf before it subdivides
}

// GrowthConfig holds the ring's force limits and topology-edit rates.
// Periods are measured in simulation steps.
type GrowthConfig struct {
	GrowthPeriod      int     `yaml:"growth_period"`       // steps between random growth insertions
	StretchPeriod     int     `yaml:"stretch_period"`      // steps between long-edge scans
	PinchPeriod       int     `yaml:"pinch_period"`        // steps between pinch scans
	MaxEdgeLength     float64 `yaml:"max_edge_length"`     // edges longer than this are split
	PinchAngleDeg     float64 `yaml:"pinch_angle_deg"`     // vertices sharper than this are relieved
	AttractionMinDist float64 `yaml:"attraction_min_dist"` // neighbors closer than this do not attract
	MaxSpeed          float64 `yaml:"max_speed"`
	MaxForce          float64 `yaml:"max_force"`
	NearbyRadius      float64 `yaml:"nearby_radius"` // repulsion query radius
	Mass              float64 `yaml:"mass"`
	EscapePolicy      string  `yaml:"escape_policy"`

	// Derived values computed after loading
	MaxEdgeLengthSq     float64 `yaml:"-"`
	AttractionMinDistSq float64 `yaml:"-"`
	PinchThreshold      float64 `yaml:"-"` // cosine of PinchAngleDeg
}

// ParallelConfig controls the parallel force phase.
type ParallelConfig struct {
	Workers   int `yaml:"workers"`   // 0 = GOMAXPROCS, 1 = serial
	Threshold int `yaml:"threshold"` // minimum ring size before work is split
}

// RecorderConfig holds the row schedule.
type RecorderConfig struct {
	Rows        int     `yaml:"rows"`
	ItersPerRow int     `yaml:"iters_per_row"`
	MaxNodes    int     `yaml:"max_nodes"` // ring size ceiling and row buffer length
	DT          float64 `yaml:"dt"`
	LogEvery    int     `yaml:"log_every"` // rows between progress logs (0 = never)
}

// SeedConfig describes the initial regular polygon.
// A zero center uses (height/2, height/2 - height/12).
type SeedConfig struct {
	Count   int     `yaml:"count"`
	Radius  float64 `yaml:"radius"`
	CenterX float64 `yaml:"center_x"`
	CenterY float64 `yaml:"center_y"`
	RNGSeed int64   `yaml:"rng_seed"` // 0 = time-based
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	PerfWindow int `yaml:"perf_window"` // steps in the rolling perf window
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.ComputeDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// ComputeDerived calculates values derived from loaded config. Call it
// again after changing fields by hand.
func (c *Config) ComputeDerived() {
	c.Growth.ComputeDerived()

	if c.Seed.CenterX == 0 && c.Seed.CenterY == 0 {
		c.Seed.CenterX = 0.5 * c.World.Height
		c.Seed.CenterY = 0.5*c.World.Height - c.World.Height/12
	}
	if c.Growth.EscapePolicy == "" {
		c.Growth.EscapePolicy = EscapeClamp
	}
}

// ComputeDerived fills the squared and cosine thresholds.
func (g *GrowthConfig) ComputeDerived() {
	g.MaxEdgeLengthSq = g.MaxEdgeLength * g.MaxEdgeLength
	g.AttractionMinDistSq = g.AttractionMinDist * g.AttractionMinDist
	g.PinchThreshold = math.Cos(g.PinchAngleDeg * math.Pi / 180)
}

// Validate checks that every parameter is usable.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.World.Width > 0 && c.World.Height > 0, "world size %vx%v", c.World.Width, c.World.Height)
	check(c.World.LeafCapacity >= 1, "world.leaf_capacity %d", c.World.LeafCapacity)

	g := c.Growth
	check(g.GrowthPeriod > 0, "growth.growth_period %d", g.GrowthPeriod)
	check(g.StretchPeriod > 0, "growth.stretch_period %d", g.StretchPeriod)
	check(g.PinchPeriod > 0, "growth.pinch_period %d", g.PinchPeriod)
	check(g.MaxEdgeLength > 0, "growth.max_edge_length %v", g.MaxEdgeLength)
	check(g.PinchAngleDeg > 0 && g.PinchAngleDeg < 180, "growth.pinch_angle_deg %v", g.PinchAngleDeg)
	check(g.AttractionMinDist >= 0, "growth.attraction_min_dist %v", g.AttractionMinDist)
	check(g.MaxSpeed > 0, "growth.max_speed %v", g.MaxSpeed)
	check(g.MaxForce > 0, "growth.max_force %v", g.MaxForce)
	check(g.NearbyRadius > 0, "growth.nearby_radius %v", g.NearbyRadius)
	check(g.Mass > 0, "growth.mass %v", g.Mass)
	check(g.EscapePolicy == EscapeClamp || g.EscapePolicy == EscapeFail,
		"growth.escape_policy %q", g.EscapePolicy)

	check(c.Parallel.Workers >= 0, "parallel.workers %d", c.Parallel.Workers)
	check(c.Parallel.Threshold >= 0, "parallel.threshold %d", c.Parallel.Threshold)

	r := c.Recorder
	check(r.Rows >= 1, "recorder.rows %d", r.Rows)
	check(r.ItersPerRow >= 1, "recorder.iters_per_row %d", r.ItersPerRow)
	check(r.DT > 0, "recorder.dt %v", r.DT)
	check(r.LogEvery >= 0, "recorder.log_every %d", r.LogEvery)

	check(c.Seed.Count >= 3, "seed.count %d", c.Seed.Count)
	check(c.Seed.Radius > 0, "seed.radius %v", c.Seed.Radius)
	check(r.MaxNodes >= c.Seed.Count, "recorder.max_nodes %d below seed.count %d", r.MaxNodes, c.Seed.Count)

	return errors.Join(errs...)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
