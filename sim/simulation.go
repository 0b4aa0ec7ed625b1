// Package sim assembles the growth engine and records its output rows.
package sim

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/diffgrowth/components"
	"github.com/pthm-cable/diffgrowth/config"
	"github.com/pthm-cable/diffgrowth/geom"
	"github.com/pthm-cable/diffgrowth/systems"
	"github.com/pthm-cable/diffgrowth/telemetry"
)

// Simulation is one growth run: the ECS world holding the points, the
// quadtree over the world bounds, the ring and its recorder.
type Simulation struct {
	cfg *config.Config

	world    *ecs.World
	tree     *systems.Quadtree
	ring     *systems.Ring
	recorder *Recorder
	perf     *telemetry.PerfCollector
}

// New builds a simulation seeded with the configured regular polygon.
// rng drives growth-site choice.
func New(cfg *config.Config, rng *rand.Rand) (*Simulation, error) {
	if cfg == nil {
		return nil, errors.New("sim: nil config")
	}
	if rng == nil {
		return nil, errors.New("sim: nil random source")
	}

	bounds, err := geom.NewBox(r2.Vec{}, r2.Vec{X: cfg.World.Width, Y: cfg.World.Height})
	if err != nil {
		return nil, fmt.Errorf("world bounds: %w", err)
	}

	world := ecs.NewWorld()
	points := ecs.NewMap1[components.GrowthPoint](world)
	tree, err := systems.NewQuadtree(bounds, cfg.World.LeafCapacity, points)
	if err != nil {
		return nil, err
	}

	ring, err := systems.NewRing(world, tree, SeedPolygon(cfg.Seed), cfg.Growth, rng)
	if err != nil {
		return nil, fmt.Errorf("seeding ring: %w", err)
	}
	ring.SetParallel(cfg.Parallel.Workers, cfg.Parallel.Threshold)

	perf := telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	ring.SetPerfCollector(perf)

	return &Simulation{
		cfg:      cfg,
		world:    world,
		tree:     tree,
		ring:     ring,
		recorder: NewRecorder(ring, tree, cfg.Recorder, perf),
		perf:     perf,
	}, nil
}

// Run records every configured row. fn, if not nil, sees each row as it is
// recorded.
func (s *Simulation) Run(fn func(Row) error) error {
	s.recorder.OnRow(fn)
	return s.recorder.Run()
}

// Ring returns the growth ring.
func (s *Simulation) Ring() *systems.Ring { return s.ring }

// Tree returns the spatial index.
func (s *Simulation) Tree() *systems.Quadtree { return s.tree }

// Recorder returns the row recorder.
func (s *Simulation) Recorder() *Recorder { return s.recorder }

// Perf returns the step timing collector.
func (s *Simulation) Perf() *telemetry.PerfCollector { return s.perf }

// Config returns the configuration the simulation was built from.
func (s *Simulation) Config() *config.Config { return s.cfg }

// Close stops the force workers.
func (s *Simulation) Close() {
	s.ring.Close()
}
