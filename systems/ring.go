package systems

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/diffgrowth/components"
	"github.com/pthm-cable/diffgrowth/config"
	"github.com/pthm-cable/diffgrowth/telemetry"
)

var (
	// ErrRingTooSmall is returned for seeds with fewer than three points.
	ErrRingTooSmall = errors.New("ring needs at least three points")
	// ErrIndexOutOfRange is returned for edit sites outside the ring.
	ErrIndexOutOfRange = errors.New("ring index out of range")
	// ErrEscaped is returned when points leave the world under the fail policy.
	ErrEscaped = errors.New("points escaped world bounds")
)

// StepStats reports what one step did besides moving points.
type StepStats struct {
	Escaped  int // points that left the world bounds
	Inserted int // points added by topology edits
}

// Ring is the closed contour of growth points. Index i is joined to i-1
// and i+1 modulo the ring length.
//
// A Ring is driven from one goroutine. Only the force phase inside Step
// fans out to workers, and it never mutates the tree.
type Ring struct {
	cfg    config.GrowthConfig
	world  *ecs.World
	points *ecs.Map1[components.GrowthPoint]
	tree   *Quadtree
	rng    *rand.Rand
	perf   *telemetry.PerfCollector
	pool   *forcePool

	nodes      []ecs.Entity
	edits      map[int]struct{}
	skipped    int
	iterations int
	// consecutive steps with escapes; only the first of a run warns
	escapeStreak int

	snapshots []pointSnapshot
	forces    []r2.Vec
}

// NewRing creates the ring from seed positions and inserts every point into
// tree. The tree must index the same world. rng drives the growth-site
// choice; pass a seeded source for reproducible runs.
func NewRing(world *ecs.World, tree *Quadtree, seed []r2.Vec, cfg config.GrowthConfig, rng *rand.Rand) (*Ring, error) {
	if rng == nil {
		return nil, errors.New("ring needs a random source")
	}
	r := &Ring{
		cfg:    cfg,
		world:  world,
		points: ecs.NewMap1[components.GrowthPoint](world),
		tree:   tree,
		rng:    rng,
		pool:   newForcePool(1, DefaultParallelThreshold),
		edits:  make(map[int]struct{}),
	}
	if err := r.seed(seed); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Ring) seed(positions []r2.Vec) error {
	if len(positions) < 3 {
		return fmt.Errorf("%w: got %d", ErrRingTooSmall, len(positions))
	}
	r.nodes = make([]ecs.Entity, 0, len(positions))
	for i, pos := range positions {
		e := r.newPoint(pos)
		if err := r.tree.Insert(e); err != nil {
			r.world.RemoveEntity(e)
			return fmt.Errorf("seeding point %d: %w", i, err)
		}
		r.nodes = append(r.nodes, e)
	}
	return nil
}

func (r *Ring) newPoint(pos r2.Vec) ecs.Entity {
	pt := components.NewGrowthPoint(pos, r.cfg.Mass)
	return r.points.NewEntity(&pt)
}

// SetParallel configures the force phase. workers <= 0 uses GOMAXPROCS,
// workers == 1 keeps it serial. Rings smaller than threshold stay serial.
func (r *Ring) SetParallel(workers, threshold int) {
	r.pool.stopWorkers()
	r.pool = newForcePool(workers, threshold)
}

// SetPerfCollector enables per-phase timing of Step. Nil disables it.
func (r *Ring) SetPerfCollector(perf *telemetry.PerfCollector) {
	r.perf = perf
}

// Close stops the force workers.
func (r *Ring) Close() {
	r.pool.stopWorkers()
}

// Len returns the number of points on the ring.
func (r *Ring) Len() int {
	return len(r.nodes)
}

// Iterations returns the number of completed steps.
func (r *Ring) Iterations() int {
	return r.iterations
}

// Entities returns the ring's point entities in order.
func (r *Ring) Entities() []ecs.Entity {
	return append([]ecs.Entity(nil), r.nodes...)
}

// Point returns the point at ring index i.
func (r *Ring) Point(i int) components.GrowthPoint {
	return *r.points.Get(r.nodes[i])
}

// Positions appends the current positions in ring order to dst.
func (r *Ring) Positions(dst []r2.Vec) []r2.Vec {
	for _, e := range r.nodes {
		dst = append(dst, r.points.Get(e).Position)
	}
	return dst
}

func (r *Ring) position(i int) r2.Vec {
	return r.points.Get(r.nodes[i]).Position
}

// Step advances the simulation by dt.
//
// Forces for all points are computed from one snapshot before any point
// moves. Points are then integrated, the tree is brought up to date, and
// finally the periodic topology edits run against the consistent tree.
func (r *Ring) Step(dt float64) (StepStats, error) {
	var stats StepStats

	r.startPhase(telemetry.PhaseForces)
	r.snapshot()
	r.pool.run(r, len(r.snapshots))

	r.startPhase(telemetry.PhaseIntegrate)
	r.integrate(dt)

	r.startPhase(telemetry.PhaseRedistribute)
	escaped, err := r.redistribute()
	stats.Escaped = escaped
	if err != nil {
		return stats, err
	}

	r.startPhase(telemetry.PhaseTopology)
	r.iterations++
	inserted, err := r.periodicEdits()
	stats.Inserted = inserted
	return stats, err
}

func (r *Ring) startPhase(name string) {
	if r.perf != nil {
		r.perf.StartPhase(name)
	}
}

// redistribute updates the tree and applies the escape policy.
func (r *Ring) redistribute() (int, error) {
	escaped := r.tree.RedistributeDirty()
	if len(escaped) == 0 {
		r.escapeStreak = 0
		return 0, nil
	}

	level := slog.LevelWarn
	if r.escapeStreak > 0 {
		level = slog.LevelDebug
	}
	r.escapeStreak++
	slog.Log(context.Background(), level, "points escaped world bounds",
		"count", len(escaped),
		"iteration", r.iterations,
		"consecutive_steps", r.escapeStreak,
		"policy", r.cfg.EscapePolicy,
	)
	if r.cfg.EscapePolicy == config.EscapeFail {
		return len(escaped), fmt.Errorf("%w: %d points at iteration %d", ErrEscaped, len(escaped), r.iterations)
	}

	bounds := r.tree.Bounds()
	for _, e := range escaped {
		pt := r.points.Get(e)
		pt.Position = bounds.Clamp(pt.Position)
		pt.Velocity = r2.Vec{}
		pt.Dirty = false
		if err := r.tree.Insert(e); err != nil {
			return len(escaped), fmt.Errorf("reinserting clamped point: %w", err)
		}
	}
	return len(escaped), nil
}

// Reset replaces every point with a fresh ring built from seed and clears
// the step counter and edit tracking.
func (r *Ring) Reset(seed []r2.Vec) error {
	if len(seed) < 3 {
		return fmt.Errorf("%w: got %d", ErrRingTooSmall, len(seed))
	}
	r.tree.Clear()
	for _, e := range r.nodes {
		r.world.RemoveEntity(e)
	}
	r.nodes = nil
	r.iterations = 0
	r.escapeStreak = 0
	r.ClearEditTracking()
	return r.seed(seed)
}
