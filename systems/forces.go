package systems

import (
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/diffgrowth/components"
	"github.com/pthm-cable/diffgrowth/geom"
)

// pointSnapshot is the read-only state of one ring point for the force phase.
type pointSnapshot struct {
	Entity   ecs.Entity
	Position r2.Vec
	Velocity r2.Vec
}

// snapshot copies positions and velocities in ring order so that every
// force is computed from the same state.
func (r *Ring) snapshot() {
	r.snapshots = r.snapshots[:0]
	for _, e := range r.nodes {
		pt := r.points.Get(e)
		r.snapshots = append(r.snapshots, pointSnapshot{
			Entity:   e,
			Position: pt.Position,
			Velocity: pt.Velocity,
		})
	}
	n := len(r.snapshots)
	if cap(r.forces) < n {
		r.forces = make([]r2.Vec, n)
	}
	r.forces = r.forces[:n]
}

// computeChunk fills r.forces[start:end] and returns the grown scratch buffer.
func (r *Ring) computeChunk(start, end int, scratch []ecs.Entity) []ecs.Entity {
	n := len(r.snapshots)
	for i := start; i < end; i++ {
		self := &r.snapshots[i]
		prev := &r.snapshots[(i-1+n)%n]
		next := &r.snapshots[(i+1)%n]

		var total r2.Vec
		total = r2.Add(total, r.attraction(self, prev.Position))
		total = r2.Add(total, r.attraction(self, next.Position))

		var repulsion r2.Vec
		repulsion, scratch = r.repulsion(self, scratch)
		r.forces[i] = r2.Add(total, repulsion)
	}
	return scratch
}

// attraction steers a point toward a ring neighbor once the two are
// stretched beyond the attraction distance.
func (r *Ring) attraction(self *pointSnapshot, neighbor r2.Vec) r2.Vec {
	diff := r2.Sub(neighbor, self.Position)
	if r2.Norm2(diff) < r.cfg.AttractionMinDistSq {
		return r2.Vec{}
	}
	desired := geom.Limit(diff, r.cfg.MaxSpeed)
	return geom.Limit(r2.Sub(desired, self.Velocity), r.cfg.MaxForce)
}

// repulsion steers a point away from every other point within the nearby
// radius. Only the direction of the summed push matters; its length is
// reset to the maximum speed.
func (r *Ring) repulsion(self *pointSnapshot, scratch []ecs.Entity) (r2.Vec, []ecs.Entity) {
	circle := geom.Circle{Center: self.Position, Radius: r.cfg.NearbyRadius}
	scratch = r.tree.CircleQueryInto(scratch[:0], circle)

	var push r2.Vec
	count := 0
	for _, other := range scratch {
		if other == self.Entity {
			continue
		}
		away := r2.Sub(self.Position, r.points.Get(other).Position)
		push = r2.Add(push, geom.Normalize(away))
		count++
	}

	var desired r2.Vec
	if count > 0 {
		desired = geom.SetMagnitude(push, r.cfg.MaxSpeed)
	}
	return geom.Limit(r2.Sub(desired, self.Velocity), r.cfg.MaxForce), scratch
}

// integrate applies the computed forces and flags points that left their leaf.
func (r *Ring) integrate(dt float64) {
	for i, e := range r.nodes {
		pt := r.points.Get(e)
		pt.ApplyForces(r.forces[i], dt)
		r.markDirty(pt)
	}
}

func (r *Ring) markDirty(pt *components.GrowthPoint) {
	bounds, ok := r.tree.LeafBounds(pt.Leaf)
	if !ok {
		pt.Dirty = true
		return
	}
	pt.CheckDirty(bounds)
}
